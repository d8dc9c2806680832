package model

import "time"

// Session is the authenticated identity attached to a request.
//
// It is passed explicitly into every service and workflow call rather than
// read from a package-level "current user", which keeps services testable
// with hand-built sessions.
type Session struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session identifies a user.
func (s Session) Valid() bool {
	return s.UserID != ""
}
