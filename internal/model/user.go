// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
	"unicode"
)

// DefaultRole is assigned to every user created through sign-in.
const DefaultRole = "researcher"

// User is a row in the users collection.
//
// The ID is the same identifier carried in the session token, so a user row
// can be ensured lazily from nothing more than the session.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Email     string    `json:"email"     db:"email"`
	Name      string    `json:"name"      db:"name"`     // Display name
	Username  string    `json:"username"  db:"username"` // Derived, see DeriveUsername
	Role      string    `json:"role"      db:"role"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DeriveUsername lowercases the full name and strips all whitespace from it.
// An empty full name falls back to the local part of the email.
//
//	DeriveUsername("Ada Lovelace", "ada@example.com") → "adalovelace"
//	DeriveUsername("", "ada@example.com")             → "ada"
func DeriveUsername(fullName, email string) string {
	if strings.TrimSpace(fullName) != "" {
		return strings.ToLower(strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, fullName))
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UserFromSession builds the user row implied by a session: display name is
// the full name when present, otherwise the derived username.
func UserFromSession(s Session) *User {
	username := DeriveUsername(s.FullName, s.Email)
	name := strings.TrimSpace(s.FullName)
	if name == "" {
		name = username
	}
	return &User{
		ID:        s.UserID,
		Email:     s.Email,
		Name:      name,
		Username:  username,
		Role:      DefaultRole,
		AvatarURL: s.AvatarURL,
	}
}
