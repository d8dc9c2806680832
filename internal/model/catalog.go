package model

import (
	"fmt"
	"strings"
	"time"
)

// Category groups planetary issues. ShortCode prefixes the issue codes.
type Category struct {
	ID          string    `json:"id"          db:"id"`
	Name        string    `json:"name"        db:"name"`
	ShortCode   string    `json:"shortCode"   db:"short_code"`
	Description string    `json:"description" db:"description"`
	IconURL     string    `json:"iconUrl"     db:"icon_url"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Issue is a planetary issue. Stars and Pledges only ever grow.
type Issue struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Description string    `json:"description" db:"description"`
	CategoryID  string    `json:"categoryId"  db:"category_id"`
	AuthorID    *string   `json:"authorId"    db:"author_id"`
	UniqueCode  string    `json:"uniqueCode"  db:"unique_code"`
	Stars       int64     `json:"stars"       db:"stars"`
	Pledges     int64     `json:"pledges"     db:"pledges"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// IssueCode builds the human-readable code of the (existing+1)th issue in a
// category: the upper-cased short code followed by a 3-digit sequence.
//
//	IssueCode("wtr", 2) → "WTR003"
func IssueCode(shortCode string, existing int) string {
	return fmt.Sprintf("%s%03d", strings.ToUpper(strings.TrimSpace(shortCode)), existing+1)
}

// Pledge records one pledge by a user toward an issue.
type Pledge struct {
	ID        string    `json:"id"        db:"id"`
	UserID    string    `json:"userId"    db:"user_id"`
	IssueID   string    `json:"issueId"   db:"issue_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
