package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Submission is a research document plus its metadata and score.
//
// AIScore is nil until the scoring service has produced a number; a
// submission confirmed without a score keeps it nil forever.
type Submission struct {
	ID          string    `json:"id"          db:"id"`
	Title       string    `json:"title"       db:"title"`
	Summary     string    `json:"summary"     db:"summary"`
	Tags        Tags      `json:"tags"        db:"tags"`
	IssueID     string    `json:"issueId"     db:"planetary_issue_id"`
	UserID      string    `json:"userId"      db:"user_id"`
	DocumentURL string    `json:"documentUrl" db:"document_url"`
	AIScore     *float64  `json:"aiScore"     db:"ai_score"`
	Stars       int64     `json:"stars"       db:"stars"`
	CreatedAt   time.Time `json:"createdAt"   db:"created_at"`
}

// Tags is a list of free-form labels. It is stored as a JSON array in a
// single text column so both SQLite and Postgres can hold it.
type Tags []string

// ParseTags splits comma-separated input and trims each entry. Empty
// entries are dropped, so "" yields no tags and "a,,b" yields [a b].
func ParseTags(raw string) Tags {
	tags := Tags{}
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, fmt.Errorf("model: encoding tags: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("model: cannot scan %T into Tags", src)
	}
	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("model: decoding tags: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*t = out
	return nil
}

// SavedTheory is a user's bookmark of someone else's research.
type SavedTheory struct {
	ID           string    `json:"id"           db:"id"`
	UserID       string    `json:"userId"       db:"user_id"`
	SubmissionID *string   `json:"submissionId" db:"submission_id"`
	Title        string    `json:"title"        db:"title"`
	Author       string    `json:"author"       db:"author"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}

// Rating is one user's 1–5 rating of a submission.
type Rating struct {
	ID           string    `json:"id"           db:"id"`
	UserID       string    `json:"userId"       db:"user_id"`
	SubmissionID string    `json:"submissionId" db:"submission_id"`
	Value        int       `json:"value"        db:"value"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
}

const (
	MinRating = 1
	MaxRating = 5
)
