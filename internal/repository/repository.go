// Package repository declares the data access contracts the services depend on.
//
// Each collection gets its own small interface. Services receive these
// interfaces, never the concrete store, so tests can pass in-memory fakes.
//
// Shared contract:
//   - List*: equality filters, one order field, bounded by ListOptions.Limit
//   - Get*:  apperror.ErrNotFound on zero rows; an error on more than one
//   - Create*/Add*: apperror.ErrConstraint on unique or foreign-key rejection
//   - Count*: non-negative
//   - Increment*: a single atomic server-side "n = n + 1", returning the new n
package repository

import (
	"context"
	"time"

	"github.com/sakif/planet-hub/internal/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string // column name; each store whitelists what it accepts
	Desc    bool
}

// Normalize clamps Limit to [1, MaxListLimit] and Offset to >= 0.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

type UserRepository interface {
	// UpsertUser inserts the user or merges the non-empty fields into the
	// existing row with the same ID.
	UpsertUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context, opts ListOptions) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*model.Category, error)
	GetCategoryByCode(ctx context.Context, shortCode string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
}

type IssueFilter struct {
	CategoryID string
}

type IssueRepository interface {
	ListIssues(ctx context.Context, filter IssueFilter, opts ListOptions) ([]model.Issue, error)
	GetIssue(ctx context.Context, id string) (*model.Issue, error)
	CountIssues(ctx context.Context, filter IssueFilter) (int, error)
	CreateIssue(ctx context.Context, issue *model.Issue) error
	IncrementIssueStars(ctx context.Context, id string) (int64, error)
	// AddPledge records the pledge and bumps the issue's pledge counter in
	// one transaction, returning the new counter value.
	AddPledge(ctx context.Context, pledge *model.Pledge) (int64, error)
}

type SubmissionFilter struct {
	IssueID    string
	CategoryID string // any issue of the category
	UserID     string
}

type SubmissionRepository interface {
	ListSubmissions(ctx context.Context, filter SubmissionFilter, opts ListOptions) ([]model.Submission, error)
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	CountSubmissions(ctx context.Context, filter SubmissionFilter) (int, error)
	CreateSubmission(ctx context.Context, submission *model.Submission) error
	IncrementSubmissionStars(ctx context.Context, id string) (int64, error)
}

type EngagementRepository interface {
	// UpsertRating stores the rating, replacing the user's previous value
	// for the same submission.
	UpsertRating(ctx context.Context, rating *model.Rating) error
	CountRatingsByUser(ctx context.Context, userID string) (int, error)
	CountPledgesByUser(ctx context.Context, userID string) (int, error)
	ListSavedTheories(ctx context.Context, userID string, opts ListOptions) ([]model.SavedTheory, error)
	// Leaderboard aggregates per-user activity created at or after since.
	Leaderboard(ctx context.Context, since time.Time) ([]model.LeaderboardRow, error)
}

// MagicLink is a pending passwordless sign-in.
type MagicLink struct {
	ID         string     `db:"id"`
	Email      string     `db:"email"`
	SecretHash string     `db:"secret_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	UsedAt     *time.Time `db:"used_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

type MagicLinkRepository interface {
	CreateMagicLink(ctx context.Context, link *MagicLink) error
	GetMagicLink(ctx context.Context, id string) (*MagicLink, error)
	// ConsumeMagicLink marks the link used. It reports false when the link
	// was already used, so a link can complete at most one sign-in.
	ConsumeMagicLink(ctx context.Context, id string, at time.Time) (bool, error)
}
