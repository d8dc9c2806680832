package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

const submissionColumns = `id, title, summary, tags, planetary_issue_id, user_id, document_url, ai_score, stars, created_at`

var submissionOrder = map[string]bool{"created_at": true, "title": true, "stars": true, "ai_score": true}

// submissionWhere builds the WHERE clause. A category matches through a
// subquery on its issues, so the result is not bounded by how many issues
// the category has.
func submissionWhere(filter repository.SubmissionFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.IssueID != "" {
		conds = append(conds, "planetary_issue_id = ?")
		args = append(args, filter.IssueID)
	}
	if filter.CategoryID != "" {
		conds = append(conds, "planetary_issue_id IN (SELECT id FROM planetary_issues WHERE category_id = ?)")
		args = append(args, filter.CategoryID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	return where(conds), args
}

func (db *DB) ListSubmissions(ctx context.Context, filter repository.SubmissionFilter, opts repository.ListOptions) ([]model.Submission, error) {
	order, err := orderClause(opts, submissionOrder, "created_at")
	if err != nil {
		return nil, err
	}
	cond, args := submissionWhere(filter)
	submissions := []model.Submission{}
	query := db.conn.Rebind(`SELECT ` + submissionColumns + ` FROM research_submissions` + cond + order)
	if err := db.conn.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: listing submissions: %w", err)
	}
	return submissions, nil
}

func (db *DB) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	return getOne[model.Submission](ctx, db.conn, "research submission", id,
		`SELECT `+submissionColumns+` FROM research_submissions WHERE id = ?`, id)
}

func (db *DB) CountSubmissions(ctx context.Context, filter repository.SubmissionFilter) (int, error) {
	cond, args := submissionWhere(filter)
	var n int
	if err := db.conn.GetContext(ctx, &n, db.conn.Rebind(`SELECT COUNT(*) FROM research_submissions`+cond), args...); err != nil {
		return 0, fmt.Errorf("sqlstore: counting submissions: %w", err)
	}
	return n, nil
}

func (db *DB) CreateSubmission(ctx context.Context, submission *model.Submission) error {
	if submission.ID == "" {
		submission.ID = xid.New().String()
	}
	if submission.Tags == nil {
		submission.Tags = model.Tags{}
	}
	submission.CreatedAt = time.Now().UTC()

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO research_submissions (`+submissionColumns+`)
		 VALUES (:id, :title, :summary, :tags, :planetary_issue_id, :user_id, :document_url, :ai_score, :stars, :created_at)`,
		submission,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating submission %q: %w", submission.Title, translate("research submission", err))
	}
	return nil
}

func (db *DB) IncrementSubmissionStars(ctx context.Context, id string) (int64, error) {
	return increment(ctx, db.conn, "research submission", "research_submissions", "stars", id)
}
