package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

const (
	categoryColumns = `id, name, short_code, description, icon_url, created_at`
	issueColumns    = `id, title, description, category_id, author_id, unique_code, stars, pledges, created_at`
)

var (
	categoryOrder = map[string]bool{"name": true, "short_code": true, "created_at": true}
	issueOrder    = map[string]bool{"created_at": true, "title": true, "stars": true, "pledges": true, "unique_code": true}
)

func (db *DB) ListCategories(ctx context.Context, opts repository.ListOptions) ([]model.Category, error) {
	order, err := orderClause(opts, categoryOrder, "name")
	if err != nil {
		return nil, err
	}
	categories := []model.Category{}
	if err := db.conn.SelectContext(ctx, &categories, `SELECT `+categoryColumns+` FROM categories`+order); err != nil {
		return nil, fmt.Errorf("sqlstore: listing categories: %w", err)
	}
	return categories, nil
}

func (db *DB) GetCategoryByID(ctx context.Context, id string) (*model.Category, error) {
	return getOne[model.Category](ctx, db.conn, "category", id,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
}

// GetCategoryByCode matches the short code case-insensitively, so
// /planetary-issues/wtr and /planetary-issues/WTR resolve the same category.
func (db *DB) GetCategoryByCode(ctx context.Context, shortCode string) (*model.Category, error) {
	code := strings.ToUpper(strings.TrimSpace(shortCode))
	return getOne[model.Category](ctx, db.conn, "category", code,
		`SELECT `+categoryColumns+` FROM categories WHERE UPPER(short_code) = ?`, code)
}

func (db *DB) CreateCategory(ctx context.Context, category *model.Category) error {
	if category.ID == "" {
		category.ID = xid.New().String()
	}
	category.CreatedAt = time.Now().UTC()

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO categories (`+categoryColumns+`)
		 VALUES (:id, :name, :short_code, :description, :icon_url, :created_at)`,
		category,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating category %q: %w", category.ShortCode, translate("category", err))
	}
	return nil
}

func issueWhere(filter repository.IssueFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	return where(conds), args
}

func (db *DB) ListIssues(ctx context.Context, filter repository.IssueFilter, opts repository.ListOptions) ([]model.Issue, error) {
	order, err := orderClause(opts, issueOrder, "created_at")
	if err != nil {
		return nil, err
	}
	cond, args := issueWhere(filter)

	issues := []model.Issue{}
	query := db.conn.Rebind(`SELECT ` + issueColumns + ` FROM planetary_issues` + cond + order)
	if err := db.conn.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, fmt.Errorf("sqlstore: listing issues: %w", err)
	}
	return issues, nil
}

func (db *DB) GetIssue(ctx context.Context, id string) (*model.Issue, error) {
	return getOne[model.Issue](ctx, db.conn, "planetary issue", id,
		`SELECT `+issueColumns+` FROM planetary_issues WHERE id = ?`, id)
}

func (db *DB) CountIssues(ctx context.Context, filter repository.IssueFilter) (int, error) {
	cond, args := issueWhere(filter)
	var n int
	if err := db.conn.GetContext(ctx, &n, db.conn.Rebind(`SELECT COUNT(*) FROM planetary_issues`+cond), args...); err != nil {
		return 0, fmt.Errorf("sqlstore: counting issues: %w", err)
	}
	return n, nil
}

// CreateIssue inserts the issue. A duplicate unique_code, which happens when
// two issues are created in the same category at once, comes back as
// apperror.ErrConstraint.
func (db *DB) CreateIssue(ctx context.Context, issue *model.Issue) error {
	if issue.ID == "" {
		issue.ID = xid.New().String()
	}
	issue.CreatedAt = time.Now().UTC()

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO planetary_issues (`+issueColumns+`)
		 VALUES (:id, :title, :description, :category_id, :author_id, :unique_code, :stars, :pledges, :created_at)`,
		issue,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating issue %q: %w", issue.UniqueCode, translate("planetary issue", err))
	}
	return nil
}

// IncrementIssueStars bumps the counter in one UPDATE, so concurrent stars
// are never lost to a read-then-write race.
func (db *DB) IncrementIssueStars(ctx context.Context, id string) (int64, error) {
	return increment(ctx, db.conn, "planetary issue", "planetary_issues", "stars", id)
}

// AddPledge records the pledge and bumps the issue counter in one transaction.
func (db *DB) AddPledge(ctx context.Context, pledge *model.Pledge) (int64, error) {
	if pledge.ID == "" {
		pledge.ID = xid.New().String()
	}
	pledge.CreatedAt = time.Now().UTC()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: beginning pledge: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	total, err := increment(ctx, tx, "planetary issue", "planetary_issues", "pledges", pledge.IssueID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO pledges (id, user_id, issue_id, created_at)
		 VALUES (:id, :user_id, :issue_id, :created_at)`,
		pledge,
	); err != nil {
		return 0, fmt.Errorf("sqlstore: recording pledge: %w", translate("pledge", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlstore: committing pledge: %w", err)
	}
	return total, nil
}

// increment runs "col = col + 1" and returns the new value. table and col
// are always package constants, never caller input.
func increment(ctx context.Context, q sqlx.ExtContext, resource, table, col, id string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = ? RETURNING %s`, table, col, col, col)
	var n int64
	err := q.QueryRowxContext(ctx, q.Rebind(query), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.NotFound(resource, id)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlstore: incrementing %s.%s for %s: %w", table, col, id, err)
	}
	return n, nil
}
