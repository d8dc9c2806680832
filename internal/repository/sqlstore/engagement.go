package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

var savedTheoryOrder = map[string]bool{"created_at": true, "title": true}

// UpsertRating stores the rating. A second rating by the same user on the
// same submission replaces the value and keeps the original row ID, which
// is written back into rating.
func (db *DB) UpsertRating(ctx context.Context, rating *model.Rating) error {
	if rating.Value < model.MinRating || rating.Value > model.MaxRating {
		return apperror.ValidationFailed("value", fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}
	if rating.ID == "" {
		rating.ID = xid.New().String()
	}
	rating.CreatedAt = time.Now().UTC()

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO ratings (id, user_id, submission_id, value, created_at)
		 VALUES (:id, :user_id, :submission_id, :value, :created_at)
		 ON CONFLICT (user_id, submission_id) DO UPDATE SET
			value      = excluded.value,
			created_at = excluded.created_at`,
		rating,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: rating submission %s: %w", rating.SubmissionID, translate("rating", err))
	}

	stored, err := getOne[model.Rating](ctx, db.conn, "rating", rating.SubmissionID,
		`SELECT id, user_id, submission_id, value, created_at FROM ratings WHERE user_id = ? AND submission_id = ?`,
		rating.UserID, rating.SubmissionID)
	if err != nil {
		return err
	}
	*rating = *stored
	return nil
}

func (db *DB) CountRatingsByUser(ctx context.Context, userID string) (int, error) {
	return db.countByUser(ctx, "ratings", userID)
}

func (db *DB) CountPledgesByUser(ctx context.Context, userID string) (int, error) {
	return db.countByUser(ctx, "pledges", userID)
}

func (db *DB) countByUser(ctx context.Context, table, userID string) (int, error) {
	var n int
	query := db.conn.Rebind(`SELECT COUNT(*) FROM ` + table + ` WHERE user_id = ?`)
	if err := db.conn.GetContext(ctx, &n, query, userID); err != nil {
		return 0, fmt.Errorf("sqlstore: counting %s for user %s: %w", table, userID, err)
	}
	return n, nil
}

func (db *DB) ListSavedTheories(ctx context.Context, userID string, opts repository.ListOptions) ([]model.SavedTheory, error) {
	order, err := orderClause(opts, savedTheoryOrder, "created_at")
	if err != nil {
		return nil, err
	}
	theories := []model.SavedTheory{}
	query := db.conn.Rebind(`SELECT id, user_id, submission_id, title, author, created_at
		FROM saved_theories WHERE user_id = ?` + order)
	if err := db.conn.SelectContext(ctx, &theories, query, userID); err != nil {
		return nil, fmt.Errorf("sqlstore: listing saved theories for user %s: %w", userID, err)
	}
	return theories, nil
}

// leaderboardQuery counts each user's own activity inside the window with
// correlated subqueries. The community rating is the mean of every rating
// their submissions have received, regardless of the window, and is NULL
// for users nobody has rated yet. Users with no activity in the window are
// left out.
const leaderboardQuery = `
SELECT user_id, name, username, submissions, ratings_given, pledges_made, community_rating
FROM (
	SELECT
		u.id       AS user_id,
		u.name     AS name,
		u.username AS username,
		(SELECT COUNT(*) FROM research_submissions s WHERE s.user_id = u.id AND s.created_at >= ?) AS submissions,
		(SELECT COUNT(*) FROM ratings r WHERE r.user_id = u.id AND r.created_at >= ?)              AS ratings_given,
		(SELECT COUNT(*) FROM pledges p WHERE p.user_id = u.id AND p.created_at >= ?)              AS pledges_made,
		(SELECT AVG(CAST(r.value AS DOUBLE PRECISION))
			FROM ratings r JOIN research_submissions s ON s.id = r.submission_id
			WHERE s.user_id = u.id)                                                                 AS community_rating
	FROM users u
) activity
WHERE submissions + ratings_given + pledges_made > 0`

func (db *DB) Leaderboard(ctx context.Context, since time.Time) ([]model.LeaderboardRow, error) {
	since = since.UTC()
	rows := []model.LeaderboardRow{}
	if err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(leaderboardQuery), since, since, since); err != nil {
		return nil, fmt.Errorf("sqlstore: building leaderboard: %w", err)
	}
	return rows, nil
}
