package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/repository"
)

func (db *DB) CreateMagicLink(ctx context.Context, link *repository.MagicLink) error {
	if link.ID == "" {
		link.ID = xid.New().String()
	}
	link.CreatedAt = time.Now().UTC()
	link.ExpiresAt = link.ExpiresAt.UTC()

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO magic_links (id, email, secret_hash, expires_at, used_at, created_at)
		 VALUES (:id, :email, :secret_hash, :expires_at, :used_at, :created_at)`,
		link,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: creating magic link: %w", translate("magic link", err))
	}
	return nil
}

func (db *DB) GetMagicLink(ctx context.Context, id string) (*repository.MagicLink, error) {
	return getOne[repository.MagicLink](ctx, db.conn, "magic link", id,
		`SELECT id, email, secret_hash, expires_at, used_at, created_at FROM magic_links WHERE id = ?`, id)
}

// ConsumeMagicLink is a conditional UPDATE: of two concurrent callers only
// one sees a row affected.
func (db *DB) ConsumeMagicLink(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		db.conn.Rebind(`UPDATE magic_links SET used_at = ? WHERE id = ? AND used_at IS NULL`),
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: consuming magic link %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	return n == 1, nil
}
