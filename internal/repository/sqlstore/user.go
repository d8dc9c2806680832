package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
)

const userColumns = `id, email, name, username, role, avatar_url, created_at, updated_at`

// UpsertUser inserts the user or merges it into the existing row with the
// same ID.
//
// MERGE RULES:
//   - empty incoming profile fields never blank out stored ones
//   - role and created_at are only written on insert
//   - updated_at always moves forward
//
// INSERT ... ON CONFLICT DO UPDATE is a single statement, so two sign-ins
// racing on the same user cannot both take the INSERT path. The row is read
// back afterwards so the caller sees the canonical record.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		return apperror.MissingField("id")
	}
	if user.Role == "" {
		user.Role = model.DefaultRole
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (:id, :email, :name, :username, :role, :avatar_url, :created_at, :updated_at)
		 ON CONFLICT (id) DO UPDATE SET
			email      = CASE WHEN excluded.email      <> '' THEN excluded.email      ELSE users.email      END,
			name       = CASE WHEN excluded.name       <> '' THEN excluded.name       ELSE users.name       END,
			username   = CASE WHEN excluded.username   <> '' THEN excluded.username   ELSE users.username   END,
			avatar_url = CASE WHEN excluded.avatar_url <> '' THEN excluded.avatar_url ELSE users.avatar_url END,
			updated_at = excluded.updated_at`,
		user,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting user %s: %w", user.ID, translate("user", err))
	}

	stored, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return getOne[model.User](ctx, db.conn, "user", id,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return getOne[model.User](ctx, db.conn, "user", email,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}
