package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// UserService keeps the users table in step with sessions.
//
// A session can exist before its user row does (the token is issued by the
// gateway, the row is written here), so every operation that writes rows
// pointing at a user first calls EnsureUser.
type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// EnsureUser upserts the row implied by the session. Calling it repeatedly
// with the same session leaves exactly one row with the same values.
func (s *UserService) EnsureUser(ctx context.Context, session model.Session) (*model.User, error) {
	if err := requireSession(session, "continue"); err != nil {
		return nil, err
	}
	user := model.UserFromSession(session)
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/users: ensuring user %s: %w", session.UserID, err)
	}
	return user, nil
}

// Get returns the stored profile of id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/users: fetching user %s: %w", id, err)
	}
	return user, nil
}

// HandleSessionEvent is registered with auth.Gateway.OnSessionChange so a
// user row exists as soon as someone signs in.
func (s *UserService) HandleSessionEvent(ctx context.Context, ev auth.Event) error {
	if ev.Kind != auth.SignedIn {
		return nil
	}
	user, err := s.EnsureUser(ctx, ev.Session)
	if err != nil {
		return err
	}
	s.logger.Info("user signed in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return nil
}
