package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// EngagementService records stars, pledges and ratings.
//
// Counters are incremented in the store with a single "n = n + 1", so two
// people starring at once both count. A user may star or pledge the same
// thing more than once; nothing de-duplicates.
type EngagementService struct {
	issues      repository.IssueRepository
	submissions repository.SubmissionRepository
	engagement  repository.EngagementRepository
	users       *UserService
	logger      *slog.Logger
}

func NewEngagementService(
	issues repository.IssueRepository,
	submissions repository.SubmissionRepository,
	engagement repository.EngagementRepository,
	users *UserService,
	logger *slog.Logger,
) *EngagementService {
	return &EngagementService{
		issues:      issues,
		submissions: submissions,
		engagement:  engagement,
		users:       users,
		logger:      logger,
	}
}

// StarIssue returns the issue's new star count.
func (s *EngagementService) StarIssue(ctx context.Context, session model.Session, issueID string) (int64, error) {
	if err := requireSession(session, "star an issue"); err != nil {
		return 0, err
	}
	return s.issues.IncrementIssueStars(ctx, issueID)
}

// StarSubmission returns the submission's new star count.
func (s *EngagementService) StarSubmission(ctx context.Context, session model.Session, submissionID string) (int64, error) {
	if err := requireSession(session, "star research"); err != nil {
		return 0, err
	}
	return s.submissions.IncrementSubmissionStars(ctx, submissionID)
}

// Pledge records a pledge and returns the issue's new pledge count. The
// pledge row and the counter are written in one transaction.
func (s *EngagementService) Pledge(ctx context.Context, session model.Session, issueID string) (int64, error) {
	if err := requireSession(session, "pledge"); err != nil {
		return 0, err
	}
	if _, err := s.users.EnsureUser(ctx, session); err != nil {
		return 0, err
	}
	total, err := s.issues.AddPledge(ctx, &model.Pledge{UserID: session.UserID, IssueID: issueID})
	if err != nil {
		return 0, err
	}
	s.logger.Info("pledge recorded",
		slog.String("issueID", issueID),
		slog.String("userID", session.UserID),
		slog.Int64("pledges", total),
	)
	return total, nil
}

// Rate stores the session user's 1–5 rating of a submission, replacing any
// earlier rating by the same user.
func (s *EngagementService) Rate(ctx context.Context, session model.Session, submissionID string, value int) (*model.Rating, error) {
	if err := requireSession(session, "rate research"); err != nil {
		return nil, err
	}
	if value < model.MinRating || value > model.MaxRating {
		return nil, apperror.ValidationFailed("value",
			fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating))
	}
	if _, err := s.submissions.GetSubmission(ctx, submissionID); err != nil {
		return nil, err
	}
	if _, err := s.users.EnsureUser(ctx, session); err != nil {
		return nil, err
	}

	rating := &model.Rating{UserID: session.UserID, SubmissionID: submissionID, Value: value}
	if err := s.engagement.UpsertRating(ctx, rating); err != nil {
		return nil, err
	}
	return rating, nil
}
