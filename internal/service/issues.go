package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// Field length limits for new issues.
const (
	MaxIssueTitleLength       = 200
	MaxIssueDescriptionLength = 10000
)

// IssueService creates and reads planetary issues.
type IssueService struct {
	categories  repository.CategoryRepository
	issues      repository.IssueRepository
	submissions repository.SubmissionRepository
	users       *UserService
	logger      *slog.Logger
}

func NewIssueService(
	categories repository.CategoryRepository,
	issues repository.IssueRepository,
	submissions repository.SubmissionRepository,
	users *UserService,
	logger *slog.Logger,
) *IssueService {
	return &IssueService{
		categories:  categories,
		issues:      issues,
		submissions: submissions,
		users:       users,
		logger:      logger,
	}
}

type CreateIssueInput struct {
	CategoryID  string `json:"categoryId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Create files a new issue under a category.
//
// FLOW:
//  1. validate title and category
//  2. load the category (NotFound if it does not exist)
//  3. count its issues and build the next code: WTR + 3-digit sequence
//  4. ensure the author's user row, then insert with zero counters
//
// Steps 3 and 4 are not atomic. Two issues created at the same moment can
// compute the same code; the unique index rejects the second one and the
// caller sees apperror.ErrConstraint.
func (s *IssueService) Create(ctx context.Context, session model.Session, in CreateIssueInput) (*model.Issue, error) {
	if err := requireSession(session, "create an issue"); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	categoryID := strings.TrimSpace(in.CategoryID)
	description := strings.TrimSpace(in.Description)

	if title == "" {
		return nil, apperror.MissingField("title")
	}
	if len(title) > MaxIssueTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxIssueTitleLength))
	}
	if categoryID == "" {
		return nil, apperror.MissingField("category")
	}
	if len(description) > MaxIssueDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxIssueDescriptionLength))
	}

	cat, err := s.categories.GetCategoryByID(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	existing, err := s.issues.CountIssues(ctx, repository.IssueFilter{CategoryID: cat.ID})
	if err != nil {
		return nil, fmt.Errorf("service/issues: counting issues in %s: %w", cat.ShortCode, err)
	}
	if _, err := s.users.EnsureUser(ctx, session); err != nil {
		return nil, err
	}

	author := session.UserID
	issue := &model.Issue{
		Title:       title,
		Description: description,
		CategoryID:  cat.ID,
		AuthorID:    &author,
		UniqueCode:  model.IssueCode(cat.ShortCode, existing),
	}
	if err := s.issues.CreateIssue(ctx, issue); err != nil {
		s.logger.Error("failed to create issue",
			slog.String("code", issue.UniqueCode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("issue created",
		slog.String("id", issue.ID),
		slog.String("code", issue.UniqueCode),
		slog.String("authorID", author),
	)
	return issue, nil
}

// Get returns apperror.ErrNotFound for an unknown id.
func (s *IssueService) Get(ctx context.Context, id string) (*model.Issue, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.MissingField("id")
	}
	return s.issues.GetIssue(ctx, id)
}

type IssueQuery struct {
	CategoryID string
	Sort       string // SortNewest or SortStars
	Limit      int
	Offset     int
}

func (s *IssueService) List(ctx context.Context, q IssueQuery) ([]model.Issue, error) {
	issues, err := s.issues.ListIssues(ctx,
		repository.IssueFilter{CategoryID: q.CategoryID},
		listOptions(q.Sort, q.Limit, q.Offset),
	)
	if err != nil {
		return nil, fmt.Errorf("service/issues: listing issues: %w", err)
	}
	return issues, nil
}

// IssueDetail is the issue page.
type IssueDetail struct {
	Issue       *model.Issue       `json:"issue"`
	Category    *model.Category    `json:"category"`
	Submissions []model.Submission `json:"submissions"`
}

// Detail loads the issue, its category and the research filed against it.
func (s *IssueService) Detail(ctx context.Context, id string) (*IssueDetail, error) {
	issue, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := s.categories.GetCategoryByID(ctx, issue.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("service/issues: loading category of %s: %w", issue.UniqueCode, err)
	}
	subs, err := s.submissions.ListSubmissions(ctx,
		repository.SubmissionFilter{IssueID: issue.ID},
		repository.ListOptions{OrderBy: "created_at", Desc: true, Limit: repository.MaxListLimit},
	)
	if err != nil {
		return nil, fmt.Errorf("service/issues: listing research of %s: %w", issue.UniqueCode, err)
	}
	return &IssueDetail{Issue: issue, Category: cat, Submissions: subs}, nil
}
