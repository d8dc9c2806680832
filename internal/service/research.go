package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// ResearchService reads research submissions. Writing them is the job of
// the workflow package.
type ResearchService struct {
	categories  repository.CategoryRepository
	issues      repository.IssueRepository
	submissions repository.SubmissionRepository
	users       repository.UserRepository
}

func NewResearchService(
	categories repository.CategoryRepository,
	issues repository.IssueRepository,
	submissions repository.SubmissionRepository,
	users repository.UserRepository,
) *ResearchService {
	return &ResearchService{categories: categories, issues: issues, submissions: submissions, users: users}
}

// ResearchDetail is the research page. Author is nil when the user row is
// gone.
type ResearchDetail struct {
	Submission *model.Submission `json:"submission"`
	Issue      *model.Issue      `json:"issue"`
	Category   *model.Category   `json:"category"`
	Author     *model.User       `json:"author"`
}

// Get returns apperror.ErrNotFound when no submission has this id; the page
// handler renders its not-found state from that.
func (s *ResearchService) Get(ctx context.Context, id string) (*ResearchDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.MissingField("id")
	}
	sub, err := s.submissions.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	issue, err := s.issues.GetIssue(ctx, sub.IssueID)
	if err != nil {
		return nil, fmt.Errorf("service/research: loading issue of %s: %w", id, err)
	}
	cat, err := s.categories.GetCategoryByID(ctx, issue.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("service/research: loading category of %s: %w", id, err)
	}
	author, err := s.users.GetUserByID(ctx, sub.UserID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/research: loading author of %s: %w", id, err)
	}
	return &ResearchDetail{Submission: sub, Issue: issue, Category: cat, Author: author}, nil
}

type ResearchQuery struct {
	IssueID    string
	CategoryID string // every issue of the category
	UserID     string
	Sort       string // SortNewest or SortStars
	Limit      int
	Offset     int
}

// List filters submissions. A category matches every submission under any
// of its issues.
func (s *ResearchService) List(ctx context.Context, q ResearchQuery) ([]model.Submission, error) {
	filter := repository.SubmissionFilter{IssueID: q.IssueID, CategoryID: q.CategoryID, UserID: q.UserID}
	subs, err := s.submissions.ListSubmissions(ctx, filter, listOptions(q.Sort, q.Limit, q.Offset))
	if err != nil {
		return nil, fmt.Errorf("service/research: listing submissions: %w", err)
	}
	return subs, nil
}
