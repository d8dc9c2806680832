package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// CatalogService serves the read side of categories.
type CatalogService struct {
	categories repository.CategoryRepository
	issues     repository.IssueRepository
}

func NewCatalogService(categories repository.CategoryRepository, issues repository.IssueRepository) *CatalogService {
	return &CatalogService{categories: categories, issues: issues}
}

// CategoryView is a category page: the category plus its issues.
type CategoryView struct {
	Category *model.Category `json:"category"`
	Issues   []model.Issue   `json:"issues"`
}

// ListCategories returns every category ordered by name.
func (s *CatalogService) ListCategories(ctx context.Context) ([]model.Category, error) {
	cats, err := s.categories.ListCategories(ctx, repository.ListOptions{
		OrderBy: "name",
		Limit:   repository.MaxListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("service/catalog: listing categories: %w", err)
	}
	return cats, nil
}

// Category looks a category up by short code ("wtr" and "WTR" both match)
// and lists all of its issues, newest first.
func (s *CatalogService) Category(ctx context.Context, code string) (*CategoryView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.MissingField("code")
	}
	cat, err := s.categories.GetCategoryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	issues, err := s.allIssues(ctx, cat)
	if err != nil {
		return nil, err
	}
	return &CategoryView{Category: cat, Issues: issues}, nil
}

// Picker returns every category with all of its issues, for the category
// and issue selects of the submission form.
func (s *CatalogService) Picker(ctx context.Context) ([]CategoryView, error) {
	cats, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]CategoryView, 0, len(cats))
	for i := range cats {
		issues, err := s.allIssues(ctx, &cats[i])
		if err != nil {
			return nil, err
		}
		views = append(views, CategoryView{Category: &cats[i], Issues: issues})
	}
	return views, nil
}

// allIssues pages through a category's issues until a short page.
func (s *CatalogService) allIssues(ctx context.Context, cat *model.Category) ([]model.Issue, error) {
	issues := []model.Issue{}
	opts := repository.ListOptions{OrderBy: "created_at", Desc: true, Limit: repository.MaxListLimit}
	for {
		page, err := s.issues.ListIssues(ctx, repository.IssueFilter{CategoryID: cat.ID}, opts)
		if err != nil {
			return nil, fmt.Errorf("service/catalog: listing issues of %s: %w", cat.ShortCode, err)
		}
		issues = append(issues, page...)
		if len(page) < opts.Limit {
			return issues, nil
		}
		opts.Offset += len(page)
	}
}
