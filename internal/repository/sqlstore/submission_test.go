package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

func TestSubmissions_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u1", "u1@example.com")
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")

	created := createTestSubmission(t, db, user.ID, issue.ID)

	got, err := db.GetSubmission(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "water" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.AIScore != nil {
		t.Errorf("AIScore = %v, want nil", *got.AIScore)
	}

	score := 0.87
	scored := &model.Submission{Title: "Scored", Summary: "s", IssueID: issue.ID, UserID: user.ID, DocumentURL: "u", AIScore: &score}
	if err := db.CreateSubmission(ctx, scored); err != nil {
		t.Fatalf("CreateSubmission() error = %v", err)
	}
	got, err = db.GetSubmission(ctx, scored.ID)
	if err != nil {
		t.Fatalf("GetSubmission() error = %v", err)
	}
	if got.AIScore == nil || *got.AIScore != score {
		t.Errorf("AIScore = %v, want %v", got.AIScore, score)
	}
	if got.Tags == nil {
		t.Error("Tags should be an empty list, not nil")
	}

	if _, err := db.GetSubmission(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetSubmission(missing) error = %v, want ErrNotFound", err)
	}
}

func TestCreateSubmission_UnknownUser(t *testing.T) {
	db := newTestDB(t)
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")

	err := db.CreateSubmission(context.Background(), &model.Submission{
		Title: "t", Summary: "s", IssueID: issue.ID, UserID: "ghost", DocumentURL: "u",
	})
	if !errors.Is(err, apperror.ErrConstraint) {
		t.Errorf("CreateSubmission() error = %v, want ErrConstraint", err)
	}
}

func TestListSubmissions_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "alice@example.com")
	bob := createTestUser(t, db, "bob", "bob@example.com")
	wtr := createTestCategory(t, db, "WTR")
	i1 := createTestIssue(t, db, wtr.ID, "WTR001")
	i2 := createTestIssue(t, db, wtr.ID, "WTR002")
	i3 := createTestIssue(t, db, wtr.ID, "WTR003")
	clm := createTestCategory(t, db, "CLM")
	c1 := createTestIssue(t, db, clm.ID, "CLM001")
	empty := createTestCategory(t, db, "OCN")

	createTestSubmission(t, db, alice.ID, i1.ID)
	createTestSubmission(t, db, alice.ID, i2.ID)
	createTestSubmission(t, db, bob.ID, i3.ID)
	createTestSubmission(t, db, bob.ID, c1.ID)

	tests := []struct {
		name   string
		filter repository.SubmissionFilter
		want   int
	}{
		{"no filter", repository.SubmissionFilter{}, 4},
		{"by user", repository.SubmissionFilter{UserID: alice.ID}, 2},
		{"by issue", repository.SubmissionFilter{IssueID: i3.ID}, 1},
		{"by category", repository.SubmissionFilter{CategoryID: wtr.ID}, 3},
		{"category and user", repository.SubmissionFilter{CategoryID: wtr.ID, UserID: bob.ID}, 1},
		{"other category", repository.SubmissionFilter{CategoryID: clm.ID}, 1},
		{"category without issues", repository.SubmissionFilter{CategoryID: empty.ID}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := db.ListSubmissions(ctx, tt.filter, repository.ListOptions{})
			if err != nil {
				t.Fatalf("ListSubmissions() error = %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("ListSubmissions() returned %d, want %d", len(list), tt.want)
			}

			n, err := db.CountSubmissions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountSubmissions() error = %v", err)
			}
			if n != tt.want {
				t.Errorf("CountSubmissions() = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestListSubmissions_CategoryWithManyIssues(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u1", "u1@example.com")
	wtr := createTestCategory(t, db, "WTR")

	var last *model.Issue
	for i := range repository.MaxListLimit + 5 {
		last = createTestIssue(t, db, wtr.ID, fmt.Sprintf("WTR%03d", i+1))
	}
	first, err := db.ListIssues(ctx, repository.IssueFilter{CategoryID: wtr.ID}, repository.ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	createTestSubmission(t, db, user.ID, first[0].ID)
	createTestSubmission(t, db, user.ID, last.ID)

	list, err := db.ListSubmissions(ctx, repository.SubmissionFilter{CategoryID: wtr.ID}, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListSubmissions(category) returned %d, want 2", len(list))
	}
}

func TestListSubmissions_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u1", "u1@example.com")
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")

	first := createTestSubmission(t, db, user.ID, issue.ID)
	time.Sleep(2 * time.Millisecond)
	second := createTestSubmission(t, db, user.ID, issue.ID)

	list, err := db.ListSubmissions(ctx, repository.SubmissionFilter{}, repository.ListOptions{OrderBy: "created_at", Desc: true, Limit: 1})
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("newest = %+v, want %s (not %s)", list, second.ID, first.ID)
	}
}

func TestIncrementSubmissionStars(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u1", "u1@example.com")
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")
	s := createTestSubmission(t, db, user.ID, issue.ID)

	got, err := db.IncrementSubmissionStars(ctx, s.ID)
	if err != nil || got != 1 {
		t.Errorf("IncrementSubmissionStars() = %d, %v; want 1", got, err)
	}
	if _, err := db.IncrementSubmissionStars(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("IncrementSubmissionStars(missing) error = %v, want ErrNotFound", err)
	}
}
