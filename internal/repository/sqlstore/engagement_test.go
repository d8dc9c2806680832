package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

func TestUpsertRating_ReplacesValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	author := createTestUser(t, db, "author", "author@example.com")
	rater := createTestUser(t, db, "rater", "rater@example.com")
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")
	s := createTestSubmission(t, db, author.ID, issue.ID)

	first := &model.Rating{UserID: rater.ID, SubmissionID: s.ID, Value: 2}
	if err := db.UpsertRating(ctx, first); err != nil {
		t.Fatalf("UpsertRating() error = %v", err)
	}
	second := &model.Rating{UserID: rater.ID, SubmissionID: s.ID, Value: 5}
	if err := db.UpsertRating(ctx, second); err != nil {
		t.Fatalf("second UpsertRating() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-rating created a new row: %s != %s", second.ID, first.ID)
	}
	if second.Value != 5 {
		t.Errorf("Value = %d, want 5", second.Value)
	}
	n, err := db.CountRatingsByUser(ctx, rater.ID)
	if err != nil || n != 1 {
		t.Errorf("CountRatingsByUser() = %d, %v; want 1", n, err)
	}
}

func TestUpsertRating_OutOfRange(t *testing.T) {
	db := newTestDB(t)
	for _, v := range []int{0, 6} {
		err := db.UpsertRating(context.Background(), &model.Rating{UserID: "u", SubmissionID: "s", Value: v})
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("UpsertRating(%d) error = %v, want ErrValidation", v, err)
		}
	}
}

func TestListSavedTheories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "u1", "u1@example.com")
	createTestUser(t, db, "u2", "u2@example.com")

	now := time.Now().UTC()
	for i, row := range []struct{ id, user, title string }{
		{"t1", "u1", "Orbital mirrors"},
		{"t2", "u1", "Kelp carbon sinks"},
		{"t3", "u2", "Not mine"},
	} {
		if _, err := db.conn.Exec(
			`INSERT INTO saved_theories (id, user_id, title, author, created_at) VALUES (?, ?, ?, ?, ?)`,
			row.id, row.user, row.title, "someone", now.Add(time.Duration(i)*time.Second),
		); err != nil {
			t.Fatalf("inserting saved theory: %v", err)
		}
	}

	list, err := db.ListSavedTheories(ctx, user.ID, repository.ListOptions{OrderBy: "created_at", Desc: true})
	if err != nil {
		t.Fatalf("ListSavedTheories() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "t2" {
		t.Errorf("ListSavedTheories() = %+v", list)
	}
	if list[0].SubmissionID != nil {
		t.Errorf("SubmissionID = %v, want nil", *list[0].SubmissionID)
	}
}

func TestLeaderboard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice", "alice@example.com")
	bob := createTestUser(t, db, "bob", "bob@example.com")
	createTestUser(t, db, "idle", "idle@example.com")
	wtr := createTestCategory(t, db, "WTR")
	issue := createTestIssue(t, db, wtr.ID, "WTR001")

	s := createTestSubmission(t, db, alice.ID, issue.ID)
	if err := db.UpsertRating(ctx, &model.Rating{UserID: bob.ID, SubmissionID: s.ID, Value: 4}); err != nil {
		t.Fatalf("UpsertRating() error = %v", err)
	}
	if _, err := db.AddPledge(ctx, &model.Pledge{UserID: bob.ID, IssueID: issue.ID}); err != nil {
		t.Fatalf("AddPledge() error = %v", err)
	}

	rows, err := db.Leaderboard(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Leaderboard() returned %d rows, want 2 (idle user excluded): %+v", len(rows), rows)
	}

	byID := map[string]model.LeaderboardRow{}
	for _, r := range rows {
		byID[r.UserID] = r
	}

	a := byID["alice"]
	if a.Submissions != 1 || a.Ratings != 0 || a.Pledges != 0 {
		t.Errorf("alice counts = %+v", a)
	}
	if a.CommunityRating == nil || *a.CommunityRating != 4 {
		t.Errorf("alice community rating = %v, want 4", a.CommunityRating)
	}

	b := byID["bob"]
	if b.Submissions != 0 || b.Ratings != 1 || b.Pledges != 1 {
		t.Errorf("bob counts = %+v", b)
	}
	if b.CommunityRating != nil {
		t.Errorf("bob community rating = %v, want nil", *b.CommunityRating)
	}

	future, err := db.Leaderboard(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Leaderboard(future) error = %v", err)
	}
	if len(future) != 0 {
		t.Errorf("Leaderboard(future) = %+v, want empty", future)
	}
}

func TestMagicLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	link := &repository.MagicLink{Email: "ada@example.com", SecretHash: "hash", ExpiresAt: time.Now().Add(15 * time.Minute)}
	if err := db.CreateMagicLink(ctx, link); err != nil {
		t.Fatalf("CreateMagicLink() error = %v", err)
	}

	got, err := db.GetMagicLink(ctx, link.ID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if got.Email != "ada@example.com" || got.UsedAt != nil {
		t.Errorf("GetMagicLink() = %+v", got)
	}

	ok, err := db.ConsumeMagicLink(ctx, link.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("first ConsumeMagicLink() = %v, %v; want true", ok, err)
	}
	ok, err = db.ConsumeMagicLink(ctx, link.ID, time.Now())
	if err != nil || ok {
		t.Errorf("second ConsumeMagicLink() = %v, %v; want false", ok, err)
	}

	if _, err := db.GetMagicLink(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetMagicLink(missing) error = %v, want ErrNotFound", err)
	}
}
