package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

const (
	dashboardMissions      = 10
	dashboardSavedTheories = 20
	DefaultLeaderboardSize = 10
)

// Leaderboard windows.
const (
	WindowWeek  = "week"
	WindowMonth = "month"
	WindowAll   = "all"
)

// DashboardService builds the personal dashboard and the leaderboard.
type DashboardService struct {
	users       *UserService
	submissions repository.SubmissionRepository
	engagement  repository.EngagementRepository
	weights     model.ImpactWeights
	now         func() time.Time
}

func NewDashboardService(
	users *UserService,
	submissions repository.SubmissionRepository,
	engagement repository.EngagementRepository,
	weights model.ImpactWeights,
) *DashboardService {
	return &DashboardService{
		users:       users,
		submissions: submissions,
		engagement:  engagement,
		weights:     weights,
		now:         time.Now,
	}
}

// Dashboard assembles the "My Space" view. The profile, the three counters
// and the two lists are independent reads, so they run concurrently; the
// first failure cancels the rest.
func (s *DashboardService) Dashboard(ctx context.Context, session model.Session) (*model.Dashboard, error) {
	if err := requireSession(session, "view your dashboard"); err != nil {
		return nil, err
	}
	if _, err := s.users.EnsureUser(ctx, session); err != nil {
		return nil, err
	}

	d := &model.Dashboard{}
	var submissions, ratings, pledges int
	own := repository.SubmissionFilter{UserID: session.UserID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.User, err = s.users.Get(gctx, session.UserID)
		return err
	})
	g.Go(func() (err error) {
		submissions, err = s.submissions.CountSubmissions(gctx, own)
		return err
	})
	g.Go(func() (err error) {
		ratings, err = s.engagement.CountRatingsByUser(gctx, session.UserID)
		return err
	})
	g.Go(func() (err error) {
		pledges, err = s.engagement.CountPledgesByUser(gctx, session.UserID)
		return err
	})
	g.Go(func() (err error) {
		d.Missions, err = s.submissions.ListSubmissions(gctx, own, repository.ListOptions{
			OrderBy: "created_at", Desc: true, Limit: dashboardMissions,
		})
		return err
	})
	g.Go(func() (err error) {
		d.SavedTheories, err = s.engagement.ListSavedTheories(gctx, session.UserID, repository.ListOptions{
			OrderBy: "created_at", Desc: true, Limit: dashboardSavedTheories,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("service/dashboard: loading dashboard of %s: %w", session.UserID, err)
	}

	d.Stats = model.ActivityCounts{
		Submissions: int64(submissions),
		Ratings:     int64(ratings),
		Pledges:     int64(pledges),
	}
	d.ImpactScore = s.weights.Score(d.Stats.Submissions, d.Stats.Ratings, d.Stats.Pledges)
	return d, nil
}

// SavedTheories lists the session user's bookmarks, newest first.
func (s *DashboardService) SavedTheories(ctx context.Context, session model.Session, limit, offset int) ([]model.SavedTheory, error) {
	if err := requireSession(session, "view saved theories"); err != nil {
		return nil, err
	}
	theories, err := s.engagement.ListSavedTheories(ctx, session.UserID, repository.ListOptions{
		OrderBy: "created_at", Desc: true, Limit: limit, Offset: offset,
	}.Normalize())
	if err != nil {
		return nil, fmt.Errorf("service/dashboard: listing saved theories: %w", err)
	}
	return theories, nil
}

// since maps a window name to the earliest activity time it counts.
func (s *DashboardService) since(window string) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(window)) {
	case "", WindowAll:
		return time.Time{}, nil
	case WindowWeek:
		return s.now().UTC().AddDate(0, 0, -7), nil
	case WindowMonth:
		return s.now().UTC().AddDate(0, -1, 0), nil
	}
	return time.Time{}, apperror.ValidationFailed("window",
		fmt.Sprintf("window must be %s, %s or %s", WindowWeek, WindowMonth, WindowAll))
}

// Leaderboard ranks users by impact score within the window, highest first,
// ties broken by name. Users with no activity in the window are left out.
func (s *DashboardService) Leaderboard(ctx context.Context, window string, limit int) ([]model.LeaderboardEntry, error) {
	since, err := s.since(window)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	limit = min(limit, repository.MaxListLimit)

	rows, err := s.engagement.Leaderboard(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("service/dashboard: aggregating leaderboard: %w", err)
	}

	entries := make([]model.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, model.LeaderboardEntry{
			UserID:          row.UserID,
			Name:            row.Name,
			Username:        row.Username,
			ImpactScore:     s.weights.Score(row.Submissions, row.Ratings, row.Pledges),
			CommunityRating: row.CommunityRating,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.UserID < b.UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

