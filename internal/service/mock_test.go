package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// memStore implements every repository interface in memory. It keeps just
// enough behaviour for the services: NotFound on misses, unique issue codes,
// atomic counters and newest-first listing. The mutex matters because the
// dashboard reads concurrently.

type memStore struct {
	mu          sync.Mutex
	seq         int
	users       map[string]*model.User
	categories  map[string]*model.Category
	issues      map[string]*model.Issue
	submissions map[string]*model.Submission
	ratings     map[string]*model.Rating // key: user|submission
	pledges     []model.Pledge
	theories    []model.SavedTheory
	rows        []model.LeaderboardRow

	upserts int
	failOn  map[string]error // method name → error to return
}

var (
	_ repository.UserRepository       = (*memStore)(nil)
	_ repository.CategoryRepository   = (*memStore)(nil)
	_ repository.IssueRepository      = (*memStore)(nil)
	_ repository.SubmissionRepository = (*memStore)(nil)
	_ repository.EngagementRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]*model.User),
		categories:  make(map[string]*model.Category),
		issues:      make(map[string]*model.Issue),
		submissions: make(map[string]*model.Submission),
		ratings:     make(map[string]*model.Rating),
		failOn:      make(map[string]error),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (m *memStore) tick() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Second)
}

func (m *memStore) fail(method string) error {
	return m.failOn[method]
}

// --- users ---

func (m *memStore) UpsertUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertUser"); err != nil {
		return err
	}
	m.upserts++
	stored := *u
	if prev, ok := m.users[u.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = m.tick()
	}
	m.users[u.ID] = &stored
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

// --- categories ---

func (m *memStore) ListCategories(_ context.Context, _ repository.ListOptions) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetCategoryByID(_ context.Context, id string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, apperror.NotFound("category", id)
	}
	out := *c
	return &out, nil
}

func (m *memStore) GetCategoryByCode(_ context.Context, code string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if strings.EqualFold(c.ShortCode, code) {
			out := *c
			return &out, nil
		}
	}
	return nil, apperror.NotFound("category", code)
}

func (m *memStore) CreateCategory(_ context.Context, c *model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID("cat")
	stored := *c
	m.categories[c.ID] = &stored
	return nil
}

// --- issues ---

func (m *memStore) ListIssues(_ context.Context, f repository.IssueFilter, opts repository.ListOptions) ([]model.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Issue
	for _, i := range m.issues {
		if f.CategoryID == "" || i.CategoryID == f.CategoryID {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if opts.OrderBy == "stars" {
			return out[a].Stars > out[b].Stars
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return page(out, opts), nil
}

// page applies Offset and Limit the way the SQL store does.
func page[T any](items []T, opts repository.ListOptions) []T {
	if opts.Offset >= len(items) {
		return items[:0]
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func (m *memStore) GetIssue(_ context.Context, id string) (*model.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issues[id]
	if !ok {
		return nil, apperror.NotFound("planetary issue", id)
	}
	out := *i
	return &out, nil
}

func (m *memStore) CountIssues(_ context.Context, f repository.IssueFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, i := range m.issues {
		if f.CategoryID == "" || i.CategoryID == f.CategoryID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateIssue(_ context.Context, issue *model.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.issues {
		if existing.UniqueCode == issue.UniqueCode {
			return apperror.ConstraintViolation("planetary issue",
				fmt.Errorf("duplicate unique_code %s", issue.UniqueCode))
		}
	}
	issue.ID = m.nextID("iss")
	issue.CreatedAt = m.tick()
	stored := *issue
	m.issues[issue.ID] = &stored
	return nil
}

func (m *memStore) IncrementIssueStars(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issues[id]
	if !ok {
		return 0, apperror.NotFound("planetary issue", id)
	}
	i.Stars++
	return i.Stars, nil
}

func (m *memStore) AddPledge(_ context.Context, p *model.Pledge) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.issues[p.IssueID]
	if !ok {
		return 0, apperror.NotFound("planetary issue", p.IssueID)
	}
	p.ID = m.nextID("pledge")
	m.pledges = append(m.pledges, *p)
	i.Pledges++
	return i.Pledges, nil
}

// --- submissions ---

func (m *memStore) ListSubmissions(_ context.Context, f repository.SubmissionFilter, opts repository.ListOptions) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Submission{}
	for _, s := range m.submissions {
		if f.IssueID != "" && s.IssueID != f.IssueID {
			continue
		}
		if f.CategoryID != "" {
			if i, ok := m.issues[s.IssueID]; !ok || i.CategoryID != f.CategoryID {
				continue
			}
		}
		if f.UserID != "" && s.UserID != f.UserID {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memStore) GetSubmission(_ context.Context, id string) (*model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, apperror.NotFound("research submission", id)
	}
	out := *s
	return &out, nil
}

func (m *memStore) CountSubmissions(ctx context.Context, f repository.SubmissionFilter) (int, error) {
	if err := m.fail("CountSubmissions"); err != nil {
		return 0, err
	}
	subs, err := m.ListSubmissions(ctx, f, repository.ListOptions{})
	return len(subs), err
}

func (m *memStore) CreateSubmission(_ context.Context, s *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.nextID("sub")
	s.CreatedAt = m.tick()
	stored := *s
	m.submissions[s.ID] = &stored
	return nil
}

func (m *memStore) IncrementSubmissionStars(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return 0, apperror.NotFound("research submission", id)
	}
	s.Stars++
	return s.Stars, nil
}

// --- engagement ---

func (m *memStore) UpsertRating(_ context.Context, r *model.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.UserID + "|" + r.SubmissionID
	if prev, ok := m.ratings[key]; ok {
		r.ID = prev.ID
	} else {
		r.ID = m.nextID("rating")
	}
	stored := *r
	m.ratings[key] = &stored
	return nil
}

func (m *memStore) CountRatingsByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.ratings {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountPledgesByUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.pledges {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListSavedTheories(_ context.Context, userID string, _ repository.ListOptions) ([]model.SavedTheory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.SavedTheory{}
	for _, t := range m.theories {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) Leaderboard(_ context.Context, _ time.Time) ([]model.LeaderboardRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.rows), nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	ada = model.Session{UserID: "u-ada", Email: "ada@example.com", FullName: "Ada Lovelace"}
	bob = model.Session{UserID: "u-bob", Email: "bob@example.com"}
)

func seedCategory(t *testing.T, m *memStore, name, code string) *model.Category {
	t.Helper()
	c := &model.Category{Name: name, ShortCode: code}
	if err := m.CreateCategory(context.Background(), c); err != nil {
		t.Fatalf("seeding category: %v", err)
	}
	return c
}
