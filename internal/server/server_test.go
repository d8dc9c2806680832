package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/config"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/server"
)

const testSecret = "test-secret-0123456789abcdef"

var ada = model.Session{UserID: "u-ada", Email: "ada@example.com", FullName: "Ada Lovelace"}

// outbox captures sign-in emails instead of sending them.
type outbox struct {
	mu   sync.Mutex
	msgs []auth.Message
}

func (o *outbox) Send(_ context.Context, msg auth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T) auth.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs, "no email sent")
	return o.msgs[len(o.msgs)-1]
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	outbox *outbox
	cookie *http.Cookie
}

// newTestEnv runs the full server over in-memory SQLite, a temp storage
// directory and a fake scoring service answering with scoring.
func newTestEnv(t *testing.T, scoring http.HandlerFunc) *testEnv {
	t.Helper()

	scorer := httptest.NewServer(scoring)
	t.Cleanup(scorer.Close)

	cfg := config.Config{
		BaseURL:          "http://planethub.test",
		DBDriver:         "sqlite",
		DBDSN:            ":memory:",
		SeedCategories:   true,
		JWTSecret:        testSecret,
		SessionTTL:       time.Hour,
		MagicLinkTTL:     15 * time.Minute,
		StoragePath:      t.TempDir(),
		StoragePublicURL: "/media",
		ScoringURL:       scorer.URL,
		ScoringTimeout:   5 * time.Second,
		UploadTimeout:    5 * time.Second,
		MaxDocumentBytes: 1 << 20,
		DraftTTL:         time.Hour,
		ImpactWeights:    model.DefaultImpactWeights(),
	}

	box := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := server.New(cfg, logger, server.WithMailer(box))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	token, _, err := tokens.Generate(ada)
	require.NoError(t, err)

	return &testEnv{
		srv: srv,
		client: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
		outbox: box,
		cookie: &http.Cookie{Name: auth.CookieName, Value: token},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, signedIn bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if signedIn {
		req.AddCookie(e.cookie)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) *http.Response {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, bytes.NewReader(b), "application/json", true)
}

func (e *testEnv) upload(t *testing.T, draftID, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	part.Write([]byte(content))
	require.NoError(t, mw.Close())
	return e.do(t, http.MethodPost, "/api/drafts/"+draftID+"/document", &buf, mw.FormDataContentType(), true)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func scoredAt(score float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"prediction":     "promising",
			"confidence":     "high",
			"adjusted_score": score,
		})
	}
}

func failing(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "model not loaded", http.StatusInternalServerError)
}

type draftSnapshot struct {
	ID           string   `json:"id"`
	State        string   `json:"state"`
	DocumentURL  string   `json:"documentUrl"`
	Score        *float64 `json:"score"`
	ScoringError string   `json:"scoringError"`
	SubmissionID string   `json:"submissionId"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// waterIssue creates an issue in the seeded WTR category.
func (e *testEnv) waterIssue(t *testing.T, title string) (categoryID string, issue model.Issue) {
	t.Helper()
	resp := e.do(t, http.MethodGet, "/api/categories/wtr", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[struct {
		Category model.Category `json:"category"`
	}](t, resp)

	resp = e.postJSON(t, "/api/issues", map[string]string{
		"categoryId":  view.Category.ID,
		"title":       title,
		"description": "Details of " + title,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return view.Category.ID, decode[model.Issue](t, resp)
}

func TestServer_IssueCodes(t *testing.T) {
	env := newTestEnv(t, scoredAt(80))

	resp := env.do(t, http.MethodPost, "/api/issues", strings.NewReader(`{}`), "application/json", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, first := env.waterIssue(t, "Aquifer depletion")
	_, second := env.waterIssue(t, "River salinity")
	assert.Equal(t, "WTR001", first.UniqueCode)
	assert.Equal(t, "WTR002", second.UniqueCode)
	require.NotNil(t, first.AuthorID)
	assert.Equal(t, ada.UserID, *first.AuthorID)

	resp = env.do(t, http.MethodPost, "/api/issues/"+first.ID+"/star", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), decode[map[string]int64](t, resp)["stars"])
}

func TestServer_ScoredSubmission(t *testing.T) {
	env := newTestEnv(t, scoredAt(91.5))
	categoryID, issue := env.waterIssue(t, "Aquifer depletion")

	resp := env.do(t, http.MethodPost, "/api/drafts", nil, "", true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	draft := decode[draftSnapshot](t, resp)
	assert.Equal(t, "idle", draft.State)

	resp = env.upload(t, draft.ID, "recharge.pdf", "%PDF-1.4 managed aquifer recharge")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	draft = decode[draftSnapshot](t, resp)
	assert.Equal(t, "scored", draft.State)
	require.NotNil(t, draft.Score)
	assert.InDelta(t, 91.5, *draft.Score, 0.001)

	// The stored document is served back under /media.
	resp = env.do(t, http.MethodGet, draft.DocumentURL, nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "%PDF-1.4 managed aquifer recharge", string(body))

	resp = env.postJSON(t, "/api/drafts/"+draft.ID+"/submit", map[string]any{
		"title":      "Managed aquifer recharge",
		"summary":    "Storing winter floods underground.",
		"tags":       "water, storage",
		"categoryId": categoryID,
		"issueId":    issue.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	draft = decode[draftSnapshot](t, resp)
	assert.Equal(t, "submitted", draft.State)

	resp = env.do(t, http.MethodGet, "/api/research/"+draft.SubmissionID, nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[struct {
		Submission model.Submission `json:"submission"`
	}](t, resp)
	assert.Equal(t, model.Tags{"water", "storage"}, detail.Submission.Tags)
	require.NotNil(t, detail.Submission.AIScore)
	assert.InDelta(t, 91.5, *detail.Submission.AIScore, 0.001)

	resp = env.do(t, http.MethodGet, "/api/dashboard", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decode[model.Dashboard](t, resp)
	assert.Equal(t, int64(1), dash.Stats.Submissions)
	assert.Equal(t, int64(500), dash.ImpactScore)
}

func TestServer_SubmitAfterScoringFailure(t *testing.T) {
	env := newTestEnv(t, failing)
	categoryID, issue := env.waterIssue(t, "Aquifer depletion")

	resp := env.do(t, http.MethodPost, "/api/drafts", nil, "", true)
	draft := decode[draftSnapshot](t, resp)

	resp = env.upload(t, draft.ID, "paper.pdf", "%PDF-1.4")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	draft = decode[draftSnapshot](t, resp)
	assert.Equal(t, "scoring_failed", draft.State)
	assert.Contains(t, draft.ScoringError, "500")

	form := map[string]any{
		"title":      "Unscored paper",
		"summary":    "Still worth reading.",
		"categoryId": categoryID,
		"issueId":    issue.ID,
	}
	resp = env.postJSON(t, "/api/drafts/"+draft.ID+"/submit", form)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "confirmation_required", decode[apiError](t, resp).Error)

	form["allowUnscored"] = true
	resp = env.postJSON(t, "/api/drafts/"+draft.ID+"/submit", form)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	draft = decode[draftSnapshot](t, resp)
	assert.Equal(t, "submitted", draft.State)

	resp = env.do(t, http.MethodGet, "/api/research/"+draft.SubmissionID, nil, "", false)
	detail := decode[struct {
		Submission model.Submission `json:"submission"`
	}](t, resp)
	assert.Nil(t, detail.Submission.AIScore)
}

func TestServer_UploadRejections(t *testing.T) {
	env := newTestEnv(t, scoredAt(50))

	resp := env.do(t, http.MethodPost, "/api/drafts", nil, "", true)
	draft := decode[draftSnapshot](t, resp)

	resp = env.upload(t, draft.ID, "notes.txt", "plain text")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "file", decode[apiError](t, resp).Field)

	resp = env.do(t, http.MethodPost, "/api/drafts/"+draft.ID+"/document", strings.NewReader(""), "", true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_file_selected", decode[apiError](t, resp).Error)

	resp = env.do(t, http.MethodGet, "/api/drafts/unknown", nil, "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MagicLinkSignIn(t *testing.T) {
	env := newTestEnv(t, scoredAt(50))

	resp := env.do(t, http.MethodPost, "/auth/magic-link",
		strings.NewReader(`{"email":"Grace@Example.com"}`), "application/json", false)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	msg := env.outbox.last(t)
	assert.Equal(t, "grace@example.com", msg.To)

	var link string
	for _, field := range strings.Fields(msg.Body) {
		if strings.HasPrefix(field, "http://planethub.test/auth/magic-link/callback") {
			link = field
		}
	}
	require.NotEmpty(t, link, "no link in %q", msg.Body)
	u, err := url.Parse(link)
	require.NoError(t, err)

	resp = env.do(t, http.MethodGet, u.RequestURI(), nil, "", false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/myspace", resp.Header.Get("Location"))

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	env.cookie = session
	resp = env.do(t, http.MethodGet, "/api/me", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[model.User](t, resp)
	assert.Equal(t, "grace@example.com", me.Email)
	assert.Equal(t, "grace", me.Username)

	// Links work once.
	resp = env.do(t, http.MethodGet, u.RequestURI(), nil, "", false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?error=link_invalid", resp.Header.Get("Location"))
}

func TestServer_Pages(t *testing.T) {
	env := newTestEnv(t, scoredAt(50))

	tests := []struct {
		name     string
		path     string
		signedIn bool
		status   int
		contains string
	}{
		{"home lists seeded categories", "/", false, http.StatusOK, "Water Security"},
		{"unknown research", "/research/does-not-exist", false, http.StatusNotFound, "Research not found"},
		{"myspace needs a session", "/myspace", false, http.StatusSeeOther, ""},
		{"myspace", "/myspace", true, http.StatusOK, "Ada Lovelace"},
		{"launchpad needs a session", "/launchpad", false, http.StatusSeeOther, ""},
		{"launchpad", "/launchpad", true, http.StatusOK, `href="/launchpad/newissue"`},
		{"research form", "/launchpad/new", true, http.StatusOK, "Water Security"},
		{"unknown route", "/nowhere", false, http.StatusNotFound, "Page not found"},
		{"embedded static files", "/static/css/style.css", false, http.StatusOK, "--accent"},
		{"health", "/healthz", false, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, nil, "", tt.signedIn)
			assert.Equal(t, tt.status, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}
