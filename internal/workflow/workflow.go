// Package workflow runs research submissions from upload to stored record.
//
// Each attempt is a draft, a small state machine owned by one user:
//
//	idle ──Upload──▶ uploading ──▶ uploaded ──Score──▶ scoring ──▶ scored
//	  ▲                  │                                │
//	  └──── store error ─┘                                └──▶ scoring_failed (retry Score)
//
//	uploaded | scored | scoring_failed | submit_failed ──Submit──▶ submitting ──▶ submitted
//	                                                                    └──▶ submit_failed
//
// Drafts live in memory. They are small (metadata plus the document bytes
// kept for scoring), short-lived, and meaningless after a restart because the
// browser form that drives them is gone too. A janitor drops idle drafts.
//
// CONCURRENCY:
//   - the registry map has its own mutex; each draft has another
//   - "uploading" and "submitting" are busy states: a second mutating call
//     gets apperror.ErrConflict instead of racing the first
//   - concurrent Score calls for one draft share a single scoring request
//     (singleflight keyed by draft ID)
//   - uploads and scoring run on a context detached from the caller, bounded
//     by their own timeouts, so a closed browser tab does not abort them
package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
	"github.com/sakif/planet-hub/internal/scoring"
	"github.com/sakif/planet-hub/internal/storage"
)

type State string

const (
	Idle          State = "idle"
	Uploading     State = "uploading"
	Uploaded      State = "uploaded"
	Scoring       State = "scoring"
	Scored        State = "scored"
	ScoringFailed State = "scoring_failed"
	Submitting    State = "submitting"
	Submitted     State = "submitted"
	SubmitFailed  State = "submit_failed"
)

// busy reports whether a mutating call must be turned away.
func (s State) busy() bool {
	return s == Uploading || s == Submitting
}

// UserEnsurer creates the user row for a session if it is missing.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, session model.Session) (*model.User, error)
}

// Deps are the collaborators of the Engine.
type Deps struct {
	Store       storage.Store
	Scorer      scoring.Scorer
	Categories  repository.CategoryRepository
	Issues      repository.IssueRepository
	Submissions repository.SubmissionRepository
	Users       UserEnsurer
}

// Options tune limits and timeouts. Zero values take the defaults.
type Options struct {
	AllowedExtensions []string      // default ["pdf"]
	MaxDocumentBytes  int64         // default 20 MiB
	UploadTimeout     time.Duration // default 60s
	ScoringTimeout    time.Duration // default 30s
	DraftTTL          time.Duration // default 1h of inactivity
	SweepInterval     time.Duration // default 1m
	MaxDraftsPerUser  int           // default 3 open drafts per owner
	MaxRetainedBytes  int64         // default 256 MiB of documents held for scoring
}

func (o Options) withDefaults() Options {
	if len(o.AllowedExtensions) == 0 {
		o.AllowedExtensions = []string{"pdf"}
	}
	o.AllowedExtensions = slices.Clone(o.AllowedExtensions)
	for i, ext := range o.AllowedExtensions {
		o.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = 20 << 20
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 60 * time.Second
	}
	if o.ScoringTimeout <= 0 {
		o.ScoringTimeout = 30 * time.Second
	}
	if o.DraftTTL <= 0 {
		o.DraftTTL = time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.MaxDraftsPerUser <= 0 {
		o.MaxDraftsPerUser = 3
	}
	if o.MaxRetainedBytes <= 0 {
		o.MaxRetainedBytes = 256 << 20
	}
	return o
}

// Document is an uploaded file as received from the form.
type Document struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Form is the metadata typed into the submission form.
type Form struct {
	Title      string `json:"title"`
	Summary    string `json:"summary"`
	Tags       string `json:"tags"` // comma separated
	CategoryID string `json:"categoryId"`
	IssueID    string `json:"issueId"`
}

// SubmitOptions carries the user's answers to confirmation prompts.
type SubmitOptions struct {
	// AllowUnscored confirms submitting without an AI score.
	AllowUnscored bool `json:"allowUnscored"`
}

// Snapshot is the externally visible state of a draft.
type Snapshot struct {
	ID           string    `json:"id"`
	State        State     `json:"state"`
	Filename     string    `json:"filename,omitempty"`
	DocumentURL  string    `json:"documentUrl,omitempty"`
	Score        *float64  `json:"score"`
	Prediction   string    `json:"prediction,omitempty"`
	Confidence   string    `json:"confidence,omitempty"`
	ScoringError string    `json:"scoringError,omitempty"`
	SubmitError  string    `json:"submitError,omitempty"`
	SubmissionID string    `json:"submissionId,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type draft struct {
	mu      sync.Mutex
	id      string
	ownerID string
	state   State

	filename    string
	contentType string
	content     []byte // kept until scored or submitted, for scoring retries
	documentURL string
	removed     bool // dropped from the registry; every operation sees NotFound

	result       *scoring.Result
	scoringError string
	submitError  string
	submissionID string
	updatedAt    time.Time
}

// snapshot must be called with d.mu held.
func (d *draft) snapshot() Snapshot {
	s := Snapshot{
		ID:           d.id,
		State:        d.state,
		Filename:     d.filename,
		DocumentURL:  d.documentURL,
		ScoringError: d.scoringError,
		SubmitError:  d.submitError,
		SubmissionID: d.submissionID,
		UpdatedAt:    d.updatedAt,
	}
	if d.result != nil {
		score := d.result.Score
		s.Score = &score
		s.Prediction = d.result.Prediction
		s.Confidence = d.result.Confidence
	}
	return s
}

// Engine owns the draft registry.
type Engine struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	drafts  map[string]*draft
	lastKey int64 // last storage key timestamp handed out, in ms

	// retained counts document bytes held by drafts across all owners. It is
	// atomic so drafts can release bytes without taking e.mu.
	retained atomic.Int64

	flights singleflight.Group
}

func NewEngine(deps Deps, opts Options, logger *slog.Logger) *Engine {
	return &Engine{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
		drafts: make(map[string]*draft),
	}
}

// Start opens a new draft in idle for the session's user.
//
// An owner holds at most MaxDraftsPerUser drafts. Opening one more evicts
// the owner's least recently touched draft that is not busy or scoring; when
// every draft is mid-operation the call fails with a conflict.
func (e *Engine) Start(session model.Session) (Snapshot, error) {
	if !session.Valid() {
		return Snapshot{}, apperror.Unauthorized("sign in to submit research")
	}
	d := &draft{
		id:        xid.New().String(),
		ownerID:   session.UserID,
		state:     Idle,
		updatedAt: e.now(),
	}

	snap := d.snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	var owned []*draft
	for _, other := range e.drafts {
		if other.ownerID == session.UserID {
			owned = append(owned, other)
		}
	}
	if len(owned) >= e.opts.MaxDraftsPerUser {
		victim := e.oldestIdle(owned)
		if victim == nil {
			return Snapshot{}, apperror.LimitReached(fmt.Sprintf(
				"you already have %d drafts in progress; wait for one to finish", len(owned)))
		}
		e.logger.Info("draft evicted",
			slog.String("draftID", victim.id),
			slog.String("userID", session.UserID),
		)
	}
	e.drafts[d.id] = d

	return snap, nil
}

// oldestIdle removes and returns the least recently touched draft that no
// operation is using, or nil. Must be called with e.mu held.
func (e *Engine) oldestIdle(drafts []*draft) *draft {
	var victim *draft
	var victimAt time.Time
	for _, d := range drafts {
		d.mu.Lock()
		free := !d.state.busy() && d.state != Scoring
		at := d.updatedAt
		d.mu.Unlock()
		if free && (victim == nil || at.Before(victimAt)) {
			victim, victimAt = d, at
		}
	}
	if victim != nil {
		victim.mu.Lock()
		e.removeLocked(victim)
		victim.mu.Unlock()
	}
	return victim
}

// removeLocked drops d from the registry and frees its document bytes.
// Must be called with e.mu and d.mu held.
func (e *Engine) removeLocked(d *draft) {
	delete(e.drafts, d.id)
	d.removed = true
	e.dropContent(d)
}

// dropContent frees the retained document. Must be called with d.mu held.
func (e *Engine) dropContent(d *draft) {
	e.retained.Add(-int64(len(d.content)))
	d.content = nil
}

// reserve claims n bytes of the retained-document budget.
func (e *Engine) reserve(n int64) bool {
	for {
		cur := e.retained.Load()
		if cur+n > e.opts.MaxRetainedBytes {
			return false
		}
		if e.retained.CompareAndSwap(cur, cur+n) {
			return true
		}
	}
}

// Retained is the number of document bytes currently held in memory.
func (e *Engine) Retained() int64 {
	return e.retained.Load()
}

// Get returns the draft's current state.
func (e *Engine) Get(session model.Session, id string) (Snapshot, error) {
	d, err := e.lookup(session, id)
	if err != nil {
		return Snapshot{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot(), nil
}

// Discard drops a draft. Busy drafts cannot be discarded.
func (e *Engine) Discard(session model.Session, id string) error {
	d, err := e.lookup(session, id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return apperror.NotFound("draft", id)
	}
	if d.state.busy() {
		return apperror.Busy("draft", id, string(d.state))
	}
	e.removeLocked(d)
	return nil
}

func (e *Engine) lookup(session model.Session, id string) (*draft, error) {
	if !session.Valid() {
		return nil, apperror.Unauthorized("sign in to submit research")
	}
	e.mu.Lock()
	d, ok := e.drafts[id]
	e.mu.Unlock()
	if !ok {
		return nil, apperror.NotFound("draft", id)
	}
	if d.ownerID != session.UserID {
		return nil, apperror.Forbidden("this draft belongs to another user")
	}
	return d, nil
}

// =========================================================================
// UPLOAD
// =========================================================================

// Upload stores the document and moves the draft to uploaded. A later
// Upload replaces the document and clears any previous score.
func (e *Engine) Upload(ctx context.Context, session model.Session, id string, doc Document) (Snapshot, error) {
	d, err := e.lookup(session, id)
	if err != nil {
		return Snapshot{}, err
	}

	content, ext, err := e.readDocument(doc)
	if err != nil {
		return Snapshot{}, err
	}

	d.mu.Lock()
	switch {
	case d.removed:
		d.mu.Unlock()
		return Snapshot{}, apperror.NotFound("draft", id)
	case d.state == Uploading, d.state == Submitting, d.state == Scoring:
		state := d.state
		d.mu.Unlock()
		return Snapshot{}, apperror.Busy("draft", id, string(state))
	case d.state == Submitted:
		d.mu.Unlock()
		return Snapshot{}, apperror.Conflict("draft", id)
	}
	if !e.reserve(int64(len(content))) {
		d.mu.Unlock()
		e.logger.Warn("document memory budget exhausted",
			slog.String("draftID", id),
			slog.Int64("retained", e.retained.Load()),
		)
		return Snapshot{}, apperror.LimitReached("the server is busy with other uploads; try again shortly")
	}
	d.state = Uploading
	d.updatedAt = e.now()
	d.mu.Unlock()

	key := e.nextKey(ext)
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.UploadTimeout)
	defer cancel()
	obj, putErr := e.deps.Store.Put(putCtx, key, doc.ContentType, bytes.NewReader(content))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.updatedAt = e.now()
	d.result = nil
	d.scoringError = ""
	d.submitError = ""

	e.dropContent(d)
	if putErr != nil {
		e.retained.Add(-int64(len(content)))
		d.state = Idle
		d.filename, d.contentType, d.documentURL = "", "", ""
		e.logger.Error("document upload failed",
			slog.String("draftID", id),
			slog.String("key", key),
			slog.String("error", putErr.Error()),
		)
		return d.snapshot(), apperror.Upload(putErr)
	}

	d.state = Uploaded
	d.filename = doc.Filename
	d.contentType = doc.ContentType
	d.content = content
	d.documentURL = obj.URL
	e.logger.Info("document uploaded",
		slog.String("draftID", id),
		slog.String("key", obj.Key),
		slog.Int64("size", obj.Size),
	)
	return d.snapshot(), nil
}

// readDocument enforces presence, extension and size before anything is
// written, and returns the body plus its lower-cased extension.
func (e *Engine) readDocument(doc Document) ([]byte, string, error) {
	if doc.Body == nil || strings.TrimSpace(doc.Filename) == "" {
		return nil, "", apperror.NoFileSelected()
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(doc.Filename), "."))
	if !slices.Contains(e.opts.AllowedExtensions, ext) {
		return nil, "", apperror.ValidationFailed("file",
			fmt.Sprintf("only %s files are accepted", strings.Join(e.opts.AllowedExtensions, ", ")))
	}

	// Read one byte past the limit to tell "exactly max" from "too big".
	content, err := io.ReadAll(io.LimitReader(doc.Body, e.opts.MaxDocumentBytes+1))
	if err != nil {
		return nil, "", apperror.Upload(err)
	}
	if len(content) == 0 {
		return nil, "", apperror.NoFileSelected()
	}
	if int64(len(content)) > e.opts.MaxDocumentBytes {
		return nil, "", apperror.ValidationFailed("file",
			fmt.Sprintf("file is larger than %d bytes", e.opts.MaxDocumentBytes))
	}
	return content, ext, nil
}

// nextKey returns research_docs/{unix-millis}.{ext}. The timestamp is bumped
// when two uploads land in the same millisecond, so keys never collide
// within this process.
func (e *Engine) nextKey(ext string) string {
	e.mu.Lock()
	ms := e.now().UnixMilli()
	if ms <= e.lastKey {
		ms = e.lastKey + 1
	}
	e.lastKey = ms
	e.mu.Unlock()
	return fmt.Sprintf("research_docs/%d.%s", ms, ext)
}

// =========================================================================
// SCORING
// =========================================================================

// Score sends the uploaded document to the scoring service. A scoring
// failure is not an error of this call: it is recorded on the draft as
// scoring_failed with the reason, and Score may be called again to retry.
func (e *Engine) Score(ctx context.Context, session model.Session, id string) (Snapshot, error) {
	d, err := e.lookup(session, id)
	if err != nil {
		return Snapshot{}, err
	}

	d.mu.Lock()
	switch d.state {
	case Uploaded, ScoringFailed:
		d.state = Scoring
		d.scoringError = ""
		d.updatedAt = e.now()
	case Scoring:
		// join the request in flight
	case Scored:
		snap := d.snapshot()
		d.mu.Unlock()
		return snap, nil
	case Idle:
		d.mu.Unlock()
		return Snapshot{}, apperror.NoFileSelected()
	case Uploading, Submitting:
		state := d.state
		d.mu.Unlock()
		return Snapshot{}, apperror.Busy("draft", id, string(state))
	default:
		d.mu.Unlock()
		return Snapshot{}, apperror.Conflict("draft", id)
	}
	d.mu.Unlock()

	e.flights.Do(id, func() (any, error) {
		e.runScoring(ctx, d)
		return nil, nil
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot(), nil
}

// runScoring performs one scoring request if the draft is still waiting for
// one. A caller that saw "scoring" but reached the flight group after the
// previous flight finished finds the result already recorded.
func (e *Engine) runScoring(ctx context.Context, d *draft) {
	d.mu.Lock()
	if d.state != Scoring {
		d.mu.Unlock()
		return
	}
	filename, content := d.filename, d.content
	d.mu.Unlock()

	scoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ScoringTimeout)
	defer cancel()
	result, err := e.deps.Scorer.Score(scoreCtx, filename, bytes.NewReader(content))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.updatedAt = e.now()
	if d.state != Scoring {
		// Discarded or re-uploaded meanwhile.
		return
	}
	if err != nil {
		d.state = ScoringFailed
		d.result = nil
		d.scoringError = err.Error()
		e.logger.Warn("document scoring failed",
			slog.String("draftID", d.id),
			slog.String("error", err.Error()),
		)
		return
	}
	d.state = Scored
	d.result = result
	e.dropContent(d)
	e.logger.Info("document scored",
		slog.String("draftID", d.id),
		slog.Float64("score", result.Score),
	)
}

// UploadAndScore uploads then scores in one call, the way the submission
// form behaves after a file is picked.
func (e *Engine) UploadAndScore(ctx context.Context, session model.Session, id string, doc Document) (Snapshot, error) {
	if _, err := e.Upload(ctx, session, id, doc); err != nil {
		return Snapshot{}, err
	}
	return e.Score(ctx, session, id)
}

// =========================================================================
// SUBMIT
// =========================================================================

// Submit validates the form against the draft and stores the submission.
//
// CHECK ORDER (the first failure is returned):
//  1. title, summary, category, issue, document present
//  2. category and issue exist, and the issue belongs to the category
//  3. an AI score exists, or opts.AllowUnscored is set
//
// A store failure leaves the draft in submit_failed with the store's message
// and may be retried.
func (e *Engine) Submit(ctx context.Context, session model.Session, id string, form Form, opts SubmitOptions) (Snapshot, error) {
	d, err := e.lookup(session, id)
	if err != nil {
		return Snapshot{}, err
	}
	form = trimForm(form)

	d.mu.Lock()
	switch d.state {
	case Uploading, Submitting, Scoring:
		state := d.state
		d.mu.Unlock()
		return Snapshot{}, apperror.Busy("draft", id, string(state))
	case Submitted:
		d.mu.Unlock()
		return Snapshot{}, apperror.Conflict("draft", id)
	}
	if err := validateForm(form, d.documentURL); err != nil {
		d.mu.Unlock()
		return Snapshot{}, err
	}
	previous := d.state
	d.state = Submitting
	d.updatedAt = e.now()
	documentURL := d.documentURL
	var score *float64
	if d.result != nil {
		s := d.result.Score
		score = &s
	}
	d.mu.Unlock()

	// From here on the draft is guarded by the submitting state.
	restore := func() {
		d.mu.Lock()
		d.state = previous
		d.mu.Unlock()
	}

	if err := e.checkIssue(ctx, form); err != nil {
		restore()
		return Snapshot{}, err
	}
	if score == nil && !opts.AllowUnscored {
		restore()
		return Snapshot{}, apperror.ConfirmationRequired("this document has no AI score; confirm to submit it without one")
	}

	submission := &model.Submission{
		Title:       form.Title,
		Summary:     form.Summary,
		Tags:        model.ParseTags(form.Tags),
		IssueID:     form.IssueID,
		UserID:      session.UserID,
		DocumentURL: documentURL,
		AIScore:     score,
	}
	_, err = e.deps.Users.EnsureUser(ctx, session)
	if err == nil {
		err = e.deps.Submissions.CreateSubmission(ctx, submission)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.updatedAt = e.now()
	if err != nil {
		d.state = SubmitFailed
		d.submitError = err.Error()
		e.logger.Error("submission failed",
			slog.String("draftID", id),
			slog.String("userID", session.UserID),
			slog.String("error", err.Error()),
		)
		return d.snapshot(), apperror.SubmitFailed(err)
	}

	d.state = Submitted
	d.submitError = ""
	d.submissionID = submission.ID
	e.dropContent(d)
	e.logger.Info("research submitted",
		slog.String("draftID", id),
		slog.String("submissionID", submission.ID),
		slog.Bool("scored", score != nil),
	)
	return d.snapshot(), nil
}

func trimForm(f Form) Form {
	f.Title = strings.TrimSpace(f.Title)
	f.Summary = strings.TrimSpace(f.Summary)
	f.CategoryID = strings.TrimSpace(f.CategoryID)
	f.IssueID = strings.TrimSpace(f.IssueID)
	return f
}

// validateForm names the first missing input.
func validateForm(f Form, documentURL string) error {
	switch {
	case f.Title == "":
		return apperror.MissingField("title")
	case f.Summary == "":
		return apperror.MissingField("summary")
	case f.CategoryID == "":
		return apperror.MissingField("category")
	case f.IssueID == "":
		return apperror.MissingField("issue")
	case documentURL == "":
		return apperror.MissingField("document")
	}
	return nil
}

// checkIssue verifies the chosen issue belongs to the chosen category.
func (e *Engine) checkIssue(ctx context.Context, f Form) error {
	if _, err := e.deps.Categories.GetCategoryByID(ctx, f.CategoryID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("category", "selected category does not exist")
		}
		return fmt.Errorf("workflow: loading category %s: %w", f.CategoryID, err)
	}
	issue, err := e.deps.Issues.GetIssue(ctx, f.IssueID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("issue", "selected issue does not exist")
		}
		return fmt.Errorf("workflow: loading issue %s: %w", f.IssueID, err)
	}
	if issue.CategoryID != f.CategoryID {
		return apperror.ValidationFailed("issue", "selected issue does not belong to the selected category")
	}
	return nil
}

// =========================================================================
// JANITOR
// =========================================================================

// Run sweeps expired drafts until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.sweep(); n > 0 {
				e.logger.Debug("expired drafts removed", slog.Int("count", n))
			}
		}
	}
}

// sweep removes drafts untouched for longer than DraftTTL. Busy drafts are
// kept; their operation is bounded by its own timeout.
func (e *Engine) sweep() int {
	cutoff := e.now().Add(-e.opts.DraftTTL)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for _, d := range e.drafts {
		d.mu.Lock()
		if d.updatedAt.Before(cutoff) && !d.state.busy() && d.state != Scoring {
			e.removeLocked(d)
			removed++
		}
		d.mu.Unlock()
	}
	return removed
}

// Len is the number of live drafts.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.drafts)
}
