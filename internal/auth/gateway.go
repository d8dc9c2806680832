package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// CookieName is the cookie holding the session JWT.
const CookieName = "token"

// GatewayConfig holds the values the Gateway needs from config.Config.
type GatewayConfig struct {
	BaseURL      string        // Public origin; magic links point back here
	MagicLinkTTL time.Duration // How long an emailed link stays usable
}

// Gateway is the single entry point for identity. Handlers never read
// cookies or talk to providers themselves.
//
// DEPENDENCY CHAIN:
//   - tokens    → signs and validates session JWTs
//   - hasher    → bcrypt for magic-link secrets
//   - links     → pending magic links (store)
//   - users     → resolves an email to an existing user ID
//   - mailer    → delivers magic links
//   - providers → OAuth integrations by name ("google")
type Gateway struct {
	tokens    *TokenService
	hasher    *SecretHasher
	links     repository.MagicLinkRepository
	users     repository.UserRepository
	mailer    Mailer
	providers map[string]OAuthProvider
	events    *hub
	baseURL   string
	linkTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewGateway(
	tokens *TokenService,
	hasher *SecretHasher,
	links repository.MagicLinkRepository,
	users repository.UserRepository,
	mailer Mailer,
	cfg GatewayConfig,
	logger *slog.Logger,
) *Gateway {
	ttl := cfg.MagicLinkTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Gateway{
		tokens:    tokens,
		hasher:    hasher,
		links:     links,
		users:     users,
		mailer:    mailer,
		providers: make(map[string]OAuthProvider),
		events:    newHub(logger),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		linkTTL:   ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterProvider enables OAuth sign-in through p under the given name.
// Call it during startup only.
func (g *Gateway) RegisterProvider(name string, p OAuthProvider) {
	g.providers[name] = p
}

// SessionTTL is the lifetime of issued sessions.
func (g *Gateway) SessionTTL() time.Duration {
	return g.tokens.TTL()
}

// CurrentSession returns the session carried by the request's cookie.
// A missing, expired or forged token simply means "no session".
func (g *Gateway) CurrentSession(r *http.Request) (model.Session, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return model.Session{}, false
	}
	s, err := g.tokens.Validate(cookie.Value)
	if err != nil {
		return model.Session{}, false
	}
	return s, true
}

// OnSessionChange registers fn for every sign-in and sign-out. The returned
// func removes it and is safe to call more than once.
func (g *Gateway) OnSessionChange(fn Listener) func() {
	return g.events.subscribe(fn)
}

// =========================================================================
// MAGIC LINK
// =========================================================================

// SignInWithMagicLink emails a one-time sign-in link.
//
// TOKEN FORMAT: "<link id>.<secret>"
//   - the id locates the magic_links row
//   - the secret is a random UUID; only its bcrypt hash is stored
func (g *Gateway) SignInWithMagicLink(ctx context.Context, email string) error {
	addr, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	secret := uuid.NewString()
	hash, err := g.hasher.Hash(secret)
	if err != nil {
		return apperror.AuthRequest("could not create sign-in link", err)
	}

	link := &repository.MagicLink{
		Email:      addr,
		SecretHash: hash,
		ExpiresAt:  g.now().Add(g.linkTTL),
	}
	if err := g.links.CreateMagicLink(ctx, link); err != nil {
		return apperror.AuthRequest("could not create sign-in link", err)
	}

	target := g.baseURL + "/auth/magic-link/callback?token=" + url.QueryEscape(link.ID+"."+secret)
	msg := Message{
		To:      addr,
		Subject: "Your Planet Hub sign-in link",
		Body: fmt.Sprintf("Click the link below to sign in. It expires in %s and works once.\n\n%s\n",
			g.linkTTL, target),
	}
	if err := g.mailer.Send(ctx, msg); err != nil {
		return apperror.AuthRequest("could not send sign-in email", err)
	}

	g.logger.Info("magic link issued", slog.String("linkID", link.ID))
	return nil
}

// CompleteMagicLink redeems a link token and returns the signed session.
// Unknown, expired, used or forged links are apperror.ErrUnauthorized.
func (g *Gateway) CompleteMagicLink(ctx context.Context, token string) (string, model.Session, error) {
	invalid := apperror.Unauthorized("sign-in link is invalid or has expired")

	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return "", model.Session{}, invalid
	}

	link, err := g.links.GetMagicLink(ctx, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return "", model.Session{}, invalid
	}
	if err != nil {
		return "", model.Session{}, apperror.AuthRequest("could not verify sign-in link", err)
	}

	now := g.now()
	if link.UsedAt != nil || now.After(link.ExpiresAt) {
		return "", model.Session{}, invalid
	}
	if err := g.hasher.Verify(link.SecretHash, secret); err != nil {
		g.logger.Warn("magic link secret mismatch", slog.String("linkID", id))
		return "", model.Session{}, invalid
	}

	consumed, err := g.links.ConsumeMagicLink(ctx, id, now)
	if err != nil {
		return "", model.Session{}, apperror.AuthRequest("could not verify sign-in link", err)
	}
	if !consumed {
		return "", model.Session{}, invalid
	}

	session, err := g.resolveSession(ctx, link.Email, "", "")
	if err != nil {
		return "", model.Session{}, err
	}
	return g.issue(ctx, session)
}

// =========================================================================
// OAUTH
// =========================================================================

// SignInWithOAuth returns the provider's consent URL for state.
func (g *Gateway) SignInWithOAuth(provider, state string) (string, error) {
	p, ok := g.providers[provider]
	if !ok {
		return "", apperror.AuthRequest(fmt.Sprintf("sign-in with %q is not available", provider), nil)
	}
	return p.AuthURL(state), nil
}

// CompleteOAuth exchanges the callback code and returns the signed session.
func (g *Gateway) CompleteOAuth(ctx context.Context, provider, code string) (string, model.Session, error) {
	p, ok := g.providers[provider]
	if !ok {
		return "", model.Session{}, apperror.AuthRequest(fmt.Sprintf("sign-in with %q is not available", provider), nil)
	}
	if code == "" {
		return "", model.Session{}, apperror.MissingField("code")
	}

	identity, err := p.Exchange(ctx, code)
	if err != nil {
		return "", model.Session{}, apperror.AuthRequest(provider+" sign-in failed", err)
	}
	addr, err := normalizeEmail(identity.Email)
	if err != nil {
		return "", model.Session{}, apperror.AuthRequest(provider+" returned an unusable email", err)
	}

	session, err := g.resolveSession(ctx, addr, identity.Name, identity.Picture)
	if err != nil {
		return "", model.Session{}, err
	}
	return g.issue(ctx, session)
}

// SignOut announces the end of a session. Tokens are stateless, so the
// caller must also clear the cookie.
func (g *Gateway) SignOut(ctx context.Context, session model.Session) {
	g.events.publish(ctx, Event{Kind: SignedOut, Session: session})
}

// resolveSession maps an email to a session: an existing user keeps their
// ID (so every sign-in method lands on the same account), a new email gets
// a fresh ID. The user row itself is written by the SignedIn listener.
func (g *Gateway) resolveSession(ctx context.Context, email, fullName, avatarURL string) (model.Session, error) {
	session := model.Session{Email: email, FullName: fullName, AvatarURL: avatarURL}

	user, err := g.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		session.UserID = user.ID
		if session.FullName == "" && user.Name != user.Username {
			session.FullName = user.Name
		}
		if session.AvatarURL == "" {
			session.AvatarURL = user.AvatarURL
		}
	case errors.Is(err, apperror.ErrNotFound):
		session.UserID = xid.New().String()
	default:
		return model.Session{}, apperror.AuthRequest("could not look up account", err)
	}
	return session, nil
}

func (g *Gateway) issue(ctx context.Context, session model.Session) (string, model.Session, error) {
	token, session, err := g.tokens.Generate(session)
	if err != nil {
		return "", model.Session{}, apperror.AuthRequest("could not start session", err)
	}

	g.logger.Info("user signed in", slog.String("userID", session.UserID))
	g.events.publish(ctx, Event{Kind: SignedIn, Session: session})
	return token, session, nil
}

// normalizeEmail accepts a bare address ("ada@example.com") and lowercases it.
func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperror.MissingField("email")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", apperror.ValidationFailed("email", "email address is not valid")
	}
	return strings.ToLower(addr.Address), nil
}
