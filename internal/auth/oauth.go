package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Identity is what an OAuth provider tells us about the person signing in.
type Identity struct {
	Subject string `json:"sub"` // Provider's stable account ID
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// OAuthProvider is one "Sign in with X" integration. The Gateway keeps them
// by name ("google"), so tests can register a fake.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider performs the OAuth 2.0 authorization-code flow with Google
// and reads the OpenID Connect userinfo endpoint.
//
// FLOW:
//  1. AuthURL(state) → the consent page; state is echoed back for CSRF checks
//  2. Google redirects to GOOGLE_CALLBACK_URL?code=...&state=...
//  3. Exchange(code) swaps the code for an access token (server to server)
//  4. The token-authenticated client fetches the userinfo document
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// config.Client attaches "Authorization: Bearer <token>" to every request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: userinfo returned status %d", resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo: %w", err)
	}
	if id.Subject == "" || id.Email == "" {
		return nil, fmt.Errorf("auth: userinfo is missing subject or email")
	}
	return &id, nil
}
