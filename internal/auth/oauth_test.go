package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newFakeGoogle serves a token endpoint and a userinfo endpoint.
func newFakeGoogle(t *testing.T, userinfoStatus int, userinfo string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userinfoStatus)
		w.Write([]byte(userinfo))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogleProvider(srv *httptest.Server) *GoogleProvider {
	p := NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/auth/google/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	p.userInfoURL = srv.URL + "/userinfo"
	return p
}

func TestGoogleProvider_AuthURL(t *testing.T) {
	p := NewGoogleProvider("client-id", "secret", "http://localhost:8080/auth/google/callback")

	u, err := url.Parse(p.AuthURL("state-xyz"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:8080/auth/google/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "email")
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := newFakeGoogle(t, http.StatusOK,
		`{"sub":"1077","email":"ada@example.com","name":"Ada Lovelace","picture":"https://img/ada.png"}`)
	p := newTestGoogleProvider(srv)

	id, err := p.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, &Identity{Subject: "1077", Email: "ada@example.com", Name: "Ada Lovelace", Picture: "https://img/ada.png"}, id)
}

func TestGoogleProvider_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		status   int
		userinfo string
	}{
		{"rejected code", "bad-code", http.StatusOK, `{}`},
		{"userinfo error status", "good-code", http.StatusInternalServerError, `{}`},
		{"userinfo not json", "good-code", http.StatusOK, `<html>`},
		{"userinfo without email", "good-code", http.StatusOK, `{"sub":"1077"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestGoogleProvider(newFakeGoogle(t, tt.status, tt.userinfo))
			_, err := p.Exchange(context.Background(), tt.code)
			assert.Error(t, err)
		})
	}
}
