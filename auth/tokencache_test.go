package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type tokenServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests int32
	lastForm map[string]string

	status  int
	payload map[string]interface{}
}

// newTokenServer fakes the provider token endpoint. The default payload is a
// successful refresh grant.
func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		status: http.StatusOK,
		payload: map[string]interface{}{
			"access_token": "access-token-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.requests, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request form: %v", err)
		}
		ts.mu.Lock()
		ts.lastForm = make(map[string]string)
		for key := range r.PostForm {
			ts.lastForm[key] = r.PostForm.Get(key)
		}
		status := ts.status
		payload := ts.payload
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) requestCount() int {
	return int(atomic.LoadInt32(&ts.requests))
}

func (ts *tokenServer) formValue(key string) string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.lastForm[key]
}

func (ts *tokenServer) respond(status int, payload map[string]interface{}) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.status = status
	ts.payload = payload
}

func newTestCache(ts *tokenServer, creds Credentials) *TokenCache {
	return NewTokenCache(creds, Options{
		TokenEndpoint: ts.srv.URL + "/token",
		HTTPClient:    ts.srv.Client(),
	})
}

func TestEnsureValidRefreshesOnFirstUse(t *testing.T) {
	ts := newTokenServer(t)
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "refresh-token-1",
		ClientID:     "client-1",
	})

	token, err := tc.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if token != "access-token-1" {
		t.Errorf("Expected access-token-1, got %q", token)
	}
	if ts.requestCount() != 1 {
		t.Errorf("Expected 1 token request, got %d", ts.requestCount())
	}
	if got := ts.formValue("grant_type"); got != "refresh_token" {
		t.Errorf("Expected grant_type refresh_token, got %q", got)
	}
	if got := ts.formValue("refresh_token"); got != "refresh-token-1" {
		t.Errorf("Expected refresh_token in form, got %q", got)
	}
	if got := ts.formValue("client_id"); got != "client-1" {
		t.Errorf("Expected client_id in form body, got %q", got)
	}
}

func TestEnsureValidReusesCachedToken(t *testing.T) {
	ts := newTokenServer(t)
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "refresh-token-1",
		ClientID:     "client-1",
	})

	for i := 0; i < 5; i++ {
		if _, err := tc.EnsureValid(context.Background()); err != nil {
			t.Fatalf("EnsureValid call %d failed: %v", i, err)
		}
	}
	if ts.requestCount() != 1 {
		t.Errorf("Expected exactly 1 token request for 5 calls, got %d", ts.requestCount())
	}
}

func TestEnsureValidFixedLifetime(t *testing.T) {
	ts := newTokenServer(t)
	// The provider claims a 2 hour lifetime; the cache must not believe it.
	ts.respond(http.StatusOK, map[string]interface{}{
		"access_token": "access-token-1",
		"token_type":   "Bearer",
		"expires_in":   7200,
	})
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "refresh-token-1",
		ClientID:     "client-1",
	})

	before := time.Now()
	if _, err := tc.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	lifetime := tc.expiresAt.Sub(before)
	if lifetime < 59*time.Minute || lifetime > 61*time.Minute {
		t.Errorf("Expected a fixed 1h lifetime, got %v", lifetime)
	}
}

func TestEnsureValidRefreshesInsideBuffer(t *testing.T) {
	ts := newTokenServer(t)
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "refresh-token-1",
		ClientID:     "client-1",
	})

	if _, err := tc.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	// Push the cached token inside the 5 minute expiry buffer.
	tc.mu.Lock()
	tc.expiresAt = time.Now().Add(time.Minute)
	tc.mu.Unlock()

	ts.respond(http.StatusOK, map[string]interface{}{
		"access_token": "access-token-2",
		"token_type":   "Bearer",
		"expires_in":   3600,
	})

	token, err := tc.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if token != "access-token-2" {
		t.Errorf("Expected refreshed access-token-2, got %q", token)
	}
	if ts.requestCount() != 2 {
		t.Errorf("Expected 2 token requests, got %d", ts.requestCount())
	}
}

func TestEnsureValidSingleFlight(t *testing.T) {
	ts := newTokenServer(t)
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "refresh-token-1",
		ClientID:     "client-1",
	})

	const workers = 16
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if tokens[i] != "access-token-1" {
			t.Errorf("worker %d got token %q", i, tokens[i])
		}
	}
	if ts.requestCount() != 1 {
		t.Errorf("Expected exactly 1 token request across %d concurrent callers, got %d", workers, ts.requestCount())
	}
}

func TestEnsureValidProviderError(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusBadRequest, map[string]interface{}{
		"error":             "invalid_grant",
		"error_description": "AADSTS70000: the refresh token has expired",
	})
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "stale-token",
		ClientID:     "client-1",
	})

	_, err := tc.EnsureValid(context.Background())
	if err == nil {
		t.Fatal("Expected an error for a rejected refresh")
	}

	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *auth.Error, got %T: %v", err, err)
	}
	if authErr.Email != "user@outlook.com" {
		t.Errorf("Expected error to name the account, got %q", authErr.Email)
	}
	if !strings.Contains(authErr.Cause, "AADSTS70000") {
		t.Errorf("Expected provider description in cause, got %q", authErr.Cause)
	}
}

func TestEnsureValidNoRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	tc := newTestCache(ts, Credentials{
		Email:    "user@outlook.com",
		ClientID: "client-1",
	})

	_, err := tc.EnsureValid(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected *auth.Error, got %T: %v", err, err)
	}
	if ts.requestCount() != 0 {
		t.Errorf("Expected no wire call without a refresh token, got %d", ts.requestCount())
	}
}

func TestEnsureValidRotationNotPersisted(t *testing.T) {
	ts := newTokenServer(t)
	ts.respond(http.StatusOK, map[string]interface{}{
		"access_token":  "access-token-1",
		"refresh_token": "rotated-refresh-token",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
	tc := newTestCache(ts, Credentials{
		Email:        "user@outlook.com",
		RefreshToken: "original-refresh-token",
		ClientID:     "client-1",
	})

	if _, err := tc.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}

	// The rotated token is observed but never adopted: a forced second
	// refresh still presents the original credential.
	tc.Invalidate()
	if _, err := tc.EnsureValid(context.Background()); err != nil {
		t.Fatalf("EnsureValid after invalidate failed: %v", err)
	}

	if ts.requestCount() != 2 {
		t.Fatalf("Expected 2 token requests, got %d", ts.requestCount())
	}
	if got := ts.formValue("refresh_token"); got != "original-refresh-token" {
		t.Errorf("Expected the original refresh token on re-refresh, got %q", got)
	}
}
