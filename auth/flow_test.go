package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestFlowAuthURL(t *testing.T) {
	flow, err := NewFlow(FlowOptions{
		Email:      "user@outlook.com",
		ClientID:   "client-1",
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	defer flow.Close()

	authURL, err := url.Parse(flow.AuthURL())
	if err != nil {
		t.Fatalf("AuthURL is not a valid URL: %v", err)
	}

	query := authURL.Query()
	if got := query.Get("client_id"); got != "client-1" {
		t.Errorf("Expected client_id client-1, got %q", got)
	}
	if got := query.Get("response_type"); got != "code" {
		t.Errorf("Expected response_type code, got %q", got)
	}
	if got := query.Get("code_challenge_method"); got != "S256" {
		t.Errorf("Expected S256 challenge method, got %q", got)
	}
	if query.Get("code_challenge") == "" {
		t.Error("Expected a code_challenge parameter")
	}
	if got := query.Get("prompt"); got != "select_account" {
		t.Errorf("Expected prompt select_account, got %q", got)
	}
	if got := query.Get("response_mode"); got != "query" {
		t.Errorf("Expected response_mode query, got %q", got)
	}
	if !strings.Contains(query.Get("scope"), "offline_access") {
		t.Errorf("Expected offline_access in scope, got %q", query.Get("scope"))
	}
	if !strings.HasPrefix(query.Get("redirect_uri"), "http://127.0.0.1:") {
		t.Errorf("Expected local redirect URI, got %q", query.Get("redirect_uri"))
	}
}

func TestFlowWaitExchangesCode(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("Expected grant_type authorization_code, got %q", got)
		}
		if got := r.PostForm.Get("code"); got != "auth-code-1" {
			t.Errorf("Expected code auth-code-1, got %q", got)
		}
		if r.PostForm.Get("code_verifier") == "" {
			t.Error("Expected a code_verifier in the exchange")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-token-1",
			"refresh_token": "refresh-token-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer tokenSrv.Close()

	flow, err := NewFlow(FlowOptions{
		Email:         "user@outlook.com",
		ClientID:      "client-1",
		ListenAddr:    "127.0.0.1:0",
		TokenEndpoint: tokenSrv.URL + "/token",
		HTTPClient:    tokenSrv.Client(),
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	type waitResult struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan waitResult, 1)
	go func() {
		token, err := flow.Wait(context.Background())
		done <- waitResult{token: token, err: err}
	}()

	// Simulate the provider redirecting the browser back to the listener.
	callbackURL := flow.RedirectURL() + "?code=auth-code-1&state=" + flow.state
	resp, err := http.Get(callbackURL)
	if err != nil {
		t.Fatalf("Callback request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 from callback page, got %d", resp.StatusCode)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Wait failed: %v", res.err)
		}
		if res.token.RefreshToken != "refresh-token-1" {
			t.Errorf("Expected refresh-token-1, got %q", res.token.RefreshToken)
		}
		if res.token.AccessToken != "access-token-1" {
			t.Errorf("Expected access-token-1, got %q", res.token.AccessToken)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not complete after callback")
	}
}

func TestFlowWaitRejectsStateMismatch(t *testing.T) {
	flow, err := NewFlow(FlowOptions{
		Email:      "user@outlook.com",
		ClientID:   "client-1",
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := flow.Wait(context.Background())
		done <- err
	}()

	resp, err := http.Get(flow.RedirectURL() + "?code=auth-code-1&state=forged")
	if err != nil {
		t.Fatalf("Callback request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for forged state, got %d", resp.StatusCode)
	}

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "state mismatch") {
			t.Errorf("Expected state mismatch error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after forged callback")
	}
}

func TestFlowWaitReportsProviderRefusal(t *testing.T) {
	flow, err := NewFlow(FlowOptions{
		Email:      "user@outlook.com",
		ClientID:   "client-1",
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := flow.Wait(context.Background())
		done <- err
	}()

	resp, err := http.Get(flow.RedirectURL() + "?error=access_denied&error_description=user+cancelled")
	if err != nil {
		t.Fatalf("Callback request failed: %v", err)
	}
	resp.Body.Close()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "access_denied") {
			t.Errorf("Expected access_denied in error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after refusal callback")
	}
}

func TestFlowWaitHonorsContext(t *testing.T) {
	flow, err := NewFlow(FlowOptions{
		Email:      "user@outlook.com",
		ClientID:   "client-1",
		ListenAddr: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := flow.Wait(ctx)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after cancellation")
	}
}
