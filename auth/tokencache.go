// Package auth mints and caches OAuth2 access tokens for mailbox accounts
// and provides the SASL mechanism that presents them to the IMAP server.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/helpers"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/pkg/metrics"
)

// Options tune a TokenCache beyond its credentials. Zero values select the
// production consumers tenant and the default OAuth scope.
type Options struct {
	Scope             string       // scope string requested on refresh
	TokenEndpoint     string       // token endpoint override, for tests
	AuthorizeEndpoint string       // authorize endpoint override, for tests
	HTTPClient        *http.Client // transport override, for tests
}

// TokenCache holds the access token state for a single account and refreshes
// it over the wire when the cached token is missing or inside the expiry
// buffer. All methods are safe for concurrent use; the refresh exchange runs
// at most once at a time per cache, and concurrent callers wait for its
// result instead of issuing duplicates.
type TokenCache struct {
	mu         sync.Mutex
	creds      Credentials
	cfg        *oauth2.Config
	httpClient *http.Client

	accessToken string
	expiresAt   time.Time
}

// NewTokenCache builds a cache for one account's credentials.
func NewTokenCache(creds Credentials, opts Options) *TokenCache {
	scope := opts.Scope
	if scope == "" {
		scope = consts.OAuthScope
	}
	return &TokenCache{
		creds: creds,
		cfg: &oauth2.Config{
			ClientID: creds.ClientID,
			Endpoint: oauthEndpoint(opts.TokenEndpoint, opts.AuthorizeEndpoint),
			Scopes:   strings.Fields(scope),
		},
		httpClient: opts.HTTPClient,
	}
}

// oauthEndpoint starts from the Microsoft consumers tenant and applies any
// overrides, so tests can point the exchange at a local server. The identity
// platform wants public clients to send client_id in the request body, not
// as basic auth.
func oauthEndpoint(tokenURL, authURL string) oauth2.Endpoint {
	ep := microsoft.AzureADEndpoint("consumers")
	ep.AuthStyle = oauth2.AuthStyleInParams
	if tokenURL != "" {
		ep.TokenURL = tokenURL
	}
	if authURL != "" {
		ep.AuthURL = authURL
	}
	return ep
}

// Email returns the account address this cache serves.
func (tc *TokenCache) Email() string {
	return tc.creds.Email
}

// EnsureValid returns an access token that is good for at least the expiry
// buffer, refreshing over the wire when needed. Failures are *Error values.
func (tc *TokenCache) EnsureValid(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.accessToken != "" && time.Now().Add(consts.TokenExpiryBuffer).Before(tc.expiresAt) {
		return tc.accessToken, nil
	}
	return tc.refreshLocked(ctx)
}

// Invalidate drops the cached token so the next EnsureValid refreshes.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.accessToken = ""
	tc.expiresAt = time.Time{}
}

func (tc *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	if tc.creds.RefreshToken == "" {
		return "", &Error{Email: tc.creds.Email, Cause: "no refresh token configured"}
	}
	if tc.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, tc.httpClient)
	}

	// A seed expiry in the past forces the token source to hit the wire
	// instead of handing back the seed.
	seed := &oauth2.Token{
		RefreshToken: tc.creds.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}

	start := time.Now()
	token, err := tc.cfg.TokenSource(ctx, seed).Token()
	metrics.TokenRefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", &Error{Email: tc.creds.Email, Cause: retrieveCause(err), Err: err}
	}
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()

	if rotated := token.RefreshToken; rotated != "" && rotated != tc.creds.RefreshToken {
		// The provider rotated the refresh token. It is not persisted here;
		// the stored credential keeps working until the provider revokes it.
		logger.Warnf("auth: provider rotated refresh token for %s (rotation not persisted)", tc.creds.Email)
	}

	tc.accessToken = token.AccessToken
	// The provider's expires_in is ignored on purpose: outlook.com access
	// tokens live an hour, and a fixed lifetime keeps the refresh cadence
	// predictable.
	tc.expiresAt = time.Now().Add(consts.TokenLifetime)

	logger.Debugf("auth: refreshed access token for %s (%s), valid until %s",
		tc.creds.Email, helpers.MaskToken(tc.accessToken), tc.expiresAt.Format(time.RFC3339))
	return tc.accessToken, nil
}

// retrieveCause extracts the provider's own description from a failed token
// exchange when one is present.
func retrieveCause(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorDescription != "" {
			return retrieveErr.ErrorDescription
		}
		if retrieveErr.ErrorCode != "" {
			return retrieveErr.ErrorCode
		}
		if retrieveErr.Response != nil {
			return fmt.Sprintf("token endpoint returned status %d", retrieveErr.Response.StatusCode)
		}
	}
	return err.Error()
}
