package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hatomail/hato/consts"
)

const callbackPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>Authorization complete</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>
`

// FlowOptions configure an interactive authorization flow.
type FlowOptions struct {
	Email             string       // account being authorized, for error context
	ClientID          string
	Scope             string       // defaults to the IMAP scope
	ListenAddr        string       // local redirect listener, defaults to "localhost:8765"
	TokenEndpoint     string       // override, for tests
	AuthorizeEndpoint string       // override, for tests
	HTTPClient        *http.Client // transport override, for tests
}

// Flow runs the authorization code grant with PKCE against the consumers
// tenant. It binds a local redirect listener up front so the authorization
// URL is final before the browser opens. Typical use:
//
//	flow, err := auth.NewFlow(opts)
//	fmt.Println("Open in a browser:", flow.AuthURL())
//	token, err := flow.Wait(ctx)
type Flow struct {
	email      string
	cfg        *oauth2.Config
	verifier   string
	state      string
	listener   net.Listener
	httpClient *http.Client
}

// NewFlow binds the redirect listener and prepares the authorization URL.
// The caller must eventually call Wait or Close to release the listener.
func NewFlow(opts FlowOptions) (*Flow, error) {
	listenAddr := opts.ListenAddr
	if listenAddr == "" {
		listenAddr = "localhost:8765"
	}
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind redirect listener on %s: %w", listenAddr, err)
	}

	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	if host == "" {
		host = "localhost"
	}
	// The redirect host stays as configured, the port comes from the bound
	// listener so ":0" resolves to something the provider can redirect to.
	_, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("unexpected listener address: %w", err)
	}

	scope := opts.Scope
	if scope == "" {
		scope = consts.OAuthScope
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	return &Flow{
		email: opts.Email,
		cfg: &oauth2.Config{
			ClientID:    opts.ClientID,
			Endpoint:    oauthEndpoint(opts.TokenEndpoint, opts.AuthorizeEndpoint),
			RedirectURL: fmt.Sprintf("http://%s/", net.JoinHostPort(host, port)),
			Scopes:      strings.Fields(scope),
		},
		verifier:   oauth2.GenerateVerifier(),
		state:      hex.EncodeToString(stateBytes),
		listener:   listener,
		httpClient: opts.HTTPClient,
	}, nil
}

// AuthURL returns the provider authorization URL to open in a browser.
func (f *Flow) AuthURL() string {
	return f.cfg.AuthCodeURL(f.state,
		oauth2.S256ChallengeOption(f.verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("response_mode", "query"),
	)
}

// RedirectURL returns the local callback URL registered with the provider.
func (f *Flow) RedirectURL() string {
	return f.cfg.RedirectURL
}

// Close releases the redirect listener without completing the flow.
func (f *Flow) Close() error {
	return f.listener.Close()
}

// Wait serves the redirect listener until the provider delivers an
// authorization code, then exchanges it for a token. The returned token
// carries the refresh token when offline_access was granted.
func (f *Flow) Wait(ctx context.Context) (*oauth2.Token, error) {
	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if errCode := query.Get("error"); errCode != "" {
			desc := query.Get("error_description")
			http.Error(w, "Authorization failed: "+errCode, http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("authorization refused: %s (%s)", errCode, desc)}
			return
		}
		code := query.Get("code")
		if code == "" {
			http.NotFound(w, r)
			return
		}
		if query.Get("state") != f.state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			results <- callback{err: fmt.Errorf("authorization state mismatch")}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, callbackPage)
		results <- callback{code: code}
	})

	srv := &http.Server{Handler: mux}
	go func() {
		_ = srv.Serve(f.listener)
	}()
	defer srv.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		if f.httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
		}
		token, err := f.cfg.Exchange(ctx, res.code, oauth2.VerifierOption(f.verifier))
		if err != nil {
			return nil, &Error{Email: f.email, Cause: retrieveCause(err), Err: err}
		}
		if token.RefreshToken == "" {
			return nil, &Error{Email: f.email, Cause: "provider response contained no refresh token; check that the scope includes offline_access"}
		}
		return token, nil
	}
}
