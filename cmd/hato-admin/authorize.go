package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hatomail/hato/auth"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/store"
)

func handleAuthorize() {
	fs := flag.NewFlagSet("authorize", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Account to authorize (required)")
	clientID := fs.String("client-id", "", "OAuth2 client ID (default: the configured client ID)")
	listen := fs.String("listen", "localhost:8765", "Local address for the OAuth2 redirect listener")
	noSave := fs.Bool("no-save", false, "Print the refresh token without updating the store")

	fs.Usage = func() {
		fmt.Printf(`Obtain a refresh token through the browser flow

Runs the OAuth2 authorization code flow with PKCE. The printed URL must
be opened in a browser; after sign-in the provider redirects to a local
listener and the resulting refresh token is stored for the account.

The redirect URI, here http://localhost:8765/, must be registered on
the OAuth2 application for the flow to complete.

Usage:
  hato-admin authorize [options]

Options:
  --email string      Account to authorize (required)
  --client-id string  OAuth2 client ID (default: the configured client ID)
  --listen string     Local address for the redirect listener (default: localhost:8765)
  --no-save           Print the refresh token without updating the store
  --config string     Path to TOML configuration file (default: config.toml)

Examples:
  hato-admin authorize --email user@outlook.com
  hato-admin authorize --email user@outlook.com --client-id 9e5f94bc-e8a4-4e73-b8be-63364c29d753 --no-save
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *email == "" {
		fmt.Printf("Error: --email is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, *configPath)

	effectiveClientID := cfg.OAuth.ClientID
	if isFlagSet(fs, "client-id") {
		effectiveClientID = *clientID
	}
	if effectiveClientID == "" {
		log.Fatalf("No OAuth2 client ID available, set --client-id or oauth.client_id")
	}

	flow, err := auth.NewFlow(auth.FlowOptions{
		Email:             *email,
		ClientID:          effectiveClientID,
		Scope:             cfg.OAuth.Scope,
		ListenAddr:        *listen,
		TokenEndpoint:     cfg.OAuth.TokenEndpoint,
		AuthorizeEndpoint: cfg.OAuth.AuthorizeEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to start authorization flow: %v", err)
	}
	defer flow.Close()

	fmt.Printf("Open this URL in a browser and sign in as %s:\n\n  %s\n\n", *email, flow.AuthURL())
	fmt.Printf("Waiting for the redirect on %s (Ctrl-C to abort)...\n", flow.RedirectURL())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := flow.Wait(ctx)
	if err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}

	fmt.Printf("\nRefresh token for %s:\n\n  %s\n\n", *email, token.RefreshToken)

	if *noSave {
		return
	}

	st := openStore(ctx, &cfg)
	defer st.Close()

	address := strings.TrimSpace(*email)
	account, err := st.Get(ctx, address)
	switch {
	case err == nil:
		account.RefreshToken = token.RefreshToken
		if effectiveClientID != cfg.OAuth.ClientID {
			account.ClientID = effectiveClientID
		}
		if err := st.Update(ctx, address, account); err != nil {
			log.Fatalf("Failed to update stored account: %v", err)
		}
		fmt.Printf("Updated the stored refresh token for %s.\n", address)
	case errors.Is(err, consts.ErrAccountNotFound):
		account = store.Account{Email: address, RefreshToken: token.RefreshToken}
		if effectiveClientID != cfg.OAuth.ClientID {
			account.ClientID = effectiveClientID
		}
		if err := st.Create(ctx, account); err != nil {
			log.Fatalf("Failed to save account: %v", err)
		}
		fmt.Printf("Saved %s to the account store.\n", address)
	default:
		log.Fatalf("Failed to read the account store: %v", err)
	}
}
