package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/hatomail/hato/store"
)

func handleListAccounts() {
	fs := flag.NewFlagSet("list-accounts", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")

	fs.Usage = func() {
		fmt.Printf(`List stored accounts

Usage:
  hato-admin list-accounts [options]

Options:
  --config string   Path to TOML configuration file (default: config.toml)

Only addresses are printed; tokens never leave the store.
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	cfg := loadConfig(fs, *configPath)

	ctx := context.Background()
	st := openStore(ctx, &cfg)
	defer st.Close()

	accounts, err := st.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list accounts: %v", err)
	}

	if len(accounts) == 0 {
		fmt.Println("No accounts in the store.")
		return
	}

	fmt.Printf("Accounts (%d):\n", len(accounts))
	for _, account := range accounts {
		marker := ""
		if account.ClientID != "" {
			marker = " (custom client ID)"
		}
		fmt.Printf("  %s%s\n", account.Email, marker)
	}
}

func handleAddAccount() {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Email address for the new account (required)")
	refreshToken := fs.String("refresh-token", "", "OAuth2 refresh token (required)")
	password := fs.String("password", "", "Account password, kept for export only")
	clientID := fs.String("client-id", "", "OAuth2 client ID override for this account")

	fs.Usage = func() {
		fmt.Printf(`Add an account to the store

Usage:
  hato-admin add-account [options]

Options:
  --email string          Email address for the new account (required)
  --refresh-token string  OAuth2 refresh token (required)
  --password string       Account password, kept for export only
  --client-id string      OAuth2 client ID override for this account
  --config string         Path to TOML configuration file (default: config.toml)

Examples:
  hato-admin add-account --email user@outlook.com --refresh-token "0.AX0A..."
  hato-admin add-account --email user@outlook.com --refresh-token "0.AX0A..." --client-id 9e5f94bc-e8a4-4e73-b8be-63364c29d753
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
	if *refreshToken == "" {
		fmt.Printf("Error: --refresh-token is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, *configPath)

	ctx := context.Background()
	st := openStore(ctx, &cfg)
	defer st.Close()

	account := store.Account{
		Email:        strings.TrimSpace(*email),
		Password:     *password,
		ClientID:     *clientID,
		RefreshToken: *refreshToken,
	}
	if err := st.Create(ctx, account); err != nil {
		log.Fatalf("Failed to add account: %v", err)
	}

	fmt.Printf("Successfully added account: %s\n", account.Email)
}

func handleUpdateAccount() {
	fs := flag.NewFlagSet("update-account", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Email address of the account to update (required)")
	newEmail := fs.String("new-email", "", "New email address, renames the account")
	refreshToken := fs.String("refresh-token", "", "New OAuth2 refresh token")
	password := fs.String("password", "", "New account password")
	clientID := fs.String("client-id", "", "New OAuth2 client ID override")

	fs.Usage = func() {
		fmt.Printf(`Update a stored account

Usage:
  hato-admin update-account [options]

Options:
  --email string          Email address of the account to update (required)
  --new-email string      New email address, renames the account
  --refresh-token string  New OAuth2 refresh token
  --password string       New account password
  --client-id string      New OAuth2 client ID override (empty value clears it)
  --config string         Path to TOML configuration file (default: config.toml)

Only explicitly set flags change the stored record.

Examples:
  hato-admin update-account --email user@outlook.com --refresh-token "0.AX0A..."
  hato-admin update-account --email old@outlook.com --new-email new@outlook.com
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

	ctx := context.Background()
	st := openStore(ctx, &cfg)
	defer st.Close()

	account, err := st.Get(ctx, strings.TrimSpace(*email))
	if err != nil {
		log.Fatalf("Failed to load account: %v", err)
	}

	if isFlagSet(fs, "new-email") {
		account.Email = strings.TrimSpace(*newEmail)
	}
	if isFlagSet(fs, "refresh-token") {
		account.RefreshToken = *refreshToken
	}
	if isFlagSet(fs, "password") {
		account.Password = *password
	}
	if isFlagSet(fs, "client-id") {
		account.ClientID = *clientID
	}

	if !account.Valid() {
		log.Fatalf("Refusing update: the resulting record would be missing an address or refresh token")
	}

	if err := st.Update(ctx, strings.TrimSpace(*email), account); err != nil {
		log.Fatalf("Failed to update account: %v", err)
	}

	if account.Email != strings.TrimSpace(*email) {
		fmt.Printf("Successfully updated account: %s (renamed to %s)\n", *email, account.Email)
	} else {
		fmt.Printf("Successfully updated account: %s\n", account.Email)
	}
}

func handleDeleteAccount() {
	fs := flag.NewFlagSet("delete-account", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Email address of the account to delete (required)")

	fs.Usage = func() {
		fmt.Printf(`Delete an account from the store

Usage:
  hato-admin delete-account [options]

Options:
  --email string    Email address of the account to delete (required)
  --config string   Path to TOML configuration file (default: config.toml)
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

	ctx := context.Background()
	st := openStore(ctx, &cfg)
	defer st.Close()

	if err := st.Delete(ctx, strings.TrimSpace(*email)); err != nil {
		log.Fatalf("Failed to delete account: %v", err)
	}

	fmt.Printf("Successfully deleted account: %s\n", *email)
}
