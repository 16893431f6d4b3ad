package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hatomail/hato/archive"
	"github.com/hatomail/hato/mailbox"
)

func handleListMessages() {
	fs := flag.NewFlagSet("list-messages", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Stored account to fetch messages for (required)")
	limit := fs.Int("limit", 5, "Number of messages to fetch")
	mailboxName := fs.String("mailbox", "", "Mailbox to list (default: the configured mailbox)")

	fs.Usage = func() {
		fmt.Printf(`Fetch the latest messages for a stored account

Connects to the mail server with the stored refresh token and prints
the newest messages. Useful as a smoke test for an account's token.

Usage:
  hato-admin list-messages [options]

Options:
  --email string    Stored account to fetch messages for (required)
  --limit int       Number of messages to fetch (default: 5)
  --mailbox string  Mailbox to list (default: the configured mailbox)
  --config string   Path to TOML configuration file (default: config.toml)

Examples:
  hato-admin list-messages --email user@outlook.com
  hato-admin list-messages --email user@outlook.com --limit 10 --mailbox Junk
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

	sessions := mailbox.NewSessionManager(&cfg, st, nil)
	defer sessions.TeardownAll()

	envelopes, err := sessions.ListMessages(ctx, *email, *mailboxName, *limit)
	if err != nil {
		log.Fatalf("Failed to fetch messages: %v", err)
	}

	if len(envelopes) == 0 {
		fmt.Printf("No messages for %s.\n", *email)
		return
	}

	fmt.Printf("Latest %d messages for %s:\n\n", len(envelopes), *email)
	for i, envelope := range envelopes {
		from := envelope.Sender.EmailAddress
		sender := from.Address
		if from.Name != "" && from.Name != from.Address {
			sender = fmt.Sprintf("%s <%s>", from.Name, from.Address)
		}
		fmt.Printf("[%d] UID %s\n", i+1, envelope.ID)
		fmt.Printf("    From:    %s\n", sender)
		fmt.Printf("    Date:    %s\n", envelope.ReceivedDateTime)
		fmt.Printf("    Subject: %s\n", envelope.Subject)
		if envelope.BodyPreview != "" {
			fmt.Printf("    Preview: %s\n", envelope.BodyPreview)
		}
		fmt.Println()
	}
}

func handleArchiveGet() {
	fs := flag.NewFlagSet("archive-get", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	email := fs.String("email", "", "Account the message belongs to (required)")
	hash := fs.String("hash", "", "Content hash of the archived message (required)")
	output := fs.String("output", "", "Write the raw message to this file instead of stdout")

	fs.Usage = func() {
		fmt.Printf(`Download an archived raw message

Fetches a message from the S3 archive by its content hash, as reported
in the contentHash field of the message detail API.

Usage:
  hato-admin archive-get [options]

Options:
  --email string    Account the message belongs to (required)
  --hash string     Content hash of the archived message (required)
  --output string   Write the raw message to this file instead of stdout
  --config string   Path to TOML configuration file (default: config.toml)

Examples:
  hato-admin archive-get --email user@outlook.com --hash 9f2b... --output message.eml
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
	if *hash == "" {
		fmt.Printf("Error: --hash is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, *configPath)
	if !cfg.Archive.Enabled {
		log.Fatalf("The message archive is not enabled in the configuration")
	}

	uploader, err := archive.New(cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to initialize archive client: %v", err)
	}

	raw, err := uploader.Fetch(context.Background(), *email, *hash)
	if err != nil {
		log.Fatalf("Failed to fetch archived message: %v", err)
	}

	if *output == "" {
		os.Stdout.Write(raw)
		return
	}

	if err := os.WriteFile(*output, raw, 0644); err != nil {
		log.Fatalf("Failed to write message file: %v", err)
	}
	fmt.Printf("Successfully wrote %d bytes to %s\n", len(raw), *output)
}
