package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hatomail/hato/store"
)

func handleImportAccounts() {
	fs := flag.NewFlagSet("import-accounts", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	filePath := fs.String("file", "", "Path to the account file to import (required)")
	mode := fs.String("mode", "update", "Merge mode: update, skip, or replace")
	dryRun := fs.Bool("dry-run", false, "Parse and merge without saving")

	fs.Usage = func() {
		fmt.Printf(`Import accounts from a file into the store

Usage:
  hato-admin import-accounts [options]

Options:
  --file string     Path to the account file to import (required)
  --mode string     Merge mode: update, skip, or replace (default: update)
  --dry-run         Parse and merge without saving
  --config string   Path to TOML configuration file (default: config.toml)

The file uses one account per line, either the full four-field layout
email----password----client_id----refresh_token or the legacy two-field
layout email----refresh_token. Comment and blank lines are skipped.

Examples:
  hato-admin import-accounts --file accounts.txt
  hato-admin import-accounts --file accounts.txt --mode replace
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *filePath == "" {
		fmt.Printf("Error: --file is required\n\n")
		fs.Usage()
		os.Exit(1)
	}

	mergeMode, err := store.ParseMergeMode(*mode)
	if err != nil {
		fmt.Printf("Error: %v\n\n", err)
		fs.Usage()
		os.Exit(1)
	}

	cfg := loadConfig(fs, *configPath)

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatalf("Failed to read import file: %v", err)
	}

	parsed := store.ParseImportText(string(data), cfg.OAuth.ClientID)
	for _, parseErr := range parsed.Errors {
		fmt.Printf("  parse error: %s\n", parseErr)
	}
	if parsed.ParsedCount == 0 {
		log.Fatalf("No importable accounts found in %s", *filePath)
	}

	ctx := context.Background()
	st := openStore(ctx, &cfg)
	defer st.Close()

	existing, err := st.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list existing accounts: %v", err)
	}

	merged, result := store.Merge(existing, parsed.Accounts, mergeMode)

	fmt.Printf("Import summary (%s mode): %d processed, %d added, %d updated, %d skipped, %d errors\n",
		mergeMode, result.TotalCount, result.AddedCount, result.UpdatedCount, result.SkippedCount, result.ErrorCount)
	for _, detail := range result.Details {
		if detail.Email != "" {
			fmt.Printf("  %-8s %s: %s\n", detail.Action, detail.Email, detail.Message)
		} else {
			fmt.Printf("  %-8s %s\n", detail.Action, detail.Message)
		}
	}

	if *dryRun {
		fmt.Println("Dry run, store not modified.")
		return
	}
	if !result.Success {
		log.Fatalf("Import had errors, store not modified")
	}
	if result.AddedCount == 0 && result.UpdatedCount == 0 {
		fmt.Println("Nothing changed, store not modified.")
		return
	}

	if err := st.ReplaceAll(ctx, merged); err != nil {
		log.Fatalf("Failed to save imported accounts: %v", err)
	}

	fmt.Printf("Successfully saved %d accounts.\n", len(merged))
}

func handleExportAccounts() {
	fs := flag.NewFlagSet("export-accounts", flag.ExitOnError)

	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	format := fs.String("format", "txt", "Export format: txt or json")
	output := fs.String("output", "", "Write to this file instead of stdout")

	fs.Usage = func() {
		fmt.Printf(`Export accounts to stdout or a file

Usage:
  hato-admin export-accounts [options]

Options:
  --format string   Export format: txt or json (default: txt)
  --output string   Write to this file instead of stdout
  --config string   Path to TOML configuration file (default: config.toml)

The txt format is the account file layout and can be imported back.
The export contains refresh tokens, handle it like a credential file.

Examples:
  hato-admin export-accounts
  hato-admin export-accounts --format json --output accounts.json
`)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Error parsing flags: %v", err)
	}

	if *format != "txt" && *format != "json" {
		fmt.Printf("Error: --format must be txt or json\n\n")
		fs.Usage()
		os.Exit(1)
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
		log.Fatalf("No accounts to export")
	}

	var content string
	switch *format {
	case "json":
		payload := store.ExportJSON(accounts, cfg.OAuth.ClientID, time.Now())
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode export: %v", err)
		}
		content = string(data) + "\n"
	default:
		content = store.RenderAdminExport(accounts, cfg.OAuth.ClientID, time.Now())
	}

	if *output == "" {
		fmt.Print(content)
		return
	}

	// Exports carry credentials, keep them out of other users' reach.
	if err := os.WriteFile(*output, []byte(content), 0600); err != nil {
		log.Fatalf("Failed to write export file: %v", err)
	}
	fmt.Printf("Successfully exported %d accounts to %s\n", len(accounts), *output)
}
