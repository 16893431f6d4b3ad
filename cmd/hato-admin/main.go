package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hatomail/hato/config"
	"github.com/hatomail/hato/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "list-accounts":
		handleListAccounts()
	case "add-account":
		handleAddAccount()
	case "update-account":
		handleUpdateAccount()
	case "delete-account":
		handleDeleteAccount()
	case "import-accounts":
		handleImportAccounts()
	case "export-accounts":
		handleExportAccounts()
	case "list-messages":
		handleListMessages()
	case "archive-get":
		handleArchiveGet()
	case "authorize":
		handleAuthorize()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`HATO Admin Tool

Usage:
  hato-admin <command> [options]

Commands:
  list-accounts     List stored accounts
  add-account       Add an account to the store
  update-account    Update a stored account
  delete-account    Delete an account from the store
  import-accounts   Import accounts from a file into the store
  export-accounts   Export accounts to stdout or a file
  list-messages     Fetch the latest messages for a stored account
  archive-get       Download an archived raw message
  authorize         Obtain a refresh token through the browser flow
  help              Show this help message

Examples:
  hato-admin list-accounts
  hato-admin add-account --email user@outlook.com --refresh-token "0.AX0A..."
  hato-admin import-accounts --file accounts.txt --mode update
  hato-admin export-accounts --format json --output accounts.json
  hato-admin list-messages --email user@outlook.com --limit 5
  hato-admin authorize --email user@outlook.com

Use 'hato-admin <command> --help' for more information about a command.
`)
}

// loadConfig loads the TOML configuration, tolerating a missing default
// config file the same way the server does.
func loadConfig(fs *flag.FlagSet, configPath string) config.Config {
	cfg := config.NewDefaultConfig()
	if err := config.LoadConfigFromFile(configPath, &cfg); err != nil {
		if os.IsNotExist(err) {
			if isFlagSet(fs, "config") {
				log.Fatalf("ERROR: specified configuration file '%s' not found: %v", configPath, err)
			}
			log.Printf("WARNING: default configuration file '%s' not found. Using defaults.", configPath)
		} else {
			log.Fatalf("FATAL: error parsing configuration file '%s': %v", configPath, err)
		}
	}
	return cfg
}

func openStore(ctx context.Context, cfg *config.Config) store.Store {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open account store: %v", err)
	}
	return st
}

// isFlagSet checks whether a flag was explicitly set on the command line
func isFlagSet(fs *flag.FlagSet, name string) bool {
	isSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			isSet = true
		}
	})
	return isSet
}
