package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hatomail/hato/archive"
	"github.com/hatomail/hato/config"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/mailbox"
	"github.com/hatomail/hato/pkg/errors"
	"github.com/hatomail/hato/server/httpapi"
	"github.com/hatomail/hato/store"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	errorHandler := errors.NewErrorHandler()

	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	showVersionShort := flag.Bool("v", false, "Show version information and exit (shorthand)")
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	flag.Parse()

	if *showVersion || *showVersionShort {
		fmt.Printf("hato version %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loadAndValidateConfig(*configPath, &cfg, errorHandler)

	// The admin token can be injected through the environment so the config
	// file does not need to hold the production secret.
	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		cfg.HTTP.AdminToken = token
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer func() {
			logger.Sync()
			logFile.Close()
		}()
	} else {
		defer logger.Sync() // Still sync even without a log file
	}

	logger.Infof("HATO mailbox gateway starting (version %s, commit: %s, built: %s)", version, commit, date)
	logger.Infof("Logging format: %s, level: %s", cfg.Logging.Format, cfg.Logging.Level)

	// Set up context and signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Infof("Received signal: %s, shutting down...", sig)
		cancel()
	}()

	st, err := store.Open(ctx, &cfg)
	if err != nil {
		errorHandler.FatalError("open account store", err)
		os.Exit(errorHandler.WaitForExit())
	}
	defer st.Close()
	logger.Infof("Account store ready (backend: %s)", cfg.Accounts.Backend)

	var archiver mailbox.Archiver
	if cfg.Archive.Enabled {
		uploader, err := archive.New(cfg.Archive)
		if err != nil {
			errorHandler.FatalError("initialize message archive", err)
			os.Exit(errorHandler.WaitForExit())
		}
		if err := uploader.EnsureBucket(ctx); err != nil {
			errorHandler.FatalError("prepare archive bucket", err)
			os.Exit(errorHandler.WaitForExit())
		}
		archiver = uploader
		logger.Infof("Message archive enabled (endpoint: %s, bucket: %s)", cfg.Archive.Endpoint, cfg.Archive.Bucket)
	}

	sessions := mailbox.NewSessionManager(&cfg, st, archiver)
	defer sessions.TeardownAll()

	errChan := make(chan error, 1)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		startHTTPServer(ctx, &cfg, st, sessions, errorHandler, errChan)
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		errorHandler.Shutdown(ctx)
		logger.Infof("Waiting for the HTTP server to stop gracefully...")
		select {
		case <-serverDone:
			logger.Infof("HTTP server stopped")
		case <-time.After(10 * time.Second):
			logger.Warn("Server shutdown timeout reached after 10 seconds")
		}
	case err := <-errChan:
		errorHandler.FatalError("server operation", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// loadAndValidateConfig loads configuration from file and validates it
func loadAndValidateConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	// Load configuration from TOML file
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) {
			// If default config doesn't exist, that's okay - use defaults
			if configPath == "config.toml" {
				fmt.Fprintf(os.Stderr, "WARNING: default configuration file '%s' not found. Using application defaults.\n", configPath)
			} else {
				// User specified a config file that doesn't exist - that's an error
				errorHandler.ConfigError(configPath, err)
				os.Exit(errorHandler.WaitForExit())
			}
		} else {
			errorHandler.ConfigError(configPath, err)
			os.Exit(errorHandler.WaitForExit())
		}
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}

	if !cfg.HTTP.Start {
		errorHandler.ValidationError("http", fmt.Errorf("the HTTP server is disabled; enable http.start or use hato-admin for store operations"))
		os.Exit(errorHandler.WaitForExit())
	}
}

// startHTTPServer resolves the HTTP options from the configuration and runs
// the API server until ctx is canceled.
func startHTTPServer(ctx context.Context, cfg *config.Config, st store.Store, sessions *mailbox.SessionManager, errorHandler *errors.ErrorHandler, errChan chan error) {
	readTimeout, err := cfg.HTTP.GetReadTimeout()
	if err != nil {
		errorHandler.ValidationError("http.read_timeout", err)
		os.Exit(errorHandler.WaitForExit())
	}
	writeTimeout, err := cfg.HTTP.GetWriteTimeout()
	if err != nil {
		errorHandler.ValidationError("http.write_timeout", err)
		os.Exit(errorHandler.WaitForExit())
	}
	idleTimeout, err := cfg.HTTP.GetIdleTimeout()
	if err != nil {
		errorHandler.ValidationError("http.idle_timeout", err)
		os.Exit(errorHandler.WaitForExit())
	}

	options := httpapi.Options{
		Addr:            cfg.HTTP.Addr,
		AdminToken:      cfg.HTTP.AdminToken,
		AllowedHosts:    cfg.HTTP.AllowedHosts,
		StaticDir:       cfg.HTTP.StaticDir,
		DefaultClientID: cfg.OAuth.ClientID,
		ReadTimeout:     readTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     idleTimeout,
	}

	httpapi.Start(ctx, st, sessions, options, errChan)
}
