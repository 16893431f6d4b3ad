package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/helpers"
)

// Config is the top-level hato configuration, loaded from a TOML file.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	HTTP     HTTPConfig     `toml:"http"`
	Accounts AccountsConfig `toml:"accounts"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Mail     MailConfig     `toml:"mail"`
	Archive  ArchiveConfig  `toml:"archive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// HTTPConfig holds the HTTP API server configuration.
type HTTPConfig struct {
	Start        bool     `toml:"start"`         // Whether to start the HTTP API server
	Addr         string   `toml:"addr"`          // Listen address, e.g. ":8000"
	AdminToken   string   `toml:"admin_token"`   // Admin token: plaintext or bcrypt hash ($2a$/$2b$)
	AllowedHosts []string `toml:"allowed_hosts"` // If empty, all hosts are allowed
	StaticDir    string   `toml:"static_dir"`    // Directory with the web frontend; empty disables it
	ReadTimeout  string   `toml:"read_timeout"`  // HTTP server read timeout (default: "30s")
	WriteTimeout string   `toml:"write_timeout"` // HTTP server write timeout (default: "2m")
	IdleTimeout  string   `toml:"idle_timeout"`  // HTTP server idle timeout (default: "2m")
}

// GetReadTimeout parses the HTTP server read timeout
func (h *HTTPConfig) GetReadTimeout() (time.Duration, error) {
	if h.ReadTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(h.ReadTimeout)
}

// GetWriteTimeout parses the HTTP server write timeout. The default is
// generous because a message fetch may ride out several upstream connect
// attempts before responding.
func (h *HTTPConfig) GetWriteTimeout() (time.Duration, error) {
	if h.WriteTimeout == "" {
		return 2 * time.Minute, nil
	}
	return helpers.ParseDuration(h.WriteTimeout)
}

// GetIdleTimeout parses the HTTP server idle timeout
func (h *HTTPConfig) GetIdleTimeout() (time.Duration, error) {
	if h.IdleTimeout == "" {
		return 2 * time.Minute, nil
	}
	return helpers.ParseDuration(h.IdleTimeout)
}

// AccountsConfig selects and configures the account store backend.
type AccountsConfig struct {
	Backend  string          `toml:"backend"`  // Account store backend: "file", "sqlite", or "postgres"
	Path     string          `toml:"path"`     // File path for the file and sqlite backends
	Postgres *PostgresConfig `toml:"postgres"` // Postgres settings, required when backend is "postgres"
}

// PostgresConfig holds connection settings for the postgres account store.
type PostgresConfig struct {
	Host            string      `toml:"host"`
	Port            interface{} `toml:"port"` // Database port (default: 5432), can be string or integer
	User            string      `toml:"user"`
	Password        string      `toml:"password"`
	Name            string      `toml:"name"`
	TLSMode         bool        `toml:"tls"`
	MaxConns        int         `toml:"max_conns"`          // Maximum number of connections in the pool
	MinConns        int         `toml:"min_conns"`          // Minimum number of connections in the pool
	MaxConnLifetime string      `toml:"max_conn_lifetime"`  // Maximum lifetime of a connection
	MaxConnIdleTime string      `toml:"max_conn_idle_time"` // Maximum idle time before a connection is closed
	QueryTimeout    string      `toml:"query_timeout"`      // Timeout for individual database queries (e.g., "30s")
}

// GetPort normalizes the port value, which TOML may decode as a string or an
// integer.
func (p *PostgresConfig) GetPort() (int, error) {
	var n int64
	var err error
	switch v := p.Port.(type) {
	case nil:
		return 5432, nil
	case string:
		if v == "" {
			return 5432, nil
		}
		n, err = strconv.ParseInt(v, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid string for port: %q", v)
		}
	case int:
		n = int64(v)
	case int64: // TOML parsers often use int64 for numbers
		n = v
	default:
		return 0, fmt.Errorf("invalid type for port: %T", v)
	}
	port := int(n)
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port number %d is out of the valid range (1-65535)", port)
	}
	return port, nil
}

// GetMaxConnLifetime parses the max connection lifetime duration
func (p *PostgresConfig) GetMaxConnLifetime() (time.Duration, error) {
	if p.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return helpers.ParseDuration(p.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration
func (p *PostgresConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if p.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return helpers.ParseDuration(p.MaxConnIdleTime)
}

// GetQueryTimeout parses the query timeout duration
func (p *PostgresConfig) GetQueryTimeout() (time.Duration, error) {
	if p.QueryTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(p.QueryTimeout)
}

// OAuthConfig holds the OAuth2 client settings used for token refresh. The
// endpoint overrides exist for testing against a local token server; in
// production the defaults point at the Microsoft consumers tenant.
type OAuthConfig struct {
	ClientID          string `toml:"client_id"`          // Default OAuth2 client ID for accounts without their own
	Scope             string `toml:"scope"`              // OAuth2 scope requested on refresh
	TokenEndpoint     string `toml:"token_endpoint"`     // Token endpoint override
	AuthorizeEndpoint string `toml:"authorize_endpoint"` // Authorize endpoint override
}

// MailConfig holds the upstream IMAP endpoint and session settings.
type MailConfig struct {
	Server          string `toml:"server"`           // IMAP server address as host:port
	Mailbox         string `toml:"mailbox"`          // Mailbox opened for listing and fetching (default: "INBOX")
	ConnectAttempts int    `toml:"connect_attempts"` // Connection attempts per session open (default: 3)
	AttemptTimeout  string `toml:"attempt_timeout"`  // Deadline for a single dial+auth+select attempt (default: "10s")
	RetryPause      string `toml:"retry_pause"`      // Pause between connection attempts (default: "1s")
}

// GetAttemptTimeout parses the per-attempt connection timeout
func (m *MailConfig) GetAttemptTimeout() (time.Duration, error) {
	if m.AttemptTimeout == "" {
		return consts.ConnectAttemptTimeout, nil
	}
	return helpers.ParseDuration(m.AttemptTimeout)
}

// GetRetryPause parses the pause between connection attempts
func (m *MailConfig) GetRetryPause() (time.Duration, error) {
	if m.RetryPause == "" {
		return consts.ConnectRetryPause, nil
	}
	return helpers.ParseDuration(m.RetryPause)
}

// ArchiveConfig holds the optional S3 message archive configuration.
type ArchiveConfig struct {
	Enabled    bool   `toml:"enabled"`
	Endpoint   string `toml:"endpoint"`
	DisableTLS bool   `toml:"disable_tls"`
	AccessKey  string `toml:"access_key"`
	SecretKey  string `toml:"secret_key"`
	Bucket     string `toml:"bucket"`
	Debug      bool   `toml:"debug"` // Enable detailed S3 request/response tracing
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",  // Default to stderr
			Format: "console", // Default to console format
			Level:  "info",    // Default to info level
		},
		HTTP: HTTPConfig{
			Start:        true,
			Addr:         ":8000",
			AdminToken:   "admin123",
			AllowedHosts: []string{},
			StaticDir:    "./static",
			ReadTimeout:  "30s",
			WriteTimeout: "2m",
			IdleTimeout:  "2m",
		},
		Accounts: AccountsConfig{
			Backend: "file",
			Path:    "./config.txt",
			Postgres: &PostgresConfig{
				Host:            "localhost",
				Port:            "5432",
				User:            "postgres",
				Password:        "",
				Name:            "hato_accounts",
				TLSMode:         false,
				MaxConns:        10,
				MinConns:        2,
				MaxConnLifetime: "1h",
				MaxConnIdleTime: "30m",
				QueryTimeout:    "30s",
			},
		},
		OAuth: OAuthConfig{
			ClientID:          consts.DefaultClientID,
			Scope:             consts.OAuthScope,
			TokenEndpoint:     consts.TokenEndpoint,
			AuthorizeEndpoint: consts.AuthorizeEndpoint,
		},
		Mail: MailConfig{
			Server:          consts.IMAPAddress,
			Mailbox:         consts.DefaultMailbox,
			ConnectAttempts: consts.ConnectAttempts,
			AttemptTimeout:  "10s",
			RetryPause:      "1s",
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.HTTP.Start && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when the HTTP server is enabled")
	}

	validBackends := []string{"file", "sqlite", "postgres"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.Accounts.Backend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		return fmt.Errorf("invalid accounts backend '%s', must be one of: %s",
			c.Accounts.Backend, strings.Join(validBackends, ", "))
	}

	switch c.Accounts.Backend {
	case "file", "sqlite":
		if c.Accounts.Path == "" {
			return fmt.Errorf("accounts.path is required for the %s backend", c.Accounts.Backend)
		}
	case "postgres":
		pg := c.Accounts.Postgres
		if pg == nil {
			return fmt.Errorf("accounts.postgres section is required for the postgres backend")
		}
		if pg.Host == "" {
			return fmt.Errorf("accounts.postgres.host is required")
		}
		if pg.User == "" {
			return fmt.Errorf("accounts.postgres.user is required")
		}
		if pg.Name == "" {
			return fmt.Errorf("accounts.postgres.name is required")
		}
		if _, err := pg.GetPort(); err != nil {
			return fmt.Errorf("accounts.postgres: %w", err)
		}
	}

	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required")
	}
	if c.OAuth.Scope == "" {
		return fmt.Errorf("oauth.scope is required")
	}
	if c.OAuth.TokenEndpoint == "" {
		return fmt.Errorf("oauth.token_endpoint is required")
	}

	if c.Mail.Server == "" {
		return fmt.Errorf("mail.server is required")
	}
	if _, _, err := net.SplitHostPort(c.Mail.Server); err != nil {
		return fmt.Errorf("mail.server must be host:port: %w", err)
	}
	if c.Mail.Mailbox == "" {
		return fmt.Errorf("mail.mailbox is required")
	}
	if c.Mail.ConnectAttempts < 1 {
		return fmt.Errorf("mail.connect_attempts must be at least 1, got %d", c.Mail.ConnectAttempts)
	}

	durationChecks := []struct {
		name string
		get  func() (time.Duration, error)
	}{
		{"http.read_timeout", c.HTTP.GetReadTimeout},
		{"http.write_timeout", c.HTTP.GetWriteTimeout},
		{"http.idle_timeout", c.HTTP.GetIdleTimeout},
		{"mail.attempt_timeout", c.Mail.GetAttemptTimeout},
		{"mail.retry_pause", c.Mail.GetRetryPause},
	}
	for _, check := range durationChecks {
		if _, err := check.get(); err != nil {
			return fmt.Errorf("invalid %s: %w", check.name, err)
		}
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive.endpoint is required when the archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when the archive is enabled")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return fmt.Errorf("archive.access_key and archive.secret_key are required when the archive is enabled")
		}
	}

	return nil
}

// LoadConfigFromFile reads and decodes a TOML configuration file over cfg.
// Duplicate keys are tolerated with a warning; unknown keys are reported so
// typos do not go unnoticed.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "has already been defined") {
			return enhanceConfigError(err)
		}

		log.Printf("WARNING: Configuration file '%s' contains duplicate keys: %v", configPath, err)
		log.Printf("WARNING: Only the first occurrence of each key will be used. Please fix your configuration file.")

		metadata, err = toml.Decode(commentOutDuplicateKeys(string(content)), cfg)
		if err != nil {
			return enhanceConfigError(err)
		}
	}

	// Unknown keys might be typos or deprecated settings
	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range undecoded {
			log.Printf("WARNING:   - %s", key)
		}
	}

	trimStringFields(reflect.ValueOf(cfg).Elem())
	return nil
}

// commentOutDuplicateKeys rewrites TOML content so only the first occurrence
// of each key within a section survives. Later duplicates are commented out.
func commentOutDuplicateKeys(content string) string {
	var result []string
	var section string
	seen := make(map[string]int)

	for lineNum, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			result = append(result, line)
			continue
		}

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.Trim(trimmed, "[]")
			result = append(result, line)
			continue
		}

		if key, _, found := strings.Cut(trimmed, "="); found {
			fullKey := section + "." + strings.TrimSpace(key)
			if first, dup := seen[fullKey]; dup {
				log.Printf("WARNING: Duplicate key '%s' at line %d (first occurrence at line %d). Ignoring duplicate.",
					fullKey, lineNum+1, first+1)
				result = append(result, "# DUPLICATE IGNORED: "+line)
				continue
			}
			seen[fullKey] = lineNum
		}

		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// enhanceConfigError provides more helpful error messages for common TOML parsing issues
func enhanceConfigError(err error) error {
	errMsg := err.Error()

	if strings.Contains(errMsg, "has already been defined") {
		return fmt.Errorf("%w\n\nHINT: You have a duplicate configuration key in your TOML file.\n"+
			"Please check your configuration file and remove or comment out the duplicate entry.", err)
	}

	if strings.Contains(errMsg, "expected value but found \"f\"") ||
		strings.Contains(errMsg, "expected value but found \"t\"") {
		return fmt.Errorf("%w\n\nHINT: Invalid boolean value in your TOML configuration file.\n"+
			"In TOML, boolean values must be exactly 'true' or 'false' (lowercase, unquoted)", err)
	}

	if strings.Contains(errMsg, "expected") || strings.Contains(errMsg, "invalid") {
		return fmt.Errorf("%w\n\nHINT: There is a syntax error in your TOML configuration file.\n"+
			"Please check that all strings are quoted, brackets are balanced, and\n"+
			"section headers use the [section] format", err)
	}

	return err
}

// trimStringFields recursively trims whitespace from all string fields in a struct
func trimStringFields(v reflect.Value) {
	if !v.IsValid() || !v.CanSet() {
		return
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(strings.TrimSpace(v.String()))

	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			elem := v.Index(i)
			if elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			} else {
				trimStringFields(elem)
			}
		}

	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if field.CanSet() {
				trimStringFields(field)
			}
		}

	case reflect.Ptr:
		if !v.IsNil() {
			trimStringFields(v.Elem())
		}

	case reflect.Interface:
		// Port may decode as a string or an integer
		if !v.IsNil() {
			if elem := v.Elem(); elem.Kind() == reflect.String {
				v.Set(reflect.ValueOf(strings.TrimSpace(elem.String())))
			}
		}
	}
}
