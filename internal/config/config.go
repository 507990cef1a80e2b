package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the dispatchd server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	HTTPPort    int
	TLSCert     string
	TLSKey      string
	LogLevel    string
	LogFormat   string // log output format: "text" or "json"
	CORSOrigins string

	ListingDir    string // where the dispatcher-facing XML listings are written
	RecordingsDir string // call recording files
	RetainCount   int    // number of recordings kept before retention kicks in
	ReapInterval  time.Duration

	AsteriskPath   string        // asterisk binary used for -rx control commands
	PBXTimeout     time.Duration // upper bound on a single control command
	ChannelTech    string        // channel technology prefix, e.g. "SIP"
	UsersConf      string
	SIPConf        string
	ExtensionsConf string

	ConsoleIDs    string // comma-separated dispatch console request ids
	JWTSecret     string // secret for operator bearer tokens
	BootstrapUser string // operator account created on first run
	BootstrapPass string
}

// defaults
const (
	defaultDataDir        = "./data"
	defaultHTTPPort       = 8000
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultListingDir     = "/var/www/html"
	defaultRecordingsDir  = "/var/www/html/recordings"
	defaultRetainCount    = 50
	defaultReapInterval   = 5 * time.Second
	defaultAsteriskPath   = "asterisk"
	defaultPBXTimeout     = 10 * time.Second
	defaultChannelTech    = "SIP"
	defaultUsersConf      = "/etc/asterisk/users.conf"
	defaultSIPConf        = "/etc/asterisk/sip.conf"
	defaultExtensionsConf = "/etc/asterisk/extensions.conf"
	defaultConsoleIDs     = "000"
	defaultBootstrapUser  = "operator"
)

// envPrefix is the prefix for all dispatchd environment variables.
const envPrefix = "DISPATCHD_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("dispatchd", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to TLS private key file")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.ListingDir, "listing-dir", defaultListingDir, "directory for dispatcher XML listings")
	fs.StringVar(&cfg.RecordingsDir, "recordings-dir", defaultRecordingsDir, "directory holding call recording files")
	fs.IntVar(&cfg.RetainCount, "retain-recordings", defaultRetainCount, "number of recordings retained before older files are reaped")
	fs.DurationVar(&cfg.ReapInterval, "reap-interval", defaultReapInterval, "polling interval of the recording retention reaper")
	fs.StringVar(&cfg.AsteriskPath, "asterisk-path", defaultAsteriskPath, "path to the asterisk binary")
	fs.DurationVar(&cfg.PBXTimeout, "pbx-timeout", defaultPBXTimeout, "timeout for a single PBX control command")
	fs.StringVar(&cfg.ChannelTech, "channel-tech", defaultChannelTech, "channel technology prefix used when matching live channels")
	fs.StringVar(&cfg.UsersConf, "users-conf", defaultUsersConf, "path to the PBX user profile configuration")
	fs.StringVar(&cfg.SIPConf, "sip-conf", defaultSIPConf, "path to the PBX account configuration")
	fs.StringVar(&cfg.ExtensionsConf, "extensions-conf", defaultExtensionsConf, "path to the PBX dialplan configuration")
	fs.StringVar(&cfg.ConsoleIDs, "console-ids", defaultConsoleIDs, "comma-separated dispatch console request ids")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "secret for operator bearer tokens (auto-generated if empty)")
	fs.StringVar(&cfg.BootstrapUser, "bootstrap-user", defaultBootstrapUser, "operator username created on first run")
	fs.StringVar(&cfg.BootstrapPass, "bootstrap-pass", "", "operator password for first-run bootstrap")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the
	// command line. CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Without a configured secret, tokens do not survive a restart.
	if cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":          envPrefix + "DATA_DIR",
		"http-port":         envPrefix + "HTTP_PORT",
		"tls-cert":          envPrefix + "TLS_CERT",
		"tls-key":           envPrefix + "TLS_KEY",
		"log-level":         envPrefix + "LOG_LEVEL",
		"log-format":        envPrefix + "LOG_FORMAT",
		"cors-origins":      envPrefix + "CORS_ORIGINS",
		"listing-dir":       envPrefix + "LISTING_DIR",
		"recordings-dir":    envPrefix + "RECORDINGS_DIR",
		"retain-recordings": envPrefix + "RETAIN_RECORDINGS",
		"reap-interval":     envPrefix + "REAP_INTERVAL",
		"asterisk-path":     envPrefix + "ASTERISK_PATH",
		"pbx-timeout":       envPrefix + "PBX_TIMEOUT",
		"channel-tech":      envPrefix + "CHANNEL_TECH",
		"users-conf":        envPrefix + "USERS_CONF",
		"sip-conf":          envPrefix + "SIP_CONF",
		"extensions-conf":   envPrefix + "EXTENSIONS_CONF",
		"console-ids":       envPrefix + "CONSOLE_IDS",
		"jwt-secret":        envPrefix + "JWT_SECRET",
		"bootstrap-user":    envPrefix + "BOOTSTRAP_USER",
		"bootstrap-pass":    envPrefix + "BOOTSTRAP_PASS",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "tls-cert":
			cfg.TLSCert = val
		case "tls-key":
			cfg.TLSKey = val
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "listing-dir":
			cfg.ListingDir = val
		case "recordings-dir":
			cfg.RecordingsDir = val
		case "retain-recordings":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RetainCount = v
			}
		case "reap-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.ReapInterval = v
			}
		case "asterisk-path":
			cfg.AsteriskPath = val
		case "pbx-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.PBXTimeout = v
			}
		case "channel-tech":
			cfg.ChannelTech = val
		case "users-conf":
			cfg.UsersConf = val
		case "sip-conf":
			cfg.SIPConf = val
		case "extensions-conf":
			cfg.ExtensionsConf = val
		case "console-ids":
			cfg.ConsoleIDs = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "bootstrap-user":
			cfg.BootstrapUser = val
		case "bootstrap-pass":
			cfg.BootstrapPass = val
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.RetainCount < 0 {
		return fmt.Errorf("retain-recordings must not be negative, got %d", c.RetainCount)
	}
	if c.ReapInterval < time.Second {
		return fmt.Errorf("reap-interval must be at least 1s, got %s", c.ReapInterval)
	}
	if c.PBXTimeout < time.Second {
		return fmt.Errorf("pbx-timeout must be at least 1s, got %s", c.PBXTimeout)
	}
	if c.ChannelTech == "" {
		return fmt.Errorf("channel-tech must not be empty")
	}
	if len(c.ConsoleIDList()) == 0 {
		return fmt.Errorf("console-ids must name at least one console")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	// TLS cert and key must both be set or both be empty.
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must both be provided or both be omitted")
	}

	return nil
}

// ConsoleIDList returns the configured dispatch console request ids.
func (c *Config) ConsoleIDList() []string {
	parts := strings.Split(c.ConsoleIDs, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// TLSEnabled returns true if TLS certificates are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != ""
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
