package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/hotexit/internal/domain/hotexit"
	"github.com/GriffinCanCode/hotexit/internal/domain/session"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/hotexit/internal/infrastructure/storage"
)

// FileName is the config file looked up in the data directory
const FileName = "hotexit.toml"

// EnvConfigFile names an explicit config file path
const EnvConfigFile = "HOTEXIT_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	HotExit   HotExitConfig   `toml:"hot_exit"`
	Shell     ShellConfig     `toml:"shell"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	CORS      CORSConfig      `toml:"cors"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `toml:"port" envconfig:"PORT"`
	Host            string   `toml:"host" envconfig:"HOST"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// HotExitConfig holds capture/restore settings.
type HotExitConfig struct {
	DataDir         string   `toml:"data_dir" envconfig:"HOTEXIT_DATA_DIR"`
	CaptureTimeout  Duration `toml:"capture_timeout" envconfig:"HOTEXIT_CAPTURE_TIMEOUT"`
	MaxAgeDays      int64    `toml:"max_age_days" envconfig:"HOTEXIT_MAX_AGE_DAYS"`
	StalePolicy     string   `toml:"stale_policy" envconfig:"HOTEXIT_STALE_POLICY"`
	BackupPolicy    string   `toml:"backup_policy" envconfig:"HOTEXIT_BACKUP_POLICY"`
	DocumentWindows []string `toml:"document_windows" envconfig:"HOTEXIT_DOCUMENT_WINDOWS"`
	AppVersion      string   `toml:"app_version" envconfig:"HOTEXIT_APP_VERSION"`
	// MailboxSize bounds signals held for windows that have not connected yet
	MailboxSize int `toml:"mailbox_size" envconfig:"HOTEXIT_MAILBOX_SIZE"`
}

// ShellConfig holds host shell client configuration. An empty URL disables
// window creation by the backend.
type ShellConfig struct {
	URL             string   `toml:"url" envconfig:"SHELL_URL"`
	Timeout         Duration `toml:"timeout" envconfig:"SHELL_TIMEOUT"`
	RetryMax        int      `toml:"retry_max" envconfig:"SHELL_RETRY_MAX"`
	RateLimit       float64  `toml:"rate_limit" envconfig:"SHELL_RATE_LIMIT"`
	BreakerFailures uint32   `toml:"breaker_failures" envconfig:"SHELL_BREAKER_FAILURES"`
	BreakerTimeout  Duration `toml:"breaker_timeout" envconfig:"SHELL_BREAKER_TIMEOUT"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `toml:"requests_per_second" envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `toml:"burst" envconfig:"RATE_LIMIT_BURST"`
	Enabled           bool `toml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
}

// CORSConfig lists origins allowed to call the API.
type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins" envconfig:"CORS_ALLOW_ORIGINS"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "127.0.0.1",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		HotExit: HotExitConfig{
			DataDir:         DefaultDataDir(),
			CaptureTimeout:  Duration(hotexit.DefaultCaptureTimeout),
			MaxAgeDays:      session.MaxSessionAgeDays,
			StalePolicy:     string(hotexit.StalePrompt),
			BackupPolicy:    string(storage.BackupBestEffort),
			DocumentWindows: append([]string(nil), hotexit.DefaultDocumentWindowPatterns...),
			MailboxSize:     16,
		},
		Shell: ShellConfig{
			Timeout:         Duration(5 * time.Second),
			RetryMax:        2,
			RateLimit:       20,
			BreakerFailures: 3,
			BreakerTimeout:  Duration(30 * time.Second),
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"tauri://localhost", "http://localhost:1420"},
		},
	}
}

// DefaultDataDir is the per-user directory holding session files
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "hotexit")
	}
	return ".hotexit"
}

// Load builds configuration from defaults, the TOML file and the environment,
// in increasing precedence. The file is HOTEXIT_CONFIG when set, otherwise
// hotexit.toml in the data directory if present.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		dataDir := os.Getenv("HOTEXIT_DATA_DIR")
		if dataDir == "" {
			dataDir = DefaultDataDir()
		}
		path = filepath.Join(dataDir, FileName)
	}
	return LoadFile(path, explicit)
}

// LoadFile is Load with an explicit file. A missing file is an error only when required.
func LoadFile(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := readTOML(path, cfg, required); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func readTOML(path string, out *Config, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.New(strict.String())
		}
		return err
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if c.HotExit.DataDir == "" {
		errs = append(errs, errors.New("data directory is required"))
	}
	if c.HotExit.CaptureTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capture timeout must be positive, got %s", c.HotExit.CaptureTimeout))
	}
	if c.HotExit.MaxAgeDays <= 0 {
		errs = append(errs, fmt.Errorf("max age days must be positive, got %d", c.HotExit.MaxAgeDays))
	}
	if _, err := hotexit.ParseStalePolicy(c.HotExit.StalePolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := storage.ParseBackupPolicy(c.HotExit.BackupPolicy); err != nil {
		errs = append(errs, err)
	}
	for _, pattern := range c.HotExit.DocumentWindows {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid document window pattern %q", pattern))
		}
	}
	if c.HotExit.MailboxSize < 0 {
		errs = append(errs, errors.New("mailbox size must not be negative"))
	}
	if c.Shell.URL != "" && c.Shell.Timeout <= 0 {
		errs = append(errs, errors.New("shell timeout must be positive"))
	}
	if c.Shell.RetryMax < 0 {
		errs = append(errs, errors.New("shell retry max must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level: %w", err))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate limit requests per second must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Duration is a time.Duration read from strings like "5s" in TOML and env.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
