// Package config loads and hot-reloads the YAML configuration file a
// running edgewired process is started with. Grounded on
// JeelKantaria-db-bouncer's internal/config/config.go: the same
// read-substitute-unmarshal-validate-default pipeline and fsnotify-based
// Watcher, adapted from DBBouncer's multi-tenant pool config to this
// server's single-backend listener config.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for edgewired.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Backend BackendConfig `yaml:"backend"`
	Query   QueryConfig   `yaml:"query"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// DeveloperMode enables the extra "pgaddr" ParameterStatus field during
	// the handshake (spec.md §4.3). Hot-reloadable.
	DeveloperMode bool `yaml:"developer_mode"`
}

// ListenConfig defines the address and optional TLS material edgewired
// listens with.
type ListenConfig struct {
	Address string `yaml:"address"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

// BackendConfig holds the SQL backend connection string and pooling knobs.
type BackendConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxConnections int           `yaml:"max_connections"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Redacted returns a copy of the BackendConfig with the DSN masked, safe to
// log.
func (b BackendConfig) Redacted() BackendConfig {
	c := b
	if c.DSN != "" {
		c.DSN = "***REDACTED***"
	}
	return c
}

// QueryConfig controls the compiled-query cache and framing layer. These
// fields are not hot-reloadable: they are passed to the Server once at
// process start, and a changed value takes effect only after a restart.
type QueryConfig struct {
	CacheEnabled    bool `yaml:"cache_enabled"`
	BufferedMsgSize int  `yaml:"buffered_msg_size"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values, leaving unset variables untouched.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Address == "" {
		cfg.Listen.Address = "127.0.0.1:5656"
	}
	if cfg.Backend.MaxConnections == 0 {
		cfg.Backend.MaxConnections = 20
	}
	if cfg.Backend.AcquireTimeout == 0 {
		cfg.Backend.AcquireTimeout = 10 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Query.BufferedMsgSize == 0 {
		cfg.Query.BufferedMsgSize = 64 * 1024
	}
}

func validate(cfg *Config) error {
	if cfg.Backend.DSN == "" {
		return fmt.Errorf("backend.dsn is required")
	}

	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", cfg.LogLevel)
	}

	return nil
}

// Level parses LogLevel into a slog.Level, defaulting to Info on an empty
// or already-validated string.
func (c *Config) Level() slog.Level {
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

// Watcher watches a config file for changes and calls the callback with the
// newly loaded Config. Intended for the hot-reloadable subset of Config
// (spec.md §9's Open Question on live reconfiguration): callers are
// expected to only act on the field documented as hot-reloadable above
// (DeveloperMode) and ignore the rest until the next restart.
type Watcher struct {
	path     string
	callback func(*Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, logger *slog.Logger, callback func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		logger:   logger,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		cw.logger.Error("config hot-reload failed", "err", err)
		return
	}

	cw.logger.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
