// Package config loads the verifier configuration from defaults, an optional
// YAML file and MAPSETVERIFIER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort         = errors.New("invalid server port")
	ErrInvalidHubPath      = errors.New("hub path must start with /")
	ErrInvalidTimeout      = errors.New("timeout must not be negative")
	ErrInvalidHistoryLimit = errors.New("snapshot history limit must not be negative")
	ErrInvalidFileSize     = errors.New("invalid snapshot max file size")
	ErrInvalidDebounce     = errors.New("watch debounce must be positive")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidLogFormat    = errors.New("invalid log format")
	ErrInvalidSampleRatio  = errors.New("sample ratio must be between 0 and 1")
)

const (
	envPrefix  = "MAPSETVERIFIER"
	configName = ".mapsetverifier"
	maxPort    = 65535
)

// Config holds all configuration for the verifier.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Snapshots     SnapshotsConfig     `mapstructure:"snapshots"`
	Watch         WatchConfig         `mapstructure:"watch"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig holds the HTTP and WebSocket listener configuration.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	HubPath           string        `mapstructure:"hub_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	Port              int           `mapstructure:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AnalysisConfig holds analysis task configuration.
type AnalysisConfig struct {
	// TaskTimeout is the best-effort deadline of one analysis. Zero means
	// none.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
}

// SnapshotsConfig holds the snapshot database configuration.
type SnapshotsConfig struct {
	Database     string `mapstructure:"database"`
	MaxFileSize  string `mapstructure:"max_file_size"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// MaxFileSizeBytes parses MaxFileSize, e.g. "4MB".
func (s SnapshotsConfig) MaxFileSizeBytes() (int64, error) {
	size, err := humanize.ParseBytes(s.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidFileSize, s.MaxFileSize, err)
	}

	return int64(size), nil //nolint:gosec // humanize caps at realistic sizes.
}

// WatchConfig holds the directory watcher configuration.
type WatchConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	Enabled     bool          `mapstructure:"enabled"`
	AutoRefresh bool          `mapstructure:"auto_refresh"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel converts Level to a slog.Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, l.Level)
	}

	return level, nil
}

// ObservabilityConfig holds OpenTelemetry export configuration.
type ObservabilityConfig struct {
	Environment  string  `mapstructure:"environment"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	Prometheus   bool    `mapstructure:"prometheus"`
	DebugTrace   bool    `mapstructure:"debug_trace"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
}

// LoadConfig loads configuration. An empty configPath searches for
// .mapsetverifier.yaml in the working directory and the home directory.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")

		home, homeErr := os.UserHomeDir()
		if homeErr == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// DefaultDatabasePath is the snapshot database location used when none is
// configured: the user config directory, or the working directory as a
// fallback.
func DefaultDatabasePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(appDir, databaseFile)
	}

	return filepath.Join(dir, appDir, databaseFile)
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("server.host", DefaultHost)
	viperCfg.SetDefault("server.port", DefaultPort)
	viperCfg.SetDefault("server.hub_path", DefaultHubPath)
	viperCfg.SetDefault("server.read_header_timeout", DefaultReadHeaderTimeout)
	viperCfg.SetDefault("server.write_timeout", DefaultWriteTimeout)
	viperCfg.SetDefault("server.idle_timeout", DefaultIdleTimeout)
	viperCfg.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	viperCfg.SetDefault("analysis.task_timeout", DefaultTaskTimeout)

	viperCfg.SetDefault("snapshots.database", DefaultDatabasePath())
	viperCfg.SetDefault("snapshots.history_limit", DefaultHistoryLimit)
	viperCfg.SetDefault("snapshots.max_file_size", DefaultMaxFileSize)

	viperCfg.SetDefault("watch.enabled", DefaultWatchEnabled)
	viperCfg.SetDefault("watch.debounce", DefaultDebounce)
	viperCfg.SetDefault("watch.auto_refresh", DefaultAutoRefresh)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.prometheus", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.debug_trace", false)
	viperCfg.SetDefault("observability.trace_verbose", false)
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if !strings.HasPrefix(config.Server.HubPath, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidHubPath, config.Server.HubPath)
	}

	for name, d := range map[string]time.Duration{
		"server.write_timeout":    config.Server.WriteTimeout,
		"server.shutdown_timeout": config.Server.ShutdownTimeout,
		"analysis.task_timeout":   config.Analysis.TaskTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidTimeout, name, d)
		}
	}

	if config.Snapshots.HistoryLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHistoryLimit, config.Snapshots.HistoryLimit)
	}

	_, sizeErr := config.Snapshots.MaxFileSizeBytes()
	if sizeErr != nil {
		return sizeErr
	}

	if config.Watch.Enabled && config.Watch.Debounce <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, config.Watch.Debounce)
	}

	_, levelErr := config.Logging.SlogLevel()
	if levelErr != nil {
		return levelErr
	}

	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	ratio := config.Observability.SampleRatio
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampleRatio, ratio)
	}

	return nil
}
