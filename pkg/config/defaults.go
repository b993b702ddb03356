package config

import "time"

// Server defaults.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 5173
	DefaultHubPath           = "/mapsetverifier/ws"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
)

// Analysis defaults. A zero task timeout disables the per-task deadline.
const (
	DefaultTaskTimeout = time.Duration(0)
)

// Snapshot defaults.
const (
	DefaultHistoryLimit = 20
	DefaultMaxFileSize  = "4MB"
	databaseFile        = "snapshots.db"
	appDir              = "mapsetverifier"
)

// Watch defaults.
const (
	DefaultWatchEnabled = true
	DefaultDebounce     = 500 * time.Millisecond
	DefaultAutoRefresh  = true
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
