package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and duration constants
const (
	// DefaultGenerationTimeout bounds a single backend inference call
	DefaultGenerationTimeout = 30 * time.Second
	// DefaultExecutionTimeout bounds a spawned command
	DefaultExecutionTimeout = 30 * time.Second
	// DefaultHTTPClientTimeout is the timeout for HTTP client requests
	DefaultHTTPClientTimeout = 60 * time.Second
	// TermGracePeriod is how long a process group gets after SIGTERM
	TermGracePeriod = 500 * time.Millisecond
	// KillReapTimeout bounds the wait for a SIGKILLed group to be reaped
	KillReapTimeout = 2 * time.Second
)

// Limit constants
const (
	// DefaultMaxRefinements caps the safety refinement loop
	DefaultMaxRefinements = 2
	// DefaultMaxOutputKB bounds captured output per stream
	DefaultMaxOutputKB = 1024
	// DefaultCacheMaxBytes bounds total model artifact storage (10 GiB)
	DefaultCacheMaxBytes = int64(10) * 1024 * 1024 * 1024
)

// History constants
const (
	// DefaultHistoryLimit is the default number of history records to display
	DefaultHistoryLimit = 20
	// DefaultHistorySearchLimit is the default number of search results
	DefaultHistorySearchLimit = 50
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
