// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). Following the Ports and Adapters (Hexagonal) pattern,
// these interfaces allow the application to remain independent of specific
// implementations like inference runtimes, databases, or CLI frameworks.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., Backend, SafetyValidator)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/doeshing/cmdai-go/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.cmdai/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// ContextProbe captures an environment snapshot for prompt building. The
// returned snapshot is always usable; a non-nil *domain.ProbeDegradedError
// names sub-probes that failed and is logged, never fatal.
type ContextProbe interface {
	Capture(context.Context) (domain.ExecutionContext, error)
}

// GenerationCall contains all data a backend needs to produce one command.
// PriorCommand and PriorRisk are set on refinement rounds so the model can
// see what it produced before and why it was flagged.
type GenerationCall struct {
	Prompt        string
	Context       domain.ExecutionContext
	ModelOverride string
	PriorCommand  string
	PriorRisk     *domain.RiskAssessment
}

// Backend is a single inference source for shell commands.
type Backend interface {
	// ID is the stable name used in config backend_order and results.
	ID() string
	// Available performs a cheap readiness check; the returned error carries
	// the reason the backend cannot serve right now.
	Available(ctx context.Context) error
	// Generate produces a raw command for the call. Implementations honor
	// ctx cancellation and deadlines.
	Generate(ctx context.Context, call GenerationCall) (domain.RawGeneration, error)
}

// BackendRegistry walks the configured fallback chain strictly in order.
type BackendRegistry interface {
	// Generate returns the first successful backend's output together with
	// that backend's ID. When every backend fails the error is a
	// *domain.NoBackendError listing each attempt.
	Generate(ctx context.Context, call GenerationCall) (domain.RawGeneration, string, error)
	// Backends exposes the chain in fallback order for diagnostics.
	Backends() []Backend
}

// SafetyValidator classifies commands against the loaded rule table. Assess
// is pure and safe for concurrent use; rule loading problems surface at
// construction time, never here.
type SafetyValidator interface {
	Assess(command string, env domain.ExecutionContext) domain.RiskAssessment
	Rules() []domain.PatternRule
}

// CommandRunner drives a validated command through the execution lifecycle.
// The result always carries a terminal state; the error mirrors refusals,
// spawn failures, and timeouts for errors.As callers.
type CommandRunner interface {
	Execute(ctx context.Context, req domain.ExecRequest) (domain.ExecutionResult, error)
}

// ConfirmationPrompter handles interactive user confirmations for risky
// commands. Enabled reports whether a user is actually attached to answer.
type ConfirmationPrompter interface {
	Confirm(command string, risk domain.RiskAssessment) (bool, error)
	Enabled() bool
}

// ModelHandle pins one cached artifact for reading. Release must be called
// when inference finishes; a pinned entry is never evicted.
type ModelHandle interface {
	Path() string
	Release()
}

// ModelStore caches model artifacts on disk with an LRU size bound.
type ModelStore interface {
	// Ensure returns a pinned handle, fetching the artifact first when it is
	// missing. Concurrent calls for the same ID share a single fetch.
	Ensure(ctx context.Context, spec domain.ModelSpec) (ModelHandle, error)
	// Get returns a pinned handle only if the artifact is already cached.
	Get(ctx context.Context, id string) (ModelHandle, error)
	List(ctx context.Context) ([]domain.CachedModel, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (domain.CacheStats, error)
}

// HistoryRepository persists generation and execution records.
type HistoryRepository interface {
	Append(ctx context.Context, record domain.HistoryRecord) error
	Recent(ctx context.Context, limit int) ([]domain.HistoryRecord, error)
	Search(ctx context.Context, term string, limit int) ([]domain.HistoryRecord, error)
	Close() error
}

// AuditEvent is one append-only security log line.
type AuditEvent struct {
	Time    time.Time
	Session string
	Kind    string
	Command string
	Level   domain.RiskLevel
	Rules   []string
	Detail  string
}

// AuditLogger records refusals, overrides, and risky executions.
type AuditLogger interface {
	Record(event AuditEvent) error
}

// Clipboard provides cross-platform clipboard integration for copying commands.
type Clipboard interface {
	Copy(text string) error
	Enabled() bool
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
