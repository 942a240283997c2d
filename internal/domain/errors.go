package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGenerationMalformed marks backend output that no parsing strategy could
// reduce to a single command line.
var ErrGenerationMalformed = errors.New("backend response contained no usable command")

// ErrHistoryDisabled is returned by history operations when recording is off.
var ErrHistoryDisabled = errors.New("history is disabled")

// ErrModelNotCached is returned by cache lookups that do not trigger a fetch.
var ErrModelNotCached = errors.New("model not cached")

// ProbeDegradedError reports sub-probes that failed during context capture.
// The returned snapshot is still valid; callers log and continue.
type ProbeDegradedError struct {
	Probes []string
}

func (e *ProbeDegradedError) Error() string {
	return fmt.Sprintf("context probe degraded: %s", strings.Join(e.Probes, ", "))
}

// BackendUnavailableError reports a single backend that could not serve.
type BackendUnavailableError struct {
	Backend string
	Reason  string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %s", e.Backend, e.Reason)
}

// BackendAttempt records one failed try during registry fallback.
type BackendAttempt struct {
	Backend string
	Reason  string
}

// NoBackendError is returned when every configured backend failed. Attempts
// preserves order so the user sees exactly what was tried and why.
type NoBackendError struct {
	Attempts []BackendAttempt
}

func (e *NoBackendError) Error() string {
	if len(e.Attempts) == 0 {
		return "no inference backend configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Backend, a.Reason))
	}
	return "all backends failed: " + strings.Join(parts, " | ")
}

// RuleCompileError aborts startup when a validator pattern does not compile.
type RuleCompileError struct {
	RuleID  string
	Pattern string
	Err     error
}

func (e *RuleCompileError) Error() string {
	return fmt.Sprintf("security rule %s: invalid pattern %q: %v", e.RuleID, e.Pattern, e.Err)
}

func (e *RuleCompileError) Unwrap() error { return e.Err }

// CacheCapacityError is returned when eviction cannot free enough space
// because the remaining entries are pinned by active readers.
type CacheCapacityError struct {
	NeedBytes int64
	MaxBytes  int64
	InUse     int
}

func (e *CacheCapacityError) Error() string {
	return fmt.Sprintf("model cache full: need %d bytes, limit %d bytes, %d entries pinned by readers", e.NeedBytes, e.MaxBytes, e.InUse)
}

// SpawnError distinguishes a process that never started from one that ran
// and exited non-zero.
type SpawnError struct {
	Err error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn command: %v", e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that the deadline elapsed and the whole process group
// was terminated before the engine returned.
type TimeoutError struct {
	After string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s; process group terminated", e.After)
}

// RefusalError reports an execution stopped before spawn. Rules is non-empty
// for critical blocks; Reason covers declined confirmations and
// non-interactive sessions.
type RefusalError struct {
	Reason string
	Rules  []string
}

func (e *RefusalError) Error() string {
	if len(e.Rules) > 0 {
		return fmt.Sprintf("execution refused (%s): rules %s", e.Reason, strings.Join(e.Rules, ", "))
	}
	return "execution refused: " + e.Reason
}
