package domain

import "time"

// ExecutionState tracks a command through the engine lifecycle.
type ExecutionState string

const (
	StatePending    ExecutionState = "pending"
	StateConfirming ExecutionState = "confirming"
	StateRunning    ExecutionState = "running"
	StateCompleted  ExecutionState = "completed"
	StateTimedOut   ExecutionState = "timed_out"
	StateKilled     ExecutionState = "killed"
	StateRefused    ExecutionState = "refused"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionState) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateKilled, StateRefused:
		return true
	}
	return false
}

// ExecRequest carries a validated command into the execution engine.
type ExecRequest struct {
	Command          string
	Risk             RiskAssessment
	Shell            string
	WorkingDir       string
	Timeout          time.Duration
	DryRun           bool
	OverrideCritical bool
	ConfirmModerate  bool
}

// ExecutionResult is the engine's terminal report. TimedOut and Killed imply
// the child process group was fully terminated before the result was built.
type ExecutionResult struct {
	State       ExecutionState `json:"state" yaml:"state"`
	ExitCode    int            `json:"exit_code" yaml:"exit_code"`
	Stdout      string         `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	Stderr      string         `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	Duration    time.Duration  `json:"duration_ns" yaml:"duration_ns"`
	TimedOut    bool           `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Killed      bool           `json:"killed,omitempty" yaml:"killed,omitempty"`
	Truncated   bool           `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	DryRunNotes string         `json:"dry_run_notes,omitempty" yaml:"dry_run_notes,omitempty"`
	RefusalWhy  string         `json:"refusal_why,omitempty" yaml:"refusal_why,omitempty"`
}

// Ran reports whether a child process was actually spawned. Dry runs
// complete successfully without spawning anything.
func (r ExecutionResult) Ran() bool {
	if r.DryRunNotes != "" {
		return false
	}
	switch r.State {
	case StateCompleted, StateTimedOut, StateKilled:
		return true
	}
	return false
}
