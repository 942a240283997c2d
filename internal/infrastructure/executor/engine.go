// Package executor drives validated commands through the execution
// lifecycle: pending, confirming, running, and exactly one terminal state.
// Children run in their own process group so that a timeout or cancellation
// can terminate the whole tree, never just the shell.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Engine is the single implementation of ports.CommandRunner.
type Engine struct {
	prompter  ports.ConfirmationPrompter
	maxOutput int
	log       ports.Logger
}

// NewEngine builds an engine. maxOutputBytes bounds captured stdout and
// stderr per stream; zero applies the default.
func NewEngine(prompter ports.ConfirmationPrompter, maxOutputBytes int, log ports.Logger) *Engine {
	if maxOutputBytes <= 0 {
		maxOutputBytes = domain.DefaultMaxOutputKB * 1024
	}
	return &Engine{prompter: prompter, maxOutput: maxOutputBytes, log: log}
}

// Execute runs req through the state machine. The returned result always
// carries a terminal state; refusals, spawn failures, and timeouts are
// mirrored in the error so callers can branch with errors.As.
func (e *Engine) Execute(ctx context.Context, req domain.ExecRequest) (domain.ExecutionResult, error) {
	command := strings.TrimSpace(req.Command)
	if command == "" {
		return e.refuse("empty command", nil)
	}

	if req.DryRun {
		return e.preview(command, req), nil
	}

	if req.Risk.Blocked() && !req.OverrideCritical {
		reason := "critical risk"
		if req.Risk.Suggestion != "" {
			reason += "; safer alternative: " + req.Risk.Suggestion
		}
		return e.refuse(reason, req.Risk.MatchedRules)
	}

	if e.needsConfirmation(req) {
		result, confirmed, err := e.confirm(command, req)
		if !confirmed {
			return result, err
		}
	}

	return e.run(ctx, command, req)
}

// needsConfirmation applies the tier policy: high always asks, moderate asks
// when configured, and an overridden critical always asks.
func (e *Engine) needsConfirmation(req domain.ExecRequest) bool {
	switch req.Risk.Level {
	case domain.RiskCritical:
		return true
	case domain.RiskHigh:
		return true
	case domain.RiskModerate:
		return req.ConfirmModerate
	}
	return false
}

// confirm drives the confirming state. confirmed is true only when the user
// explicitly approved; every other outcome is a terminal refusal.
func (e *Engine) confirm(command string, req domain.ExecRequest) (domain.ExecutionResult, bool, error) {
	if e.prompter == nil || !e.prompter.Enabled() {
		result, err := e.refuse("confirmation required but session is not interactive", req.Risk.MatchedRules)
		return result, false, err
	}
	approved, err := e.prompter.Confirm(command, req.Risk)
	if err != nil {
		result, rerr := e.refuse("confirmation failed: "+err.Error(), nil)
		return result, false, rerr
	}
	if !approved {
		result, rerr := e.refuse("declined by user", nil)
		return result, false, rerr
	}
	return domain.ExecutionResult{}, true, nil
}

func (e *Engine) refuse(reason string, rules []string) (domain.ExecutionResult, error) {
	err := &domain.RefusalError{Reason: reason, Rules: rules}
	e.log.Info("execution refused", map[string]interface{}{"reason": reason})
	return domain.ExecutionResult{
		State:      domain.StateRefused,
		ExitCode:   -1,
		RefusalWhy: err.Error(),
	}, err
}

// preview reports what execution would do without spawning anything.
func (e *Engine) preview(command string, req domain.ExecRequest) domain.ExecutionResult {
	var b strings.Builder
	fmt.Fprintf(&b, "dry run; nothing was executed\n")
	fmt.Fprintf(&b, "would run: %s -c %q\n", e.shellFor(req), command)
	if req.WorkingDir != "" {
		fmt.Fprintf(&b, "working directory: %s\n", req.WorkingDir)
	}
	if req.Timeout > 0 {
		fmt.Fprintf(&b, "timeout: %s\n", req.Timeout)
	}
	switch {
	case req.Risk.Blocked() && !req.OverrideCritical:
		fmt.Fprintf(&b, "would be refused: critical risk (%s)", strings.Join(req.Risk.MatchedRules, ", "))
	case e.needsConfirmation(req):
		fmt.Fprintf(&b, "would ask for confirmation: %s risk", req.Risk.Level)
	default:
		fmt.Fprintf(&b, "would run without confirmation: %s risk", req.Risk.Level)
	}
	return domain.ExecutionResult{
		State:       domain.StateCompleted,
		DryRunNotes: b.String(),
	}
}

// run is the running state: spawn in a fresh process group, supervise, and
// guarantee the whole group is gone before returning a timeout or kill.
func (e *Engine) run(ctx context.Context, command string, req domain.ExecRequest) (domain.ExecutionResult, error) {
	execCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	// Stdin stays nil: the child reads the null device. A child in its own
	// process group must not compete for the controlling terminal.
	cmd := exec.Command(e.shellFor(req), "-c", command)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	setProcessGroup(cmd)

	stdout := newLimitWriter(e.maxOutput)
	stderr := newLimitWriter(e.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		spawnErr := &domain.SpawnError{Err: err}
		return domain.ExecutionResult{
			State:      domain.StateRefused,
			ExitCode:   -1,
			RefusalWhy: spawnErr.Error(),
		}, spawnErr
	}
	e.log.Debug("command started", map[string]interface{}{"pid": cmd.Process.Pid})

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case waitErr := <-waitCh:
		result := domain.ExecutionResult{
			State:     domain.StateCompleted,
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			Duration:  time.Since(start),
			Truncated: stdout.Truncated() || stderr.Truncated(),
		}
		result.ExitCode = exitCode(waitErr)
		return result, nil

	case <-execCtx.Done():
		e.terminate(cmd, waitCh)
		result := domain.ExecutionResult{
			ExitCode:  -1,
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			Duration:  time.Since(start),
			Truncated: stdout.Truncated() || stderr.Truncated(),
		}
		if execCtx.Err() == context.DeadlineExceeded {
			result.State = domain.StateTimedOut
			result.TimedOut = true
			timeoutErr := &domain.TimeoutError{After: req.Timeout.String()}
			e.log.Warn("execution timed out", map[string]interface{}{"after": req.Timeout.String()})
			return result, timeoutErr
		}
		result.State = domain.StateKilled
		result.Killed = true
		return result, execCtx.Err()
	}
}

// terminate escalates on the whole process group: polite stop, short grace,
// hard kill, bounded reap. It returns only after the group has been reaped
// or the reap deadline passed.
func (e *Engine) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	_ = signalTerm(cmd)
	select {
	case <-waitCh:
		return
	case <-time.After(domain.TermGracePeriod):
	}
	_ = signalKill(cmd)
	select {
	case <-waitCh:
	case <-time.After(domain.KillReapTimeout):
		e.log.Warn("process group still alive after SIGKILL", nil)
	}
}

func (e *Engine) shellFor(req domain.ExecRequest) string {
	if req.Shell != "" {
		return req.Shell
	}
	return "sh"
}

// exitCode folds cmd.Wait errors into a numeric status. Signaled processes
// report -1 the way os/exec does.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// limitWriter keeps the first max bytes and drops the rest. Write never
// fails so the child is not killed by a broken pipe mid-stream. The mutex
// matters: os/exec copies stdout and stderr from separate goroutines, and
// the timeout path reads buffers that may still be receiving writes.
type limitWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newLimitWriter(max int) *limitWriter {
	return &limitWriter{max: max}
}

func (w *limitWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	room := w.max - w.buf.Len()
	if room <= 0 {
		w.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *limitWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}

var _ ports.CommandRunner = (*Engine)(nil)
