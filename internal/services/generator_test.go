package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/logger"
	"github.com/doeshing/cmdai-go/internal/ports"
)

type fakeProbe struct {
	env domain.ExecutionContext
	err error
}

func (f fakeProbe) Capture(context.Context) (domain.ExecutionContext, error) {
	return f.env, f.err
}

// scriptedBackend returns its commands one per call, then errors.
type scriptedBackend struct {
	id       string
	availErr error
	commands []string
	calls    []ports.GenerationCall
}

func (b *scriptedBackend) ID() string {
	return b.id
}

func (b *scriptedBackend) Available(context.Context) error {
	return b.availErr
}

func (b *scriptedBackend) Generate(_ context.Context, call ports.GenerationCall) (domain.RawGeneration, error) {
	b.calls = append(b.calls, call)
	if len(b.commands) == 0 {
		return domain.RawGeneration{}, errors.New("backend script exhausted")
	}
	cmd := b.commands[0]
	b.commands = b.commands[1:]
	return domain.RawGeneration{Command: cmd, Model: "fake-model", Rationale: "scripted"}, nil
}

type fakeRegistry struct {
	chain    []ports.Backend
	genCalls int
}

func (r *fakeRegistry) Generate(ctx context.Context, call ports.GenerationCall) (domain.RawGeneration, string, error) {
	r.genCalls++
	b := r.chain[0]
	raw, err := b.Generate(ctx, call)
	if err != nil {
		return domain.RawGeneration{}, "", err
	}
	return raw, b.ID(), nil
}

func (r *fakeRegistry) Backends() []ports.Backend {
	return r.chain
}

// riskTable assesses commands from a fixed map; unknown commands are safe.
type riskTable struct {
	levels map[string]domain.RiskLevel
}

func (v riskTable) Assess(command string, _ domain.ExecutionContext) domain.RiskAssessment {
	level, found := v.levels[command]
	if !found {
		level = domain.RiskSafe
	}
	assessment := domain.RiskAssessment{Level: level}
	if level != domain.RiskSafe {
		assessment.MatchedRules = []string{"table-rule"}
		assessment.Reasons = []string{"flagged by table"}
	}
	return assessment
}

func (v riskTable) Rules() []domain.PatternRule {
	return nil
}

type fakeRunner struct {
	result domain.ExecutionResult
	err    error
	reqs   []domain.ExecRequest
}

func (r *fakeRunner) Execute(_ context.Context, req domain.ExecRequest) (domain.ExecutionResult, error) {
	r.reqs = append(r.reqs, req)
	return r.result, r.err
}

type memHistory struct {
	records []domain.HistoryRecord
}

func (h *memHistory) Append(_ context.Context, rec domain.HistoryRecord) error {
	h.records = append(h.records, rec)
	return nil
}

func (h *memHistory) Recent(context.Context, int) ([]domain.HistoryRecord, error) {
	return h.records, nil
}

func (h *memHistory) Search(context.Context, string, int) ([]domain.HistoryRecord, error) {
	return nil, nil
}

func (h *memHistory) Close() error {
	return nil
}

type memAudit struct {
	events []ports.AuditEvent
}

func (a *memAudit) Record(event ports.AuditEvent) error {
	a.events = append(a.events, event)
	return nil
}

func testEnv() domain.ExecutionContext {
	return domain.ExecutionContext{OS: "linux", Arch: "amd64", Shell: "bash", WorkingDir: "/tmp"}
}

func newGenService(reg *fakeRegistry, levels map[string]domain.RiskLevel, runner *fakeRunner) (*GeneratorService, *memHistory, *memAudit) {
	hist := &memHistory{}
	audit := &memAudit{}
	svc := &GeneratorService{
		Cfg:       domain.Config{},
		Probe:     fakeProbe{env: testEnv()},
		Registry:  reg,
		Validator: riskTable{levels: levels},
		Runner:    runner,
		History:   hist,
		Audit:     audit,
		Logger:    logger.Nop{},
		SessionID: "test-session",
	}
	return svc, hist, audit
}

func TestGenerateReturnsAssessedCommand(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls -la"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	svc, _, _ := newGenService(reg, nil, nil)

	generated, env, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "list files"})
	require.NoError(t, err)
	assert.Equal(t, "ls -la", generated.Command)
	assert.Equal(t, "static", generated.Backend)
	assert.Equal(t, "fake-model", generated.Model)
	assert.Equal(t, domain.RiskSafe, generated.Risk.Level)
	assert.Equal(t, 0, generated.Refinements)
	assert.Equal(t, "linux", env.OS)
	require.Len(t, backend.calls, 1)
	assert.Equal(t, "list files", backend.calls[0].Prompt)
	assert.Empty(t, backend.calls[0].PriorCommand)
}

func TestGenerateSkipsProbeWhenContextProvided(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	svc, _, _ := newGenService(reg, nil, nil)
	svc.Probe = fakeProbe{err: errors.New("probe must not run")}

	_, env, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:  "list",
		Context: domain.ExecutionContext{OS: "darwin", Shell: "zsh"},
	})
	require.NoError(t, err)
	assert.Equal(t, "darwin", env.OS)
	require.Len(t, backend.calls, 1)
	assert.Equal(t, "darwin", backend.calls[0].Context.OS)
}

func TestGenerateRefinesUntilSafe(t *testing.T) {
	backend := &scriptedBackend{id: "ollama", commands: []string{"rm -rf /var/log", "find /var/log -delete"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{"rm -rf /var/log": domain.RiskHigh}
	svc, _, _ := newGenService(reg, levels, nil)

	generated, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt: "clear logs",
		Refine: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "find /var/log -delete", generated.Command)
	assert.Equal(t, domain.RiskSafe, generated.Risk.Level)
	assert.Equal(t, 1, generated.Refinements)

	require.Len(t, backend.calls, 2)
	refineCall := backend.calls[1]
	assert.Equal(t, "rm -rf /var/log", refineCall.PriorCommand)
	require.NotNil(t, refineCall.PriorRisk)
	assert.Equal(t, domain.RiskHigh, refineCall.PriorRisk.Level)
}

func TestGenerateStopsAtRefinementCap(t *testing.T) {
	backend := &scriptedBackend{id: "ollama", commands: []string{"bad one", "bad two", "bad three", "never used"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{
		"bad one":   domain.RiskHigh,
		"bad two":   domain.RiskHigh,
		"bad three": domain.RiskHigh,
	}
	svc, _, _ := newGenService(reg, levels, nil)

	generated, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:         "risky ask",
		Refine:         true,
		MaxRefinements: 2,
	})
	require.NoError(t, err)
	assert.Len(t, backend.calls, 3)
	assert.Equal(t, 2, generated.Refinements)
	assert.Equal(t, domain.RiskHigh, generated.Risk.Level)
	// First candidate wins the tie between equally risky rounds.
	assert.Equal(t, "bad one", generated.Command)
}

func TestGenerateKeepsLowestRiskCandidate(t *testing.T) {
	backend := &scriptedBackend{id: "ollama", commands: []string{"high cmd", "moderate cmd", "high again"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{
		"high cmd":     domain.RiskHigh,
		"moderate cmd": domain.RiskModerate,
		"high again":   domain.RiskHigh,
	}
	svc, _, _ := newGenService(reg, levels, nil)

	generated, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:         "risky ask",
		Refine:         true,
		MaxRefinements: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "moderate cmd", generated.Command)
	assert.Equal(t, domain.RiskModerate, generated.Risk.Level)
	assert.Equal(t, 2, generated.Refinements)
}

func TestGenerateRefinementErrorKeepsBest(t *testing.T) {
	backend := &scriptedBackend{id: "ollama", commands: []string{"high cmd"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{"high cmd": domain.RiskHigh}
	svc, _, _ := newGenService(reg, levels, nil)

	generated, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt: "risky ask",
		Refine: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "high cmd", generated.Command)
	assert.Equal(t, 0, generated.Refinements)
}

func TestGenerateBackendOverrideBypassesChainOrder(t *testing.T) {
	first := &scriptedBackend{id: "embedded", commands: []string{"wrong"}}
	second := &scriptedBackend{id: "static", commands: []string{"df -h"}}
	reg := &fakeRegistry{chain: []ports.Backend{first, second}}
	svc, _, _ := newGenService(reg, nil, nil)

	generated, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:          "disk usage",
		BackendOverride: "static",
	})
	require.NoError(t, err)
	assert.Equal(t, "df -h", generated.Command)
	assert.Equal(t, "static", generated.Backend)
	assert.Zero(t, reg.genCalls, "fallback chain must not run when a backend is pinned")
	assert.Empty(t, first.calls)
}

func TestGenerateBackendOverrideUnknown(t *testing.T) {
	reg := &fakeRegistry{chain: []ports.Backend{&scriptedBackend{id: "static"}}}
	svc, _, _ := newGenService(reg, nil, nil)

	_, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:          "anything",
		BackendOverride: "warpdrive",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the configured chain")
}

func TestGenerateBackendOverrideUnavailable(t *testing.T) {
	backend := &scriptedBackend{id: "ollama", availErr: errors.New("connection refused")}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	svc, _, _ := newGenService(reg, nil, nil)

	_, _, err := svc.Generate(context.Background(), domain.GenerationRequest{
		Prompt:          "anything",
		BackendOverride: "ollama",
	})
	var unavailable *domain.BackendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "ollama", unavailable.Backend)
	assert.Empty(t, backend.calls)
}

func TestRunWithoutExecuteRecordsHistoryOnly(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{}
	svc, hist, _ := newGenService(reg, nil, runner)

	outcome, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "list"}, RunOptions{})
	require.NoError(t, err)
	assert.Nil(t, outcome.Execution)
	assert.Empty(t, runner.reqs)

	require.Len(t, hist.records, 1)
	rec := hist.records[0]
	assert.Equal(t, "list", rec.Prompt)
	assert.Equal(t, "ls", rec.Command)
	assert.Equal(t, "test-session", rec.SessionID)
	assert.False(t, rec.Executed)
}

func TestRunExecuteFlagDrivesEngine(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{result: domain.ExecutionResult{
		State:    domain.StateCompleted,
		ExitCode: 0,
		Duration: 42 * time.Millisecond,
	}}
	svc, hist, _ := newGenService(reg, nil, runner)

	outcome, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "list"}, RunOptions{Execute: true})
	require.NoError(t, err)
	require.NotNil(t, outcome.Execution)
	assert.Equal(t, domain.StateCompleted, outcome.Execution.State)

	require.Len(t, runner.reqs, 1)
	req := runner.reqs[0]
	assert.Equal(t, "ls", req.Command)
	assert.Equal(t, "bash", req.Shell)
	assert.Equal(t, "/tmp", req.WorkingDir)
	assert.Equal(t, domain.DefaultExecutionTimeout, req.Timeout)
	assert.False(t, req.OverrideCritical)

	require.Len(t, hist.records, 1)
	rec := hist.records[0]
	assert.True(t, rec.Executed)
	assert.Equal(t, domain.StateCompleted, rec.ExecutionState)
	assert.EqualValues(t, 42, rec.ExecutionTimeMS)
}

func TestRunAutoExecutesSafeWhenConfigured(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateCompleted}}
	svc, _, _ := newGenService(reg, nil, runner)
	svc.Cfg.Preferences.AutoExecuteSafe = true

	_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "list"}, RunOptions{})
	require.NoError(t, err)
	assert.Len(t, runner.reqs, 1)
}

func TestRunDoesNotAutoExecuteRiskyCommands(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"chmod -R 777 /srv"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{"chmod -R 777 /srv": domain.RiskHigh}
	runner := &fakeRunner{}
	svc, _, _ := newGenService(reg, levels, runner)
	svc.Cfg.Preferences.AutoExecuteSafe = true

	outcome, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "open up perms"}, RunOptions{})
	require.NoError(t, err)
	assert.Nil(t, outcome.Execution)
	assert.Empty(t, runner.reqs)
}

func TestRunRefusalIsAuditedAndReturned(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"rm -rf /"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{"rm -rf /": domain.RiskCritical}
	refusal := &domain.RefusalError{Reason: "critical risk", Rules: []string{"table-rule"}}
	runner := &fakeRunner{
		result: domain.ExecutionResult{State: domain.StateRefused, ExitCode: -1, RefusalWhy: refusal.Reason},
		err:    refusal,
	}
	svc, hist, audit := newGenService(reg, levels, runner)

	outcome, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "wipe it"}, RunOptions{Execute: true})
	var got *domain.RefusalError
	require.ErrorAs(t, err, &got)
	require.NotNil(t, outcome.Execution)
	assert.Equal(t, domain.StateRefused, outcome.Execution.State)

	require.Len(t, audit.events, 1)
	event := audit.events[0]
	assert.Equal(t, "refusal", event.Kind)
	assert.Equal(t, "rm -rf /", event.Command)
	assert.Equal(t, domain.RiskCritical, event.Level)
	assert.False(t, event.Time.IsZero())

	require.Len(t, hist.records, 1)
	assert.False(t, hist.records[0].Executed)
	assert.Equal(t, domain.StateRefused, hist.records[0].ExecutionState)
}

func TestRunOverrideHonoredOnlyWhenConfigAllows(t *testing.T) {
	levels := map[string]domain.RiskLevel{"mkfs.ext4 /dev/sda": domain.RiskCritical}

	t.Run("config allows", func(t *testing.T) {
		backend := &scriptedBackend{id: "static", commands: []string{"mkfs.ext4 /dev/sda"}}
		reg := &fakeRegistry{chain: []ports.Backend{backend}}
		runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateCompleted}}
		svc, _, audit := newGenService(reg, levels, runner)
		svc.Cfg.Security.AllowCriticalOverride = true

		_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "format"}, RunOptions{Execute: true, Override: true})
		require.NoError(t, err)
		require.Len(t, runner.reqs, 1)
		assert.True(t, runner.reqs[0].OverrideCritical)

		require.NotEmpty(t, audit.events)
		assert.Equal(t, "override", audit.events[0].Kind)
	})

	t.Run("config denies", func(t *testing.T) {
		backend := &scriptedBackend{id: "static", commands: []string{"mkfs.ext4 /dev/sda"}}
		reg := &fakeRegistry{chain: []ports.Backend{backend}}
		runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateRefused, ExitCode: -1}, err: &domain.RefusalError{Reason: "critical risk"}}
		svc, _, _ := newGenService(reg, levels, runner)

		_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "format"}, RunOptions{Execute: true, Override: true})
		require.Error(t, err)
		require.Len(t, runner.reqs, 1)
		assert.False(t, runner.reqs[0].OverrideCritical)
	})
}

func TestRunAuditsRiskyExecutions(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"chmod -R 777 /srv"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	levels := map[string]domain.RiskLevel{"chmod -R 777 /srv": domain.RiskHigh}
	runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateCompleted, ExitCode: 0}}
	svc, _, audit := newGenService(reg, levels, runner)

	_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "open up perms"}, RunOptions{Execute: true})
	require.NoError(t, err)
	require.Len(t, audit.events, 1)
	assert.Equal(t, "execution", audit.events[0].Kind)
	assert.Equal(t, domain.RiskHigh, audit.events[0].Level)
}

func TestRunSafeExecutionIsNotAudited(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateCompleted}}
	svc, _, audit := newGenService(reg, nil, runner)

	_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "list"}, RunOptions{Execute: true})
	require.NoError(t, err)
	assert.Empty(t, audit.events)
}

func TestRunTimeoutOptionOverridesConfig(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"sleep 100"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateTimedOut}}
	svc, _, _ := newGenService(reg, nil, runner)

	_, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "wait"}, RunOptions{Execute: true, Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.Len(t, runner.reqs, 1)
	assert.Equal(t, 5*time.Second, runner.reqs[0].Timeout)
}

func TestRunDryRunPassesThrough(t *testing.T) {
	backend := &scriptedBackend{id: "static", commands: []string{"ls"}}
	reg := &fakeRegistry{chain: []ports.Backend{backend}}
	runner := &fakeRunner{result: domain.ExecutionResult{State: domain.StateCompleted, DryRunNotes: "dry run"}}
	svc, hist, _ := newGenService(reg, nil, runner)

	outcome, err := svc.Run(context.Background(), domain.GenerationRequest{Prompt: "list"}, RunOptions{Execute: true, DryRun: true})
	require.NoError(t, err)
	require.Len(t, runner.reqs, 1)
	assert.True(t, runner.reqs[0].DryRun)
	require.NotNil(t, outcome.Execution)

	// A dry run never spawns, so history must not claim execution.
	require.Len(t, hist.records, 1)
	assert.False(t, hist.records[0].Executed)
}

func TestCheckAssessesLiteralCommand(t *testing.T) {
	reg := &fakeRegistry{chain: []ports.Backend{&scriptedBackend{id: "static"}}}
	levels := map[string]domain.RiskLevel{"dd if=/dev/zero of=/dev/sda": domain.RiskCritical}
	svc, hist, _ := newGenService(reg, levels, nil)

	risk, err := svc.Check(context.Background(), "dd if=/dev/zero of=/dev/sda")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskCritical, risk.Level)
	assert.Empty(t, hist.records, "check must not write history")
	assert.Zero(t, reg.genCalls, "check must not consult backends")
}

func TestGenerateMissingDependencies(t *testing.T) {
	svc := &GeneratorService{}
	_, _, err := svc.Generate(context.Background(), domain.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies not satisfied")
}
