// Package services orchestrates the generation and execution use cases over
// the ports, keeping infrastructure adapters out of the decision logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// GeneratorService drives prompt → command → risk → (optional) execution.
type GeneratorService struct {
	Cfg       domain.Config
	Probe     ports.ContextProbe
	Registry  ports.BackendRegistry
	Validator ports.SafetyValidator
	Runner    ports.CommandRunner
	History   ports.HistoryRepository
	Audit     ports.AuditLogger
	Logger    ports.Logger
	SessionID string
}

// RunOptions carries per-invocation execution intent from the CLI.
type RunOptions struct {
	// Execute requests the engine after generation; safe-tier auto execution
	// from config applies even when false.
	Execute bool
	DryRun  bool
	// Override requests a critical override; it only takes effect when the
	// config allows it.
	Override bool
	// Timeout bounds execution; zero uses the configured default.
	Timeout time.Duration
	// OnGenerated fires once generation finishes, before any confirmation
	// or execution. The CLI uses it to clear its progress spinner.
	OnGenerated func(domain.GeneratedCommand)
}

// RunOutcome bundles everything one invocation produced.
type RunOutcome struct {
	Command   domain.GeneratedCommand
	Context   domain.ExecutionContext
	Execution *domain.ExecutionResult
}

// Generate runs the pipeline without side effects: probe, fallback chain,
// risk assessment, refinement. The returned command is the lowest-risk
// candidate seen, ties resolved to the earliest.
func (s *GeneratorService) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GeneratedCommand, domain.ExecutionContext, error) {
	if err := s.checkDeps(); err != nil {
		return domain.GeneratedCommand{}, domain.ExecutionContext{}, err
	}

	env := req.Context
	if env.OS == "" {
		env = s.capture(ctx)
	}

	call := ports.GenerationCall{
		Prompt:        req.Prompt,
		Context:       env,
		ModelOverride: req.ModelOverride,
	}

	raw, backendID, err := s.firstGeneration(ctx, call, req.BackendOverride)
	if err != nil {
		return domain.GeneratedCommand{}, env, err
	}

	best := raw
	bestRisk := s.Validator.Assess(raw.Command, env)
	current, currentRisk := raw, bestRisk
	refinements := 0

	for refinements < s.maxRefinements(req) && currentRisk.Level != domain.RiskSafe {
		refined, err := s.refine(ctx, backendID, call, current, currentRisk)
		if err != nil {
			s.Logger.Warn("refinement failed", map[string]interface{}{
				"backend": backendID,
				"error":   err.Error(),
			})
			break
		}
		refinements++
		current, currentRisk = refined, s.Validator.Assess(refined.Command, env)
		if bestRisk.Level.Exceeds(currentRisk.Level) {
			best, bestRisk = current, currentRisk
		}
	}

	return domain.GeneratedCommand{
		Command:     best.Command,
		Backend:     backendID,
		Model:       best.Model,
		Rationale:   best.Rationale,
		Risk:        bestRisk,
		Refinements: refinements,
	}, env, nil
}

// Check is the validate-only path: a literal command in, its risk out. No
// backend is consulted.
func (s *GeneratorService) Check(ctx context.Context, command string) (domain.RiskAssessment, error) {
	if s.Validator == nil {
		return domain.RiskAssessment{}, errors.New("services.GeneratorService dependencies not satisfied")
	}
	env := s.capture(ctx)
	return s.Validator.Assess(command, env), nil
}

// Run is the full use case behind gen and run: generate, decide execution,
// gate through the engine, and record one history line for the cycle.
func (s *GeneratorService) Run(ctx context.Context, req domain.GenerationRequest, opts RunOptions) (RunOutcome, error) {
	generated, env, err := s.Generate(ctx, req)
	if err != nil {
		return RunOutcome{}, err
	}
	if opts.OnGenerated != nil {
		opts.OnGenerated(generated)
	}
	outcome := RunOutcome{Command: generated, Context: env}

	if !s.shouldExecute(generated, opts) {
		s.record(ctx, req.Prompt, generated, nil)
		return outcome, nil
	}

	execReq := s.buildExecRequest(generated, env, opts)
	if opts.Override && !s.Cfg.Security.AllowCriticalOverride {
		s.Logger.Warn("critical override requested but not allowed in config", nil)
	}
	if execReq.OverrideCritical {
		s.audit("override", generated.Command, generated.Risk, "critical override granted")
	}

	result, execErr := s.Runner.Execute(ctx, execReq)
	outcome.Execution = &result

	s.auditExecution(generated, result, execErr)
	s.record(ctx, req.Prompt, generated, &result)
	return outcome, execErr
}

func (s *GeneratorService) checkDeps() error {
	if s.Probe == nil || s.Registry == nil || s.Validator == nil || s.Logger == nil {
		return errors.New("services.GeneratorService dependencies not satisfied")
	}
	return nil
}

// capture grabs the environment snapshot; a degraded probe is logged and the
// partial snapshot used as-is.
func (s *GeneratorService) capture(ctx context.Context) domain.ExecutionContext {
	env, err := s.Probe.Capture(ctx)
	if err != nil {
		var degraded *domain.ProbeDegradedError
		if errors.As(err, &degraded) {
			s.Logger.Warn("context probe degraded", map[string]interface{}{
				"probes": degraded.Probes,
			})
		} else {
			s.Logger.Warn("context probe failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return env
}

// firstGeneration walks the fallback chain, or targets one backend when the
// user pinned it with --backend.
func (s *GeneratorService) firstGeneration(ctx context.Context, call ports.GenerationCall, override string) (domain.RawGeneration, string, error) {
	if override == "" {
		return s.Registry.Generate(ctx, call)
	}
	b := s.findBackend(override)
	if b == nil {
		return domain.RawGeneration{}, "", fmt.Errorf("backend %q is not in the configured chain", override)
	}
	if err := b.Available(ctx); err != nil {
		return domain.RawGeneration{}, "", &domain.BackendUnavailableError{Backend: override, Reason: err.Error()}
	}
	raw, err := s.callBackend(ctx, b, call)
	if err != nil {
		return domain.RawGeneration{}, "", fmt.Errorf("backend %s: %w", override, err)
	}
	return raw, b.ID(), nil
}

// refine re-invokes the same backend with the prior command and its risk
// explanation attached.
func (s *GeneratorService) refine(ctx context.Context, backendID string, call ports.GenerationCall, prior domain.RawGeneration, priorRisk domain.RiskAssessment) (domain.RawGeneration, error) {
	b := s.findBackend(backendID)
	if b == nil {
		return domain.RawGeneration{}, fmt.Errorf("backend %s disappeared from the chain", backendID)
	}
	call.PriorCommand = prior.Command
	call.PriorRisk = &priorRisk
	return s.callBackend(ctx, b, call)
}

func (s *GeneratorService) callBackend(ctx context.Context, b ports.Backend, call ports.GenerationCall) (domain.RawGeneration, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.Cfg.GenerationTimeout())
	defer cancel()
	raw, err := b.Generate(genCtx, call)
	if err != nil {
		return domain.RawGeneration{}, err
	}
	if raw.Command == "" {
		return domain.RawGeneration{}, domain.ErrGenerationMalformed
	}
	return raw, nil
}

func (s *GeneratorService) findBackend(id string) ports.Backend {
	for _, b := range s.Registry.Backends() {
		if b.ID() == id {
			return b
		}
	}
	return nil
}

func (s *GeneratorService) maxRefinements(req domain.GenerationRequest) int {
	if !req.Refine {
		return 0
	}
	if req.MaxRefinements > 0 {
		return req.MaxRefinements
	}
	return s.Cfg.MaxRefinements()
}

func (s *GeneratorService) shouldExecute(generated domain.GeneratedCommand, opts RunOptions) bool {
	if opts.Execute {
		return true
	}
	return s.Cfg.ShouldAutoExecuteSafe() && generated.Risk.Level == domain.RiskSafe
}

func (s *GeneratorService) buildExecRequest(generated domain.GeneratedCommand, env domain.ExecutionContext, opts RunOptions) domain.ExecRequest {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.Cfg.ExecutionTimeout()
	}
	return domain.ExecRequest{
		Command:          generated.Command,
		Risk:             generated.Risk,
		Shell:            s.Cfg.ExecutionShell(env.Shell),
		WorkingDir:       env.WorkingDir,
		Timeout:          timeout,
		DryRun:           opts.DryRun,
		OverrideCritical: opts.Override && s.Cfg.Security.AllowCriticalOverride,
		ConfirmModerate:  s.Cfg.ConfirmFor(domain.RiskModerate),
	}
}

// auditExecution emits one audit line for refusals and for runs of risky
// commands; safe and moderate executions stay out of the audit log.
func (s *GeneratorService) auditExecution(generated domain.GeneratedCommand, result domain.ExecutionResult, execErr error) {
	var refusal *domain.RefusalError
	if errors.As(execErr, &refusal) {
		s.audit("refusal", generated.Command, generated.Risk, refusal.Reason)
		return
	}
	if result.Ran() && generated.Risk.Level.Exceeds(domain.RiskModerate) {
		detail := fmt.Sprintf("state:%s exit:%d", result.State, result.ExitCode)
		s.audit("execution", generated.Command, generated.Risk, detail)
	}
}

func (s *GeneratorService) audit(kind, command string, risk domain.RiskAssessment, detail string) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Record(ports.AuditEvent{
		Time:    time.Now().UTC(),
		Session: s.SessionID,
		Kind:    kind,
		Command: command,
		Level:   risk.Level,
		Rules:   risk.MatchedRules,
		Detail:  detail,
	})
	if err != nil {
		s.Logger.Warn("audit record failed", map[string]interface{}{"error": err.Error()})
	}
}

// record appends the cycle's history line; failures never break the flow.
func (s *GeneratorService) record(ctx context.Context, prompt string, generated domain.GeneratedCommand, result *domain.ExecutionResult) {
	if s.History == nil {
		return
	}
	rec := domain.HistoryRecord{
		SessionID:   s.SessionID,
		Prompt:      prompt,
		Command:     generated.Command,
		Backend:     generated.Backend,
		RiskLevel:   generated.Risk.Level,
		Refinements: generated.Refinements,
	}
	if result != nil {
		rec.Executed = result.Ran()
		rec.ExecutionState = result.State
		rec.ExitCode = result.ExitCode
		rec.ExecutionTimeMS = result.Duration.Milliseconds()
	}
	if err := s.History.Append(ctx, rec); err != nil {
		s.Logger.Warn("history append failed", map[string]interface{}{"error": err.Error()})
	}
}
