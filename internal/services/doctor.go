package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// availabilityTimeout bounds each backend readiness check so one hung
// endpoint cannot stall the whole report.
const availabilityTimeout = 3 * time.Second

// DoctorService runs environment diagnostics.
type DoctorService struct {
	Cfg        domain.Config
	ConfigPath string
	Validator  ports.SafetyValidator
	Registry   ports.BackendRegistry
	Store      ports.ModelStore
	Probe      ports.ContextProbe
}

// Run executes checks and returns a report.
func (s *DoctorService) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	checks = append(checks, s.configCheck())
	checks = append(checks, s.ruleCheck())
	checks = append(checks, s.backendChecks(ctx)...)
	checks = append(checks, s.cacheCheck(ctx))
	checks = append(checks, s.probeCheck(ctx))
	checks = append(checks, s.historyCheck())
	checks = append(checks, s.apiKeyCheck())

	return domain.HealthReport{Checks: checks}, nil
}

func (s *DoctorService) configCheck() domain.HealthCheck {
	if s.ConfigPath == "" {
		return warn("Config file", "no path recorded")
	}
	if _, err := os.Stat(s.ConfigPath); err != nil {
		return warn("Config file", fmt.Sprintf("missing at %s, using defaults", s.ConfigPath))
	}
	return ok("Config file", fmt.Sprintf("%s (format %s)", s.ConfigPath, s.Cfg.ConfigFormatVersion))
}

func (s *DoctorService) ruleCheck() domain.HealthCheck {
	if s.Validator == nil {
		return fail("Safety rules", "validator not initialized")
	}
	rules := s.Validator.Rules()
	if len(rules) == 0 {
		return fail("Safety rules", "no patterns loaded")
	}
	return ok("Safety rules", fmt.Sprintf("%d patterns loaded", len(rules)))
}

func (s *DoctorService) backendChecks(ctx context.Context) []domain.HealthCheck {
	if s.Registry == nil {
		return []domain.HealthCheck{fail("Backends", "registry not initialized")}
	}
	chain := s.Registry.Backends()
	if len(chain) == 0 {
		return []domain.HealthCheck{fail("Backends", "no backends configured")}
	}
	checks := make([]domain.HealthCheck, 0, len(chain))
	for _, b := range chain {
		name := fmt.Sprintf("Backend %s", b.ID())
		probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
		err := b.Available(probeCtx)
		cancel()
		if err != nil {
			checks = append(checks, warn(name, err.Error()))
			continue
		}
		checks = append(checks, ok(name, "ready"))
	}
	return checks
}

func (s *DoctorService) cacheCheck(ctx context.Context) domain.HealthCheck {
	if s.Store == nil {
		return warn("Model cache", "cache not initialized")
	}
	stats, err := s.Store.Stats(ctx)
	if err != nil {
		return warn("Model cache", err.Error())
	}
	return ok("Model cache", fmt.Sprintf("%d models, %s of %s used at %s",
		stats.Entries,
		humanize.IBytes(uint64(stats.TotalBytes)),
		humanize.IBytes(uint64(stats.MaxBytes)),
		stats.Dir))
}

func (s *DoctorService) probeCheck(ctx context.Context) domain.HealthCheck {
	if s.Probe == nil {
		return warn("Context probe", "probe not initialized")
	}
	env, err := s.Probe.Capture(ctx)
	if err != nil {
		return warn("Context probe", err.Error())
	}
	details := fmt.Sprintf("%s/%s, shell %s, %d tools detected",
		env.OS, env.Arch, env.Shell, len(env.AvailableTools))
	if env.Degraded() {
		return warn("Context probe", details+", degraded: "+strings.Join(env.DegradedProbes, ", "))
	}
	return ok("Context probe", details)
}

func (s *DoctorService) historyCheck() domain.HealthCheck {
	if !s.Cfg.History.Enabled {
		return ok("History", "disabled in config")
	}
	return ok("History", fmt.Sprintf("enabled, keeping last %d records", s.Cfg.HistoryLimit()))
}

// apiKeyCheck warns when the openai backend is in the chain but no key env
// var resolves; the other backends need no credentials.
func (s *DoctorService) apiKeyCheck() domain.HealthCheck {
	inChain := false
	for _, name := range s.Cfg.OrderedBackends() {
		if name == "openai" {
			inChain = true
		}
	}
	if !inChain {
		return ok("API keys", "no remote backend configured")
	}
	envVar := s.Cfg.Backends.OpenAI.AuthEnvVar
	if envVar == "" {
		envVar = "OPENAI_API_KEY"
	}
	if os.Getenv(envVar) == "" {
		return warn("API keys", fmt.Sprintf("%s not set for openai backend", envVar))
	}
	return ok("API keys", envVar+" present")
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}
