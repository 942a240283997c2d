package domain

import (
	"fmt"
	"time"
)

// Behavior accessors keep zero-value configs usable: every getter falls back
// to a documented default instead of forcing callers to nil-check.

// OrderedBackends returns the configured fallback chain, or the default order
// when the config leaves it empty.
func (c *Config) OrderedBackends() []string {
	if len(c.Preferences.BackendOrder) > 0 {
		return c.Preferences.BackendOrder
	}
	return []string{"embedded", "ollama", "openai", "static"}
}

// HasBackend reports whether a backend name appears in the fallback chain.
func (c *Config) HasBackend(name string) bool {
	for _, b := range c.OrderedBackends() {
		if b == name {
			return true
		}
	}
	return false
}

// GenerationTimeout returns the per-backend inference deadline.
func (c *Config) GenerationTimeout() time.Duration {
	if c.Generation.TimeoutSeconds <= 0 {
		return DefaultGenerationTimeout
	}
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// ExecutionTimeout returns the command execution deadline.
func (c *Config) ExecutionTimeout() time.Duration {
	if c.Execution.TimeoutSeconds <= 0 {
		return DefaultExecutionTimeout
	}
	return time.Duration(c.Execution.TimeoutSeconds) * time.Second
}

// MaxRefinements caps the refinement loop.
func (c *Config) MaxRefinements() int {
	if !c.Generation.Refinement.Enabled {
		return 0
	}
	if c.Generation.Refinement.MaxIterations <= 0 {
		return DefaultMaxRefinements
	}
	return c.Generation.Refinement.MaxIterations
}

// ExecutionShell returns the configured shell, the environment shell, or sh.
func (c *Config) ExecutionShell(envShell string) string {
	if c.Execution.Shell != "" {
		return c.Execution.Shell
	}
	if envShell != "" {
		return envShell
	}
	return "sh"
}

// MaxOutputBytes bounds captured stdout and stderr per stream.
func (c *Config) MaxOutputBytes() int {
	if c.Execution.MaxOutputKB <= 0 {
		return DefaultMaxOutputKB * 1024
	}
	return c.Execution.MaxOutputKB * 1024
}

// CacheMaxBytes bounds total model artifact storage.
func (c *Config) CacheMaxBytes() int64 {
	if c.Cache.MaxSizeBytes <= 0 {
		return DefaultCacheMaxBytes
	}
	return c.Cache.MaxSizeBytes
}

// ShouldAutoExecuteSafe reports whether safe commands run without asking.
func (c *Config) ShouldAutoExecuteSafe() bool {
	return c.Preferences.AutoExecuteSafe
}

// ConfirmFor reports whether a tier requires interactive confirmation.
// Critical never reaches confirmation: it is refused or explicitly overridden.
func (c *Config) ConfirmFor(level RiskLevel) bool {
	switch level {
	case RiskHigh:
		return true
	case RiskModerate:
		return c.Security.ConfirmModerate
	}
	return false
}

// DefaultOutput returns the configured render format.
func (c *Config) DefaultOutput() OutputFormat {
	switch OutputFormat(c.Preferences.Output) {
	case OutputJSON:
		return OutputJSON
	case OutputYAML:
		return OutputYAML
	}
	return OutputText
}

// HistoryLimit returns how many records listings show.
func (c *Config) HistoryLimit() int {
	if c.History.Limit <= 0 {
		return DefaultHistoryLimit
	}
	return c.History.Limit
}

// ValidateConsistency checks the configuration for contradictions.
func (c *Config) ValidateConsistency() error {
	known := map[string]bool{"embedded": true, "ollama": true, "openai": true, "static": true}
	for _, b := range c.Preferences.BackendOrder {
		if !known[b] {
			return fmt.Errorf("unknown backend %q in backend_order", b)
		}
	}
	if c.Generation.Refinement.MaxIterations < 0 {
		return fmt.Errorf("refinement max_iterations must not be negative")
	}
	if c.Cache.MaxSizeBytes < 0 {
		return fmt.Errorf("cache max_size_bytes must not be negative")
	}
	if out := c.Preferences.Output; out != "" {
		switch OutputFormat(out) {
		case OutputText, OutputJSON, OutputYAML:
		default:
			return fmt.Errorf("unknown output format %q", out)
		}
	}
	return nil
}
