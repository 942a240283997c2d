package security_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/doeshing/cmdai-go/assets"
	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/infrastructure/security"
)

// TestEmbeddedRules_ParseAndCompile guards the built-in table: it must parse,
// carry a substantial rule set, and compile without error.
func TestEmbeddedRules_ParseAndCompile(t *testing.T) {
	rules, err := security.ParseRules(assets.DefaultRulesYAML)
	if err != nil {
		t.Fatalf("embedded rules failed to parse: %v", err)
	}
	if len(rules) < 50 {
		t.Fatalf("embedded table has %d rules, expected at least 50", len(rules))
	}
	if _, err := security.Compile(rules); err != nil {
		t.Fatalf("embedded rules failed to compile: %v", err)
	}

	byLevel := map[domain.RiskLevel]int{}
	ids := map[string]bool{}
	for _, r := range rules {
		byLevel[r.Level]++
		if ids[r.ID] {
			t.Errorf("duplicate rule id %s", r.ID)
		}
		ids[r.ID] = true
	}
	for _, level := range []domain.RiskLevel{domain.RiskModerate, domain.RiskHigh, domain.RiskCritical} {
		if byLevel[level] == 0 {
			t.Errorf("embedded table has no %s rules", level)
		}
	}
}

// TestParseRules_Invalid rejects tables that would weaken the validator.
func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed yaml", "rules: ["},
		{"missing id", "rules:\n  patterns:\n    - pattern: 'x'\n      level: high\n"},
		{"missing pattern", "rules:\n  patterns:\n    - id: x\n      level: high\n"},
		{"unknown level", "rules:\n  patterns:\n    - id: x\n      pattern: 'x'\n      level: extreme\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := security.ParseRules([]byte(tt.yaml)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

// TestLoadRules_UserOverride verifies a user file replaces the embedded table
// and a broken user file surfaces an error instead of silently weakening it.
func TestLoadRules_UserOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CMDAI_HOME", dir)

	userRules := `rules:
  patterns:
    - id: only-rule
      pattern: 'frobnicate'
      level: high
      description: test rule
`
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(userRules), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := security.LoadRules("")
	if err != nil {
		t.Fatalf("load user rules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "only-rule" {
		t.Fatalf("expected user table, got %+v", rules)
	}

	if err := os.WriteFile(path, []byte("rules: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := security.LoadRules(""); err == nil {
		t.Fatal("expected error for malformed user file")
	}
}

// TestLoadRules_MissingFileUsesEmbedded verifies fresh installs work.
func TestLoadRules_MissingFileUsesEmbedded(t *testing.T) {
	t.Setenv("CMDAI_HOME", t.TempDir())
	rules, err := security.LoadRules("")
	if err != nil {
		t.Fatalf("load with no user file: %v", err)
	}
	if len(rules) < 50 {
		t.Fatalf("expected embedded table, got %d rules", len(rules))
	}
}

// TestNewValidator_BrokenUserFileFallsBack verifies a typo in the user table
// cannot disable validation.
func TestNewValidator_BrokenUserFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CMDAI_HOME", dir)
	if err := os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte("rules: ["), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := security.NewValidator(domain.SecuritySettings{}, noopLogger{})
	if err != nil {
		t.Fatalf("expected fallback to embedded table, got %v", err)
	}
	if got := v.Assess("rm -rf /", domain.ExecutionContext{}); got.Level != domain.RiskCritical {
		t.Fatalf("fallback validator must still catch root deletion, got %s", got.Level)
	}
}
