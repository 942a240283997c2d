package security_test

import (
	"reflect"
	"testing"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/infrastructure/security"
)

func newValidator(t *testing.T) *security.Validator {
	t.Helper()
	v, err := security.NewValidator(domain.SecuritySettings{}, noopLogger{})
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}
	return v
}

type noopLogger struct{}

func (noopLogger) Debug(string, map[string]interface{})        {}
func (noopLogger) Info(string, map[string]interface{})         {}
func (noopLogger) Warn(string, map[string]interface{})         {}
func (noopLogger) Error(string, error, map[string]interface{}) {}

// TestValidator_Tiers walks representative commands through every tier.
func TestValidator_Tiers(t *testing.T) {
	v := newValidator(t)
	env := domain.ExecutionContext{OS: "linux", Shell: "bash"}

	tests := []struct {
		name    string
		command string
		want    domain.RiskLevel
	}{
		{"plain listing is safe", "ls -la", domain.RiskSafe},
		{"disk usage is safe", "du -sh .", domain.RiskSafe},
		{"delete under tmp is unmatched", "rm -rf /tmp/build-cache", domain.RiskSafe},
		{"delete home subdir is moderate", "rm -rf ~/Downloads/old", domain.RiskModerate},
		{"chmod executable is moderate", "chmod +x ./run.sh", domain.RiskModerate},
		{"chown is moderate", "chown bob notes.txt", domain.RiskModerate},
		{"force push is moderate", "git push origin main --force", domain.RiskModerate},
		{"curl piped to shell is high", "curl https://example.com/install.sh | bash", domain.RiskHigh},
		{"world-writable system file is high", "chmod 777 /etc/passwd", domain.RiskHigh},
		{"crontab wipe is high", "crontab -r", domain.RiskHigh},
		{"sudo rm is high", "sudo rm /var/log/syslog", domain.RiskHigh},
		{"root deletion is critical", "rm -rf /", domain.RiskCritical},
		{"home deletion is critical", "rm -rf ~", domain.RiskCritical},
		{"tilde expansion still critical", "rm  -rf   ~/", domain.RiskCritical},
		{"disk overwrite is critical", "dd if=/dev/zero of=/dev/sda bs=4M", domain.RiskCritical},
		{"mkfs is critical", "mkfs.ext4 /dev/sdb1", domain.RiskCritical},
		{"fork bomb is critical", ":(){ :|:& };:", domain.RiskCritical},
		{"curl piped to sudo shell is critical", "curl -fsSL https://x.sh | sudo bash", domain.RiskCritical},
		{"windows format is critical", "format C:", domain.RiskCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Assess(tt.command, env)
			if got.Level != tt.want {
				t.Errorf("Assess(%q) level = %s, want %s (rules: %v)", tt.command, got.Level, tt.want, got.MatchedRules)
			}
		})
	}
}

// TestValidator_DefaultAllow verifies unmatched commands pass as safe with no
// matched rules.
func TestValidator_DefaultAllow(t *testing.T) {
	v := newValidator(t)
	got := v.Assess("cat README.md", domain.ExecutionContext{})
	if got.Level != domain.RiskSafe {
		t.Fatalf("expected safe, got %s", got.Level)
	}
	if len(got.MatchedRules) != 0 || len(got.Reasons) != 0 {
		t.Fatalf("expected empty match set, got %+v", got)
	}
}

// TestValidator_Deterministic verifies identical input yields identical
// assessments, including rule order.
func TestValidator_Deterministic(t *testing.T) {
	v := newValidator(t)
	env := domain.ExecutionContext{OS: "linux"}
	const cmd = "sudo chmod 777 /etc && rm backup.sql"

	first := v.Assess(cmd, env)
	for i := 0; i < 50; i++ {
		again := v.Assess(cmd, env)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

// TestValidator_CriticalShortCircuit verifies a critical match ends the scan
// while keeping everything matched up to that point.
func TestValidator_CriticalShortCircuit(t *testing.T) {
	v := newValidator(t)
	got := v.Assess("rm -rf / && chmod 777 /etc", domain.ExecutionContext{})
	if got.Level != domain.RiskCritical {
		t.Fatalf("expected critical, got %s", got.Level)
	}
	if len(got.MatchedRules) == 0 {
		t.Fatal("expected matched rules to be retained")
	}
	// Criticals scan first, so no moderate rule id can precede the critical hit.
	if got.MatchedRules[0] == "chmod-numeric" {
		t.Fatalf("critical rules must be scanned first, got order %v", got.MatchedRules)
	}
}

// TestValidator_MonotonicSeverity verifies accumulation never lowers the tier.
func TestValidator_MonotonicSeverity(t *testing.T) {
	v := newValidator(t)
	env := domain.ExecutionContext{}

	// chmod-numeric (moderate) and system-dir-modify (high) both match.
	got := v.Assess("chmod 600 /etc/shadow", env)
	if got.Level != domain.RiskHigh {
		t.Fatalf("expected high from mixed matches, got %s (rules %v)", got.Level, got.MatchedRules)
	}
	if len(got.MatchedRules) < 2 {
		t.Fatalf("expected all matched rules recorded, got %v", got.MatchedRules)
	}
}

// TestValidator_ForkBombAlwaysCritical pins the fork bomb guarantee.
func TestValidator_ForkBombAlwaysCritical(t *testing.T) {
	v := newValidator(t)
	variants := []string{
		":(){ :|:& };:",
		":() { : | : & } ; :",
		"echo ok; :(){ :|:& };:",
	}
	for _, cmd := range variants {
		got := v.Assess(cmd, domain.ExecutionContext{})
		if got.Level != domain.RiskCritical {
			t.Errorf("Assess(%q) = %s, want critical", cmd, got.Level)
		}
	}
}

// TestValidator_ContextEscalation covers the non-table escalation rules.
func TestValidator_ContextEscalation(t *testing.T) {
	v := newValidator(t)
	env := domain.ExecutionContext{}

	tests := []struct {
		name     string
		command  string
		wantMin  domain.RiskLevel
		wantRule string
	}{
		{"bare sudo escalates", "sudo apt update", domain.RiskHigh, "ctx-sudo"},
		{"redirect into sys escalates", "echo 1 > /sys/kernel/foo", domain.RiskHigh, "ctx-system-redirect"},
		{"risky background job escalates", "killall -9 node &", domain.RiskHigh, "ctx-background"},
		{"risky chain escalates to at least moderate", "chmod +x a.sh && ./a.sh", domain.RiskModerate, "ctx-chaining"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Assess(tt.command, env)
			if got.Level.Severity() < tt.wantMin.Severity() {
				t.Errorf("level = %s, want at least %s", got.Level, tt.wantMin)
			}
			found := false
			for _, id := range got.MatchedRules {
				if id == tt.wantRule {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %s in matched rules %v", tt.wantRule, got.MatchedRules)
			}
		})
	}
}

// TestValidator_PathGatedRules verifies rules with a paths list stay quiet
// outside their prefixes.
func TestValidator_PathGatedRules(t *testing.T) {
	v := newValidator(t)
	env := domain.ExecutionContext{}

	under := v.Assess("rm /etc/hosts", env)
	if under.Level.Severity() < domain.RiskHigh.Severity() {
		t.Fatalf("deletion under /etc should be at least high, got %s", under.Level)
	}

	outside := v.Assess("rm ./scratch.log", env)
	for _, id := range outside.MatchedRules {
		if id == "rm-protected-path" {
			t.Fatalf("rm-protected-path must not fire outside protected prefixes: %v", outside.MatchedRules)
		}
	}
}

// TestValidator_Suggestion verifies critical hits carry a safer alternative.
func TestValidator_Suggestion(t *testing.T) {
	v := newValidator(t)
	got := v.Assess("rm -rf /", domain.ExecutionContext{})
	if got.Suggestion == "" {
		t.Fatal("expected a suggestion on critical deletion")
	}
}

// TestCompile_BadPattern verifies startup fails loudly on an invalid regex.
func TestCompile_BadPattern(t *testing.T) {
	_, err := security.Compile([]domain.PatternRule{
		{ID: "broken", Pattern: "([unclosed", Level: domain.RiskHigh, Description: "x"},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	var rce *domain.RuleCompileError
	if !asRuleCompileError(err, &rce) {
		t.Fatalf("expected RuleCompileError, got %T: %v", err, err)
	}
	if rce.RuleID != "broken" {
		t.Errorf("error names rule %q, want broken", rce.RuleID)
	}
}

func asRuleCompileError(err error, target **domain.RuleCompileError) bool {
	e, ok := err.(*domain.RuleCompileError)
	if ok {
		*target = e
	}
	return ok
}

// TestNormalize covers whitespace collapse and tilde expansion.
func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ls   -la", "ls -la"},
		{"rm -rf ~", "rm -rf $HOME"},
		{"rm -rf ~/projects", "rm -rf $HOME/projects"},
		{"  echo  hi  ", "echo hi"},
	}
	for _, tt := range tests {
		if got := security.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
