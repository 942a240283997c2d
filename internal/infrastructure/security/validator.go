package security

import (
	"regexp"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Validator classifies commands against a compiled rule table. It is
// immutable after construction and safe for concurrent use.
type Validator struct {
	rules []compiledRule
}

type compiledRule struct {
	re   *regexp.Regexp
	rule domain.PatternRule
}

// Context escalation applies on top of the rule table: sudo and writes into
// system paths raise the floor, chaining and backgrounding amplify an
// existing match.
var (
	sudoRe           = regexp.MustCompile(`(^|[;&|(]\s*)(sudo|doas|su)\s`)
	systemRedirectRe = regexp.MustCompile(`>>?\s*/(etc|sys|boot)/`)
	chainRe          = regexp.MustCompile(`(&&|;|\|)`)
)

// Compile builds a validator from the rule table. Critical rules are ordered
// first so a critical hit ends the scan as early as possible. The first
// pattern that fails to compile aborts with a *domain.RuleCompileError.
func Compile(rules []domain.PatternRule) (*Validator, error) {
	ordered := make([]domain.PatternRule, 0, len(rules))
	for _, r := range rules {
		if r.Level == domain.RiskCritical {
			ordered = append(ordered, r)
		}
	}
	for _, r := range rules {
		if r.Level != domain.RiskCritical {
			ordered = append(ordered, r)
		}
	}

	compiled := make([]compiledRule, 0, len(ordered))
	for _, rule := range ordered {
		re, err := regexp.Compile(`(?i)` + rule.Pattern)
		if err != nil {
			return nil, &domain.RuleCompileError{RuleID: rule.ID, Pattern: rule.Pattern, Err: err}
		}
		compiled = append(compiled, compiledRule{re: re, rule: rule})
	}
	return &Validator{rules: compiled}, nil
}

// Normalize collapses whitespace and expands a leading tilde per token so
// rules only need to match the $HOME form.
func Normalize(command string) string {
	fields := strings.Fields(command)
	for i, f := range fields {
		switch {
		case f == "~":
			fields[i] = "$HOME"
		case strings.HasPrefix(f, "~/"):
			fields[i] = "$HOME" + f[1:]
		}
	}
	return strings.Join(fields, " ")
}

// Assess implements ports.SafetyValidator. Identical input always yields an
// identical assessment: rule order is fixed at compile time and matching has
// no side effects.
func (v *Validator) Assess(command string, env domain.ExecutionContext) domain.RiskAssessment {
	norm := Normalize(command)
	out := domain.RiskAssessment{Level: domain.RiskSafe}

	for _, cr := range v.rules {
		if len(cr.rule.Paths) > 0 && !referencesPath(norm, cr.rule.Paths) {
			continue
		}
		if !cr.re.MatchString(norm) {
			continue
		}
		out.Reasons = append(out.Reasons, cr.rule.Description)
		out.MatchedRules = append(out.MatchedRules, cr.rule.ID)
		if out.Suggestion == "" && cr.rule.Suggestion != "" {
			out.Suggestion = cr.rule.Suggestion
		}
		out.Level = domain.MaxRisk(out.Level, cr.rule.Level)
		if out.Level == domain.RiskCritical {
			// Criticals are scanned first; everything matched so far is kept.
			return out
		}
	}

	v.applyContextRules(norm, &out)
	return out
}

// Rules returns the table in scan order.
func (v *Validator) Rules() []domain.PatternRule {
	out := make([]domain.PatternRule, 0, len(v.rules))
	for _, cr := range v.rules {
		out = append(out, cr.rule)
	}
	return out
}

func (v *Validator) applyContextRules(norm string, out *domain.RiskAssessment) {
	matched := len(out.MatchedRules) > 0

	if sudoRe.MatchString(norm) {
		escalate(out, domain.RiskHigh, "ctx-sudo", "privilege escalation with sudo or su")
	}
	if systemRedirectRe.MatchString(norm) {
		escalate(out, domain.RiskHigh, "ctx-system-redirect", "output redirected into a system path")
	}
	if matched && strings.HasSuffix(norm, "&") {
		escalate(out, domain.RiskHigh, "ctx-background", "risky command detached into the background")
	}
	if matched && chainRe.MatchString(norm) {
		escalate(out, domain.RiskModerate, "ctx-chaining", "risky command combined with chaining")
	}
}

func escalate(out *domain.RiskAssessment, floor domain.RiskLevel, id, reason string) {
	out.MatchedRules = append(out.MatchedRules, id)
	out.Reasons = append(out.Reasons, reason)
	if floor.Exceeds(out.Level) {
		out.Level = floor
	}
}

// referencesPath reports whether any path-like token of the command falls
// under one of the given prefixes.
func referencesPath(norm string, prefixes []string) bool {
	for _, tok := range strings.Fields(norm) {
		tok = strings.Trim(tok, `"';&|()`)
		if !strings.HasPrefix(tok, "/") {
			continue
		}
		for _, p := range prefixes {
			if tok == p || strings.HasPrefix(tok, p+"/") {
				return true
			}
		}
	}
	return false
}

var _ ports.SafetyValidator = (*Validator)(nil)
