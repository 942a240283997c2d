package domain

// RiskLevel enumerates validator outcomes, ordered by severity.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskOrder = map[RiskLevel]int{
	RiskSafe:     0,
	RiskModerate: 1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Severity returns the numeric rank of a level; unknown levels rank below safe.
func (l RiskLevel) Severity() int {
	if s, ok := riskOrder[l]; ok {
		return s
	}
	return -1
}

// Exceeds reports whether l is strictly more severe than other.
func (l RiskLevel) Exceeds(other RiskLevel) bool {
	return l.Severity() > other.Severity()
}

// MaxRisk returns the more severe of two levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Exceeds(a) {
		return b
	}
	return a
}

// PatternRule is one entry of the validator's rule table. Rules are data
// loaded once at startup; a pattern that fails to compile aborts startup.
type PatternRule struct {
	ID          string    `yaml:"id"`
	Pattern     string    `yaml:"pattern"`
	Level       RiskLevel `yaml:"level"`
	Description string    `yaml:"description"`
	// Suggestion offers a safer alternative shown on refusals.
	Suggestion string `yaml:"suggestion,omitempty"`
	// Paths restricts the rule to commands whose path arguments fall under
	// one of these prefixes. Empty means the pattern alone decides.
	Paths []string `yaml:"paths,omitempty"`
}

// RiskAssessment aggregates every rule hit for a single command.
type RiskAssessment struct {
	Level        RiskLevel `json:"level" yaml:"level"`
	Reasons      []string  `json:"reasons,omitempty" yaml:"reasons,omitempty"`
	MatchedRules []string  `json:"matched_rules,omitempty" yaml:"matched_rules,omitempty"`
	// Suggestion carries a safer alternative phrasing for critical hits.
	Suggestion string `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// Blocked reports whether the assessment forbids execution without an
// explicit override.
func (a RiskAssessment) Blocked() bool {
	return a.Level == RiskCritical
}

// RequiresConfirmation reports whether the tier demands an interactive
// confirmation before execution. Moderate is configurable and handled by the
// caller; High always confirms.
func (a RiskAssessment) RequiresConfirmation() bool {
	return a.Level == RiskHigh
}
