package domain

// OutputFormat selects how the CLI renders results.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// GenerationRequest captures user intent plus the environment snapshot the
// backends need to produce a platform-appropriate command.
type GenerationRequest struct {
	Prompt          string
	Context         ExecutionContext
	BackendOverride string
	ModelOverride   string
	Refine          bool
	MaxRefinements  int
}

// GeneratedCommand is the canonical pipeline output. Every instance carries
// exactly one completed risk assessment.
type GeneratedCommand struct {
	Command     string         `json:"command" yaml:"command"`
	Backend     string         `json:"backend" yaml:"backend"`
	Model       string         `json:"model,omitempty" yaml:"model,omitempty"`
	Rationale   string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Risk        RiskAssessment `json:"risk" yaml:"risk"`
	Refinements int            `json:"refinements,omitempty" yaml:"refinements,omitempty"`
}

// RawGeneration is what a backend returns before validation attaches risk.
type RawGeneration struct {
	Command   string
	Rationale string
	Model     string
}
