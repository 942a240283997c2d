package domain

// Config mirrors ~/.cmdai/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Preferences         Preferences        `yaml:"preferences"`
	Backends            BackendSettings    `yaml:"backends"`
	Generation          GenerationSettings `yaml:"generation"`
	Security            SecuritySettings   `yaml:"security"`
	Execution           ExecutionSettings  `yaml:"execution"`
	Cache               CacheSettings      `yaml:"cache"`
	History             HistorySettings    `yaml:"history"`
}

// Preferences captures user level toggles.
type Preferences struct {
	BackendOrder    []string `yaml:"backend_order"`
	AutoExecuteSafe bool     `yaml:"auto_execute_safe"`
	Output          string   `yaml:"output"`
}

// BackendSettings groups per-backend configuration.
type BackendSettings struct {
	Embedded EmbeddedSettings `yaml:"embedded"`
	Ollama   OllamaSettings   `yaml:"ollama"`
	OpenAI   OpenAISettings   `yaml:"openai"`
}

// EmbeddedSettings configures the local runner backend.
type EmbeddedSettings struct {
	RunnerBin string    `yaml:"runner_bin"`
	Model     ModelSpec `yaml:"model"`
	ExtraArgs []string  `yaml:"extra_args,omitempty"`
}

// OllamaSettings configures the local Ollama HTTP backend.
type OllamaSettings struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// OpenAISettings configures an OpenAI-compatible remote backend.
type OpenAISettings struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	AuthEnvVar string `yaml:"auth_env_var"`
}

// GenerationSettings controls inference calls and refinement.
type GenerationSettings struct {
	TimeoutSeconds int                `yaml:"timeout"`
	Refinement     RefinementSettings `yaml:"refinement"`
}

// RefinementSettings bounds the safety refinement loop.
type RefinementSettings struct {
	Enabled       bool `yaml:"enabled"`
	MaxIterations int  `yaml:"max_iterations"`
}

// SecuritySettings defines validator behavior.
type SecuritySettings struct {
	RulesFile             string `yaml:"rules_file"`
	AllowCriticalOverride bool   `yaml:"allow_critical_override"`
	ConfirmModerate       bool   `yaml:"confirm_moderate"`
	AuditLog              bool   `yaml:"audit_log"`
}

// ExecutionSettings controls how commands run.
type ExecutionSettings struct {
	Shell          string `yaml:"shell"`
	TimeoutSeconds int    `yaml:"timeout"`
	MaxOutputKB    int    `yaml:"max_output_kb"`
}

// CacheSettings bounds the model artifact store.
type CacheSettings struct {
	Dir          string `yaml:"dir"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
}

// HistorySettings controls local command history.
type HistorySettings struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}
