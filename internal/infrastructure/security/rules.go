package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/doeshing/cmdai-go/assets"
	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/pkg/filesystem"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// RulesFile is the YAML schema root for rule tables on disk.
type RulesFile struct {
	Rules struct {
		Patterns []domain.PatternRule `yaml:"patterns"`
	} `yaml:"rules"`
}

// NewValidator loads the rule table and compiles it. A missing user file is
// normal and uses the embedded table; a present-but-broken user file is
// logged and also falls back, so a typo can never disable validation. A
// broken embedded table is a build defect and aborts startup.
func NewValidator(settings domain.SecuritySettings, log ports.Logger) (*Validator, error) {
	rules, err := LoadRules(settings.RulesFile)
	if err != nil {
		log.Warn("user rule file invalid, using built-in table", map[string]interface{}{
			"path":  resolveRulesPath(settings.RulesFile),
			"error": err.Error(),
		})
		rules = nil
	}
	if len(rules) == 0 {
		rules, err = ParseRules(assets.DefaultRulesYAML)
		if err != nil {
			return nil, fmt.Errorf("embedded rule table: %w", err)
		}
	}
	return Compile(rules)
}

// LoadRules reads a rule table from path (default ~/.cmdai/rules.yaml).
// A missing file returns the embedded defaults without error.
func LoadRules(path string) ([]domain.PatternRule, error) {
	resolved := resolveRulesPath(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseRules(assets.DefaultRulesYAML)
		}
		return nil, fmt.Errorf("read rules %s: %w", resolved, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", resolved, err)
	}
	return rules, nil
}

// ParseRules unmarshals and sanity-checks a rule table.
func ParseRules(data []byte) ([]domain.PatternRule, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	rules := file.Rules.Patterns
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("rule %s has no pattern", r.ID)
		}
		switch r.Level {
		case domain.RiskSafe, domain.RiskModerate, domain.RiskHigh, domain.RiskCritical:
		default:
			return nil, fmt.Errorf("rule %s has unknown level %q", r.ID, r.Level)
		}
	}
	return rules, nil
}

// WriteDefaultRules materializes the embedded table at the default location
// so users have something to edit. Existing files are left alone.
func WriteDefaultRules() (string, error) {
	path := resolveRulesPath("")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, assets.DefaultRulesYAML, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func resolveRulesPath(path string) string {
	if path == "" {
		return filepath.Join(filesystem.AppDir(), "rules.yaml")
	}
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(filesystem.UserHomeDir(), path[2:])
	}
	return filepath.Join(filesystem.AppDir(), path)
}
