package backend

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

// Static answers a fixed set of well-known requests with canned commands.
// It needs no model, no network, and no credentials, which makes it the
// terminal link of the fallback chain: deterministic output for the queries
// it knows, an error for everything else.
type Static struct {
	patterns []staticPattern
}

type staticPattern struct {
	// required keywords must all appear in the prompt.
	required []string
	// optional keywords: at least one must appear for a keyword-only match.
	optional []string
	// re, when set, matches the prompt directly and wins over keywords.
	re       *regexp.Regexp
	gnu      string
	bsd      string
	describe string
}

func NewStatic() *Static {
	return &Static{patterns: buildStaticPatterns()}
}

func (s *Static) ID() string { return "static" }

// Available always succeeds; the matcher has no external dependencies.
func (s *Static) Available(context.Context) error { return nil }

func (s *Static) Generate(_ context.Context, call ports.GenerationCall) (domain.RawGeneration, error) {
	prompt := strings.ToLower(strings.TrimSpace(call.Prompt))
	for i := range s.patterns {
		p := &s.patterns[i]
		if !p.matches(prompt) {
			continue
		}
		return domain.RawGeneration{
			Command:   p.commandFor(call.Context.OS),
			Rationale: "matched known request: " + p.describe,
			Model:     "static",
		}, nil
	}
	return domain.RawGeneration{}, fmt.Errorf("no static pattern matches %q", call.Prompt)
}

func (p *staticPattern) matches(prompt string) bool {
	if p.re != nil && p.re.MatchString(prompt) {
		return true
	}
	for _, kw := range p.required {
		if !strings.Contains(prompt, kw) {
			return false
		}
	}
	for _, kw := range p.optional {
		if strings.Contains(prompt, kw) {
			return true
		}
	}
	// Required keywords alone only carry patterns that have no regex; when a
	// regex exists and failed, keywords need optional support too.
	return p.re == nil
}

// commandFor picks the BSD variant on Darwin and the BSDs, GNU elsewhere.
func (p *staticPattern) commandFor(osName string) string {
	switch osName {
	case "darwin", "freebsd", "openbsd", "netbsd":
		if p.bsd != "" {
			return p.bsd
		}
	}
	return p.gnu
}

func buildStaticPatterns() []staticPattern {
	return []staticPattern{
		{
			required: []string{"file", "modified", "today"},
			optional: []string{"list", "all", "show"},
			re:       regexp.MustCompile(`(list|show|find|get).*(files?).*(modified|changed|updated).*(today|last 24 hours?)`),
			gnu:      "find . -type f -mtime 0",
			describe: "list files modified today",
		},
		{
			required: []string{"large", "file", "100"},
			optional: []string{"find", "over", "mb"},
			re:       regexp.MustCompile(`(find|locate|show|list).*(large|big).*(files?).*(over|above|bigger|greater).*(100)`),
			gnu:      "find . -type f -size +100M",
			describe: "find large files over 100MB",
		},
		{
			required: []string{"disk", "usage", "folder"},
			optional: []string{"show", "display", "by"},
			re:       regexp.MustCompile(`(show|display|list|get).*(disk|space).*(usage|size).*(by |per )?(folder|director)`),
			gnu:      "du -sh */ | sort -rh | head -10",
			describe: "show disk usage by folder",
		},
		{
			required: []string{"python", "file", "modified", "week"},
			optional: []string{"find", "last"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(python|\.py).*(files?).*(modified|changed|updated).*(last week|past week)`),
			gnu:      `find . -name "*.py" -type f -mtime -7`,
			describe: "find Python files modified last week",
		},
		{
			required: []string{"file", "10"},
			optional: []string{"find", "larger", "bigger", "mb"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(files?).*(larger|bigger|over|above|greater).*(10mb|10m\b|\b10\b)`),
			gnu:      "find . -type f -size +10M",
			describe: "find files larger than 10MB",
		},
		{
			required: []string{"file", "1"},
			optional: []string{"find", "larger", "gb"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(files?).*(larger|bigger|over|above|greater).*(1gb|1g\b)`),
			gnu:      "find . -type f -size +1G",
			describe: "find files larger than 1GB",
		},
		{
			required: []string{"file", "hour"},
			optional: []string{"find", "changed", "modified", "last"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(files?).*(changed|modified|updated).*(last|past).*(hour|60 min)`),
			gnu:      "find . -type f -mmin -60",
			describe: "find files modified in the last hour",
		},
		{
			required: []string{"file", "7"},
			optional: []string{"find", "modified", "days"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(files?).*(modified|changed|updated).*(last|past).*(7|seven).*days?`),
			gnu:      "find . -type f -mtime -7",
			describe: "find files modified in the last 7 days",
		},
		{
			required: []string{"png", "7"},
			optional: []string{"find", "image", "modified", "days"},
			re:       regexp.MustCompile(`(find|locate|list|show).*(png|\.png).*(image|file)s?.*(modified|changed|updated).*(last|past).*(7|seven).*days?`),
			gnu:      "find . -name '*.png' -type f -mtime -7",
			describe: "find PNG images modified in the last 7 days",
		},
		{
			required: []string{"process", "memory"},
			optional: []string{"top", "10", "consuming", "using"},
			re:       regexp.MustCompile(`(show|display|list|find).*(top|most).*(memory|mem|ram).*(consuming|using|hogging).*process`),
			gnu:      "ps aux --sort=-%mem | head -n 11",
			bsd:      "ps aux -m | head -n 11",
			describe: "show top memory-consuming processes",
		},
		{
			required: []string{"process", "port"},
			optional: []string{"check", "using", "listening"},
			re:       regexp.MustCompile(`(check|find|show|which).*(process|program|service).*(using|listening|on).*(port|:)\s*\d+`),
			gnu:      "lsof -i :8080",
			describe: "check which process is using a port",
		},
		{
			required: []string{"list", "file"},
			optional: []string{"directory", "folder", "current", "here"},
			gnu:      "ls -la",
			describe: "list files in the current directory",
		},
	}
}

var _ ports.Backend = (*Static)(nil)
