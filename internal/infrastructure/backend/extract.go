package backend

import (
	"encoding/json"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
)

// ExtractCommand reduces model output to a single command line. Strategies
// are tried in order: the requested {"cmd": ...} JSON object, a fenced code
// block, a "command:" line, then the raw text when it is already one line.
func ExtractCommand(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrGenerationMalformed
	}

	if cmd := extractJSONCommand(content); cmd != "" {
		return cmd, nil
	}
	if cmd := extractCodeBlock(content); cmd != "" {
		return cmd, nil
	}
	if cmd := extractCommandLine(content); cmd != "" {
		return cmd, nil
	}
	if cmd := extractBareLine(content); cmd != "" {
		return cmd, nil
	}
	return "", domain.ErrGenerationMalformed
}

// extractJSONCommand parses {"cmd": "..."}, either as the whole payload or
// embedded in surrounding chatter.
func extractJSONCommand(content string) string {
	if cmd := decodeCmdObject(content); cmd != "" {
		return cmd
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return decodeCmdObject(content[start : end+1])
}

func decodeCmdObject(raw string) string {
	var payload struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ""
	}
	return cleanLine(payload.Cmd)
}

// extractCodeBlock pulls the first fenced block, dropping a language marker.
func extractCodeBlock(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return ""
	}
	rest := content[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	block := rest[:end]
	lines := strings.Split(block, "\n")
	if len(lines) > 0 {
		marker := strings.TrimSpace(strings.ToLower(lines[0]))
		switch marker {
		case "sh", "bash", "zsh", "shell", "console", "powershell":
			lines = lines[1:]
		}
	}
	return cleanLine(strings.Join(lines, "\n"))
}

// extractCommandLine looks for a "command:" prefixed line.
func extractCommandLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "command:") {
			return cleanLine(line[len("command:"):])
		}
		if strings.HasPrefix(lower, "cmd:") {
			return cleanLine(line[len("cmd:"):])
		}
	}
	return ""
}

// extractBareLine accepts raw output only when it already is one line;
// multi-line prose means the model ignored the output contract.
func extractBareLine(content string) string {
	if strings.Contains(strings.TrimSpace(content), "\n") {
		return ""
	}
	return cleanLine(content)
}

// cleanLine strips shell prompt markers and stray backtick wrapping, and
// rejects anything that still spans multiple lines.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "`")
	line = strings.TrimPrefix(line, "$ ")
	line = strings.TrimPrefix(line, "> ")
	line = strings.TrimSpace(line)
	if strings.Contains(line, "\n") {
		return ""
	}
	return line
}
