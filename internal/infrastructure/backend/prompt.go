// Package backend implements the inference sources behind command
// generation: a local llama.cpp-style runner, Ollama, OpenAI-compatible
// APIs, and an offline static matcher, plus the registry that walks them in
// configured order.
package backend

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/doeshing/cmdai-go/internal/ports"
)

const systemPromptTemplate = `You are cmdai, a careful shell command generator.
Convert the user's request into exactly one {{.Shell}} command.

Respond with ONLY a JSON object in this exact format:
{"cmd": "the_command"}

Rules:
- a single command line, no explanation outside the JSON
- quote file paths that contain spaces
- never generate destructive commands (recursive root deletion, disk overwrites, fork bombs)
{{- if .Tools}}
- prefer tools that are installed: {{.Tools}}
{{- end}}
{{- range .PlatformNotes}}
- {{.}}
{{- end}}

Environment:
- directory: {{.WorkingDir}}
- shell: {{.Shell}}
- os: {{.OS}}/{{.Arch}}{{if .Distribution}} ({{.Distribution}}{{if .OSVersion}} {{.OSVersion}}{{end}}){{end}}`

const userPromptTemplate = `{{.Prompt}}`

const refinePromptTemplate = `The previous command was flagged by safety validation.

Previous command: {{.PriorCommand}}
Risk level: {{.PriorRisk}}
{{- range .PriorReasons}}
- {{.}}
{{- end}}

Produce a safer alternative that still satisfies the original request:
{{.Prompt}}`

type promptData struct {
	Prompt        string
	Shell         string
	OS            string
	Arch          string
	OSVersion     string
	Distribution  string
	WorkingDir    string
	Tools         string
	PlatformNotes []string
	PriorCommand  string
	PriorRisk     string
	PriorReasons  []string
}

func buildPromptData(call ports.GenerationCall) promptData {
	env := call.Context
	data := promptData{
		Prompt:        strings.TrimSpace(call.Prompt),
		Shell:         env.Shell,
		OS:            env.OS,
		Arch:          env.Arch,
		OSVersion:     env.OSVersion,
		Distribution:  env.Distribution,
		WorkingDir:    env.WorkingDir,
		Tools:         strings.Join(env.SortedTools(), ", "),
		PlatformNotes: env.PlatformNotes(),
	}
	if call.PriorCommand != "" {
		data.PriorCommand = call.PriorCommand
		if call.PriorRisk != nil {
			data.PriorRisk = string(call.PriorRisk.Level)
			data.PriorReasons = call.PriorRisk.Reasons
		}
	}
	return data
}

// renderChatMessages produces the system+user pair for HTTP chat backends.
// Refinement rounds swap the user message for one carrying the prior command
// and why it was flagged.
func renderChatMessages(call ports.GenerationCall) ([]chatMessage, error) {
	data := buildPromptData(call)

	system, err := executeTemplate(systemPromptTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	userTemplate := userPromptTemplate
	if data.PriorCommand != "" {
		userTemplate = refinePromptTemplate
	}
	user, err := executeTemplate(userTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render user prompt: %w", err)
	}

	return []chatMessage{
		{Role: "system", Content: strings.TrimSpace(system)},
		{Role: "user", Content: strings.TrimSpace(user)},
	}, nil
}

// renderSinglePrompt flattens the chat pair for runners that take one string.
func renderSinglePrompt(call ports.GenerationCall) (string, error) {
	messages, err := renderChatMessages(call)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if strings.EqualFold(msg.Role, "user") {
			b.WriteString("Request: ")
		}
		b.WriteString(msg.Content)
	}
	return b.String(), nil
}

func executeTemplate(raw string, data promptData) (string, error) {
	tmpl, err := template.New("prompt").Parse(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
