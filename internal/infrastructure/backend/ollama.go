package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "llama3.2"
)

// Ollama talks to a local Ollama server over its OpenAI-compatible API.
type Ollama struct {
	settings domain.OllamaSettings
	client   *http.Client
}

func NewOllama(settings domain.OllamaSettings) *Ollama {
	return &Ollama{
		settings: settings,
		client:   &http.Client{Timeout: domain.DefaultHTTPClientTimeout},
	}
}

func (o *Ollama) ID() string { return "ollama" }

// Available pings the server's tag list, the cheapest endpoint Ollama serves.
func (o *Ollama) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL()+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama server not reachable at %s: %w", o.baseURL(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ollama server returned %s", resp.Status)
	}
	return nil
}

func (o *Ollama) Generate(ctx context.Context, call ports.GenerationCall) (domain.RawGeneration, error) {
	messages, err := renderChatMessages(call)
	if err != nil {
		return domain.RawGeneration{}, err
	}

	model := o.settings.Model
	if model == "" {
		model = defaultOllamaModel
	}
	if call.ModelOverride != "" {
		model = call.ModelOverride
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   256,
		Temperature: 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.RawGeneration{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL()+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.RawGeneration{}, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return domain.RawGeneration{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.RawGeneration{}, fmt.Errorf("ollama: %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.RawGeneration{}, err
	}
	command, err := ExtractCommand(decoded.FirstMessage())
	if err != nil {
		return domain.RawGeneration{}, err
	}
	return domain.RawGeneration{
		Command:   command,
		Model:     model,
		Rationale: "generated via ollama",
	}, nil
}

func (o *Ollama) baseURL() string {
	endpoint := o.settings.Endpoint
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

var _ ports.Backend = (*Ollama)(nil)
