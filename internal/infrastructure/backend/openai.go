package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/doeshing/cmdai-go/internal/domain"
	"github.com/doeshing/cmdai-go/internal/ports"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIKeyVar   = "OPENAI_API_KEY"
)

// OpenAI calls any OpenAI-compatible chat completion API, keyed by an
// environment variable so the config file never holds credentials.
type OpenAI struct {
	settings domain.OpenAISettings
	client   *http.Client
}

func NewOpenAI(settings domain.OpenAISettings) *OpenAI {
	return &OpenAI{
		settings: settings,
		client:   &http.Client{Timeout: domain.DefaultHTTPClientTimeout},
	}
}

func (p *OpenAI) ID() string { return "openai" }

// Available only checks for the API key; remote reachability is the
// Generate call's problem.
func (p *OpenAI) Available(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.apiKey() == "" {
		return fmt.Errorf("%s not set", p.keyVar())
	}
	return nil
}

func (p *OpenAI) Generate(ctx context.Context, call ports.GenerationCall) (domain.RawGeneration, error) {
	apiKey := p.apiKey()
	if apiKey == "" {
		return domain.RawGeneration{}, fmt.Errorf("%s not set", p.keyVar())
	}

	messages, err := renderChatMessages(call)
	if err != nil {
		return domain.RawGeneration{}, err
	}

	model := p.settings.Model
	if model == "" {
		model = defaultOpenAIModel
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

	endpoint := p.settings.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.RawGeneration{}, err
	}
	req.Header.Set("authorization", "Bearer "+apiKey)
	req.Header.Set("content-type", "application/json")
	if org := os.Getenv("OPENAI_ORG_ID"); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.RawGeneration{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return domain.RawGeneration{}, fmt.Errorf("openai: %s", resp.Status)
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
		Rationale: "generated via openai-compatible api",
	}, nil
}

func (p *OpenAI) keyVar() string {
	if p.settings.AuthEnvVar != "" {
		return p.settings.AuthEnvVar
	}
	return defaultOpenAIKeyVar
}

func (p *OpenAI) apiKey() string {
	return os.Getenv(p.keyVar())
}

var _ ports.Backend = (*OpenAI)(nil)
