package enhance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"

	"github.com/hpungsan/kayko/internal/errors"
)

const ollamaModel = "llama3.2"

// Ollama rewrites prompts with a local Ollama server.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama creates an Ollama enhancer. An empty baseURL reads OLLAMA_HOST.
func NewOllama(baseURL, model string) (*Ollama, error) {
	if model == "" {
		model = ollamaModel
	}

	var client *ollama.Client
	if baseURL == "" {
		c, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, errors.NewEnhancementFailed(ProviderOllama, fmt.Errorf("could not create ollama client: %w", err))
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid enhance_base_url: %v", err))
		}
		client = ollama.NewClient(u, &http.Client{Timeout: DefaultTimeout})
	}

	return &Ollama{client: client, model: model}, nil
}

// Name implements Enhancer.
func (o *Ollama) Name() string { return ProviderOllama }

// Enhance implements Enhancer. The API key is ignored.
func (o *Ollama) Enhance(ctx context.Context, text, _ string) (string, error) {
	stream := false
	req := &ollama.ChatRequest{
		Model: o.model,
		Messages: []ollama.Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: userMessage(text)},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": openAITemperature,
			"num_predict": openAIMaxTokens,
		},
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", failed(ctx, ProviderOllama, err)
	}
	return result(ProviderOllama, sb.String())
}
