package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/kayko/internal/errors"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openAIModel       = "gpt-4o-mini"
	openAITemperature = 0.5
	openAIMaxTokens   = 1500
)

// OpenAI calls the chat completions endpoint of OpenAI or a compatible server.
type OpenAI struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAI creates an OpenAI enhancer. Empty arguments select the defaults.
func NewOpenAI(baseURL, model string) *OpenAI {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	if model == "" {
		model = openAIModel
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Name implements Enhancer.
func (o *OpenAI) Name() string { return ProviderOpenAI }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Enhance implements Enhancer.
func (o *OpenAI) Enhance(ctx context.Context, text, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", errors.NewEnhancementFailed(ProviderOpenAI, fmt.Errorf("API key is not set"))
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: userMessage(text)},
		},
		Temperature: openAITemperature,
		MaxTokens:   openAIMaxTokens,
	})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.NewEnhancementFailed(ProviderOpenAI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", failed(ctx, ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", failed(ctx, ProviderOpenAI, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.NewEnhancementFailed(ProviderOpenAI, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErrorMessage(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errors.NewEnhancementFailed(ProviderOpenAI, fmt.Errorf("malformed response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", errors.NewEnhancementFailed(ProviderOpenAI, fmt.Errorf("no choices in response"))
	}
	return result(ProviderOpenAI, parsed.Choices[0].Message.Content)
}

func apiErrorMessage(data []byte) string {
	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
