package enhance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/hpungsan/kayko/internal/errors"
)

const geminiModel = "gemini-2.0-flash"

// Gemini rewrites prompts with Google's Gemini API. Clients are created per
// API key and reused.
type Gemini struct {
	baseURL string
	model   string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGemini creates a Gemini enhancer.
func NewGemini(baseURL, model string) *Gemini {
	if model == "" {
		model = geminiModel
	}
	return &Gemini{
		baseURL: baseURL,
		model:   model,
		clients: make(map[string]*genai.Client),
	}
}

// Name implements Enhancer.
func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

// Enhance implements Enhancer.
func (g *Gemini) Enhance(ctx context.Context, text, apiKey string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", errors.NewEnhancementFailed(ProviderGemini, fmt.Errorf("API key is not set"))
	}

	client, err := g.client(ctx, apiKey)
	if err != nil {
		return "", errors.NewEnhancementFailed(ProviderGemini, err)
	}

	temperature := float32(openAITemperature)
	resp, err := client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{genai.NewContentFromText(userMessage(text), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
			Temperature:       &temperature,
			MaxOutputTokens:   openAIMaxTokens,
		},
	)
	if err != nil {
		return "", failed(ctx, ProviderGemini, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.NewEnhancementFailed(ProviderGemini, fmt.Errorf("no candidates in response"))
	}
	return result(ProviderGemini, resp.Text())
}
