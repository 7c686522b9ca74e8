// Package enhance rewrites a prompt through an external language model.
// Every failure, including an empty or malformed reply, is reported as an
// ENHANCEMENT_FAILED error; callers never receive the original text back as a
// silent fallback.
package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/errors"
)

// SystemPrompt instructs the model how to rewrite a prompt.
const SystemPrompt = `You improve prompts written for AI assistants.

Rewrite the user's prompt so that it is clear, specific and complete:
- state the goal and the expected output format
- keep every constraint, name, number and code fragment from the original
- add missing context only when it can be inferred with confidence
- keep the user's language and voice

Reply with the rewritten prompt only, without preamble or commentary.`

// DefaultTimeout bounds a single enhancement request.
const DefaultTimeout = 60 * time.Second

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Enhancer rewrites prompt text.
type Enhancer interface {
	// Name returns the provider name.
	Name() string

	// Enhance returns the rewritten prompt. apiKey may be empty for providers
	// that need none.
	Enhance(ctx context.Context, text, apiKey string) (string, error)
}

// New builds the enhancer selected by cfg.EnhanceProvider.
func New(cfg *config.Config) (Enhancer, error) {
	switch cfg.EnhanceProvider {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg.EnhanceBaseURL, cfg.EnhanceModel), nil
	case ProviderOllama:
		return NewOllama(cfg.EnhanceBaseURL, cfg.EnhanceModel)
	case ProviderGemini:
		return NewGemini(cfg.EnhanceBaseURL, cfg.EnhanceModel), nil
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown enhance provider: %s", cfg.EnhanceProvider))
	}
}

// userMessage frames the prompt for the model.
func userMessage(text string) string {
	return "Improve this prompt:\n\n" + text
}

// result validates a model reply.
func result(provider, content string) (string, error) {
	out := strings.TrimSpace(content)
	if out == "" {
		return "", errors.NewEnhancementFailed(provider, fmt.Errorf("empty response"))
	}
	return out, nil
}

// failed wraps err, reporting context cancellation as CANCELLED.
func failed(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("enhance")
	}
	return errors.NewEnhancementFailed(provider, err)
}
