package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/enhance"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/store"
)

// EnhanceInput contains parameters for the Enhance operation.
type EnhanceInput struct {
	Text   string // required
	APIKey string // optional; falls back to settings, then the configured env var
}

// EnhanceOutput contains the result of the Enhance operation.
type EnhanceOutput struct {
	Original string `json:"original"`
	Enhanced string `json:"enhanced"`
	Provider string `json:"provider"`
}

// Enhance rewrites text with the configured provider. The store is never
// modified.
func Enhance(ctx context.Context, st *store.Store, cfg *config.Config, e enhance.Enhancer, input EnhanceInput) (*EnhanceOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	if e == nil {
		return nil, errors.NewInvalidRequest("enhancement is not configured")
	}

	key := strings.TrimSpace(input.APIKey)
	if key == "" {
		s, err := st.Settings(ctx)
		if err != nil {
			return nil, err
		}
		key = s.OpenAIAPIKey
	}
	if key == "" && cfg != nil {
		key = cfg.EnhanceAPIKey()
	}

	enhanced, err := e.Enhance(ctx, input.Text, key)
	if err != nil {
		return nil, err
	}
	return &EnhanceOutput{
		Original: input.Text,
		Enhanced: enhanced,
		Provider: e.Name(),
	}, nil
}
