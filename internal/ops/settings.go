package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// SettingsOutput is the settings view returned to callers. The API key is
// masked.
type SettingsOutput struct {
	prompt.Settings
	HasAPIKey bool `json:"has_api_key"`
}

func settingsOutput(s prompt.Settings) *SettingsOutput {
	return &SettingsOutput{
		Settings:  s.Redacted(),
		HasAPIKey: s.OpenAIAPIKey != "",
	}
}

// GetSettings returns the effective settings.
func GetSettings(ctx context.Context, st *store.Store) (*SettingsOutput, error) {
	s, err := st.Settings(ctx)
	if err != nil {
		return nil, err
	}
	return settingsOutput(s), nil
}

// UpdateSettingsInput contains parameters for the UpdateSettings operation.
// Nil fields are left unchanged.
type UpdateSettingsInput struct {
	MaxPrompts          *int
	AutoSaveEnabled     *bool
	FormAutoSaveEnabled *bool
	ExcludedSites       *[]string
	OpenAIAPIKey        *string // empty string clears the key
}

// UpdateSettings patches the stored settings. Lowering maxPrompts trims the
// oldest prompts.
func UpdateSettings(ctx context.Context, st *store.Store, input UpdateSettingsInput) (*SettingsOutput, error) {
	s, err := st.UpdateSettings(ctx, func(s prompt.Settings) (prompt.Settings, error) {
		if input.MaxPrompts != nil {
			s.MaxPrompts = *input.MaxPrompts
		}
		if input.AutoSaveEnabled != nil {
			s.AutoSaveEnabled = *input.AutoSaveEnabled
		}
		if input.FormAutoSaveEnabled != nil {
			s.FormAutoSaveEnabled = *input.FormAutoSaveEnabled
		}
		if input.ExcludedSites != nil {
			sites := make([]string, 0, len(*input.ExcludedSites))
			for _, site := range *input.ExcludedSites {
				if site = strings.TrimSpace(site); site != "" {
					sites = append(sites, site)
				}
			}
			s.ExcludedSites = sites
		}
		if input.OpenAIAPIKey != nil {
			s.OpenAIAPIKey = strings.TrimSpace(*input.OpenAIAPIKey)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return settingsOutput(s), nil
}
