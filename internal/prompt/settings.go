package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxPrompts is the retention cap used when none is configured.
const DefaultMaxPrompts = 100

// MaxPromptsLimit bounds settings.maxPrompts.
const MaxPromptsLimit = 100000

// Settings is the persisted settings object.
type Settings struct {
	MaxPrompts          int      `json:"maxPrompts" validate:"gt=0,lte=100000"`
	AutoSaveEnabled     bool     `json:"autoSaveEnabled"`
	FormAutoSaveEnabled bool     `json:"formAutoSaveEnabled"`
	ExcludedSites       []string `json:"excludedSites" validate:"dive,required"`
	OpenAIAPIKey        string   `json:"openaiApiKey,omitempty"`
}

// DefaultSettings returns the settings used before any are stored.
func DefaultSettings() Settings {
	return Settings{
		MaxPrompts:          DefaultMaxPrompts,
		AutoSaveEnabled:     false,
		FormAutoSaveEnabled: true,
		ExcludedSites:       []string{},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// storedSettings mirrors Settings with optional fields so absent values can be
// told apart from false/zero.
type storedSettings struct {
	MaxPrompts          *int     `json:"maxPrompts"`
	AutoSaveEnabled     *bool    `json:"autoSaveEnabled"`
	FormAutoSaveEnabled *bool    `json:"formAutoSaveEnabled"`
	ExcludedSites       []string `json:"excludedSites"`
	OpenAIAPIKey        string   `json:"openaiApiKey"`
}

// ParseSettings decodes a stored settings object. An empty raw value yields
// defaults. Inside a stored object, an absent auto-save flag counts as enabled
// and an absent or non-positive maxPrompts falls back to the default.
func ParseSettings(raw json.RawMessage, defaults Settings) (Settings, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaults, nil
	}

	var st storedSettings
	if err := json.Unmarshal(raw, &st); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}

	s := Settings{
		MaxPrompts:          defaults.MaxPrompts,
		AutoSaveEnabled:     true,
		FormAutoSaveEnabled: true,
		ExcludedSites:       st.ExcludedSites,
		OpenAIAPIKey:        st.OpenAIAPIKey,
	}
	if st.MaxPrompts != nil && *st.MaxPrompts > 0 {
		s.MaxPrompts = *st.MaxPrompts
	}
	if st.AutoSaveEnabled != nil {
		s.AutoSaveEnabled = *st.AutoSaveEnabled
	}
	if st.FormAutoSaveEnabled != nil {
		s.FormAutoSaveEnabled = *st.FormAutoSaveEnabled
	}
	if s.ExcludedSites == nil {
		s.ExcludedSites = []string{}
	}
	return s, nil
}

// IsExcluded reports whether rawURL's host matches one of the excluded sites.
// An entry matches the host itself or any subdomain of it.
func (s Settings) IsExcluded(rawURL string) bool {
	host, _ := splitURL(rawURL)
	if host == "" {
		return false
	}
	for _, site := range s.ExcludedSites {
		site = strings.ToLower(strings.TrimSpace(site))
		if site == "" {
			continue
		}
		if h, _ := splitURL(site); h != "" {
			site = h
		}
		if host == site || strings.HasSuffix(host, "."+site) {
			return true
		}
	}
	return false
}

// Redacted returns a copy with the API key masked.
func (s Settings) Redacted() Settings {
	if s.OpenAIAPIKey != "" {
		s.OpenAIAPIKey = "********"
	}
	return s
}
