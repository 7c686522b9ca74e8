package prompt

import (
	"net/url"
	"strings"
)

// Known platform tags.
const (
	PlatformChatGPT    = "ChatGPT"
	PlatformClaude     = "Claude"
	PlatformAIStudio   = "Google AI Studio"
	PlatformGemini     = "Gemini"
	PlatformGrok       = "Grok"
	PlatformPerplexity = "Perplexity"
	PlatformUnknown    = "Unknown LLM"
)

// Platforms lists the known platform tags in detection order.
var Platforms = []string{
	PlatformChatGPT,
	PlatformClaude,
	PlatformAIStudio,
	PlatformGemini,
	PlatformGrok,
	PlatformPerplexity,
}

// DetectPlatform maps a page URL to a platform tag. Matching is by hostname
// substring; Gemini is also recognised on google.com when "gemini" appears in
// the host or path. Anything else is PlatformUnknown.
func DetectPlatform(rawURL string) string {
	host, path := splitURL(rawURL)
	switch {
	case strings.Contains(host, "openai.com"), strings.Contains(host, "chatgpt.com"):
		return PlatformChatGPT
	case strings.Contains(host, "claude.ai"), strings.Contains(host, "anthropic.com"):
		return PlatformClaude
	case strings.Contains(host, "aistudio.google.com"):
		return PlatformAIStudio
	case strings.Contains(host, "gemini.google.com"):
		return PlatformGemini
	case strings.Contains(host, "google.com") && (strings.Contains(host, "gemini") || strings.Contains(path, "gemini")):
		return PlatformGemini
	case strings.Contains(host, "x.ai"), strings.Contains(host, "grok.com"):
		return PlatformGrok
	case strings.Contains(host, "perplexity.ai"):
		return PlatformPerplexity
	default:
		return PlatformUnknown
	}
}

// IsLLMHost reports whether rawURL belongs to a supported chat site. Gmail is
// excluded even though it lives under google.com.
func IsLLMHost(rawURL string) bool {
	host, _ := splitURL(rawURL)
	if strings.Contains(host, "mail.google.com") {
		return false
	}
	return DetectPlatform(rawURL) != PlatformUnknown
}

// NormalizePlatform returns p, or PlatformUnknown when p is blank.
func NormalizePlatform(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return PlatformUnknown
	}
	return p
}

// splitURL returns the lowercased hostname and path. A bare hostname
// ("claude.ai") is accepted.
func splitURL(rawURL string) (host, path string) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	return strings.ToLower(u.Hostname()), u.Path
}
