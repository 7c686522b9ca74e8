package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/prompt"
)

// PageData contains common fields used across all page templates.
type PageData struct {
	Title   string
	Version string
	Nav     string // active nav item: "prompts", "forms"
}

// ListPageData is the template data for the prompt list page.
type ListPageData struct {
	PageData
	Items      []prompt.Record
	Pagination ops.Pagination
	Stats      *ops.StatsOutput
	Query      string
	Platform   string
	Date       string
	Favorites  bool
}

// DetailPageData is the template data for the prompt detail page.
type DetailPageData struct {
	PageData
	Prompt       *ops.FetchOutput
	RenderedHTML template.HTML
}

// FormsPageData is the template data for the saved forms page.
type FormsPageData struct {
	PageData
	Items      []ops.FormSummary
	Pagination ops.Pagination
	Prefix     string
}

// ErrorPageData is the template data for the error page.
type ErrorPageData struct {
	PageData
	StatusCode int
	Message    string
}

// Renderer manages template parsing and rendering.
type Renderer struct {
	templates map[string]*template.Template
	version   string
}

// NewRenderer creates a Renderer by parsing templates from the given FS.
func NewRenderer(templateFS fs.FS, version string) *Renderer {
	funcMap := template.FuncMap{
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
		"formatTime":  formatTime,
		"formatChars": formatChars,
		"runeCount":   utf8.RuneCountInString,
		"preview":     preview,
	}

	layoutTmpl := template.Must(template.New("layout").Funcs(funcMap).ParseFS(templateFS, "layout.html"))

	pages := map[string]string{
		"list":   "list.html",
		"detail": "detail.html",
		"forms":  "forms.html",
		"error":  "error.html",
	}

	templates := make(map[string]*template.Template, len(pages))
	for name, file := range pages {
		t := template.Must(layoutTmpl.Clone())
		template.Must(t.ParseFS(templateFS, file))
		templates[name] = t
	}

	return &Renderer{
		templates: templates,
		version:   version,
	}
}

// renderPage renders a named page template with the given data and HTTP 200 status.
func (r *Renderer) renderPage(w http.ResponseWriter, req *http.Request, name string, data any) {
	r.renderPageStatus(w, req, http.StatusOK, name, data)
}

// renderPageStatus renders a named page template with the given data and HTTP status code.
// For HTMX requests, only the "content" block is rendered to avoid duplicating the layout.
func (r *Renderer) renderPageStatus(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	log := logger.C(req.Context())
	t, ok := r.templates[name]
	if !ok {
		log.Error().Str("template", name).Msg("template not found")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	block := "layout"
	if req.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, block, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("template execution failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderError renders an error response with content negotiation.
func (r *Renderer) renderError(w http.ResponseWriter, req *http.Request, err error) {
	kErr := asKaykoError(req, err)

	// HTMX request: return HTML fragment
	if req.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(kErr.Status)
		fmt.Fprintf(w, `<div class="error-message">%s</div>`, template.HTMLEscapeString(kErr.Message))
		return
	}

	if wantsJSON(req) {
		writeError(w, kErr)
		return
	}

	r.renderPageStatus(w, req, kErr.Status, "error", ErrorPageData{
		PageData: PageData{
			Title:   fmt.Sprintf("Error %d", kErr.Status),
			Version: r.version,
		},
		StatusCode: kErr.Status,
		Message:    kErr.Message,
	})
}

// renderAPIError always answers with the JSON error envelope.
func renderAPIError(w http.ResponseWriter, req *http.Request, err error) {
	writeError(w, asKaykoError(req, err))
}

// asKaykoError maps err onto a KaykoError. Internal failures are logged and
// their message replaced.
func asKaykoError(req *http.Request, err error) *errors.KaykoError {
	kErr, ok := errors.As(err)
	if !ok || kErr.Code == errors.ErrInternal {
		logger.C(req.Context()).Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
		return &errors.KaykoError{
			Code:    errors.ErrInternal,
			Status:  http.StatusInternalServerError,
			Message: "an internal error occurred",
		}
	}
	return kErr
}

func writeError(w http.ResponseWriter, kErr *errors.KaykoError) {
	errObj := map[string]any{
		"code":    string(kErr.Code),
		"message": kErr.Message,
		"status":  kErr.Status,
	}
	if kErr.Details != nil {
		errObj["details"] = kErr.Details
	}
	renderJSON(w, kErr.Status, map[string]any{"error": errObj})
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the prompt is not passed through.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// formatTime formats an epoch-millisecond timestamp as "2006-01-02 15:04" UTC.
func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

// formatChars formats an integer with comma thousands separators.
func formatChars(n int) string {
	if n < 0 {
		return "-" + formatChars(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

const previewRunes = 120

// preview collapses whitespace and cuts text to previewRunes.
func preview(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:previewRunes]) + "…"
}
