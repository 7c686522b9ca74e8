package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/enhance"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/store"
	"github.com/hpungsan/kayko/internal/surface"
)

// Handlers contains HTTP route handlers for the companion UI and API.
type Handlers struct {
	st       *store.Store
	cfg      *config.Config
	bus      *events.Bus
	hub      *surface.Hub
	enhancer enhance.Enhancer
	renderer *Renderer
	log      *logger.Logger
}

// HandleList handles GET /prompts — the prompt history with filters.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := ops.ListInput{
		Query:         q.Get("q"),
		Platform:      q.Get("platform"),
		Date:          ops.DateRange(q.Get("date")),
		FavoritesOnly: parseBoolParam(r, "favorites"),
		Limit:         parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:        parseIntParam(r, "offset", 0),
	}

	result, err := ops.List(r.Context(), h.st, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	stats, err := ops.Stats(r.Context(), h.st, ops.StatsInput{})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Prompts",
			Version: h.renderer.version,
			Nav:     "prompts",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Stats:      stats,
		Query:      input.Query,
		Platform:   input.Platform,
		Date:       q.Get("date"),
		Favorites:  input.FavoritesOnly,
	})
}

// HandleDetail handles GET /prompts/{id} — view a single prompt.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("prompt ID is required"))
		return
	}

	p, err := ops.Fetch(r.Context(), h.st, ops.FetchInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   preview(p.Text),
			Version: h.renderer.version,
			Nav:     "prompts",
		},
		Prompt:       p,
		RenderedHTML: renderMarkdown(p.Text),
	})
}

// HandleDelete handles DELETE /prompts/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("prompt ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.st, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/prompts")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/prompts", http.StatusFound)
}

// HandleFavorite handles POST /prompts/{id}/favorite — toggle the flag.
func (h *Handlers) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("prompt ID is required"))
		return
	}

	result, err := ops.ToggleFavorite(r.Context(), h.st, ops.FavoriteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Refresh", "true")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/prompts/"+id, http.StatusFound)
}

// HandleForms handles GET /forms — saved form snapshots.
func (h *Handlers) HandleForms(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	result, err := ops.FormList(r.Context(), h.st, ops.FormListInput{
		Prefix: prefix,
		Limit:  parseIntParam(r, "limit", ops.DefaultFormLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "forms", FormsPageData{
		PageData: PageData{
			Title:   "Saved forms",
			Version: h.renderer.version,
			Nav:     "forms",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
		Prefix:     prefix,
	})
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := strings.ToLower(r.URL.Query().Get(name))
	return s == "true" || s == "1" || s == "on"
}
