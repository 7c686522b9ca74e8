package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/surface"
)

// maxBodyBytes bounds JSON request bodies other than imports.
const maxBodyBytes = 1 << 20

// SaveRequest is the body of POST /api/prompts.
type SaveRequest struct {
	Text      string `json:"text"`
	Platform  string `json:"platform,omitempty"`
	URL       string `json:"url,omitempty"`
	ForceSave bool   `json:"force_save,omitempty"`
}

// FavoriteRequest is the optional body of POST /api/prompts/{id}/favorite.
type FavoriteRequest struct {
	Favorite *bool `json:"favorite,omitempty"`
}

// SettingsRequest is the body of PATCH /api/settings. Field names follow the
// stored settings object.
type SettingsRequest struct {
	MaxPrompts          *int      `json:"maxPrompts,omitempty"`
	AutoSaveEnabled     *bool     `json:"autoSaveEnabled,omitempty"`
	FormAutoSaveEnabled *bool     `json:"formAutoSaveEnabled,omitempty"`
	ExcludedSites       *[]string `json:"excludedSites,omitempty"`
	OpenAIAPIKey        *string   `json:"openaiApiKey,omitempty"`
}

// EnhanceRequest is the body of POST /api/enhance.
type EnhanceRequest struct {
	Text   string `json:"text"`
	APIKey string `json:"api_key,omitempty"`
}

// decodeBody reads a JSON body into T. An empty body yields the zero value
// when allowEmpty is set.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, allowEmpty bool) (T, error) {
	var v T
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return v, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		if allowEmpty {
			return v, nil
		}
		return v, errors.NewInvalidRequest("request body is required")
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return v, nil
}

// APIList handles GET /api/prompts.
func (h *Handlers) APIList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := ops.List(r.Context(), h.st, ops.ListInput{
		Query:         q.Get("q"),
		Platform:      q.Get("platform"),
		Date:          ops.DateRange(q.Get("date")),
		FavoritesOnly: parseBoolParam(r, "favorites"),
		Limit:         parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:        parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APISave handles POST /api/prompts, the manual save action.
func (h *Handlers) APISave(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[SaveRequest](w, r, false)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := ops.Save(r.Context(), h.st, ops.SaveInput{
		Text:      req.Text,
		Platform:  req.Platform,
		URL:       req.URL,
		ForceSave: req.ForceSave,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == "created" {
		status = http.StatusCreated
	}
	renderJSON(w, status, result)
}

// APIClear handles DELETE /api/prompts. Unlike the per-record route it
// requires ?confirm=true.
func (h *Handlers) APIClear(w http.ResponseWriter, r *http.Request) {
	if !parseBoolParam(r, "confirm") {
		renderAPIError(w, r, errors.NewInvalidRequest(`confirm parameter must be "true"`))
		return
	}

	result, err := ops.Clear(r.Context(), h.st, ops.ClearInput{
		Platform:      r.URL.Query().Get("platform"),
		KeepFavorites: parseBoolParam(r, "keep_favorites"),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIGet handles GET /api/prompts/{id}.
func (h *Handlers) APIGet(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Fetch(r.Context(), h.st, ops.FetchInput{ID: r.PathValue("id")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIDelete handles DELETE /api/prompts/{id}.
func (h *Handlers) APIDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.st, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFavorite handles POST /api/prompts/{id}/favorite. Without a body the
// flag is toggled.
func (h *Handlers) APIFavorite(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[FavoriteRequest](w, r, true)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := ops.ToggleFavorite(r.Context(), h.st, ops.FavoriteInput{
		ID:       r.PathValue("id"),
		Favorite: req.Favorite,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIStats handles GET /api/stats.
func (h *Handlers) APIStats(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Stats(r.Context(), h.st, ops.StatsInput{})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIGetSettings handles GET /api/settings.
func (h *Handlers) APIGetSettings(w http.ResponseWriter, r *http.Request) {
	result, err := ops.GetSettings(r.Context(), h.st)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIUpdateSettings handles PATCH /api/settings.
func (h *Handlers) APIUpdateSettings(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[SettingsRequest](w, r, false)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := ops.UpdateSettings(r.Context(), h.st, ops.UpdateSettingsInput{
		MaxPrompts:          req.MaxPrompts,
		AutoSaveEnabled:     req.AutoSaveEnabled,
		FormAutoSaveEnabled: req.FormAutoSaveEnabled,
		ExcludedSites:       req.ExcludedSites,
		OpenAIAPIKey:        req.OpenAIAPIKey,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIEnhance handles POST /api/enhance.
func (h *Handlers) APIEnhance(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[EnhanceRequest](w, r, false)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := ops.Enhance(r.Context(), h.st, h.cfg, h.enhancer, ops.EnhanceInput{
		Text:   req.Text,
		APIKey: req.APIKey,
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIExport handles GET /api/export — the prompt array as a download.
func (h *Handlers) APIExport(w http.ResponseWriter, r *http.Request) {
	records, err := h.st.Prompts(r.Context())
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	data, err := ops.MarshalExport(records)
	if err != nil {
		renderAPIError(w, r, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ops.ExportFilename(h.st)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// APIImport handles POST /api/import with an exported array as the body.
func (h *Handlers) APIImport(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.MaxImportBytes
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			renderAPIError(w, r, errors.NewFileTooLarge(limit, r.ContentLength))
			return
		}
		renderAPIError(w, r, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err)))
		return
	}
	if len(data) == 0 {
		renderAPIError(w, r, errors.NewInvalidRequest("request body is required"))
		return
	}

	result, err := ops.Import(r.Context(), h.st, h.cfg, ops.ImportInput{Data: data})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFormList handles GET /api/forms.
func (h *Handlers) APIFormList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FormList(r.Context(), h.st, ops.FormListInput{
		Prefix: r.URL.Query().Get("prefix"),
		Limit:  parseIntParam(r, "limit", ops.DefaultFormLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFormGet handles GET /api/forms/entry?key=.
func (h *Handlers) APIFormGet(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FormGet(r.Context(), h.st, ops.FormKeyInput{Key: r.URL.Query().Get("key")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFormDelete handles DELETE /api/forms/entry?key=.
func (h *Handlers) APIFormDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.FormDelete(r.Context(), h.st, ops.FormKeyInput{Key: r.URL.Query().Get("key")})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APIFormLookup handles POST /api/forms/lookup: the page sends the form
// descriptor and receives the snapshot to restore.
func (h *Handlers) APIFormLookup(w http.ResponseWriter, r *http.Request) {
	d, err := decodeBody[form.Descriptor](w, r, false)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := ops.FormGet(r.Context(), h.st, ops.FormKeyInput{Form: &d})
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APISurfaceEvent handles POST /api/surfaces/{id}/events.
func (h *Handlers) APISurfaceEvent(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		renderAPIError(w, r, errors.NewInvalidRequest("surface capture is not enabled"))
		return
	}
	rep, err := decodeBody[surface.Report](w, r, false)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}

	result, err := h.hub.Report(r.Context(), r.PathValue("id"), rep)
	if err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// APISurfaceClose handles DELETE /api/surfaces/{id}.
func (h *Handlers) APISurfaceClose(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		renderAPIError(w, r, errors.NewInvalidRequest("surface capture is not enabled"))
		return
	}
	id := r.PathValue("id")
	if err := h.hub.Close(id); err != nil {
		renderAPIError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"surface_id": id, "detached": true})
}
