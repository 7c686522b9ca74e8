package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/enhance"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/store"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	st       *store.Store
	cfg      *config.Config
	enhancer enhance.Enhancer
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st *store.Store, cfg *config.Config, e enhance.Enhancer) *Handlers {
	return &Handlers{st: st, cfg: cfg, enhancer: e}
}

// Request types for each tool

// SaveRequest represents the arguments for prompt_save.
type SaveRequest struct {
	Text      string `json:"text"`
	Platform  string `json:"platform,omitempty"`
	URL       string `json:"url,omitempty"`
	ForceSave bool   `json:"force_save,omitempty"`
}

// ListRequest represents the arguments for prompt_list.
type ListRequest struct {
	Query         string `json:"query,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Date          string `json:"date,omitempty"`
	FavoritesOnly bool   `json:"favorites_only,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// IDRequest represents the arguments for tools addressing one prompt.
type IDRequest struct {
	ID string `json:"id"`
}

// FavoriteRequest represents the arguments for prompt_favorite.
type FavoriteRequest struct {
	ID       string `json:"id"`
	Favorite *bool  `json:"favorite,omitempty"`
}

// ClearRequest represents the arguments for prompt_clear.
type ClearRequest struct {
	Platform      string `json:"platform,omitempty"`
	KeepFavorites bool   `json:"keep_favorites,omitempty"`
}

// ExportRequest represents the arguments for prompt_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for prompt_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// EnhanceRequest represents the arguments for prompt_enhance.
type EnhanceRequest struct {
	Text   string `json:"text"`
	APIKey string `json:"api_key,omitempty"`
}

// SettingsUpdateRequest represents the arguments for settings_update.
type SettingsUpdateRequest struct {
	MaxPrompts          *int      `json:"max_prompts,omitempty"`
	AutoSaveEnabled     *bool     `json:"auto_save_enabled,omitempty"`
	FormAutoSaveEnabled *bool     `json:"form_auto_save_enabled,omitempty"`
	ExcludedSites       *[]string `json:"excluded_sites,omitempty"`
	OpenAIAPIKey        *string   `json:"openai_api_key,omitempty"`
}

// FormListRequest represents the arguments for form_list.
type FormListRequest struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// FormKeyRequest represents the arguments for form_get and form_delete.
type FormKeyRequest struct {
	Key string `json:"key"`
}

// Handler implementations

// HandleSave handles the prompt_save tool call.
func (h *Handlers) HandleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Text) == "" {
		return errorResult(errors.NewInvalidRequest("text is required")), nil
	}

	result, err := ops.Save(ctx, h.st, ops.SaveInput{
		Text:      input.Text,
		Platform:  input.Platform,
		URL:       input.URL,
		ForceSave: input.ForceSave,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the prompt_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.st, ops.ListInput{
		Query:         input.Query,
		Platform:      input.Platform,
		Date:          ops.DateRange(input.Date),
		FavoritesOnly: input.FavoritesOnly,
		Limit:         input.Limit,
		Offset:        input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGet handles the prompt_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.st, ops.FetchInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the prompt_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Delete(ctx, h.st, ops.DeleteInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFavorite handles the prompt_favorite tool call.
func (h *Handlers) HandleFavorite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FavoriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ToggleFavorite(ctx, h.st, ops.FavoriteInput{
		ID:       input.ID,
		Favorite: input.Favorite,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleClear handles the prompt_clear tool call.
func (h *Handlers) HandleClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ClearRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Clear(ctx, h.st, ops.ClearInput{
		Platform:      input.Platform,
		KeepFavorites: input.KeepFavorites,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStats handles the prompt_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.Stats(ctx, h.st, ops.StatsInput{})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the prompt_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.st, h.cfg, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the prompt_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return errorResult(errors.NewInvalidRequest("path is required")), nil
	}

	result, err := ops.Import(ctx, h.st, h.cfg, ops.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleEnhance handles the prompt_enhance tool call.
func (h *Handlers) HandleEnhance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EnhanceRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Enhance(ctx, h.st, h.cfg, h.enhancer, ops.EnhanceInput{
		Text:   input.Text,
		APIKey: input.APIKey,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSettingsGet handles the settings_get tool call.
func (h *Handlers) HandleSettingsGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.GetSettings(ctx, h.st)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSettingsUpdate handles the settings_update tool call.
func (h *Handlers) HandleSettingsUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SettingsUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateSettings(ctx, h.st, ops.UpdateSettingsInput{
		MaxPrompts:          input.MaxPrompts,
		AutoSaveEnabled:     input.AutoSaveEnabled,
		FormAutoSaveEnabled: input.FormAutoSaveEnabled,
		ExcludedSites:       input.ExcludedSites,
		OpenAIAPIKey:        input.OpenAIAPIKey,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFormList handles the form_list tool call.
func (h *Handlers) HandleFormList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FormListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FormList(ctx, h.st, ops.FormListInput{
		Prefix: input.Prefix,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFormGet handles the form_get tool call.
func (h *Handlers) HandleFormGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FormKeyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FormGet(ctx, h.st, ops.FormKeyInput{Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFormDelete handles the form_delete tool call.
func (h *Handlers) HandleFormDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FormKeyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FormDelete(ctx, h.st, ops.FormKeyInput{Key: input.Key})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if kErr, ok := errors.As(err); ok {
		msg := kErr.Message
		if wrapped := err.Error(); wrapped != kErr.Error() {
			msg = strings.Replace(wrapped, kErr.Error(), kErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    kErr.Code,
			"message": msg,
			"status":  kErr.Status,
		}
		if kErr.Code != errors.ErrInternal && kErr.Details != nil {
			errorObj["details"] = kErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
