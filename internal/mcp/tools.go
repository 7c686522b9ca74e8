package mcp

import "github.com/mark3labs/mcp-go/mcp"

var saveToolDef = mcp.NewTool("prompt_save",
	mcp.WithDescription("Save a prompt. Near-duplicates on the same platform are merged into the existing record and moved to the front; drafts shorter than 3 characters or equal to the most recent prompt are rejected (saved=false)."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Prompt text")),
	mcp.WithString("platform", mcp.Description("Platform tag; detected from url when omitted")),
	mcp.WithString("url", mcp.Description("Page the prompt was written on")),
	mcp.WithBoolean("force_save", mcp.Description("Explicit commit, as when Enter is pressed")),
)

var listToolDef = mcp.NewTool("prompt_list",
	mcp.WithDescription("List saved prompts, most recent first."),
	mcp.WithString("query", mcp.Description("Case-insensitive match on text or platform")),
	mcp.WithString("platform", mcp.Description("Exact platform tag")),
	mcp.WithString("date", mcp.Description("Trailing window"), mcp.Enum("all", "today", "week", "month")),
	mcp.WithBoolean("favorites_only", mcp.Description("Only favorites")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var getToolDef = mcp.NewTool("prompt_get",
	mcp.WithDescription("Fetch one prompt by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var deleteToolDef = mcp.NewTool("prompt_delete",
	mcp.WithDescription("Delete one prompt by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var favoriteToolDef = mcp.NewTool("prompt_favorite",
	mcp.WithDescription("Set or toggle a prompt's favorite flag."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
	mcp.WithBoolean("favorite", mcp.Description("New value; omit to toggle")),
)

var clearToolDef = mcp.NewTool("prompt_clear",
	mcp.WithDescription("Delete all prompts, optionally only one platform's or keeping favorites."),
	mcp.WithString("platform", mcp.Description("Only clear this platform")),
	mcp.WithBoolean("keep_favorites", mcp.Description("Keep favorite prompts")),
)

var statsToolDef = mcp.NewTool("prompt_stats",
	mcp.WithDescription("Counts of saved prompts: total, today, favorites, per platform."),
)

var exportToolDef = mcp.NewTool("prompt_export",
	mcp.WithDescription("Write all prompts to a JSON file."),
	mcp.WithString("path", mcp.Description("Output .json path (default ~/.kayko/exports/kayko-prompts-YYYY-MM-DD.json)")),
)

var importToolDef = mcp.NewTool("prompt_import",
	mcp.WithDescription("Merge prompts from an exported JSON file. Records whose id already exists are skipped; malformed files abort without changes."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Export file to read")),
)

var enhanceToolDef = mcp.NewTool("prompt_enhance",
	mcp.WithDescription("Rewrite a prompt to be clearer and more specific using the configured model. The store is not modified."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Prompt to improve")),
	mcp.WithString("api_key", mcp.Description("API key; defaults to the stored key or the configured environment variable")),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Show the current settings. The API key is masked."),
)

var settingsUpdateToolDef = mcp.NewTool("settings_update",
	mcp.WithDescription("Update settings. Lowering max_prompts trims the oldest prompts."),
	mcp.WithNumber("max_prompts", mcp.Description("Maximum number of stored prompts")),
	mcp.WithBoolean("auto_save_enabled", mcp.Description("Save prompts while typing")),
	mcp.WithBoolean("form_auto_save_enabled", mcp.Description("Save form fields while typing")),
	mcp.WithArray("excluded_sites", mcp.Description("Hosts where nothing is captured"), mcp.Items(map[string]any{"type": "string"})),
	mcp.WithString("openai_api_key", mcp.Description("Enhancement API key; empty string clears it")),
)

var formListToolDef = mcp.NewTool("form_list",
	mcp.WithDescription("List saved form snapshots, most recent first."),
	mcp.WithString("prefix", mcp.Description("Storage key prefix, usually origin+path")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 100, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Page offset")),
)

var formGetToolDef = mcp.NewTool("form_get",
	mcp.WithDescription("Fetch a saved form snapshot by storage key."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Storage key (origin+path#form)")),
)

var formDeleteToolDef = mcp.NewTool("form_delete",
	mcp.WithDescription("Delete a saved form snapshot by storage key."),
	mcp.WithString("key", mcp.Required(), mcp.Description("Storage key (origin+path#form)")),
)
