package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/db"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/form"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/prompt"
)

type stubEnhancer struct{}

func (stubEnhancer) Name() string { return "stub" }

func (stubEnhancer) Enhance(_ context.Context, text, _ string) (string, error) {
	return strings.ToUpper(text), nil
}

// setupTestDeps creates a temporary database and app dependencies.
func setupTestDeps(t *testing.T) *appDeps {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	d := newAppDeps(database, cfg)
	d.enhancer = stubEnhancer{}
	t.Cleanup(func() {
		d.Close()
		database.Close()
	})
	return d
}

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, d *appDeps, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	err := newCLIApp(d).Run(append([]string{"kayko"}, args...))
	return buf.String(), err
}

func mustRun(t *testing.T, d *appDeps, args ...string) string {
	t.Helper()
	out, err := run(t, d, args...)
	if err != nil {
		t.Fatalf("kayko %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func parse[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	return v
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", []string{}},
		{"single", "mail.google.com", []string{"mail.google.com"}},
		{"spaces trimmed", " a.com , b.com ", []string{"a.com", "b.com"}},
		{"empty items filtered", "a.com,,b.com,", []string{"a.com", "b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.expected, parseList(tt.input)); diff != "" {
				t.Errorf("parseList mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"kayko"}, false},
		{[]string{"kayko", "save"}, true},
		{[]string{"kayko", "serve"}, true},
		{[]string{"kayko", "--version"}, true},
		{[]string{"kayko", "bogus"}, false},
	}
	for _, tt := range tests {
		if got := isCLIMode(tt.args); got != tt.want {
			t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
	if !isHelpOrVersion([]string{"kayko", "help"}) {
		t.Error("help should be treated as help")
	}
}

func TestSettingsDefaults(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DefaultMaxPrompts = 250
	cfg.AutoSaveEnabled = true
	cfg.DisableFormAutoSave = true
	cfg.ExcludedSites = []string{"bank.test"}

	got := settingsDefaults(cfg)
	want := prompt.Settings{
		MaxPrompts:          250,
		AutoSaveEnabled:     true,
		FormAutoSaveEnabled: false,
		ExcludedSites:       []string{"bank.test"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settingsDefaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoggerOptions(t *testing.T) {
	t.Setenv("KAYKO_LOG_LEVEL", "")
	t.Setenv("KAYKO_LOG_FORMAT", "")
	t.Setenv("KAYKO_LOG_FILE", "")

	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	cfg.LogFile = "/tmp/kayko.log"

	opt := loggerOptions(cfg)
	if opt.Level != "debug" || opt.Format != "json" || opt.File != "/tmp/kayko.log" {
		t.Errorf("opt = %+v", opt)
	}

	t.Setenv("KAYKO_LOG_LEVEL", "warn")
	if opt := loggerOptions(cfg); opt.Level != "warn" {
		t.Errorf("env level should win, got %q", opt.Level)
	}
}

func TestCLISave(t *testing.T) {
	d := setupTestDeps(t)

	out := mustRun(t, d, "save", "--url=https://chatgpt.com/c/1", "Explain", "context", "cancellation")
	output := parse[ops.SaveOutput](t, out)
	if !output.Saved || output.Outcome != "created" {
		t.Fatalf("output = %+v", output)
	}
	if output.Record.Text != "Explain context cancellation" {
		t.Errorf("Text = %q", output.Record.Text)
	}
	if output.Record.Platform != prompt.PlatformChatGPT {
		t.Errorf("Platform = %q", output.Record.Platform)
	}

	out = mustRun(t, d, "save", "--url=https://chatgpt.com/c/1", "Explain", "context", "cancellation")
	if output := parse[ops.SaveOutput](t, out); output.Outcome != "rejected_duplicate" {
		t.Errorf("Outcome = %q, want rejected_duplicate", output.Outcome)
	}

	out = mustRun(t, d, "save", "hi")
	if output := parse[ops.SaveOutput](t, out); output.Saved || output.Outcome != "rejected_short" {
		t.Errorf("output = %+v, want rejected_short", output)
	}
}

func TestCLISave_Stdin(t *testing.T) {
	d := setupTestDeps(t)

	oldStdin := os.Stdin
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdin = stdinR
	defer func() { os.Stdin = oldStdin }()

	go func() {
		_, _ = stdinW.WriteString("Line one\nLine two\n")
		stdinW.Close()
	}()

	out := mustRun(t, d, "save", "--platform=Claude")
	output := parse[ops.SaveOutput](t, out)
	if output.Record.Text != "Line one\nLine two" {
		t.Errorf("Text = %q", output.Record.Text)
	}
	if output.Record.Platform != "Claude" {
		t.Errorf("Platform = %q", output.Record.Platform)
	}
}

func TestCLIListGetDelete(t *testing.T) {
	d := setupTestDeps(t)
	mustRun(t, d, "save", "--url=https://chatgpt.com/", "first prompt about caching")
	mustRun(t, d, "save", "--url=https://claude.ai/", "second prompt about queues")

	list := parse[ops.ListOutput](t, mustRun(t, d, "list"))
	if list.Pagination.Total != 2 {
		t.Fatalf("total = %d, want 2", list.Pagination.Total)
	}
	newest := list.Items[0]
	if newest.Text != "second prompt about queues" {
		t.Errorf("newest = %q", newest.Text)
	}

	filtered := parse[ops.ListOutput](t, mustRun(t, d, "list", "--platform=ChatGPT"))
	if len(filtered.Items) != 1 {
		t.Errorf("filtered items = %d, want 1", len(filtered.Items))
	}

	got := parse[ops.FetchOutput](t, mustRun(t, d, "get", newest.ID))
	if got.ID != newest.ID || got.Position != 0 {
		t.Errorf("get = %+v", got)
	}

	del := parse[ops.DeleteOutput](t, mustRun(t, d, "delete", newest.ID))
	if !del.Deleted {
		t.Error("expected deleted=true")
	}

	if _, err := run(t, d, "get", newest.ID); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("get after delete err = %v, want NOT_FOUND", err)
	}
}

func TestCLIFavoriteAndClear(t *testing.T) {
	d := setupTestDeps(t)
	saved := parse[ops.SaveOutput](t, mustRun(t, d, "save", "--url=https://claude.ai/", "keep this one around"))
	mustRun(t, d, "save", "--url=https://claude.ai/", "throwaway prompt text")

	fav := parse[ops.FavoriteOutput](t, mustRun(t, d, "favorite", saved.Record.ID))
	if !fav.Favorite {
		t.Error("favorite should toggle on")
	}
	fav = parse[ops.FavoriteOutput](t, mustRun(t, d, "favorite", "--on", saved.Record.ID))
	if !fav.Favorite {
		t.Error("--on should keep favorite set")
	}
	if _, err := run(t, d, "favorite", "--on", "--off", saved.Record.ID); err == nil {
		t.Error("--on with --off should fail")
	}

	if _, err := run(t, d, "clear"); err == nil || !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("clear without confirm err = %v", err)
	}

	cleared := parse[ops.ClearOutput](t, mustRun(t, d, "clear", "--confirm", "--keep-favorites"))
	if cleared.Deleted != 1 || cleared.Remaining != 1 {
		t.Errorf("cleared = %+v", cleared)
	}

	stats := parse[ops.StatsOutput](t, mustRun(t, d, "stats"))
	if stats.Total != 1 || stats.Favorites != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCLIExportImport(t *testing.T) {
	src := setupTestDeps(t)
	mustRun(t, src, "save", "--url=https://chatgpt.com/", "exported prompt one")
	mustRun(t, src, "save", "--url=https://claude.ai/", "exported prompt two")

	path := filepath.Join(t.TempDir(), "prompts.json")
	exp := parse[ops.ExportOutput](t, mustRun(t, src, "export", "--path="+path))
	if exp.Count != 2 {
		t.Fatalf("export count = %d, want 2", exp.Count)
	}

	dst := setupTestDeps(t)
	imp := parse[ops.ImportOutput](t, mustRun(t, dst, "import", "--path="+path))
	if imp.Imported != 2 || imp.Total != 2 {
		t.Errorf("import = %+v", imp)
	}

	// Importing again skips every record.
	imp = parse[ops.ImportOutput](t, mustRun(t, dst, "import", "--path="+path))
	if imp.Imported != 0 || imp.Skipped != 2 {
		t.Errorf("re-import = %+v", imp)
	}
}

func TestCLIImport_Malformed(t *testing.T) {
	d := setupTestDeps(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"not":"an array"}`), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, d, "import", "--path="+path)
	if err == nil || !strings.Contains(err.Error(), "MALFORMED_IMPORT") {
		t.Errorf("err = %v, want MALFORMED_IMPORT", err)
	}
}

func TestCLISettings(t *testing.T) {
	d := setupTestDeps(t)

	got := parse[ops.SettingsOutput](t, mustRun(t, d, "settings"))
	if got.MaxPrompts != prompt.DefaultMaxPrompts || got.AutoSaveEnabled {
		t.Errorf("defaults = %+v", got)
	}

	out := mustRun(t, d, "settings", "--max-prompts=10", "--auto-save", "--excluded-sites=bank.test, mail.google.com", "--api-key=sk-123")
	if strings.Contains(out, "sk-123") {
		t.Error("API key should be redacted in output")
	}
	got = parse[ops.SettingsOutput](t, out)
	if got.MaxPrompts != 10 || !got.AutoSaveEnabled || !got.HasAPIKey {
		t.Errorf("updated = %+v", got)
	}
	if diff := cmp.Diff([]string{"bank.test", "mail.google.com"}, got.ExcludedSites); diff != "" {
		t.Errorf("excluded sites mismatch (-want +got):\n%s", diff)
	}

	if _, err := run(t, d, "settings", "--max-prompts=-1"); err == nil {
		t.Error("negative max-prompts should fail")
	}
}

func TestCLIEnhance(t *testing.T) {
	d := setupTestDeps(t)

	out := parse[ops.EnhanceOutput](t, mustRun(t, d, "enhance", "make", "it", "better"))
	if out.Enhanced != "MAKE IT BETTER" || out.Provider != "stub" {
		t.Errorf("out = %+v", out)
	}

	d.enhancer = nil
	if _, err := run(t, d, "enhance", "make it better"); err == nil {
		t.Error("enhance without a provider should fail")
	}
}

func TestCLIForms(t *testing.T) {
	d := setupTestDeps(t)
	saved, err := ops.FormSave(context.Background(), d.st, ops.FormSaveInput{Form: form.Descriptor{
		PageURL: "https://shop.test/checkout",
		Name:    "shipping",
		Fields: []form.FieldInput{
			{Tag: "input", Type: "text", Name: "city", Value: "Lisbon"},
		},
	}})
	if err != nil {
		t.Fatalf("FormSave: %v", err)
	}

	list := parse[ops.FormListOutput](t, mustRun(t, d, "forms", "list"))
	if len(list.Items) != 1 || list.Items[0].Key != saved.Key {
		t.Fatalf("list = %+v", list)
	}

	got := parse[ops.FormGetOutput](t, mustRun(t, d, "forms", "get", saved.Key))
	if got.Fields["city"].Value.Value != "Lisbon" {
		t.Errorf("fields = %+v", got.Fields)
	}

	mustRun(t, d, "forms", "delete", saved.Key)
	if _, err := run(t, d, "forms", "get", saved.Key); err == nil {
		t.Error("get after delete should fail")
	}
}

func TestCLIWatch_RequiresPath(t *testing.T) {
	d := setupTestDeps(t)

	if _, err := run(t, d, "watch"); err == nil || !strings.Contains(err.Error(), "path is required") {
		t.Errorf("err = %v", err)
	}
}

func TestKeyChangesPublished(t *testing.T) {
	d := setupTestDeps(t)
	ch := d.bus.Subscribe("test")
	defer d.bus.Unsubscribe("test")

	mustRun(t, d, "save", "--url=https://chatgpt.com/", "publish a change event")

	select {
	case ev := <-ch:
		if ev.Type != events.TypeKeysChanged {
			t.Fatalf("Type = %q, want %q", ev.Type, events.TypeKeysChanged)
		}
		keys := ev.Data.(events.KeysChanged).Keys
		if diff := cmp.Diff([]string{prompt.KeyPrompts}, keys); diff != "" {
			t.Errorf("keys mismatch (-want +got):\n%s", diff)
		}
	default:
		t.Fatal("expected a keys_changed event")
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	ch := make(chan events.Event, 3)
	ch <- events.Event{Type: events.TypeSaved, Data: events.Saved{ID: "a"}}
	ch <- events.Event{Type: events.TypeKeysChanged}
	ch <- events.Event{Type: events.TypeNotice, Data: events.Notice{Message: "down"}}
	done := make(chan struct{})
	close(done)

	printEvents(done, ch, events.TypeSaved, events.TypeNotice)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines, want 2:\n%s", len(lines), buf.String())
	}
}
