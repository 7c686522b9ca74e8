package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/prompt"
)

func writeImportFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestImport_MergesNewFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seed(t, st,
		rec("a", "existing one", prompt.PlatformClaude, time.Minute),
		rec("b", "existing two", prompt.PlatformClaude, time.Hour),
	)

	path := writeImportFile(t, `[
  {"id":"x","text":"imported x","platform":"Grok","url":"","timestamp":1,"favorite":true},
  {"id":"a","text":"duplicate id","platform":"Claude","url":"","timestamp":2,"favorite":false},
  {"id":"y","text":"imported y","platform":"Gemini","url":"","timestamp":3,"favorite":false}
]`)

	out, err := Import(ctx, st, unsafeConfig(), ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)
	require.Equal(t, 1, out.Skipped)
	require.Equal(t, 4, out.Total)

	records, err := st.Prompts(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "a", "b"}, ids(records))
	require.Equal(t, "existing one", records[2].Text, "existing record must not be overwritten")
	require.True(t, records[0].Favorite)
}

func TestImport_AppliesCap(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	limit := 2
	_, err := UpdateSettings(ctx, st, UpdateSettingsInput{MaxPrompts: &limit})
	require.NoError(t, err)
	seed(t, st, rec("a", "existing one", prompt.PlatformClaude, time.Minute))

	out, err := Import(ctx, st, unsafeConfig(), ImportInput{Data: []byte(
		`[{"id":"x","text":"one"},{"id":"y","text":"two"}]`,
	)})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)
	require.Equal(t, 2, out.Total)

	records, _ := st.Prompts(ctx)
	require.Equal(t, []string{"x", "y"}, ids(records))
}

func TestImport_ImportedCountExcludesTruncated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	limit := 2
	_, err := UpdateSettings(ctx, st, UpdateSettingsInput{MaxPrompts: &limit})
	require.NoError(t, err)

	out, err := Import(ctx, st, unsafeConfig(), ImportInput{Data: []byte(
		`[{"id":"v","text":"one"},{"id":"w","text":"two"},{"id":"x","text":"three"},{"id":"y","text":"four"},{"id":"z","text":"five"}]`,
	)})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)
	require.Equal(t, 3, out.Skipped)
	require.Equal(t, 2, out.Total)
}

func TestImport_MalformedAbortsWithoutMerge(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"object instead of array", `{"id":"x","text":"one"}`},
		{"invalid json", `[{"id":"x",`},
		{"missing id", `[{"id":"x","text":"one"},{"text":"two"}]`},
		{"missing text", `[{"id":"x","text":"one"},{"id":"y"}]`},
		{"wrong type", `[{"id":"x","text":42}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newTestStore(t)
			ctx := context.Background()
			seed(t, st, rec("a", "existing one", prompt.PlatformClaude, time.Minute))

			_, err := Import(ctx, st, unsafeConfig(), ImportInput{Data: []byte(tt.data)})
			require.True(t, errors.Is(err, errors.ErrMalformedImport), "err = %v", err)

			records, _ := st.Prompts(ctx)
			require.Equal(t, []string{"a"}, ids(records))
		})
	}
}

func TestImport_FileNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := Import(context.Background(), st, unsafeConfig(), ImportInput{
		Path: filepath.Join(t.TempDir(), "missing.json"),
	})
	require.True(t, errors.Is(err, errors.ErrFileNotFound), "err = %v", err)
}

func TestImport_TooLarge(t *testing.T) {
	st := newTestStore(t)
	cfg := unsafeConfig()
	cfg.MaxImportBytes = 16

	path := writeImportFile(t, `[{"id":"x","text":"this is longer than sixteen bytes"}]`)
	_, err := Import(context.Background(), st, cfg, ImportInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrFileTooLarge), "err = %v", err)

	_, err = Import(context.Background(), st, cfg, ImportInput{Data: []byte(`[{"id":"x","text":"this is longer than sixteen bytes"}]`)})
	require.True(t, errors.Is(err, errors.ErrFileTooLarge), "err = %v", err)
}

func TestImport_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()
	fav := rec("b", "second prompt", prompt.PlatformGemini, time.Hour)
	fav.Favorite = true
	seed(t, src, rec("a", "first prompt", prompt.PlatformClaude, time.Minute), fav)

	path := filepath.Join(t.TempDir(), "roundtrip.json")
	_, err := Export(ctx, src, unsafeConfig(), ExportInput{Path: path})
	require.NoError(t, err)

	dst := newTestStore(t)
	out, err := Import(ctx, dst, unsafeConfig(), ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, out.Imported)

	want, _ := src.Prompts(ctx)
	got, _ := dst.Prompts(ctx)
	require.Equal(t, want, got)

	// Importing the same file again adds nothing.
	out, err = Import(ctx, dst, unsafeConfig(), ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 0, out.Imported)
	require.Equal(t, 2, out.Skipped)
}
