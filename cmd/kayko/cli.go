package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/kayko/internal/capture"
	"github.com/hpungsan/kayko/internal/errors"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/ops"
	"github.com/hpungsan/kayko/internal/surface"
	"github.com/hpungsan/kayko/internal/web"
)

// stdout is where command results are written. Tests swap it.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands. d is nil when
// only help or version output is needed.
func newCLIApp(d *appDeps) *cli.App {
	app := &cli.App{
		Name:    "kayko",
		Usage:   "Prompt capture and history",
		Version: Version,
		Commands: []*cli.Command{
			saveCmd(d),
			listCmd(d),
			getCmd(d),
			deleteCmd(d),
			favoriteCmd(d),
			clearCmd(d),
			statsCmd(d),
			exportCmd(d),
			importCmd(d),
			settingsCmd(d),
			enhanceCmd(d),
			formsCmd(d),
			watchCmd(d),
			serveCmd(d),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// saveCmd creates the save command.
func saveCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a prompt (text from arguments or stdin)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Platform tag (detected from --url when empty)"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Page URL the prompt was written on"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Treat as an explicit commit (Enter)"},
		},
		Action: func(c *cli.Context) error {
			text, err := textInput(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Save(c.Context, d.st, ops.SaveInput{
				Text:      text,
				Platform:  c.String("platform"),
				URL:       c.String("url"),
				ForceSave: c.Bool("force"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved prompts, most recent first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search text or platform (case-insensitive)"},
			&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Filter by platform"},
			&cli.StringFlag{Name: "date", Aliases: []string{"d"}, Value: "all", Usage: "Date window: all|today|week|month"},
			&cli.BoolFlag{Name: "favorites", Usage: "Only favorites"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, d.st, ops.ListInput{
				Query:         c.String("query"),
				Platform:      c.String("platform"),
				Date:          ops.DateRange(c.String("date")),
				FavoritesOnly: c.Bool("favorites"),
				Limit:         c.Int("limit"),
				Offset:        c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// getCmd creates the get command.
func getCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a prompt by ID",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Fetch(c.Context, d.st, ops.FetchInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a prompt",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, d.st, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// favoriteCmd creates the favorite command.
func favoriteCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "favorite",
		Usage:     "Toggle a prompt's favorite flag",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "on", Usage: "Set the flag instead of toggling"},
			&cli.BoolFlag{Name: "off", Usage: "Clear the flag instead of toggling"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FavoriteInput{ID: c.Args().First()}

			on, off := c.Bool("on"), c.Bool("off")
			switch {
			case on && off:
				return outputError(errors.NewInvalidRequest("--on and --off are mutually exclusive"))
			case on:
				input.Favorite = &on
			case off:
				v := false
				input.Favorite = &v
			}

			output, err := ops.ToggleFavorite(c.Context, d.st, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete prompts in bulk",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "confirm", Usage: "Required; confirms the deletion"},
			&cli.StringFlag{Name: "platform", Aliases: []string{"p"}, Usage: "Only clear this platform"},
			&cli.BoolFlag{Name: "keep-favorites", Usage: "Keep favorite prompts"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("confirm") {
				return outputError(errors.NewInvalidRequest("--confirm is required"))
			}

			output, err := ops.Clear(c.Context, d.st, ops.ClearInput{
				Platform:      c.String("platform"),
				KeepFavorites: c.Bool("keep-favorites"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show prompt counts",
		Action: func(c *cli.Context) error {
			output, err := ops.Stats(c.Context, d.st, ops.StatsInput{})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export prompts to a JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.kayko/exports/kayko-prompts-<date>.json)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, d.st, d.cfg, ops.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Merge prompts from an exported JSON file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, d.st, d.cfg, ops.ImportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// settingsCmd creates the settings command. Without flags it prints the
// current settings.
func settingsCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or update settings",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-prompts", Usage: "Retention cap; lowering it trims the oldest prompts"},
			&cli.BoolFlag{Name: "auto-save", Usage: "Enable debounced prompt auto-save"},
			&cli.BoolFlag{Name: "form-auto-save", Usage: "Enable form field auto-save"},
			&cli.StringFlag{Name: "excluded-sites", Usage: "Comma-separated hosts where nothing is captured"},
			&cli.StringFlag{Name: "api-key", Usage: "OpenAI API key for enhancement (empty clears)"},
		},
		Action: func(c *cli.Context) error {
			var input ops.UpdateSettingsInput
			changed := false
			if c.IsSet("max-prompts") {
				v := c.Int("max-prompts")
				input.MaxPrompts = &v
				changed = true
			}
			if c.IsSet("auto-save") {
				v := c.Bool("auto-save")
				input.AutoSaveEnabled = &v
				changed = true
			}
			if c.IsSet("form-auto-save") {
				v := c.Bool("form-auto-save")
				input.FormAutoSaveEnabled = &v
				changed = true
			}
			if c.IsSet("excluded-sites") {
				v := parseList(c.String("excluded-sites"))
				input.ExcludedSites = &v
				changed = true
			}
			if c.IsSet("api-key") {
				v := c.String("api-key")
				input.OpenAIAPIKey = &v
				changed = true
			}

			var (
				output *ops.SettingsOutput
				err    error
			)
			if changed {
				output, err = ops.UpdateSettings(c.Context, d.st, input)
			} else {
				output, err = ops.GetSettings(c.Context, d.st)
			}
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// enhanceCmd creates the enhance command.
func enhanceCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "enhance",
		Usage:     "Rewrite a prompt with the configured provider (text from arguments or stdin)",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", Usage: "API key (default: settings, then the configured env var)"},
		},
		Action: func(c *cli.Context) error {
			text, err := textInput(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Enhance(c.Context, d.st, d.cfg, d.enhancer, ops.EnhanceInput{
				Text:   text,
				APIKey: c.String("api-key"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// formsCmd creates the forms command group.
func formsCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "forms",
		Usage: "Inspect saved form snapshots",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved forms",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix", Usage: "Only keys starting with this origin+path"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultFormLimit, Usage: "Maximum items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.FormList(c.Context, d.st, ops.FormListInput{
						Prefix: c.String("prefix"),
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "get",
				Usage:     "Show a saved form",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					output, err := ops.FormGet(c.Context, d.st, ops.FormKeyInput{Key: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a saved form",
				ArgsUsage: "<key>",
				Action: func(c *cli.Context) error {
					output, err := ops.FormDelete(c.Context, d.st, ops.FormKeyInput{Key: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// watchCmd creates the watch command: a draft file treated as a prompt
// input. Saves are printed as JSON lines.
func watchCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Capture a draft file as you edit it",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Page URL used for platform detection"},
			&cli.BoolFlag{Name: "commit-on-exit", Value: true, Usage: "Commit the draft (as Enter) when interrupted"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(errors.NewInvalidRequest("path is required"))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := capture.New(d.st, d.bus, capture.WithConfig(d.cfg))
			defer ctrl.Close()

			opts := []surface.FileOption{surface.WithURL(c.String("url"))}
			if c.Bool("commit-on-exit") {
				opts = append(opts, surface.WithCommitOnClose())
			}
			file, err := surface.NewFile(ctrl, path, opts...)
			if err != nil {
				return outputError(err)
			}

			sub := "watch-" + file.ID()
			ch := d.bus.Subscribe(sub)
			defer d.bus.Unsubscribe(sub)

			// The printer outlives Run so the commit-on-exit save is shown.
			runDone := make(chan struct{})
			var g errgroup.Group
			g.Go(func() error {
				defer close(runDone)
				return file.Run(ctx)
			})
			g.Go(func() error {
				printEvents(runDone, ch, events.TypeSaved, events.TypeNotice)
				return nil
			})
			if err := g.Wait(); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command: the HTTP companion with surface
// intake and the event stream.
func serveCmd(d *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP companion service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			bind := d.cfg.ServerBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := d.cfg.ServerPort
			if c.IsSet("port") {
				port = c.Int("port")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := capture.New(d.st, d.bus, capture.WithConfig(d.cfg))
			defer ctrl.Close()

			srv, err := web.NewServer(web.Deps{
				Store:    d.st,
				Config:   d.cfg,
				Bus:      d.bus,
				Hub:      surface.NewHub(ctrl),
				Enhancer: d.enhancer,
			}, Version, bind, port)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			log := logger.Named("serve")
			ch := d.bus.Subscribe("serve-log")
			defer d.bus.Unsubscribe("serve-log")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Run(gctx, srv)
			})
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case ev, ok := <-ch:
						if !ok {
							return nil
						}
						log.Debug().Str("event", ev.Type).Interface("data", ev.Data).Msg("event")
					}
				}
			})
			if err := g.Wait(); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// printEvents writes events of the given types to stdout until done is
// closed, then drains what is already buffered.
func printEvents(done <-chan struct{}, ch <-chan events.Event, types ...string) {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	enc := json.NewEncoder(stdout)
	write := func(ev events.Event) {
		if want[ev.Type] {
			_ = enc.Encode(ev)
		}
	}
	for {
		select {
		case <-done:
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			write(ev)
		}
	}
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if kErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", kErr.Code, kErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// textInput joins the positional arguments, or reads piped stdin when there
// are none.
func textInput(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be given as arguments or piped via stdin")
	}
	text, err := readStdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.NewInvalidRequest("text is required")
	}
	return text, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin. Only the trailing newline is
// removed; prompt text is otherwise kept as typed.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// parseList splits a comma-separated string into trimmed, non-empty items.
func parseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			items = append(items, t)
		}
	}
	return items
}
