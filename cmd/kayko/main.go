package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/db"
	"github.com/hpungsan/kayko/internal/enhance"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/mcp"
	"github.com/hpungsan/kayko/internal/prompt"
	"github.com/hpungsan/kayko/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"save": true, "list": true, "get": true, "delete": true,
	"favorite": true, "clear": true, "stats": true,
	"export": true, "import": true, "settings": true,
	"enhance": true, "forms": true, "watch": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _  __           _
  | |/ /__ _ _   _| | _____
  | ' // _' | | | | |/ / _ \
  | . \ (_| | |_| |   < (_) |
  |_|\_\__,_|\__, |_|\_\___/
             |___/

  Prompt capture and history

  Usage: kayko <command> [options]
         kayko --help

  MCP server mode requires piped input.`)
}

// appDeps are the collaborators shared by every command.
type appDeps struct {
	cfg      *config.Config
	st       *store.Store
	bus      *events.Bus
	enhancer enhance.Enhancer
}

// newAppDeps wires the store over database. Storage key changes are
// published on the bus for the web event stream.
func newAppDeps(database *sql.DB, cfg *config.Config) *appDeps {
	kv := db.NewKV(database)
	bus := events.NewBus()
	kv.OnChange(func(keys []string) {
		bus.Publish(events.TypeKeysChanged, events.KeysChanged{Keys: keys})
	})

	e, err := enhance.New(cfg)
	if err != nil {
		logger.Named("main").Warn().Err(err).Msg("prompt enhancement disabled")
		e = nil
	}

	return &appDeps{
		cfg:      cfg,
		st:       store.New(kv, store.WithDefaults(settingsDefaults(cfg))),
		bus:      bus,
		enhancer: e,
	}
}

// Close stops the store's writer.
func (d *appDeps) Close() {
	d.st.Close()
}

// settingsDefaults derives the settings used before any are stored.
func settingsDefaults(cfg *config.Config) prompt.Settings {
	s := prompt.DefaultSettings()
	if cfg.DefaultMaxPrompts > 0 {
		s.MaxPrompts = min(cfg.DefaultMaxPrompts, prompt.MaxPromptsLimit)
	}
	s.AutoSaveEnabled = cfg.AutoSaveEnabled
	s.FormAutoSaveEnabled = !cfg.DisableFormAutoSave
	if len(cfg.ExcludedSites) > 0 {
		s.ExcludedSites = append([]string(nil), cfg.ExcludedSites...)
	}
	return s
}

// loggerOptions takes the log settings from cfg unless the matching
// KAYKO_LOG_* variable is set.
func loggerOptions(cfg *config.Config) logger.Options {
	opt := logger.FromEnv()
	if os.Getenv("KAYKO_LOG_LEVEL") == "" && cfg.LogLevel != "" {
		opt.Level = cfg.LogLevel
	}
	if os.Getenv("KAYKO_LOG_FORMAT") == "" && cfg.LogFormat != "" {
		opt.Format = cfg.LogFormat
	}
	if opt.File == "" {
		opt.File = cfg.LogFile
	}
	return opt
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".kayko")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	logger.Init(loggerOptions(cfg))

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	deps := newAppDeps(database, cfg)
	defer deps.Close()

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			deps.Close()
			database.Close()
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'kayko --help' for usage.\n")
		deps.Close()
		database.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(deps.st, cfg, deps.enhancer, Version); err != nil {
		deps.Close()
		database.Close()
		fatal("%v", err)
	}
}
