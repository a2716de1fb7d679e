package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/lexstat/internal/api"
	"github.com/mattjoyce/lexstat/internal/auth"
	"github.com/mattjoyce/lexstat/internal/batch"
	"github.com/mattjoyce/lexstat/internal/config"
	"github.com/mattjoyce/lexstat/internal/doctor"
	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/lock"
	"github.com/mattjoyce/lexstat/internal/log"
	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
	"github.com/mattjoyce/lexstat/internal/storage"
	"github.com/mattjoyce/lexstat/internal/textsource"
	"github.com/mattjoyce/lexstat/internal/tui"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "batch":
		os.Exit(runBatchNoun(args))

	// --- ROOT ALIASES ---
	case "run":
		os.Exit(runBatchRun(args))
	case "serve":
		os.Exit(runServe(args))
	case "watch":
		os.Exit(runWatch(args))
	case "version":
		fmt.Printf("lexstat version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`lexstat - Folder text statistics batch service

Usage:
  lexstat <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle and monitoring
  config    Configuration and integrity
  batch     Batch runs and recorded results

System Commands:
  system serve      Run the service in foreground (scheduler + API)
  system watch      Live terminal dashboard over the running service

Config Commands:
  config check      Validate configuration and report issues
  config show       Print the resolved configuration
  config lock       Authorize current config (update integrity hashes)

Batch Commands:
  batch run         Run one batch against the configured folders
  batch list        Show recent batch runs
  batch show <id>   Show one run with its recorded results

General:
  version           Show version information
  help              Show this help message

Use 'lexstat <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "serve":
		if hasHelpFlag(actionArgs) {
			printServeHelp()
			return 0
		}
		return runServe(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runBatchNoun(args []string) int {
	if len(args) < 1 {
		printBatchNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printBatchNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "run":
		if hasHelpFlag(actionArgs) {
			printBatchRunHelp()
			return 0
		}
		return runBatchRun(actionArgs)
	case "list":
		if hasHelpFlag(actionArgs) {
			printBatchListHelp()
			return 0
		}
		return runBatchList(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printBatchShowHelp()
			return 0
		}
		return runBatchShow(actionArgs)
	case "help":
		printBatchNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown batch action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lexstat system <action>")
	fmt.Fprintln(w, "Actions: serve, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lexstat config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show, lock")
}

func printBatchNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: lexstat batch <action> [flags]")
	fmt.Fprintln(w, "Actions: run, list, show")
}

func printServeHelp() {
	fmt.Println("Usage: lexstat system serve [--config PATH]")
	fmt.Println("Run the service in the foreground: scheduled batches plus the HTTP API when enabled.")
}

func printWatchHelp() {
	fmt.Println("Usage: lexstat system watch [--url URL] [--key KEY]")
	fmt.Println("Open a live dashboard against a running lexstat API.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: lexstat config check [--config PATH] [--json] [--strict]")
	fmt.Println("Validate configuration syntax, sources, commands, and API auth.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: lexstat config show [--config PATH] [--json]")
	fmt.Println("Print the fully resolved configuration.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: lexstat config lock [--config PATH]")
	fmt.Println("Authorize the current configuration by regenerating integrity hashes.")
}

func printBatchRunHelp() {
	fmt.Println("Usage: lexstat batch run [--config PATH] [--folders a,b] [--commands count,average] [--json]")
	fmt.Println("Run one batch and print the recorded results.")
}

func printBatchListHelp() {
	fmt.Println("Usage: lexstat batch list [--config PATH] [--limit N]")
	fmt.Println("Show recent batch runs from the state database.")
}

func printBatchShowHelp() {
	fmt.Println("Usage: lexstat batch show <run_id> [--config PATH] [--json]")
	fmt.Println("Show a run's metadata and its recorded result lines.")
}

// --- SHARED WIRING ---

func loadConfigOrDiscover(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func newTextSource(cfg *config.Config) (batch.TextSource, error) {
	switch cfg.Sources.Mode {
	case config.SourceModeFS:
		return textsource.NewFS(cfg.Sources.BaseDir)
	default:
		return textsource.NewStub(), nil
	}
}

// --- ACTION IMPLEMENTATIONS ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDiscover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("lexstat starting", "version", version)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	source, err := newTextSource(cfg)
	if err != nil {
		logger.Error("failed to initialize text source", "mode", cfg.Sources.Mode, "error", err)
		return 1
	}

	store := sink.NewStore(db)
	hub := events.NewHub(256)
	runner := batch.NewRunner(store, hub, source, stats.NewBuiltinExecutor())

	commands, err := stats.ParseCommandTypes(cfg.Commands)
	if err != nil {
		logger.Error("invalid commands in config", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)
	started := 0

	if cfg.Service.Schedule != nil {
		interval, err := batch.ParseEvery(cfg.Service.Schedule.Every)
		if err != nil {
			logger.Error("invalid schedule", "every", cfg.Service.Schedule.Every, "error", err)
			return 1
		}
		loop, err := batch.NewLoop(runner, cfg.Sources.Folders, commands, interval, cfg.Service.Schedule.Jitter)
		if err != nil {
			logger.Error("failed to build batch loop", "error", err)
			return 1
		}
		go func() {
			if err := loop.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("loop: %w", err)
			}
		}()
		started++
		logger.Info("batch loop enabled", "interval", interval, "jitter", cfg.Service.Schedule.Jitter)
	}

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}
		apiConfig := api.Config{
			Listen:          cfg.API.Listen,
			APIKey:          cfg.API.Auth.APIKey,
			Tokens:          tokens,
			DefaultFolders:  cfg.Sources.Folders,
			DefaultCommands: commands,
		}
		apiServer := api.New(apiConfig, runner, store, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		started++
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if started == 0 {
		logger.Error("nothing to serve: configure service.schedule and/or api.enabled")
		return 1
	}

	logger.Info("lexstat running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("lexstat stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("url", "http://127.0.0.1:8080", "Base URL of the running lexstat API")
	apiKey := fs.String("key", "", "Bearer token for the API")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		*apiKey = os.Getenv("LEXSTAT_API_KEY")
	}

	p := tea.NewProgram(tui.NewWatch(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runBatchRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	foldersFlag := fs.String("folders", "", "Comma-separated folders (overrides config)")
	commandsFlag := fs.String("commands", "", "Comma-separated commands (overrides config)")
	jsonOut := fs.Bool("json", false, "Output results in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDiscover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)

	folders := cfg.Sources.Folders
	if *foldersFlag != "" {
		folders = splitCSV(*foldersFlag)
	}

	commandNames := cfg.Commands
	if *commandsFlag != "" {
		commandNames = splitCSV(*commandsFlag)
	}
	commands, err := stats.ParseCommandTypes(commandNames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid commands: %v\n", err)
		return 1
	}

	source, err := newTextSource(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize text source: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	store := sink.NewStore(db)
	runner := batch.NewRunner(store, nil, source, stats.NewBuiltinExecutor())

	runID, runErr := runner.Run(ctx, folders, commands, "cli")
	if runErr != nil && runID == "" {
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", runErr)
		return 1
	}

	if code := printRun(ctx, store, runID, *jsonOut); code != 0 {
		return code
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Batch failed: %v\n", runErr)
		return 1
	}
	return 0
}

func runBatchList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDiscover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	runs, err := sink.NewStore(db).RecentRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
		return 1
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return 0
	}

	for _, run := range runs {
		fmt.Printf("%s  %-9s  %s  folders=%s commands=%s by=%s\n",
			run.ID,
			run.Status,
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			strings.Join(run.Folders, ","),
			strings.Join(run.Commands, ","),
			run.SubmittedBy,
		)
	}
	return 0
}

func runBatchShow(args []string) int {
	// Custom flag parsing so flags work after the run ID,
	// like 'lexstat batch show <id> --json'.
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	var runID string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && runID == "" {
			runID = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}

	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if runID == "" {
		fmt.Fprintf(os.Stderr, "Usage: lexstat batch show <run_id> [--config PATH] [--json]\n")
		return 1
	}

	cfg, err := loadConfigOrDiscover(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	return printRun(ctx, sink.NewStore(db), runID, jsonOut)
}

func printRun(ctx context.Context, store *sink.Store, runID string, jsonOut bool) int {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get run: %v\n", err)
		return 1
	}
	results, err := store.ResultsByRun(ctx, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get run results: %v\n", err)
		return 1
	}

	if jsonOut {
		out := struct {
			Run     *sink.Run      `json:"run"`
			Results []*sink.Result `json:"results"`
		}{run, results}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("Run %s  %s  by=%s\n", run.ID, run.Status, run.SubmittedBy)
	if run.LastError != nil {
		fmt.Printf("  error: %s\n", *run.LastError)
	}

	var lastFolder, lastCommand string
	for _, res := range results {
		if res.Folder != lastFolder {
			fmt.Printf("\nfolder %s\n", res.Folder)
			lastFolder = res.Folder
			lastCommand = ""
		}
		if res.Command != lastCommand {
			fmt.Printf("  %s\n", res.Command)
			lastCommand = res.Command
		}
		fmt.Printf("    %s\n", res.Result)
	}
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDiscover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if *strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigOrDiscover(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(cfg)
		fmt.Print(string(data))
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resolved := *configPath
	if resolved == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		resolved = discovered
	}
	if info, err := os.Stat(resolved); err == nil && info.IsDir() {
		resolved = filepath.Join(resolved, "config.yaml")
	}

	if err := config.GenerateChecksums(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	fmt.Printf("WROTE .checksums: %s\n", filepath.Join(filepath.Dir(resolved), ".checksums"))
	fmt.Println("Successfully locked configuration.")
	return 0
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getPIDLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	return filepath.Join(dbDir, dbBase[:len(dbBase)-len(ext)]+".pid")
}
