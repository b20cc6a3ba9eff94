package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/runlet/internal/api"
	"github.com/mattjoyce/runlet/internal/config"
	"github.com/mattjoyce/runlet/internal/doctor"
	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/language"
	"github.com/mattjoyce/runlet/internal/lock"
	"github.com/mattjoyce/runlet/internal/log"
	"github.com/mattjoyce/runlet/internal/plugin"
	"github.com/mattjoyce/runlet/internal/registry"
	"github.com/mattjoyce/runlet/internal/storage"
	"github.com/mattjoyce/runlet/internal/tui"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(cliArgs []string, stdout, stderr io.Writer) int {
	if len(cliArgs) < 1 {
		printUsage(stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "run":
		return runRun(args, stdout, stderr)
	case "serve":
		return runServe(args, stderr)
	case "languages":
		return runLanguages(args, stdout, stderr)
	case "doctor":
		return runDoctor(args, stdout, stderr)
	case "reload":
		return runReload(args, stdout, stderr)
	case "watch":
		return runWatch(args, stderr)
	case "config":
		return runConfigNoun(args, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "runlet %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", cmd)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `runlet - pluggable code snippet execution service

Usage:
  runlet <command> [flags]

Commands:
  run        Execute a snippet from a file or stdin
  serve      Start the HTTP execution service in foreground
  languages  List available languages
  doctor     Validate configuration and toolchain availability
  reload     Ask a running service to rescan its plugin directory
  watch      Real-time monitoring TUI for a running service
  config     Configuration integrity commands
  version    Print version

Config Commands:
  config lock   Authorize current config (update integrity hashes)

General:
  Most commands accept --config <path> (default ./config.yaml).

Examples:
  echo 'print(1+1)' | runlet run --language python
  runlet run --language c hello.c
  runlet serve --config /etc/runlet/config.yaml
`)
}

// loadConfig loads the config file, tolerating a missing file by falling
// back to defaults when the path was not given explicitly.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if !explicit {
		if _, err := os.Stat(path); err != nil {
			return config.Defaults(), nil
		}
	}
	return config.Load(path)
}

// buildRegistry assembles the executor registry: builtins first, then the
// plugin watcher so a plugin that shadows a builtin name wins.
func buildRegistry(cfg *config.Config) *registry.Registry {
	watcher := plugin.NewWatcher(cfg.Plugins.Dir,
		plugin.WithTimeout(cfg.Service.Timeout),
		plugin.WithLogger(log.WithComponent("plugin")),
	)

	reg := registry.New(
		registry.WithSource(watcher.Discover),
		registry.WithTickThrottle(cfg.Service.TickThrottle),
		registry.WithLogger(log.WithComponent("registry")),
	)
	language.RegisterBuiltins(reg, cfg.Service.Timeout, cfg.Builtins.Disabled)
	reg.Reload(context.Background())
	return reg
}

func runRun(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	lang := fs.String("language", "", "Language to execute the snippet as")
	timeout := fs.Duration("timeout", 0, "Per-stage timeout override")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *lang == "" {
		fmt.Fprintln(stderr, "Usage: runlet run --language <name> [file]")
		return 1
	}

	explicit := flagWasSet(fs, "config")
	cfg, err := loadConfig(*configPath, explicit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *timeout > 0 {
		cfg.Service.Timeout = *timeout
	}
	log.Setup(cfg.Service.LogLevel)

	var source []byte
	switch fs.NArg() {
	case 0:
		source, err = io.ReadAll(os.Stdin)
	case 1:
		source, err = os.ReadFile(fs.Arg(0))
	default:
		fmt.Fprintln(stderr, "Usage: runlet run --language <name> [file]")
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read source: %v\n", err)
		return 1
	}

	reg := buildRegistry(cfg)
	outcome := reg.Execute(context.Background(), string(source), *lang)

	fmt.Fprint(stdout, outcome.Output)
	if !strings.HasSuffix(outcome.Output, "\n") {
		fmt.Fprintln(stdout)
	}
	if !outcome.OK {
		fmt.Fprintf(stderr, "execution failed: %s\n", outcome.Kind)
		return 1
	}
	return 0
}

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath, flagWasSet(fs, "config"))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("runlet starting", "version", version, "config", *configPath)

	pidLockPath := pidLockPath(cfg)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var recorder api.Recorder
	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			logger.Error("failed to open history database", "path", cfg.History.Path, "error", err)
			return 1
		}
		defer db.Close()
		recorder = history.New(db)
		logger.Info("history database opened", "path", cfg.History.Path)
	}

	reg := buildRegistry(cfg)
	logger.Info("registry ready", "languages", reg.Languages())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	// Background plugin scan loop. Tick throttling keeps the actual
	// filesystem walks down to one per throttle window.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reg.Tick(ctx)
			}
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, reg, recorder, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("runlet running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("runlet stopped")
	return 0
}

func runLanguages(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("languages", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath, flagWasSet(fs, "config"))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	reg := buildRegistry(cfg)
	langs := reg.Languages()

	if *jsonOut {
		data, _ := json.MarshalIndent(langs, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	for _, l := range langs {
		fmt.Fprintln(stdout, l)
	}
	return 0
}

func runDoctor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath, flagWasSet(fs, "config"))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
	} else {
		fmt.Fprint(stdout, doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runWatch(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("url", "http://127.0.0.1:8080", "Base URL of a running runlet service")
	apiKey := fs.String("api-key", os.Getenv("RUNLET_API_KEY"), "Bearer token for the API")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	p := tea.NewProgram(tui.NewWatch(strings.TrimRight(*apiURL, "/"), *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}

func runReload(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("url", "http://127.0.0.1:8080", "Base URL of a running runlet service")
	apiKey := fs.String("api-key", os.Getenv("RUNLET_API_KEY"), "Bearer token for the API")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*apiURL, "/")+"/reload", nil)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to build request: %v\n", err)
		return 1
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "Reload failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Reload failed: %s\n", resp.Status)
		return 1
	}

	var out api.ReloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(stderr, "Invalid reload response: %v\n", err)
		return 1
	}
	for _, p := range out.Plugins {
		if p.Error != "" {
			fmt.Fprintf(stdout, "%-20s %-10s %s\n", p.Name, p.Action, p.Error)
		} else {
			fmt.Fprintf(stdout, "%-20s %s\n", p.Name, p.Action)
		}
	}
	if len(out.Plugins) == 0 {
		fmt.Fprintln(stdout, "No plugins found.")
	}
	return 0
}

func runConfigNoun(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: runlet config lock [--config <path>]")
		return 1
	}
	switch args[0] {
	case "lock":
		return runConfigLock(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown config command: %s\n", args[0])
		return 1
	}
}

func runConfigLock(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	sidecar, err := config.WriteChecksums(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to update checksums: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s\n", sidecar)
	return 0
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func pidLockPath(cfg *config.Config) string {
	dir := filepath.Dir(cfg.History.Path)
	if dir == "" || dir == "." {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "runlet.lock")
}
