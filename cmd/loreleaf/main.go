// Package main is the entry point for the Loreleaf plugin host.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loreleaf/loreleaf/internal/command"
	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/event"
	"github.com/loreleaf/loreleaf/internal/plugin"
	"github.com/loreleaf/loreleaf/internal/plugin/lua"
	"github.com/loreleaf/loreleaf/internal/schedule"
	"github.com/loreleaf/loreleaf/internal/storage"
	"github.com/loreleaf/loreleaf/internal/view"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	logger := newLogger(opts.LogLevel)
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if len(opts.PluginDirs) > 0 {
		cfg.PluginDirs = opts.PluginDirs
	}
	if opts.NoWatch {
		cfg.WatchPlugins = false
	}

	scheduler := schedule.New()
	defer scheduler.Shutdown()

	services := plugin.Services{
		Commands:  command.NewRegistry(),
		Events:    event.NewBus(),
		Views:     view.NewRegistry(),
		Scheduler: scheduler,
		Data:      storage.NewStore(cfg.DataDir, logger),
		Logger:    logger,
	}

	manager := plugin.NewManager(plugin.ManagerConfig{
		PluginPaths: cfg.PluginDirs,
		Disabled:    cfg.Disabled,
		Factory:     lua.Factory(),
		Logger:      logger,
	})

	// Ensure every loaded plugin is torn down on all exit paths.
	defer func() {
		if err := manager.UnloadAll(); err != nil {
			logger.Error("shutdown unload", "error", err)
		}
	}()

	if err := manager.LoadAll(services); err != nil {
		// Individual plugin failures are already recorded; report and
		// keep running with whatever loaded.
		logger.Warn("some plugins failed to load", "error", err)
	}
	logger.Info("plugins ready", "loaded", manager.Count())

	if cfg.WatchPlugins {
		watcher, err := plugin.NewWatcher(cfg.PluginDirs, func(name string) {
			if err := manager.Reload(name, services); err != nil {
				logger.Error("plugin reload", "plugin", name, "error", err)
			}
		}, logger)
		if err != nil {
			logger.Warn("plugin watching unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// Block until asked to stop.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	logger.Info("shutting down", "signal", sig.String())

	return 0
}

// options holds the command-line settings.
type options struct {
	ConfigPath string
	PluginDirs []string
	LogLevel   string
	NoWatch    bool
}

func parseFlags() options {
	var opts options
	var pluginDir string
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", config.DefaultPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&pluginDir, "plugins", "", "Plugin directory (overrides config)")
	flag.StringVar(&pluginDir, "p", "", "Plugin directory (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.NoWatch, "no-watch", false, "Disable plugin directory watching")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Loreleaf - plugin-extensible vault host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: loreleaf [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  loreleaf                    Load plugins from configured directories\n")
		fmt.Fprintf(os.Stderr, "  loreleaf -p ./plugins       Load plugins from a single directory\n")
		fmt.Fprintf(os.Stderr, "  loreleaf -no-watch          Skip filesystem watching\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Loreleaf %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	if pluginDir != "" {
		opts.PluginDirs = []string{pluginDir}
	}

	return opts
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}))
}
