// quoteshelf keeps a local, offline-readable cache of a remote quote catalog
// together with the user's favorites and collections.
//
// Usage:
//
//	quoteshelf setup                          # interactive first-run wizard
//	quoteshelf daemon [--config <path>]       # refresh on an interval until stopped
//	quoteshelf refresh                        # refresh the quote catalog once
//	quoteshelf sync                           # full pass: quotes and collections
//	quoteshelf quotes [filters] [--watch]     # list cached quotes
//	quoteshelf quote <id>                     # show one quote
//	quoteshelf daily | random                 # quote of the day, random quote
//	quoteshelf favorite [--remove] <id>       # mark or unmark a favorite
//	quoteshelf collections <subcommand>       # manage collections
//	quoteshelf settings [show|set <k> <v>]    # device preferences
//	quoteshelf avatar <file>                  # upload a profile picture
//	quoteshelf status                         # show config, cache and daemon state
//	quoteshelf uninstall [--purge]            # stop daemon and remove files
//	quoteshelf version                        # print version
//
// Every subcommand accepts --config and --verbose before its arguments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/quoteshelf/internal/config"
	"github.com/njoerd114/quoteshelf/internal/logging"
	"github.com/njoerd114/quoteshelf/internal/remote"
	"github.com/njoerd114/quoteshelf/internal/settings"
	"github.com/njoerd114/quoteshelf/internal/setup"
	"github.com/njoerd114/quoteshelf/internal/state"
	syncp "github.com/njoerd114/quoteshelf/internal/sync"
	"github.com/njoerd114/quoteshelf/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// command is a subcommand body. It receives the opened app and the
// positional arguments left after flag parsing.
type command func(ctx context.Context, a *app, args []string) error

// run dispatches to the requested subcommand.
func run(args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	name, rest := args[0], args[1:]
	switch name {
	case "setup":
		return runSetup()
	case "daemon":
		return runDaemon(rest)
	case "status":
		return runStatus(rest)
	case "uninstall":
		return runUninstall(rest)
	case "version":
		fmt.Println("quoteshelf", version)
		return nil
	case "help", "-h", "--help":
		return printUsage()
	}

	if build, ok := lookup(name); ok {
		return runCommand(name, rest, build)
	}
	return fmt.Errorf("unknown command %q, run 'quoteshelf' for usage", name)
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	w := os.Stderr
	fmt.Fprintln(w, "quoteshelf: offline quote cache with favorites and collections")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  quoteshelf setup                         Interactive first-run wizard")
	fmt.Fprintln(w, "  quoteshelf daemon                        Refresh on an interval until stopped")
	fmt.Fprintln(w, "  quoteshelf refresh                       Refresh the quote catalog once")
	fmt.Fprintln(w, "  quoteshelf sync                          Refresh quotes and collections once")
	fmt.Fprintln(w, "  quoteshelf quotes [--category C] [--favorites] [--search Q] [--author A] [--watch]")
	fmt.Fprintln(w, "  quoteshelf quote <id>                    Show one quote")
	fmt.Fprintln(w, "  quoteshelf daily                         Quote of the day")
	fmt.Fprintln(w, "  quoteshelf random                        A random cached quote")
	fmt.Fprintln(w, "  quoteshelf favorite [--remove] <id>      Mark or unmark a favorite")
	fmt.Fprintln(w, "  quoteshelf collections list|show|create|update|delete|add|remove")
	fmt.Fprintln(w, "  quoteshelf settings [show | set <key> <value>]")
	fmt.Fprintln(w, "  quoteshelf avatar <file>                 Upload a profile picture")
	fmt.Fprintln(w, "  quoteshelf status                        Show config, cache and daemon state")
	fmt.Fprintln(w, "  quoteshelf uninstall [--purge]           Stop daemon and remove files")
	fmt.Fprintln(w, "  quoteshelf version                       Print version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags go before arguments; every command accepts --config and --verbose.")

	if cfgErr != nil {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "No config file found. Run 'quoteshelf setup' to get started.")
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands with their own lifecycle --------------------------------------

// runSetup launches the interactive setup wizard.
func runSetup() error {
	logger, _ := logging.New(logging.Options{Level: "warn"}, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return setup.NewWizard(os.Stdin, os.Stdout, logger).Run(ctx)
}

// runDaemon warms an empty cache, then refreshes every refresh_interval
// until SIGINT or SIGTERM.
func runDaemon(args []string) error {
	fs, common := newFlagSet("daemon")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*common.config, *common.verbose, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if tcfg, ok := telemetry.FromConfig(a.cfg.Telemetry, version); ok {
		shutdownTel, err := telemetry.Setup(ctx, tcfg)
		if err != nil {
			a.logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			a.logger.Info("telemetry enabled", "endpoint", tcfg.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					a.logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	a.logger.Info("pinging backend…", "url", a.cfg.RemoteURL)
	if err := a.client.Ping(ctx); err != nil {
		// The cache stays readable offline; the engine retries on its interval.
		a.logger.Warn("backend unreachable, will retry on the next pass", "error", err)
	}

	bootstrap := syncp.NewBootstrap(a.quotes, a.collections, a.store, a.logger, os.Stdout)
	if _, err := bootstrap.Run(ctx); err != nil {
		a.logger.Error("first-run bootstrap failed", "error", err)
	}

	engine := syncp.NewEngine(a.quotes, a.collections, a.cfg.RefreshInterval, a.logger)
	a.logger.Info("daemon starting", "refresh_interval", a.cfg.RefreshInterval)
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("sync engine: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// runCommand parses the common flags plus any command-specific ones, opens
// the app and runs the command.
func runCommand(name string, args []string, build builder) error {
	fs, common := newFlagSet(name)
	cmd := build(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := openApp(*common.config, *common.verbose, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return cmd(ctx, a, fs.Args())
}

type commonFlags struct {
	config  *string
	verbose *bool
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	return fs, commonFlags{
		config:  fs.String("config", defaultCfg, "path to config.yaml"),
		verbose: fs.Bool("verbose", false, "enable debug logging"),
	}
}

// --- App wiring --------------------------------------------------------------

// app holds everything a command needs, wired from the config file.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *state.Store
	client      *remote.Client
	adapter     *remote.Adapter
	quotes      *syncp.QuoteCache
	collections *syncp.CollectionSync
	settings    *settings.Repository
	out         io.Writer

	closers []func() error
}

// openApp loads the config and wires the store, remote client and managers.
// Interactive commands log warnings to stderr; the daemon logs at info, to
// the configured file when there is one.
func openApp(cfgPath string, verbose, daemon bool) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w\n\nRun 'quoteshelf setup' to create one", cfgPath, err)
	}

	logger, logCloser := newLogger(cfg, verbose, daemon)
	slog.SetDefault(logger)
	a := &app{cfg: cfg, logger: logger, out: os.Stdout, closers: []func() error{logCloser.Close}}

	logger.Info("config loaded",
		"remote_url", cfg.RemoteURL,
		"signed_in", cfg.AccessToken != "",
		"refresh_interval", cfg.RefreshInterval,
	)

	dbPath := cfg.DBPath
	if dbPath == "" {
		if dbPath, err = state.DefaultDBPath(); err != nil {
			a.Close()
			return nil, fmt.Errorf("resolving cache DB path: %w", err)
		}
	}
	a.store, err = state.Open(dbPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening cache DB at %q: %w", dbPath, err)
	}
	a.closers = append(a.closers, a.store.Close)
	logger.Info("cache DB opened", "path", dbPath)

	a.client, err = remote.NewClient(remote.Options{
		BaseURL:     cfg.RemoteURL,
		APIKey:      cfg.APIKey,
		AccessToken: cfg.AccessToken,
		UserID:      cfg.UserID,
		Timeout:     cfg.RequestTimeout,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialising remote client: %w", err)
	}

	a.adapter = remote.NewAdapter(a.client, logger)
	a.quotes = syncp.NewQuoteCache(a.adapter, a.store, logger)
	a.collections = syncp.NewCollectionSync(a.adapter, a.store, logger)
	a.settings = settings.NewRepository(a.store, logger)
	return a, nil
}

func newLogger(cfg *config.Config, verbose, daemon bool) (*slog.Logger, io.Closer) {
	opts := logging.Options{Level: "warn"}
	if daemon {
		opts.Level = "info"
		if l := cfg.Log; l != nil {
			opts = logging.Options{
				Level:      l.Level,
				Format:     l.Format,
				File:       l.File,
				MaxSizeMB:  l.MaxSizeMB,
				MaxBackups: l.MaxBackups,
				MaxAgeDays: l.MaxAgeDays,
				Compress:   l.Compress,
			}
		}
	}
	if verbose {
		opts.Level = "debug"
	}
	return logging.New(opts, os.Stderr)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("closing resource", "error", err)
		}
	}
}

// --- status / uninstall ------------------------------------------------------

// runStatus prints config, cache, identity and daemon state. It never fails
// on a missing or invalid config; it reports it instead.
func runStatus(args []string) error {
	fs, common := newFlagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfgPath := *common.config
	homeDir, _ := os.UserHomeDir()

	fmt.Println("quoteshelf Status")
	fmt.Println("─────────────────")

	if d, err := setup.NewDaemon(homeDir, cfgPath); err == nil {
		if d.Loaded() {
			fmt.Printf("  Daemon:    running (%s)\n", d.Manager())
		} else {
			fmt.Println("  Daemon:    not loaded")
		}
		if _, err := os.Stat(d.UnitPath()); err == nil {
			fmt.Printf("  Service:   %s\n", d.UnitPath())
		} else {
			fmt.Println("  Service:   not installed")
		}
	}

	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Printf("  Config:    not found (%s)\n", cfgPath)
		return nil
	}
	a, err := openApp(cfgPath, *common.verbose, false)
	if err != nil {
		fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, err)
		return nil
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()
	return printStatus(ctx, a, cfgPath)
}

// runUninstall stops the daemon and removes installed files.
func runUninstall(args []string) error {
	fs, common := newFlagSet("uninstall")
	purge := fs.Bool("purge", false, "also remove config, cache DB, and logs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolving home directory: %w", err)
	}
	d, err := setup.NewDaemon(homeDir, *common.config)
	if err != nil {
		return err
	}

	fmt.Println("Uninstalling quoteshelf daemon...")
	if err := d.Uninstall(); err != nil {
		fmt.Printf("  ⚠ %v\n", err)
	} else {
		fmt.Println("  ✓ Service stopped and removed")
	}

	if *purge {
		fmt.Println("  Purging config, cache DB, and logs...")
		if err := d.PurgeUserData(); err != nil {
			fmt.Printf("  ⚠ %v\n", err)
		} else {
			fmt.Println("  ✓ User data purged")
		}
	} else {
		fmt.Println("")
		fmt.Println("  Config and cache DB preserved.")
		fmt.Println("  Run with --purge to also remove them:")
		fmt.Println("    quoteshelf uninstall --purge")
	}

	fmt.Println("")
	fmt.Println("✓ quoteshelf uninstalled.")
	return nil
}
