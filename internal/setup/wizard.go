package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/quoteshelf/internal/config"
)

var refreshChoices = []struct {
	label string
	every time.Duration
}{
	{"Every 5 minutes", 5 * time.Minute},
	{"Every 15 minutes (recommended)", config.DefaultRefreshInterval},
	{"Every hour", time.Hour},
	{"Every 6 hours", 6 * time.Hour},
	{"Custom", 0},
}

// Wizard guides the user through first-run configuration and installation.
type Wizard struct {
	prompt *Prompter
	logger *slog.Logger
	w      io.Writer

	cfgPath   string
	homeDir   string
	connect   ConnectFunc
	newDaemon func(homeDir, cfgPath string) (*Daemon, error)
}

// NewWizard creates a Wizard wired to the given I/O and logger.
func NewWizard(r io.Reader, w io.Writer, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt:    NewPrompter(r, w),
		logger:    logger,
		w:         w,
		connect:   Connect(logger, config.DefaultRequestTimeout),
		newDaemon: NewDaemon,
	}
}

// Run executes the wizard: backend connection, optional sign-in, refresh
// interval, config file, and optional daemon install.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to quoteshelf setup!\n")
	fmt.Fprintf(wiz.w, "This wizard connects quoteshelf to your backend and keeps a local quote cache fresh.\n\n")

	if err := wiz.resolvePaths(); err != nil {
		return err
	}

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			if wiz.prompt.Confirm("Install as background daemon (starts on login)?", false) {
				return wiz.installDaemon()
			}
			return nil
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: backend connection.
	fmt.Fprintf(wiz.w, "Step 1/4: Backend Connection\n")

	remoteURL := wiz.prompt.String("Backend URL (e.g. https://xyz.supabase.co)", "")
	apiKey := wiz.prompt.Secret("API key (anon)")

	fmt.Fprintf(wiz.w, "  Connecting...")
	checker, err := wiz.connect(remoteURL, apiKey, "")
	if err == nil {
		err = checker.Ping(ctx)
	}
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach the backend: %w\n\n  Check the URL and API key, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	// Step 2: optional sign-in.
	fmt.Fprintf(wiz.w, "Step 2/4: Sign-In\n")
	fmt.Fprintf(wiz.w, "  Favorites and collections need a session token. Leave empty to stay signed out.\n")

	token := wiz.prompt.Optional("Access token")
	if token != "" {
		email, err := wiz.verifyToken(ctx, remoteURL, apiKey, token)
		if err != nil {
			return err
		}
		fmt.Fprintf(wiz.w, "  ✓ Signed in as %s\n\n", email)
	} else {
		fmt.Fprintf(wiz.w, "  Continuing signed out.\n\n")
	}

	// Step 3: refresh interval.
	fmt.Fprintf(wiz.w, "Step 3/4: Refresh Interval\n")

	interval, err := wiz.refreshInterval()
	if err != nil {
		return err
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: save.
	fmt.Fprintf(wiz.w, "Step 4/4: Save Configuration\n")

	cfg := &config.Config{
		RemoteURL:       remoteURL,
		APIKey:          apiKey,
		AccessToken:     token,
		RefreshInterval: interval,
		RequestTimeout:  config.DefaultRequestTimeout,
	}

	var daemon *Daemon
	if wiz.prompt.Confirm("Install as background daemon (starts on login)?", true) {
		daemon, err = wiz.newDaemon(wiz.homeDir, wiz.cfgPath)
		if err != nil {
			return fmt.Errorf("preparing daemon install: %w", err)
		}
		cfg.Log = &config.LogConfig{
			File:       daemon.LogFile(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		}
	}

	if err := cfg.Write(wiz.cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	if daemon == nil {
		fmt.Fprintf(wiz.w, "  Skipping daemon install.\n")
		fmt.Fprintf(wiz.w, "  Refresh manually with: quoteshelf refresh\n")
		fmt.Fprintf(wiz.w, "  Or run in foreground:  quoteshelf daemon\n\n")
		return nil
	}
	return wiz.install(daemon)
}

func (wiz *Wizard) resolvePaths() error {
	if wiz.cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
		wiz.cfgPath = p
	}
	if wiz.homeDir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		wiz.homeDir = h
	}
	return nil
}

// verifyToken resolves the identity behind token and returns its email.
func (wiz *Wizard) verifyToken(ctx context.Context, remoteURL, apiKey, token string) (string, error) {
	fmt.Fprintf(wiz.w, "  Verifying token...")
	checker, err := wiz.connect(remoteURL, apiKey, token)
	if err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return "", err
	}
	user, err := checker.CurrentUser(ctx)
	if err != nil || user == nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		if err == nil {
			err = fmt.Errorf("no user for this token")
		}
		return "", fmt.Errorf("access token rejected: %w", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n")
	if user.Email == "" {
		return user.ID, nil
	}
	return user.Email, nil
}

func (wiz *Wizard) refreshInterval() (time.Duration, error) {
	labels := make([]string, len(refreshChoices))
	for i, c := range refreshChoices {
		labels[i] = c.label
	}
	idx, err := wiz.prompt.Select("How often should the cache refresh?", labels)
	if err != nil {
		return 0, fmt.Errorf("selecting refresh interval: %w", err)
	}
	if every := refreshChoices[idx].every; every > 0 {
		return every, nil
	}
	return wiz.prompt.Duration("Refresh interval", config.DefaultRefreshInterval, time.Minute, 24*time.Hour), nil
}

func (wiz *Wizard) installDaemon() error {
	d, err := wiz.newDaemon(wiz.homeDir, wiz.cfgPath)
	if err != nil {
		return fmt.Errorf("preparing daemon install: %w", err)
	}
	return wiz.install(d)
}

func (wiz *Wizard) install(d *Daemon) error {
	fmt.Fprintf(wiz.w, "  Installing %s service...\n", d.Manager())
	if err := d.Install(); err != nil {
		return fmt.Errorf("installing daemon: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Service written to %s\n", d.UnitPath())
	fmt.Fprintf(wiz.w, "  ✓ Daemon started\n")

	fmt.Fprintf(wiz.w, "\nSetup complete! quoteshelf is refreshing in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", wiz.cfgPath)
	fmt.Fprintf(wiz.w, "  Logs:    %s\n", d.LogDir())
	fmt.Fprintf(wiz.w, "  Status:  quoteshelf status\n")
	fmt.Fprintf(wiz.w, "  Remove:  quoteshelf uninstall\n\n")
	return nil
}
