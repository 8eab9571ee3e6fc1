package setup

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	// BinaryName is the executable and service name.
	BinaryName = "quoteshelf"

	// LaunchdLabel is the launchd job label on macOS.
	LaunchdLabel = "com.github.njoerd114.quoteshelf"

	systemdUnit = BinaryName + ".service"
)

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Binary}}</string>
        <string>daemon</string>
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=quoteshelf cache refresh daemon
After=network-online.target

[Service]
ExecStart={{.Binary}} daemon --config {{.ConfigPath}}
Restart=on-failure
RestartSec=30

[Install]
WantedBy=default.target
`

// Daemon installs quoteshelf as a per-user background service: a launchd
// agent on macOS, a systemd user unit elsewhere.
type Daemon struct {
	HomeDir    string
	Binary     string
	ConfigPath string
	GOOS       string

	// run executes service-manager commands; replaced in tests.
	run func(name string, args ...string) ([]byte, error)
}

// NewDaemon describes a service running the current executable with the
// given config file.
func NewDaemon(homeDir, configPath string) (*Daemon, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving current executable path: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return nil, fmt.Errorf("resolving executable symlinks: %w", err)
	}
	return &Daemon{
		HomeDir:    homeDir,
		Binary:     self,
		ConfigPath: configPath,
		GOOS:       runtime.GOOS,
		run:        runCommand,
	}, nil
}

func (d *Daemon) launchd() bool { return d.GOOS == "darwin" }

// UnitPath returns where the service definition is written.
func (d *Daemon) UnitPath() string {
	if d.launchd() {
		return filepath.Join(d.HomeDir, "Library", "LaunchAgents", LaunchdLabel+".plist")
	}
	return filepath.Join(d.HomeDir, ".config", "systemd", "user", systemdUnit)
}

// LogDir returns the directory holding the daemon's log file.
func (d *Daemon) LogDir() string {
	if d.launchd() {
		return filepath.Join(d.HomeDir, "Library", "Logs", BinaryName)
	}
	return filepath.Join(d.HomeDir, ".local", "state", BinaryName)
}

// LogFile returns the daemon's log file path.
func (d *Daemon) LogFile() string {
	return filepath.Join(d.LogDir(), BinaryName+".log")
}

// Render returns the service definition.
func (d *Daemon) Render() ([]byte, error) {
	src := systemdTemplate
	if d.launchd() {
		src = launchdTemplate
	}
	tmpl, err := template.New("unit").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing service template: %w", err)
	}
	data := struct{ Label, Binary, ConfigPath string }{LaunchdLabel, d.Binary, d.ConfigPath}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing service template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the service definition, creates the log directory, and
// starts the service. An already running service is restarted.
func (d *Daemon) Install() error {
	unit, err := d.Render()
	if err != nil {
		return err
	}
	dest := d.UnitPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating service directory: %w", err)
	}
	if err := os.WriteFile(dest, unit, 0o644); err != nil {
		return fmt.Errorf("writing service file %s: %w", dest, err)
	}
	if err := os.MkdirAll(d.LogDir(), 0o755); err != nil {
		return fmt.Errorf("creating log directory %s: %w", d.LogDir(), err)
	}

	if d.launchd() {
		_ = d.Stop() // ignore error if not loaded
		return d.exec("launchctl", "load", dest)
	}
	if err := d.exec("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return d.exec("systemctl", "--user", "enable", "--now", systemdUnit)
}

// Stop stops the service if its definition exists.
func (d *Daemon) Stop() error {
	if _, err := os.Stat(d.UnitPath()); os.IsNotExist(err) {
		return nil // nothing to stop
	}
	if d.launchd() {
		return d.exec("launchctl", "unload", d.UnitPath())
	}
	return d.exec("systemctl", "--user", "disable", "--now", systemdUnit)
}

// Uninstall stops the service and removes its definition.
func (d *Daemon) Uninstall() error {
	if err := d.Stop(); err != nil {
		return err
	}
	if err := os.Remove(d.UnitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing service file %s: %w", d.UnitPath(), err)
	}
	return nil
}

// Loaded reports whether the service manager knows the job as running.
func (d *Daemon) Loaded() bool {
	if d.launchd() {
		_, err := d.run("launchctl", "list", LaunchdLabel)
		return err == nil
	}
	_, err := d.run("systemctl", "--user", "is-active", "--quiet", systemdUnit)
	return err == nil
}

// Manager names the service manager in use.
func (d *Daemon) Manager() string {
	if d.launchd() {
		return "launchd"
	}
	return "systemd"
}

// PurgeUserData removes the config directory, cache database and logs.
func (d *Daemon) PurgeUserData() error {
	dirs := []string{
		filepath.Join(d.HomeDir, ".config", BinaryName),
		filepath.Join(d.HomeDir, ".local", "share", BinaryName),
		d.LogDir(),
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	return nil
}

func (d *Daemon) exec(name string, args ...string) error {
	if output, err := d.run(name, args...); err != nil {
		return fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

func runCommand(name string, args ...string) ([]byte, error) {
	//nolint:gosec // fixed service-manager binaries
	return exec.Command(name, args...).CombinedOutput()
}
