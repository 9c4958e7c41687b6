// Package service installs daylog as a macOS launchd agent that runs
// `daylog run` at login and restarts it when it exits.
package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/daylog/config"
)

const (
	Label   = "com.daylog.bot"
	binDest = "/usr/local/bin/daylog"
)

// layout is where the installed pieces live. Tests point it at a temp dir.
type layout struct {
	home    string
	binPath string
}

func defaultLayout() layout {
	home, _ := os.UserHomeDir()
	return layout{home: home, binPath: binDest}
}

func (l layout) plistPath() string {
	return filepath.Join(l.home, "Library", "LaunchAgents", Label+".plist")
}

func (l layout) stdoutLog() string {
	return filepath.Join(l.home, "Library", "Logs", "daylog-stdout.log")
}

func (l layout) stderrLog() string {
	return filepath.Join(l.home, "Library", "Logs", "daylog-stderr.log")
}

// Install copies the running binary to /usr/local/bin, seeds
// ~/.daylog/config from ./.env when there is no config yet, writes the
// plist and loads it.
func Install() error {
	l := defaultLayout()

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	if err := copyFile(exe, l.binPath, 0755); err != nil {
		return fmt.Errorf("copying binary to %s: %w", l.binPath, err)
	}
	fmt.Printf("installed binary to %s\n", l.binPath)

	seeded, err := seedConfig(".env", config.ConfigFile())
	if err != nil {
		return err
	}
	if seeded {
		fmt.Printf("seeded config from .env -> %s\n", config.ConfigFile())
	} else {
		fmt.Printf("using config at %s\n", config.ConfigFile())
	}

	plist, err := renderPlist(l, workDir(config.ConfigFile()))
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}

	// Unload a previous install, ignoring errors
	if _, err := os.Stat(l.plistPath()); err == nil {
		_ = launchctl("unload", l.plistPath())
	}
	if err := os.MkdirAll(filepath.Dir(l.plistPath()), 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(l.plistPath(), []byte(plist), 0644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Printf("wrote plist to %s\n", l.plistPath())

	if err := launchctl("load", l.plistPath()); err != nil {
		return fmt.Errorf("loading plist: %w", err)
	}
	fmt.Println("service loaded and will start on login")
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, perm)
}

// seedConfig copies envFile to configFile unless configFile already exists
// or envFile is missing.
func seedConfig(envFile, configFile string) (bool, error) {
	if _, err := os.Stat(configFile); err == nil {
		return false, nil
	}
	data, err := os.ReadFile(envFile)
	if err != nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}

// workDir is the service's working directory. A relative DATABASE_PATH or
// DAILY_LOG_DIR in the runtime config resolves against the directory
// install ran from; otherwise the config dir is used.
func workDir(configFile string) string {
	env, _ := godotenv.Read(configFile)
	for _, key := range []string{"DATABASE_PATH", "DAILY_LOG_DIR"} {
		if p, ok := env[key]; ok && p != "" && !filepath.IsAbs(p) {
			if wd, err := os.Getwd(); err == nil {
				return wd
			}
		}
	}
	return filepath.Dir(configFile)
}

// Uninstall unloads and removes the plist and the installed binary.
func Uninstall() error {
	l := defaultLayout()
	if _, err := os.Stat(l.plistPath()); err == nil {
		if err := launchctl("unload", l.plistPath()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(l.plistPath()); err != nil {
			return fmt.Errorf("removing plist: %w", err)
		}
		fmt.Printf("removed %s\n", l.plistPath())
	} else {
		fmt.Println("plist not found, skipping")
	}

	if err := os.Remove(l.binPath); err == nil {
		fmt.Printf("removed %s\n", l.binPath)
	} else if os.IsNotExist(err) {
		fmt.Printf("%s not found, skipping\n", l.binPath)
	} else {
		return fmt.Errorf("removing binary: %w", err)
	}

	fmt.Println("uninstalled")
	return nil
}

func Start() error { return launchctl("start", Label) }

func Stop() error { return launchctl("stop", Label) }

func Restart() error {
	_ = Stop()
	return Start()
}

func Status() error {
	cmd := exec.Command("launchctl", "list", Label)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Println("service is not loaded")
	}
	return nil
}

// Logs follows the service's stdout and stderr files.
func Logs() error {
	l := defaultLayout()
	cmd := exec.Command("tail", "-f", l.stdoutLog(), l.stderrLog())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func launchctl(args ...string) error {
	cmd := exec.Command("launchctl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("launchctl %s: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
		<string>run</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

func renderPlist(l layout, workDir string) (string, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, struct {
		Label, BinPath, WorkDir, StdoutLog, StderrLog string
	}{Label, l.binPath, workDir, l.stdoutLog(), l.stderrLog()})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
