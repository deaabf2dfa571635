package editor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/usage"
)

var ErrNoEditor = errors.New("no editor found")

// Launcher resolves the user's editor once and builds commands for it.
type Launcher struct {
	registry *Registry
	name     string
	extra    []string
}

// NewLauncher picks the editor in this order: the configured default,
// $VISUAL, $EDITOR, then the first preferred editor found on PATH.
func NewLauncher(cfg config.EditorConfig) *Launcher {
	registry, err := NewRegistry()
	if err != nil {
		debuglog.Warnf("editor definitions unavailable: %v", err)
		registry = &Registry{editors: make(map[string]Definition)}
	}
	return newLauncher(registry, cfg, os.Getenv, exec.LookPath)
}

func newLauncher(registry *Registry, cfg config.EditorConfig, getenv func(string) string, lookPath func(string) (string, error)) *Launcher {
	l := &Launcher{registry: registry}
	candidates := []string{cfg.Default, getenv("VISUAL"), getenv("EDITOR")}
	for _, c := range candidates {
		if fields := strings.Fields(c); len(fields) > 0 {
			l.name, l.extra = fields[0], fields[1:]
			return l
		}
	}
	for _, name := range cfg.Preferred {
		if _, err := lookPath(name); err == nil {
			l.name = name
			return l
		}
	}
	return l
}

// Editor is the resolved editor command, or "" if none was found.
func (l *Launcher) Editor() string {
	return l.name
}

// Command builds the command that opens u. terminal reports whether the
// editor needs the terminal for itself.
func (l *Launcher) Command(u *usage.Usage) (cmd *exec.Cmd, terminal bool, err error) {
	if l.name == "" {
		return nil, false, ErrNoEditor
	}
	if !u.CanNavigate() {
		return nil, false, fmt.Errorf("cannot open %s", u)
	}
	def := l.registry.Definition(l.name)
	args := append(append([]string{}, l.extra...), def.Expand(u)...)
	return exec.Command(l.name, args...), def.Terminal, nil
}

// Open runs terminal editors in the foreground attached to the current
// terminal and starts the others detached.
func (l *Launcher) Open(u *usage.Usage) error {
	cmd, terminal, err := l.Command(u)
	if err != nil {
		return err
	}
	if terminal {
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("running %s: %w", l.name, err)
		}
		return nil
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", l.name, err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
