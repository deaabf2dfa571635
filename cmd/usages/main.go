package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pders01/usages/internal/actions"
	"github.com/pders01/usages/internal/actions/user"
	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/editor"
	"github.com/pders01/usages/internal/finder"
	"github.com/pders01/usages/internal/source"
	"github.com/pders01/usages/internal/storage"
	"github.com/pders01/usages/internal/tui"
	"github.com/pders01/usages/internal/usage"
	"github.com/pders01/usages/internal/validation"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	flagConfig     string
	flagRoot       string
	flagDB         string
	flagLogLevel   string
	flagPlain      bool
	flagQuiet      bool
	flagIndex      bool
	flagShowIfOne  bool
	flagIgnoreCase bool
	flagAllFiles   bool
	flagOpen       bool
)

var rootCmd = &cobra.Command{
	Use:   "usages [flags] [identifier]",
	Short: "Find usages of an identifier across a source tree",
	Long: `usages searches a source tree for the usages of an identifier,
streams them into a results view and lets you preview or open each one.

Without an identifier the interactive finder starts empty.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to configuration file")
	pf.StringVar(&flagDB, "db", "", "Path to history database (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error, off")

	f := rootCmd.Flags()
	f.StringVarP(&flagRoot, "root", "r", "", "Directory to search (default from config)")
	f.BoolVar(&flagPlain, "plain", false, "Print usages instead of starting the interface")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "Skip startup banner")
	f.BoolVar(&flagIndex, "index", false, "Scan only files the identifier index lists")
	f.BoolVar(&flagShowIfOne, "show-if-one", false, "Show the results view for a single usage")
	f.BoolVarP(&flagIgnoreCase, "ignore-case", "i", false, "Match identifiers case-insensitively")
	f.BoolVarP(&flagAllFiles, "all-files", "a", false, "Search every text file, not only source files")
	f.BoolVar(&flagOpen, "open", false, "Open a single usage in the editor (with --plain)")

	rootCmd.AddCommand(versionCmd, configCmd, indexCmd, historyCmd, showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applies persistent flags and sets up
// logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the history database. History is optional: on failure
// the error is logged and nil is returned.
func openStore(cfg *config.Config) *storage.Store {
	path, err := validation.NewPathHandler().DBPath(cfg.Database.Path)
	if err != nil {
		debuglog.Warnf("history disabled: %v", err)
		return nil
	}
	store, err := storage.NewStore(path, cfg.Database.Timeout)
	if err != nil {
		debuglog.Warnf("history disabled: %v", err)
		return nil
	}
	return store
}

func openIndex(cfg *config.Config) (*source.Index, error) {
	path, err := validation.NewPathHandler().IndexPath(cfg.Database.SearchIndex)
	if err != nil {
		return nil, err
	}
	return source.OpenIndex(path)
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer debuglog.Close()

	if flagRoot != "" {
		cfg.Search.Root = flagRoot
	}
	root, err := validation.NewPathHandler().Root(cfg.Search.Root)
	if err != nil {
		return err
	}
	cfg.Search.Root = root
	if flagIndex {
		cfg.Search.UseIndex = true
	}
	if flagShowIfOne {
		cfg.Search.ShowPanelIfOne = true
	}
	if flagIgnoreCase {
		cfg.Search.IgnoreCase = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store := openStore(cfg)
	if store != nil {
		defer func() {
			if limit := cfg.Database.HistoryLimit; limit > 0 {
				if n, err := store.Prune(limit); err != nil {
					debuglog.Warnf("pruning history: %v", err)
				} else if n > 0 {
					debuglog.Debugf("pruned %d searches", n)
				}
			}
			_ = store.Close()
		}()
	}

	alternatives := actions.DefaultRegistry()
	alternatives.Register(user.NewParentDirectory())
	finderOpts := []finder.Option{
		finder.WithFinishedHook(logFinished),
		finder.WithAlternatives(alternatives),
	}
	if cfg.Search.UseIndex {
		idx, err := openIndex(cfg)
		if err != nil {
			debuglog.Warnf("index disabled: %v", err)
		} else {
			defer idx.Close()
			finderOpts = append(finderOpts, finder.WithIndex(idx))
		}
	}

	launcher := editor.NewLauncher(cfg.Editor)

	if flagPlain {
		if len(args) == 0 {
			return errors.New("--plain needs an identifier")
		}
		return runPlain(ctx, cfg, store, launcher, finderOpts, args[0])
	}
	return runInteractive(ctx, cfg, store, launcher, finderOpts, args)
}

func managerOptions(store *storage.Store) []usage.Option {
	if store == nil {
		return nil
	}
	return []usage.Option{usage.WithRecorder(store)}
}

func buildQuery(f *finder.Finder, name string) finder.Query {
	q := f.Query(name)
	if flagAllFiles {
		q.AllFiles = true
	}
	return q
}

func runInteractive(ctx context.Context, cfg *config.Config, store *storage.Store, launcher *editor.Launcher, opts []finder.Option, args []string) error {
	presenter := tui.NewPresenter()
	manager := usage.NewManager(presenter, managerOptions(store)...)
	opts = append(opts, finder.WithRerunHook(presenter.SearchRerun))
	f, err := finder.New(cfg.Search, manager, opts...)
	if err != nil {
		return err
	}

	if !flagQuiet {
		tui.ShowBanner(Version)
	}

	app := tui.NewApp(cfg, f, manager, store, launcher)
	if len(args) == 1 {
		app.SetInitialQuery(buildQuery(f, args[0]))
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	presenter.Attach(p)
	_, runErr := p.Run()
	presenter.Detach()

	manager.CancelAll()
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := manager.Wait(waitCtx); err != nil {
		debuglog.Warnf("searches still running at exit: %v", err)
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}

func runPlain(ctx context.Context, cfg *config.Config, store *storage.Store, launcher *editor.Launcher, opts []finder.Option, name string) error {
	var in io.Reader
	if isTerminal(os.Stdin) {
		in = os.Stdin
	}
	console := tui.NewConsole(os.Stdout, in, cfg.Search.Root)
	if flagOpen {
		console.Open = launcher.Open
	}

	manager := usage.NewManager(console, managerOptions(store)...)
	f, err := finder.New(cfg.Search, manager, opts...)
	if err != nil {
		return err
	}

	s, err := f.Find(ctx, buildQuery(f, name))
	if err != nil {
		return err
	}
	res, err := s.Wait(ctx)
	if err != nil {
		s.Cancel()
		res, _ = s.Wait(context.Background())
	}
	// Recording happens after the result is published.
	if err := manager.Wait(context.Background()); err != nil {
		debuglog.Warnf("waiting for searches: %v", err)
	}

	switch res.Outcome {
	case usage.OutcomeFailed:
		return res.Err
	case usage.OutcomeCancelled:
		return errors.New(tui.MsgCancelled)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func logFinished(res usage.Result) {
	debuglog.WithFields(map[string]any{
		"session":  res.SessionID,
		"outcome":  res.Outcome.String(),
		"count":    res.Count,
		"large":    len(res.LargeFiles),
		"duration": res.Duration,
	}).Infof("search finished: %s", usage.TargetNames(res.Targets))
}
