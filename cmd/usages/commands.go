package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/usages/internal/config"
	"github.com/pders01/usages/internal/debuglog"
	"github.com/pders01/usages/internal/source"
	"github.com/pders01/usages/internal/storage"
	"github.com/pders01/usages/internal/validation"
)

const indexedAtPrefix = "indexed_at:"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("usages %s\n", Version)
		fmt.Println("Find usages of identifiers")
		fmt.Println("github.com/pders01/usages")
		if pred, err := source.NewPredicate(); err == nil {
			fmt.Printf("Languages: %s\n", strings.Join(pred.Languages(), ", "))
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write the default configuration to ~/.config/usages/config.toml",
	Run: func(cmd *cobra.Command, args []string) {
		home, _ := os.UserHomeDir()
		configFile := filepath.Join(home, ".config", "usages", "config.toml")

		if err := config.GenerateDefaultConfig(configFile); err != nil {
			log.Fatalf("Failed to generate config: %v", err)
		}
		fmt.Printf("Generated default configuration at: %s\n", configFile)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [root]",
	Short: "Build or refresh the identifier index for a source tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer debuglog.Close()

		root := cfg.Search.Root
		if len(args) == 1 {
			root = args[0]
		}
		if root, err = validation.NewPathHandler().Root(root); err != nil {
			return err
		}
		pred, err := source.NewPredicate(cfg.Search.Exclude...)
		if err != nil {
			return err
		}
		idx, err := openIndex(cfg)
		if err != nil {
			return fmt.Errorf("opening index: %w", err)
		}
		defer idx.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		started := time.Now()
		stats, err := idx.Rebuild(ctx, root, pred, cfg.Search.MaxFileSize)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", root, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files under %s (%d removed, %d skipped) in %s\n",
			stats.Indexed, root, stats.Removed, stats.Skipped, time.Since(started).Round(time.Millisecond))

		if store := openStore(cfg); store != nil {
			defer store.Close()
			if err := store.SetMeta(indexedAtPrefix+root, time.Now().Format(time.RFC3339)); err != nil {
				debuglog.Warnf("recording index time: %v", err)
			}
		}
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status [root]",
	Short: "Show when a source tree was last indexed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer debuglog.Close()

		root := cfg.Search.Root
		if len(args) == 1 {
			root = args[0]
		}
		if root, err = validation.NewPathHandler().Root(root); err != nil {
			return err
		}
		store := openStore(cfg)
		if store == nil {
			return errors.New("history database is not available")
		}
		defer store.Close()

		at, err := store.GetMeta(indexedAtPrefix + root)
		if err != nil {
			return err
		}
		if at == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s has not been indexed\n", root)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s indexed at %s\n", root, at)
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.ListSearches(historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the usages a past search found",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := historyStore()
		if err != nil {
			return err
		}
		defer store.Close()

		entry, err := findEntry(store, args[0])
		if err != nil {
			return err
		}
		usages, err := store.GetUsages(entry.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s in %s: %d usages (%s)\n", entry.Names(), entry.Scope, entry.Count, entry.Outcome)
		for _, u := range usages {
			fmt.Fprintf(out, "%s:%d:%d: %s\n", u.Path, u.Line, u.Column, strings.TrimSpace(u.Text))
		}
		if entry.Saved < entry.Count {
			fmt.Fprintf(out, "(%d of %d usages were saved)\n", entry.Saved, entry.Count)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGenCmd)
	indexCmd.AddCommand(indexStatusCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of searches to list (0 for all)")
}

func historyStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := openStore(cfg)
	if store == nil {
		return nil, errors.New("history database is not available")
	}
	return store, nil
}

// findEntry looks id up exactly, then as a unique prefix.
func findEntry(store *storage.Store, id string) (*storage.SearchEntry, error) {
	entry, err := store.GetSearch(id)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	entries, err := store.ListSearches(0)
	if err != nil {
		return nil, err
	}
	var match *storage.SearchEntry
	for _, e := range entries {
		if !strings.HasPrefix(e.ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("id %q is ambiguous", id)
		}
		match = e
	}
	if match == nil {
		return nil, fmt.Errorf("search %q: %w", id, storage.ErrNotFound)
	}
	return match, nil
}

func printHistory(w io.Writer, entries []*storage.SearchEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No searches yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%-8s  %s  %-20s %6d  %-9s  %s\n",
			shortID(e.ID), e.StartedAt.Format("2006-01-02 15:04"), e.Names(), e.Count, e.Outcome, e.Scope)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
