// Command epubfts maintains and queries a full-text index over the EPUB
// books of a Calibre-Web library. The default invocation synchronizes
// the index; flags add a rebuild, a search, or a stats report. The serve
// subcommand exposes the same operations over MCP on stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dhowland/epubfts/internal/catalog"
	"github.com/dhowland/epubfts/internal/config"
	"github.com/dhowland/epubfts/internal/index"
	"github.com/dhowland/epubfts/internal/logger"
	"github.com/dhowland/epubfts/internal/mcp"
	"github.com/dhowland/epubfts/internal/settings"
	"github.com/dhowland/epubfts/internal/syncer"
	"github.com/dhowland/epubfts/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Exit codes beyond the usual 0/1.
const (
	exitSettingsNotFound = 2
	exitNotConfigured    = 3
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type cliFlags struct {
	cfgFile      string
	settingsPath string
	rebuild      bool
	stats        bool
	skipSync     bool
	search       string
	limit        int
	workers      int
	debug        bool
}

func main() {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "epubfts",
		Short:         "Full-text index for a Calibre-Web EPUB library",
		Version:       fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default: none)")
	root.PersistentFlags().StringVarP(&flags.settingsPath, "settings", "p", "", "path to the settings database or its directory")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.Flags().BoolVar(&flags.rebuild, "rebuild", false, "clear the index before syncing")
	root.Flags().BoolVar(&flags.stats, "stats", false, "print index statistics")
	root.Flags().BoolVar(&flags.skipSync, "skip-sync", false, "do not synchronize the index")
	root.Flags().StringVar(&flags.search, "search", "", "run a search after syncing")
	root.Flags().IntVar(&flags.limit, "limit", 0, "maximum search results")
	root.Flags().IntVar(&flags.workers, "workers", 0, "parallel extraction workers")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		var xerr *exitError
		if errors.As(err, &xerr) {
			fmt.Fprintln(os.Stderr, xerr.msg)
			os.Exit(xerr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolve merges flags over the loaded configuration and opens every
// dependency: settings, catalog, and the index service.
func resolve(cmd *cobra.Command, flags *cliFlags) (*index.Service, *catalog.Catalog, *config.Config, logger.Logger, error) {
	cfg, err := config.Load(flags.cfgFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if cmd.Flags().Changed("settings") || flags.settingsPath != "" {
		cfg.SettingsPath = flags.settingsPath
	}
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	if flags.limit > 0 {
		cfg.Limit = flags.limit
	}
	if flags.debug {
		cfg.Debug = true
	}

	log := logger.New()
	if cfg.Debug {
		log = logger.NewDebug()
	}

	settingsPath, err := settings.Resolve(cfg.SettingsPath)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if _, err := os.Stat(settingsPath); err != nil {
		return nil, nil, nil, nil, &exitError{
			code: exitSettingsNotFound,
			msg:  fmt.Sprintf("Settings database not found: %s", settingsPath),
		}
	}

	libraryPath, err := settings.LibraryPath(cmd.Context(), settingsPath)
	if errors.Is(err, settings.ErrNotConfigured) {
		return nil, nil, nil, nil, &exitError{
			code: exitNotConfigured,
			msg:  "Calibre library path is not configured in settings.",
		}
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}

	svc, err := index.Open(index.DBPathFor(settingsPath), libraryPath, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	cat, err := catalog.Open(libraryPath)
	if err != nil {
		_ = svc.Close()
		return nil, nil, nil, nil, err
	}

	return svc, cat, cfg, log, nil
}

func runRoot(cmd *cobra.Command, flags *cliFlags) error {
	ctx := cmd.Context()

	svc, cat, cfg, _, err := resolve(cmd, flags)
	if err != nil {
		return err
	}
	defer func() {
		_ = cat.Close()
		_ = svc.Close()
	}()

	if flags.rebuild {
		if err := svc.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("Index cleared.")
	}

	if !flags.skipSync {
		rows, err := cat.Rows(ctx)
		if err != nil {
			return err
		}

		opts := syncer.Options{
			Force:   flags.rebuild,
			Workers: cfg.Workers,
			Progress: func(processed, total, indexed, removed int) {
				fmt.Printf("\rSyncing %d/%d (indexed %d, removed %d)", processed, total, indexed, removed)
			},
		}
		result, err := svc.Sync(ctx, rows, opts)
		if err != nil {
			fmt.Println()
			return err
		}
		if result.Skipped {
			fmt.Println("Index is fresh; skipping sync.")
		} else {
			fmt.Printf("\rSync complete: %s\n", syncReport(len(rows), result))
		}
	}

	if flags.search != "" {
		if err := runSearch(ctx, svc, cat, flags.search, cfg.Limit); err != nil {
			return err
		}
	}

	if flags.stats {
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}

	return nil
}

// syncReport summarizes one sync pass: catalog rows discovered, rows
// whose archive exists on disk, and the write counters.
func syncReport(discovered int, result *types.SyncResult) string {
	return fmt.Sprintf("%d discovered, %d seen, %d indexed, %d removed.",
		discovered, result.Seen, result.Indexed, result.Removed)
}

func runSearch(ctx context.Context, svc *index.Service, cat *catalog.Catalog, query string, limit int) error {
	hits, err := svc.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, hit := range hits {
		label := fmt.Sprintf("book %d", hit.BookID)
		if title, author, err := cat.BookInfo(ctx, hit.BookID); err == nil {
			label = fmt.Sprintf("%s (%s)", title, author)
		}
		fmt.Printf("%2d. %s\n    %s\n    %s\n", i+1, label, hit.Section, hit.Snippet)
	}
	return nil
}

func runServe(cmd *cobra.Command, flags *cliFlags) error {
	svc, cat, _, log, err := resolve(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("MCP server starting", "version", version)
	server := mcp.NewServer(svc, cat, log)
	return server.Serve(ctx)
}
