package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ivoronin/dupehound/internal/config"
	"github.com/ivoronin/dupehound/internal/filter"
	"github.com/ivoronin/dupehound/internal/logging"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
)

// app is the per-invocation state shared by the scan commands.
type app struct {
	cfg      *config.Config
	settings config.Settings
	paths    config.Paths
	log      *zap.Logger
	stdout   io.Writer
	stderr   io.Writer
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	paths, warnings := config.ResolvePaths()
	cfg, err := config.Load(opts.configFile, paths.ConfigDir, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		settings: settings,
		paths:    paths,
		log:      log,
		stdout:   cmd.OutOrStdout(),
		stderr:   cmd.ErrOrStderr(),
	}
	for _, w := range warnings {
		a.warn(w)
	}
	return a, nil
}

// cacheDir returns the cache directory, or "" when caching is off.
func (a *app) cacheDir() string {
	if !a.cfg.UseCache {
		return ""
	}
	if a.paths.CacheDir == "" {
		a.warn("cache directory unavailable, caching disabled")
	}
	return a.paths.CacheDir
}

// buildFilter normalizes roots and compiles the filter settings.
func (a *app) buildFilter(roots []string, msgs *types.Messages) (*filter.PathFilter, error) {
	dirs, err := types.NewDirectories(roots, a.cfg.ExcludedDirs, a.cfg.ReferenceDirs, msgs)
	if err != nil {
		return nil, err
	}
	items, err := filter.NewExcludedItems(a.cfg.ExcludedItems)
	if err != nil {
		return nil, err
	}
	return filter.New(filter.Config{
		Directories:             dirs,
		ExcludedItems:           items,
		AllowedExtensions:       a.cfg.AllowedExtensions,
		ExcludedExtensions:      a.cfg.ExcludedExtensions,
		MinSize:                 a.settings.MinSize,
		MaxSize:                 a.settings.MaxSize,
		Recursive:               a.cfg.Recursive,
		ExcludeOtherFilesystems: a.cfg.OneFilesystem,
	}), nil
}

// withScan runs fn with a stop flag raised on SIGINT/SIGTERM and, when
// enabled, a progress sink rendered on stderr.
func (a *app) withScan(ctx context.Context, fn func(stop *types.StopFlag, sink chan<- progress.Data) error) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	stop := types.StopOnDone(ctx)

	if !a.cfg.Progress {
		return fn(stop, nil)
	}
	sink := make(chan progress.Data, 16)
	done := progress.NewBar(true).Render(sink)
	err := fn(stop, sink)
	close(sink)
	<-done
	return err
}

// printMessages writes the scan's notes to stderr; informational ones go to
// the log only.
func (a *app) printMessages(msgs *types.Messages) {
	for _, m := range msgs.Messages() {
		a.log.Info(m)
	}
	for _, w := range msgs.Warnings() {
		a.warn(w)
	}
	for _, e := range msgs.Errors() {
		fmt.Fprintf(a.stderr, "error: %s\n", e)
	}
}

func (a *app) warn(msg string) {
	fmt.Fprintf(a.stderr, "warning: %s\n", msg)
}

// addFilterFlags registers the traversal settings shared by every scan.
func addFilterFlags(fs *pflag.FlagSet, d *config.Config) {
	fs.StringSlice("excluded-dirs", nil, "Directories to skip")
	fs.StringSlice("excluded-items", nil, "Wildcard path patterns to skip (e.g. '*/.git/*')")
	fs.StringSlice("allowed-extensions", nil, "Only consider these extensions")
	fs.StringSlice("excluded-extensions", nil, "Never consider these extensions")
	fs.Bool("recursive", d.Recursive, "Descend into subdirectories")
	fs.String("min-size", d.MinSize, "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	fs.String("max-size", d.MaxSize, "Maximum file size, 0 for no limit")
	fs.IntP("workers", "w", d.Workers, "Number of parallel workers")
	fs.Bool("one-filesystem", d.OneFilesystem, "Do not cross filesystem boundaries")
	fs.Bool("progress", d.Progress, "Show progress on stderr")
}

// addCacheFlags registers the cache settings of cached scans.
func addCacheFlags(fs *pflag.FlagSet, d *config.Config) {
	fs.Bool("use-cache", d.UseCache, "Reuse results of earlier scans")
	fs.Bool("save-json-cache", d.SaveJSONCache, "Also write a JSON copy of each cache")
	fs.Bool("delete-outdated-cache", d.DeleteOutdatedCache, "Drop cache records of files that no longer exist")
}
