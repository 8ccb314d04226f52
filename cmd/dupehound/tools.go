package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupehound/internal/bigfiles"
	"github.com/ivoronin/dupehound/internal/brokenfiles"
	"github.com/ivoronin/dupehound/internal/config"
	"github.com/ivoronin/dupehound/internal/emptyfiles"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/symlinks"
	"github.com/ivoronin/dupehound/internal/types"
)

// scanCmd builds a command whose RunE receives a ready app.
func scanCmd(opts *rootOptions, use, short string, run func(ctx context.Context, a *app, roots []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), a, args)
		},
	}
	addFilterFlags(cmd.Flags(), config.Default())
	return cmd
}

func newBigCmd(opts *rootOptions) *cobra.Command {
	var (
		count    int
		smallest bool
	)
	cmd := scanCmd(opts, "big [paths...]", "List the biggest (or smallest) files", func(ctx context.Context, a *app, roots []string) error {
		msgs := types.NewMessages()
		f, err := a.buildFilter(roots, msgs)
		if err != nil {
			return err
		}
		mode := bigfiles.Biggest
		if smallest {
			mode = bigfiles.Smallest
		}

		var res *bigfiles.Result
		err = a.withScan(ctx, func(stop *types.StopFlag, sink chan<- progress.Data) error {
			var err error
			res, err = bigfiles.Find(f, bigfiles.Options{
				Count:          count,
				Mode:           mode,
				Workers:        a.cfg.Workers,
				FollowSymlinks: a.cfg.FollowSymlinks,
				Stop:           stop,
				Progress:       sink,
				Log:            a.log,
			})
			return err
		})
		if err != nil {
			return err
		}
		msgs.Merge(res.Messages)
		a.printMessages(msgs)
		printBigFiles(a.stdout, res)
		return nil
	})
	cmd.Flags().IntVarP(&count, "count", "c", 50, "Number of files to list")
	cmd.Flags().BoolVar(&smallest, "smallest", false, "List the smallest files instead")
	cmd.Flags().Bool("follow-symlinks", false, "Resolve symlinks to files")
	return cmd
}

func newEmptyCmd(opts *rootOptions) *cobra.Command {
	return scanCmd(opts, "empty [paths...]", "List empty files", func(ctx context.Context, a *app, roots []string) error {
		// An empty file is below any positive minimum size.
		a.settings.MinSize, a.settings.MaxSize = 0, 0
		msgs := types.NewMessages()
		f, err := a.buildFilter(roots, msgs)
		if err != nil {
			return err
		}

		var res *emptyfiles.Result
		err = a.withScan(ctx, func(stop *types.StopFlag, sink chan<- progress.Data) error {
			var err error
			res, err = emptyfiles.Find(f, emptyfiles.Options{Workers: a.cfg.Workers, Stop: stop, Progress: sink, Log: a.log})
			return err
		})
		if err != nil {
			return err
		}
		msgs.Merge(res.Messages)
		a.printMessages(msgs)
		printEmptyFiles(a.stdout, res)
		return nil
	})
}

func newSymlinksCmd(opts *rootOptions) *cobra.Command {
	return scanCmd(opts, "symlinks [paths...]", "List symlinks with a missing target or a loop", func(ctx context.Context, a *app, roots []string) error {
		msgs := types.NewMessages()
		f, err := a.buildFilter(roots, msgs)
		if err != nil {
			return err
		}

		var res *symlinks.Result
		err = a.withScan(ctx, func(stop *types.StopFlag, sink chan<- progress.Data) error {
			var err error
			res, err = symlinks.Find(f, symlinks.Options{Workers: a.cfg.Workers, Stop: stop, Progress: sink, Log: a.log})
			return err
		})
		if err != nil {
			return err
		}
		msgs.Merge(res.Messages)
		a.printMessages(msgs)
		printSymlinks(a.stdout, res)
		return nil
	})
}

func newBrokenCmd(opts *rootOptions) *cobra.Command {
	cmd := scanCmd(opts, "broken [paths...]", "List zip and gzip archives that fail to decompress", func(ctx context.Context, a *app, roots []string) error {
		msgs := types.NewMessages()
		f, err := a.buildFilter(roots, msgs)
		if err != nil {
			return err
		}

		var res *brokenfiles.Result
		err = a.withScan(ctx, func(stop *types.StopFlag, sink chan<- progress.Data) error {
			var err error
			res, err = brokenfiles.Find(f, brokenfiles.Options{
				Workers:             a.cfg.Workers,
				UseCache:            a.cfg.UseCache,
				SaveJSONCache:       a.cfg.SaveJSONCache,
				DeleteOutdatedCache: a.cfg.DeleteOutdatedCache,
				CacheDir:            a.cacheDir(),
				Stop:                stop,
				Progress:            sink,
				Log:                 a.log,
			})
			return err
		})
		if err != nil {
			return err
		}
		msgs.Merge(res.Messages)
		a.printMessages(msgs)
		printBrokenFiles(a.stdout, res)
		return nil
	})
	addCacheFlags(cmd.Flags(), config.Default())
	return cmd
}
