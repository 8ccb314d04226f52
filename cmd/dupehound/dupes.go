package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupehound/internal/actions"
	"github.com/ivoronin/dupehound/internal/config"
	"github.com/ivoronin/dupehound/internal/duplicates"
	"github.com/ivoronin/dupehound/internal/progress"
	"github.com/ivoronin/dupehound/internal/types"
)

func newDupesCmd(opts *rootOptions) *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "dupes [paths...]",
		Short: "Find duplicate files and optionally act on them",
		Long: `Groups files by name, size, size and name, or content hash.

With --reference-dirs, files inside those directories are kept as originals
and are never deleted or replaced; only copies outside them are reported.

Use --delete-method to delete or hard-link duplicates and --dry-run to
preview the result.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return a.runDupes(cmd.Context(), args)
		},
	}

	fs := cmd.Flags()
	addFilterFlags(fs, d)
	addCacheFlags(fs, d)
	fs.StringSlice("reference-dirs", nil, "Directories holding originals that are never modified")
	fs.Bool("follow-symlinks", d.FollowSymlinks, "Resolve symlinks to files")
	fs.StringP("method", "m", d.Method, "Checking method (name, size, size-name, hash)")
	fs.String("hash-type", d.HashType, "Hash algorithm (xxh64, sha256, crc32)")
	fs.StringP("delete-method", "d", d.DeleteMethod, "Action on duplicates (none, delete, all-except-newest, ..., hardlink)")
	fs.BoolP("dry-run", "n", d.DryRun, "Preview actions without executing")
	fs.Bool("case-sensitive-names", d.CaseSensitiveNames, "Compare names case-sensitively")
	fs.Bool("ignore-hard-links", d.IgnoreHardLinks, "Count paths sharing an inode as one file")
	fs.Bool("use-prehash-cache", d.UsePrehashCache, "Cache prefix hashes too")
	fs.String("prehash-size", d.PrehashSize, "Bytes hashed in the first pass")
	fs.String("min-cache-file-size", d.MinCacheFileSize, "Smallest file kept in the hash cache")
	fs.String("min-prehash-cache-file-size", d.MinPrehashCacheFileSize, "Smallest file kept in the prehash cache")
	return cmd
}

func (a *app) runDupes(ctx context.Context, roots []string) error {
	msgs := types.NewMessages()
	f, err := a.buildFilter(roots, msgs)
	if err != nil {
		return err
	}

	opts := duplicates.Options{
		Method:                  a.settings.Method,
		HashType:                a.settings.HashType,
		CaseSensitiveNames:      a.cfg.CaseSensitiveNames,
		IgnoreHardLinks:         a.cfg.IgnoreHardLinks,
		FollowSymlinks:          a.cfg.FollowSymlinks,
		UseCache:                a.cfg.UseCache,
		UsePrehashCache:         a.cfg.UsePrehashCache,
		SaveJSONCache:           a.cfg.SaveJSONCache,
		DeleteOutdatedCache:     a.cfg.DeleteOutdatedCache,
		Workers:                 a.cfg.Workers,
		PrehashSize:             a.settings.PrehashSize,
		MinCacheFileSize:        a.settings.MinCacheFileSize,
		MinPrehashCacheFileSize: a.settings.MinPrehashCacheFileSize,
	}

	var res *duplicates.Result
	err = a.withScan(ctx, func(stop *types.StopFlag, sink chan<- progress.Data) error {
		env := duplicates.Env{CacheDir: a.cacheDir(), Stop: stop, Progress: sink, Log: a.log}
		var err error
		res, err = duplicates.New(f, opts, env).Run()
		return err
	})
	if err != nil {
		return err
	}

	msgs.Merge(res.Messages)
	a.printMessages(msgs)
	printDuplicates(a.stdout, res)

	if a.settings.DeleteMethod == actions.None {
		return nil
	}
	rep := actions.New(a.settings.DeleteMethod, actions.Options{DryRun: a.cfg.DryRun, Log: a.log}).Apply(res.FileGroups())
	printReport(a.stdout, rep, a.cfg.DryRun)
	return nil
}
