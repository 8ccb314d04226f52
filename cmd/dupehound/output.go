package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/dupehound/internal/actions"
	"github.com/ivoronin/dupehound/internal/bigfiles"
	"github.com/ivoronin/dupehound/internal/brokenfiles"
	"github.com/ivoronin/dupehound/internal/duplicates"
	"github.com/ivoronin/dupehound/internal/emptyfiles"
	"github.com/ivoronin/dupehound/internal/symlinks"
	"github.com/ivoronin/dupehound/internal/types"
)

func bytesOf(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func entryLine(fe types.FileEntry) string {
	return fmt.Sprintf("%s (%s)", actions.EscapePath(fe.Path), bytesOf(fe.Size))
}

func printDuplicates(w io.Writer, res *duplicates.Result) {
	if res.RefGroups != nil {
		for i, g := range res.RefGroups {
			fmt.Fprintf(w, "Group %d:\n", i+1)
			fmt.Fprintf(w, "  = %s\n", entryLine(g.Kept.FileEntry))
			for _, e := range g.Others {
				fmt.Fprintf(w, "  - %s\n", entryLine(e.FileEntry))
			}
		}
	} else {
		for i, g := range res.Groups {
			fmt.Fprintf(w, "Group %d:\n", i+1)
			for _, e := range g {
				fmt.Fprintf(w, "  %s\n", entryLine(e.FileEntry))
			}
		}
	}

	info := res.Info
	fmt.Fprintf(w, "Found %d duplicates in %d groups among %d files (%s reclaimable) in %s\n",
		info.DuplicatesFound, info.GroupsFound, info.FilesFound, bytesOf(info.LostSpace), info.Elapsed.Round(time.Millisecond))
	if res.Method == types.MethodHash {
		fmt.Fprintf(w, "Hashed %d files (%d prehashed, %d cache hits)\n",
			info.HashedFiles, info.PrehashedFiles, info.CacheHits)
	}
}

func printReport(w io.Writer, rep actions.Report, dryRun bool) {
	prefix := ""
	if dryRun {
		prefix = "[dry-run] "
	}
	for _, p := range rep.Deleted {
		fmt.Fprintf(w, "%sdeleted %s\n", prefix, actions.EscapePath(p))
	}
	for _, p := range rep.Linked {
		fmt.Fprintf(w, "%slinked %s\n", prefix, actions.EscapePath(p))
	}
	for _, f := range rep.Failed {
		fmt.Fprintf(w, "%s%s\n", prefix, f)
	}
	fmt.Fprintf(w, "%s%d deleted, %d linked, %d skipped, %s freed\n",
		prefix, len(rep.Deleted), len(rep.Linked), len(rep.Failed), bytesOf(rep.FreedBytes))
}

func printBigFiles(w io.Writer, res *bigfiles.Result) {
	for _, fe := range res.Files {
		fmt.Fprintf(w, "%10s  %s\n", bytesOf(fe.Size), actions.EscapePath(fe.Path))
	}
	fmt.Fprintf(w, "Listed %d of %d files (%s total) in %s\n",
		len(res.Files), res.FilesFound, bytesOf(res.TotalSize), res.Elapsed.Round(time.Millisecond))
}

func printEmptyFiles(w io.Writer, res *emptyfiles.Result) {
	for _, fe := range res.Files {
		fmt.Fprintln(w, actions.EscapePath(fe.Path))
	}
	fmt.Fprintf(w, "Found %d empty files among %d files in %s\n",
		len(res.Files), res.FilesFound, res.Elapsed.Round(time.Millisecond))
}

func printSymlinks(w io.Writer, res *symlinks.Result) {
	for _, l := range res.Links {
		fmt.Fprintf(w, "%s -> %s (%s)\n", actions.EscapePath(l.Path), actions.EscapePath(l.Destination), l.Problem)
	}
	fmt.Fprintf(w, "Found %d invalid symlinks in %s\n", len(res.Links), res.Elapsed.Round(time.Millisecond))
}

func printBrokenFiles(w io.Writer, res *brokenfiles.Result) {
	for _, e := range res.Files {
		fmt.Fprintf(w, "%s: %s\n", actions.EscapePath(e.Path), e.Reason)
	}
	fmt.Fprintf(w, "Found %d broken archives among %d checked (%d cache hits) in %s\n",
		len(res.Files), res.Checked, res.CacheHits, res.Elapsed.Round(time.Millisecond))
}
