package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupehound/internal/config"
	"github.com/ivoronin/dupehound/internal/types"
)

var (
	version = "dev"
	commit  = "none"
)

// exitStopped is the status of a scan interrupted by a signal.
const exitStopped = 130

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// rootOptions holds the persistent flags that are not config keys.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "dupehound",
		Short:         "Find duplicate, empty, big and broken files",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file (default $DUPEHOUND_CONFIG_PATH/dupehound.yaml)")
	root.PersistentFlags().String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", defaults.LogFormat, "Log format (console, json)")

	root.AddCommand(
		newDupesCmd(opts),
		newBigCmd(opts),
		newEmptyCmd(opts),
		newSymlinksCmd(opts),
		newBrokenCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, types.ErrStopped):
		fmt.Fprintln(stderr, "scan stopped")
		return exitStopped
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dupehound %s (%s)\n", version, commit)
		},
	}
}
