package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivoronin/dupehound/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts))
	return cmd
}

// configPath returns --config or the default location.
func configPath(opts *rootOptions) (string, error) {
	if opts.configFile != "" {
		return opts.configFile, nil
	}
	paths, _ := config.ResolvePaths()
	if paths.ConfigDir == "" {
		return "", errors.New("config directory unavailable, use --config")
	}
	return paths.ConfigFile(), nil
}

func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configPath(opts)
			if err != nil {
				return err
			}
			if err := config.Save(config.Default(), path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, _ := config.ResolvePaths()
			cfg, err := config.Load(opts.configFile, paths.ConfigDir, cmd.Flags())
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
