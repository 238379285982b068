package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var dbFlag string
	var verbose bool

	ctx := newCommandContext(&configFlag, &dbFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "podkeep",
		Short:         "Archive podcast feeds and their episodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dbFlag, "database-path", "d", "", "SQLite database path (overrides database_path)")
	rootCmd.SetGlobalNormalizationFunc(flagAliases)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newFeedCommand(ctx))
	rootCmd.AddCommand(newItemCommand(ctx))
	rootCmd.AddCommand(newRawCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// flagAliases accepts --db for --database-path.
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "db" {
		name = "database-path"
	}
	return pflag.NormalizedName(name)
}
