package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var tuningFlag string

	rootCmd := &cobra.Command{
		Use:           "go_vidsearch",
		Short:         "Find and rank YouTube videos for a video idea",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), tuningFlag)
		},
	}

	rootCmd.PersistentFlags().StringVar(&tuningFlag, "tuning", "", "TOML file overriding scoring weights and cache TTLs (default $SCORING_CONFIG)")

	rootCmd.AddCommand(newServeCommand(&tuningFlag))
	rootCmd.AddCommand(newSearchCommand(&tuningFlag))
	rootCmd.AddCommand(newHistoryCommand(&tuningFlag))
	rootCmd.AddCommand(newInterpretCommand())

	return rootCmd
}
