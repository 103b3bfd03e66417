// Package cli wires the peoplebatch commands with cobra.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/chararch/minibatch/internal/config"
)

// NewRootCmd creates the root command. Flags of the sub-commands default to
// the values of cfg and write into it.
func NewRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "peoplebatch",
		Short:         "Import people from a delimited file in transactional chunks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&cfg.MetaStore, "meta-store", cfg.MetaStore, "job metadata store: memory, mysql or sqlserver")

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newHistoryCmd(cfg))
	rootCmd.AddCommand(newAbandonCmd(cfg))
	return rootCmd
}
