package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the hecate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hecate",
		Short: "Hecate - token and session lifecycle service",
		Long: `Hecate issues signed access and refresh tokens, keeps a bounded
list of live sessions per account, and sends magic login, password reset
and email verification links. Settings come from HECATE_* environment variables.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewLoadtestCmd())

	return cmd
}
