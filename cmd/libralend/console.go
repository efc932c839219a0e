package main

import (
	"github.com/spf13/cobra"

	"libralend/internal/console"
)

func newConsoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run the interactive text menu",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := console.New(a.newRegistry(), cmd.InOrStdin(), cmd.OutOrStdout(), a.log)
			return d.Run(cmd.Context())
		},
	}
}
