package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreports/internal/config"
)

func newExecCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement>",
		Short: "Run a raw SQL statement against the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The operator at the shell already holds the credentials.
			a, err := openApp(cmd.Context(), root, func(cfg *config.Config) {
				cfg.Import.ExecEnabled = true
			})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Service.Exec(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", n)
			return nil
		},
	}
}
