package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreports/internal/core"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV file of reports in a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), root, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Service.ImportFile(cmd.Context(), args[0])
			if err != nil {
				if core.IsUserFacing(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), core.FormatUserError(err))
				}
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			for _, re := range res.RowErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: line %d skipped: %s\n", re.Line, re.Reason)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d rows into %s (%d skipped) in %s\n",
				res.Inserted, res.Attempted, res.Table, res.Skipped, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the import result as JSON")
	return cmd
}
