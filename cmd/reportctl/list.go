package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/modreports/internal/export"
	"github.com/JonMunkholm/modreports/internal/report"
)

type listOptions struct {
	targetID string
	xlsxPath string
}

func newListCmd(root *rootOptions) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print stored reports as JSON or write them to a workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), root, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var reports []report.Report
			if opts.targetID != "" {
				reports, err = a.Service.ReportsByTarget(cmd.Context(), opts.targetID)
			} else {
				reports, err = a.Service.Reports(cmd.Context())
			}
			if err != nil {
				return err
			}

			if opts.xlsxPath == "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}

			f, err := os.Create(opts.xlsxPath)
			if err != nil {
				return err
			}
			if err := export.WriteXLSX(f, reports, export.Options{
				Table:    a.Service.Table(),
				TargetID: opts.targetID,
			}); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", opts.xlsxPath, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d reports to %s\n", len(reports), opts.xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.targetID, "target-id", "", "Only reports for this target, newest first")
	cmd.Flags().StringVar(&opts.xlsxPath, "xlsx", "", "Write an .xlsx workbook instead of JSON")
	return cmd
}
