package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callsight/internal/api"
	"callsight/internal/report"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		xlsxPath string
		remote   remoteFlags
	)
	cmd := &cobra.Command{
		Use:   "export <id>...",
		Short: "Export stored sessions to an Excel workbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(xlsxPath) == "" {
				return fmt.Errorf("--xlsx is required")
			}
			calls := make([]report.Call, 0, len(args))
			for _, id := range args {
				detail, err := loadSession(cmd.Context(), ctx, &remote, id)
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("session %s not found", id)
				}
				calls = append(calls, callFromDetail(detail))
			}
			if err := report.Write(xlsxPath, calls); err != nil {
				return fmt.Errorf("write workbook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", xlsxPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Destination workbook path")
	remote.bind(cmd)
	return cmd
}

func callFromDetail(detail *api.SessionDetail) report.Call {
	return report.FromEvents(detail.ID, detail.AudioName, detail.Status, api.ParseTime(detail.FinishedAt), detail.Events)
}
