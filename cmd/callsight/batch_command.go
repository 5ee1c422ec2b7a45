package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"callsight/internal/batch"
	"callsight/internal/pipeline"
	"callsight/internal/report"
	"callsight/internal/sink"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		tasks       []string
		all         bool
		concurrency int
		timeout     time.Duration
		xlsxPath    string
	)

	cmd := &cobra.Command{
		Use:   "batch <audio>...",
		Short: "Analyze several call recordings as independent sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := make([]string, 0, len(args))
			for _, arg := range args {
				path, err := resolveAudioPath(arg)
				if err != nil {
					return err
				}
				paths = append(paths, path)
			}

			eng, logger, err := ctx.engine(cmd)
			if err != nil {
				return err
			}
			store, err := ctx.historyStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			names := tasks
			if all {
				names = pipeline.AllStages().Names()
			}
			out := cmd.OutOrStdout()
			var progressMu sync.Mutex
			outcomes, runErr := batch.Run(cmd.Context(), eng, paths, batch.Options{
				Requested:      pipeline.ParseStages(names, logger),
				Concurrency:    concurrency,
				SessionTimeout: timeout,
				Store:          store,
				Logger:         logger,
				OnFinish: func(o batch.Outcome) {
					progressMu.Lock()
					defer progressMu.Unlock()
					fmt.Fprintf(cmd.ErrOrStderr(), "finished %s (%s)\n", filepath.Base(o.Session.AudioPath), o.Status)
				},
			})

			fmt.Fprintln(out, renderBatchTable(outcomes))

			if strings.TrimSpace(xlsxPath) != "" {
				calls := make([]report.Call, 0, len(outcomes))
				for _, o := range outcomes {
					calls = append(calls, report.FromEvents(o.Session.ID, filepath.Base(o.Session.AudioPath), o.Status, o.FinishedAt, o.Events))
				}
				if err := report.Write(xlsxPath, calls); err != nil {
					return fmt.Errorf("write workbook: %w", err)
				}
				fmt.Fprintf(out, "Wrote %s\n", xlsxPath)
			}
			if runErr != nil {
				return runErr
			}
			if failed := countNotCompleted(outcomes); failed > 0 {
				return fmt.Errorf("%d of %d sessions did not complete", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tasks, "tasks", "t", nil, "Stages to run (comma separated or repeated)")
	cmd.Flags().BoolVar(&all, "all", false, "Run every stage")
	cmd.Flags().IntVar(&concurrency, "concurrency", batch.DefaultConcurrency, "Sessions to run at once")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-session timeout (0 disables)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write an Excel workbook with every summary")
	return cmd
}

func renderBatchTable(outcomes []batch.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		call := report.FromEvents(o.Session.ID, filepath.Base(o.Session.AudioPath), o.Status, o.FinishedAt, o.Events)
		rows = append(rows, []string{
			call.AudioName,
			call.Status,
			orDash(call.Category),
			orDash(call.Sentiment),
			strconv.Itoa(len(call.Errors)),
		})
	}
	return sink.RenderTable("Batch", []string{"Audio", "Status", "Category", "Sentiment", "Errors"}, rows,
		[]sink.Alignment{sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignRight})
}

func countNotCompleted(outcomes []batch.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status != pipeline.StatusCompleted {
			n++
		}
	}
	return n
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
