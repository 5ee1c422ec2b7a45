package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"callsight/internal/api"
	"callsight/internal/history"
	"callsight/internal/sink"
)

type remoteFlags struct {
	url   string
	token string
}

func (r *remoteFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.url, "remote", "", "Read from a callsightd instance instead of the local database")
	cmd.Flags().StringVar(&r.token, "token", "", "Bearer token for --remote (defaults to [server].api_token)")
}

func (r *remoteFlags) enabled() bool {
	return strings.TrimSpace(r.url) != ""
}

func (r *remoteFlags) client(ctx *commandContext) (*api.Client, error) {
	token := strings.TrimSpace(r.token)
	if token == "" {
		if cfg, err := ctx.ensureConfig(); err == nil {
			token = cfg.Server.APIToken
		}
	}
	return api.NewClient(r.url, token)
}

// loadSession fetches one session from the daemon or the local history.
func loadSession(cmdCtx context.Context, ctx *commandContext, remote *remoteFlags, id string) (*api.SessionDetail, error) {
	if remote.enabled() {
		client, err := remote.client(ctx)
		if err != nil {
			return nil, err
		}
		return client.Session(cmdCtx, id)
	}
	store, err := ctx.requireHistory()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	record, err := store.Get(cmdCtx, id)
	if err != nil || record == nil {
		return nil, err
	}
	detail := api.FromRecord(record)
	return &detail, nil
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Browse analyzed sessions",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
		remote remoteFlags
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessions []api.SessionSummary
			if remote.enabled() {
				client, err := remote.client(ctx)
				if err != nil {
					return err
				}
				if sessions, err = client.History(cmd.Context(), limit); err != nil {
					return err
				}
			} else {
				store, err := ctx.requireHistory()
				if err != nil {
					return err
				}
				defer store.Close()
				rows, err := api.NewHistoryService(store).List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				sessions = rows
			}

			if asJSON {
				return writeJSON(cmd, sessions)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, renderSessionTable(sessions))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	remote.bind(cmd)
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON bool
		remote remoteFlags
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Replay a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := loadSession(cmd.Context(), ctx, &remote, args[0])
			if err != nil {
				return err
			}
			if detail == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			if asJSON {
				return writeJSON(cmd, detail)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s  %s  %s\n", detail.ID, detail.AudioName, detail.Status)
			if detail.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", detail.ErrorMessage)
			}
			fmt.Fprintln(out)
			terminal := sink.NewTerminal(out)
			for _, event := range detail.Events {
				if err := terminal.Emit(cmd.Context(), event); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	remote.bind(cmd)
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			store, err := ctx.requireHistory()
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff (e.g. 720h)")
	return cmd
}

func renderSessionTable(sessions []api.SessionSummary) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		finished := "-"
		if t := api.ParseTime(s.FinishedAt); !t.IsZero() {
			finished = t.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			s.ID,
			s.AudioName,
			s.Status,
			finished,
			orDash(s.Category),
			orDash(s.Sentiment),
			strconv.Itoa(s.EventCount),
		})
	}
	return sink.RenderTable("Sessions", []string{"ID", "Audio", "Status", "Finished", "Category", "Sentiment", "Events"}, rows,
		[]sink.Alignment{sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignLeft, sink.AlignRight})
}
