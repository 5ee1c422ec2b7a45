package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"callsight/internal/api"
	"callsight/internal/fileutil"
	"callsight/internal/history"
	"callsight/internal/pipeline"
	"callsight/internal/sink"
)

type analyzeOptions struct {
	tasks   []string
	all     bool
	json    bool
	remote  string
	token   string
	timeout time.Duration
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <audio>",
		Short: "Analyze one call recording",
		Long: `Analyze one call recording and render each stage as it finishes.

Stages: transcription, diarization, speaking_speed, pii, profanity,
required_phrases, sentiment, category. Display names such as "PII Check" are
accepted too. The summary table is always produced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audioPath, err := resolveAudioPath(args[0])
			if err != nil {
				return err
			}
			tasks := opts.taskNames()
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No stages requested; only the summary will be produced (use --tasks or --all).")
			}

			runCtx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, opts.timeout)
				defer cancel()
			}

			var emitter pipeline.Emitter = sink.NewTerminal(cmd.OutOrStdout())
			if opts.json {
				emitter = frameWriter{out: cmd.OutOrStdout()}
			}

			if strings.TrimSpace(opts.remote) != "" {
				return analyzeRemote(runCtx, ctx, opts, audioPath, tasks, emitter)
			}
			return analyzeLocal(runCtx, cmd, ctx, audioPath, tasks, emitter)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.tasks, "tasks", "t", nil, "Stages to run (comma separated or repeated)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Run every stage")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print raw event frames instead of rendering")
	cmd.Flags().StringVar(&opts.remote, "remote", "", "Analyze on a callsightd instance (e.g. http://host:8787)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token for --remote (defaults to [server].api_token)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Abort the session after this long (0 disables)")
	return cmd
}

func (o analyzeOptions) taskNames() []string {
	if o.all {
		return pipeline.AllStages().Names()
	}
	return o.tasks
}

func analyzeLocal(runCtx context.Context, cmd *cobra.Command, ctx *commandContext, audioPath string, tasks []string, emitter pipeline.Emitter) error {
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

	session := pipeline.NewSession(audioPath, pipeline.ParseStages(tasks, logger))
	recorder := &sink.Recorder{}
	started := time.Now()
	runErr := eng.Run(runCtx, session, sink.Tee{emitter, recorder})

	if store != nil {
		entry := history.NewEntry(session, runErr, started, time.Now(), recorder.Events())
		if digest, _, err := fileutil.DigestFile(audioPath); err == nil {
			entry.AudioSHA256 = digest
		}
		store.SaveLogged(context.WithoutCancel(runCtx), entry, logger)
	}
	if runErr != nil {
		return fmt.Errorf("analyze %s: %w", session.ID, runErr)
	}
	return nil
}

func analyzeRemote(runCtx context.Context, ctx *commandContext, opts analyzeOptions, audioPath string, tasks []string, emitter pipeline.Emitter) error {
	token := strings.TrimSpace(opts.token)
	if token == "" {
		if cfg, err := ctx.ensureConfig(); err == nil {
			token = cfg.Server.APIToken
		}
	}
	client, err := api.NewClient(opts.remote, token)
	if err != nil {
		return err
	}
	err = client.ProcessCall(runCtx, audioPath, tasks, func(event pipeline.Event) error {
		return emitter.Emit(runCtx, event)
	})
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("remote analysis rejected: %w", err)
	}
	return err
}
