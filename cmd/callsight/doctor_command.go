package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callsight/internal/deps"
	"callsight/internal/language"
	"callsight/internal/preflight"
	"callsight/internal/sink"
	"callsight/internal/stage"
)

type doctorReport struct {
	Language     string             `json:"language"`
	Preflight    []preflight.Result `json:"preflight"`
	Dependencies []deps.Status      `json:"dependencies"`
	Adapters     []stage.Health     `json:"adapters"`
}

func (r doctorReport) problems() int {
	n := len(preflight.Failed(r.Preflight)) + len(deps.MissingRequired(r.Dependencies))
	for _, h := range r.Adapters {
		if !h.Ready {
			n++
		}
	}
	return n
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external binaries and adapters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := doctorReport{
				Language:     language.DisplayName(cfg.Transcription.Language),
				Preflight:    preflight.RunAll(cmd.Context(), cfg),
				Dependencies: deps.Check(cfg),
			}
			eng, _, err := ctx.engine(cmd)
			if err != nil {
				return err
			}
			report.Adapters = eng.Health(cmd.Context())

			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderDoctor(cmd, report)
			}
			if n := report.problems(); n > 0 {
				return fmt.Errorf("%d problem(s) found", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderDoctor(cmd *cobra.Command, report doctorReport) {
	out := cmd.OutOrStdout()
	colorize := sink.ShouldColorize(out)
	var lines []string

	lines = append(lines, sink.RenderSectionHeader("Environment", colorize)...)
	lines = append(lines, sink.RenderStatusLine("Transcription language", sink.StatusInfo, report.Language, colorize))
	for _, r := range report.Preflight {
		kind := sink.StatusOK
		if !r.Passed {
			kind = sink.StatusError
		}
		lines = append(lines, sink.RenderStatusLine(r.Name, kind, r.Detail, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, sink.RenderSectionHeader("Dependencies", colorize)...)
	for _, dep := range report.Dependencies {
		kind, detail := sink.StatusOK, dep.Command
		switch {
		case !dep.Available && dep.Optional:
			kind, detail = sink.StatusWarn, dep.Detail
		case !dep.Available:
			kind, detail = sink.StatusError, dep.Detail
		}
		lines = append(lines, sink.RenderStatusLine(dep.Name, kind, detail, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, sink.RenderSectionHeader("Adapters", colorize)...)
	for _, h := range report.Adapters {
		kind := sink.StatusOK
		if !h.Ready {
			kind = sink.StatusError
		}
		lines = append(lines, sink.RenderStatusLine(h.Name, kind, h.Detail, colorize))
	}

	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
