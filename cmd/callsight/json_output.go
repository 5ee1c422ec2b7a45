package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"callsight/internal/pipeline"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// frameWriter prints raw SSE frames, matching what callsightd streams.
type frameWriter struct {
	out io.Writer
}

func (f frameWriter) Emit(_ context.Context, event pipeline.Event) error {
	frame, err := event.Frame()
	if err != nil {
		return err
	}
	_, err = f.out.Write(frame)
	return err
}
