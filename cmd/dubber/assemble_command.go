package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dubber/internal/project"
	"dubber/internal/timeline"
)

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <project-id>",
		Short: "Merge synthesized segments into one audio track",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				pipe, err := ctx.newPipeline(store)
				if err != nil {
					return err
				}
				if err := pipe.encoder.CheckDependencies(); err != nil {
					return fmt.Errorf("ffmpeg is required to assemble: %w", err)
				}
				proj, err := store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if proj == nil {
					return fmt.Errorf("project %s not found", args[0])
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				track, err := pipe.assembler.Assemble(signalCtx, proj)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Merged track: %s\n", track.OutputPath)
				fmt.Fprintf(out, "Duration: %s, measured %s (%d spans, %d silence)\n",
					project.FormatTimestamp(track.TotalDurationMS),
					project.FormatTimestamp(track.MeasuredDurationMS),
					len(track.Spans),
					countSilenceSpans(track.Spans),
				)
				return nil
			})
		},
		Args: cobra.ExactArgs(1),
	}
}

func countSilenceSpans(spans []timeline.Span) int {
	count := 0
	for _, span := range spans {
		if span.Kind == timeline.SpanSilence {
			count++
		}
	}
	return count
}
