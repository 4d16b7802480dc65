package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"dubber/internal/project"
	"dubber/internal/registry"
)

func newSynthCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "synth <project-id> <segment-index>",
		Short: "Synthesize a single segment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid segment index %q", args[1])
			}
			return ctx.withStore(func(store *project.Store) error {
				pipe, err := ctx.newPipeline(store)
				if err != nil {
					return err
				}
				proj, err := store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if proj == nil {
					return fmt.Errorf("project %s not found", args[0])
				}
				var seg *project.Segment
				for _, candidate := range proj.Segments {
					if candidate.Index == index {
						seg = candidate
						break
					}
				}
				if seg == nil {
					return fmt.Errorf("segment %d not found in project %s", index, proj.ID)
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				key := registry.Key{ClientID: ctx.clientID(), ProjectID: proj.ID}
				pipe.registry.Register(key)
				defer pipe.registry.Release(key)

				out := cmd.OutOrStdout()
				if err := pipe.synthesizer.Process(signalCtx, key, proj, seg, force); err != nil {
					return err
				}
				fmt.Fprintf(out, "Segment %d synthesized: %s (%.1fs at speed %.2f, %d correction rounds)\n",
					seg.Index,
					seg.AudioPath,
					float64(seg.AudioDurationMS)/1000,
					seg.Speed,
					seg.SpeedRounds+seg.TextRounds,
				)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-synthesize even if the segment is already ok")
	return cmd
}
