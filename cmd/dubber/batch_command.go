package main

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/batch"
	"dubber/internal/project"
	"dubber/internal/registry"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var workers int

	cmd := &cobra.Command{
		Use:   "batch <project-id>",
		Short: "Synthesize every pending segment of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				pipe, err := ctx.newPipeline(store)
				if err != nil {
					return err
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				out := cmd.OutOrStdout()
				key := registry.Key{ClientID: ctx.clientID(), ProjectID: args[0]}
				stopProgress := startProgressPrinter(out, pipe.registry, key)

				job, err := pipe.orchestrator.Run(signalCtx, args[0], batch.Options{
					ClientID: ctx.clientID(),
					Force:    force,
					Workers:  workers,
				})
				stopProgress()
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Batch %s %s\n", job.ID, job.State)
				rows := [][]string{
					{"ok", strconv.Itoa(job.Stats.OK)},
					{"speed adjusted", strconv.Itoa(job.Stats.SpeedAdjusted)},
					{"text adjusted", strconv.Itoa(job.Stats.TextAdjusted)},
					{"failed", strconv.Itoa(job.Stats.Failed)},
					{"skipped", strconv.Itoa(job.Stats.Skipped)},
					{"total", strconv.Itoa(job.Stats.Total())},
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{{Title: "Outcome"}, {Title: "Segments", Numeric: true}},
					rows,
				))
				if job.State != project.BatchCompleted || job.Stats.Failed > 0 {
					fmt.Fprintln(out, "Failed and skipped segments become silence when the track is assembled; rerun `dubber batch` to retry them.")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-synthesize segments that are already ok")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker pool size (defaults to the configured value)")
	return cmd
}

// startProgressPrinter polls the registry snapshot for the running batch and
// prints each new progress message. The returned stop function blocks until
// the printer exits, so the caller can write to out afterwards.
func startProgressPrinter(out io.Writer, reg *registry.Registry, key registry.Key) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		var last string
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				event, ok := reg.Snapshot(key)
				if !ok || event.Message == last {
					continue
				}
				last = event.Message
				fmt.Fprintf(out, "%5.1f%% %s\n", event.Percent, event.Message)
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
