package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/project"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show synthesis progress for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				proj, err := store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if proj == nil {
					return fmt.Errorf("project %s not found", args[0])
				}

				counts, err := store.SegmentStatusCounts(cmd.Context(), proj.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "%s (%s)\n", proj.Name, proj.ID)

				rows := make([][]string, 0, len(counts))
				for _, status := range project.AllStatuses() {
					if count, ok := counts[status]; ok {
						rows = append(rows, []string{string(status), strconv.Itoa(count)})
					}
				}
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable(
						[]tableColumn{{Title: "Status"}, {Title: "Segments", Numeric: true}},
						rows,
					))
				}

				running, err := store.RunningBatchJob(cmd.Context(), proj.ID)
				if err != nil {
					return err
				}
				if running != nil {
					elapsed := time.Since(running.StartedAt).Round(time.Second)
					fmt.Fprintln(out, renderStatusLine("batch", statusInfo,
						fmt.Sprintf("running for %s (job %s)", elapsed, running.ID), colorize))
					return nil
				}

				latest, err := store.LatestBatchJob(cmd.Context(), proj.ID)
				if err != nil {
					return err
				}
				if latest == nil {
					fmt.Fprintln(out, renderStatusLine("batch", statusInfo, "never run", colorize))
					return nil
				}
				kind := statusOK
				switch {
				case latest.State == project.BatchCancelled:
					kind = statusWarn
				case latest.State == project.BatchFailed, latest.Stats.Failed > 0:
					kind = statusError
				}
				message := fmt.Sprintf("%s, %d ok / %d failed / %d skipped",
					latest.State, latest.Stats.OK, latest.Stats.Failed, latest.Stats.Skipped)
				if latest.FinishedAt != nil {
					message += ", finished " + latest.FinishedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintln(out, renderStatusLine("batch", kind, message, colorize))
				return nil
			})
		},
	}
}
