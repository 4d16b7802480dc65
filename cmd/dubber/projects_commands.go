package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dubber/internal/language"
	"dubber/internal/project"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:   "projects",
		Short: "Inspect and manage dubbing projects",
	}

	projectsCmd.AddCommand(newProjectsListCommand(ctx))
	projectsCmd.AddCommand(newProjectsShowCommand(ctx))
	projectsCmd.AddCommand(newProjectsDeleteCommand(ctx))

	return projectsCmd
}

func newProjectsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				projects, err := store.ListProjects(cmd.Context(), ctx.clientID())
				if err != nil {
					return err
				}
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects")
					return nil
				}
				rows := make([][]string, 0, len(projects))
				for _, proj := range projects {
					rows = append(rows, []string{
						proj.ID,
						proj.Name,
						fmt.Sprintf("%s -> %s", proj.SourceLanguage, proj.TargetLanguage),
						strconv.Itoa(len(proj.Segments)),
						proj.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]tableColumn{
						{Title: "ID"},
						{Title: "Name"},
						{Title: "Languages"},
						{Title: "Segments", Numeric: true},
						{Title: "Created"},
					},
					rows,
				))
				return nil
			})
		},
	}
}

func newProjectsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project's segments",
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
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", proj.Name, proj.ID)
				fmt.Fprintf(out, "Languages: %s -> %s\n\n",
					language.DisplayName(proj.SourceLanguage),
					language.DisplayName(proj.TargetLanguage),
				)
				rows := make([][]string, 0, len(proj.Segments))
				for _, seg := range proj.Segments {
					rows = append(rows, []string{
						strconv.Itoa(seg.Index),
						project.FormatTimestamp(seg.StartMS),
						project.FormatTimestamp(seg.EndMS),
						seg.Speaker,
						string(seg.Status),
						fmt.Sprintf("%.2f", seg.Speed),
						truncateText(seg.Text, 40),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]tableColumn{
						{Title: "#", Numeric: true},
						{Title: "Start"},
						{Title: "End"},
						{Title: "Speaker"},
						{Title: "Status"},
						{Title: "Speed", Numeric: true},
						{Title: "Text"},
					},
					rows,
				))
				return nil
			})
		},
	}
}

func newProjectsDeleteCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project and its segments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *project.Store) error {
				out := cmd.OutOrStdout()
				if all {
					client := ctx.clientID()
					if client == "" {
						return errors.New("--all requires --client")
					}
					deleted, err := store.DeleteProjectsByClient(cmd.Context(), client)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %d projects for client %s\n", deleted, client)
					return nil
				}
				if len(args) == 0 {
					return errors.New("project id is required (or use --all with --client)")
				}
				if err := store.DeleteProject(cmd.Context(), args[0]); err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return fmt.Errorf("project %s not found", args[0])
					}
					return err
				}
				fmt.Fprintf(out, "Deleted project %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every project owned by --client")
	return cmd
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
