package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dubber/internal/config"
	"dubber/internal/language"
	"dubber/internal/project"
)

// defaultClientID owns projects imported without an explicit --client.
const defaultClientID = "cli"

func newImportCommand(ctx *commandContext) *cobra.Command {
	var name string
	var sourceLang string
	var targetLang string

	cmd := &cobra.Command{
		Use:   "import <subtitles.srt>",
		Short: "Import an SRT file as a new dubbing project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve subtitle path: %w", err)
			}
			segments, err := project.ParseSRT(path)
			if err != nil {
				return err
			}

			client := ctx.clientID()
			if client == "" {
				client = defaultClientID
			}
			proj := &project.Project{
				ClientID:       client,
				Name:           strings.TrimSpace(name),
				SourceLanguage: language.Normalize(sourceLang),
				TargetLanguage: language.Normalize(targetLang),
				Segments:       segments,
			}
			if proj.Name == "" {
				proj.Name = projectNameFromPath(path)
			}

			return ctx.withStore(func(store *project.Store) error {
				if err := store.CreateProject(cmd.Context(), proj); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d segments into project %s\n", len(segments), proj.ID)
				fmt.Fprintf(out, "Languages: %s -> %s\n",
					language.DisplayName(proj.SourceLanguage),
					language.DisplayName(proj.TargetLanguage),
				)
				speakers := countSpeakers(segments)
				if len(speakers) > 0 {
					rows := make([][]string, 0, len(speakers))
					for _, sp := range speakers {
						rows = append(rows, []string{sp.name, fmt.Sprintf("%d", sp.count)})
					}
					fmt.Fprintln(out, renderTable(
						[]tableColumn{{Title: "Speaker"}, {Title: "Segments", Numeric: true}},
						rows,
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name (defaults to the file name)")
	cmd.Flags().StringVar(&sourceLang, "source-lang", "zh", "Source subtitle language")
	cmd.Flags().StringVar(&targetLang, "target-lang", "en", "Target dubbing language")
	return cmd
}

func projectNameFromPath(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}

type speakerCount struct {
	name  string
	count int
}

func countSpeakers(segments []*project.Segment) []speakerCount {
	counts := make(map[string]int)
	order := make([]string, 0, 4)
	for _, seg := range segments {
		name := seg.Speaker
		if name == "" {
			name = "(none)"
		}
		if _, ok := counts[name]; !ok {
			order = append(order, name)
		}
		counts[name]++
	}
	result := make([]speakerCount, 0, len(order))
	for _, name := range order {
		result = append(result, speakerCount{name: name, count: counts[name]})
	}
	return result
}
