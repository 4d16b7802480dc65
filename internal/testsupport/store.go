package testsupport

import (
	"context"
	"testing"

	"dubber/internal/config"
	"dubber/internal/project"
)

// MustOpenStore opens a project.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *project.Store {
	t.Helper()

	store, err := project.Open(cfg)
	if err != nil {
		t.Fatalf("project.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject creates a project with the given segments for tests.
func NewProject(t testing.TB, store *project.Store, proj *project.Project) *project.Project {
	t.Helper()

	if proj == nil {
		proj = &project.Project{}
	}
	if proj.ClientID == "" {
		proj.ClientID = "test-client"
	}
	if proj.Name == "" {
		proj.Name = "test project"
	}
	if proj.SourceLanguage == "" {
		proj.SourceLanguage = "zh"
	}
	if proj.TargetLanguage == "" {
		proj.TargetLanguage = "en"
	}
	if err := store.CreateProject(context.Background(), proj); err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	created, err := store.GetProject(context.Background(), proj.ID)
	if err != nil {
		t.Fatalf("store.GetProject: %v", err)
	}
	if created == nil {
		t.Fatalf("project %s missing after create", proj.ID)
	}
	return created
}

// Segment builds a cue for test projects.
func Segment(index int, startMS, endMS int64, text string) *project.Segment {
	return &project.Segment{
		Index:   index,
		StartMS: startMS,
		EndMS:   endMS,
		Speaker: "SPEAKER_00",
		Text:    text,
	}
}
