package timeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"dubber/internal/logging"
	"dubber/internal/project"
	"dubber/internal/services"
	"dubber/internal/testsupport"
	"dubber/internal/timeline"
)

type fakeEncoder struct {
	mu       sync.Mutex
	silences []int64
	concats  [][]string
	probeMS  int64
}

func (f *fakeEncoder) Silence(_ context.Context, durationMS int64, outPath string) error {
	f.mu.Lock()
	f.silences = append(f.silences, durationMS)
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("silence"), 0o644)
}

func (f *fakeEncoder) Concat(_ context.Context, inputs []string, outPath string) error {
	f.mu.Lock()
	f.concats = append(f.concats, append([]string(nil), inputs...))
	f.mu.Unlock()
	return os.WriteFile(outPath, []byte("merged"), 0o644)
}

func (f *fakeEncoder) Probe(context.Context, string) (int64, error) {
	return f.probeMS, nil
}

func okSegment(index int, startMS, endMS, audioMS int64) *project.Segment {
	seg := testsupport.Segment(index, startMS, endMS, "文本")
	seg.ID = fmt.Sprintf("seg-%d", index)
	seg.Status = project.StatusOK
	seg.AudioPath = filepath.Join("/audio", fmt.Sprintf("seg-%d.mp3", index))
	seg.AudioDurationMS = audioMS
	return seg
}

func newAssembler(t *testing.T) (*timeline.Assembler, *fakeEncoder) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	encoder := &fakeEncoder{}
	return timeline.New(cfg, encoder, logging.NewNop()), encoder
}

func TestPlanCursorWalk(t *testing.T) {
	assembler, _ := newAssembler(t)

	failed := testsupport.Segment(3, 7000, 9000, "失败")
	failed.ID = "seg-3"
	failed.Status = project.StatusFailed

	proj := &project.Project{
		ID: "proj-1",
		Segments: []*project.Segment{
			okSegment(1, 1000, 3000, 2000),
			okSegment(2, 4000, 6000, 2500),
			failed,
		},
	}

	spans, err := assembler.Plan(proj)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []struct {
		kind       timeline.SpanKind
		startMS    int64
		durationMS int64
	}{
		{timeline.SpanSilence, 0, 1000},    // leading gap
		{timeline.SpanAudio, 1000, 2000},   // segment 1
		{timeline.SpanSilence, 3000, 1000}, // gap to segment 2
		{timeline.SpanAudio, 4000, 2500},   // segment 2 overruns its cue
		{timeline.SpanSilence, 6500, 500},  // shortened gap after overrun
		{timeline.SpanSilence, 7000, 2000}, // failed segment holds its window
	}
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %d: %#v", len(want), len(spans), spans)
	}
	for i, w := range want {
		got := spans[i]
		if got.Kind != w.kind || got.StartMS != w.startMS || got.DurationMS != w.durationMS {
			t.Fatalf("span %d = %#v, want %+v", i, got, w)
		}
	}
}

func TestPlanOverrunSwallowsGap(t *testing.T) {
	assembler, _ := newAssembler(t)

	proj := &project.Project{
		ID: "proj-1",
		Segments: []*project.Segment{
			okSegment(1, 0, 2000, 3500),
			okSegment(2, 3000, 5000, 1000),
		},
	}

	spans, err := assembler.Plan(proj)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected no silence between overlapping spans, got %#v", spans)
	}
	// The second segment starts late because the first one overran; its
	// audio is never truncated.
	if spans[1].StartMS != 3500 || spans[1].DurationMS != 1000 {
		t.Fatalf("unexpected second span: %#v", spans[1])
	}
}

func TestPlanNotReadyWhileProcessing(t *testing.T) {
	assembler, _ := newAssembler(t)

	pending := testsupport.Segment(1, 0, 1000, "文本")
	proj := &project.Project{ID: "proj-1", Segments: []*project.Segment{pending}}

	_, err := assembler.Plan(proj)
	if !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("expected ErrNotReady for pending segment, got %v", err)
	}

	pending.Status = project.StatusSynthesizing
	if _, err := assembler.Plan(proj); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("expected ErrNotReady for in-flight segment, got %v", err)
	}
}

func TestPlanRejectsOkSegmentWithoutAudio(t *testing.T) {
	assembler, _ := newAssembler(t)

	broken := testsupport.Segment(1, 0, 1000, "文本")
	broken.Status = project.StatusOK
	proj := &project.Project{ID: "proj-1", Segments: []*project.Segment{broken}}

	_, err := assembler.Plan(proj)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	assembler, _ := newAssembler(t)

	proj := &project.Project{
		ID: "proj-1",
		Segments: []*project.Segment{
			okSegment(2, 4000, 6000, 2000),
			okSegment(1, 1000, 3000, 2000),
		},
	}

	first, err := assembler.Plan(proj)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	second, err := assembler.Plan(proj)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("plans differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("plan span %d differs: %#v vs %#v", i, first[i], second[i])
		}
	}
	if first[0].Kind != timeline.SpanSilence || first[1].SegmentID != "seg-1" {
		t.Fatalf("expected segments ordered by start time, got %#v", first)
	}
}

func TestAssembleGeneratesSilenceAndConcatenates(t *testing.T) {
	assembler, encoder := newAssembler(t)
	encoder.probeMS = 4000

	skipped := testsupport.Segment(2, 3000, 4000, "跳过")
	skipped.ID = "seg-2"
	skipped.Status = project.StatusSkipped

	proj := &project.Project{
		ID: "proj-1",
		Segments: []*project.Segment{
			okSegment(1, 1000, 3000, 2000),
			skipped,
		},
	}

	track, err := assembler.Assemble(context.Background(), proj)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if track.TotalDurationMS != 4000 {
		t.Fatalf("expected total 4000ms, got %d", track.TotalDurationMS)
	}
	// The merged file is probed to verify what was actually written.
	if track.MeasuredDurationMS != 4000 {
		t.Fatalf("expected measured 4000ms, got %d", track.MeasuredDurationMS)
	}
	if len(track.Spans) != 3 {
		t.Fatalf("expected 3 spans, got %#v", track.Spans)
	}
	if filepath.Base(track.OutputPath) != "merged.mp3" {
		t.Fatalf("unexpected output path %q", track.OutputPath)
	}

	if len(encoder.silences) != 2 {
		t.Fatalf("expected 2 silence files, got %v", encoder.silences)
	}
	if encoder.silences[0] != 1000 || encoder.silences[1] != 1000 {
		t.Fatalf("unexpected silence durations: %v", encoder.silences)
	}
	if len(encoder.concats) != 1 || len(encoder.concats[0]) != 3 {
		t.Fatalf("expected one concat of 3 inputs, got %v", encoder.concats)
	}
	// The real audio file is passed through untouched.
	if encoder.concats[0][1] != proj.Segments[0].AudioPath {
		t.Fatalf("expected segment audio in concat inputs, got %v", encoder.concats[0])
	}
}

func TestAssembleEmptyProject(t *testing.T) {
	assembler, _ := newAssembler(t)

	_, err := assembler.Assemble(context.Background(), &project.Project{ID: "proj-1"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty project, got %v", err)
	}
}
