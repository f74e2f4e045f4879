package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kyleeasterly/stream-clipper/internal/domain/timeline"
	"github.com/kyleeasterly/stream-clipper/internal/ports"
)

func testUsecase(v ports.VideoTool) Usecase {
	return New(Deps{
		Video: v,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(src, []byte("source"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return src
}

func TestCreateClip_AssemblesInOrdinalOrder(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	scratchBase := t.TempDir()
	out := filepath.Join(t.TempDir(), "final.mp4")

	// Jittered completion order; the concat manifest must still follow
	// ascending start time.
	video := &fakeVideoTool{failStart: -1, jitter: true}
	res, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:       src,
		Ranges:       []timeline.Range{{Start: 20, End: 25}, {Start: 0, End: 5}, {Start: 6, End: 10}},
		Output:       out,
		GapThreshold: 2.0,
		Parallelism:  4,
		ScratchDir:   scratchBase,
	})
	if err != nil {
		t.Fatalf("create clip: %v", err)
	}

	wantMerged := []timeline.Range{{Start: 0, End: 10}, {Start: 20, End: 25}}
	if len(res.Merged) != 2 || res.Merged[0] != wantMerged[0] || res.Merged[1] != wantMerged[1] {
		t.Fatalf("merged = %v, want %v", res.Merged, wantMerged)
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got, want := string(b), "seg[0.000+10.000]seg[20.000+5.000]"; got != want {
		t.Fatalf("output content = %q, want %q", got, want)
	}

	if len(res.Trace.Segments) != 2 {
		t.Fatalf("trace segments = %d, want 2", len(res.Trace.Segments))
	}
	for i, s := range res.Trace.Segments {
		if s.Ordinal != i {
			t.Fatalf("trace segment %d has ordinal %d", i, s.Ordinal)
		}
		if s.StartSec != wantMerged[i].Start || s.EndSec != wantMerged[i].End {
			t.Fatalf("trace segment %d covers %v-%v, want %v", i, s.StartSec, s.EndSec, wantMerged[i])
		}
		if !strings.Contains(s.File, res.Trace.Token) {
			t.Fatalf("trace segment file %q missing run token %q", s.File, res.Trace.Token)
		}
	}

	assertNoScratchLeft(t, scratchBase)
}

func TestCreateClip_SingleRange(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	out := filepath.Join(t.TempDir(), "final.mp4")
	video := &fakeVideoTool{failStart: -1}

	res, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:       src,
		Ranges:       []timeline.Range{{Start: 3.5, End: 9.25}},
		Output:       out,
		GapThreshold: 2.0,
		ScratchDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create clip: %v", err)
	}
	if len(res.Merged) != 1 || res.Merged[0] != (timeline.Range{Start: 3.5, End: 9.25}) {
		t.Fatalf("merged = %v, want the input range unchanged", res.Merged)
	}
	if got := video.extractCount(); got != 1 {
		t.Fatalf("extract calls = %d, want 1", got)
	}
	if len(video.concatLists) != 1 || len(video.concatLists[0]) != 1 {
		t.Fatalf("expected exactly one concat manifest line, got %v", video.concatLists)
	}
}

func TestCreateClip_ConcurrencyBound(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	video := &fakeVideoTool{failStart: -1, delay: 15 * time.Millisecond}

	var ranges []timeline.Range
	for i := 0; i < 8; i++ {
		start := float64(i * 10)
		ranges = append(ranges, timeline.Range{Start: start, End: start + 1})
	}

	_, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:       src,
		Ranges:       ranges,
		Output:       filepath.Join(t.TempDir(), "final.mp4"),
		GapThreshold: 2.0,
		Parallelism:  2,
		ScratchDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("create clip: %v", err)
	}
	if got := video.extractCount(); got != 8 {
		t.Fatalf("extract calls = %d, want 8", got)
	}
	if video.maxInFlight > 2 {
		t.Fatalf("observed %d concurrent extractions, pool capacity is 2", video.maxInFlight)
	}
}

func TestCreateClip_MissingSource(t *testing.T) {
	t.Parallel()

	scratchBase := t.TempDir()
	video := &fakeVideoTool{failStart: -1}

	_, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:     filepath.Join(t.TempDir(), "nope.mp4"),
		Ranges:     []timeline.Range{{Start: 0, End: 5}},
		Output:     filepath.Join(t.TempDir(), "final.mp4"),
		ScratchDir: scratchBase,
	})

	var vErr *ports.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if got := video.extractCount(); got != 0 {
		t.Fatalf("expected no extractions, got %d", got)
	}
	assertNoScratchLeft(t, scratchBase)
}

func TestCreateClip_ValidationFailures(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	out := filepath.Join(t.TempDir(), "final.mp4")

	cases := []struct {
		name string
		in   Input
	}{
		{"empty ranges", Input{Source: src, Output: out}},
		{"inverted range", Input{Source: src, Output: out, Ranges: []timeline.Range{{Start: 5, End: 5}}}},
		{"negative start", Input{Source: src, Output: out, Ranges: []timeline.Range{{Start: -1, End: 5}}}},
		{"negative gap", Input{Source: src, Output: out, Ranges: []timeline.Range{{Start: 0, End: 5}}, GapThreshold: -1}},
		{"empty output", Input{Source: src, Ranges: []timeline.Range{{Start: 0, End: 5}}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := testUsecase(&fakeVideoTool{failStart: -1}).CreateClip(context.Background(), tc.in)
			var vErr *ports.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestCreateClip_ExtractionFailureSkipsConcat(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	scratchBase := t.TempDir()
	out := filepath.Join(t.TempDir(), "final.mp4")

	// Middle of three merged ranges fails; siblings may complete, but their
	// results must be discarded and every temp file removed.
	video := &fakeVideoTool{failStart: 10}
	_, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:       src,
		Ranges:       []timeline.Range{{Start: 0, End: 5}, {Start: 10, End: 15}, {Start: 20, End: 25}},
		Output:       out,
		GapThreshold: 2.0,
		Parallelism:  3,
		ScratchDir:   scratchBase,
	})

	var spErr *ports.SubprocessError
	if !errors.As(err, &spErr) {
		t.Fatalf("expected SubprocessError, got %T: %v", err, err)
	}
	if spErr.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", spErr.ExitCode)
	}
	if len(video.concatLists) != 0 {
		t.Fatalf("concat must not run after an extraction failure")
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("no output expected, stat err=%v", statErr)
	}
	assertNoScratchLeft(t, scratchBase)
}

func TestCreateClip_ConcatFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	src := writeSource(t)
	scratchBase := t.TempDir()
	out := filepath.Join(t.TempDir(), "final.mp4")

	video := &fakeVideoTool{failStart: -1, failConcat: true}
	_, err := testUsecase(video).CreateClip(context.Background(), Input{
		Source:       src,
		Ranges:       []timeline.Range{{Start: 0, End: 5}},
		Output:       out,
		GapThreshold: 2.0,
		ScratchDir:   scratchBase,
	})

	var spErr *ports.SubprocessError
	if !errors.As(err, &spErr) {
		t.Fatalf("expected SubprocessError, got %T: %v", err, err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatalf("destination must stay absent after concat failure, stat err=%v", statErr)
	}
	assertNoScratchLeft(t, scratchBase)
}

func TestConcatEntryQuoting(t *testing.T) {
	t.Parallel()

	if got, want := concatEntry("/tmp/plain.mp4"), "file '/tmp/plain.mp4'"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := concatEntry("/tmp/it's.mp4"), `file '/tmp/it'\''s.mp4'`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func assertNoScratchLeft(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	if err != nil {
		t.Fatalf("read scratch base: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("scratch artifacts left behind: %v", names)
	}
}

// fakeVideoTool writes a marker per segment so the assembled output's content
// reveals concat order, and tracks in-flight extractions to observe the pool
// bound.
type fakeVideoTool struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	extracts    []float64
	concatLists [][]string

	failStart  float64 // extraction starting here fails; -1 disables
	failConcat bool
	delay      time.Duration
	jitter     bool
}

func (f *fakeVideoTool) ExtractSegment(_ context.Context, _ string, startSec, durationSec float64, outPath string) error {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.extracts = append(f.extracts, startSec)
		f.mu.Unlock()
	}()

	if startSec == f.failStart {
		return &ports.SubprocessError{Tool: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found when processing input"}
	}
	marker := fmt.Sprintf("seg[%.3f+%.3f]", startSec, durationSec)
	return os.WriteFile(outPath, []byte(marker), 0o644)
}

func (f *fakeVideoTool) Concat(_ context.Context, listPath, outPath string) error {
	b, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}
	var paths []string
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		line = strings.TrimSuffix(strings.TrimPrefix(line, "file '"), "'")
		paths = append(paths, line)
	}

	f.mu.Lock()
	f.concatLists = append(f.concatLists, paths)
	f.mu.Unlock()

	if f.failConcat {
		return &ports.SubprocessError{Tool: "ffmpeg", ExitCode: 1, Stderr: "concat: corrupt input"}
	}

	var joined strings.Builder
	for _, p := range paths {
		seg, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		joined.Write(seg)
	}
	return os.WriteFile(outPath, []byte(joined.String()), 0o644)
}

func (f *fakeVideoTool) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	return time.Hour, nil
}

func (f *fakeVideoTool) extractCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extracts)
}
