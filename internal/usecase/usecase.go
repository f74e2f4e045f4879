package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kyleeasterly/stream-clipper/internal/domain/timeline"
	"github.com/kyleeasterly/stream-clipper/internal/ports"
	"github.com/kyleeasterly/stream-clipper/internal/scratch"
	"github.com/kyleeasterly/stream-clipper/internal/types"
)

// DefaultParallelism caps simultaneous extraction processes when the caller
// does not choose a bound.
const DefaultParallelism = 4

type Deps struct {
	Video ports.VideoTool
	Log   *slog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type Input struct {
	Source string
	Ranges []timeline.Range
	Output string

	// GapThreshold is the merge distance in seconds; negative is invalid.
	GapThreshold float64
	// Parallelism bounds concurrent extractions; <=0 means DefaultParallelism.
	Parallelism int
	// ScratchDir overrides the platform temp directory; used in tests.
	ScratchDir string
}

type Result struct {
	Output string
	Merged []timeline.Range
	Trace  types.Trace
}

// CreateClip assembles one output file from the selected ranges of the
// source: merge nearby ranges, extract each merged range in parallel with a
// bounded pool, then losslessly concat the pieces in ordinal order. Every
// temp artifact is released before return on success and on every failure
// path. The output file appears at in.Output only after a successful concat.
func (u Usecase) CreateClip(ctx context.Context, in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	merged := timeline.Merge(in.Ranges, in.GapThreshold)
	u.d.Log.Info("ranges merged", "requested", len(in.Ranges), "merged", len(merged))

	sc, err := scratch.New(in.ScratchDir, u.d.Log)
	if err != nil {
		return Result{}, err
	}
	defer sc.Release()

	segPaths, err := u.extractAll(ctx, in, merged, sc)
	if err != nil {
		return Result{}, err
	}

	listPath := sc.ListPath()
	if err := writeConcatList(listPath, segPaths); err != nil {
		return Result{}, err
	}

	staging := sc.StagingPath(outputExt(in.Output))
	if err := u.d.Video.Concat(ctx, listPath, staging); err != nil {
		return Result{}, err
	}
	if err := replaceFile(staging, in.Output); err != nil {
		return Result{}, fmt.Errorf("move output into place: %w", err)
	}
	u.d.Log.Info("clip assembled", "output", in.Output, "segments", len(segPaths))

	trace := types.Trace{
		Source: in.Source,
		Output: in.Output,
		Token:  sc.Token(),
	}
	for i, r := range merged {
		trace.Segments = append(trace.Segments, types.TraceSegment{
			Ordinal:  i,
			StartSec: r.Start,
			EndSec:   r.End,
			File:     filepath.Base(segPaths[i]),
		})
	}
	return Result{Output: in.Output, Merged: merged, Trace: trace}, nil
}

// extractAll runs one extraction job per merged range with at most
// in.Parallelism external processes in flight. Results land in a slice
// indexed by ordinal, so completion order never influences concat order.
// After the first failure, queued jobs are skipped; jobs already running
// finish naturally and the aggregate error carries the first failure.
func (u Usecase) extractAll(ctx context.Context, in Input, merged []timeline.Range, sc *scratch.Dir) ([]string, error) {
	limit := in.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	ext := outputExt(in.Source)

	out := make([]string, len(merged))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range merged {
		i, r := i, r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := sc.SegmentPath(i, ext)
			u.d.Log.Debug("extracting segment",
				"ordinal", i, "start", r.Start, "end", r.End, "file", filepath.Base(path))
			// Runs under the caller's context, not the group's: a sibling
			// failure must not kill an extraction already in progress.
			if err := u.d.Video.ExtractSegment(ctx, in.Source, r.Start, r.Duration(), path); err != nil {
				return fmt.Errorf("extract segment %03d (%.3f-%.3f): %w", i, r.Start, r.End, err)
			}
			out[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func validate(in Input) error {
	if in.Source == "" {
		return &ports.ValidationError{Reason: "source path is empty"}
	}
	if _, err := os.Stat(in.Source); err != nil {
		return &ports.ValidationError{Reason: fmt.Sprintf("source: %v", err)}
	}
	if in.Output == "" {
		return &ports.ValidationError{Reason: "output path is empty"}
	}
	if len(in.Ranges) == 0 {
		return &ports.ValidationError{Reason: "no ranges selected"}
	}
	for i, r := range in.Ranges {
		if !r.Valid() {
			return &ports.ValidationError{Reason: fmt.Sprintf("range %d (%v-%v) is invalid", i, r.Start, r.End)}
		}
	}
	if in.GapThreshold < 0 {
		return &ports.ValidationError{Reason: "gap threshold must be >= 0"}
	}
	return nil
}

// writeConcatList writes the concat-demuxer manifest: one ordinal-ordered
// line per segment. This file, not extraction completion order, fixes the
// output order.
func writeConcatList(path string, segPaths []string) error {
	var b strings.Builder
	for _, p := range segPaths {
		b.WriteString(concatEntry(p))
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// concatEntry quotes a path the way the concat demuxer expects; embedded
// single quotes close the quote, escape, and reopen.
func concatEntry(p string) string {
	return "file '" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}

// replaceFile moves staging onto dest, falling back to copy+remove when the
// destination is on another filesystem.
func replaceFile(staging, dest string) error {
	if err := os.Rename(staging, dest); err == nil {
		return nil
	}
	src, err := os.Open(staging)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dest)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	// Staging lives in the scratch dir; Release sweeps it up regardless.
	_ = os.Remove(staging)
	return nil
}

func outputExt(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		return ext
	}
	return ".mp4"
}
