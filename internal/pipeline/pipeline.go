package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kyleeasterly/stream-clipper/internal/domain/timeline"
	"github.com/kyleeasterly/stream-clipper/internal/ports"
	"github.com/kyleeasterly/stream-clipper/internal/ports/adapters/ffmpeg"
	"github.com/kyleeasterly/stream-clipper/internal/types"
	"github.com/kyleeasterly/stream-clipper/internal/usecase"
)

type Config struct {
	Input  string
	Output string

	// Ranges are the selected slices; if empty, RangesPath is loaded instead.
	Ranges     []timeline.Range
	RangesPath string

	GapThreshold float64
	Parallelism  int

	FFmpegPath  string
	FFprobePath string

	Log *slog.Logger
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	if _, err := os.Stat(c.Input); err != nil {
		return &ports.ValidationError{Reason: fmt.Sprintf("stat input: %v", err)}
	}
	if c.Output == "" {
		return errors.New("output is empty")
	}
	if len(c.Ranges) == 0 && c.RangesPath == "" {
		return errors.New("no ranges: provide a ranges file or explicit ranges")
	}
	if c.GapThreshold < 0 {
		return errors.New("gap threshold must be >= 0")
	}
	if c.Parallelism < 0 {
		return errors.New("parallelism must not be negative")
	}
	return nil
}

// Run wires the ffmpeg adapter to the assembly engine, checks the requested
// ranges against the probed source duration, assembles the clip, and
// persists the trace manifest next to the output.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ranges := cfg.Ranges
	if len(ranges) == 0 {
		var err error
		ranges, err = LoadRanges(cfg.RangesPath)
		if err != nil {
			return err
		}
	}

	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath, log)

	// Ranges past the end of the source would make ffmpeg emit empty
	// segments; reject them up front while the error can still name the
	// offending range. Ranges that merely run over the end are clamped, since
	// trailing selections routinely overshoot by a second or two.
	srcDur, err := video.ProbeDuration(ctx, cfg.Input)
	if err != nil {
		return err
	}
	durSec := srcDur.Seconds()
	for i := range ranges {
		if ranges[i].Start >= durSec {
			return &ports.ValidationError{
				Reason: fmt.Sprintf("range %d starts at %.3fs, beyond source duration %.3fs", i, ranges[i].Start, durSec),
			}
		}
		if ranges[i].End > durSec {
			log.Warn("clamping range to source duration", "range", i, "end", ranges[i].End, "duration", durSec)
			ranges[i].End = durSec
		}
	}

	uc := usecase.New(usecase.Deps{Video: video, Log: log})
	res, err := uc.CreateClip(ctx, usecase.Input{
		Source:       cfg.Input,
		Ranges:       ranges,
		Output:       cfg.Output,
		GapThreshold: cfg.GapThreshold,
		Parallelism:  cfg.Parallelism,
	})
	if err != nil {
		return err
	}

	tracePath := TracePath(cfg.Output)
	b, err := json.MarshalIndent(res.Trace, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(tracePath, b, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	log.Info("trace written", "path", tracePath, "segments", len(res.Trace.Segments))
	return nil
}

// LoadRanges reads a ranges file: either a bare JSON array of {start,end}
// objects or an object with a "ranges" field holding one.
func LoadRanges(path string) ([]timeline.Range, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranges: %w", err)
	}

	var specs []types.RangeSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		var file types.RangesFile
		if err2 := json.Unmarshal(b, &file); err2 != nil {
			return nil, fmt.Errorf("parse ranges %s: %w", path, err)
		}
		specs = file.Ranges
	}
	if len(specs) == 0 {
		return nil, &ports.ValidationError{Reason: fmt.Sprintf("ranges file %s holds no ranges", path)}
	}

	out := make([]timeline.Range, 0, len(specs))
	for _, s := range specs {
		out = append(out, timeline.Range{Start: s.Start, End: s.End})
	}
	return out, nil
}

// TracePath places the trace manifest next to the output file.
func TracePath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".trace.json"
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
