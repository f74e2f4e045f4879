package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kyleeasterly/stream-clipper/internal/domain/timeline"
	"github.com/kyleeasterly/stream-clipper/internal/pipeline"
)

func run(cmd *cobra.Command, input string) error {
	rangesPath, _ := cmd.Flags().GetString("ranges")
	rangeFlags, _ := cmd.Flags().GetStringArray("range")
	out, _ := cmd.Flags().GetString("out")
	gap, _ := cmd.Flags().GetFloat64("gap")
	parallel, _ := cmd.Flags().GetInt("parallel")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if rangesPath == "" && len(rangeFlags) == 0 {
		return errors.New("no ranges: pass --ranges <file> or at least one --range start-end")
	}

	ranges, err := parseRangeFlags(rangeFlags)
	if err != nil {
		return err
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if out == "" {
		out = defaultOutput(absIn)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := pipeline.Config{
		Input:        absIn,
		Output:       out,
		Ranges:       ranges,
		RangesPath:   rangesPath,
		GapThreshold: gap,
		Parallelism:  parallel,

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		Log: log,
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return pipeline.Run(ctx, cfg)
}

// parseRangeFlags turns repeated --range start-end flags into ranges.
func parseRangeFlags(flags []string) ([]timeline.Range, error) {
	var out []timeline.Range
	for _, f := range flags {
		startStr, endStr, ok := strings.Cut(f, "-")
		if !ok {
			return nil, fmt.Errorf("range %q: want start-end seconds", f)
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(startStr), 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: bad start: %w", f, err)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(endStr), 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: bad end: %w", f, err)
		}
		r := timeline.Range{Start: start, End: end}
		if !r.Valid() {
			return nil, fmt.Errorf("range %q: end must be greater than start", f)
		}
		out = append(out, r)
	}
	return out, nil
}

func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	if ext == "" {
		ext = ".mp4"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "-clip" + ext
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
