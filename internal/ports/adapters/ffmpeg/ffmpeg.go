package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     *slog.Logger
}

func New(ffmpegPath, ffprobePath string, log *slog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log}
}

// ExtractSegment stream-copies [startSec, startSec+durationSec) from src into
// outPath. Seeking happens before the input opens, which keeps extraction
// near-instant even deep into long sources, and negative timestamps from the
// copied packets are shifted to zero so the segments concat cleanly.
func (a *Adapter) ExtractSegment(ctx context.Context, src string, startSec, durationSec float64, outPath string) error {
	return a.run(ctx, extractArgs(src, startSec, durationSec, outPath))
}

// Concat joins the files named in the concat-demuxer manifest at listPath
// into outPath without re-encoding.
func (a *Adapter) Concat(ctx context.Context, listPath, outPath string) error {
	return a.run(ctx, concatArgs(listPath, outPath))
}

func (a *Adapter) ProbeDuration(ctx context.Context, src string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func extractArgs(src string, startSec, durationSec float64, outPath string) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(startSec),
		"-i", src,
		"-t", fmtSeconds(durationSec),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outPath,
	}
}

func concatArgs(listPath, outPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	}
}

// fmtSeconds formats seconds at millisecond precision, the contract for all
// time arguments handed to ffmpeg.
func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
