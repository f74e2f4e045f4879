package ports

import (
	"context"
	"fmt"
	"time"
)

// VideoTool is the engine's view of the external transcoding tool. Both the
// extractor and the assembler go through it, so tests can substitute a fake
// and count invocations.
type VideoTool interface {
	// ExtractSegment copies the streams between start and start+duration
	// (seconds) from src into outPath without re-encoding.
	ExtractSegment(ctx context.Context, src string, startSec, durationSec float64, outPath string) error

	// Concat losslessly joins the files listed in the concat manifest at
	// listPath into outPath.
	Concat(ctx context.Context, listPath, outPath string) error

	// ProbeDuration returns the container duration of src.
	ProbeDuration(ctx context.Context, src string) (time.Duration, error)
}

// ValidationError reports bad input caught before any subprocess is spawned
// or temp file created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// SubprocessError reports a non-zero exit from an external tool invocation.
// It carries the captured stderr because that is where ffmpeg explains
// itself. Fatal to the whole operation; never retried.
type SubprocessError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, tail(e.Stderr, 512))
}

// tail keeps at most n trailing bytes of s; the end of ffmpeg's stderr is
// where the actual error lives.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
