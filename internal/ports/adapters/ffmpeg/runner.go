package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/kyleeasterly/stream-clipper/internal/ports"
)

// run spawns one ffmpeg process, streams its stderr line-by-line into the
// logger while capturing it, and blocks until exit. A non-zero exit becomes a
// *ports.SubprocessError carrying the exit code and captured stderr. No
// retries: the first failure is surfaced to the caller as-is.
func (a *Adapter) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", a.ffmpeg, err)
	}

	var captured bytes.Buffer
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		captured.WriteString(line)
		captured.WriteByte('\n')
		a.log.Debug("ffmpeg", "line", line)
	}

	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return &ports.SubprocessError{
				Tool:     filepath.Base(a.ffmpeg),
				ExitCode: ee.ExitCode(),
				Stderr:   captured.String(),
			}
		}
		return fmt.Errorf("wait %s: %w", a.ffmpeg, err)
	}
	return nil
}
