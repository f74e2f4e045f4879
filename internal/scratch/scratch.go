// Package scratch owns the temporary artifacts of one clip-assembly
// operation. Every per-segment file, the concat manifest, and the staging
// output live in a private directory that is removed on every exit path of
// the owning operation.
package scratch

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir is a per-operation scratch directory. Paths handed out by Dir share a
// collision-free run token plus a zero-padded ordinal so leftover files are
// attributable when debugging with cleanup disabled.
type Dir struct {
	root  string
	token string
	log   *slog.Logger
}

// New creates the scratch directory under base, or the platform temp
// directory when base is empty.
func New(base string, log *slog.Logger) (*Dir, error) {
	token := uuid.NewString()[:8]
	root, err := os.MkdirTemp(base, "stream-clipper-"+token+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Dir{root: root, token: token, log: log}, nil
}

// Token is the run identifier embedded in every artifact name.
func (d *Dir) Token() string { return d.token }

// SegmentPath names the temp output for the extraction job at ordinal.
func (d *Dir) SegmentPath(ordinal int, ext string) string {
	return filepath.Join(d.root, fmt.Sprintf("%s-%03d%s", d.token, ordinal, ext))
}

// ListPath names the concat manifest.
func (d *Dir) ListPath() string {
	return filepath.Join(d.root, d.token+"-concat.txt")
}

// StagingPath names the pre-rename concat output. The final file only
// appears at its destination once concat has succeeded.
func (d *Dir) StagingPath(ext string) string {
	return filepath.Join(d.root, d.token+"-staging"+ext)
}

// Release removes the scratch directory and everything in it. Failures are
// logged and swallowed: cleanup trouble must never mask the operation's real
// error. Safe to call more than once.
func (d *Dir) Release() {
	if err := os.RemoveAll(d.root); err != nil {
		d.log.Warn("scratch cleanup failed", "dir", d.root, "error", err)
	}
}
