//go:build integration

package itest

import (
	"errors"
	"os"
	"path/filepath"
)

// repoRoot walks up from the working directory to the module root so the
// tests can invoke the CLI via `go run` regardless of where `go test` ran.
func repoRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd, nil
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", errors.New("could not locate go.mod")
}
