// Package sevenzip shells out to the 7z binary. It backs two spots in the
// pipeline: filesystem-image extraction, and the fallback path for archive
// containers the native unpacker does not understand.
package sevenzip

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/fwtools/fwdump/pkg/errors"
)

// DefaultBinary is the 7z executable looked up on PATH when no explicit
// path is configured.
const DefaultBinary = "7z"

// ExitError reports a 7z run that finished with a non-zero exit code,
// carrying the tool's combined output for the caller to log.
type ExitError struct {
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("7z exited with code %d", e.ExitCode)
}

// Runner invokes a fixed 7z binary.
type Runner struct {
	binary string
}

// NewRunner returns a Runner for the given binary path; empty means
// DefaultBinary.
func NewRunner(binary string) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{binary: binary}
}

// Extract runs `7z x <archive> -y -o<destDir>`. A non-zero exit is returned
// as *ExitError; other failures (binary missing, context cancelled) come
// back as plain errors.
func (r *Runner) Extract(ctx context.Context, archivePath, destDir string) error {
	slog.Info("sevenzip_extract", "archive", archivePath, "dest", destDir)

	cmd := exec.CommandContext(ctx, r.binary, "x", archivePath, "-y", "-o"+destDir)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return &ExitError{
			ExitCode: exitErr.ExitCode(),
			Output:   string(output),
		}
	}
	return errors.Wrap(err, "failed to run 7z")
}
