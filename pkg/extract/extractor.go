// Package extract walks the canonical partition registry and routes each
// staged raw image to its extraction strategy. One partition's failure is
// recorded and logged, never fatal: the remaining partitions still run.
package extract

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/partition"
	"github.com/fwtools/fwdump/pkg/sevenzip"
)

// BootUnpacker unpacks a boot image into a directory.
type BootUnpacker interface {
	Unpack(imagePath, destDir string) error
}

// FilesystemExtractor extracts the contents of a filesystem image into a
// directory. A tool failure should come back as *sevenzip.ExitError so the
// captured output can be logged.
type FilesystemExtractor interface {
	Extract(ctx context.Context, imagePath, destDir string) error
}

// Outcome records what happened to one partition.
type Outcome struct {
	Partition  string
	Format     partition.Format
	Attempted  bool
	Succeeded  bool
	Diagnostic string
}

// Extractor dispatches staged raw images to their per-format strategies.
type Extractor struct {
	boot BootUnpacker
	fs   FilesystemExtractor
}

// New creates an Extractor with the given collaborators.
func New(boot BootUnpacker, fs FilesystemExtractor) *Extractor {
	return &Extractor{boot: boot, fs: fs}
}

// Run processes every canonical partition in registry declaration order.
// Partitions without a staged <name>.img are skipped silently. The returned
// outcomes cover only attempted partitions.
func (e *Extractor) Run(ctx context.Context, rawDir, outDir string) []Outcome {
	var outcomes []Outcome

	for _, name := range partition.Names() {
		imagePath := filepath.Join(rawDir, name+".img")
		if _, err := os.Stat(imagePath); err != nil {
			continue
		}

		format, _ := partition.FormatOf(name)
		slog.Info("partition_extract", "partition", name, "format", format.String())

		outcome := Outcome{Partition: name, Format: format, Attempted: true, Succeeded: true}

		switch format {
		case partition.BootImage:
			if err := e.boot.Unpack(imagePath, filepath.Join(outDir, name)); err != nil {
				slog.Error("boot_unpack_failed", "partition", name, "error", err)
				outcome.Succeeded = false
				outcome.Diagnostic = err.Error()
			}
			// The raw image is copied out even when unpacking failed, so
			// the dump still carries the partition bytes.
			if err := copyImage(imagePath, filepath.Join(outDir, name+".img")); err != nil {
				slog.Error("raw_copy_failed", "partition", name, "error", err)
				outcome.Succeeded = false
				outcome.Diagnostic = err.Error()
			}

		case partition.Filesystem:
			if err := e.fs.Extract(ctx, imagePath, filepath.Join(outDir, name)); err != nil {
				outcome.Succeeded = false
				outcome.Diagnostic = err.Error()
				if exitErr, ok := err.(*sevenzip.ExitError); ok {
					slog.Error("filesystem_extract_failed",
						"partition", name,
						"exit_code", exitErr.ExitCode,
						"output", exitErr.Output,
					)
					outcome.Diagnostic = exitErr.Output
				} else {
					slog.Error("filesystem_extract_failed", "partition", name, "error", err)
				}
			}

		case partition.Raw:
			if err := copyImage(imagePath, filepath.Join(outDir, name+".img")); err != nil {
				slog.Error("raw_copy_failed", "partition", name, "error", err)
				outcome.Succeeded = false
				outcome.Diagnostic = err.Error()
			}
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

func copyImage(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "failed to open raw image")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "failed to create output dir")
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "failed to create image copy")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to copy image")
	}
	return out.Close()
}
