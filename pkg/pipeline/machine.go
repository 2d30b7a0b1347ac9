// Package pipeline sequences a firmware dump as a finite state machine:
// set up the output tree, unpack the archive, stage raw partition images,
// extract every recognized partition, then write the manifest. Setup and
// unpack failures abort the run; partition-level failures never do.
package pipeline

import (
	"context"
	"log/slog"
	"os"

	"github.com/fwtools/fwdump/pkg/archive"
	"github.com/fwtools/fwdump/pkg/db"
	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/extract"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo       *db.Repository
	unpacker   *archive.Unpacker
	extractor  *extract.Extractor
	maxRetries int
}

// NewMachine creates a dump machine with its collaborators
func NewMachine(repo *db.Repository, unpacker *archive.Unpacker, extractor *extract.Extractor, maxRetries int) *Machine {
	return &Machine{
		repo:       repo,
		unpacker:   unpacker,
		extractor:  extractor,
		maxRetries: maxRetries,
	}
}

// Register registers the dump FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[DumpRequest, DumpResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[DumpRequest, DumpResponse](manager, "firmware-dump").
		Start(StateSetup, m.handleSetup).
		To(StateUnpack, m.handleUnpack).
		To(StatePrepare, m.handlePrepare).
		To(StateExtract, m.handleExtract).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Cleanup removes both scoped temp directories of a run. Debug mode keeps
// them for post-mortem inspection. Absent directories are fine: the run may
// have died before creating them, or a previous cleanup already ran. Called
// on every exit path, so it must never invent a new failure that would
// shadow the run's own.
func Cleanup(outputPath string, debug bool) {
	if debug {
		slog.Info("cleanup_skipped_debug", "output", outputPath)
		return
	}

	archiveDir, rawImagesDir := TempDirs(outputPath)
	for _, dir := range []string{archiveDir, rawImagesDir} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("cleanup_failed", "dir", dir, "error", err)
			continue
		}
		slog.Info("cleanup_removed", "dir", dir)
	}
}
