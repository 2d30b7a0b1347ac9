package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/pkg/db"
	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/manifest"
	"github.com/fwtools/fwdump/pkg/partition"
	"github.com/fwtools/fwdump/pkg/rawimage"
	"github.com/superfly/fsm"
)

// markFailed records the failure on the run row. The abort error it
// accompanies is what the caller sees; a bad status write only gets logged
// so the row's staleness is visible.
func (m *Machine) markFailed(dumpID int64, cause error) {
	if err := m.repo.UpdateStatus(dumpID, db.StatusFailed, cause.Error()); err != nil {
		slog.Error("status_update_failed", "dump_id", dumpID, "error", err)
	}
}

// handleSetup creates the output directory and the two scoped temp
// directories, and opens the run record. Any failure here is fatal:
// nothing has been produced yet.
func (m *Machine) handleSetup(ctx context.Context, req *fsm.Request[DumpRequest, DumpResponse]) (*fsm.Response[DumpResponse], error) {
	slog.Info("fsm_state_setup", "archive", req.Msg.Archive)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &DumpResponse{}
	}

	outputPath := OutputPath(req.Msg.OutputRoot, req.Msg.Archive)

	// Re-dumping the same archive overwrites in place; identical inputs
	// produce identical output trees.
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to create output dir"))
	}

	archiveDir, rawImagesDir := TempDirs(outputPath)
	for _, dir := range []string{archiveDir, rawImagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fsm.Abort(errors.Wrap(err, "failed to create temp dir"))
		}
	}

	dump := &db.Dump{
		Archive:    filepath.Base(req.Msg.Archive),
		OutputPath: outputPath,
		Status:     db.StatusRunning,
	}
	if err := m.repo.CreateDump(dump); err != nil {
		return nil, fsm.Abort(errors.Wrap(err, "failed to record run"))
	}

	resp.DumpID = dump.ID
	resp.OutputPath = outputPath
	resp.ArchiveDir = archiveDir
	resp.RawImagesDir = rawImagesDir

	return fsm.NewResponse(resp), nil
}

// handleUnpack extracts the firmware container into the archive temp dir.
// Unpack failure aborts the run: there is nothing to dump without it.
func (m *Machine) handleUnpack(ctx context.Context, req *fsm.Request[DumpRequest, DumpResponse]) (*fsm.Response[DumpResponse], error) {
	slog.Info("fsm_state_unpack", "archive", req.Msg.Archive)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if err := m.unpacker.Unpack(ctx, req.Msg.Archive, resp.ArchiveDir); err != nil {
		m.markFailed(resp.DumpID, err)
		return nil, fsm.Abort(errors.Wrap(err, "archive unpack failed"))
	}

	return fsm.NewResponse(resp), nil
}

// handlePrepare materializes one raw image per name-with-slot-variant into
// the staging dir, then collapses slots and aliases. Absent sources are
// skipped silently; only real I/O errors abort.
func (m *Machine) handlePrepare(ctx context.Context, req *fsm.Request[DumpRequest, DumpResponse]) (*fsm.Response[DumpResponse], error) {
	slog.Info("fsm_state_prepare", "archive", req.Msg.Archive)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	for _, token := range partition.NamesWithSlotVariants() {
		destPath := filepath.Join(resp.RawImagesDir, token+".img")
		produced, err := rawimage.Materialize(token, resp.ArchiveDir, destPath)
		if err != nil {
			m.markFailed(resp.DumpID, err)
			return nil, fsm.Abort(errors.Wrap(err, "raw image preparation failed"))
		}
		if produced {
			slog.Info("raw_image_staged", "token", token)
		}
	}

	if err := rawimage.ResolveSlots(resp.RawImagesDir); err != nil {
		m.markFailed(resp.DumpID, err)
		return nil, fsm.Abort(errors.Wrap(err, "slot resolution failed"))
	}
	if err := rawimage.ResolveAliases(resp.RawImagesDir); err != nil {
		m.markFailed(resp.DumpID, err)
		return nil, fsm.Abort(errors.Wrap(err, "alias resolution failed"))
	}

	return fsm.NewResponse(resp), nil
}

// handleExtract runs the per-partition dispatcher. Individual failures are
// recorded and logged but never abort: the run is still considered
// successful with whatever could be extracted.
func (m *Machine) handleExtract(ctx context.Context, req *fsm.Request[DumpRequest, DumpResponse]) (*fsm.Response[DumpResponse], error) {
	slog.Info("fsm_state_extract", "archive", req.Msg.Archive)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	outcomes := m.extractor.Run(ctx, resp.RawImagesDir, resp.OutputPath)

	for _, o := range outcomes {
		resp.PartitionsAttempted++
		if !o.Succeeded {
			resp.PartitionsFailed++
		}
		record := &db.PartitionResult{
			DumpID:     resp.DumpID,
			Name:       o.Partition,
			Format:     o.Format.String(),
			Succeeded:  o.Succeeded,
			Diagnostic: o.Diagnostic,
		}
		if err := m.repo.RecordPartition(record); err != nil {
			slog.Error("partition_record_failed", "partition", o.Partition, "error", err)
		}
	}

	slog.Info("extraction_done",
		"attempted", resp.PartitionsAttempted,
		"failed", resp.PartitionsFailed,
	)

	return fsm.NewResponse(resp), nil
}

// handleComplete writes the manifest and closes the run record.
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[DumpRequest, DumpResponse]) (*fsm.Response[DumpResponse], error) {
	slog.Info("fsm_state_complete", "archive", req.Msg.Archive)

	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		return nil, fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	// The temp directories are torn down by the caller after Wait returns;
	// removing them here would only cover the success path. They are
	// excluded from the manifest so debug runs list the same files.
	manifestPath, err := manifest.Write(resp.OutputPath, archiveTempName, rawImagesTempName)
	if err != nil {
		m.markFailed(resp.DumpID, err)
		return nil, fsm.Abort(errors.Wrap(err, "manifest generation failed"))
	}
	resp.ManifestPath = manifestPath

	if err := m.repo.UpdateStatus(resp.DumpID, db.StatusComplete, ""); err != nil {
		return nil, errors.Wrap(err, "failed to update status")
	}
	resp.Status = db.StatusComplete

	slog.Info("fsm_complete", "archive", req.Msg.Archive, "output", resp.OutputPath)

	return fsm.NewResponse(resp), nil
}
