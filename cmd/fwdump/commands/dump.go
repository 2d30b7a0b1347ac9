package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fwtools/fwdump/internal/config"
	"github.com/fwtools/fwdump/pkg/archive"
	"github.com/fwtools/fwdump/pkg/bootimg"
	"github.com/fwtools/fwdump/pkg/db"
	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/extract"
	"github.com/fwtools/fwdump/pkg/pipeline"
	"github.com/fwtools/fwdump/pkg/security"
	"github.com/fwtools/fwdump/pkg/sevenzip"
	"github.com/fwtools/fwdump/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/superfly/fsm"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <archive>",
	Short: "Dump a firmware archive (local path or S3 key)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath, cfg.WorkDir, cfg.OutputRoot); err != nil {
		return err
	}

	archivePath, err := resolveArchive(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	validator := security.NewValidator(security.Limits{
		MaxFileSize:         cfg.MaxFileSize,
		MaxTotalSize:        cfg.MaxTotalSize,
		MaxCompressionRatio: cfg.MaxCompressionRatio,
	})
	runner := sevenzip.NewRunner(cfg.SevenZipPath)
	unpacker := archive.NewUnpacker(validator, runner)
	extractor := extract.New(bootimg.Unpacker{}, runner)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := pipeline.NewMachine(repo, unpacker, extractor, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	// Temp directories are removed no matter how the run ends; debug
	// mode keeps them for inspection.
	outputPath := pipeline.OutputPath(cfg.OutputRoot, archivePath)
	defer pipeline.Cleanup(outputPath, cfg.Debug)

	req := &pipeline.DumpRequest{
		Archive:    archivePath,
		OutputRoot: cfg.OutputRoot,
	}
	resp := &pipeline.DumpResponse{}

	version, err := start(ctx, pipeline.ArchiveStem(archivePath), fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "version", version)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "dump failed")
	}

	slog.Info("dump_completed",
		"status", resp.Status,
		"output", resp.OutputPath,
		"partitions_attempted", resp.PartitionsAttempted,
		"partitions_failed", resp.PartitionsFailed)

	fmt.Println(resp.OutputPath)
	return nil
}

// resolveArchive turns the command argument into a local archive path,
// downloading from S3 when it names a bucket key instead of a file.
func resolveArchive(ctx context.Context, cfg *config.Config, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.Mode().IsRegular() {
		return arg, nil
	}

	if cfg.S3Bucket == "" {
		return "", fmt.Errorf("archive %q is not a local file and no S3 bucket is configured", arg)
	}

	s3Client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return "", errors.Wrap(err, "S3 client failed")
	}

	exists, err := s3Client.Exists(ctx, arg)
	if err != nil {
		return "", errors.Wrap(err, "S3 head failed")
	}
	if !exists {
		return "", fmt.Errorf("archive key %q not found in bucket %s", arg, cfg.S3Bucket)
	}

	localPath := filepath.Join(cfg.WorkDir, "downloads", filepath.Base(arg))
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return "", errors.Wrap(err, "failed to create download directory")
	}

	result, err := s3Client.Fetch(ctx, arg, localPath)
	if err != nil {
		return "", errors.Wrap(err, "S3 fetch failed")
	}

	slog.Info("archive_downloaded", "key", arg, "path", result.LocalPath, "size", result.Size, "sha256", result.SHA256)
	return result.LocalPath, nil
}
