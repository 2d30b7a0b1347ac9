package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwtools/fwdump/pkg/db"
)

func TestArchiveStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/downloads/firmware.zip", "firmware"},
		{"firmware.tar.gz", "firmware.tar"}, // only the final extension is stripped
		{"fw_v12.0.3.img", "fw_v12.0.3"},
		{"noext", "noext"},
		{".hidden", ".hidden"},
	}

	for _, tt := range tests {
		if got := ArchiveStem(tt.path); got != tt.want {
			t.Errorf("ArchiveStem(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestTempDirsLayout(t *testing.T) {
	archiveDir, rawImagesDir := TempDirs("/out/fw")

	if archiveDir != filepath.Join("/out/fw", "temp_extracted_archive") {
		t.Errorf("archiveDir = %q", archiveDir)
	}
	if rawImagesDir != filepath.Join("/out/fw", "temp_raw_images") {
		t.Errorf("rawImagesDir = %q", rawImagesDir)
	}
}

func TestCleanupRemovesTempDirs(t *testing.T) {
	outputPath := t.TempDir()
	archiveDir, rawImagesDir := TempDirs(outputPath)
	for _, dir := range []string{archiveDir, rawImagesDir} {
		if err := os.MkdirAll(filepath.Join(dir, "nested"), 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}
	keep := filepath.Join(outputPath, "system")
	if err := os.MkdirAll(keep, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	Cleanup(outputPath, false)

	for _, dir := range []string{archiveDir, rawImagesDir} {
		if _, err := os.Stat(dir); err == nil {
			t.Errorf("%s should have been removed", dir)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("extraction output must survive cleanup")
	}
}

func TestCleanupDebugKeepsTempDirs(t *testing.T) {
	outputPath := t.TempDir()
	archiveDir, rawImagesDir := TempDirs(outputPath)
	for _, dir := range []string{archiveDir, rawImagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
	}

	Cleanup(outputPath, true)

	for _, dir := range []string{archiveDir, rawImagesDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("debug mode must keep %s", dir)
		}
	}
}

func TestMarkFailedRecordsStatus(t *testing.T) {
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("repository init failed: %v", err)
	}
	defer repo.Close()

	dump := &db.Dump{Archive: "fw.zip", OutputPath: "out/fw", Status: db.StatusRunning}
	if err := repo.CreateDump(dump); err != nil {
		t.Fatalf("CreateDump failed: %v", err)
	}

	m := NewMachine(repo, nil, nil, 1)
	m.markFailed(dump.ID, errors.New("archive unpack failed"))

	got, err := repo.GetByArchive("fw.zip")
	if err != nil {
		t.Fatalf("GetByArchive failed: %v", err)
	}
	if got == nil || got.Status != db.StatusFailed {
		t.Fatalf("run status = %+v, want failed", got)
	}
	if got.ErrorMessage != "archive unpack failed" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
}

func TestMarkFailedToleratesDeadRepository(t *testing.T) {
	repo, err := db.NewRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("repository init failed: %v", err)
	}
	dump := &db.Dump{Archive: "fw.zip", OutputPath: "out/fw", Status: db.StatusRunning}
	if err := repo.CreateDump(dump); err != nil {
		t.Fatalf("CreateDump failed: %v", err)
	}
	repo.Close()

	// The status write failing must only log; the abort error carrying the
	// real failure is what propagates.
	m := NewMachine(repo, nil, nil, 1)
	m.markFailed(dump.ID, errors.New("archive unpack failed"))
}

func TestCleanupToleratesAbsentDirs(t *testing.T) {
	// The run may have failed before creating anything; cleanup must not
	// panic or invent errors.
	Cleanup(filepath.Join(t.TempDir(), "never-created"), false)
}
