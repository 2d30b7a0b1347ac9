package pipeline

import (
	"path/filepath"
	"strings"
)

// DumpRequest is the FSM input
type DumpRequest struct {
	Archive    string // local path of the firmware archive
	OutputRoot string
}

// DumpResponse is the FSM output (accumulated across transitions)
type DumpResponse struct {
	// From Setup
	DumpID       int64
	OutputPath   string
	ArchiveDir   string
	RawImagesDir string

	// From Extract
	PartitionsAttempted int
	PartitionsFailed    int

	// From Complete
	ManifestPath string
	Status       string
	ErrorMessage string
}

// State names
const (
	StateSetup    = "setup"
	StateUnpack   = "unpack_archive"
	StatePrepare  = "prepare_images"
	StateExtract  = "extract_partitions"
	StateComplete = "complete"
	StateFailed   = "failed"
)

// Temp directory names inside the output directory. They are
// deterministic so cleanup can find them even when the run died early.
const (
	archiveTempName   = "temp_extracted_archive"
	rawImagesTempName = "temp_raw_images"
)

// ArchiveStem strips the final extension from an archive filename:
// "fw.tar.gz" becomes "fw.tar", "fw.zip" becomes "fw". It names the
// output directory.
func ArchiveStem(archivePath string) string {
	base := filepath.Base(archivePath)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// OutputPath returns the output directory for an archive under outputRoot.
func OutputPath(outputRoot, archivePath string) string {
	return filepath.Join(outputRoot, ArchiveStem(archivePath))
}

// TempDirs returns the two scoped temp directories of an output directory.
func TempDirs(outputPath string) (archiveDir, rawImagesDir string) {
	return filepath.Join(outputPath, archiveTempName),
		filepath.Join(outputPath, rawImagesTempName)
}
