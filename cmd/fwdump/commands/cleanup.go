package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fwtools/fwdump/internal/config"
	"github.com/fwtools/fwdump/pkg/db"
	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/pipeline"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupArchive  string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up dump resources (output trees, temp directories)",
	Long: `Clean up resources associated with dumps:
  --all                Clean all resources for all dumps
  --archive <name>     Clean resources for a specific archive
  --orphaned           Clean temp directories not tracked in the database`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Clean all resources")
	cleanupCmd.Flags().StringVar(&cleanupArchive, "archive", "", "Clean a specific dump by archive name")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Clean orphaned temp directories")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	if cleanupAll {
		return cleanupAllDumps(repo, cfg)
	} else if cleanupArchive != "" {
		return cleanupSpecificDump(repo, cleanupArchive)
	} else if cleanupOrphaned {
		return cleanupOrphanedDirs(repo, cfg)
	}
	return fmt.Errorf("must specify --all, --archive, or --orphaned")
}

func cleanupAllDumps(repo *db.Repository, cfg *config.Config) error {
	dumps, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	fmt.Printf("🧹 Cleaning up %d dumps...\n", len(dumps))

	for _, d := range dumps {
		if err := cleanupDumpResources(repo, d); err != nil {
			fmt.Printf("⚠️  Failed to clean %s: %v\n", d.Archive, err)
		} else {
			fmt.Printf("✅ Cleaned: %s\n", d.Archive)
		}
	}

	return nil
}

func cleanupSpecificDump(repo *db.Repository, archiveName string) error {
	d, err := repo.GetByArchive(archiveName)
	if err != nil {
		return errors.Wrap(err, "lookup failed")
	}
	if d == nil {
		return fmt.Errorf("no dump found for archive %q", archiveName)
	}

	fmt.Printf("🧹 Cleaning up %s...\n", archiveName)

	if err := cleanupDumpResources(repo, d); err != nil {
		return errors.Wrap(err, "cleanup failed")
	}

	fmt.Printf("✅ Cleaned: %s\n", archiveName)
	return nil
}

func cleanupDumpResources(repo *db.Repository, d *db.Dump) error {
	if _, err := os.Stat(d.OutputPath); err == nil {
		if err := os.RemoveAll(d.OutputPath); err != nil {
			return errors.Wrap(err, "failed to remove output tree")
		}
	}

	if err := repo.UpdateStatus(d.ID, db.StatusCleaned, ""); err != nil {
		return errors.Wrap(err, "failed to update database")
	}

	return nil
}

// cleanupOrphanedDirs removes leftover temp directories inside output
// trees the database does not track. The dump output itself is kept:
// orphaned means untracked, not unwanted.
func cleanupOrphanedDirs(repo *db.Repository, cfg *config.Config) error {
	fmt.Println("🔍 Scanning for orphaned temp directories...")

	dumps, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	tracked := make(map[string]bool, len(dumps))
	for _, d := range dumps {
		tracked[filepath.Clean(d.OutputPath)] = true
	}

	orphanCount := 0

	entries, err := os.ReadDir(cfg.OutputRoot)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("✅ Removed 0 orphaned temp directories")
			return nil
		}
		return errors.Wrap(err, "failed to read output root")
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		outputPath := filepath.Join(cfg.OutputRoot, entry.Name())
		if tracked[filepath.Clean(outputPath)] {
			continue
		}

		archiveDir, rawImagesDir := pipeline.TempDirs(outputPath)
		for _, dir := range []string{archiveDir, rawImagesDir} {
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				fmt.Printf("⚠️  Failed to remove orphaned directory %s: %v\n", dir, err)
			} else {
				fmt.Printf("🗑️  Removed orphaned directory: %s\n", dir)
				orphanCount++
			}
		}
	}

	fmt.Printf("✅ Removed %d orphaned temp directories\n", orphanCount)
	return nil
}
