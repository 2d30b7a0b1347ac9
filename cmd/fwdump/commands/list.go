package commands

import (
	"context"
	"fmt"

	"github.com/fwtools/fwdump/internal/config"
	"github.com/fwtools/fwdump/pkg/db"
	"github.com/fwtools/fwdump/pkg/errors"
	"github.com/fwtools/fwdump/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	listRemote bool
	listPrefix string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all dumps and their status",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listRemote, "remote", false, "List archives available in the S3 bucket instead of local dumps")
	listCmd.Flags().StringVar(&listPrefix, "prefix", "", "Key prefix filter for --remote")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if listRemote {
		return listRemoteArchives(cfg)
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, "", "", ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	dumps, err := repo.List()
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(dumps) == 0 {
		fmt.Println("No dumps found")
		return nil
	}

	fmt.Printf("%-40s %-10s %-12s %-40s\n", "ARCHIVE", "STATUS", "PARTITIONS", "OUTPUT")
	fmt.Println("--------------------------------------------------------------------------------------------------------")

	for _, d := range dumps {
		parts, err := repo.ListPartitions(d.ID)
		if err != nil {
			return errors.Wrap(err, "partition list failed")
		}

		failed := 0
		for _, p := range parts {
			if !p.Succeeded {
				failed++
			}
		}
		partStr := fmt.Sprintf("%d", len(parts))
		if failed > 0 {
			partStr = fmt.Sprintf("%d (%d failed)", len(parts), failed)
		}

		fmt.Printf("%-40s %-10s %-12s %-40s\n",
			d.Archive, d.Status, partStr, d.OutputPath)
	}

	return nil
}

func listRemoteArchives(cfg *config.Config) error {
	if cfg.S3Bucket == "" {
		return fmt.Errorf("--remote requires an S3 bucket to be configured")
	}

	ctx := context.Background()

	s3Client, err := storage.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	keys, err := s3Client.ListArchives(ctx, listPrefix)
	if err != nil {
		return errors.Wrap(err, "S3 list failed")
	}

	if len(keys) == 0 {
		fmt.Println("No archives found")
		return nil
	}

	for _, key := range keys {
		fmt.Println(key)
	}

	return nil
}
