package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fwdump",
	Short: "Firmware archive dump pipeline",
	Long:  `Unpacks firmware archives, stages raw partition images, and extracts every recognized partition into a browsable output tree.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("output-root", "dumps", "Root directory for dump output")
	rootCmd.PersistentFlags().String("work-dir", ".artifacts/work", "Scratch directory for downloads")
	rootCmd.PersistentFlags().String("sqlite-path", ".artifacts/dumps.db", "SQLite database path")
	rootCmd.PersistentFlags().String("fsm-db-path", ".artifacts/fsm.db", "FSM BoltDB path")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket holding firmware archives")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("sevenzip-path", "7z", "Path to the 7z binary")
	rootCmd.PersistentFlags().Int64("max-file-size", 16*1024*1024*1024, "Max file size in bytes")
	rootCmd.PersistentFlags().Int64("max-total-size", 64*1024*1024*1024, "Max total extraction size")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 200.0, "Max compression ratio")
	rootCmd.PersistentFlags().Bool("debug", false, "Keep temp directories after the run")

	viper.BindPFlag("output-root", rootCmd.PersistentFlags().Lookup("output-root"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	viper.BindPFlag("fsm-db-path", rootCmd.PersistentFlags().Lookup("fsm-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("sevenzip-path", rootCmd.PersistentFlags().Lookup("sevenzip-path"))
	viper.BindPFlag("max-file-size", rootCmd.PersistentFlags().Lookup("max-file-size"))
	viper.BindPFlag("max-total-size", rootCmd.PersistentFlags().Lookup("max-total-size"))
	viper.BindPFlag("max-compression-ratio", rootCmd.PersistentFlags().Lookup("max-compression-ratio"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}
