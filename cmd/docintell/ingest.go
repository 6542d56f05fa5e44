package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docintell/internal/app"
	"docintell/internal/bootstrap"
	"docintell/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest files and wait for them to be indexed",
	Long: `Runs the ingestion pipeline inline for every file and prints the final
status of each document. Failed documents are reported, not retried.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	cfg.Ingest.Mode = config.IngestModeSync

	a, err := bootstrap.Build(cmd.Context(), cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s failed: %w", path, err)
		}
		doc, err := a.Documents.Upload(cmd.Context(), app.UploadInput{
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			failed++
			cmd.Printf("%s\trejected\t%v\n", path, err)
			continue
		}
		if doc.ErrorMessage != "" {
			failed++
			cmd.Printf("%s\t%s\t%s\t%s\n", path, doc.ID, doc.ProcessingStatus, doc.ErrorMessage)
			continue
		}
		cmd.Printf("%s\t%s\t%s\t%d chunks\n", path, doc.ID, doc.ProcessingStatus, doc.ChunkCount)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}
