package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docintell",
	Short: "Document question answering service",
	Long: `docintell ingests PDF, DOC, DOCX and TXT files, indexes their text for
semantic search and answers questions grounded in the indexed passages.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
