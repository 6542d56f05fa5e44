package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docintell/internal/app"
	"docintell/internal/bootstrap"
	"docintell/internal/config"
)

var askConversationID string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversationID, "conversation", "c", "", "continue an existing conversation")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	a, err := bootstrap.Build(cmd.Context(), cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Chat.Converse(cmd.Context(), app.ConverseInput{
		Message:        strings.Join(args, " "),
		ConversationID: askConversationID,
	})
	if err != nil {
		return err
	}

	cmd.Println(result.Message.Content)
	cmd.Println()
	if len(result.Sources) == 0 {
		cmd.Println("No sources.")
	}
	for i, s := range result.Sources {
		cmd.Printf("[%d] %s (chunk %d) %.0f%%\n", i+1, s.Filename, s.ChunkIndex, s.Similarity*100)
	}
	cmd.Printf("conversation: %s\n", result.ConversationID)
	return nil
}
