package app

import (
	"fmt"
	"strings"

	"docintell/internal/ai"
	"docintell/internal/model"
)

const systemPreamble = `You are an assistant that helps users understand and analyze their documents.
Answer the question using the numbered context passages below.
If the context does not contain enough information to answer, say so clearly instead of guessing.
Be concise, and mention the source filename when you rely on a passage.`

const noContextPreamble = `You are an assistant that helps users understand and analyze their documents.
No document passages matched this question. Answer from general knowledge if you can, and tell the user
that the answer is not based on their documents.`

// buildPrompt lays out the system instructions with numbered passages, then
// the prior turns, then the question.
func buildPrompt(sources []Source, history []model.Message, question string) []ai.ChatMessage {
	var system strings.Builder
	if len(sources) == 0 {
		system.WriteString(noContextPreamble)
	} else {
		system.WriteString(systemPreamble)
		system.WriteString("\n\nContext:\n")
		for i, src := range sources {
			fmt.Fprintf(&system, "\n[%d] %s (chunk %d)\n%s\n", i+1, src.Filename, src.ChunkIndex, src.Content)
		}
	}

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: system.String()})
	for _, m := range history {
		role := ai.RoleUser
		if m.Role == model.RoleAssistant {
			role = ai.RoleAssistant
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: m.Content})
	}
	return append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: question})
}
