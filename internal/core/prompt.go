package core

import (
	"strings"

	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

const promptPersona = "You are SecondBrain, a personal knowledge assistant. " +
	"You answer questions using the user's own saved documents, pages and transcripts."

const promptRules = "Format your answer in markdown: use headings to structure longer answers, " +
	"bullet lists when enumerating items, and bold for key terms. " +
	"Separate paragraphs and sections with blank lines. " +
	"Keep the answer concise and directly related to the question."

const promptInstructions = "Answer the question using ONLY the context above. " +
	"If the context does not contain the answer, say \"I don't know\" rather than guessing. " +
	"When you use a source, mention its title."

// BuildPrompt assembles the single-string prompt sent to the model:
// persona, formatting rules, the conversation so far (oldest first), the
// retrieved context tagged by source title, and finally the question with
// its grounding instructions.
func BuildPrompt(question string, history []store.Message, chunks []knowledge.Chunk) string {
	var sb strings.Builder

	sb.WriteString(promptPersona)
	sb.WriteString("\n\n")
	sb.WriteString(promptRules)

	if len(history) > 0 {
		sb.WriteString("\n\nConversation so far:\n")
		for _, msg := range history {
			switch msg.Role {
			case store.RoleAssistant:
				sb.WriteString("Assistant: ")
			default:
				sb.WriteString("User: ")
			}
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}

	if len(chunks) > 0 {
		sb.WriteString("\nContext:\n")
		for _, chunk := range chunks {
			title := chunk.Title
			if title == "" {
				title = "Untitled"
			}
			sb.WriteString("[Source: ")
			sb.WriteString(title)
			sb.WriteString("]\n")
			sb.WriteString(chunk.Text)
			sb.WriteString("\n\n")
		}
	} else {
		sb.WriteString("\nContext:\n(no relevant saved content was found)\n\n")
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(promptInstructions)

	return sb.String()
}
