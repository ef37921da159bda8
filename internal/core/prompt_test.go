package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secondbrain-labs/secondbrain/internal/knowledge"
	"github.com/secondbrain-labs/secondbrain/internal/store"
)

func TestBuildPromptOrdering(t *testing.T) {
	history := []store.Message{
		{Role: store.RoleUser, Content: "what did the report say about revenue?"},
		{Role: store.RoleAssistant, Content: "Revenue grew eight percent."},
	}
	chunks := []knowledge.Chunk{
		{Title: "Q3 Report", Text: "Quarterly revenue grew eight percent year over year."},
		{Title: "Board Notes", Text: "The board approved the new budget."},
	}

	prompt := BuildPrompt("and what about costs?", history, chunks)

	// Sections appear in a fixed order: persona, history, context, question.
	personaAt := strings.Index(prompt, "SecondBrain")
	historyAt := strings.Index(prompt, "Conversation so far:")
	contextAt := strings.Index(prompt, "[Source: Q3 Report]")
	questionAt := strings.Index(prompt, "Question: and what about costs?")

	require.NotEqual(t, -1, personaAt)
	require.NotEqual(t, -1, historyAt)
	require.NotEqual(t, -1, contextAt)
	require.NotEqual(t, -1, questionAt)
	assert.Less(t, personaAt, historyAt)
	assert.Less(t, historyAt, contextAt)
	assert.Less(t, contextAt, questionAt)

	assert.Contains(t, prompt, "User: what did the report say about revenue?")
	assert.Contains(t, prompt, "Assistant: Revenue grew eight percent.")
	assert.Contains(t, prompt, "[Source: Board Notes]")
	assert.Contains(t, prompt, `say "I don't know"`)
}

func TestBuildPromptFormattingRules(t *testing.T) {
	prompt := BuildPrompt("q", nil, nil)

	assert.Contains(t, prompt, "headings")
	assert.Contains(t, prompt, "bullet lists")
	assert.Contains(t, prompt, "bold")
	assert.Contains(t, prompt, "blank lines")
}

func TestBuildPromptNoHistoryNoChunks(t *testing.T) {
	prompt := BuildPrompt("what is in my notes?", nil, nil)

	assert.NotContains(t, prompt, "Conversation so far:")
	assert.Contains(t, prompt, "no relevant saved content was found")
	assert.Contains(t, prompt, "Question: what is in my notes?")
}

func TestBuildPromptUntitledChunk(t *testing.T) {
	prompt := BuildPrompt("q", nil, []knowledge.Chunk{{Text: "orphan text"}})
	assert.Contains(t, prompt, "[Source: Untitled]")
}

func TestBuildPromptDeterministic(t *testing.T) {
	chunks := []knowledge.Chunk{{Title: "A", Text: "alpha"}, {Title: "B", Text: "beta"}}
	first := BuildPrompt("q", nil, chunks)
	second := BuildPrompt("q", nil, chunks)
	assert.Equal(t, first, second)
}
