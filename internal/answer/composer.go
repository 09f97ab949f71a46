// Package answer builds retrieval-augmented prompts and asks the language
// model for a reply.
package answer

import (
	"context"
	"strings"

	"github.com/mike-a-ellis/docqa/internal/chunker"
	"github.com/mike-a-ellis/docqa/internal/memory"
	"github.com/mike-a-ellis/docqa/internal/rag"
)

// SystemPrompt is the fixed instruction that opens every system message.
const SystemPrompt = "You are a helpful, concise customer-service assistant." +
	" Use the provided CONTEXT from the knowledge base when relevant." +
	" If information is missing, ask a brief follow-up question or say you don't know." +
	" Maintain a professional, friendly tone; include actionable steps."

// ContextSeparator joins retrieved chunks in the prompt.
const ContextSeparator = "\n\n---\n\n"

// Completer sends one system + user exchange to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Input is everything the composer needs for one answer.
type Input struct {
	Question string
	Chunks   []chunker.Chunk
	Summary  string
	History  []memory.Message
}

// Composer assembles prompts and delegates to a Completer.
type Composer struct {
	completer Completer
}

// NewComposer creates a composer.
func NewComposer(completer Completer) *Composer {
	return &Composer{completer: completer}
}

// SystemMessage builds the system message: the fixed prompt, the retrieved
// context, the summary if any, then the formatted history.
func SystemMessage(in Input) string {
	texts := make([]string, len(in.Chunks))
	for i, c := range in.Chunks {
		texts[i] = c.Text()
	}

	var b strings.Builder
	b.WriteString(SystemPrompt)
	b.WriteString("\n\nContext from documents:\n")
	b.WriteString(strings.Join(texts, ContextSeparator))
	if in.Summary != "" {
		b.WriteString("\n\nConversation summary: ")
		b.WriteString(in.Summary)
	}
	b.WriteString("\n\nPrevious messages:\n")
	b.WriteString(memory.FormatHistory(in.History))
	return b.String()
}

// Compose returns the model's trimmed answer. Failures are rag.ErrCompletion.
func (c *Composer) Compose(ctx context.Context, in Input) (string, error) {
	out, err := c.completer.Complete(ctx, SystemMessage(in), in.Question)
	if err != nil {
		return "", rag.NewError(rag.ErrCompletion, "compose", err)
	}
	return strings.TrimSpace(out), nil
}
