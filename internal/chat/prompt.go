package chat

import (
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/Bushraturk/ragchatbot/internal/retrieval"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// RefusalText is the literal answer for questions the indexed content
// cannot ground. Emitted verbatim, never paraphrased, so clients and tests
// can match it exactly.
const RefusalText = "Information not found in the book content."

// buildSystemPrompt renders the grounding instruction with the packed
// context. The model is confined to the excerpts: no outside knowledge,
// and the literal refusal phrase when the excerpts do not cover the
// question.
func buildSystemPrompt(rc *retrieval.Context) string {
	var b strings.Builder
	b.WriteString("You are an assistant that answers questions about a book. ")
	b.WriteString("Answer using ONLY the excerpts below. ")
	b.WriteString("Do not use outside knowledge. ")
	b.WriteString("If the excerpts do not contain the information needed, respond with exactly: ")
	b.WriteString(RefusalText)
	b.WriteString("\n\nExcerpts:\n")
	for i, s := range rc.Snippets {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, s.Content)
	}
	return b.String()
}

// windowMessages converts recent transcript messages to model messages,
// bounded by count and total characters. The window keeps the most recent
// turns: oldest messages are dropped first. Failed assistant turns are
// excluded, their partial text would mislead the model.
func windowMessages(history []*thread.Message, limit, charBudget int) []*ai.Message {
	kept := make([]*thread.Message, 0, len(history))
	for _, m := range history {
		if m.Status == thread.StatusFailed {
			continue
		}
		kept = append(kept, m)
	}

	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	if charBudget > 0 {
		used := 0
		start := len(kept)
		for i := len(kept) - 1; i >= 0; i-- {
			if used+len(kept[i].Content) > charBudget {
				break
			}
			used += len(kept[i].Content)
			start = i
		}
		kept = kept[start:]
	}

	messages := make([]*ai.Message, 0, len(kept))
	for _, m := range kept {
		part := ai.NewTextPart(m.Content)
		if m.Role == thread.RoleAssistant {
			messages = append(messages, ai.NewModelMessage(part))
		} else {
			messages = append(messages, ai.NewUserMessage(part))
		}
	}
	return messages
}
