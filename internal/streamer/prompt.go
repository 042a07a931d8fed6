package streamer

import (
	"fmt"
	"strings"

	"ragforge/internal/llm"
	"ragforge/internal/persistence"
	"ragforge/internal/retrieval"
)

const defaultSystemPrompt = `You are a helpful assistant answering questions about a specific knowledge base. Answer only from the provided context. If the context does not contain the answer, say you don't know rather than guessing.`

// composePrompt builds the message list sent to the model, in priority
// order: persona system prompt, retrieved context, conversation history,
// current user message (SPEC_FULL.md §4.5 step 4).
func composePrompt(persona persistence.Persona, history []persistence.Message, items []retrieval.ContextItem, userText string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+3)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt(persona)})

	if ctx := renderContext(items); ctx != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: ctx})
	}

	for _, m := range history {
		role := "user"
		if m.Role == persistence.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}

	msgs = append(msgs, llm.Message{Role: "user", Content: userText})
	return msgs
}

func systemPrompt(persona persistence.Persona) string {
	var b strings.Builder
	if persona.SystemPromptOverride != "" {
		b.WriteString(persona.SystemPromptOverride)
	} else {
		b.WriteString(defaultSystemPrompt)
	}
	if persona.Tone != "" {
		fmt.Fprintf(&b, "\nTone: %s.", persona.Tone)
	}
	if persona.Language != "" {
		fmt.Fprintf(&b, "\nRespond in %s.", persona.Language)
	}
	if persona.FallbackMessage != "" {
		fmt.Fprintf(&b, "\nIf you cannot answer from the context, reply with: %q", persona.FallbackMessage)
	}
	return b.String()
}

func renderContext(items []retrieval.ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context retrieved from the knowledge base:\n")
	for i, it := range items {
		switch it.Source {
		case retrieval.SourceVector:
			fmt.Fprintf(&b, "[%d] (%s, p.%d) %s\n", i+1, it.Filename, it.Page, it.Text)
		case retrieval.SourceGraph:
			fmt.Fprintf(&b, "[%d] (%s: %s) %s\n", i+1, it.EntityKind, it.EntityName, it.Text)
		}
	}
	return b.String()
}

func toSources(items []retrieval.ContextItem) []persistence.Source {
	out := make([]persistence.Source, 0, len(items))
	for _, it := range items {
		s := persistence.Source{Kind: string(it.Source), Score: it.Score}
		switch it.Source {
		case retrieval.SourceVector:
			s.Filename, s.Page, s.Section, s.DocumentID = it.Filename, it.Page, it.Section, it.DocumentID
		case retrieval.SourceGraph:
			s.EntityID, s.EntityName = it.EntityID, it.EntityName
		}
		out = append(out, s)
	}
	return out
}

func toSourceDTOs(items []retrieval.ContextItem) []SourceDTO {
	sources := toSources(items)
	out := make([]SourceDTO, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceDTO{
			Kind: s.Kind, Filename: s.Filename, Page: s.Page, Section: s.Section,
			DocumentID: s.DocumentID, EntityID: s.EntityID, EntityName: s.EntityName, Score: s.Score,
		})
	}
	return out
}
