package chat

import (
	"strings"

	"github.com/hyperjump/mxrag/internal/llm"
	"github.com/hyperjump/mxrag/internal/models"
	"github.com/hyperjump/mxrag/internal/vectorstore"
)

const systemTemplate = "You are a helpful AI assistant. Use the provided context to answer " +
	"questions accurately and concisely. If you're not sure about something, " +
	"say so rather than making assumptions.\n\n" +
	"Context: {context}\n\n" +
	"Current conversation:\n{chat_history}\n" +
	"Human: {question}\n" +
	"Assistant: "

// contextSeparator joins retrieved chunk texts.
const contextSeparator = "\n\n"

var roleLabels = []string{"human:", "assistant:", "user:", "system:"}

// SanitizeTurn quotes every line of user-supplied text that starts with a role
// label, so it cannot pose as a new turn once embedded in a single prompt.
func SanitizeTurn(text string) string {
	lines := strings.Split(text, "\n")
	changed := false
	for i, line := range lines {
		trimmed := strings.ToLower(strings.TrimLeft(line, " \t"))
		for _, label := range roleLabels {
			if strings.HasPrefix(trimmed, label) {
				lines[i] = "> " + line
				changed = true
				break
			}
		}
	}
	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}

// ConvertHistoryToMessages returns the turns as alternating user and assistant messages.
func ConvertHistoryToMessages(history models.History) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(history))
	for _, t := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.User},
			llm.Message{Role: llm.RoleAssistant, Content: t.Assistant})
	}
	return msgs
}

// FormatHistory renders turns as "Human: ...\nAssistant: ..." blocks joined by newlines.
func FormatHistory(history models.History, sanitize bool) string {
	parts := make([]string, len(history))
	for i, t := range history {
		user, assistant := t.User, t.Assistant
		if sanitize {
			user, assistant = SanitizeTurn(user), SanitizeTurn(assistant)
		}
		parts[i] = "Human: " + user + "\nAssistant: " + assistant
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt fills the system template.
func BuildPrompt(context, chatHistory, question string) string {
	return strings.NewReplacer(
		"{context}", context,
		"{chat_history}", chatHistory,
		"{question}", question,
	).Replace(systemTemplate)
}

// JoinContext concatenates the texts of retrieved entries.
func JoinContext(matches []vectorstore.Match) string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Entry.Text
	}
	return strings.Join(texts, contextSeparator)
}

// ProjectSources turns matches into response sources. chunk_id and source move
// out of the metadata into their own fields.
func ProjectSources(matches []vectorstore.Match) []models.SourceDocument {
	sources := make([]models.SourceDocument, len(matches))
	for i, m := range matches {
		meta := make(map[string]any, len(m.Entry.Metadata))
		for k, v := range m.Entry.Metadata {
			if k == models.MetaChunkID || k == models.MetaSource {
				continue
			}
			meta[k] = v
		}
		sources[i] = models.SourceDocument{
			ID:       metaString(m.Entry.Metadata, models.MetaChunkID),
			Content:  m.Entry.Text,
			Source:   metaString(m.Entry.Metadata, models.MetaSource),
			Metadata: meta,
		}
	}
	return sources
}

func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// RawTranscript renders the raw-chat exchange for cost accounting.
func RawTranscript(history models.History, query string) string {
	var sb strings.Builder
	for _, t := range history {
		sb.WriteString("Human: " + t.User + "\n")
		sb.WriteString("Assistant: " + t.Assistant + "\n")
	}
	sb.WriteString("Human: " + query)
	return sb.String()
}
