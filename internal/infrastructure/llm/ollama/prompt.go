package ollama

import "strings"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildMessages(systemPrompt, evidence, query string) []chatMessage {
	messages := make([]chatMessage, 0, 2)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	return append(messages, chatMessage{Role: "user", Content: buildUserPrompt(evidence, query)})
}

func buildUserPrompt(evidence, query string) string {
	var b strings.Builder
	b.WriteString("Evidence:\n")
	if strings.TrimSpace(evidence) == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(strings.TrimSpace(evidence))
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion:\n")
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("\n\nAnswer only from the evidence above and cite passages as [n].")
	return b.String()
}
