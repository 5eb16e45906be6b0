package qdrant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

const metaField = "meta"

func payloadMetaKey(key string) string {
	return metaField + "." + key
}

func chunkPayload(ch domain.Chunk) map[string]any {
	meta := make(map[string]any, len(ch.Metadata))
	for k, v := range ch.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"chunk_id":        ch.ID,
		"text":            ch.Text,
		"source_document": ch.SourceDocument,
		"section":         ch.Section,
		metaField:         meta,
	}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	ch := domain.Chunk{
		ID:             getStringPayload(payload, "chunk_id"),
		Text:           getStringPayload(payload, "text"),
		SourceDocument: getStringPayload(payload, "source_document"),
		Section:        getStringPayload(payload, "section"),
	}
	if raw, ok := payload[metaField].(map[string]any); ok && len(raw) > 0 {
		ch.Metadata = make(map[string]string, len(raw))
		for k := range raw {
			ch.Metadata[k] = getStringPayload(raw, k)
		}
	}
	return ch
}

// buildFilter turns opaque filter pairs into qdrant "must" match clauses.
// Keys are sorted so requests are deterministic.
func buildFilter(filter domain.SearchFilter) map[string]any {
	keys := make([]string, 0, len(filter))
	for k, v := range filter {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   payloadMetaKey(k),
			"match": map[string]any{"value": filter[k]},
		})
	}
	return map[string]any{"must": must}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
