// Package security finds credentials, secrets and internal infrastructure
// details in text and redacts them before anything is released.
package security

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

// RedactionMarker replaces every merged sensitive span.
const RedactionMarker = "[REDACTED]"

type span struct {
	start, end int
}

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	rules  []Rule
	window int
}

func NewFilter(file RuleFile) *Filter {
	window := file.SafeContextWindow
	if window <= 0 {
		window = defaultSafeContextWindow
	}
	return &Filter{rules: file.Rules, window: window}
}

// NewDefaultFilter builds a filter from the embedded pattern table.
func NewDefaultFilter() (*Filter, error) {
	file, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return NewFilter(file), nil
}

// Check scans text with every rule independently. RedactedText is always
// populated; it equals text when nothing was found.
func (f *Filter) Check(text string) domain.SecurityVerdict {
	var (
		issues []domain.SecurityIssue
		spans  []span
	)
	seen := make(map[domain.SecurityIssue]struct{})
	for _, rule := range f.rules {
		for _, loc := range rule.compiled.FindAllStringIndex(text, -1) {
			if f.inSafeContext(text, loc[0], loc[1], rule.SafeContexts) {
				continue
			}
			spans = append(spans, span{start: loc[0], end: loc[1]})
			if _, ok := seen[rule.issue]; !ok {
				seen[rule.issue] = struct{}{}
				issues = append(issues, rule.issue)
			}
		}
	}

	if len(spans) == 0 {
		return domain.SecurityVerdict{IsSafe: true, RedactedText: text}
	}
	return domain.SecurityVerdict{
		IsSafe:       false,
		Issues:       issues,
		RedactedText: redact(text, mergeSpans(spans)),
	}
}

// inSafeContext reports whether the match [start,end) sits inside an
// occurrence of one of the safe phrases that lies within the window around
// it. A phrase merely nearby does not exempt the match.
func (f *Filter) inSafeContext(text string, start, end int, contexts []string) bool {
	if len(contexts) == 0 {
		return false
	}
	from := start - f.window
	if from < 0 {
		from = 0
	}
	to := end + f.window
	if to > len(text) {
		to = len(text)
	}
	for _, c := range contexts {
		if len(c) < end-start {
			continue
		}
		lo := end - len(c)
		if lo < from {
			lo = from
		}
		for p := lo; p <= start; p++ {
			if !utf8.RuneStart(text[p]) || p+len(c) > to {
				continue
			}
			if strings.EqualFold(text[p:p+len(c)], c) {
				return true
			}
		}
	}
	return false
}

// mergeSpans coalesces overlapping or touching spans.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	merged := []span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func redact(text string, spans []span) string {
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, s := range spans {
		b.WriteString(text[cursor:s.start])
		b.WriteString(RedactionMarker)
		cursor = s.end
	}
	b.WriteString(text[cursor:])
	return b.String()
}
