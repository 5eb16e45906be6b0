// Package integrity normalizes generated drafts and detects defects that make
// a draft unfit for release: truncation, merged words, broken markdown.
package integrity

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceVariants = strings.NewReplacer(
		"\u00a0", " ",
		"\u2000", " ", "\u2001", " ", "\u2002", " ", "\u2003", " ", "\u2004", " ",
		"\u2005", " ", "\u2006", " ", "\u2007", " ", "\u2008", " ", "\u2009", " ", "\u200a", " ",
		"\u202f", " ",
		"\u205f", " ",
		"\u3000", " ",
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
	)
	lineBreaks      = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	horizontalRuns  = regexp.MustCompile(`[ \t]+`)
	excessBlankRuns = regexp.MustCompile(`\n{3,}`)
)

// Normalize returns the canonical form of text. It is idempotent.
func Normalize(text string) string {
	out := spaceVariants.Replace(text)
	out = norm.NFKC.String(out)
	out = lineBreaks.Replace(out)

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = normalizeLine(line)
	}
	out = strings.Join(lines, "\n")

	out = excessBlankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// normalizeLine keeps leading indentation, collapses interior runs of spaces
// and tabs, and drops trailing whitespace.
func normalizeLine(line string) string {
	body := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(body)]
	body = horizontalRuns.ReplaceAllString(body, " ")
	body = strings.TrimRight(body, " \t")
	if body == "" {
		return ""
	}
	return indent + body
}
