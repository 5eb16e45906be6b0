// Package textutil holds the tokenization shared by sparse retrieval and the
// grounding firewall. Both split words and drop stop-words the same way; only
// sparse retrieval also drops short tokens.
package textutil

import (
	"strings"
	"unicode"
)

// MinTermLength is the shortest token kept by Terms.
const MinTermLength = 3

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "against": {}, "all": {}, "also": {},
	"am": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"because": {}, "been": {}, "before": {}, "being": {}, "below": {}, "between": {}, "both": {}, "but": {},
	"by": {}, "can": {}, "could": {}, "did": {}, "do": {}, "does": {}, "doing": {}, "down": {},
	"during": {}, "each": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {}, "has": {},
	"have": {}, "having": {}, "he": {}, "her": {}, "here": {}, "hers": {}, "herself": {}, "him": {},
	"himself": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "its": {}, "itself": {}, "just": {}, "may": {}, "me": {}, "might": {}, "more": {},
	"most": {}, "must": {}, "my": {}, "myself": {}, "no": {}, "nor": {}, "not": {}, "now": {},
	"of": {}, "off": {}, "on": {}, "once": {}, "only": {}, "or": {}, "other": {}, "our": {},
	"ours": {}, "ourselves": {}, "out": {}, "over": {}, "own": {}, "same": {}, "shall": {}, "she": {},
	"should": {}, "so": {}, "some": {}, "such": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"theirs": {}, "them": {}, "themselves": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"those": {}, "through": {}, "to": {}, "too": {}, "under": {}, "until": {}, "up": {}, "very": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"who": {}, "whom": {}, "why": {}, "will": {}, "with": {}, "would": {}, "you": {}, "your": {},
	"yours": {}, "yourself": {}, "yourselves": {}, "please": {}, "tell": {}, "know": {}, "get": {}, "got": {},
}

// IsStopWord reports whether the lowercase word carries no retrieval signal.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// Words lowercases text and splits it on anything that is not a letter or
// digit. Punctuation never survives.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the content-bearing tokens of text in order, with repeats.
// Stop-words and tokens shorter than MinTermLength are dropped.
func Terms(text string) []string {
	words := Words(text)
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < MinTermLength || IsStopWord(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// TermSet returns the distinct content-bearing tokens of text.
func TermSet(text string) map[string]struct{} {
	terms := Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// KeyTerms returns the distinct non-stop-word tokens of text. Unlike TermSet
// it keeps short tokens, so units and numbers such as "mg" or "5" count.
func KeyTerms(text string) map[string]struct{} {
	words := Words(text)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if IsStopWord(w) {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}
