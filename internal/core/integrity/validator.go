package integrity

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

const (
	anomalyRatio         = 0.10
	mergedWordMinLength  = 16
	mergedWordHardLength = 21
)

var (
	fencedBlock   = regexp.MustCompile("(?s)```.*?```")
	inlineCode    = regexp.MustCompile("`[^`\n]*`")
	urlPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	emptyListItem = regexp.MustCompile(`(?m)^[ \t]*(?:[-*+]|\d+[.)])[ \t]*$`)
	emptyLinkText = regexp.MustCompile(`\[\s*\]\([^)]*\)`)
	emptyLinkURL  = regexp.MustCompile(`\[[^\]]+\]\(\s*\)`)
	citationTail  = regexp.MustCompile(`(?:\s*\[[^\[\]\n]{1,40}\])+$`)
)

var terminalRunes = map[rune]struct{}{
	'.': {}, '!': {}, '?': {}, ':': {}, '-': {}, '•': {}, '…': {}, '|': {},
}

// Long words that are legitimate despite their length. Only words below
// mergedWordHardLength can be exempted.
var longWordAllowList = map[string]struct{}{
	"authorization": {}, "documentation": {}, "responsibilities": {}, "telecommunications": {},
	"internationalization": {}, "electroencephalogram": {},
	"immunohistochemistry": {}, "hypercholesterolemia": {}, "pharmacokinetics": {},
	"pharmacodynamics": {}, "misunderstanding": {}, "counterproductive": {}, "interoperability": {},
	"uncharacteristically": {}, "disproportionately": {}, "thrombocytopenia": {}, "gastroenterology": {},
	"otorhinolaryngology": {}, "preauthorization": {}, "preauthorizations": {}, "deidentification": {},
	"antihypertensive": {}, "administratively": {}, "characteristically": {}, "recommendations": {},
}

// Mixed-case words and units that legitimately contain a lower-to-upper transition.
var camelCaseAllowList = map[string]struct{}{
	"iphone": {}, "ipad": {}, "ios": {}, "macos": {}, "javascript": {}, "typescript": {},
	"github": {}, "gitlab": {}, "youtube": {}, "linkedin": {}, "powerpoint": {}, "sharepoint": {},
	"postgresql": {}, "mysql": {}, "openai": {}, "chatgpt": {}, "ebay": {}, "paypal": {},
	"wifi": {}, "mchenry": {}, "mcdonald": {}, "mcdonalds": {}, "mckinsey": {},
	"mmhg": {}, "egfr": {}, "hba1c": {}, "ph": {}, "ml": {}, "dl": {}, "mg/dl": {}, "meq": {},
	"mmol": {}, "kpa": {}, "pco2": {}, "po2": {}, "spo2": {}, "ige": {}, "igg": {}, "igm": {},
	"mrna": {}, "dna": {}, "rna": {}, "covid": {},
}

type Config struct {
	MinLength int
	MaxLength int
}

func ConfigFromEngine(cfg domain.EngineConfig) Config {
	return Config{MinLength: cfg.MinResponseLength, MaxLength: cfg.MaxResponseLength}
}

// Validator is stateless and safe for concurrent use.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = domain.DefaultEngineConfig().MaxResponseLength
	}
	if cfg.MinLength < 0 {
		cfg.MinLength = 0
	}
	return &Validator{cfg: cfg}
}

// Validate normalizes text and reports every defect found. NormalizedText is
// always populated.
func (v *Validator) Validate(text string, requireCitations bool, citations []domain.Citation) domain.IntegrityVerdict {
	normalized := Normalize(text)
	var issues []domain.IntegrityIssue
	flag := func(issue domain.IntegrityIssue) {
		for _, got := range issues {
			if got == issue {
				return
			}
		}
		issues = append(issues, issue)
	}

	if lengthChanged(text, normalized) {
		flag(domain.IssueUnicodeAnomaly)
	}

	length := utf8.RuneCountInString(normalized)
	if length < v.cfg.MinLength {
		flag(domain.IssueTooShort)
	}
	if length > v.cfg.MaxLength {
		flag(domain.IssueTooLong)
		flag(domain.IssueTruncatedParagraph)
	}

	if !endsCleanly(normalized) {
		flag(domain.IssueTruncatedSentence)
	}

	prose := stripCode(normalized)
	if hasMergedWords(prose) {
		flag(domain.IssueMergedWords)
	}
	if hasBrokenSpacing(prose) {
		flag(domain.IssueBrokenSpacing)
	}
	if hasMalformedMarkdown(normalized) {
		flag(domain.IssueMalformedMarkdown)
	}
	if requireCitations && len(citations) == 0 {
		flag(domain.IssueMissingCitations)
	}

	return domain.IntegrityVerdict{
		IsValid:        len(issues) == 0,
		Issues:         issues,
		NormalizedText: normalized,
	}
}

func lengthChanged(original, normalized string) bool {
	before := utf8.RuneCountInString(original)
	if before == 0 {
		return false
	}
	after := utf8.RuneCountInString(normalized)
	diff := before - after
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(before) > anomalyRatio
}

// endsCleanly reports whether the final sentence is complete. Trailing
// citation markers, closing quotes and brackets are ignored; a closed code
// fence or a bare bullet marker as the last line count as complete. A bullet
// item with text needs terminal punctuation like any other sentence.
func endsCleanly(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, "```") && strings.Count(text, "```")%2 == 0 {
		return true
	}
	lastLine := text
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		lastLine = text[i+1:]
	}
	if emptyListItem.MatchString(lastLine) {
		return true
	}

	tail := citationTail.ReplaceAllString(text, "")
	tail = strings.TrimRightFunc(tail, func(r rune) bool {
		switch r {
		case '"', '\'', '”', '’', '»', ')', ']', '*', '_', '`':
			return true
		}
		return unicode.IsSpace(r)
	})
	if tail == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(tail)
	_, ok := terminalRunes[last]
	return ok
}

func stripCode(text string) string {
	out := fencedBlock.ReplaceAllString(text, " ")
	out = inlineCode.ReplaceAllString(out, " ")
	return urlPattern.ReplaceAllString(out, " ")
}

func hasMergedWords(text string) bool {
	for _, word := range alphabeticRuns(text) {
		n := utf8.RuneCountInString(word)
		if n < mergedWordMinLength {
			continue
		}
		if n >= mergedWordHardLength {
			return true
		}
		if _, ok := longWordAllowList[strings.ToLower(word)]; ok {
			continue
		}
		if hasCaseTransition(word) {
			return true
		}
	}
	return false
}

func hasBrokenSpacing(text string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '/')
	})
	for _, word := range words {
		if !hasCaseTransition(word) {
			continue
		}
		unit := strings.TrimLeftFunc(word, unicode.IsDigit)
		if _, ok := camelCaseAllowList[strings.ToLower(unit)]; ok {
			continue
		}
		return true
	}
	return false
}

// hasCaseTransition reports an ASCII lowercase letter directly followed by an
// uppercase one.
func hasCaseTransition(word string) bool {
	for i := 1; i < len(word); i++ {
		if word[i-1] >= 'a' && word[i-1] <= 'z' && word[i] >= 'A' && word[i] <= 'Z' {
			return true
		}
	}
	return false
}

func alphabeticRuns(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
}

func hasMalformedMarkdown(text string) bool {
	if emptyListItem.MatchString(text) || emptyLinkText.MatchString(text) || emptyLinkURL.MatchString(text) {
		return true
	}
	fences := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			fences++
		}
	}
	return fences%2 != 0
}
