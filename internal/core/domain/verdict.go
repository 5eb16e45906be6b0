package domain

// IntegrityIssue is a defect found in a generated draft.
type IntegrityIssue string

const (
	IssueTruncatedSentence  IntegrityIssue = "truncated_sentence"
	IssueTruncatedParagraph IntegrityIssue = "truncated_paragraph"
	IssueMergedWords        IntegrityIssue = "merged_words"
	IssueBrokenSpacing      IntegrityIssue = "broken_spacing"
	IssueMalformedMarkdown  IntegrityIssue = "malformed_markdown"
	IssueMissingCitations   IntegrityIssue = "missing_citations"
	IssueTooShort           IntegrityIssue = "too_short"
	IssueTooLong            IntegrityIssue = "too_long"
	IssueUnicodeAnomaly     IntegrityIssue = "unicode_anomaly"
)

// Critical issues force a regeneration instead of a release.
func (i IntegrityIssue) Critical() bool {
	switch i {
	case IssueTruncatedSentence, IssueTruncatedParagraph, IssueMergedWords, IssueBrokenSpacing:
		return true
	default:
		return false
	}
}

type IntegrityVerdict struct {
	IsValid        bool             `json:"is_valid"`
	Issues         []IntegrityIssue `json:"issues,omitempty"`
	NormalizedText string           `json:"normalized_text"`
}

func (v IntegrityVerdict) Has(issue IntegrityIssue) bool {
	for _, got := range v.Issues {
		if got == issue {
			return true
		}
	}
	return false
}

func (v IntegrityVerdict) HasCritical() bool {
	for _, issue := range v.Issues {
		if issue.Critical() {
			return true
		}
	}
	return false
}

// SecurityIssue is a category of sensitive content found in text.
type SecurityIssue string

const (
	SecurityDefaultCredential    SecurityIssue = "default_credential"
	SecurityPasswordPattern      SecurityIssue = "password_pattern"
	SecurityAPIKey               SecurityIssue = "api_key"
	SecurityToken                SecurityIssue = "token"
	SecuritySecret               SecurityIssue = "secret"
	SecurityAdminInstruction     SecurityIssue = "admin_instruction"
	SecurityInternalSystemDetail SecurityIssue = "internal_system_detail"
)

// ParseSecurityIssue validates a category name coming from a pattern table.
func ParseSecurityIssue(s string) (SecurityIssue, bool) {
	issue := SecurityIssue(s)
	switch issue {
	case SecurityDefaultCredential, SecurityPasswordPattern, SecurityAPIKey, SecurityToken,
		SecuritySecret, SecurityAdminInstruction, SecurityInternalSystemDetail:
		return issue, true
	default:
		return "", false
	}
}

// CredentialClass issues can never be released, not even redacted.
func (i SecurityIssue) CredentialClass() bool {
	switch i {
	case SecurityDefaultCredential, SecurityPasswordPattern, SecurityAPIKey, SecurityToken, SecuritySecret:
		return true
	default:
		return false
	}
}

type SecurityVerdict struct {
	IsSafe       bool            `json:"is_safe"`
	Issues       []SecurityIssue `json:"issues,omitempty"`
	RedactedText string          `json:"redacted_text,omitempty"`
}

func (v SecurityVerdict) Has(issue SecurityIssue) bool {
	for _, got := range v.Issues {
		if got == issue {
			return true
		}
	}
	return false
}

func (v SecurityVerdict) HasCredentialClass() bool {
	for _, issue := range v.Issues {
		if issue.CredentialClass() {
			return true
		}
	}
	return false
}

type GroundingVerdict struct {
	IsGrounded             bool     `json:"is_grounded"`
	GroundingScore         float64  `json:"grounding_score"`
	SupportingChunkIndices []int    `json:"supporting_chunk_indices,omitempty"`
	UnsupportedSentences   []string `json:"unsupported_sentences,omitempty"`
	Reason                 string   `json:"reason,omitempty"`
}
