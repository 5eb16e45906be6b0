package security

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/grounded-qa/internal/core/domain"
)

const defaultSafeContextWindow = 50

//go:embed patterns.yaml
var defaultPatterns []byte

// RuleFile is the on-disk shape of a pattern table.
type RuleFile struct {
	SafeContextWindow int    `yaml:"safe_context_window"`
	Rules             []Rule `yaml:"rules"`
}

// Rule is one detection pattern tagged with the issue it reports.
type Rule struct {
	ID           string   `yaml:"id"`
	Category     string   `yaml:"category"`
	Description  string   `yaml:"description"`
	Regex        string   `yaml:"regex"`
	SafeContexts []string `yaml:"safe_contexts"`

	issue    domain.SecurityIssue
	compiled *regexp.Regexp
}

func (r Rule) Issue() domain.SecurityIssue {
	return r.issue
}

// DefaultRules returns the embedded pattern table.
func DefaultRules() (RuleFile, error) {
	return ParseRules(defaultPatterns)
}

// ParseRules decodes and compiles a YAML pattern table.
func ParseRules(data []byte) (RuleFile, error) {
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return RuleFile{}, fmt.Errorf("unmarshal security patterns: %w", err)
	}
	if len(file.Rules) == 0 {
		return RuleFile{}, fmt.Errorf("%w: security pattern table has no rules", domain.ErrInvalidInput)
	}
	if file.SafeContextWindow <= 0 {
		file.SafeContextWindow = defaultSafeContextWindow
	}
	for i := range file.Rules {
		if err := file.Rules[i].compile(); err != nil {
			return RuleFile{}, err
		}
	}
	return file, nil
}

func (r *Rule) compile() error {
	issue, ok := domain.ParseSecurityIssue(r.Category)
	if !ok {
		return fmt.Errorf("%w: rule %q has unknown category %q", domain.ErrInvalidInput, r.ID, r.Category)
	}
	re, err := regexp.Compile(r.Regex)
	if err != nil {
		return fmt.Errorf("compile rule %q: %w", r.ID, err)
	}
	contexts := make([]string, 0, len(r.SafeContexts))
	for _, c := range r.SafeContexts {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			contexts = append(contexts, c)
		}
	}
	r.issue = issue
	r.compiled = re
	r.SafeContexts = contexts
	return nil
}
