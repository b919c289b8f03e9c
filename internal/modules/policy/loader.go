package policy

import (
	"fmt"
	"os"
	"regexp"

	"github.com/foliorank/foliorank/internal/domain"
	"gopkg.in/yaml.v3"
)

// fileRuleSet is the YAML shape of a policy file. Field names mirror the
// rule set so operators can diff policy versions directly.
type fileRuleSet struct {
	Version           string   `yaml:"version"`
	AllowedActions    []string `yaml:"allowed_actions"`
	ForbiddenTerms    []string `yaml:"forbidden_terms"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns"`
	FallbackText      string   `yaml:"fallback_text"`
	MaxExcerptLen     int      `yaml:"max_excerpt_len"`
}

// LoadFile parses a YAML policy file into a rule set. Patterns are
// compiled eagerly so a malformed policy fails at load, not at gate time.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var raw fileRuleSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if raw.Version == "" {
		return nil, fmt.Errorf("policy file %s missing version", path)
	}

	rs := &RuleSet{
		Version:        raw.Version,
		ForbiddenTerms: raw.ForbiddenTerms,
		FallbackText:   raw.FallbackText,
		MaxExcerptLen:  raw.MaxExcerptLen,
	}
	if rs.FallbackText == "" {
		rs.FallbackText = DefaultFallbackText
	}
	if rs.MaxExcerptLen <= 0 {
		rs.MaxExcerptLen = 120
	}

	for _, name := range raw.AllowedActions {
		action := domain.Action(name)
		if !domain.IsKnownAction(action) {
			return nil, fmt.Errorf("policy file %s: unknown action %q", path, name)
		}
		rs.AllowedActions = append(rs.AllowedActions, action)
	}

	for _, expr := range raw.ForbiddenPatterns {
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("policy file %s: invalid pattern %q: %w", path, expr, err)
		}
		rs.ForbiddenPatterns = append(rs.ForbiddenPatterns, pattern)
	}

	return rs, nil
}
