// Package policy holds the versioned rule sets that gate every action.
// Rule sets are immutable once loaded; multiple versions coexist so past
// decisions remain explainable after rules change.
package policy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/foliorank/foliorank/internal/domain"
)

// RuleSet is one immutable policy version: the allowed action set, the
// denylist of terms and patterns, and the output constraints applied by
// the enforcement gate.
type RuleSet struct {
	Version           string
	AllowedActions    []domain.Action
	ForbiddenTerms    []string // matched case-insensitively, anywhere in the payload
	ForbiddenPatterns []*regexp.Regexp
	FallbackText      string // neutral placeholder returned on rejection
	MaxExcerptLen     int    // bound on violation record excerpts
}

// ActionAllowed reports whether the rule set permits the action. Unknown
// actions are never allowed, regardless of rule set contents.
func (r *RuleSet) ActionAllowed(a domain.Action) bool {
	if !domain.IsKnownAction(a) {
		return false
	}
	for _, allowed := range r.AllowedActions {
		if a == allowed {
			return true
		}
	}
	return false
}

// ScanText checks text against the denylist. A single match rejects the
// whole payload; the first matching term or pattern is returned along with
// the classification reason.
func (r *RuleSet) ScanText(text string) (matched string, reason domain.ViolationReason, found bool) {
	lower := strings.ToLower(text)
	for _, term := range r.ForbiddenTerms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return term, domain.ReasonForbiddenTerm, true
		}
	}
	for _, pattern := range r.ForbiddenPatterns {
		if loc := pattern.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]], domain.ReasonPatternMatch, true
		}
	}
	return "", "", false
}

// Store is a registry of policy versions. The current version gates new
// requests; older versions stay resolvable for audit explanations.
type Store struct {
	rules   map[string]*RuleSet
	current string
}

// NewStore creates a store seeded with the given rule sets. The last rule
// set becomes the current version.
func NewStore(sets ...*RuleSet) (*Store, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("policy store requires at least one rule set")
	}
	s := &Store{rules: make(map[string]*RuleSet, len(sets))}
	for _, rs := range sets {
		if rs.Version == "" {
			return nil, fmt.Errorf("policy rule set missing version")
		}
		if _, dup := s.rules[rs.Version]; dup {
			return nil, fmt.Errorf("duplicate policy version %q", rs.Version)
		}
		s.rules[rs.Version] = rs
		s.current = rs.Version
	}
	return s, nil
}

// Current returns the rule set gating new requests.
func (s *Store) Current() *RuleSet {
	return s.rules[s.current]
}

// Version returns the current policy version string.
func (s *Store) Version() string {
	return s.current
}

// Get resolves a specific policy version.
func (s *Store) Get(version string) (*RuleSet, error) {
	rs, ok := s.rules[version]
	if !ok {
		return nil, fmt.Errorf("unknown policy version %q", version)
	}
	return rs, nil
}
