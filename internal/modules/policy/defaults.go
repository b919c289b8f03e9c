package policy

import (
	"regexp"

	"github.com/foliorank/foliorank/internal/domain"
)

// DefaultVersion is the built-in policy version shipped with the binary.
const DefaultVersion = "v0.1"

// DefaultFallbackText is the neutral, non-prescriptive placeholder the
// gate substitutes for a rejected payload.
const DefaultFallbackText = "This request could not be completed under the active simulation policy. No action was taken."

// defaultForbiddenTerms is the denylist of execution, advisory, and
// guarantee language. Matching is case-insensitive substring.
var defaultForbiddenTerms = []string{
	"buy now",
	"sell now",
	"buy immediately",
	"sell immediately",
	"guaranteed return",
	"guaranteed profit",
	"guaranteed gains",
	"execute trade",
	"execute order",
	"place order",
	"risk-free",
	"cannot lose",
	"sure thing",
	"act now",
	"insider",
}

// defaultForbiddenPatterns catch phrasings the term list misses.
var defaultForbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bguarantee[sd]?\b[^.]{0,40}\breturns?\b`),
	regexp.MustCompile(`(?i)\bexecut(e|es|ing|ed)\b[^.]{0,40}\b(trade|order)s?\b`),
	regexp.MustCompile(`(?i)\byou\s+(should|must)\s+(buy|sell)\b`),
	regexp.MustCompile(`(?i)\bwill\s+(definitely|certainly)\s+(gain|rise|profit)\b`),
}

// DefaultRuleSet returns the built-in v0.1 policy: all five enumerated
// actions allowed, default denylist, default fallback.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version:           DefaultVersion,
		AllowedActions:    append([]domain.Action(nil), domain.KnownActions...),
		ForbiddenTerms:    append([]string(nil), defaultForbiddenTerms...),
		ForbiddenPatterns: append([]*regexp.Regexp(nil), defaultForbiddenPatterns...),
		FallbackText:      DefaultFallbackText,
		MaxExcerptLen:     120,
	}
}
