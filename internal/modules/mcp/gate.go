// Package mcp is the enforcement gate every generative action passes
// through. Nothing reaches the simulation engines or the caller without
// a recorded decision: the gate checks the action against the active
// policy, scans the payload against the denylist, validates declared
// schemas, and appends one audit entry per decision.
package mcp

import (
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/audit"
	"github.com/foliorank/foliorank/internal/modules/policy"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// Payload is the unit of checked content. Text is free-form prose;
// Structured is an optional machine-readable body that is scanned in its
// canonical JSON form and, when SchemaID is set, validated against the
// named schema version.
type Payload struct {
	Text          string `json:"text,omitempty"`
	Structured    any    `json:"structured,omitempty"`
	SchemaID      string `json:"schema_id,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
}

// Decision is the gate's verdict on one payload. On rejection Payload is
// zeroed, Fallback carries the neutral placeholder, and Violation holds
// the recorded evidence. Entry is the audit entry written for the
// decision, accepted or not.
type Decision struct {
	Allowed   bool
	Payload   Payload
	Fallback  string
	Violation *domain.ViolationRecord
	Entry     *domain.AuditEntry
}

// Gate wires the policy store, schema registry, and audit ledger into a
// single checkpoint. Safe for concurrent use.
type Gate struct {
	policies *policy.Store
	registry *schemas.Registry
	ledger   *audit.Ledger
	log      zerolog.Logger
}

// NewGate creates an enforcement gate.
func NewGate(policies *policy.Store, registry *schemas.Registry, ledger *audit.Ledger, log zerolog.Logger) *Gate {
	return &Gate{
		policies: policies,
		registry: registry,
		ledger:   ledger,
		log:      log.With().Str("service", "mcp").Logger(),
	}
}

// PolicyVersion returns the policy version gating new requests.
func (g *Gate) PolicyVersion() string {
	return g.policies.Version()
}

// FallbackText returns the active policy's neutral placeholder.
func (g *Gate) FallbackText() string {
	return g.policies.Current().FallbackText
}

// CheckInput gates content entering the system under the given action.
func (g *Gate) CheckInput(action domain.Action, payload Payload) (*Decision, error) {
	return g.check(action, payload, "input")
}

// CheckOutput gates content produced by the system before it reaches the
// caller. The checks are identical to CheckInput; only the audit stage
// label differs.
func (g *Gate) CheckOutput(action domain.Action, payload Payload) (*Decision, error) {
	return g.check(action, payload, "output")
}

func (g *Gate) check(action domain.Action, payload Payload, stage string) (*Decision, error) {
	rules := g.policies.Current()

	if !rules.ActionAllowed(action) {
		return g.reject(action, payload, stage, domain.ViolationRecord{
			AttemptedAction: action,
			Reason:          domain.ReasonDisallowedAction,
			RedactedExcerpt: excerpt(string(action), "", rules.MaxExcerptLen),
			Timestamp:       time.Now().UTC(),
		})
	}

	if matched, reason, found := rules.ScanText(payload.Text); found {
		return g.reject(action, payload, stage, domain.ViolationRecord{
			AttemptedAction: action,
			Reason:          reason,
			RedactedExcerpt: excerpt(payload.Text, matched, rules.MaxExcerptLen),
			Timestamp:       time.Now().UTC(),
		})
	}

	if payload.Structured != nil {
		body, err := domain.CanonicalJSON(payload.Structured)
		if err != nil {
			return nil, err
		}
		if matched, reason, found := rules.ScanText(string(body)); found {
			return g.reject(action, payload, stage, domain.ViolationRecord{
				AttemptedAction: action,
				Reason:          reason,
				RedactedExcerpt: excerpt(string(body), matched, rules.MaxExcerptLen),
				Timestamp:       time.Now().UTC(),
			})
		}
		if payload.SchemaID != "" {
			if err := g.registry.Validate(payload.Structured, payload.SchemaID, payload.SchemaVersion); err != nil {
				schemaErr, ok := err.(*domain.SchemaError)
				if !ok {
					return nil, err
				}
				return g.reject(action, payload, stage, domain.ViolationRecord{
					AttemptedAction: action,
					Reason:          domain.ReasonSchemaViolation,
					RedactedExcerpt: excerpt(schemaErr.Error(), "", rules.MaxExcerptLen),
					Timestamp:       time.Now().UTC(),
				})
			}
		}
	}

	entry, err := g.ledger.Record(action, payload, decisionOutcome{Decision: "allowed", Stage: stage}, rules.Version)
	if err != nil {
		return nil, err
	}

	return &Decision{Allowed: true, Payload: payload, Entry: entry}, nil
}

// reject records the violation, then returns both the fallback decision
// and a *domain.ViolationError so no caller can proceed by accident.
func (g *Gate) reject(action domain.Action, payload Payload, stage string, record domain.ViolationRecord) (*Decision, error) {
	rules := g.policies.Current()

	entry, err := g.ledger.Record(action, payload, decisionOutcome{
		Decision:  "rejected",
		Stage:     stage,
		Violation: &record,
	}, rules.Version)
	if err != nil {
		return nil, err
	}

	g.log.Warn().
		Str("action", string(action)).
		Str("stage", stage).
		Str("reason", string(record.Reason)).
		Msg("Payload rejected by enforcement gate")

	decision := &Decision{
		Allowed:   false,
		Fallback:  rules.FallbackText,
		Violation: &record,
		Entry:     entry,
	}
	return decision, &domain.ViolationError{Record: record, PolicyVersion: rules.Version}
}

// decisionOutcome is the audited output payload for a gate decision.
type decisionOutcome struct {
	Decision  string                  `json:"decision"`
	Stage     string                  `json:"stage"`
	Violation *domain.ViolationRecord `json:"violation,omitempty"`
}

// excerpt bounds evidence to maxLen runes and masks the matched fragment
// so violation records never replay forbidden content verbatim.
func excerpt(text, matched string, maxLen int) string {
	if matched != "" {
		text = maskAll(text, matched)
	}
	runes := []rune(text)
	if maxLen > 0 && len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return text
}

const redactedMark = "[redacted]"

// maskAll replaces every case-insensitive occurrence of matched.
func maskAll(text, matched string) string {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(matched))
	return re.ReplaceAllString(text, redactedMark)
}
