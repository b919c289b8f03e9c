package domain

import "fmt"

// SchemaError reports a single structural validation failure. It is
// recoverable: the caller may correct the payload and resubmit.
type SchemaError struct {
	SchemaID      string
	SchemaVersion string
	Field         string
	Expected      string
	Actual        string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s/%s: field %q: expected %s, got %s",
		e.SchemaID, e.SchemaVersion, e.Field, e.Expected, e.Actual)
}

// ViolationError is terminal for the attempt that triggered it. The gate
// has already returned a safe fallback and appended the violation record
// to the audit ledger; the error exists so callers cannot silently proceed.
type ViolationError struct {
	Record        ViolationRecord
	PolicyVersion string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy %s rejected action %s: %s",
		e.PolicyVersion, e.Record.AttemptedAction, e.Record.Reason)
}

// UnknownDatasetError means the requested dataset version does not exist.
// Fatal to the request, never retried.
type UnknownDatasetError struct {
	DatasetVersion string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset version %q", e.DatasetVersion)
}

// SimulationError reports a failure inside the simulation engine other
// than a missing dataset, e.g. an asset absent from the dataset.
type SimulationError struct {
	DatasetVersion string
	Detail         string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation against dataset %s failed: %s", e.DatasetVersion, e.Detail)
}

// GenerationTimeoutError means the generative collaborator did not answer
// within the caller-supplied timeout. Recoverable by caller-initiated
// retry; a retried generation is a new attempt with its own audit entries.
type GenerationTimeoutError struct {
	Action  Action
	Timeout string
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation for action %s timed out after %s", e.Action, e.Timeout)
}

// ChainBrokenError is a fatal integrity failure: the ledger is
// untrustworthy from AtIndex forward and refuses new writes until an
// operator intervenes.
type ChainBrokenError struct {
	AtIndex int64
	Detail  string
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("audit chain broken at index %d: %s", e.AtIndex, e.Detail)
}
