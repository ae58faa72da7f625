// Package audit contains domain types for the authorization decision log.
package audit

import (
	"context"
	"time"
)

// Outcome constants for decision records. They mirror the executor's
// result taxonomy one to one.
const (
	OutcomeAllowed            = "allowed"
	OutcomeDenyMatched        = "deny_matched"
	OutcomeNoPoliciesMatched  = "no_policies_matched"
	OutcomeFailedChecks       = "failed_checks"
	OutcomeTimeout            = "timeout"
	OutcomeTooManyFacts       = "too_many_facts"
	OutcomeTooManyIterations  = "too_many_iterations"
	OutcomeBlockProgramDenied = "block_program_denied"
)

// Record is one authorization decision as it is persisted.
type Record struct {
	// Timestamp is when the decision was made (UTC).
	Timestamp time.Time `json:"timestamp"`
	// RequestID correlates the record with logs and traces.
	RequestID string `json:"request_id"`
	// Outcome is one of the Outcome constants.
	Outcome string `json:"outcome"`
	// PolicyIndex is the index of the matched allow or deny policy for
	// allowed and deny_matched outcomes; -1 for every other outcome.
	PolicyIndex int `json:"policy_index"`
	// FailedChecks renders the checks that did not pass.
	FailedChecks []string `json:"failed_checks,omitempty"`
	// BlockCount is the number of attenuation blocks on the token.
	BlockCount int `json:"block_count"`
	// FactCount is the size of the final fact set for allowed decisions;
	// 0 for every other outcome.
	FactCount int `json:"fact_count"`
	// DurationMs is the wall-clock time spent deciding.
	DurationMs int64 `json:"duration_ms"`
	// Cached marks decisions served from the result cache.
	Cached bool `json:"cached,omitempty"`
}

// Store persists decision records.
// Interface owned by the domain per hexagonal architecture.
type Store interface {
	// Append stores records. Must be cheap from the caller's perspective.
	Append(ctx context.Context, records ...Record) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}
