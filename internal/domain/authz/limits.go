// Package authz implements the authorization executor: the bounded
// fixpoint over token and authorizer programs, check and policy
// evaluation, the trust separation between authority and attenuation
// blocks, and the classification of outcomes.
package authz

import "time"

// Limits bounds one authorization. Reaching MaxFacts or MaxIterations is
// fatal; MaxTime is the wall-clock deadline enforced by Authorize.
type Limits struct {
	// MaxFacts bounds the size of the fact set, seeded facts included; a
	// fact set of MaxFacts or more facts is fatal.
	MaxFacts uint64
	// MaxIterations caps the number of fixpoint rounds, counting the
	// terminating round that discovers nothing new.
	MaxIterations uint64
	// MaxTime is the wall-clock deadline for the whole authorization.
	// Non-positive means no deadline.
	MaxTime time.Duration
	// AllowRegex is a reserved flag. Regular expressions are not
	// implemented; the regex operator fails regardless of this value.
	AllowRegex bool
	// AllowBlockPrograms permits non-authority blocks to carry facts and
	// rules. When false, such blocks are rejected before any evaluation.
	AllowBlockPrograms bool
}

// DefaultLimits mirrors the reference defaults: small, fast, and safe to
// run on untrusted tokens.
func DefaultLimits() Limits {
	return Limits{
		MaxFacts:           1000,
		MaxIterations:      100,
		MaxTime:            time.Millisecond,
		AllowBlockPrograms: true,
	}
}
