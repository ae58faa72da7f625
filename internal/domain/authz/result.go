package authz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
	"github.com/tokenwarden/tokenwarden/internal/domain/token"
)

// Fatal resource errors. They abort the authorization immediately and
// carry no partial results.
var (
	// ErrTimeout is returned when the wall-clock deadline elapses.
	ErrTimeout = errors.New("authorization timed out")
	// ErrTooManyFacts is returned when the fact limit is reached.
	ErrTooManyFacts = errors.New("too many facts generated")
	// ErrTooManyIterations is returned when the fixpoint round limit is
	// reached.
	ErrTooManyIterations = errors.New("too many fixpoint iterations")
	// ErrBlockProgramDenied is returned before evaluation when limits
	// forbid non-authority blocks from carrying facts or rules.
	ErrBlockProgramDenied = errors.New("non-authority blocks may not define facts or rules")
)

// CheckOrigin identifies where a check came from. Non-negative values are
// block indexes (0 is the authority block); OriginAuthorizer marks checks
// supplied by the authorizer.
type CheckOrigin int

// OriginAuthorizer marks a check contributed by the authorizer rather
// than a token block.
const OriginAuthorizer CheckOrigin = -1

// String renders the origin for diagnostics.
func (o CheckOrigin) String() string {
	if o == OriginAuthorizer {
		return "authorizer"
	}
	return fmt.Sprintf("block %d", int(o))
}

// FailedCheck identifies one check that did not pass, with enough context
// to point the caller at the offending program.
type FailedCheck struct {
	Origin     CheckOrigin
	CheckIndex int
	Check      token.Check
}

// String renders the failed check for diagnostics.
func (f FailedCheck) String() string {
	return fmt.Sprintf("%s check %d: %s", f.Origin, f.CheckIndex, f.Check)
}

// MatchedQuery records which policy query decided the authorization and
// the solutions that satisfied it.
type MatchedQuery struct {
	PolicyIndex int
	QueryIndex  int
	Policy      token.Policy
	Bindings    []datalog.Binding
}

// Success is the outcome of an authorized request: the matched allow
// query, the trusted authority facts, everything derived, and the limits
// the run was computed under (reused by post-hoc queries).
type Success struct {
	MatchedAllow   MatchedQuery
	AuthorityFacts *datalog.FactSet
	AllFacts       *datalog.FactSet
	Limits         Limits
}

// NoPoliciesMatchedError reports that no allow or deny policy matched.
// FailedChecks carries any checks that failed along the way.
type NoPoliciesMatchedError struct {
	FailedChecks []FailedCheck
}

func (e *NoPoliciesMatchedError) Error() string {
	if len(e.FailedChecks) == 0 {
		return "no policies matched"
	}
	return fmt.Sprintf("no policies matched (%s)", renderChecks(e.FailedChecks))
}

// DenyMatchedError reports that a deny policy decided the authorization.
type DenyMatchedError struct {
	FailedChecks []FailedCheck
	Deny         MatchedQuery
}

func (e *DenyMatchedError) Error() string {
	msg := fmt.Sprintf("deny policy %d matched: %s", e.Deny.PolicyIndex, e.Deny.Policy)
	if len(e.FailedChecks) > 0 {
		msg += " (" + renderChecks(e.FailedChecks) + ")"
	}
	return msg
}

// FailedChecksError reports that an allow policy matched but one or more
// checks failed.
type FailedChecksError struct {
	FailedChecks []FailedCheck
}

func (e *FailedChecksError) Error() string {
	return "failed checks: " + renderChecks(e.FailedChecks)
}

func renderChecks(checks []FailedCheck) string {
	parts := make([]string, len(checks))
	for i, c := range checks {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}
