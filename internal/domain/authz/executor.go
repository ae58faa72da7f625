package authz

import (
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
	"github.com/tokenwarden/tokenwarden/internal/domain/token"
)

// RevocationPredicate is the one predicate the runtime contributes:
// revocation_id(index, bytes) for the authority block (index 0) and each
// attenuation block in order.
const RevocationPredicate = "revocation_id"

// Authorize decides whether the token authorizes the request described by
// the authorizer program. The computation is pure and bounded by limits;
// MaxTime is enforced here by racing the computation against a timer. A
// non-positive MaxTime runs without a deadline.
func Authorize(authority token.SignedBlock, blocks []token.SignedBlock, authorizer token.Authorizer, limits Limits) (*Success, error) {
	if limits.MaxTime <= 0 {
		return run(authority, blocks, authorizer, limits)
	}

	type outcome struct {
		success *Success
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := run(authority, blocks, authorizer, limits)
		done <- outcome{success: s, err: err}
	}()

	timer := time.NewTimer(limits.MaxTime)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.success, o.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// computeState is the working state of one authorization. The authority
// fact snapshot is the trust boundary: block-derived facts enlarge
// allFacts but never authorityFacts.
type computeState struct {
	limits         Limits
	allFacts       *datalog.FactSet
	authorityFacts *datalog.FactSet
	iterations     uint64
	failedChecks   []FailedCheck

	// policyResult is assigned exactly once, during the authority phase.
	policyKind    token.PolicyKind
	policyMatched *MatchedQuery
}

// run drives the state machine: seed revocation facts, evaluate the
// authority scope, snapshot trust, evaluate each attenuation block in its
// own scope, then classify.
func run(authority token.SignedBlock, blocks []token.SignedBlock, authorizer token.Authorizer, limits Limits) (*Success, error) {
	if !limits.AllowBlockPrograms {
		for _, b := range blocks {
			if len(b.Block.Facts) > 0 || len(b.Block.Rules) > 0 {
				return nil, ErrBlockProgramDenied
			}
		}
	}

	st := &computeState{
		limits:   limits,
		allFacts: datalog.NewFactSet(),
	}

	// Init -> AuthorityLoaded: the only outside seeding of allFacts.
	st.allFacts.Add(revocationFact(0, authority.RevocationID))
	for i, b := range blocks {
		st.allFacts.Add(revocationFact(i+1, b.RevocationID))
	}

	// AuthorityLoaded -> AuthorityEvaluated: authority and authorizer
	// programs share one world and one trust scope.
	world := datalog.World{Facts: authority.Block.Facts, Rules: authority.Block.Rules}.
		Union(datalog.World{Facts: authorizer.Block.Facts, Rules: authorizer.Block.Rules})
	if err := st.fixpoint(world); err != nil {
		return nil, err
	}
	st.authorityFacts = st.allFacts.Clone()

	st.evaluateChecks(CheckOrigin(0), authority.Block.Checks)
	st.evaluateChecks(OriginAuthorizer, authorizer.Block.Checks)
	st.evaluatePolicies(authorizer.Policies)

	// AuthorityEvaluated -> BlockEvaluated(k): each block sees only its
	// own rules, against the cumulative facts.
	for i, b := range blocks {
		blockWorld := datalog.World{Facts: b.Block.Facts, Rules: b.Block.Rules}
		if err := st.fixpoint(blockWorld); err != nil {
			return nil, err
		}
		st.evaluateChecks(CheckOrigin(i+1), b.Block.Checks)
	}

	return st.classify()
}

func revocationFact(index int, id []byte) datalog.Fact {
	return datalog.NewFact(RevocationPredicate,
		datalog.Integer(index),
		datalog.Bytes(append([]byte(nil), id...)),
	)
}

// fixpoint saturates allFacts under the world's rules. The iteration
// counter advances every round, including the terminating one that
// derives nothing new, and limits are enforced after each expansion.
func (st *computeState) fixpoint(w datalog.World) error {
	for {
		var derived []datalog.Fact
		for _, r := range w.Rules {
			derived = append(derived, r.Apply(st.allFacts)...)
		}
		added := st.allFacts.AddAll(derived)
		added += st.allFacts.AddAll(w.Facts)
		st.iterations++

		if uint64(st.allFacts.Len()) >= st.limits.MaxFacts {
			return ErrTooManyFacts
		}
		if st.iterations >= st.limits.MaxIterations {
			return ErrTooManyIterations
		}
		if added == 0 {
			return nil
		}
	}
}

// evaluateChecks records every check in the list whose queries all have
// empty solution sets. Failures accumulate; they never short-circuit.
func (st *computeState) evaluateChecks(origin CheckOrigin, checks []token.Check) {
	for i, c := range checks {
		if !checkPasses(c, st.allFacts) {
			st.failedChecks = append(st.failedChecks, FailedCheck{
				Origin:     origin,
				CheckIndex: i,
				Check:      c,
			})
		}
	}
}

func checkPasses(c token.Check, facts *datalog.FactSet) bool {
	for _, q := range c.Queries {
		if len(q.Solutions(facts)) > 0 {
			return true
		}
	}
	return false
}

// evaluatePolicies scans the policy list in declaration order and records
// the first match. Called once, during the authority phase; later blocks
// never revisit the decision.
func (st *computeState) evaluatePolicies(policies []token.Policy) {
	for pi, p := range policies {
		for qi, q := range p.Queries {
			sols := q.Solutions(st.allFacts)
			if len(sols) == 0 {
				continue
			}
			st.policyKind = p.Kind
			st.policyMatched = &MatchedQuery{
				PolicyIndex: pi,
				QueryIndex:  qi,
				Policy:      p,
				Bindings:    sols,
			}
			return
		}
	}
}

// classify composes the final outcome from the accumulated failed checks
// and the policy result.
func (st *computeState) classify() (*Success, error) {
	switch {
	case st.policyMatched != nil && st.policyKind == token.PolicyDeny:
		return nil, &DenyMatchedError{FailedChecks: st.failedChecks, Deny: *st.policyMatched}
	case st.policyMatched == nil:
		return nil, &NoPoliciesMatchedError{FailedChecks: st.failedChecks}
	case len(st.failedChecks) > 0:
		return nil, &FailedChecksError{FailedChecks: st.failedChecks}
	default:
		return &Success{
			MatchedAllow:   *st.policyMatched,
			AuthorityFacts: st.authorityFacts,
			AllFacts:       st.allFacts,
			Limits:         st.limits,
		}, nil
	}
}
