// Package token contains the domain types for Biscuit-style bearer
// tokens as the executor consumes them: already parsed and already
// signature-verified blocks, plus the verifier-side authorizer program.
// Parsing, serialization, and cryptography live with external
// collaborators.
package token

import (
	"strings"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
)

// Block is one token block: its facts, rules, and checks. The authority
// block is trusted; attenuation blocks may only restrict.
type Block struct {
	Facts  []datalog.Fact
	Rules  []datalog.Rule
	Checks []Check
}

// SignedBlock pairs a block with the opaque revocation identifier its
// signature produces. The executor injects the identifier as a ground
// fact so policies can refuse known-bad tokens.
type SignedBlock struct {
	Block        Block
	RevocationID []byte
}

// Check is a non-empty disjunction of queries. It passes when at least
// one query has a solution.
type Check struct {
	Queries []datalog.Query
}

// String renders the check in surface syntax.
func (c Check) String() string {
	parts := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		parts[i] = q.String()
	}
	return "check if " + strings.Join(parts, " or ")
}

// PolicyKind distinguishes allow and deny policies.
type PolicyKind int

const (
	// PolicyAllow authorizes the request when the policy matches.
	PolicyAllow PolicyKind = iota
	// PolicyDeny refuses the request when the policy matches.
	PolicyDeny
)

// String returns the surface keyword for the kind.
func (k PolicyKind) String() string {
	if k == PolicyDeny {
		return "deny"
	}
	return "allow"
}

// Policy is an ordered allow/deny decision rule: a kind plus a non-empty
// disjunction of queries. The first policy in declaration order with a
// satisfied query decides the authorization.
type Policy struct {
	Kind    PolicyKind
	Queries []datalog.Query
}

// String renders the policy in surface syntax.
func (p Policy) String() string {
	parts := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		parts[i] = q.String()
	}
	return p.Kind.String() + " if " + strings.Join(parts, " or ")
}

// Authorizer is the verifier-side program: a virtual block evaluated with
// authority trust, plus the ordered policy list.
type Authorizer struct {
	Block    Block
	Policies []Policy
}
