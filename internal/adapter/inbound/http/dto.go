// Package http provides the HTTP transport adapter for the decision API.
// The JSON encoding of tokens and authorizer programs lives here: the
// core consumes already-parsed values and never sees this format.
package http

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
	"github.com/tokenwarden/tokenwarden/internal/domain/token"
)

// TermDTO is the wire form of a term. Type selects the payload field:
// variable, symbol, integer, string, date, bytes, bool, or set.
type TermDTO struct {
	Type    string     `json:"type"`
	Name    string     `json:"name,omitempty"`
	Symbol  string     `json:"symbol,omitempty"`
	Integer int64      `json:"integer,omitempty"`
	String  string     `json:"string,omitempty"`
	Date    *time.Time `json:"date,omitempty"`
	Bytes   string     `json:"bytes,omitempty"`
	Bool    bool       `json:"bool,omitempty"`
	Set     []TermDTO  `json:"set,omitempty"`
}

// ExpressionDTO is the wire form of an expression tree. Exactly one of
// Term (leaf), Expr (unary operand), or Left/Right (binary operands) is
// set, with Op naming the operator for the latter two.
type ExpressionDTO struct {
	Op    string         `json:"op,omitempty"`
	Term  *TermDTO       `json:"term,omitempty"`
	Expr  *ExpressionDTO `json:"expr,omitempty"`
	Left  *ExpressionDTO `json:"left,omitempty"`
	Right *ExpressionDTO `json:"right,omitempty"`
}

// PredicateDTO is the wire form of a predicate or fact.
type PredicateDTO struct {
	Name  string    `json:"name"`
	Terms []TermDTO `json:"terms"`
}

// RuleDTO is the wire form of a rule.
type RuleDTO struct {
	Head        PredicateDTO    `json:"head"`
	Body        []PredicateDTO  `json:"body"`
	Expressions []ExpressionDTO `json:"expressions,omitempty"`
}

// QueryDTO is the wire form of a query.
type QueryDTO struct {
	Body        []PredicateDTO  `json:"body"`
	Expressions []ExpressionDTO `json:"expressions,omitempty"`
}

// CheckDTO is the wire form of a check.
type CheckDTO struct {
	Queries []QueryDTO `json:"queries"`
}

// PolicyDTO is the wire form of a policy. Kind is "allow" or "deny".
type PolicyDTO struct {
	Kind    string     `json:"kind"`
	Queries []QueryDTO `json:"queries"`
}

// BlockDTO is the wire form of a block.
type BlockDTO struct {
	Facts  []PredicateDTO `json:"facts,omitempty"`
	Rules  []RuleDTO      `json:"rules,omitempty"`
	Checks []CheckDTO     `json:"checks,omitempty"`
}

// SignedBlockDTO pairs a block with its hex-encoded revocation ID.
type SignedBlockDTO struct {
	Block        BlockDTO `json:"block"`
	RevocationID string   `json:"revocation_id"`
}

// AuthorizerDTO is the wire form of the verifier-side program.
type AuthorizerDTO struct {
	Block    BlockDTO    `json:"block"`
	Policies []PolicyDTO `json:"policies"`
}

// AuthorizeRequestDTO is the decision API request body.
type AuthorizeRequestDTO struct {
	Authority  SignedBlockDTO   `json:"authority"`
	Blocks     []SignedBlockDTO `json:"blocks,omitempty"`
	Authorizer AuthorizerDTO    `json:"authorizer"`
}

// AuthorizeResponseDTO is the decision API response body.
type AuthorizeResponseDTO struct {
	RequestID    string              `json:"request_id"`
	Allowed      bool                `json:"allowed"`
	Outcome      string              `json:"outcome"`
	PolicyIndex  int                 `json:"policy_index"`
	FailedChecks []string            `json:"failed_checks,omitempty"`
	Bindings     []map[string]string `json:"bindings,omitempty"`
	FactCount    int                 `json:"fact_count"`
	LatencyMs    int64               `json:"latency_ms"`
	Cached       bool                `json:"cached,omitempty"`
}

func decodeTerm(d TermDTO) (datalog.Term, error) {
	switch d.Type {
	case "variable":
		if d.Name == "" {
			return nil, fmt.Errorf("variable term needs a name")
		}
		return datalog.Variable(d.Name), nil
	default:
		return decodeValue(d)
	}
}

func decodeValue(d TermDTO) (datalog.Value, error) {
	switch d.Type {
	case "symbol":
		return datalog.Symbol(d.Symbol), nil
	case "integer":
		return datalog.Integer(d.Integer), nil
	case "string":
		return datalog.Text(d.String), nil
	case "date":
		if d.Date == nil {
			return nil, fmt.Errorf("date term needs a date")
		}
		return datalog.DateOf(*d.Date), nil
	case "bytes":
		raw, err := hex.DecodeString(d.Bytes)
		if err != nil {
			return nil, fmt.Errorf("bytes term: %w", err)
		}
		return datalog.Bytes(raw), nil
	case "bool":
		return datalog.Bool(d.Bool), nil
	case "set":
		elems := make([]datalog.Value, 0, len(d.Set))
		for _, e := range d.Set {
			v, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("set element: %w", err)
			}
			elems = append(elems, v)
		}
		return datalog.NewSet(elems...)
	case "variable":
		return nil, fmt.Errorf("variables are not allowed here")
	default:
		return nil, fmt.Errorf("unknown term type %q", d.Type)
	}
}

var unaryOps = map[string]datalog.UnaryOp{
	"parens": datalog.OpParens,
	"negate": datalog.OpNegate,
	"length": datalog.OpLength,
}

var binaryOps = map[string]datalog.BinaryOp{
	"equal":            datalog.OpEqual,
	"less_than":        datalog.OpLessThan,
	"greater_than":     datalog.OpGreaterThan,
	"less_or_equal":    datalog.OpLessOrEqual,
	"greater_or_equal": datalog.OpGreaterOrEqual,
	"add":              datalog.OpAdd,
	"sub":              datalog.OpSub,
	"mul":              datalog.OpMul,
	"div":              datalog.OpDiv,
	"and":              datalog.OpAnd,
	"or":               datalog.OpOr,
	"prefix":           datalog.OpPrefix,
	"suffix":           datalog.OpSuffix,
	"contains":         datalog.OpContains,
	"intersection":     datalog.OpIntersection,
	"union":            datalog.OpUnion,
	"regex":            datalog.OpRegex,
}

func decodeExpression(d ExpressionDTO) (datalog.Expression, error) {
	switch {
	case d.Term != nil:
		t, err := decodeTerm(*d.Term)
		if err != nil {
			return nil, err
		}
		return datalog.ETerm(t), nil
	case d.Expr != nil:
		op, ok := unaryOps[d.Op]
		if !ok {
			return nil, fmt.Errorf("unknown unary operator %q", d.Op)
		}
		inner, err := decodeExpression(*d.Expr)
		if err != nil {
			return nil, err
		}
		return datalog.EUnary(op, inner), nil
	case d.Left != nil && d.Right != nil:
		op, ok := binaryOps[d.Op]
		if !ok {
			return nil, fmt.Errorf("unknown binary operator %q", d.Op)
		}
		left, err := decodeExpression(*d.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpression(*d.Right)
		if err != nil {
			return nil, err
		}
		return datalog.EBinary(op, left, right), nil
	default:
		return nil, fmt.Errorf("expression needs a term, a unary operand, or two binary operands")
	}
}

func decodePredicate(d PredicateDTO) (datalog.Predicate, error) {
	terms := make([]datalog.Term, 0, len(d.Terms))
	for _, td := range d.Terms {
		t, err := decodeTerm(td)
		if err != nil {
			return datalog.Predicate{}, fmt.Errorf("predicate %s: %w", d.Name, err)
		}
		terms = append(terms, t)
	}
	return datalog.Pred(d.Name, terms...), nil
}

func decodeFact(d PredicateDTO) (datalog.Fact, error) {
	values := make([]datalog.Value, 0, len(d.Terms))
	for _, td := range d.Terms {
		v, err := decodeValue(td)
		if err != nil {
			return datalog.Fact{}, fmt.Errorf("fact %s: %w", d.Name, err)
		}
		values = append(values, v)
	}
	return datalog.NewFact(d.Name, values...), nil
}

func decodeExpressions(ds []ExpressionDTO) ([]datalog.Expression, error) {
	out := make([]datalog.Expression, 0, len(ds))
	for _, d := range ds {
		e, err := decodeExpression(d)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeQuery(d QueryDTO) (datalog.Query, error) {
	body := make([]datalog.Predicate, 0, len(d.Body))
	for _, pd := range d.Body {
		p, err := decodePredicate(pd)
		if err != nil {
			return datalog.Query{}, err
		}
		body = append(body, p)
	}
	exprs, err := decodeExpressions(d.Expressions)
	if err != nil {
		return datalog.Query{}, err
	}
	return datalog.Query{Body: body, Expressions: exprs}, nil
}

func decodeQueries(ds []QueryDTO) ([]datalog.Query, error) {
	out := make([]datalog.Query, 0, len(ds))
	for _, d := range ds {
		q, err := decodeQuery(d)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func decodeBlock(d BlockDTO) (token.Block, error) {
	var b token.Block
	for _, fd := range d.Facts {
		f, err := decodeFact(fd)
		if err != nil {
			return token.Block{}, err
		}
		b.Facts = append(b.Facts, f)
	}
	for _, rd := range d.Rules {
		head, err := decodePredicate(rd.Head)
		if err != nil {
			return token.Block{}, err
		}
		body := make([]datalog.Predicate, 0, len(rd.Body))
		for _, pd := range rd.Body {
			p, err := decodePredicate(pd)
			if err != nil {
				return token.Block{}, err
			}
			body = append(body, p)
		}
		exprs, err := decodeExpressions(rd.Expressions)
		if err != nil {
			return token.Block{}, err
		}
		rule, err := datalog.NewRule(head, body, exprs...)
		if err != nil {
			return token.Block{}, err
		}
		b.Rules = append(b.Rules, rule)
	}
	for _, cd := range d.Checks {
		if len(cd.Queries) == 0 {
			return token.Block{}, fmt.Errorf("check needs at least one query")
		}
		queries, err := decodeQueries(cd.Queries)
		if err != nil {
			return token.Block{}, err
		}
		b.Checks = append(b.Checks, token.Check{Queries: queries})
	}
	return b, nil
}

func decodeSignedBlock(d SignedBlockDTO) (token.SignedBlock, error) {
	b, err := decodeBlock(d.Block)
	if err != nil {
		return token.SignedBlock{}, err
	}
	rev, err := hex.DecodeString(d.RevocationID)
	if err != nil {
		return token.SignedBlock{}, fmt.Errorf("revocation id: %w", err)
	}
	return token.SignedBlock{Block: b, RevocationID: rev}, nil
}

func decodeAuthorizer(d AuthorizerDTO) (token.Authorizer, error) {
	b, err := decodeBlock(d.Block)
	if err != nil {
		return token.Authorizer{}, err
	}
	policies := make([]token.Policy, 0, len(d.Policies))
	for _, pd := range d.Policies {
		var kind token.PolicyKind
		switch pd.Kind {
		case "allow":
			kind = token.PolicyAllow
		case "deny":
			kind = token.PolicyDeny
		default:
			return token.Authorizer{}, fmt.Errorf("unknown policy kind %q", pd.Kind)
		}
		if len(pd.Queries) == 0 {
			return token.Authorizer{}, fmt.Errorf("policy needs at least one query")
		}
		queries, err := decodeQueries(pd.Queries)
		if err != nil {
			return token.Authorizer{}, err
		}
		policies = append(policies, token.Policy{Kind: kind, Queries: queries})
	}
	return token.Authorizer{Block: b, Policies: policies}, nil
}
