package authz

import (
	"errors"
	"fmt"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
)

// ErrNoSuchBinding is returned by SingleValue when the named variable is
// absent from every solution.
var ErrNoSuchBinding = errors.New("no binding for variable")

// ErrAmbiguousBinding is returned by SingleValue when a variable takes
// more than one distinct value across the solutions.
var ErrAmbiguousBinding = errors.New("variable is bound to multiple values")

// QueryAuthorizerFacts evaluates a query against the trusted authority
// facts of a successful authorization. Facts contributed by attenuation
// blocks are not queryable after the fact.
func QueryAuthorizerFacts(s *Success, q datalog.Query) []datalog.Binding {
	return q.Solutions(s.AuthorityFacts)
}

// BoundValues projects the distinct values a named variable takes across
// a solution set.
func BoundValues(solutions []datalog.Binding, variable string) []datalog.Value {
	var out []datalog.Value
	seen := make(map[string]struct{})
	for _, b := range solutions {
		v, ok := b[variable]
		if !ok {
			continue
		}
		k := datalog.ValueKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SingleValue projects exactly one value for a named variable. It fails
// when the variable is unbound everywhere or bound to several values.
func SingleValue(solutions []datalog.Binding, variable string) (datalog.Value, error) {
	values := BoundValues(solutions, variable)
	switch len(values) {
	case 0:
		return nil, fmt.Errorf("%w: $%s", ErrNoSuchBinding, variable)
	case 1:
		return values[0], nil
	default:
		return nil, fmt.Errorf("%w: $%s has %d values", ErrAmbiguousBinding, variable, len(values))
	}
}
