package datalog

import (
	"sort"
	"strings"
)

// Query is a rule body without a head: a conjunction of predicates plus
// expression filters. Checks and policies are disjunctions of queries.
type Query struct {
	Body        []Predicate
	Expressions []Expression
}

// String renders the query in surface syntax.
func (q Query) String() string {
	parts := make([]string, 0, len(q.Body)+len(q.Expressions))
	for _, p := range q.Body {
		parts = append(parts, p.String())
	}
	for _, e := range q.Expressions {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}

// variables returns the names the query exposes: variables occurring in
// its body or expressions.
func (q Query) variables() map[string]struct{} {
	vars := bodyVariables(q.Body)
	for _, e := range q.Expressions {
		exprVariables(e, vars)
	}
	return vars
}

// Solutions evaluates the query as a synthetic rule over its free
// variables and returns the distinct bindings, each restricted to the
// variables the query exposes. An empty result means the query is not
// satisfied.
func (q Query) Solutions(facts *FactSet) []Binding {
	candidates := candidateBindings(facts, q.Body)
	for _, c := range candidates {
		if len(c) == 0 {
			return nil
		}
	}

	exposed := q.variables()
	bodyVars := bodyVariables(q.Body)

	var solutions []Binding
	seen := make(map[string]struct{})
	forEachTuple(candidates, func(tuple []Binding) {
		merged, ok := mergeBindings(tuple)
		if !ok {
			return
		}
		if !bindsAll(merged, bodyVars) {
			return
		}
		if !passesFilters(merged, q.Expressions) {
			return
		}
		restricted := make(Binding, len(exposed))
		for v := range exposed {
			if val, ok := merged[v]; ok {
				restricted[v] = val
			}
		}
		key := bindingKey(restricted)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		solutions = append(solutions, restricted)
	})
	return solutions
}

// bindingKey returns a canonical encoding of a binding, injective over
// variable names and values.
func bindingKey(b Binding) string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	for _, name := range names {
		buf = appendLenPrefixed(buf, 'n', []byte(name))
		buf = b[name].appendKey(buf)
	}
	return string(buf)
}
