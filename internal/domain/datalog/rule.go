package datalog

import (
	"fmt"
	"strings"
)

// Rule derives its head from a conjunction of body predicates filtered by
// boolean expressions. Head variables must appear in the body.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
}

// NewRule builds a rule and validates the safety condition: a non-empty
// body, and every head variable bound by the body.
func NewRule(head Predicate, body []Predicate, exprs ...Expression) (Rule, error) {
	if len(body) == 0 {
		return Rule{}, fmt.Errorf("rule %s: body must not be empty", head)
	}
	bodyVars := bodyVariables(body)
	for v := range head.variables() {
		if _, ok := bodyVars[v]; !ok {
			return Rule{}, fmt.Errorf("rule %s: head variable $%s does not appear in the body", head, v)
		}
	}
	return Rule{Head: head, Body: body, Expressions: exprs}, nil
}

// String renders the rule in surface syntax.
func (r Rule) String() string {
	parts := make([]string, 0, len(r.Body)+len(r.Expressions))
	for _, p := range r.Body {
		parts = append(parts, p.String())
	}
	for _, e := range r.Expressions {
		parts = append(parts, e.String())
	}
	return r.Head.String() + " <- " + strings.Join(parts, ", ")
}

func (r Rule) key() string {
	b := appendLenPrefixed(nil, 'r', []byte(r.String()))
	return string(b)
}

// Apply produces every fact the rule derives from the given facts: the
// Cartesian product of per-predicate candidate bindings, merged for
// consistency, filtered by the rule's expressions, substituted into the
// head. Expression faults reject the candidate tuple and nothing else.
func (r Rule) Apply(facts *FactSet) []Fact {
	candidates := candidateBindings(facts, r.Body)
	for _, c := range candidates {
		if len(c) == 0 {
			return nil
		}
	}

	bodyVars := bodyVariables(r.Body)

	var produced []Fact
	forEachTuple(candidates, func(tuple []Binding) {
		merged, ok := mergeBindings(tuple)
		if !ok {
			return
		}
		if !bindsAll(merged, bodyVars) {
			return
		}
		if !passesFilters(merged, r.Expressions) {
			return
		}
		if f, ok := substituteHead(r.Head, merged); ok {
			produced = append(produced, f)
		}
	})
	return produced
}

// forEachTuple walks the Cartesian product of the candidate sets in body
// order, invoking fn once per tuple.
func forEachTuple(candidates [][]Binding, fn func([]Binding)) {
	idx := make([]int, len(candidates))
	tuple := make([]Binding, len(candidates))
	for {
		for i, j := range idx {
			tuple[i] = candidates[i][j]
		}
		fn(tuple)

		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(candidates[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return
		}
	}
}

func bodyVariables(body []Predicate) map[string]struct{} {
	vars := make(map[string]struct{})
	for _, p := range body {
		for v := range p.variables() {
			vars[v] = struct{}{}
		}
	}
	return vars
}

func bindsAll(b Binding, vars map[string]struct{}) bool {
	for v := range vars {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}

// passesFilters evaluates every expression under the binding and requires
// each to reduce to true. Faults and non-boolean results count as failure.
func passesFilters(b Binding, exprs []Expression) bool {
	for _, e := range exprs {
		v, err := Evaluate(b, e)
		if err != nil {
			return false
		}
		result, ok := v.(Bool)
		if !ok || !bool(result) {
			return false
		}
	}
	return true
}

// substituteHead grounds the head under the binding. Reports false when a
// head variable is unbound.
func substituteHead(head Predicate, b Binding) (Fact, bool) {
	values := make([]Value, len(head.Terms))
	for i, t := range head.Terms {
		switch term := t.(type) {
		case Variable:
			v, ok := b[string(term)]
			if !ok {
				return Fact{}, false
			}
			values[i] = v
		case Value:
			values[i] = term
		default:
			return Fact{}, false
		}
	}
	return Fact{Name: head.Name, Values: values}, true
}
