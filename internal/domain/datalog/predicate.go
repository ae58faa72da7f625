package datalog

import (
	"encoding/binary"
	"strings"
)

// Predicate is a named, ordered tuple of terms. Predicates in rule heads
// and bodies may contain variables. Name and arity together identify a
// relation.
type Predicate struct {
	Name  string
	Terms []Term
}

// Pred builds a predicate.
func Pred(name string, terms ...Term) Predicate {
	return Predicate{Name: name, Terms: terms}
}

// String renders the predicate in surface syntax.
func (p Predicate) String() string {
	parts := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		parts[i] = t.String()
	}
	return p.Name + "(" + strings.Join(parts, ", ") + ")"
}

func (p Predicate) appendKey(b []byte) []byte {
	b = appendLenPrefixed(b, 'p', []byte(p.Name))
	b = binary.BigEndian.AppendUint64(b, uint64(len(p.Terms)))
	for _, t := range p.Terms {
		b = t.appendKey(b)
	}
	return b
}

// variables returns the set of variable names occurring in the predicate.
func (p Predicate) variables() map[string]struct{} {
	vars := make(map[string]struct{})
	for _, t := range p.Terms {
		if v, ok := t.(Variable); ok {
			vars[string(v)] = struct{}{}
		}
	}
	return vars
}

// Fact is a ground predicate: every position holds a value. The type makes
// the no-variables-in-facts rule static.
type Fact struct {
	Name   string
	Values []Value
}

// NewFact builds a fact.
func NewFact(name string, values ...Value) Fact {
	return Fact{Name: name, Values: values}
}

// String renders the fact in surface syntax.
func (f Fact) String() string {
	parts := make([]string, len(f.Values))
	for i, v := range f.Values {
		parts[i] = v.String()
	}
	return f.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Key returns the canonical encoding of the fact, injective over name and
// values.
func (f Fact) Key() string {
	b := appendLenPrefixed(nil, 'f', []byte(f.Name))
	b = binary.BigEndian.AppendUint64(b, uint64(len(f.Values)))
	for _, v := range f.Values {
		b = v.appendKey(b)
	}
	return string(b)
}

// Predicate returns the fact viewed as a ground predicate.
func (f Fact) Predicate() Predicate {
	terms := make([]Term, len(f.Values))
	for i, v := range f.Values {
		terms[i] = v
	}
	return Predicate{Name: f.Name, Terms: terms}
}
