package datalog

import (
	"github.com/cespare/xxhash/v2"
)

// FactSet is a deduplicated collection of facts. Lookup is bucketed by the
// xxhash of the fact's canonical key; iteration follows insertion order so
// fixpoint output stays deterministic for a given input order.
type FactSet struct {
	buckets map[uint64][]int
	facts   []Fact
}

// NewFactSet creates an empty fact set.
func NewFactSet() *FactSet {
	return &FactSet{buckets: make(map[uint64][]int)}
}

// Len returns the number of distinct facts.
func (s *FactSet) Len() int { return len(s.facts) }

// Contains reports whether the set holds a fact structurally equal to f.
func (s *FactSet) Contains(f Fact) bool {
	key := f.Key()
	for _, idx := range s.buckets[xxhash.Sum64String(key)] {
		if s.facts[idx].Key() == key {
			return true
		}
	}
	return false
}

// Add inserts f if not already present. Reports whether the set grew.
func (s *FactSet) Add(f Fact) bool {
	key := f.Key()
	h := xxhash.Sum64String(key)
	for _, idx := range s.buckets[h] {
		if s.facts[idx].Key() == key {
			return false
		}
	}
	s.buckets[h] = append(s.buckets[h], len(s.facts))
	s.facts = append(s.facts, f)
	return true
}

// AddAll inserts every fact in fs, returning the number actually added.
func (s *FactSet) AddAll(fs []Fact) int {
	added := 0
	for _, f := range fs {
		if s.Add(f) {
			added++
		}
	}
	return added
}

// Facts returns the facts in insertion order. The caller must not mutate
// the returned slice.
func (s *FactSet) Facts() []Fact { return s.facts }

// Clone returns an independent copy of the set.
func (s *FactSet) Clone() *FactSet {
	out := &FactSet{
		buckets: make(map[uint64][]int, len(s.buckets)),
		facts:   append([]Fact(nil), s.facts...),
	}
	for h, idxs := range s.buckets {
		out.buckets[h] = append([]int(nil), idxs...)
	}
	return out
}
