package datalog

import (
	"testing"
	"time"
)

func TestNewSetRejectsNestedSets(t *testing.T) {
	inner := MustSet(Integer(1))
	if _, err := NewSet(Integer(1), inner); err == nil {
		t.Fatal("NewSet accepted a nested set")
	}
}

func TestNewSetDeduplicatesAndCanonicalizes(t *testing.T) {
	a := MustSet(Integer(3), Integer(1), Integer(3), Integer(2))
	b := MustSet(Integer(2), Integer(1), Integer(3))

	if a.Len() != 3 {
		t.Errorf("Len = %d, want 3 after dedup", a.Len())
	}
	if !ValuesEqual(a, b) {
		t.Errorf("sets with same elements in different order are not equal: %s vs %s", a, b)
	}
}

func TestValuesEqualDistinguishesKinds(t *testing.T) {
	// A symbol and a string with the same spelling are different values.
	if ValuesEqual(Symbol("admin"), Text("admin")) {
		t.Error("symbol and string compared equal")
	}
	// An integer and a date with the same underlying representation too.
	if ValuesEqual(Integer(0), DateOf(time.Unix(0, 0))) {
		t.Error("integer and date compared equal")
	}
}

func TestDateTruncatesToSeconds(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	withNanos := base.Add(500 * time.Millisecond)
	if !ValuesEqual(DateOf(base), DateOf(withNanos)) {
		t.Error("dates differing only in sub-second precision are not equal")
	}
}

func TestSetOperations(t *testing.T) {
	ab := MustSet(Symbol("a"), Symbol("b"))
	bc := MustSet(Symbol("b"), Symbol("c"))

	if got := ab.Union(bc); got.Len() != 3 {
		t.Errorf("union has %d elements, want 3", got.Len())
	}
	if got := ab.Intersection(bc); !ValuesEqual(got, MustSet(Symbol("b"))) {
		t.Errorf("intersection = %s, want [b]", got)
	}
	if !MustSet(Symbol("b")).SubsetOf(ab) {
		t.Error("[b] not reported as subset of [a, b]")
	}
	if ab.SubsetOf(bc) {
		t.Error("[a, b] reported as subset of [b, c]")
	}
}

func TestFactKeyIsInjective(t *testing.T) {
	// Same rendering risk: name boundaries must not bleed into values.
	a := NewFact("ab", Text("c"))
	b := NewFact("a", Text("bc"))
	if a.Key() == b.Key() {
		t.Error("distinct facts share a key")
	}

	c := NewFact("user", Text("alice"))
	d := NewFact("user", Symbol("alice"))
	if c.Key() == d.Key() {
		t.Error("facts differing only in value kind share a key")
	}
}
