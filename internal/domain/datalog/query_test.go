package datalog

import "testing"

func TestQuerySolutionsRestrictAndDeduplicate(t *testing.T) {
	facts := factSet(
		NewFact("member", Text("alice"), Symbol("ops")),
		NewFact("member", Text("alice"), Symbol("dev")),
		NewFact("member", Text("bob"), Symbol("dev")),
	)

	q := Query{Body: []Predicate{Pred("member", Variable("who"), Variable("team"))}}
	sols := q.Solutions(facts)
	if len(sols) != 3 {
		t.Fatalf("got %d solutions, want 3", len(sols))
	}

	// Fixing the team to dev leaves one row per dev member, and each
	// solution binds only $who.
	projected := Query{Body: []Predicate{Pred("member", Variable("who"), Symbol("dev"))}}
	sols = projected.Solutions(facts)
	if len(sols) != 2 {
		t.Fatalf("got %d dev members, want 2", len(sols))
	}
	for _, b := range sols {
		if _, ok := b["who"]; !ok {
			t.Errorf("solution %v misses $who", b)
		}
		if len(b) != 1 {
			t.Errorf("solution %v exposes more than the query's variables", b)
		}
	}
}

func TestQuerySolutionsApplyExpressionFilters(t *testing.T) {
	facts := factSet(
		NewFact("age", Text("alice"), Integer(35)),
		NewFact("age", Text("bob"), Integer(12)),
	)

	q := Query{
		Body:        []Predicate{Pred("age", Variable("who"), Variable("n"))},
		Expressions: []Expression{EBinary(OpGreaterOrEqual, ETerm(Variable("n")), ETerm(Integer(18)))},
	}

	sols := q.Solutions(facts)
	if len(sols) != 1 {
		t.Fatalf("got %d adult solutions, want 1", len(sols))
	}
	if !ValuesEqual(sols[0]["who"], Text("alice")) {
		t.Errorf("solution binds who=%s, want alice", sols[0]["who"])
	}
}

func TestQueryWithNoMatchHasEmptySolutions(t *testing.T) {
	facts := factSet(NewFact("user", Text("alice")))
	q := Query{Body: []Predicate{Pred("admin", Variable("who"))}}
	if sols := q.Solutions(facts); len(sols) != 0 {
		t.Fatalf("got %v, want no solutions", sols)
	}
}

func TestFactSetDeduplicates(t *testing.T) {
	s := NewFactSet()
	if !s.Add(NewFact("user", Text("alice"))) {
		t.Error("first Add reported no growth")
	}
	if s.Add(NewFact("user", Text("alice"))) {
		t.Error("duplicate Add reported growth")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if !s.Contains(NewFact("user", Text("alice"))) {
		t.Error("Contains missed a stored fact")
	}
}

func TestFactSetCloneIsIndependent(t *testing.T) {
	s := NewFactSet()
	s.Add(NewFact("user", Text("alice")))

	c := s.Clone()
	c.Add(NewFact("user", Text("bob")))

	if s.Len() != 1 {
		t.Errorf("mutating the clone changed the original: Len = %d", s.Len())
	}
	if c.Len() != 2 {
		t.Errorf("clone Len = %d, want 2", c.Len())
	}
}
