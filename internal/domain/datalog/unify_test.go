package datalog

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		name      string
		pred      Predicate
		fact      Fact
		wantMatch bool
		wantBind  Binding
	}{
		{
			name:      "literal terms match",
			pred:      Pred("user", Text("alice")),
			fact:      NewFact("user", Text("alice")),
			wantMatch: true,
			wantBind:  Binding{},
		},
		{
			name:      "variable binds to value",
			pred:      Pred("user", Variable("who")),
			fact:      NewFact("user", Text("alice")),
			wantMatch: true,
			wantBind:  Binding{"who": Text("alice")},
		},
		{
			name:      "name mismatch",
			pred:      Pred("user", Variable("who")),
			fact:      NewFact("group", Text("alice")),
			wantMatch: false,
		},
		{
			name:      "arity mismatch",
			pred:      Pred("user", Variable("who")),
			fact:      NewFact("user", Text("alice"), Integer(1)),
			wantMatch: false,
		},
		{
			name:      "literal mismatch",
			pred:      Pred("user", Text("bob")),
			fact:      NewFact("user", Text("alice")),
			wantMatch: false,
		},
		{
			name:      "repeated variable must agree",
			pred:      Pred("edge", Variable("n"), Variable("n")),
			fact:      NewFact("edge", Integer(1), Integer(2)),
			wantMatch: false,
		},
		{
			name:      "repeated variable agreeing",
			pred:      Pred("edge", Variable("n"), Variable("n")),
			fact:      NewFact("edge", Integer(1), Integer(1)),
			wantMatch: true,
			wantBind:  Binding{"n": Integer(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Match(tt.pred, tt.fact)
			if ok != tt.wantMatch {
				t.Fatalf("match = %v, want %v", ok, tt.wantMatch)
			}
			if !ok {
				return
			}
			if len(got) != len(tt.wantBind) {
				t.Fatalf("binding %v, want %v", got, tt.wantBind)
			}
			for name, want := range tt.wantBind {
				if v, ok := got[name]; !ok || !ValuesEqual(v, want) {
					t.Errorf("binding[%s] = %v, want %s", name, v, want)
				}
			}
		})
	}
}

func TestCandidateBindingsPerPredicate(t *testing.T) {
	facts := NewFactSet()
	facts.Add(NewFact("user", Text("alice")))
	facts.Add(NewFact("user", Text("bob")))
	facts.Add(NewFact("role", Text("alice"), Symbol("admin")))

	body := []Predicate{
		Pred("user", Variable("who")),
		Pred("role", Variable("who"), Variable("r")),
	}

	sets := candidateBindings(facts, body)
	if len(sets) != 2 {
		t.Fatalf("got %d candidate sets, want 2", len(sets))
	}
	if len(sets[0]) != 2 {
		t.Errorf("user predicate has %d candidates, want 2", len(sets[0]))
	}
	if len(sets[1]) != 1 {
		t.Errorf("role predicate has %d candidates, want 1", len(sets[1]))
	}
}
