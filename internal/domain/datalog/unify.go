package datalog

// Match unifies a body predicate with a ground fact. It requires equal
// name and arity, binds variables positionally, and rejects the match when
// a variable would take two different values or a literal term disagrees
// with the fact.
func Match(p Predicate, f Fact) (Binding, bool) {
	if p.Name != f.Name || len(p.Terms) != len(f.Values) {
		return nil, false
	}
	binding := make(Binding)
	for i, t := range p.Terms {
		fv := f.Values[i]
		switch term := t.(type) {
		case Variable:
			name := string(term)
			if bound, ok := binding[name]; ok {
				if !ValuesEqual(bound, fv) {
					return nil, false
				}
				continue
			}
			binding[name] = fv
		case Value:
			if !ValuesEqual(term, fv) {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return binding, true
}

// candidateBindings returns, for each body predicate in order, the
// bindings obtained by matching it against every fact in the set.
func candidateBindings(facts *FactSet, body []Predicate) [][]Binding {
	out := make([][]Binding, len(body))
	for i, p := range body {
		for _, f := range facts.Facts() {
			if b, ok := Match(p, f); ok {
				out[i] = append(out[i], b)
			}
		}
	}
	return out
}

// mergeBindings combines one binding per body predicate into a single
// consistent binding. Reports false when any variable is assigned two
// distinct values.
func mergeBindings(tuple []Binding) (Binding, bool) {
	merged := make(Binding)
	for _, b := range tuple {
		for name, v := range b {
			if existing, ok := merged[name]; ok {
				if !ValuesEqual(existing, v) {
					return nil, false
				}
				continue
			}
			merged[name] = v
		}
	}
	return merged, true
}
