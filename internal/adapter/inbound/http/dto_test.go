package http

import (
	"testing"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/datalog"
)

func TestDecodeTermKinds(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		dto  TermDTO
		want datalog.Term
	}{
		{name: "variable", dto: TermDTO{Type: "variable", Name: "x"}, want: datalog.Variable("x")},
		{name: "symbol", dto: TermDTO{Type: "symbol", Symbol: "admin"}, want: datalog.Symbol("admin")},
		{name: "integer", dto: TermDTO{Type: "integer", Integer: 42}, want: datalog.Integer(42)},
		{name: "string", dto: TermDTO{Type: "string", String: "alice"}, want: datalog.Text("alice")},
		{name: "date", dto: TermDTO{Type: "date", Date: &date}, want: datalog.DateOf(date)},
		{name: "bytes", dto: TermDTO{Type: "bytes", Bytes: "deadbeef"}, want: datalog.Bytes{0xde, 0xad, 0xbe, 0xef}},
		{name: "bool", dto: TermDTO{Type: "bool", Bool: true}, want: datalog.Bool(true)},
		{
			name: "set",
			dto:  TermDTO{Type: "set", Set: []TermDTO{{Type: "integer", Integer: 1}, {Type: "integer", Integer: 2}}},
			want: datalog.MustSet(datalog.Integer(1), datalog.Integer(2)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeTerm(tt.dto)
			if err != nil {
				t.Fatalf("decodeTerm: %v", err)
			}
			if got.String() != tt.want.String() {
				t.Errorf("decoded %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeTermRejectsInvalidInputs(t *testing.T) {
	invalid := []TermDTO{
		{Type: "unknown"},
		{Type: "variable"},                                    // missing name
		{Type: "bytes", Bytes: "zz"},                          // bad hex
		{Type: "date"},                                        // missing date
		{Type: "set", Set: []TermDTO{{Type: "set"}}},          // nested set
		{Type: "set", Set: []TermDTO{{Type: "variable", Name: "x"}}}, // variable in set
	}
	for _, dto := range invalid {
		if _, err := decodeTerm(dto); err == nil {
			t.Errorf("decodeTerm(%+v) accepted invalid input", dto)
		}
	}

	// Facts must not carry variables.
	if _, err := decodeFact(PredicateDTO{
		Name:  "user",
		Terms: []TermDTO{{Type: "variable", Name: "x"}},
	}); err == nil {
		t.Error("decodeFact accepted a variable")
	}
}

func TestDecodeExpressionTree(t *testing.T) {
	// ($n / 2) > 3
	dto := ExpressionDTO{
		Op: "greater_than",
		Left: &ExpressionDTO{
			Op:    "div",
			Left:  &ExpressionDTO{Term: &TermDTO{Type: "variable", Name: "n"}},
			Right: &ExpressionDTO{Term: &TermDTO{Type: "integer", Integer: 2}},
		},
		Right: &ExpressionDTO{Term: &TermDTO{Type: "integer", Integer: 3}},
	}

	expr, err := decodeExpression(dto)
	if err != nil {
		t.Fatalf("decodeExpression: %v", err)
	}

	got, err := datalog.Evaluate(datalog.Binding{"n": datalog.Integer(10)}, expr)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !datalog.ValuesEqual(got, datalog.Bool(true)) {
		t.Errorf("10/2 > 3 = %s, want true", got)
	}
}

func TestDecodeExpressionRejectsUnknownOps(t *testing.T) {
	_, err := decodeExpression(ExpressionDTO{
		Op:   "xor",
		Left: &ExpressionDTO{Term: &TermDTO{Type: "bool", Bool: true}},
		Right: &ExpressionDTO{
			Term: &TermDTO{Type: "bool", Bool: false},
		},
	})
	if err == nil {
		t.Error("decodeExpression accepted an unknown operator")
	}

	if _, err := decodeExpression(ExpressionDTO{}); err == nil {
		t.Error("decodeExpression accepted an empty node")
	}
}

func TestDecodeBlockValidatesRules(t *testing.T) {
	// Head variable absent from the body violates rule safety.
	_, err := decodeBlock(BlockDTO{
		Rules: []RuleDTO{{
			Head: PredicateDTO{Name: "grant", Terms: []TermDTO{{Type: "variable", Name: "who"}}},
			Body: []PredicateDTO{{Name: "user", Terms: []TermDTO{{Type: "variable", Name: "other"}}}},
		}},
	})
	if err == nil {
		t.Error("decodeBlock accepted an unsafe rule")
	}
}
