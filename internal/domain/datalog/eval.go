package datalog

import (
	"errors"
	"fmt"
	"strings"
)

// Evaluation faults. They never escape a rule application or check: a
// faulting expression rejects the enclosing solution and nothing else.
var (
	// ErrUnboundVariable is returned when an expression leaf names a
	// variable the binding does not cover.
	ErrUnboundVariable = errors.New("unbound variable")
	// ErrTypeMismatch is returned when operand kinds do not fit the
	// operator.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrDivideByZero is returned for integer division by zero.
	ErrDivideByZero = errors.New("division by zero")
	// ErrRegexUnsupported is returned for the regex operator, which is
	// permanently disabled.
	ErrRegexUnsupported = errors.New("regular expressions are not supported")
)

// Binding maps variable names to values.
type Binding map[string]Value

// Clone returns an independent copy of the binding.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Evaluate reduces an expression to a value under the binding. Evaluation
// is strict and left to right: both operands of && and || are always
// evaluated, so a fault on either side faults the whole expression even
// when the other side would decide the result.
func Evaluate(b Binding, e Expression) (Value, error) {
	switch x := e.(type) {
	case TermExpr:
		switch t := x.Term.(type) {
		case Variable:
			v, ok := b[string(t)]
			if !ok {
				return nil, fmt.Errorf("%w: $%s", ErrUnboundVariable, string(t))
			}
			return v, nil
		case Value:
			return t, nil
		default:
			return nil, fmt.Errorf("%w: unexpected term %s", ErrTypeMismatch, x.Term)
		}
	case UnaryExpr:
		arg, err := Evaluate(b, x.Expr)
		if err != nil {
			return nil, err
		}
		return evalUnary(x.Op, arg)
	case BinaryExpr:
		lhs, err := Evaluate(b, x.Left)
		if err != nil {
			return nil, err
		}
		rhs, err := Evaluate(b, x.Right)
		if err != nil {
			return nil, err
		}
		return evalBinary(x.Op, lhs, rhs)
	default:
		return nil, fmt.Errorf("%w: unknown expression %T", ErrTypeMismatch, e)
	}
}

func evalUnary(op UnaryOp, arg Value) (Value, error) {
	switch op {
	case OpParens:
		return arg, nil
	case OpNegate:
		v, ok := arg.(Bool)
		if !ok {
			return nil, fmt.Errorf("%w: ! needs bool, got %s", ErrTypeMismatch, arg.Kind())
		}
		return Bool(!v), nil
	case OpLength:
		switch v := arg.(type) {
		case Text:
			return Integer(textLength(v)), nil
		case Bytes:
			return Integer(len(v)), nil
		case Set:
			return Integer(v.Len()), nil
		default:
			return nil, fmt.Errorf("%w: length needs string, bytes or set, got %s", ErrTypeMismatch, arg.Kind())
		}
	default:
		return nil, fmt.Errorf("%w: unknown unary operator %s", ErrTypeMismatch, op)
	}
}

func evalBinary(op BinaryOp, lhs, rhs Value) (Value, error) {
	switch op {
	case OpEqual:
		if lhs.Kind() != rhs.Kind() {
			return nil, fmt.Errorf("%w: == needs like-typed operands, got %s and %s", ErrTypeMismatch, lhs.Kind(), rhs.Kind())
		}
		return Bool(ValuesEqual(lhs, rhs)), nil

	case OpLessThan, OpGreaterThan, OpLessOrEqual, OpGreaterOrEqual:
		return evalOrdering(op, lhs, rhs)

	case OpAdd, OpSub, OpMul, OpDiv:
		return evalArithmetic(op, lhs, rhs)

	case OpAnd, OpOr:
		l, lok := lhs.(Bool)
		r, rok := rhs.(Bool)
		if !lok || !rok {
			return nil, fmt.Errorf("%w: %s needs bool operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
		}
		if op == OpAnd {
			return Bool(l && r), nil
		}
		return Bool(l || r), nil

	case OpPrefix, OpSuffix:
		l, lok := lhs.(Text)
		r, rok := rhs.(Text)
		if !lok || !rok {
			return nil, fmt.Errorf("%w: %s needs string operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
		}
		if op == OpPrefix {
			return Bool(strings.HasPrefix(string(l), string(r))), nil
		}
		return Bool(strings.HasSuffix(string(l), string(r))), nil

	case OpContains:
		l, ok := lhs.(Set)
		if !ok {
			return nil, fmt.Errorf("%w: contains needs a set on the left, got %s", ErrTypeMismatch, lhs.Kind())
		}
		if r, isSet := rhs.(Set); isSet {
			return Bool(r.SubsetOf(l)), nil
		}
		return Bool(l.ContainsValue(rhs)), nil

	case OpIntersection, OpUnion:
		l, lok := lhs.(Set)
		r, rok := rhs.(Set)
		if !lok || !rok {
			return nil, fmt.Errorf("%w: %s needs set operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
		}
		if op == OpIntersection {
			return l.Intersection(r), nil
		}
		return l.Union(r), nil

	case OpRegex:
		return nil, ErrRegexUnsupported

	default:
		return nil, fmt.Errorf("%w: unknown binary operator %s", ErrTypeMismatch, op)
	}
}

func evalOrdering(op BinaryOp, lhs, rhs Value) (Value, error) {
	var l, r int64
	switch lv := lhs.(type) {
	case Integer:
		rv, ok := rhs.(Integer)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs matching integer or date operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
		}
		l, r = int64(lv), int64(rv)
	case Date:
		rv, ok := rhs.(Date)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs matching integer or date operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
		}
		l, r = int64(lv), int64(rv)
	default:
		return nil, fmt.Errorf("%w: %s needs integer or date operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
	}

	switch op {
	case OpLessThan:
		return Bool(l < r), nil
	case OpGreaterThan:
		return Bool(l > r), nil
	case OpLessOrEqual:
		return Bool(l <= r), nil
	default:
		return Bool(l >= r), nil
	}
}

func evalArithmetic(op BinaryOp, lhs, rhs Value) (Value, error) {
	l, lok := lhs.(Integer)
	r, rok := rhs.(Integer)
	if !lok || !rok {
		return nil, fmt.Errorf("%w: %s needs integer operands, got %s and %s", ErrTypeMismatch, op, lhs.Kind(), rhs.Kind())
	}
	switch op {
	case OpAdd:
		return Integer(l + r), nil
	case OpSub:
		return Integer(l - r), nil
	case OpMul:
		return Integer(l * r), nil
	default:
		if r == 0 {
			return nil, ErrDivideByZero
		}
		return Integer(l / r), nil
	}
}
