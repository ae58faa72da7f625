package datalog

import "fmt"

// Expression is an operator tree over terms. Expressions appear as filters
// on rules, checks, and policies and must reduce to a boolean there. The
// interface is sealed.
type Expression interface {
	fmt.Stringer
	isExpression()
}

// TermExpr is a leaf holding a value or variable.
type TermExpr struct {
	Term Term
}

// UnaryExpr applies a unary operator to a subexpression.
type UnaryExpr struct {
	Op   UnaryOp
	Expr Expression
}

// BinaryExpr applies a binary operator to two subexpressions.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (TermExpr) isExpression()   {}
func (UnaryExpr) isExpression()  {}
func (BinaryExpr) isExpression() {}

// ETerm wraps a term as an expression leaf.
func ETerm(t Term) Expression { return TermExpr{Term: t} }

// EUnary builds a unary expression.
func EUnary(op UnaryOp, e Expression) Expression { return UnaryExpr{Op: op, Expr: e} }

// EBinary builds a binary expression.
func EBinary(op BinaryOp, l, r Expression) Expression {
	return BinaryExpr{Op: op, Left: l, Right: r}
}

// UnaryOp enumerates the unary operators.
type UnaryOp int

const (
	OpParens UnaryOp = iota
	OpNegate
	OpLength
)

// BinaryOp enumerates the binary operators. The table is closed: there is
// no runtime extension mechanism.
type BinaryOp int

const (
	OpEqual BinaryOp = iota
	OpLessThan
	OpGreaterThan
	OpLessOrEqual
	OpGreaterOrEqual
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpPrefix
	OpSuffix
	OpContains
	OpIntersection
	OpUnion
	OpRegex
)

func (op UnaryOp) String() string {
	switch op {
	case OpParens:
		return "parens"
	case OpNegate:
		return "!"
	case OpLength:
		return "length"
	default:
		return fmt.Sprintf("unary(%d)", int(op))
	}
}

func (op BinaryOp) String() string {
	switch op {
	case OpEqual:
		return "=="
	case OpLessThan:
		return "<"
	case OpGreaterThan:
		return ">"
	case OpLessOrEqual:
		return "<="
	case OpGreaterOrEqual:
		return ">="
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpPrefix:
		return "starts_with"
	case OpSuffix:
		return "ends_with"
	case OpContains:
		return "contains"
	case OpIntersection:
		return "intersection"
	case OpUnion:
		return "union"
	case OpRegex:
		return "matches"
	default:
		return fmt.Sprintf("binary(%d)", int(op))
	}
}

func (e TermExpr) String() string { return e.Term.String() }

func (e UnaryExpr) String() string {
	switch e.Op {
	case OpParens:
		return "(" + e.Expr.String() + ")"
	case OpNegate:
		return "!" + e.Expr.String()
	case OpLength:
		return e.Expr.String() + ".length()"
	default:
		return fmt.Sprintf("%s(%s)", e.Op, e.Expr)
	}
}

func (e BinaryExpr) String() string {
	switch e.Op {
	case OpPrefix, OpSuffix, OpContains, OpIntersection, OpUnion, OpRegex:
		return fmt.Sprintf("%s.%s(%s)", e.Left, e.Op, e.Right)
	default:
		return fmt.Sprintf("%s %s %s", e.Left, e.Op, e.Right)
	}
}

// exprVariables collects variable names appearing in expression leaves.
func exprVariables(e Expression, into map[string]struct{}) {
	switch x := e.(type) {
	case TermExpr:
		if v, ok := x.Term.(Variable); ok {
			into[string(v)] = struct{}{}
		}
	case UnaryExpr:
		exprVariables(x.Expr, into)
	case BinaryExpr:
		exprVariables(x.Left, into)
		exprVariables(x.Right, into)
	}
}
