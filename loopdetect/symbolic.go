package loopdetect

import (
	"strings"

	"github.com/speakeasy-api/loopguard"
)

// Value is a runtime value of the analyzed program.
type Value = loopguard.Value

// Expr is an immutable symbolic expression. Each node records the concrete
// value it stood for when it was built; the expression is never evaluated.
type Expr interface {
	Value() Value
	Depth() int
	String() string
	exprNode()
}

// Literal is a constant operand.
type Literal struct {
	Val Value
}

// Ident stands for a variable read. Name is the variable's tracking key.
type Ident struct {
	Name string
	Val  Value
}

type Unary struct {
	Op    string
	X     Expr
	Val   Value
	depth int
}

type Binary struct {
	Op          string
	Left, Right Expr
	Val         Value
	depth       int
}

// Unknown stands for a value whose derivation is not tracked.
type Unknown struct {
	Val Value
}

func (e *Literal) Value() Value { return e.Val }
func (e *Ident) Value() Value   { return e.Val }
func (e *Unary) Value() Value   { return e.Val }
func (e *Binary) Value() Value  { return e.Val }
func (e *Unknown) Value() Value { return e.Val }

func (*Literal) Depth() int  { return 1 }
func (*Ident) Depth() int    { return 1 }
func (e *Unary) Depth() int  { return e.depth }
func (e *Binary) Depth() int { return e.depth }
func (*Unknown) Depth() int  { return 1 }

func (*Literal) exprNode() {}
func (*Ident) exprNode()   {}
func (*Unary) exprNode()   {}
func (*Binary) exprNode()  {}
func (*Unknown) exprNode() {}

func newUnary(op string, x Expr, v Value) *Unary {
	return &Unary{Op: op, X: x, Val: v, depth: x.Depth() + 1}
}

func newBinary(op string, l, r Expr, v Value) *Binary {
	return &Binary{Op: op, Left: l, Right: r, Val: v, depth: max(l.Depth(), r.Depth()) + 1}
}

func (e *Literal) String() string { return loopguard.Stringify(e.Val) }
func (e *Ident) String() string   { return DisplayName(e.Name) }
func (e *Unknown) String() string { return "?" }

func (e *Unary) String() string {
	return e.Op + operand(e.X)
}

func (e *Binary) String() string {
	return operand(e.Left) + " " + e.Op + " " + operand(e.Right)
}

func operand(e Expr) string {
	if _, ok := e.(*Binary); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// DisplayName strips the scope qualifier from a tracking key.
func DisplayName(key string) string {
	name, _, _ := strings.Cut(key, "@")
	return name
}

var negatedComparison = map[string]string{
	"<":   ">=",
	">=":  "<",
	">":   "<=",
	"<=":  ">",
	"===": "!==",
	"!==": "===",
}

func isComparison(op string) bool {
	_, ok := negatedComparison[op]
	return ok
}

// negate builds the expression that holds when e does not. Comparisons flip
// their operator; anything else is wrapped in !.
func negate(e Expr) Expr {
	v, _ := e.Value().(bool)
	if b, ok := e.(*Binary); ok && isComparison(b.Op) {
		return newBinary(negatedComparison[b.Op], b.Left, b.Right, !v)
	}
	if u, ok := e.(*Unary); ok && u.Op == "!" {
		return u.X
	}
	return newUnary("!", e, !v)
}

// leaves returns the identifiers of e in left-to-right order.
func leaves(e Expr) []*Ident {
	var out []*Ident
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Ident:
			out = append(out, e)
		case *Unary:
			walk(e.X)
		case *Binary:
			walk(e.Left)
			walk(e.Right)
		}
	}
	walk(e)
	return out
}

// hasUnknown reports whether any part of e is untracked.
func hasUnknown(e Expr) bool {
	switch e := e.(type) {
	case *Unknown:
		return true
	case *Unary:
		return hasUnknown(e.X)
	case *Binary:
		return hasUnknown(e.Left) || hasUnknown(e.Right)
	}
	return false
}

// isLiteral reports whether e is built from constants only.
func isLiteral(e Expr) bool {
	switch e := e.(type) {
	case *Literal:
		return true
	case *Unary:
		return isLiteral(e.X)
	case *Binary:
		return isLiteral(e.Left) && isLiteral(e.Right)
	}
	return false
}
