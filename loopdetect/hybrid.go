package loopdetect

import (
	"github.com/speakeasy-api/loopguard"
)

// ValueKind classifies runtime values seen by the hooks.
type ValueKind uint8

const (
	Concrete ValueKind = iota
	Symbolic
)

func (k ValueKind) String() string {
	if k == Symbolic {
		return "symbolic"
	}
	return "concrete"
}

// Hybrid pairs a concrete value with the symbolic expression it was derived
// from. Value is always what the uninstrumented program would compute.
// ValidPath is false once tracking failed for this value; it never comes back.
type Hybrid struct {
	Value     Value
	Expr      Expr
	Negation  Expr
	ValidPath bool
}

// Concrete lets the interpreter see through the hybrid.
func (h *Hybrid) Concrete() Value { return h.Value }

func (h *Hybrid) String() string { return h.Expr.String() }

// KindOf reports whether v is a hybrid.
func KindOf(v Value) ValueKind {
	if _, ok := v.(*Hybrid); ok {
		return Symbolic
	}
	return Concrete
}

// Hybridize wraps the value read from the variable key. Functions pass through.
func Hybridize(key string, v Value) Value {
	c := Concretize(v)
	if loopguard.IsCallable(c) {
		return v
	}
	return &Hybrid{Value: c, Expr: &Ident{Name: key, Val: c}, ValidPath: true}
}

// Concretize strips a hybrid wrapper.
func Concretize(v Value) Value {
	if h, ok := v.(*Hybrid); ok {
		return h.Value
	}
	return v
}

// deepConcretizeLimit bounds how many cells one DeepConcretize call visits.
const deepConcretizeLimit = 4096

// DeepConcretize strips hybrids from v and, in place, from the pairs and
// arrays reachable from it.
func DeepConcretize(v Value) Value {
	v = Concretize(v)
	seen := map[any]bool{}
	work := []Value{v}
	for len(work) > 0 && len(seen) < deepConcretizeLimit {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		switch c := cur.(type) {
		case *loopguard.Pair:
			if seen[c] {
				continue
			}
			seen[c] = true
			c.Head = Concretize(c.Head)
			c.Tail = Concretize(c.Tail)
			work = append(work, c.Head, c.Tail)
		case *loopguard.Array:
			if seen[c] {
				continue
			}
			seen[c] = true
			for i, e := range c.Elems {
				c.Elems[i] = Concretize(e)
				work = append(work, c.Elems[i])
			}
		}
	}
	return v
}

// MakeDummy wraps v in a hybrid of unknown provenance. Functions pass through.
func MakeDummy(v Value) Value {
	c := Concretize(v)
	if loopguard.IsCallable(c) {
		return v
	}
	return &Hybrid{Value: c, Expr: &Unknown{Val: c}, ValidPath: false}
}

// symbolOf returns the expression and validity of an operand.
func symbolOf(v Value) (Expr, bool) {
	if h, ok := v.(*Hybrid); ok {
		return h.Expr, h.ValidPath
	}
	return &Literal{Val: v}, true
}

func isNumber(v Value) bool {
	_, ok := v.(float64)
	return ok
}

// EvaluateBinary computes op over l and r and, when either is a hybrid,
// builds the symbolic result. Ordering and arithmetic are only tracked over
// numbers; equality is tracked for every shape.
func EvaluateBinary(op string, l, r Value, maxDepth int) (Value, error) {
	lc, rc := Concretize(l), Concretize(r)
	v, err := loopguard.EvalBinary(op, lc, rc)
	if err != nil {
		return nil, err
	}
	if KindOf(l) == Concrete && KindOf(r) == Concrete {
		return v, nil
	}
	le, lok := symbolOf(l)
	re, rok := symbolOf(r)
	valid := lok && rok
	if op != "===" && op != "!==" && !(isNumber(lc) && isNumber(rc)) {
		valid = false
	}
	return finish(newBinary(op, le, re, v), v, valid, maxDepth), nil
}

// EvaluateUnary is the one-operand counterpart of EvaluateBinary.
func EvaluateUnary(op string, x Value, maxDepth int) (Value, error) {
	xc := Concretize(x)
	v, err := loopguard.EvalUnary(op, xc)
	if err != nil {
		return nil, err
	}
	if KindOf(x) == Concrete {
		return v, nil
	}
	xe, valid := symbolOf(x)
	return finish(newUnary(op, xe, v), v, valid, maxDepth), nil
}

func finish(e Expr, v Value, valid bool, maxDepth int) *Hybrid {
	if e.Depth() > maxDepth {
		return &Hybrid{Value: v, Expr: &Unknown{Val: v}, ValidPath: false}
	}
	h := &Hybrid{Value: v, Expr: e, ValidPath: valid}
	if _, ok := v.(bool); ok {
		h.Negation = negate(e)
	}
	return h
}
