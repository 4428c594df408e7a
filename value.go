package loopguard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is any runtime value of the language:
//
//	float64, string, bool, nil (null and the empty list), Undefined,
//	*Pair, *Array, *Closure, *Builtin, Record, or a Shadow wrapping one of them.
type Value = any

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined is the value of a missing return or an unassigned array slot.
var Undefined Value = undefinedValue{}

// Pair is a mutable cons cell.
type Pair struct {
	Head Value
	Tail Value
}

// Array is a mutable, growable array.
type Array struct {
	Elems []Value
}

// Record is a read-only table of named members, used for injected objects.
type Record map[string]Value

// Callable is implemented by every value that can appear in call position.
type Callable interface {
	Call(in *Interpreter, args []Value) (Value, error)
	FuncName() string
}

// Shadow is implemented by values that carry extra information alongside a
// concrete value. The interpreter unwraps a Shadow wherever it must inspect
// the value itself.
type Shadow interface {
	Concrete() Value
}

// Wrapper is implemented by callables that stand in for another callable.
// === compares the callables they wrap.
type Wrapper interface {
	Unwrap() Callable
}

// identity strips every Wrapper around v.
func identity(v Value) Value {
	for {
		w, ok := v.(Wrapper)
		if !ok {
			return v
		}
		v = w.Unwrap()
	}
}

// Closure is a user function together with its defining environment.
type Closure struct {
	Name   string
	Params []string
	Body   *Block
	Expr   Expr
	Env    *Env
	Pos    Pos
}

func (c *Closure) FuncName() string { return c.Name }

// Builtin is a function implemented in Go. Arity -1 accepts any number of arguments.
type Builtin struct {
	Name  string
	Arity int
	Fn    func(in *Interpreter, args []Value) (Value, error)
}

func (b *Builtin) FuncName() string { return b.Name }

func (b *Builtin) Call(in *Interpreter, args []Value) (Value, error) {
	if b.Arity >= 0 && len(args) != b.Arity {
		return nil, runtimeErrorf(Pos{}, "%s: expected %d arguments, but got %d", b.Name, b.Arity, len(args))
	}
	return b.Fn(in, args)
}

// Unshadow strips any Shadow wrappers from v.
func Unshadow(v Value) Value {
	for {
		s, ok := v.(Shadow)
		if !ok {
			return v
		}
		v = s.Concrete()
	}
}

// IsCallable reports whether v can be called.
func IsCallable(v Value) bool {
	_, ok := Unshadow(v).(Callable)
	return ok
}

// TypeName names the type of v for error messages.
func TypeName(v Value) string {
	switch v := Unshadow(v).(type) {
	case nil:
		return "null"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case undefinedValue:
		return "undefined"
	case *Pair:
		return "pair"
	case *Array:
		return "array"
	case Record:
		return "object"
	case Callable:
		return "function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal implements ===. Primitives compare by value, everything else by identity.
func Equal(a, b Value) bool {
	a, b = identity(Unshadow(a)), identity(Unshadow(b))
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case undefinedValue:
		_, ok := b.(undefinedValue)
		return ok
	case *Pair:
		y, ok := b.(*Pair)
		return ok && x == y
	case *Array:
		y, ok := b.(*Array)
		return ok && x == y
	case *Closure:
		y, ok := b.(*Closure)
		return ok && x == y
	case *Builtin:
		y, ok := b.(*Builtin)
		return ok && x == y
	case Callable:
		y, ok := b.(Callable)
		return ok && x == y
	default:
		return false
	}
}

// FormatNumber renders a number the way display does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// Stringify renders v as display prints it. Cyclic structures are cut short.
func Stringify(v Value) string {
	var b strings.Builder
	stringify(&b, v, map[any]bool{})
	return b.String()
}

func stringify(b *strings.Builder, v Value, seen map[any]bool) {
	switch v := Unshadow(v).(type) {
	case nil:
		b.WriteString("null")
	case float64:
		b.WriteString(FormatNumber(v))
	case string:
		b.WriteString(strconv.Quote(v))
	case bool:
		b.WriteString(strconv.FormatBool(v))
	case undefinedValue:
		b.WriteString("undefined")
	case *Pair:
		if seen[v] {
			b.WriteString("...<circular>")
			return
		}
		seen[v] = true
		b.WriteByte('[')
		stringify(b, v.Head, seen)
		b.WriteString(", ")
		stringify(b, v.Tail, seen)
		b.WriteByte(']')
		delete(seen, v)
	case *Array:
		if seen[v] {
			b.WriteString("...<circular>")
			return
		}
		seen[v] = true
		b.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			stringify(b, e, seen)
		}
		b.WriteByte(']')
		delete(seen, v)
	case *Closure:
		if v.Name == "" {
			b.WriteString("<function>")
		} else {
			fmt.Fprintf(b, "<function %s>", v.Name)
		}
	case *Builtin:
		fmt.Fprintf(b, "<builtin %s>", v.Name)
	case Callable:
		fmt.Fprintf(b, "<function %s>", v.FuncName())
	case Record:
		b.WriteString("<object>")
	default:
		fmt.Fprintf(b, "%v", v)
	}
}
