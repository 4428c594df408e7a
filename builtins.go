package loopguard

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/itchyny/timefmt-go"
)

// builtinRegistry maps builtin names to their implementations.
var builtinRegistry = map[string]*Builtin{
	// Output
	"display": {Arity: 1, Fn: builtinDisplay},
	"error":   {Arity: 1, Fn: builtinError},

	// Pairs and lists
	"pair":     {Arity: 2, Fn: builtinPair},
	"head":     {Arity: 1, Fn: builtinHead},
	"tail":     {Arity: 1, Fn: builtinTail},
	"set_head": {Arity: 2, Fn: builtinSetHead},
	"set_tail": {Arity: 2, Fn: builtinSetTail},
	"is_pair":  {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(*Pair); return ok })},
	"is_null":  {Arity: 1, Fn: typePredicate(func(v Value) bool { return v == nil })},
	"list":     {Arity: -1, Fn: builtinList},

	// Type predicates
	"is_number":    {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(float64); return ok })},
	"is_string":    {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(string); return ok })},
	"is_boolean":   {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(bool); return ok })},
	"is_function":  {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(Callable); return ok })},
	"is_undefined": {Arity: 1, Fn: typePredicate(func(v Value) bool { return v == Undefined })},
	"is_array":     {Arity: 1, Fn: typePredicate(func(v Value) bool { _, ok := v.(*Array); return ok })},
	"array_length": {Arity: 1, Fn: builtinArrayLength},

	// Math
	"math_floor":  {Arity: 1, Fn: mathFunc(math.Floor)},
	"math_ceil":   {Arity: 1, Fn: mathFunc(math.Ceil)},
	"math_abs":    {Arity: 1, Fn: mathFunc(math.Abs)},
	"math_sqrt":   {Arity: 1, Fn: mathFunc(math.Sqrt)},
	"math_pow":    {Arity: 2, Fn: builtinPow},
	"math_max":    {Arity: -1, Fn: mathFold(math.Max, math.Inf(-1))},
	"math_min":    {Arity: -1, Fn: mathFold(math.Min, math.Inf(1))},
	"math_random": {Arity: 0, Fn: func(*Interpreter, []Value) (Value, error) { return rand.Float64(), nil }},

	// Strings
	"stringify":     {Arity: 1, Fn: func(_ *Interpreter, args []Value) (Value, error) { return Stringify(args[0]), nil }},
	"string_length": {Arity: 1, Fn: builtinStringLength},
	"char_at":       {Arity: 2, Fn: builtinCharAt},

	// Time
	"runtime":  {Arity: 0, Fn: builtinRuntime},
	"strftime": {Arity: 2, Fn: builtinStrftime},
}

func init() {
	for name, b := range builtinRegistry {
		b.Name = name
	}
}

// Builtins returns the builtin table keyed by name.
func Builtins() map[string]*Builtin {
	out := make(map[string]*Builtin, len(builtinRegistry))
	for name, b := range builtinRegistry {
		out[name] = b
	}
	return out
}

// BuiltinNames lists the builtin names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtinRegistry))
	for name := range builtinRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builtinDisplay(in *Interpreter, args []Value) (Value, error) {
	fmt.Fprintln(in.Out, Stringify(args[0]))
	return args[0], nil
}

func builtinError(_ *Interpreter, args []Value) (Value, error) {
	msg, ok := Unshadow(args[0]).(string)
	if !ok {
		msg = Stringify(args[0])
	}
	return nil, runtimeErrorf(Pos{}, "Error: %s", msg)
}

func builtinPair(_ *Interpreter, args []Value) (Value, error) {
	return &Pair{Head: args[0], Tail: args[1]}, nil
}

func asPair(name string, v Value) (*Pair, error) {
	p, ok := Unshadow(v).(*Pair)
	if !ok {
		return nil, runtimeErrorf(Pos{}, "%s expects a pair as argument, but got %s", name, TypeName(v))
	}
	return p, nil
}

func builtinHead(_ *Interpreter, args []Value) (Value, error) {
	p, err := asPair("head", args[0])
	if err != nil {
		return nil, err
	}
	return p.Head, nil
}

func builtinTail(_ *Interpreter, args []Value) (Value, error) {
	p, err := asPair("tail", args[0])
	if err != nil {
		return nil, err
	}
	return p.Tail, nil
}

func builtinSetHead(_ *Interpreter, args []Value) (Value, error) {
	p, err := asPair("set_head", args[0])
	if err != nil {
		return nil, err
	}
	p.Head = args[1]
	return Undefined, nil
}

func builtinSetTail(_ *Interpreter, args []Value) (Value, error) {
	p, err := asPair("set_tail", args[0])
	if err != nil {
		return nil, err
	}
	p.Tail = args[1]
	return Undefined, nil
}

func builtinList(_ *Interpreter, args []Value) (Value, error) {
	var l Value
	for i := len(args) - 1; i >= 0; i-- {
		l = &Pair{Head: args[i], Tail: l}
	}
	return l, nil
}

func typePredicate(pred func(Value) bool) func(*Interpreter, []Value) (Value, error) {
	return func(_ *Interpreter, args []Value) (Value, error) {
		return pred(Unshadow(args[0])), nil
	}
}

func builtinArrayLength(_ *Interpreter, args []Value) (Value, error) {
	arr, ok := Unshadow(args[0]).(*Array)
	if !ok {
		return nil, runtimeErrorf(Pos{}, "array_length expects an array as argument, but got %s", TypeName(args[0]))
	}
	return float64(len(arr.Elems)), nil
}

func number(name string, v Value) (float64, error) {
	f, ok := Unshadow(v).(float64)
	if !ok {
		return 0, runtimeErrorf(Pos{}, "%s expects a number as argument, but got %s", name, TypeName(v))
	}
	return f, nil
}

func mathFunc(f func(float64) float64) func(*Interpreter, []Value) (Value, error) {
	return func(_ *Interpreter, args []Value) (Value, error) {
		x, err := number("math function", args[0])
		if err != nil {
			return nil, err
		}
		return f(x), nil
	}
}

func mathFold(f func(a, b float64) float64, zero float64) func(*Interpreter, []Value) (Value, error) {
	return func(_ *Interpreter, args []Value) (Value, error) {
		acc := zero
		for _, a := range args {
			x, err := number("math function", a)
			if err != nil {
				return nil, err
			}
			acc = f(acc, x)
		}
		return acc, nil
	}
}

func builtinPow(_ *Interpreter, args []Value) (Value, error) {
	x, err := number("math_pow", args[0])
	if err != nil {
		return nil, err
	}
	y, err := number("math_pow", args[1])
	if err != nil {
		return nil, err
	}
	return math.Pow(x, y), nil
}

func builtinStringLength(_ *Interpreter, args []Value) (Value, error) {
	s, ok := Unshadow(args[0]).(string)
	if !ok {
		return nil, runtimeErrorf(Pos{}, "string_length expects a string as argument, but got %s", TypeName(args[0]))
	}
	return float64(len([]rune(s))), nil
}

func builtinCharAt(_ *Interpreter, args []Value) (Value, error) {
	s, ok := Unshadow(args[0]).(string)
	if !ok {
		return nil, runtimeErrorf(Pos{}, "char_at expects a string as first argument, but got %s", TypeName(args[0]))
	}
	i, err := number("char_at", args[1])
	if err != nil {
		return nil, err
	}
	r := []rune(s)
	if i < 0 || i != math.Trunc(i) || i >= float64(len(r)) {
		return Undefined, nil
	}
	return string(r[int(i)]), nil
}

func builtinRuntime(in *Interpreter, _ []Value) (Value, error) {
	return float64(time.Since(in.start).Milliseconds()), nil
}

// builtinStrftime formats a millisecond timestamp in UTC.
func builtinStrftime(_ *Interpreter, args []Value) (Value, error) {
	format, ok := Unshadow(args[0]).(string)
	if !ok {
		return nil, runtimeErrorf(Pos{}, "strftime expects a format string, but got %s", TypeName(args[0]))
	}
	ms, err := number("strftime", args[1])
	if err != nil {
		return nil, err
	}
	return timefmt.Format(time.UnixMilli(int64(ms)).UTC(), format), nil
}
