package loopguard

import (
	"math"
	"testing"
)

type boxed struct{ v Value }

func (b boxed) Concrete() Value { return b.v }

type wrapped struct{ fn Callable }

func (w *wrapped) Call(in *Interpreter, args []Value) (Value, error) { return w.fn.Call(in, args) }
func (w *wrapped) FuncName() string                                { return w.fn.FuncName() }
func (w *wrapped) Unwrap() Callable                                { return w.fn }

func TestEqual(t *testing.T) {
	fn := &Closure{Name: "f"}
	arr := &Array{}
	testCases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"numbers", 1.0, 1.0, true},
		{"different numbers", 1.0, 2.0, false},
		{"NaN", math.NaN(), math.NaN(), false},
		{"strings", "a", "a", true},
		{"number and string", 1.0, "1", false},
		{"null and undefined", nil, Undefined, false},
		{"undefined", Undefined, Undefined, true},
		{"same closure", fn, fn, true},
		{"different closures", fn, &Closure{Name: "f"}, false},
		{"same array", arr, arr, true},
		{"equal arrays", &Array{}, &Array{}, false},
		{"shadowed", boxed{2.0}, 2.0, true},
		{"nested shadows", boxed{boxed{"x"}}, boxed{"x"}, true},
		{"wrapped closure", &wrapped{fn}, fn, true},
		{"two wrappers", &wrapped{fn}, &wrapped{fn}, true},
		{"wrapper of another closure", &wrapped{fn}, &Closure{Name: "f"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Errorf("Equal(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-3.5, "-3.5"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
		{math.NaN(), "NaN"},
	}
	for _, tc := range testCases {
		if got := FormatNumber(tc.in); got != tc.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTypeName(t *testing.T) {
	testCases := []struct {
		v    Value
		want string
	}{
		{nil, "null"},
		{1.0, "number"},
		{"s", "string"},
		{false, "boolean"},
		{Undefined, "undefined"},
		{&Pair{}, "pair"},
		{&Array{}, "array"},
		{Record{}, "object"},
		{&Closure{}, "function"},
		{Builtins()["display"], "function"},
		{boxed{1.0}, "number"},
	}
	for _, tc := range testCases {
		if got := TypeName(tc.v); got != tc.want {
			t.Errorf("TypeName(%#v) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestStringifyFunctions(t *testing.T) {
	if got, want := Stringify(&Closure{}), "<function>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := Stringify(Builtins()["pair"]), "<builtin pair>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuiltinNamesSorted(t *testing.T) {
	names := BuiltinNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted at %d: %q >= %q", i, names[i-1], names[i])
		}
	}
	if len(names) != len(Builtins()) {
		t.Errorf("got %d names for %d builtins", len(names), len(Builtins()))
	}
}
