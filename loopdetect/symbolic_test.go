package loopdetect

import (
	"testing"

	"github.com/speakeasy-api/loopguard"
)

const keyI = "i@1:1:1"

func TestEvaluateBinary(t *testing.T) {
	t.Run("concrete operands stay concrete", func(t *testing.T) {
		v, err := EvaluateBinary("+", 1.0, 2.0, 32)
		if err != nil {
			t.Fatal(err)
		}
		if v != 3.0 {
			t.Errorf("got %v, want 3", v)
		}
	})

	t.Run("arithmetic over a variable", func(t *testing.T) {
		v, err := EvaluateBinary("+", Hybridize(keyI, 0.0), 1.0, 32)
		if err != nil {
			t.Fatal(err)
		}
		h, ok := v.(*Hybrid)
		if !ok {
			t.Fatalf("got %T, want *Hybrid", v)
		}
		if h.Value != 1.0 || !h.ValidPath || h.Negation != nil {
			t.Errorf("got %+v", h)
		}
		if got := h.String(); got != "i + 1" {
			t.Errorf("String() = %q, want %q", got, "i + 1")
		}
	})

	t.Run("comparison carries its negation", func(t *testing.T) {
		v, err := EvaluateBinary("<", Hybridize(keyI, 3.0), 10.0, 32)
		if err != nil {
			t.Fatal(err)
		}
		h := v.(*Hybrid)
		if h.Value != true {
			t.Errorf("Value = %v, want true", h.Value)
		}
		if got := h.Expr.String(); got != "i < 10" {
			t.Errorf("Expr = %q", got)
		}
		if got := h.Negation.String(); got != "i >= 10" {
			t.Errorf("Negation = %q", got)
		}
		if h.Negation.Value() != false {
			t.Errorf("Negation value = %v, want false", h.Negation.Value())
		}
	})

	t.Run("ordering over strings is untracked", func(t *testing.T) {
		v, err := EvaluateBinary("<", Hybridize("s@1:1:1", "a"), "b", 32)
		if err != nil {
			t.Fatal(err)
		}
		if v.(*Hybrid).ValidPath {
			t.Error("string ordering kept a valid path")
		}
	})

	t.Run("equality over strings is tracked", func(t *testing.T) {
		v, err := EvaluateBinary("===", Hybridize("s@1:1:1", "a"), "b", 32)
		if err != nil {
			t.Fatal(err)
		}
		if h := v.(*Hybrid); !h.ValidPath || h.Value != false {
			t.Errorf("got %+v", h)
		}
	})

	t.Run("depth limit", func(t *testing.T) {
		x := Hybridize(keyI, 0.0)
		y, err := EvaluateBinary("+", x, 1.0, 2)
		if err != nil {
			t.Fatal(err)
		}
		if !y.(*Hybrid).ValidPath {
			t.Fatal("depth 2 already invalid")
		}
		z, err := EvaluateBinary("+", y, 1.0, 2)
		if err != nil {
			t.Fatal(err)
		}
		h := z.(*Hybrid)
		if _, ok := h.Expr.(*Unknown); !ok || h.ValidPath || h.Value != 2.0 {
			t.Errorf("got %+v, want an invalid unknown holding 2", h)
		}
	})

	t.Run("type errors surface", func(t *testing.T) {
		if _, err := EvaluateBinary("+", Hybridize(keyI, 1.0), true, 32); err == nil {
			t.Error("number + boolean succeeded")
		}
	})
}

func TestEvaluateUnary(t *testing.T) {
	b := Hybridize("b@1:1:1", true)
	v, err := EvaluateUnary("!", b, 32)
	if err != nil {
		t.Fatal(err)
	}
	h := v.(*Hybrid)
	if h.Value != false || h.String() != "!b" {
		t.Errorf("got %v %q", h.Value, h.String())
	}
	if got := h.Negation.String(); got != "b" {
		t.Errorf("Negation = %q, want b", got)
	}

	v, err = EvaluateUnary("-", 2.0, 32)
	if err != nil {
		t.Fatal(err)
	}
	if v != -2.0 {
		t.Errorf("got %v, want -2", v)
	}
}

func TestNegate(t *testing.T) {
	x := &Ident{Name: keyI, Val: 1.0}
	ten := &Literal{Val: 10.0}
	testCases := []struct {
		op   string
		want string
	}{
		{"<", "i >= 10"},
		{"<=", "i > 10"},
		{">", "i <= 10"},
		{">=", "i < 10"},
		{"===", "i !== 10"},
		{"!==", "i === 10"},
	}
	for _, tc := range testCases {
		if got := negate(newBinary(tc.op, x, ten, true)).String(); got != tc.want {
			t.Errorf("negate(i %s 10) = %q, want %q", tc.op, got, tc.want)
		}
	}
	sum := newBinary("+", x, ten, 11.0)
	if got := negate(sum).String(); got != "!(i + 10)" {
		t.Errorf("negate(i + 10) = %q", got)
	}
}

func TestExprString(t *testing.T) {
	x := &Ident{Name: keyI, Val: 1.0}
	e := newBinary("<", newBinary("+", x, &Literal{Val: 1.0}, 2.0), &Literal{Val: "s"}, false)
	if got, want := e.String(), `(i + 1) < "s"`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := e.Depth(); got != 3 {
		t.Errorf("Depth() = %d, want 3", got)
	}
	if got := (&Unknown{}).String(); got != "?" {
		t.Errorf("Unknown.String() = %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	for key, want := range map[string]string{
		"x@1:2:3":               "x",
		"x":                     "x",
		"anonymous@0:14:5":      "anonymous",
		"*anonymous@0:14:5":     "*anonymous",
		"stream_tail@0:100:1":   "stream_tail",
		"__state@1:1:1@2:1:1":   "__state",
		"":                      "",
		"@1:1:1":                "",
		"name_with_digits9@3:1": "name_with_digits9",
	} {
		if got := DisplayName(key); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestHybridWrappers(t *testing.T) {
	fn := &loopguard.Closure{Name: "f"}
	if Hybridize(keyI, fn) != fn {
		t.Error("Hybridize wrapped a function")
	}
	if MakeDummy(fn) != fn {
		t.Error("MakeDummy wrapped a function")
	}

	d := MakeDummy(5.0).(*Hybrid)
	if d.ValidPath || d.Value != 5.0 || d.String() != "?" {
		t.Errorf("MakeDummy(5) = %+v", d)
	}
	if KindOf(d) != Symbolic || KindOf(5.0) != Concrete {
		t.Error("KindOf misclassifies")
	}
	if Concretize(d) != 5.0 {
		t.Error("Concretize did not unwrap")
	}
	if got := loopguard.Unshadow(Hybridize(keyI, Hybridize(keyI, 7.0))); got != 7.0 {
		t.Errorf("nested hybrid unshadows to %v", got)
	}
}

func TestDeepConcretize(t *testing.T) {
	inner := &loopguard.Array{Elems: []Value{MakeDummy(1.0), 2.0}}
	p := &loopguard.Pair{Head: Hybridize(keyI, 3.0), Tail: inner}
	p2 := &loopguard.Pair{Head: p, Tail: nil}
	p.Tail = &loopguard.Pair{Head: inner, Tail: p2}

	got := DeepConcretize(Hybridize("p@1:1:1", p2))
	if got != p2 {
		t.Fatalf("got %v, want the outer pair", got)
	}
	if p.Head != 3.0 {
		t.Errorf("pair head = %#v, want 3", p.Head)
	}
	if inner.Elems[0] != 1.0 {
		t.Errorf("array element = %#v, want 1", inner.Elems[0])
	}
}

func TestFingerprint(t *testing.T) {
	fp := NewFingerprinter()
	cond := func(name string, v float64, bound Value) Expr {
		return newBinary("<", &Ident{Name: name, Val: v}, &Literal{Val: bound}, true)
	}

	if fp.Fingerprint(cond(keyI, 1, 10.0)) != fp.Fingerprint(cond(keyI, 7, 10.0)) {
		t.Error("values of identifiers changed the fingerprint")
	}
	if fp.Fingerprint(cond(keyI, 1, 10.0)) == fp.Fingerprint(cond("j@1:1:1", 1, 10.0)) {
		t.Error("different variables share a fingerprint")
	}
	if fp.Fingerprint(cond(keyI, 1, 10.0)) == fp.Fingerprint(cond(keyI, 1, 11.0)) {
		t.Error("different literals share a fingerprint")
	}
	if fp.Fingerprint(cond(keyI, 1, 10.0)) == fp.Fingerprint(cond(keyI, 1, "10")) {
		t.Error("literals of different types share a fingerprint")
	}
	if fp.Signature(nil) != "" {
		t.Error("empty signature is not empty")
	}
	if fp.Fingerprint(nil) != "none" {
		t.Error("nil fingerprint")
	}
}
