package loopguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func run(t *testing.T, src string) (Value, error) {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	in := NewInterpreter(io.Discard)
	if err := in.LoadPrelude(context.Background()); err != nil {
		t.Fatalf("LoadPrelude error: %v", err)
	}
	return in.Exec(context.Background(), prog)
}

func TestExec(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{"arithmetic", "1 + 2 * 3", "7"},
		{"string concatenation", `"a" + "b"`, `"ab"`},
		{"remainder", "10 % 3", "1"},
		{"division by zero", "1 / 0", "Infinity"},
		{"while loop", "let x = 0; while (x < 5) { x = x + 1; } x", "5"},
		{"recursion", "function fact(n) { return n <= 1 ? 1 : n * fact(n - 1); } fact(5)", "120"},
		{"for with continue", "let s = 0; for (let i = 0; i < 4; i = i + 1) { if (i === 2) { continue; } s = s + i; } s", "4"},
		{"for with break", "let i = 0; for (; ; i = i + 1) { if (i > 6) { break; } } i", "7"},
		{"list", "list(1, 2)", "[1, [2, null]]"},
		{"array growth", "let a = [1, 2]; a[3] = 4; a", "[1, 2, undefined, 4]"},
		{"array read past end", "[1][5]", "undefined"},
		{"array read at huge index", "let a = [1, 2]; a[1e20]", "undefined"},
		{"array read at infinity", "[1][1 / 0]", "undefined"},
		{"char_at past end", `char_at("ab", 1e20)`, "undefined"},
		{"prelude list", "length(enum_list(1, 10))", "10"},
		{"prelude stream", "stream_ref(integers_from(1), 50)", "51"},
		{"prelude accumulate", "accumulate((x, y) => x + y, 0, list(1, 2, 3))", "6"},
		{"named arrow", "let f = x => x * 2; f", "<function f>"},
		{"closure", "function adder(n) { return x => x + n; } adder(2)(3)", "5"},
		{"short circuit", `true || error("unreachable")`, "true"},
		{"constant", "const c = 1; c", "1"},
		{"last expression wins", "1; 2; let z = 3;", "2"},
		{"no expression", "let z = 3;", "undefined"},
		{"hoisting", "g(); function g() { return 9; }", "9"},
		{"strftime", `strftime("%Y-%m-%d", 0)`, `"1970-01-01"`},
		{"char_at", `char_at("héllo", 1)`, `"é"`},
		{"math_max", "math_max(1, 7, 3)", "7"},
		{"circular pair", "let p = pair(1, 2); set_tail(p, p); p", "[1, ...<circular>]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := run(t, tc.src)
			if err != nil {
				t.Fatalf("Exec error: %v", err)
			}
			if got := Stringify(v); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestExecErrors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantMsg string
		wantPos Pos
	}{
		{"undeclared name", "x", "name x not declared", Pos{1, 1}},
		{"mixed operands", "1 + true", "expected string or number on both sides of +, got number and boolean", Pos{1, 1}},
		{"assign to constant", "const c = 1; c = 2;", "cannot assign new value to constant c", Pos{1, 14}},
		{"non-boolean condition", "if (1) { }", "expected boolean as condition, got number", Pos{1, 5}},
		{"redeclared in block", "{ let y = 1; let y = 2; }", "name y declared twice", Pos{1, 14}},
		{"error builtin", `error("boom")`, "Error: boom", Pos{1, 1}},
		{"head of null", "head(null)", "head expects a pair as argument, but got null", Pos{1, 1}},
		{"wrong arity", "function f(a) { return a; } f()", "f: expected 1 arguments, but got 0", Pos{1, 29}},
		{"non-function call", "let n = 1; n()", "calling non-function value 1", Pos{1, 12}},
		{"negative index", "[1][-1]", "expected array index as non-negative integer, got -1", Pos{1, 5}},
		{"array write at huge index", "let a = [1]; a[1e20] = 5;", "array index 100000000000000000000 exceeds the maximum array length 16777216", Pos{1, 16}},
		{"array write at infinity", "let a = [1]; a[1 / 0] = 5;", "array index Infinity exceeds the maximum array length 16777216", Pos{1, 16}},
		{"logical operand", "1 && true", "expected boolean on left hand side of &&, got number", Pos{1, 1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, tc.src)
			var re *RuntimeError
			if !errors.As(err, &re) {
				t.Fatalf("got error %v, want *RuntimeError", err)
			}
			if re.Msg != tc.wantMsg {
				t.Errorf("message: got %q, want %q", re.Msg, tc.wantMsg)
			}
			if re.Pos != tc.wantPos {
				t.Errorf("position: got %v, want %v", re.Pos, tc.wantPos)
			}
		})
	}
}

func TestTopLevelRedeclaration(t *testing.T) {
	v, err := run(t, "let x = 1; let x = 2; x")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if v != 2.0 {
		t.Errorf("got %v, want 2", v)
	}
}

func TestCallDepth(t *testing.T) {
	prog, err := Parse("function f() { return f(); } f()")
	if err != nil {
		t.Fatal(err)
	}
	in := NewInterpreter(io.Discard)
	in.MaxCallDepth = 100
	_, err = in.Exec(context.Background(), prog)
	if !errors.Is(err, ErrCallDepth) {
		t.Errorf("got %v, want ErrCallDepth", err)
	}
}

func TestExecCancelled(t *testing.T) {
	prog, err := Parse("while (true) { }")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewInterpreter(io.Discard).Exec(ctx, prog)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestDisplay(t *testing.T) {
	prog, err := Parse(`display(1); display("a"); display(list(true));`)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := NewInterpreter(&out).Exec(context.Background(), prog); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "1\n\"a\"\n[true, null]\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSharedTopLevel(t *testing.T) {
	in := NewInterpreter(io.Discard)
	for _, src := range []string{"let total = 0;", "function add(n) { total = total + n; }", "add(4); add(5); total"} {
		prog, err := Parse(src)
		if err != nil {
			t.Fatal(err)
		}
		v, err := in.Exec(context.Background(), prog)
		if err != nil {
			t.Fatalf("Exec(%q) error: %v", src, err)
		}
		if src == "add(4); add(5); total" && v != 9.0 {
			t.Errorf("got %v, want 9", v)
		}
	}
	if v, ok := in.Lookup("total"); !ok || v != 9.0 {
		t.Errorf("Lookup(total) = %v, %v", v, ok)
	}
}

func TestIsolated(t *testing.T) {
	in := NewIsolated(nil)
	in.Define("answer", 42.0)
	prog, err := Parse("answer")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := in.Exec(context.Background(), prog); err != nil || v != 42.0 {
		t.Errorf("got %v, %v", v, err)
	}
	if _, ok := in.Lookup("display"); ok {
		t.Error("isolated interpreter defines display")
	}
}
