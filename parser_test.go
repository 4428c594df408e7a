package loopguard

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseExpressions(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want Stmt
	}{
		{
			name: "loose equality becomes strict",
			src:  "x == 1",
			want: &ExprStmt{Pos: Pos{1, 1}, X: &BinaryExpr{
				Pos: Pos{1, 1}, Op: "===",
				Left:  &Ident{Pos: Pos{1, 1}, Name: "x"},
				Right: &NumberLit{Pos: Pos{1, 6}, Value: 1},
			}},
		},
		{
			name: "arrow with expression body",
			src:  "let f = x => x + 1;",
			want: &LetStmt{Pos: Pos{1, 1}, Kind: DeclLet, Name: "f", Init: &ArrowFunc{
				Pos:    Pos{1, 9},
				Params: []string{"x"},
				Expr: &BinaryExpr{
					Pos: Pos{1, 14}, Op: "+",
					Left:  &Ident{Pos: Pos{1, 14}, Name: "x"},
					Right: &NumberLit{Pos: Pos{1, 18}, Value: 1},
				},
			}},
		},
		{
			name: "multiplication binds tighter than addition",
			src:  "1 + 2 * 3;",
			want: &ExprStmt{Pos: Pos{1, 1}, X: &BinaryExpr{
				Pos: Pos{1, 1}, Op: "+",
				Left: &NumberLit{Pos: Pos{1, 1}, Value: 1},
				Right: &BinaryExpr{
					Pos: Pos{1, 5}, Op: "*",
					Left:  &NumberLit{Pos: Pos{1, 5}, Value: 2},
					Right: &NumberLit{Pos: Pos{1, 9}, Value: 3},
				},
			}},
		},
		{
			name: "index assignment",
			src:  "a[0] = 'v';",
			want: &ExprStmt{Pos: Pos{1, 1}, X: &IndexAssignExpr{
				Pos:   Pos{1, 1},
				X:     &Ident{Pos: Pos{1, 1}, Name: "a"},
				Index: &NumberLit{Pos: Pos{1, 3}, Value: 0},
				Value: &StringLit{Pos: Pos{1, 8}, Value: "v"},
			}},
		},
		{
			name: "logical and ternary",
			src:  "a && !b ? 1 : 2",
			want: &ExprStmt{Pos: Pos{1, 1}, X: &CondExpr{
				Pos: Pos{1, 1},
				Test: &LogicalExpr{
					Pos: Pos{1, 1}, Op: "&&",
					Left:  &Ident{Pos: Pos{1, 1}, Name: "a"},
					Right: &UnaryExpr{Pos: Pos{1, 6}, Op: "!", X: &Ident{Pos: Pos{1, 7}, Name: "b"}},
				},
				Then: &NumberLit{Pos: Pos{1, 11}, Value: 1},
				Else: &NumberLit{Pos: Pos{1, 15}, Value: 2},
			}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Parse(tc.src)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tc.src, err)
			}
			if len(prog.Body) != 1 {
				t.Fatalf("Parse(%q) got %d statements, want 1", tc.src, len(prog.Body))
			}
			if diff := cmp.Diff(tc.want, prog.Body[0]); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}

func TestParseStatements(t *testing.T) {
	src := `function f(n) {
    for (let i = 0; i < n; i = i + 1) {
        if (i === 3) { break; } else { continue; }
    }
    return;
}
while (true) { }
;
{ let y = 2 }`
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got, want := len(prog.Body), 3; got != want {
		t.Fatalf("got %d statements, want %d", got, want)
	}
	fd, ok := prog.Body[0].(*FuncDecl)
	if !ok {
		t.Fatalf("first statement is %T, want *FuncDecl", prog.Body[0])
	}
	if diff := cmp.Diff([]string{"n"}, fd.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	loop, ok := fd.Body.Body[0].(*ForStmt)
	if !ok {
		t.Fatalf("function body starts with %T, want *ForStmt", fd.Body.Body[0])
	}
	if _, ok := loop.Init.(*LetStmt); !ok {
		t.Errorf("for init is %T, want *LetStmt", loop.Init)
	}
	ret, ok := fd.Body.Body[1].(*ReturnStmt)
	if !ok || ret.Value != nil {
		t.Errorf("got %#v, want a bare return", fd.Body.Body[1])
	}
	if _, ok := prog.Body[1].(*WhileStmt); !ok {
		t.Errorf("second statement is %T, want *WhileStmt", prog.Body[1])
	}
	if _, ok := prog.Body[2].(*Block); !ok {
		t.Errorf("third statement is %T, want *Block", prog.Body[2])
	}
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name       string
		src        string
		wantMsg    string
		wantPos    Pos
		incomplete bool
	}{
		{
			name:       "open function body",
			src:        "function f(x) {",
			wantMsg:    `expected "}", found end of input`,
			wantPos:    Pos{1, 16},
			incomplete: true,
		},
		{
			name:       "missing initializer",
			src:        "let x = ",
			wantMsg:    "unexpected end of input",
			wantPos:    Pos{1, 9},
			incomplete: true,
		},
		{
			name:       "open argument list",
			src:        "f(1,",
			wantMsg:    "unexpected end of input",
			wantPos:    Pos{1, 5},
			incomplete: true,
		},
		{
			name:       "open block comment",
			src:        "let x = 1; /* note",
			wantMsg:    "unterminated block comment",
			wantPos:    Pos{1, 12},
			incomplete: true,
		},
		{
			name:    "two expressions on a line",
			src:     "let x = 1 2;",
			wantMsg: `expected ";", found "2"`,
			wantPos: Pos{1, 11},
		},
		{
			name:    "return at top level",
			src:     "return 1;",
			wantMsg: "return outside of a function",
			wantPos: Pos{1, 1},
		},
		{
			name:    "break outside loop",
			src:     "function f() { break; }",
			wantMsg: "break outside of a loop",
			wantPos: Pos{1, 16},
		},
		{
			name:    "loop does not reach into function",
			src:     "while (true) { let f = () => { continue; }; }",
			wantMsg: "continue outside of a loop",
			wantPos: Pos{1, 32},
		},
		{
			name:    "invalid assignment target",
			src:     "f() = 1;",
			wantMsg: "invalid assignment target",
			wantPos: Pos{1, 5},
		},
		{
			name:    "unknown character",
			src:     "let a = #;",
			wantMsg: `unexpected character '#'`,
			wantPos: Pos{1, 9},
		},
		{
			name:    "unterminated string",
			src:     "let s = \"abc\nx;",
			wantMsg: "unterminated string literal",
			wantPos: Pos{1, 9},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.src)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse(%q) got error %v, want *ParseError", tc.src, err)
			}
			if pe.Msg != tc.wantMsg {
				t.Errorf("message: got %q, want %q", pe.Msg, tc.wantMsg)
			}
			if pe.Pos != tc.wantPos {
				t.Errorf("position: got %v, want %v", pe.Pos, tc.wantPos)
			}
			if got := IsIncomplete(err); got != tc.incomplete {
				t.Errorf("IsIncomplete: got %v, want %v", got, tc.incomplete)
			}
		})
	}
}

func TestIsIncompleteNil(t *testing.T) {
	if IsIncomplete(nil) {
		t.Error("IsIncomplete(nil) = true")
	}
	if IsIncomplete(errors.New("x")) {
		t.Error("IsIncomplete on a plain error = true")
	}
}

func TestParsePrelude(t *testing.T) {
	prog := ParsePrelude()
	names := map[string]bool{}
	for _, s := range prog.Body {
		if fd, ok := s.(*FuncDecl); ok {
			names[fd.Name] = true
		}
	}
	for _, want := range []string{"map", "accumulate", "integers_from", "stream_tail", "eval_stream"} {
		if !names[want] {
			t.Errorf("prelude does not declare %s", want)
		}
	}
}
