package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/loopdetect"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.RunTimeout = 50 * time.Millisecond
	opts.Detect.LogWriter = io.Discard
	return opts
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	s := New(testOptions())

	res, err := s.Submit(ctx, "let i = 0;\ndisplay(\"hi\");\ni + 1;")
	if err != nil {
		t.Fatal(err)
	}
	want := &Result{Status: Completed, Value: "1", Output: "\"hi\"\n", Program: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("first submission mismatch (-want +got):\n%s", diff)
	}

	res, err = s.Submit(ctx, "let y = 1; head(null);")
	if err != nil {
		t.Fatal(err)
	}
	var re *loopguard.RuntimeError
	if res.Status != Failed || !errors.As(res.Err, &re) {
		t.Errorf("got %v %v, want a runtime failure", res.Status, res.Err)
	}

	res, err = s.Submit(ctx, "let z = ;")
	if err != nil {
		t.Fatal(err)
	}
	var pe *loopguard.ParseError
	if res.Status != Failed || !errors.As(res.Err, &pe) {
		t.Errorf("got %v %v, want a parse failure", res.Status, res.Err)
	}

	res, err = s.Submit(ctx, "y + i;")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Completed || res.Value != "1" || res.Program != 3 {
		t.Errorf("got %+v, want earlier declarations to be visible", res)
	}

	if got := len(s.History()); got != 3 {
		t.Errorf("history has %d programs, want 3", got)
	}
}

func TestSubmitTimedOut(t *testing.T) {
	ctx := context.Background()
	s := New(testOptions())
	if _, err := s.Submit(ctx, "let i = 0;"); err != nil {
		t.Fatal(err)
	}

	src := "while (i < 10) {\n    i = i - 1;\n}"
	res, err := s.Submit(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TimedOut {
		t.Fatalf("got %v, want timed out", res.Status)
	}
	want := &loopdetect.Diagnostic{
		Kind:     loopdetect.NonTermination,
		Name:     "loop",
		Message:  "The loop has encountered an infinite loop. The condition i < 10 is always true.",
		Evidence: "i < 10",
		Location: loopdetect.Location{Program: 2, Line: 1, Col: 1, Label: "loop"},
	}
	if diff := cmp.Diff(want, res.Diagnostic); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}
	if got := len(s.History()); got != 1 {
		t.Errorf("timed-out program joined the history: %d programs", got)
	}
	if got := s.Source(res.Diagnostic.Location.Program, src); got != src {
		t.Errorf("Source = %q, want the pending program", got)
	}

	r := s.Report(src, res)
	if r.Status != "timed out" {
		t.Errorf("report status %q", r.Status)
	}
	wantText := "Infinite loop detected (line 1): The loop has encountered an infinite loop. The condition i < 10 is always true.\n" +
		"   1 | while (i < 10) {\n" +
		"     | ^\n"
	if diff := cmp.Diff(wantText, r.Text); diff != "" {
		t.Errorf("report text mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(testOptions())
	if _, err := s.Submit(ctx, "while (true) { }"); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSourceOf(t *testing.T) {
	prior := []string{"a;", "b;"}
	testCases := []struct {
		idx  int
		want string
	}{
		{0, loopguard.PreludeSource},
		{1, "a;"},
		{2, "b;"},
		{3, "c;"},
	}
	for _, tc := range testCases {
		if got := SourceOf(tc.idx, "c;", prior); got != tc.want {
			t.Errorf("SourceOf(%d) = %.20q, want %.20q", tc.idx, got, tc.want)
		}
	}
}

func TestFormatError(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "runtime error",
			src:  "let x = 1;\nx + true;",
			want: "Runtime error: expected string or number on both sides of +, got number and boolean\n" +
				"   2 | x + true;\n" +
				"     | ^\n",
		},
		{
			name: "syntax error",
			src:  "let x = 1 2;",
			want: "Syntax error: expected \";\", found \"2\"\n" +
				"   1 | let x = 1 2;\n" +
				"     |           ^\n",
		},
		{
			name: "wide characters",
			src:  `let s = ["日本", 1 + true];`,
			want: "Runtime error: expected string or number on both sides of +, got number and boolean\n" +
				"   1 | let s = [\"日本\", 1 + true];\n" +
				"     |                  ^\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := loopguard.Parse(tc.src)
			if err == nil {
				in := loopguard.NewInterpreter(io.Discard)
				_, err = in.Exec(context.Background(), prog)
			}
			if err == nil {
				t.Fatal("no error")
			}
			if diff := cmp.Diff(tc.want, FormatError(tc.src, err)); diff != "" {
				t.Errorf("FormatError mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if got := FormatError("", errors.New("boom")); got != "Error: boom\n" {
		t.Errorf("plain error: got %q", got)
	}
	if FormatError("x", nil) != "" {
		t.Error("nil error formatted")
	}
}

func TestAnalyzeReport(t *testing.T) {
	opts := testOptions().Detect

	r, err := Analyze(context.Background(), "let i = 0; while (i < 3) { i = i + 1; }", nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&Report{Status: "clean", Text: "No infinite loop detected."}, r); diff != "" {
		t.Errorf("clean report mismatch (-want +got):\n%s", diff)
	}

	r, err = Analyze(context.Background(), "f(0);", []string{"function f(x) { return f(x); }"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != "detected" || r.Diagnostic == nil {
		t.Fatalf("got %+v, want a detection", r)
	}
	want := "Infinite loop detected (line 1): The function f has encountered an infinite loop. It has no base case.\n" +
		"   1 | function f(x) { return f(x); }\n" +
		"     |                        ^\n"
	if diff := cmp.Diff(want, r.Text); diff != "" {
		t.Errorf("report text mismatch (-want +got):\n%s", diff)
	}
}
