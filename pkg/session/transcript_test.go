package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTranscript(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    *Transcript
		wantErr string
	}{
		{
			name: "strings and objects",
			input: `programs:
  - "let x = 1;"
  - name: loop
    source: |
      while (x > 0) { x = x + 1; }
`,
			want: &Transcript{Programs: []Entry{
				{Name: "program 1", Source: "let x = 1;"},
				{Name: "loop", Source: "while (x > 0) { x = x + 1; }\n"},
			}},
		},
		{
			name:    "empty",
			input:   "",
			wantErr: "transcript is empty",
		},
		{
			name:    "not an object",
			input:   "- a\n",
			wantErr: "transcript must be an object",
		},
		{
			name:    "no programs",
			input:   "other: 1\n",
			wantErr: "transcript requires 'programs' key",
		},
		{
			name:    "programs not a list",
			input:   "programs: 3\n",
			wantErr: "'programs' must be a list",
		},
		{
			name:    "unknown key",
			input:   "programs:\n  - source: x;\n    author: me\n",
			wantErr: "program 1: unknown key 'author'",
		},
		{
			name:    "missing source",
			input:   "programs:\n  - name: empty\n",
			wantErr: "program 1: 'source' is required",
		},
		{
			name:    "nested entry",
			input:   "programs:\n  - [a]\n",
			wantErr: "program 1: must be a string or an object",
		},
		{
			name:    "invalid yaml",
			input:   "programs: [",
			wantErr: "failed to parse transcript",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTranscript([]byte(tc.input))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("got error %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTranscript error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseTranscript mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	doc := "programs:\n  - \"let x = 1;\"\n  - name: use\n    source: x + 1;\n  - \"x();\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	tr, err := LoadTranscript(path)
	if err != nil {
		t.Fatal(err)
	}
	results, err := New(testOptions()).Replay(context.Background(), tr)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.Status.String()+" "+r.Value)
	}
	want := []string{"completed undefined", "completed 2", "failed "}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Replay mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadTranscript(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "failed to read transcript") {
		t.Errorf("missing file: got %v", err)
	}
}
