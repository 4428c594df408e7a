package loopdetect

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseOptions(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    func(*Options)
		wantErr string
	}{
		{
			name:  "empty keeps defaults",
			input: "",
			want:  func(*Options) {},
		},
		{
			name: "every key",
			input: `threshold: 10
streamThreshold: 50
timeout: 1500ms
maxSteps: 1000
maxExprDepth: 8
maxCallDepth: 2000
logLevel: debug
`,
			want: func(o *Options) {
				o.Threshold = 10
				o.StreamThreshold = 50
				o.Timeout = 1500 * time.Millisecond
				o.MaxSteps = 1000
				o.MaxExprDepth = 8
				o.MaxCallDepth = 2000
				o.LogLevel = "debug"
			},
		},
		{
			name:  "partial",
			input: "threshold: 5\n",
			want:  func(o *Options) { o.Threshold = 5 },
		},
		{
			name:    "zero threshold",
			input:   "threshold: 0\n",
			wantErr: "invalid options: threshold must be positive, got 0",
		},
		{
			name:    "negative steps",
			input:   "maxSteps: -1\n",
			wantErr: "invalid options: max steps must not be negative, got -1",
		},
		{
			name:    "bad duration",
			input:   "timeout: soon\n",
			wantErr: `invalid timeout "soon"`,
		},
		{
			name:    "not yaml",
			input:   "threshold: [",
			wantErr: "failed to parse options",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOptions([]byte(tc.input))
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("got error %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOptions error: %v", err)
			}
			want := DefaultOptions()
			tc.want(&want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ParseOptions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loopcheck.yaml")
	if err := os.WriteFile(path, []byte("streamThreshold: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	opts, err := LoadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if opts.StreamThreshold != 7 || opts.Threshold != 20 {
		t.Errorf("got %+v", opts)
	}

	if _, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "failed to read options") {
		t.Errorf("missing file: got %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	opts := DefaultOptions()
	opts.Timeout = 0
	if err := opts.Validate(); err == nil || !strings.Contains(err.Error(), "timeout must be positive") {
		t.Errorf("got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"error":   LevelError,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"Info":    LevelInfo,
		"DEBUG":   LevelDebug,
		"bogus":   LevelWarn,
		"":        LevelWarn,
	} {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, &buf).With(map[string]any{"program": 2, "name": "a b"})
	logger.Debugf("hidden")
	logger.Infof("hello %s", "x")
	logger.Errorf("bad")

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "[INFO] ") || !strings.HasSuffix(lines[0], ` hello x name="a b" program=2`) {
		t.Errorf("unexpected line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[ERROR] ") || !strings.HasSuffix(lines[1], " bad name=\"a b\" program=2") {
		t.Errorf("unexpected line %q", lines[1])
	}
	ts := strings.Fields(lines[0])[1]
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp %q: %v", ts, err)
	}

	NopLogger().With(map[string]any{"k": 1}).Errorf("dropped")
}
