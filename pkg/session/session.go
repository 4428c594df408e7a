// Package session runs the programs a student submits one after another,
// replaying earlier submissions so that their declarations stay visible, and
// falls back to loop analysis when a submission does not finish in time.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/loopdetect"
)

// Options configures a session.
type Options struct {
	RunTimeout time.Duration      // Budget of a plain run before analysis starts (default: 2s)
	Detect     loopdetect.Options // Options for the analysis of a timed-out run
}

// DefaultOptions returns the default session configuration.
func DefaultOptions() Options {
	return Options{
		RunTimeout: 2 * time.Second,
		Detect:     loopdetect.DefaultOptions(),
	}
}

// Status tells how a submission ended.
type Status uint8

const (
	Completed Status = iota
	Failed
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result describes one submission.
type Result struct {
	Status Status `yaml:"status" json:"status"`
	// Value is the printed value of the last top-level expression.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// Output is everything the submission displayed.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	// Err is the parse or runtime error of a failed submission.
	Err error `yaml:"-" json:"-"`
	// Diagnostic is set when a timed-out submission was diagnosed.
	Diagnostic *loopdetect.Diagnostic `yaml:"diagnostic,omitempty" json:"diagnostic,omitempty"`
	// Program is the submission's index in the session, 1-based.
	Program int `yaml:"program" json:"program"`
}

// Message is the one-line summary shown to the student.
func (r *Result) Message() string {
	switch r.Status {
	case Completed:
		return r.Value
	case Failed:
		return r.Err.Error()
	default:
		if r.Diagnostic != nil {
			return r.Diagnostic.String()
		}
		return "The program did not finish in time. It may contain an infinite loop."
	}
}

// Session holds the submissions accepted so far. It is not safe for
// concurrent use.
type Session struct {
	opts    Options
	history []string
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultOptions().RunTimeout
	}
	return &Session{opts: opts}
}

// History returns the accepted submissions, oldest first.
func (s *Session) History() []string {
	return append([]string(nil), s.history...)
}

// Source returns the text of program idx as numbered in locations: 0 is the
// prelude, then the accepted submissions, then pending as the candidate.
func (s *Session) Source(idx int, pending string) string {
	return SourceOf(idx, pending, s.history)
}

// SourceOf returns the text of program idx of an analysis of candidate after
// prior.
func SourceOf(idx int, candidate string, prior []string) string {
	switch {
	case idx == 0:
		return loopguard.PreludeSource
	case idx <= len(prior):
		return prior[idx-1]
	default:
		return candidate
	}
}

// Submit runs src after replaying the history. A run that outlives
// RunTimeout is stopped and analyzed; it does not join the history.
// The returned error is reserved for failures of the session itself.
func (s *Session) Submit(ctx context.Context, src string) (*Result, error) {
	res := &Result{Program: len(s.history) + 1}
	prog, err := loopguard.Parse(src)
	if err != nil {
		res.Status, res.Err = Failed, err
		return res, nil
	}

	var out bytes.Buffer
	in, err := s.replay(ctx)
	if err != nil {
		return nil, err
	}
	in.Out = &out

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()
	v, err := in.Exec(runCtx, prog)
	res.Output = out.String()

	switch {
	case err == nil:
		res.Status = Completed
		res.Value = loopguard.Stringify(v)
		s.history = append(s.history, src)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.Status = TimedOut
		diag, err := loopdetect.Analyze(ctx, src, s.history, s.opts.Detect)
		if err != nil {
			return nil, fmt.Errorf("failed to analyze program %d: %w", res.Program, err)
		}
		res.Diagnostic = diag
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		res.Status, res.Err = Failed, err
		s.history = append(s.history, src)
	}
	return res, nil
}

// replay builds an interpreter holding the prelude and the history.
// Errors of earlier submissions are expected and ignored.
func (s *Session) replay(ctx context.Context) (*loopguard.Interpreter, error) {
	in := loopguard.NewInterpreter(io.Discard)
	if err := in.LoadPrelude(ctx); err != nil {
		return nil, fmt.Errorf("failed to load prelude: %w", err)
	}
	for _, src := range s.history {
		prog, err := loopguard.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to replay history: %w", err)
		}
		if _, err := in.Exec(ctx, prog); err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return in, nil
}
