package session

import (
	"context"

	"github.com/speakeasy-api/loopguard/loopdetect"
)

// Report is the flat, serializable form of an outcome, shaped for clients
// that cannot call back into Go such as the browser playground.
type Report struct {
	Status     string                 `json:"status" yaml:"status"`
	Value      string                 `json:"value,omitempty" yaml:"value,omitempty"`
	Output     string                 `json:"output,omitempty" yaml:"output,omitempty"`
	Diagnostic *loopdetect.Diagnostic `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
	// Text is the message shown to the student, with a source snippet when
	// there is a position to point at.
	Text string `json:"text" yaml:"text"`
}

// Report describes res, the outcome of submitting src. It must be called
// before the session accepts another submission.
func (s *Session) Report(src string, res *Result) *Report {
	r := &Report{
		Status:     res.Status.String(),
		Value:      res.Value,
		Output:     res.Output,
		Diagnostic: res.Diagnostic,
	}
	switch {
	case res.Status == Completed:
		r.Text = res.Value
	case res.Status == Failed:
		r.Text = FormatError(src, res.Err)
	case res.Diagnostic != nil:
		r.Text = FormatDiagnostic(s.Source(res.Diagnostic.Location.Program, src), res.Diagnostic)
	default:
		r.Text = res.Message()
	}
	return r
}

// Analyze runs the loop detector on candidate after prior and reports the
// verdict. Status is "detected" or "clean".
func Analyze(ctx context.Context, candidate string, prior []string, opts loopdetect.Options) (*Report, error) {
	d, err := loopdetect.Analyze(ctx, candidate, prior, opts)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return &Report{Status: "clean", Text: "No infinite loop detected."}, nil
	}
	return &Report{
		Status:     "detected",
		Diagnostic: d,
		Text:       FormatDiagnostic(SourceOf(d.Location.Program, candidate, prior), d),
	}, nil
}
