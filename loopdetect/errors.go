package loopdetect

import (
	"errors"
	"fmt"
)

// Kind classifies what an analysis run concluded.
type Kind uint8

const (
	// NonTermination means a loop or recursion was certified unbounded.
	NonTermination Kind = iota
	// Timeout means the budget ran out before anything was certified.
	Timeout
	// Internal means the analysis itself failed.
	Internal
)

func (k Kind) String() string {
	switch k {
	case NonTermination:
		return "non-termination"
	case Timeout:
		return "timeout"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// MarshalText lets diagnostics encode their kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

var (
	ErrNonTermination = errors.New("infinite loop detected")
	ErrTimeout        = errors.New("analysis timed out")
	ErrAnalysis       = errors.New("analysis failed")
)

// DetectionError unwinds an instrumented run once the detector has reached a
// verdict. It matches ErrNonTermination or ErrTimeout with errors.Is.
type DetectionError struct {
	Kind     Kind
	Name     string
	Loc      Location
	Msg      string
	Evidence string
}

func (e *DetectionError) Error() string {
	if e.Loc.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("line %d: %s", e.Loc.Line, e.Msg)
}

func (e *DetectionError) Is(target error) bool {
	switch target {
	case ErrNonTermination:
		return e.Kind == NonTermination
	case ErrTimeout:
		return e.Kind == Timeout
	case ErrAnalysis:
		return e.Kind == Internal
	}
	return false
}

// Diagnostic converts the error into the record returned to callers.
func (e *DetectionError) Diagnostic() *Diagnostic {
	return &Diagnostic{
		Kind:     e.Kind,
		Name:     e.Name,
		Message:  e.Msg,
		Evidence: e.Evidence,
		Location: e.Loc,
	}
}

// Diagnostic is the outcome of an analysis that raised an alarm.
type Diagnostic struct {
	Kind     Kind     `yaml:"kind" json:"kind"`
	Name     string   `yaml:"name,omitempty" json:"name,omitempty"`
	Message  string   `yaml:"message" json:"message"`
	Evidence string   `yaml:"evidence,omitempty" json:"evidence,omitempty"`
	Location Location `yaml:"location" json:"location"`
}

// Err returns the sentinel matching the diagnostic kind.
func (d *Diagnostic) Err() error {
	switch d.Kind {
	case NonTermination:
		return ErrNonTermination
	case Timeout:
		return ErrTimeout
	default:
		return ErrAnalysis
	}
}

func (d *Diagnostic) String() string {
	if d == nil {
		return "<nil>"
	}
	if d.Location.Line == 0 {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Location, d.Message)
}
