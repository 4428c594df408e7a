package loopdetect

import (
	"fmt"
	"math"
	"strings"

	"github.com/speakeasy-api/loopguard"
)

type trend uint8

const (
	trendErratic trend = iota
	trendStable
	trendGrowing
)

func (t trend) String() string {
	switch t {
	case trendStable:
		return "stable"
	case trendGrowing:
		return "growing"
	default:
		return "erratic"
	}
}

// verdict is the outcome of one inference over a tracker's history.
type verdict struct {
	infinite bool
	// evidence is the condition that stays true, empty when no condition
	// was evaluated at all.
	evidence string
	// reason explains an inconclusive verdict.
	reason string
}

func inconclusive(format string, args ...any) verdict {
	return verdict{reason: fmt.Sprintf(format, args...)}
}

// analyze decides whether the history of n frames proves non-termination.
// Only the longest suffix of frames that took the same path is considered,
// and it must cover at least half of the history.
func analyze(fp *Fingerprinter, frames []*StackFrame, n int) verdict {
	need := max(2, n/2)
	if len(frames) < need {
		return inconclusive("history of %d frames is shorter than %d", len(frames), need)
	}
	last := frames[len(frames)-1]
	sig := fp.Signature(last.Paths)
	start := len(frames) - 1
	for start > 0 && fp.Signature(frames[start-1].Paths) == sig {
		start--
	}
	window := frames[start:]
	if len(window) < need {
		return inconclusive("path changed %d frames ago", len(window))
	}

	for _, f := range window {
		if f.Invalid {
			return inconclusive("a condition could not be tracked")
		}
		if f.Opaque {
			return inconclusive("a callee or inner loop branched")
		}
		for key, v := range f.Transitions.All() {
			if h, ok := v.(*Hybrid); ok && hasUnknown(h.Expr) {
				return inconclusive("%s has an untracked value", DisplayName(key))
			}
		}
	}

	if len(last.Paths) == 0 {
		return verdict{infinite: true}
	}

	for p := range last.Paths {
		exprs := make([]Expr, len(window))
		for j, f := range window {
			exprs[j] = f.Paths[p]
		}
		if ok, why := staysTrue(fp, exprs, window); !ok {
			return inconclusive("%s: %s", last.Paths[p], why)
		}
	}

	parts := make([]string, len(last.Paths))
	for i, p := range last.Paths {
		parts[i] = p.String()
	}
	return verdict{infinite: true, evidence: strings.Join(parts, " && ")}
}

// staysTrue reports whether the condition observed as exprs, one per frame,
// will keep holding on every later frame.
func staysTrue(fp *Fingerprinter, exprs []Expr, window []*StackFrame) (bool, string) {
	trends, why := classifyLeaves(fp, exprs, window)
	if why != "" {
		return false, why
	}

	if b, ok := exprs[len(exprs)-1].(*Binary); ok && isComparison(b.Op) {
		if ds, ok := differences(exprs); ok {
			if !trendKeeps(b.Op, ds) {
				return false, "operands move towards the exit"
			}
			return true, ""
		}
	}

	for _, t := range trends {
		if t != trendStable {
			return false, "an operand changes"
		}
	}
	return true, ""
}

// classifyLeaves assigns a trend to each identifier position of exprs.
func classifyLeaves(fp *Fingerprinter, exprs []Expr, window []*StackFrame) ([]trend, string) {
	cols := make([][]*Ident, len(exprs))
	for j, e := range exprs {
		cols[j] = leaves(e)
	}
	width := len(cols[0])
	for _, c := range cols {
		if len(c) != width {
			return nil, "conditions differ in shape"
		}
	}
	trends := make([]trend, width)
	for q := 0; q < width; q++ {
		vals := make([]Value, len(cols))
		for j := range cols {
			vals[j] = cols[j][q].Val
		}
		key := cols[len(cols)-1][q].Name
		switch {
		case allEqual(vals):
			if !stableTransition(fp, key, window) {
				return nil, DisplayName(key) + " is rewritten with a changing value"
			}
			trends[q] = trendStable
		case monotone(vals):
			if !steadyTransition(fp, key, window) {
				return nil, DisplayName(key) + " has no steady update"
			}
			trends[q] = trendGrowing
		default:
			return nil, DisplayName(key) + " changes erratically"
		}
	}
	return trends, ""
}

// transitions collects the value written to key in each frame, or nil
// unless every frame wrote it.
func transitions(key string, window []*StackFrame) ([]*Hybrid, int) {
	out := make([]*Hybrid, 0, len(window))
	for _, f := range window {
		v, ok := f.Transitions.Get(key)
		if !ok {
			continue
		}
		if h, ok := v.(*Hybrid); ok {
			out = append(out, h)
		}
	}
	if len(out) != len(window) {
		return nil, len(out)
	}
	return out, len(out)
}

// sameShape reports whether all transitions share one fingerprint and every
// identifier in them, other than those named skip, holds a constant value.
func sameShape(fp *Fingerprinter, ts []*Hybrid, skip string) bool {
	shape := fp.Fingerprint(ts[0].Expr)
	cols := make([][]*Ident, len(ts))
	for j, t := range ts {
		if fp.Fingerprint(t.Expr) != shape {
			return false
		}
		cols[j] = leaves(t.Expr)
	}
	for q := range cols[0] {
		if cols[0][q].Name == skip {
			continue
		}
		vals := make([]Value, len(cols))
		for j := range cols {
			vals[j] = cols[j][q].Val
		}
		if !allEqual(vals) {
			return false
		}
	}
	return true
}

// stableTransition holds when key is never written in the window, or is
// written every frame by the same expression over constant operands.
func stableTransition(fp *Fingerprinter, key string, window []*StackFrame) bool {
	ts, present := transitions(key, window)
	if present == 0 {
		return true
	}
	return ts != nil && sameShape(fp, ts, "")
}

// steadyTransition holds when key is updated every frame by the same
// expression over itself and constant operands.
func steadyTransition(fp *Fingerprinter, key string, window []*StackFrame) bool {
	ts, _ := transitions(key, window)
	return ts != nil && sameShape(fp, ts, key)
}

func allEqual(vals []Value) bool {
	for _, v := range vals[1:] {
		if !loopguard.Equal(vals[0], v) {
			return false
		}
	}
	return true
}

// monotone reports whether vals are numbers that strictly increase or
// strictly decrease.
func monotone(vals []Value) bool {
	up, down := true, true
	for j := 1; j < len(vals); j++ {
		a, ok1 := vals[j-1].(float64)
		b, ok2 := vals[j].(float64)
		if !ok1 || !ok2 || math.IsNaN(a) || math.IsNaN(b) {
			return false
		}
		up = up && b > a
		down = down && b < a
	}
	return up || down
}

// differences computes left minus right of each comparison.
func differences(exprs []Expr) ([]float64, bool) {
	ds := make([]float64, len(exprs))
	for j, e := range exprs {
		b, ok := e.(*Binary)
		if !ok {
			return nil, false
		}
		l, ok1 := b.Left.Value().(float64)
		r, ok2 := b.Right.Value().(float64)
		if !ok1 || !ok2 {
			return nil, false
		}
		d := l - r
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, false
		}
		ds[j] = d
	}
	return ds, true
}

// trendKeeps reports whether the differences move so that op stays true.
func trendKeeps(op string, ds []float64) bool {
	for j := 1; j < len(ds); j++ {
		prev, cur := ds[j-1], ds[j]
		switch op {
		case "<", "<=":
			if cur > prev {
				return false
			}
		case ">", ">=":
			if cur < prev {
				return false
			}
		case "===":
			if cur != 0 || prev != 0 {
				return false
			}
		case "!==":
			if cur == 0 || (cur > 0) != (prev > 0) || math.Abs(cur) < math.Abs(prev) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// checkTracker runs inference over t and converts a positive verdict into
// the error that stops the run.
func (s *State) checkTracker(t *Tracker, n int, site Location) error {
	v := analyze(s.fp, t.Frames, n)
	s.fp.Reset()
	s.logger.Debugf("checked %s after %d frames: infinite=%t %s", t.Name, n, v.infinite, v.reason)
	if !v.infinite {
		return nil
	}
	err := &DetectionError{Kind: NonTermination, Name: t.Name, Evidence: v.evidence}
	if t.isLoop {
		err.Loc = t.Loc
		if v.evidence == "" {
			err.Msg = "The loop has encountered an infinite loop. It has no exit condition."
		} else {
			err.Msg = fmt.Sprintf("The loop has encountered an infinite loop. The condition %s is always true.", v.evidence)
		}
	} else {
		err.Loc = site
		name := DisplayName(t.Name)
		if v.evidence == "" {
			err.Msg = fmt.Sprintf("The function %s has encountered an infinite loop. It has no base case.", name)
		} else {
			err.Msg = fmt.Sprintf("The function %s has encountered an infinite loop. Its base case is never reached: %s holds on every call.", name, v.evidence)
		}
	}
	s.logger.Infof("non-termination detected in %s at %s", t.Name, err.Loc)
	return err
}
