package loopdetect

import (
	"context"
	"fmt"
	"time"

	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/openapi/sequencedmap"
)

// Location identifies a loop, function or call site in the analyzed programs.
// Program 0 is the prelude.
type Location struct {
	Program int    `yaml:"program" json:"program"`
	Line    int    `yaml:"line" json:"line"`
	Col     int    `yaml:"col" json:"col"`
	Label   string `yaml:"label,omitempty" json:"label,omitempty"`
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Col)
}

// StackFrame records one loop iteration or one function invocation.
type StackFrame struct {
	Loc Location
	// Paths holds the conditions evaluated in this frame, each oriented to
	// the branch that was taken.
	Paths []Expr
	// Transitions maps variable keys to the last value written in this frame.
	Transitions *sequencedmap.Map[string, Value]
	// Invalid is set when a condition in this frame could not be tracked.
	Invalid bool
	// Opaque is set when a callee or inner loop that finished during this
	// frame branched, so the frame's behavior depends on untracked conditions.
	Opaque bool
}

func newStackFrame(loc Location) *StackFrame {
	return &StackFrame{Loc: loc, Transitions: sequencedmap.New[string, Value]()}
}

// Tracker is the frame history of one loop or one function name.
type Tracker struct {
	Name string
	Loc  Location
	// Frames are the frames still relevant to analysis. A function tracker
	// keeps its live invocations; a loop tracker keeps the iterations since
	// its last check.
	Frames []*StackFrame
	// Count is the number of iterations a loop tracker has completed.
	Count int
	isLoop bool
}

type callRecord struct {
	tracker *Tracker
	frame   *StackFrame
	loops   int
	tracked bool
}

type streamCounter struct {
	count int
	mode  bool
}

// State is the mutable record of one analysis run. It is passed to every
// hook and must not be shared between runs.
type State struct {
	opts   Options
	logger Logger
	fp     *Fingerprinter
	locs   []Location

	loops     []*Tracker
	functions map[string]*Tracker
	active    []*StackFrame
	calls     []callRecord
	names     []string

	// A key is pending reset when clean[key] < epoch. cleanUpVariables
	// marks every key pending by advancing the epoch.
	epoch int
	clean map[string]int
	last  map[string]Value

	streams map[string]*streamCounter
	forcing bool

	locStack      []Location
	lastLoc       Location
	nextCallIsArg bool

	ctx      context.Context
	deadline time.Time
	steps    int
	timedOut bool
}

// NewState creates the state for one run over the given location table.
func NewState(ctx context.Context, locs []Location, opts Options, logger Logger) *State {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = NopLogger()
	}
	s := &State{
		opts:      opts,
		logger:    logger,
		fp:        NewFingerprinter(),
		locs:      locs,
		functions: map[string]*Tracker{},
		clean:     map[string]int{},
		last:      map[string]Value{},
		streams:   map[string]*streamCounter{},
		ctx:       ctx,
		deadline:  time.Now().Add(opts.Timeout),
	}
	s.active = []*StackFrame{newStackFrame(Location{Label: "root"})}
	return s
}

func (s *State) String() string { return "<state>" }

func (s *State) location(id Value) Location {
	f, ok := Concretize(id).(float64)
	if !ok || int(f) < 0 || int(f) >= len(s.locs) {
		return Location{}
	}
	return s.locs[int(f)]
}

func (s *State) top() *StackFrame {
	return s.active[len(s.active)-1]
}

func (s *State) pushFrame(f *StackFrame) {
	s.active = append(s.active, f)
}

// popFrame removes the top frame and folds what it learned into the frame
// below. The root frame is never removed.
func (s *State) popFrame() {
	if len(s.active) < 2 {
		return
	}
	child := s.top()
	s.active = s.active[:len(s.active)-1]
	parent := s.top()
	for k, v := range child.Transitions.All() {
		parent.Transitions.Set(k, v)
	}
	if child.Opaque || child.Invalid || len(child.Paths) > 0 {
		parent.Opaque = true
	}
}

// callSite is the location of the innermost call in progress.
func (s *State) callSite() Location {
	if n := len(s.locStack); n > 0 {
		return s.locStack[n-1]
	}
	return s.lastLoc
}

// enterFunction returns the tracker for name and whether it has no live
// invocation.
func (s *State) enterFunction(name string) (*Tracker, bool) {
	t, ok := s.functions[name]
	if !ok {
		t = &Tracker{Name: name}
		s.functions[name] = t
	}
	return t, len(t.Frames) == 0
}

// newStackFrame starts a frame at the current call site.
func (s *State) newStackFrame() *StackFrame {
	return newStackFrame(s.callSite())
}

// cleanUpVariables marks every variable pending reset.
func (s *State) cleanUpVariables() {
	s.epoch++
}

func (s *State) pending(key string) bool {
	return s.clean[key] < s.epoch
}

// saveArgsInTransition records argument values in the newest frame of t.
func (s *State) saveArgsInTransition(args []Value, t *Tracker) {
	if len(t.Frames) == 0 {
		return
	}
	prev := t.Frames[len(t.Frames)-1]
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := Concretize(args[i]).(string)
		if !ok || loopguard.IsCallable(args[i+1]) {
			continue
		}
		prev.Transitions.Set(key, transitionValue(args[i+1]))
	}
}

func transitionValue(v Value) Value {
	if KindOf(v) == Symbolic {
		return v
	}
	return &Hybrid{Value: v, Expr: &Literal{Val: v}, ValidPath: true}
}

// enterLoop pushes a tracker with one initial frame.
func (s *State) enterLoop(loc Location) {
	t := &Tracker{Name: "loop", Loc: loc, isLoop: true}
	f := newStackFrame(loc)
	t.Frames = []*StackFrame{f}
	s.loops = append(s.loops, t)
	s.pushFrame(f)
}

// exitLoop pops the innermost loop tracker and its current frame.
func (s *State) exitLoop() {
	if len(s.loops) == 0 {
		return
	}
	s.loops = s.loops[:len(s.loops)-1]
	s.popFrame()
}

// savePath records a tracked condition in the current frame.
func (s *State) savePath(e Expr) {
	f := s.top()
	f.Paths = append(f.Paths, e)
}

// setInvalidPath marks the current frame as untrackable.
func (s *State) setInvalidPath() {
	s.top().Invalid = true
}

// saveVar records a write to key.
func (s *State) saveVar(key string, v Value) {
	s.clean[key] = s.epoch
	if loopguard.IsCallable(v) {
		return
	}
	s.last[key] = v
	s.top().Transitions.Set(key, transitionValue(v))
}

// hasTimedOut reports whether the run's budget is spent. Once true it stays true.
func (s *State) hasTimedOut() bool {
	if s.timedOut {
		return true
	}
	s.steps++
	if (s.opts.MaxSteps > 0 && s.steps > s.opts.MaxSteps) || time.Now().After(s.deadline) {
		s.timedOut = true
	}
	return s.timedOut
}

func (s *State) timeoutError() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	return &DetectionError{
		Kind: Timeout,
		Loc:  s.lastLoc,
		Msg:  fmt.Sprintf("The program did not finish within the analysis budget of %s. It may contain an infinite loop.", s.opts.Timeout),
	}
}

// checkBudget is called at every loop and function boundary.
func (s *State) checkBudget() error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if s.hasTimedOut() {
		return s.timeoutError()
	}
	return nil
}

// resetStacks drops every loop and function in progress. The driver calls it
// between programs, since a program that stopped on an error never unwound.
func (s *State) resetStacks() {
	s.loops = nil
	s.functions = map[string]*Tracker{}
	s.active = s.active[:1]
	s.calls = nil
	s.names = nil
	s.locStack = nil
	s.forcing = false
	s.nextCallIsArg = false
	s.cleanUpVariables()
}

// currentFunction names the innermost tracked invocation, "" at top level.
func (s *State) currentFunction() string {
	if n := len(s.names); n > 0 {
		return s.names[n-1]
	}
	return ""
}
