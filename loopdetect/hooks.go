package loopdetect

import (
	"fmt"
	"sort"

	"github.com/speakeasy-api/loopguard"
)

// hookFunc is the Go side of one hook. args excludes the leading state.
type hookFunc func(in *loopguard.Interpreter, s *State, args []Value) (Value, error)

type hook struct {
	arity int // without the state argument, -1 for variadic
	fn    hookFunc
}

// hookRegistry is the only vocabulary instrumented programs call into.
var hookRegistry = map[string]hook{
	"noOp":           {-1, hookNoOp},
	"concretize":     {1, hookConcretize},
	"hybridize":      {2, hookHybridize},
	"wrapArg":        {1, hookWrapArg},
	"dummify":        {1, hookDummify},
	"saveBool":       {1, hookSaveBool},
	"saveVar":        {2, hookSaveVar},
	"preFunction":    {-1, hookPreFunction},
	"returnFunction": {1, hookReturnFunction},
	"postLoop":       {2, hookPostLoop},
	"enterLoop":      {1, hookEnterLoop},
	"exitLoop":       {0, hookExitLoop},
	"trackLoc":       {2, hookTrackLoc},
	"evalB":          {3, hookEvalB},
	"evalU":          {2, hookEvalU},
}

// HookNames lists the hook table members in sorted order.
func HookNames() []string {
	names := make([]string, 0, len(hookRegistry))
	for name := range hookRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HookTable builds the record injected into instrumented programs. Every
// member expects the run's *State as its first argument.
func HookTable() loopguard.Record {
	rec := make(loopguard.Record, len(hookRegistry))
	for name, h := range hookRegistry {
		name, h := name, h
		arity := h.arity + 1
		if h.arity < 0 {
			arity = -1
		}
		rec[name] = &loopguard.Builtin{
			Name:  name,
			Arity: arity,
			Fn: func(in *loopguard.Interpreter, args []Value) (Value, error) {
				if len(args) == 0 {
					return nil, fmt.Errorf("%w: hook %s called without state", ErrAnalysis, name)
				}
				s, ok := args[0].(*State)
				if !ok {
					return nil, fmt.Errorf("%w: hook %s called with %s instead of state", ErrAnalysis, name, loopguard.TypeName(args[0]))
				}
				return h.fn(in, s, args[1:])
			},
		}
	}
	return rec
}

func stringArg(hookName string, v Value) (string, error) {
	str, ok := Concretize(v).(string)
	if !ok {
		return "", fmt.Errorf("%w: %s expects a name, got %s", ErrAnalysis, hookName, loopguard.TypeName(v))
	}
	return str, nil
}

func hookNoOp(_ *loopguard.Interpreter, _ *State, args []Value) (Value, error) {
	if len(args) == 0 {
		return loopguard.Undefined, nil
	}
	return args[0], nil
}

func hookConcretize(_ *loopguard.Interpreter, _ *State, args []Value) (Value, error) {
	return Concretize(args[0]), nil
}

// hookHybridize handles a variable read. A value pending reset, or one
// that is still concrete, is re-wrapped under the variable's key.
func hookHybridize(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	key, err := stringArg("hybridize", args[0])
	if err != nil {
		return nil, err
	}
	v := args[1]
	if loopguard.IsCallable(v) {
		return v, nil
	}
	if KindOf(v) == Symbolic && !s.pending(key) {
		return v, nil
	}
	s.clean[key] = s.epoch
	h := Hybridize(key, DeepConcretize(v))
	s.last[key] = h
	return h, nil
}

// argWrapper marks a function value that was passed as an argument, so its
// invocations are tracked apart from direct calls.
type argWrapper struct {
	fn    loopguard.Callable
	state *State
}

func (w *argWrapper) FuncName() string { return w.fn.FuncName() }

func (w *argWrapper) Unwrap() loopguard.Callable { return w.fn }

func (w *argWrapper) Call(in *loopguard.Interpreter, args []Value) (Value, error) {
	w.state.nextCallIsArg = true
	return in.Call(w.fn, args...)
}

func hookWrapArg(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	if c, ok := args[0].(*loopguard.Closure); ok {
		return &argWrapper{fn: c, state: s}, nil
	}
	return args[0], nil
}

func hookDummify(_ *loopguard.Interpreter, _ *State, args []Value) (Value, error) {
	return MakeDummy(args[0]), nil
}

// hookSaveBool records the condition a branch was decided by and returns
// its concrete truth value.
func hookSaveBool(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	c := Concretize(args[0])
	b, isBool := c.(bool)
	if !isBool || s.forcing {
		return c, nil
	}
	h, ok := args[0].(*Hybrid)
	switch {
	case !ok || !h.ValidPath:
		s.setInvalidPath()
	case isLiteral(h.Expr):
	case b:
		s.savePath(h.Expr)
	default:
		neg := h.Negation
		if neg == nil {
			neg = negate(h.Expr)
		}
		s.savePath(neg)
	}
	return c, nil
}

func hookSaveVar(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	key, err := stringArg("saveVar", args[0])
	if err != nil {
		return nil, err
	}
	if !s.forcing {
		s.saveVar(key, args[1])
	}
	return args[1], nil
}

// hookPreFunction runs first in every function body:
// preFunction(state, name, location, key1, arg1, key2, arg2, ...).
func hookPreFunction(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%w: preFunction expects a name and a location", ErrAnalysis)
	}
	name, err := stringArg("preFunction", args[0])
	if err != nil {
		return nil, err
	}
	return loopguard.Undefined, s.preFunction(name, s.location(args[1]), args[2:])
}

func hookReturnFunction(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	return s.returnFunction(args[0]), nil
}

func hookPostLoop(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	return args[1], s.postLoop()
}

func hookEnterLoop(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	if err := s.checkBudget(); err != nil {
		return nil, err
	}
	if !s.forcing {
		s.cleanUpVariables()
		s.enterLoop(s.location(args[0]))
	}
	return loopguard.Undefined, nil
}

func hookExitLoop(_ *loopguard.Interpreter, s *State, _ []Value) (Value, error) {
	if !s.forcing {
		s.cleanUpVariables()
		s.exitLoop()
	}
	return loopguard.Undefined, nil
}

// hookTrackLoc records a call site and evaluates the call inside thunk.
func hookTrackLoc(in *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	if err := s.checkBudget(); err != nil {
		return nil, err
	}
	loc := s.location(args[0])
	s.locStack = append(s.locStack, loc)
	s.lastLoc = loc
	v, err := in.Call(args[1])
	s.locStack = s.locStack[:len(s.locStack)-1]
	return v, err
}

func hookEvalB(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	op, err := stringArg("evalB", args[0])
	if err != nil {
		return nil, err
	}
	return EvaluateBinary(op, args[1], args[2], s.opts.MaxExprDepth)
}

func hookEvalU(_ *loopguard.Interpreter, s *State, args []Value) (Value, error) {
	op, err := stringArg("evalU", args[0])
	if err != nil {
		return nil, err
	}
	return EvaluateUnary(op, args[1], s.opts.MaxExprDepth)
}

// preFunction opens a frame for an invocation of name. Re-entering a
// function that is still live records the new arguments as the previous
// frame's transitions and may dispatch inference.
func (s *State) preFunction(name string, decl Location, args []Value) error {
	asArg := s.nextCallIsArg
	s.nextCallIsArg = false
	if err := s.checkBudget(); err != nil {
		return err
	}
	if s.forcing {
		s.calls = append(s.calls, callRecord{})
		return nil
	}
	if asArg {
		name = "*" + name
	}
	t, first := s.enterFunction(name)
	s.cleanUpVariables()
	site := s.callSite()
	if site.Line == 0 {
		site = decl
	}
	if t.Loc.Line == 0 {
		t.Loc = decl
	}
	if !first {
		s.saveArgsInTransition(args, t)
		if n := len(t.Frames); !asArg && shouldDispatch(n, s.opts.Threshold) {
			if err := s.checkTracker(t, n, site); err != nil {
				return err
			}
		}
	}
	f := newStackFrame(site)
	t.Frames = append(t.Frames, f)
	s.pushFrame(f)
	s.names = append(s.names, name)
	s.calls = append(s.calls, callRecord{tracker: t, frame: f, loops: len(s.loops), tracked: true})
	return nil
}

// returnFunction closes the innermost invocation, unwinding any loop it
// left through a return.
func (s *State) returnFunction(v Value) Value {
	n := len(s.calls)
	if n == 0 {
		return v
	}
	rec := s.calls[n-1]
	s.calls = s.calls[:n-1]
	if !rec.tracked {
		return v
	}
	for len(s.loops) > rec.loops {
		s.exitLoop()
	}
	if k := len(rec.tracker.Frames); k > 0 && rec.tracker.Frames[k-1] == rec.frame {
		rec.tracker.Frames = rec.tracker.Frames[:k-1]
	}
	for len(s.active) > 1 {
		top := s.top()
		s.popFrame()
		if top == rec.frame {
			break
		}
	}
	s.names = s.names[:len(s.names)-1]
	s.cleanUpVariables()
	return v
}

// postLoop ends one iteration of the innermost loop and starts the next.
func (s *State) postLoop() error {
	if err := s.checkBudget(); err != nil {
		return err
	}
	if s.forcing || len(s.loops) == 0 {
		return nil
	}
	t := s.loops[len(s.loops)-1]
	t.Count++
	if shouldDispatch(t.Count, s.opts.Threshold) {
		if err := s.checkTracker(t, t.Count, t.Loc); err != nil {
			return err
		}
		// Loop checks see only the iterations since the previous check.
		t.Frames = nil
	}
	s.cleanUpVariables()
	if len(s.active) > 1 {
		s.active = s.active[:len(s.active)-1]
	}
	f := newStackFrame(t.Loc)
	t.Frames = append(t.Frames, f)
	s.pushFrame(f)
	return nil
}
