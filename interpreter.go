package loopguard

import (
	"context"
	"io"
	"math"
	"time"
)

// DefaultMaxCallDepth bounds nested calls before a stack overflow error is raised.
const DefaultMaxCallDepth = 50000

// ctxPollInterval is how many calls and loop iterations pass between context checks.
const ctxPollInterval = 1024

// Interpreter evaluates programs by walking their syntax trees.
// It is not safe for concurrent use.
type Interpreter struct {
	// Globals holds builtins and injected names. Programs declare into a
	// child scope shared by every program the interpreter executes.
	Globals      *Env
	Out          io.Writer
	MaxCallDepth int

	top   *Env
	ctx   context.Context
	depth int
	ticks int
	start time.Time
}

// NewInterpreter returns an interpreter with every builtin defined.
func NewInterpreter(out io.Writer) *Interpreter {
	in := NewIsolated(out)
	for name, b := range Builtins() {
		in.Globals.vars[name] = &binding{value: b, constant: true}
	}
	return in
}

// NewIsolated returns an interpreter with no global names at all. Callers
// inject what the programs may reach with Define.
func NewIsolated(out io.Writer) *Interpreter {
	if out == nil {
		out = io.Discard
	}
	globals := NewEnv(nil)
	top := NewEnv(globals)
	top.redeclare = true
	return &Interpreter{
		Globals:      globals,
		Out:          out,
		MaxCallDepth: DefaultMaxCallDepth,
		top:          top,
		ctx:          context.Background(),
		start:        time.Now(),
	}
}

// Define binds a constant global.
func (in *Interpreter) Define(name string, v Value) {
	in.Globals.vars[name] = &binding{value: v, constant: true}
}

// Lookup reads a top-level or global name.
func (in *Interpreter) Lookup(name string) (Value, bool) {
	return in.top.Get(name)
}

// Exec runs prog in the shared top-level scope and returns the value of the
// last top-level expression statement, or Undefined.
func (in *Interpreter) Exec(ctx context.Context, prog *Program) (Value, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	in.ctx = ctx
	in.depth = 0
	if err := in.hoist(prog.Body, in.top); err != nil {
		return nil, err
	}
	var last Value = Undefined
	for _, s := range prog.Body {
		if es, ok := s.(*ExprStmt); ok {
			v, err := in.eval(es.X, in.top)
			if err != nil {
				return nil, err
			}
			last = v
			continue
		}
		if _, _, err := in.exec(s, in.top); err != nil {
			return nil, err
		}
	}
	return last, nil
}

// Call invokes fn with args outside of any program text.
func (in *Interpreter) Call(fn Value, args ...Value) (Value, error) {
	return in.invoke(Pos{}, fn, args)
}

func (in *Interpreter) tick() error {
	in.ticks++
	if in.ticks%ctxPollInterval == 0 {
		return in.ctx.Err()
	}
	return nil
}

func (in *Interpreter) invoke(pos Pos, fn Value, args []Value) (Value, error) {
	c, ok := Unshadow(fn).(Callable)
	if !ok {
		return nil, runtimeErrorf(pos, "calling non-function value %s", Stringify(fn))
	}
	if err := in.tick(); err != nil {
		return nil, err
	}
	if in.depth >= in.MaxCallDepth {
		return nil, &RuntimeError{Pos: pos, Msg: ErrCallDepth.Error(), Err: ErrCallDepth}
	}
	in.depth++
	v, err := c.Call(in, args)
	in.depth--
	if err != nil {
		return nil, locate(err, pos)
	}
	return v, nil
}

func (c *Closure) Call(in *Interpreter, args []Value) (Value, error) {
	if len(args) != len(c.Params) {
		name := c.Name
		if name == "" {
			name = "function"
		}
		return nil, runtimeErrorf(Pos{}, "%s: expected %d arguments, but got %d", name, len(c.Params), len(args))
	}
	env := NewEnv(c.Env)
	for i, p := range c.Params {
		env.vars[p] = &binding{value: args[i]}
	}
	if c.Expr != nil {
		return in.eval(c.Expr, env)
	}
	if err := in.hoist(c.Body.Body, env); err != nil {
		return nil, err
	}
	ctl, v, err := in.execList(c.Body.Body, env)
	if err != nil {
		return nil, err
	}
	if ctl == ctlReturn {
		return v, nil
	}
	return Undefined, nil
}

type control int

const (
	ctlNext control = iota
	ctlReturn
	ctlBreak
	ctlContinue
)

// hoist binds every function declared directly in stmts before any of them run.
func (in *Interpreter) hoist(stmts []Stmt, env *Env) error {
	for _, s := range stmts {
		fd, ok := s.(*FuncDecl)
		if !ok {
			continue
		}
		fn := &Closure{Name: fd.Name, Params: fd.Params, Body: fd.Body, Env: env, Pos: fd.Pos}
		if err := env.Define(fd.Name, fn, false); err != nil {
			return locate(err, fd.Pos)
		}
	}
	return nil
}

func (in *Interpreter) execList(stmts []Stmt, env *Env) (control, Value, error) {
	for _, s := range stmts {
		ctl, v, err := in.exec(s, env)
		if err != nil || ctl != ctlNext {
			return ctl, v, err
		}
	}
	return ctlNext, nil, nil
}

func (in *Interpreter) block(b *Block, env *Env) (control, Value, error) {
	scope := NewEnv(env)
	if err := in.hoist(b.Body, scope); err != nil {
		return ctlNext, nil, err
	}
	return in.execList(b.Body, scope)
}

func (in *Interpreter) exec(s Stmt, env *Env) (control, Value, error) {
	switch s := s.(type) {
	case *LetStmt:
		v, err := in.eval(s.Init, env)
		if err != nil {
			return ctlNext, nil, err
		}
		if c, ok := v.(*Closure); ok && c.Name == "" {
			if _, isArrow := s.Init.(*ArrowFunc); isArrow {
				c.Name = s.Name
			}
		}
		return ctlNext, nil, locate(env.Define(s.Name, v, s.Kind == DeclConst), s.Pos)
	case *FuncDecl:
		return ctlNext, nil, nil
	case *ExprStmt:
		_, err := in.eval(s.X, env)
		return ctlNext, nil, err
	case *ReturnStmt:
		if s.Value == nil {
			return ctlReturn, Undefined, nil
		}
		v, err := in.eval(s.Value, env)
		return ctlReturn, v, err
	case *IfStmt:
		ok, err := in.condition(s.Test, env)
		if err != nil {
			return ctlNext, nil, err
		}
		if ok {
			return in.block(s.Then, env)
		}
		if s.Else != nil {
			return in.exec(s.Else, env)
		}
		return ctlNext, nil, nil
	case *WhileStmt:
		for {
			if err := in.tick(); err != nil {
				return ctlNext, nil, err
			}
			ok, err := in.condition(s.Test, env)
			if err != nil || !ok {
				return ctlNext, nil, err
			}
			ctl, v, err := in.block(s.Body, env)
			if err != nil || ctl == ctlReturn {
				return ctl, v, err
			}
			if ctl == ctlBreak {
				return ctlNext, nil, nil
			}
		}
	case *ForStmt:
		scope := NewEnv(env)
		if s.Init != nil {
			if _, _, err := in.exec(s.Init, scope); err != nil {
				return ctlNext, nil, err
			}
		}
		for {
			if err := in.tick(); err != nil {
				return ctlNext, nil, err
			}
			if s.Test != nil {
				ok, err := in.condition(s.Test, scope)
				if err != nil || !ok {
					return ctlNext, nil, err
				}
			}
			ctl, v, err := in.block(s.Body, scope)
			if err != nil || ctl == ctlReturn {
				return ctl, v, err
			}
			if ctl == ctlBreak {
				return ctlNext, nil, nil
			}
			if s.Update != nil {
				if _, err := in.eval(s.Update, scope); err != nil {
					return ctlNext, nil, err
				}
			}
		}
	case *BreakStmt:
		return ctlBreak, nil, nil
	case *ContinueStmt:
		return ctlContinue, nil, nil
	case *Block:
		return in.block(s, env)
	default:
		return ctlNext, nil, runtimeErrorf(s.Position(), "unsupported statement %T", s)
	}
}

func (in *Interpreter) condition(x Expr, env *Env) (bool, error) {
	v, err := in.eval(x, env)
	if err != nil {
		return false, err
	}
	b, ok := Unshadow(v).(bool)
	if !ok {
		return false, runtimeErrorf(x.Position(), "expected boolean as condition, got %s", TypeName(v))
	}
	return b, nil
}

func (in *Interpreter) eval(x Expr, env *Env) (Value, error) {
	switch x := x.(type) {
	case *NumberLit:
		return x.Value, nil
	case *StringLit:
		return x.Value, nil
	case *BoolLit:
		return x.Value, nil
	case *NullLit:
		return nil, nil
	case *UndefinedLit:
		return Undefined, nil
	case *Ident:
		v, ok := env.Get(x.Name)
		if !ok {
			return nil, runtimeErrorf(x.Pos, "name %s not declared", x.Name)
		}
		return v, nil
	case *ArrayLit:
		arr := &Array{Elems: make([]Value, len(x.Elems))}
		for i, e := range x.Elems {
			v, err := in.eval(e, env)
			if err != nil {
				return nil, err
			}
			arr.Elems[i] = v
		}
		return arr, nil
	case *UnaryExpr:
		v, err := in.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		r, err := EvalUnary(x.Op, v)
		return r, locate(err, x.Pos)
	case *BinaryExpr:
		l, err := in.eval(x.Left, env)
		if err != nil {
			return nil, err
		}
		r, err := in.eval(x.Right, env)
		if err != nil {
			return nil, err
		}
		v, err := EvalBinary(x.Op, l, r)
		return v, locate(err, x.Pos)
	case *LogicalExpr:
		l, err := in.eval(x.Left, env)
		if err != nil {
			return nil, err
		}
		b, ok := Unshadow(l).(bool)
		if !ok {
			return nil, runtimeErrorf(x.Pos, "expected boolean on left hand side of %s, got %s", x.Op, TypeName(l))
		}
		if (x.Op == "&&") != b {
			return l, nil
		}
		return in.eval(x.Right, env)
	case *CondExpr:
		ok, err := in.condition(x.Test, env)
		if err != nil {
			return nil, err
		}
		if ok {
			return in.eval(x.Then, env)
		}
		return in.eval(x.Else, env)
	case *CallExpr:
		fn, err := in.eval(x.Callee, env)
		if err != nil {
			return nil, err
		}
		args := make([]Value, len(x.Args))
		for i, a := range x.Args {
			if args[i], err = in.eval(a, env); err != nil {
				return nil, err
			}
		}
		return in.invoke(x.Pos, fn, args)
	case *IndexExpr:
		arr, idx, err := in.element(x.X, x.Index, env)
		if err != nil {
			return nil, err
		}
		if idx >= float64(len(arr.Elems)) {
			return Undefined, nil
		}
		return arr.Elems[int(idx)], nil
	case *MemberExpr:
		v, err := in.eval(x.X, env)
		if err != nil {
			return nil, err
		}
		rec, ok := Unshadow(v).(Record)
		if !ok {
			return nil, runtimeErrorf(x.Pos, "cannot read member %s of %s", x.Name, TypeName(v))
		}
		m, ok := rec[x.Name]
		if !ok {
			return nil, runtimeErrorf(x.Pos, "object has no member %s", x.Name)
		}
		return m, nil
	case *AssignExpr:
		v, err := in.eval(x.Value, env)
		if err != nil {
			return nil, err
		}
		return v, locate(env.Set(x.Name, v), x.Pos)
	case *IndexAssignExpr:
		arr, idx, err := in.element(x.X, x.Index, env)
		if err != nil {
			return nil, err
		}
		v, err := in.eval(x.Value, env)
		if err != nil {
			return nil, err
		}
		if idx >= MaxArrayLength {
			return nil, runtimeErrorf(x.Index.Position(), "array index %s exceeds the maximum array length %d", Stringify(idx), MaxArrayLength)
		}
		i := int(idx)
		for len(arr.Elems) <= i {
			arr.Elems = append(arr.Elems, Undefined)
		}
		arr.Elems[i] = v
		return v, nil
	case *ArrowFunc:
		return &Closure{Params: x.Params, Body: x.Body, Expr: x.Expr, Env: env, Pos: x.Pos}, nil
	default:
		return nil, runtimeErrorf(x.Position(), "unsupported expression %T", x)
	}
}

// MaxArrayLength bounds how far an index assignment may grow an array.
const MaxArrayLength = 1 << 24

// element evaluates an array operand and a valid index into it. The index
// stays a float so callers range-check it before converting.
func (in *Interpreter) element(ax, ix Expr, env *Env) (*Array, float64, error) {
	av, err := in.eval(ax, env)
	if err != nil {
		return nil, 0, err
	}
	iv, err := in.eval(ix, env)
	if err != nil {
		return nil, 0, err
	}
	arr, ok := Unshadow(av).(*Array)
	if !ok {
		return nil, 0, runtimeErrorf(ax.Position(), "expected array, got %s", TypeName(av))
	}
	f, ok := Unshadow(iv).(float64)
	if !ok || f < 0 || f != math.Trunc(f) {
		return nil, 0, runtimeErrorf(ix.Position(), "expected array index as non-negative integer, got %s", Stringify(iv))
	}
	return arr, f, nil
}
