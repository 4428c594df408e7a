package loopdetect

import (
	"fmt"
	"strings"

	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/pkg/srcfmt"
)

// Instrumented is the result of rewriting a session's programs so that every
// loop, function, variable access and condition reports to the hook table.
type Instrumented struct {
	// Programs holds the rewritten priors followed by the rewritten candidate.
	Programs []*loopguard.Program
	// Hooks, State and Builtins are the global names the rewritten programs
	// expect the hook table, the run state and the builtin table under.
	Hooks    string
	State    string
	Builtins string
	// Locations is indexed by the location ids embedded in the programs.
	Locations []Location
}

// Source prints the rewritten programs, one after another.
func (ins *Instrumented) Source() string {
	parts := make([]string, len(ins.Programs))
	for i, p := range ins.Programs {
		parts[i] = srcfmt.Print(p, srcfmt.Config{})
	}
	return strings.Join(parts, "\n")
}

// Instrument rewrites prior and candidate, in that order, against one shared
// top-level scope. Names in builtinNames that no program declares are
// redirected to the builtin table. The input programs are not modified.
func Instrument(prior []*loopguard.Program, candidate *loopguard.Program, builtinNames []string) (*Instrumented, error) {
	if candidate == nil {
		return nil, fmt.Errorf("%w: no candidate program", ErrAnalysis)
	}
	progs := make([]*loopguard.Program, 0, len(prior)+1)
	for i, p := range prior {
		if p == nil {
			return nil, fmt.Errorf("%w: prior program %d is missing", ErrAnalysis, i)
		}
		progs = append(progs, p)
	}
	progs = append(progs, candidate)

	names := collectNames(progs)
	ins := &Instrumented{
		Hooks:    freshName("__hooks", names.used),
		State:    freshName("__state", names.used),
		Builtins: freshName("__builtins", names.used),
	}
	t := &instrumenter{
		out:      ins,
		declared: names.declared,
		builtins: map[string]bool{},
		top:      newScope(nil),
	}
	for _, b := range builtinNames {
		t.builtins[b] = true
	}
	for _, p := range progs {
		ins.Programs = append(ins.Programs, t.program(p))
	}
	return ins, nil
}

type bindingKind uint8

const (
	bindLet bindingKind = iota
	bindConst
	bindParam
	bindFunc
)

type binding struct {
	kind bindingKind
	key  string
}

type scope struct {
	names  map[string]binding
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{names: map[string]binding{}, parent: parent}
}

func (s *scope) lookup(name string) (binding, bool) {
	for ; s != nil; s = s.parent {
		if b, ok := s.names[name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

type instrumenter struct {
	out      *Instrumented
	declared map[string]bool
	builtins map[string]bool
	top      *scope
	sc       *scope
	prog     int
}

func (t *instrumenter) program(p *loopguard.Program) *loopguard.Program {
	t.prog = p.Index
	t.sc = t.top
	t.hoist(p.Body)
	out := &loopguard.Program{Index: p.Index, Body: make([]loopguard.Stmt, 0, len(p.Body))}
	for _, s := range p.Body {
		out.Body = append(out.Body, t.stmt(s))
	}
	return out
}

// key is the tracking key of a declaration: its name qualified by where it
// was declared, so shadowed names never share history.
func (t *instrumenter) key(name string, pos loopguard.Pos) string {
	return fmt.Sprintf("%s@%d:%d:%d", name, t.prog, pos.Line, pos.Col)
}

func (t *instrumenter) declare(name string, kind bindingKind, pos loopguard.Pos) binding {
	b := binding{kind: kind, key: t.key(name, pos)}
	t.sc.names[name] = b
	return b
}

// hoist declares the functions of a block before its statements run.
func (t *instrumenter) hoist(stmts []loopguard.Stmt) {
	for _, s := range stmts {
		if fd, ok := s.(*loopguard.FuncDecl); ok {
			t.declare(fd.Name, bindFunc, fd.Pos)
		}
	}
}

func (t *instrumenter) enter() func() {
	outer := t.sc
	t.sc = newScope(outer)
	return func() { t.sc = outer }
}

func (t *instrumenter) location(pos loopguard.Pos, label string) loopguard.Expr {
	id := len(t.out.Locations)
	t.out.Locations = append(t.out.Locations, Location{Program: t.prog, Line: pos.Line, Col: pos.Col, Label: label})
	return &loopguard.NumberLit{Pos: pos, Value: float64(id)}
}

func (t *instrumenter) hook(pos loopguard.Pos, name string, args ...loopguard.Expr) loopguard.Expr {
	all := make([]loopguard.Expr, 0, len(args)+1)
	all = append(all, &loopguard.Ident{Pos: pos, Name: t.out.State})
	all = append(all, args...)
	return &loopguard.CallExpr{
		Pos:    pos,
		Callee: &loopguard.MemberExpr{Pos: pos, X: &loopguard.Ident{Pos: pos, Name: t.out.Hooks}, Name: name},
		Args:   all,
	}
}

func str(pos loopguard.Pos, s string) loopguard.Expr {
	return &loopguard.StringLit{Pos: pos, Value: s}
}

func (t *instrumenter) builtinRef(id *loopguard.Ident) loopguard.Expr {
	return &loopguard.MemberExpr{Pos: id.Pos, X: &loopguard.Ident{Pos: id.Pos, Name: t.out.Builtins}, Name: id.Name}
}

func (t *instrumenter) isBuiltin(name string) bool {
	return t.builtins[name] && !t.declared[name]
}

func (t *instrumenter) block(b *loopguard.Block) *loopguard.Block {
	defer t.enter()()
	t.hoist(b.Body)
	out := &loopguard.Block{Pos: b.Pos, Body: make([]loopguard.Stmt, 0, len(b.Body))}
	for _, s := range b.Body {
		out.Body = append(out.Body, t.stmt(s))
	}
	return out
}

func (t *instrumenter) stmt(s loopguard.Stmt) loopguard.Stmt {
	switch s := s.(type) {
	case *loopguard.LetStmt:
		if arrow, ok := s.Init.(*loopguard.ArrowFunc); ok {
			// Declared first so the function can call itself.
			kind := bindLet
			if s.Kind == loopguard.DeclConst {
				kind = bindConst
			}
			t.declare(s.Name, kind, s.Pos)
			return &loopguard.LetStmt{Pos: s.Pos, Kind: s.Kind, Name: s.Name, Init: t.arrow(arrow, s.Name)}
		}
		init := t.expr(s.Init)
		kind := bindLet
		if s.Kind == loopguard.DeclConst {
			kind = bindConst
		}
		b := t.declare(s.Name, kind, s.Pos)
		return &loopguard.LetStmt{Pos: s.Pos, Kind: s.Kind, Name: s.Name, Init: t.hook(s.Pos, "saveVar", str(s.Pos, b.key), init)}
	case *loopguard.FuncDecl:
		return &loopguard.FuncDecl{Pos: s.Pos, Name: s.Name, Params: s.Params, Body: t.function(s.Name, s.Pos, s.Params, s.Body, nil)}
	case *loopguard.ExprStmt:
		return &loopguard.ExprStmt{Pos: s.Pos, X: t.expr(s.X)}
	case *loopguard.ReturnStmt:
		var v loopguard.Expr = &loopguard.UndefinedLit{Pos: s.Pos}
		if s.Value != nil {
			v = t.expr(s.Value)
		}
		return &loopguard.ReturnStmt{Pos: s.Pos, Value: t.hook(s.Pos, "returnFunction", v)}
	case *loopguard.IfStmt:
		out := &loopguard.IfStmt{Pos: s.Pos, Test: t.cond(s.Test), Then: t.block(s.Then)}
		if s.Else != nil {
			out.Else = t.stmt(s.Else)
		}
		return out
	case *loopguard.WhileStmt:
		return t.loop(s.Pos, nil, s.Test, nil, s.Body)
	case *loopguard.ForStmt:
		return t.loop(s.Pos, s.Init, s.Test, s.Update, s.Body)
	case *loopguard.Block:
		return t.block(s)
	default:
		return s
	}
}

// loop rewrites a while or for loop into
//
//	{ init; enterLoop(); for (; test; postLoop(update)) body; exitLoop(); }
func (t *instrumenter) loop(pos loopguard.Pos, init loopguard.Stmt, test, update loopguard.Expr, body *loopguard.Block) loopguard.Stmt {
	defer t.enter()()
	loc := t.location(pos, "loop")
	out := &loopguard.Block{Pos: pos}
	if init != nil {
		out.Body = append(out.Body, t.stmt(init))
	}
	out.Body = append(out.Body, &loopguard.ExprStmt{Pos: pos, X: t.hook(pos, "enterLoop", loc)})

	f := &loopguard.ForStmt{Pos: pos}
	if test != nil {
		f.Test = t.cond(test)
	}
	var upd loopguard.Expr = &loopguard.UndefinedLit{Pos: pos}
	if update != nil {
		upd = t.expr(update)
	}
	f.Update = t.hook(pos, "postLoop", loc, upd)
	f.Body = t.block(body)
	out.Body = append(out.Body, f, &loopguard.ExprStmt{Pos: pos, X: t.hook(pos, "exitLoop")})
	return out
}

// function builds the instrumented body of a function: a preFunction
// prologue, the body, and a returnFunction for falling off the end.
// Exactly one of body and expr is set.
func (t *instrumenter) function(name string, pos loopguard.Pos, params []string, body *loopguard.Block, expr loopguard.Expr) *loopguard.Block {
	defer t.enter()()
	args := []loopguard.Expr{str(pos, name), t.location(pos, "function "+DisplayName(name))}
	for _, p := range params {
		b := t.declare(p, bindParam, pos)
		args = append(args, str(pos, b.key), &loopguard.Ident{Pos: pos, Name: p})
	}
	out := &loopguard.Block{Pos: pos}
	out.Body = append(out.Body, &loopguard.ExprStmt{Pos: pos, X: t.hook(pos, "preFunction", args...)})
	if expr != nil {
		ret := t.hook(expr.Position(), "returnFunction", t.expr(expr))
		out.Body = append(out.Body, &loopguard.ReturnStmt{Pos: expr.Position(), Value: ret})
		return out
	}
	t.hoist(body.Body)
	for _, s := range body.Body {
		out.Body = append(out.Body, t.stmt(s))
	}
	end := t.hook(pos, "returnFunction", &loopguard.UndefinedLit{Pos: pos})
	out.Body = append(out.Body, &loopguard.ReturnStmt{Pos: pos, Value: end})
	return out
}

func (t *instrumenter) arrow(a *loopguard.ArrowFunc, name string) loopguard.Expr {
	if name == "" {
		name = t.key("anonymous", a.Pos)
	}
	return &loopguard.ArrowFunc{Pos: a.Pos, Params: a.Params, Body: t.function(name, a.Pos, a.Params, a.Body, a.Expr)}
}

// cond instruments an expression whose truth value decides a branch.
// Constant guards are left alone; && and || decide one branch per operand.
func (t *instrumenter) cond(e loopguard.Expr) loopguard.Expr {
	switch x := e.(type) {
	case *loopguard.BoolLit:
		return x
	case *loopguard.LogicalExpr:
		return &loopguard.LogicalExpr{Pos: x.Pos, Op: x.Op, Left: t.cond(x.Left), Right: t.cond(x.Right)}
	default:
		return t.hook(e.Position(), "saveBool", t.expr(e))
	}
}

func (t *instrumenter) read(id *loopguard.Ident) loopguard.Expr {
	b, ok := t.sc.lookup(id.Name)
	if !ok {
		if t.isBuiltin(id.Name) {
			return t.builtinRef(id)
		}
		return id
	}
	switch b.kind {
	case bindFunc:
		return id
	case bindConst:
		return t.hook(id.Pos, "hybridize", str(id.Pos, b.key), id)
	default:
		return &loopguard.AssignExpr{Pos: id.Pos, Name: id.Name, Value: t.hook(id.Pos, "hybridize", str(id.Pos, b.key), id)}
	}
}

func (t *instrumenter) callee(e loopguard.Expr) loopguard.Expr {
	if id, ok := e.(*loopguard.Ident); ok {
		if _, declared := t.sc.lookup(id.Name); !declared && t.isBuiltin(id.Name) {
			return t.builtinRef(id)
		}
		return id
	}
	return t.expr(e)
}

func (t *instrumenter) expr(e loopguard.Expr) loopguard.Expr {
	switch x := e.(type) {
	case *loopguard.Ident:
		return t.read(x)
	case *loopguard.ArrayLit:
		out := &loopguard.ArrayLit{Pos: x.Pos, Elems: make([]loopguard.Expr, len(x.Elems))}
		for i, el := range x.Elems {
			out.Elems[i] = t.hook(el.Position(), "concretize", t.expr(el))
		}
		return out
	case *loopguard.UnaryExpr:
		return t.hook(x.Pos, "evalU", str(x.Pos, x.Op), t.expr(x.X))
	case *loopguard.BinaryExpr:
		return t.hook(x.Pos, "evalB", str(x.Pos, x.Op), t.expr(x.Left), t.expr(x.Right))
	case *loopguard.LogicalExpr:
		return &loopguard.LogicalExpr{Pos: x.Pos, Op: x.Op, Left: t.cond(x.Left), Right: t.expr(x.Right)}
	case *loopguard.CondExpr:
		return &loopguard.CondExpr{Pos: x.Pos, Test: t.cond(x.Test), Then: t.expr(x.Then), Else: t.expr(x.Else)}
	case *loopguard.CallExpr:
		call := &loopguard.CallExpr{Pos: x.Pos, Callee: t.callee(x.Callee), Args: make([]loopguard.Expr, len(x.Args))}
		for i, a := range x.Args {
			call.Args[i] = t.hook(a.Position(), "wrapArg", t.expr(a))
		}
		label := "call"
		if id, ok := x.Callee.(*loopguard.Ident); ok {
			label = "call " + id.Name
		}
		thunk := &loopguard.ArrowFunc{Pos: x.Pos, Expr: call}
		return t.hook(x.Pos, "trackLoc", t.location(x.Pos, label), thunk)
	case *loopguard.IndexExpr:
		idx := t.hook(x.Index.Position(), "concretize", t.expr(x.Index))
		return t.hook(x.Pos, "dummify", &loopguard.IndexExpr{Pos: x.Pos, X: t.expr(x.X), Index: idx})
	case *loopguard.MemberExpr:
		return t.hook(x.Pos, "dummify", &loopguard.MemberExpr{Pos: x.Pos, X: t.expr(x.X), Name: x.Name})
	case *loopguard.AssignExpr:
		v := t.expr(x.Value)
		b, ok := t.sc.lookup(x.Name)
		if !ok {
			return &loopguard.AssignExpr{Pos: x.Pos, Name: x.Name, Value: v}
		}
		return &loopguard.AssignExpr{Pos: x.Pos, Name: x.Name, Value: t.hook(x.Pos, "saveVar", str(x.Pos, b.key), v)}
	case *loopguard.IndexAssignExpr:
		idx := t.hook(x.Index.Position(), "concretize", t.expr(x.Index))
		v := t.hook(x.Value.Position(), "concretize", t.expr(x.Value))
		return &loopguard.IndexAssignExpr{Pos: x.Pos, X: t.expr(x.X), Index: idx, Value: v}
	case *loopguard.ArrowFunc:
		return t.arrow(x, "")
	default:
		return e
	}
}

type nameSets struct {
	declared map[string]bool
	used     map[string]bool
}

// collectNames records every name the programs declare or mention.
func collectNames(progs []*loopguard.Program) nameSets {
	ns := nameSets{declared: map[string]bool{}, used: map[string]bool{}}
	decl := func(name string) {
		ns.declared[name] = true
		ns.used[name] = true
	}
	var stmt func(loopguard.Stmt)
	var expr func(loopguard.Expr)
	stmt = func(s loopguard.Stmt) {
		switch s := s.(type) {
		case *loopguard.LetStmt:
			decl(s.Name)
			expr(s.Init)
		case *loopguard.FuncDecl:
			decl(s.Name)
			for _, p := range s.Params {
				decl(p)
			}
			stmt(s.Body)
		case *loopguard.ExprStmt:
			expr(s.X)
		case *loopguard.ReturnStmt:
			expr(s.Value)
		case *loopguard.IfStmt:
			expr(s.Test)
			stmt(s.Then)
			stmt(s.Else)
		case *loopguard.WhileStmt:
			expr(s.Test)
			stmt(s.Body)
		case *loopguard.ForStmt:
			stmt(s.Init)
			expr(s.Test)
			expr(s.Update)
			stmt(s.Body)
		case *loopguard.Block:
			if s == nil {
				return
			}
			for _, c := range s.Body {
				stmt(c)
			}
		}
	}
	expr = func(e loopguard.Expr) {
		switch x := e.(type) {
		case *loopguard.Ident:
			ns.used[x.Name] = true
		case *loopguard.ArrayLit:
			for _, el := range x.Elems {
				expr(el)
			}
		case *loopguard.UnaryExpr:
			expr(x.X)
		case *loopguard.BinaryExpr:
			expr(x.Left)
			expr(x.Right)
		case *loopguard.LogicalExpr:
			expr(x.Left)
			expr(x.Right)
		case *loopguard.CondExpr:
			expr(x.Test)
			expr(x.Then)
			expr(x.Else)
		case *loopguard.CallExpr:
			expr(x.Callee)
			for _, a := range x.Args {
				expr(a)
			}
		case *loopguard.IndexExpr:
			expr(x.X)
			expr(x.Index)
		case *loopguard.MemberExpr:
			expr(x.X)
		case *loopguard.AssignExpr:
			ns.used[x.Name] = true
			expr(x.Value)
		case *loopguard.IndexAssignExpr:
			expr(x.X)
			expr(x.Index)
			expr(x.Value)
		case *loopguard.ArrowFunc:
			for _, p := range x.Params {
				decl(p)
			}
			expr(x.Expr)
			stmt(x.Body)
		}
	}
	for _, p := range progs {
		for _, s := range p.Body {
			stmt(s)
		}
	}
	return ns
}

// freshName returns base, or base with the smallest numeric suffix that no
// program uses.
func freshName(base string, used map[string]bool) string {
	name := base
	for i := 1; used[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	used[name] = true
	return name
}
