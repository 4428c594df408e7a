package loopguard

import "fmt"

// Parse parses a program. The returned program has Index 0; callers that
// assemble sessions renumber it.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var body []Stmt
	for p.peek().kind != tokEOF {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			body = append(body, s)
		}
	}
	return &Program{Body: body}, nil
}

type parser struct {
	toks      []token
	pos       int
	funcDepth int
	loopDepth int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// prevLine is the line of the most recently consumed token.
func (p *parser) prevLine() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].pos.Line
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) isKeyword(text string) bool {
	t := p.peek()
	return t.kind == tokKeyword && t.text == text
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Pos: t.pos, Msg: fmt.Sprintf(format, args...), AtEOF: t.kind == tokEOF}
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (p *parser) expectOp(text string) (token, error) {
	if !p.isOp(text) {
		return token{}, p.errorf(p.peek(), "expected %q, found %s", text, describe(p.peek()))
	}
	return p.next(), nil
}

func (p *parser) expectIdent() (token, error) {
	if p.peek().kind != tokIdent {
		return token{}, p.errorf(p.peek(), "expected identifier, found %s", describe(p.peek()))
	}
	return p.next(), nil
}

// endStatement accepts an explicit semicolon, or an implicit one before a
// closing brace, at end of input, or at a line break.
func (p *parser) endStatement() error {
	if p.isOp(";") {
		p.next()
		return nil
	}
	t := p.peek()
	if t.kind == tokEOF || p.isOp("}") || t.pos.Line > p.prevLine() {
		return nil
	}
	return p.errorf(t, "expected \";\", found %s", describe(t))
}

func (p *parser) statement() (Stmt, error) {
	t := p.peek()
	if t.kind == tokKeyword {
		switch t.text {
		case "let", "const":
			s, err := p.letStmt()
			if err != nil {
				return nil, err
			}
			return s, p.endStatement()
		case "function":
			return p.funcDecl()
		case "return":
			if p.funcDepth == 0 {
				return nil, p.errorf(t, "return outside of a function")
			}
			p.next()
			s := &ReturnStmt{Pos: t.pos}
			if !p.isOp(";") && !p.isOp("}") && p.peek().kind != tokEOF && p.peek().pos.Line == t.pos.Line {
				v, err := p.expr()
				if err != nil {
					return nil, err
				}
				s.Value = v
			}
			return s, p.endStatement()
		case "if":
			return p.ifStmt()
		case "while":
			return p.whileStmt()
		case "for":
			return p.forStmt()
		case "break", "continue":
			if p.loopDepth == 0 {
				return nil, p.errorf(t, "%s outside of a loop", t.text)
			}
			p.next()
			var s Stmt = &BreakStmt{Pos: t.pos}
			if t.text == "continue" {
				s = &ContinueStmt{Pos: t.pos}
			}
			return s, p.endStatement()
		}
	}
	if p.isOp("{") {
		return p.block()
	}
	if p.isOp(";") {
		p.next()
		return nil, nil
	}
	x, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &ExprStmt{Pos: t.pos, X: x}, p.endStatement()
}

func (p *parser) letStmt() (*LetStmt, error) {
	kw := p.next()
	kind := DeclLet
	if kw.text == "const" {
		kind = DeclConst
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("="); err != nil {
		return nil, err
	}
	init, err := p.expr()
	if err != nil {
		return nil, err
	}
	return &LetStmt{Pos: kw.pos, Kind: kind, Name: name.text, Init: init}, nil
}

func (p *parser) params() ([]string, error) {
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.isOp(")") {
		id, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		params = append(params, id.text)
		if !p.isOp(")") {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
	}
	p.next()
	return params, nil
}

// functionBody parses a block in a fresh function context: loops of the
// enclosing code do not extend into it.
func (p *parser) functionBody() (*Block, error) {
	savedLoops := p.loopDepth
	p.loopDepth = 0
	p.funcDepth++
	defer func() {
		p.funcDepth--
		p.loopDepth = savedLoops
	}()
	return p.block()
}

func (p *parser) funcDecl() (*FuncDecl, error) {
	kw := p.next()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	params, err := p.params()
	if err != nil {
		return nil, err
	}
	body, err := p.functionBody()
	if err != nil {
		return nil, err
	}
	return &FuncDecl{Pos: kw.pos, Name: name.text, Params: params, Body: body}, nil
}

func (p *parser) block() (*Block, error) {
	open, err := p.expectOp("{")
	if err != nil {
		return nil, err
	}
	b := &Block{Pos: open.pos}
	for !p.isOp("}") {
		if p.peek().kind == tokEOF {
			return nil, p.errorf(p.peek(), "expected \"}\", found end of input")
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			b.Body = append(b.Body, s)
		}
	}
	p.next()
	return b, nil
}

func (p *parser) condition() (Expr, error) {
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	test, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return test, nil
}

func (p *parser) ifStmt() (*IfStmt, error) {
	kw := p.next()
	test, err := p.condition()
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	s := &IfStmt{Pos: kw.pos, Test: test, Then: then}
	if p.isKeyword("else") {
		p.next()
		if p.isKeyword("if") {
			s.Else, err = p.ifStmt()
		} else {
			s.Else, err = p.block()
		}
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) loopBody() (*Block, error) {
	p.loopDepth++
	defer func() { p.loopDepth-- }()
	return p.block()
}

func (p *parser) whileStmt() (*WhileStmt, error) {
	kw := p.next()
	test, err := p.condition()
	if err != nil {
		return nil, err
	}
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Pos: kw.pos, Test: test, Body: body}, nil
}

func (p *parser) forStmt() (*ForStmt, error) {
	kw := p.next()
	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	s := &ForStmt{Pos: kw.pos}
	switch {
	case p.isOp(";"):
	case p.isKeyword("let") || p.isKeyword("const"):
		init, err := p.letStmt()
		if err != nil {
			return nil, err
		}
		s.Init = init
	default:
		t := p.peek()
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		s.Init = &ExprStmt{Pos: t.pos, X: x}
	}
	if _, err := p.expectOp(";"); err != nil {
		return nil, err
	}
	if !p.isOp(";") {
		test, err := p.expr()
		if err != nil {
			return nil, err
		}
		s.Test = test
	}
	if _, err := p.expectOp(";"); err != nil {
		return nil, err
	}
	if !p.isOp(")") {
		update, err := p.expr()
		if err != nil {
			return nil, err
		}
		s.Update = update
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	body, err := p.loopBody()
	if err != nil {
		return nil, err
	}
	s.Body = body
	return s, nil
}

func (p *parser) expr() (Expr, error) {
	return p.assignment()
}

// arrowAhead reports whether the tokens at the cursor start an arrow function.
func (p *parser) arrowAhead() bool {
	t := p.peek()
	if t.kind == tokIdent {
		n := p.peekAt(1)
		return n.kind == tokOp && n.text == "=>"
	}
	if !p.isOp("(") {
		return false
	}
	i := 1
	if n := p.peekAt(i); n.kind == tokOp && n.text == ")" {
		n = p.peekAt(i + 1)
		return n.kind == tokOp && n.text == "=>"
	}
	for {
		if p.peekAt(i).kind != tokIdent {
			return false
		}
		i++
		n := p.peekAt(i)
		if n.kind != tokOp {
			return false
		}
		switch n.text {
		case ",":
			i++
		case ")":
			a := p.peekAt(i + 1)
			return a.kind == tokOp && a.text == "=>"
		default:
			return false
		}
	}
}

func (p *parser) arrow() (Expr, error) {
	start := p.peek()
	var params []string
	if start.kind == tokIdent {
		params = []string{p.next().text}
	} else {
		var err error
		if params, err = p.params(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expectOp("=>"); err != nil {
		return nil, err
	}
	fn := &ArrowFunc{Pos: start.pos, Params: params}
	if p.isOp("{") {
		body, err := p.functionBody()
		if err != nil {
			return nil, err
		}
		fn.Body = body
		return fn, nil
	}
	x, err := p.assignment()
	if err != nil {
		return nil, err
	}
	fn.Expr = x
	return fn, nil
}

func (p *parser) assignment() (Expr, error) {
	if p.arrowAhead() {
		return p.arrow()
	}
	left, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if !p.isOp("=") {
		return left, nil
	}
	eq := p.next()
	value, err := p.assignment()
	if err != nil {
		return nil, err
	}
	switch l := left.(type) {
	case *Ident:
		return &AssignExpr{Pos: l.Pos, Name: l.Name, Value: value}, nil
	case *IndexExpr:
		return &IndexAssignExpr{Pos: l.Pos, X: l.X, Index: l.Index, Value: value}, nil
	default:
		return nil, p.errorf(eq, "invalid assignment target")
	}
}

func (p *parser) ternary() (Expr, error) {
	test, err := p.logical(0)
	if err != nil {
		return nil, err
	}
	if !p.isOp("?") {
		return test, nil
	}
	p.next()
	then, err := p.assignment()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	els, err := p.assignment()
	if err != nil {
		return nil, err
	}
	return &CondExpr{Pos: test.Position(), Test: test, Then: then, Else: els}, nil
}

// binaryLevels lists binary operators from loosest to tightest binding.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"===", "!==", "==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) matchLevel(level int) (token, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return t, false
	}
	for _, op := range binaryLevels[level] {
		if t.text == op {
			return t, true
		}
	}
	return t, false
}

func (p *parser) logical(level int) (Expr, error) {
	if level == len(binaryLevels) {
		return p.unary()
	}
	left, err := p.logical(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.matchLevel(level)
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.logical(level + 1)
		if err != nil {
			return nil, err
		}
		switch t.text {
		case "&&", "||":
			left = &LogicalExpr{Pos: left.Position(), Op: t.text, Left: left, Right: right}
		case "==":
			left = &BinaryExpr{Pos: left.Position(), Op: "===", Left: left, Right: right}
		case "!=":
			left = &BinaryExpr{Pos: left.Position(), Op: "!==", Left: left, Right: right}
		default:
			left = &BinaryExpr{Pos: left.Position(), Op: t.text, Left: left, Right: right}
		}
	}
}

func (p *parser) unary() (Expr, error) {
	if p.isOp("!") || p.isOp("-") {
		t := p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Pos: t.pos, Op: t.text, X: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (Expr, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("("):
			p.next()
			var args []Expr
			for !p.isOp(")") {
				a, err := p.expr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.isOp(")") {
					if _, err := p.expectOp(","); err != nil {
						return nil, err
					}
				}
			}
			p.next()
			x = &CallExpr{Pos: x.Position(), Callee: x, Args: args}
		case p.isOp("["):
			p.next()
			idx, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &IndexExpr{Pos: x.Position(), X: x, Index: idx}
		case p.isOp("."):
			p.next()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			x = &MemberExpr{Pos: x.Position(), X: x, Name: name.text}
		default:
			return x, nil
		}
	}
}

func (p *parser) primary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &NumberLit{Pos: t.pos, Value: t.num}, nil
	case tokString:
		p.next()
		return &StringLit{Pos: t.pos, Value: t.text}, nil
	case tokIdent:
		p.next()
		return &Ident{Pos: t.pos, Name: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "true", "false":
			p.next()
			return &BoolLit{Pos: t.pos, Value: t.text == "true"}, nil
		case "null":
			p.next()
			return &NullLit{Pos: t.pos}, nil
		case "undefined":
			p.next()
			return &UndefinedLit{Pos: t.pos}, nil
		}
	case tokOp:
		switch t.text {
		case "(":
			p.next()
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			p.next()
			arr := &ArrayLit{Pos: t.pos}
			for !p.isOp("]") {
				e, err := p.expr()
				if err != nil {
					return nil, err
				}
				arr.Elems = append(arr.Elems, e)
				if !p.isOp("]") {
					if _, err := p.expectOp(","); err != nil {
						return nil, err
					}
				}
			}
			p.next()
			return arr, nil
		}
	}
	return nil, p.errorf(t, "unexpected %s", describe(t))
}
