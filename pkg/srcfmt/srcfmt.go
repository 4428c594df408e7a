package srcfmt

import (
	"fmt"
	"strings"

	"github.com/speakeasy-api/loopguard"
)

// Config controls the printer.
type Config struct {
	// Indent is the number of spaces per nesting level (default 4).
	Indent int
	// Ops lists binary operators, by name, after which a chain is broken
	// across lines. See ValidateConfig for the names.
	Ops []string
}

var opNames = map[string]string{
	"||":  "or",
	"&&":  "and",
	"===": "eq",
	"!==": "ne",
	"<":   "lt",
	"<=":  "le",
	">":   "gt",
	">=":  "ge",
	"+":   "add",
	"-":   "sub",
	"*":   "mul",
	"/":   "div",
	"%":   "mod",
}

var validOps = []string{"or", "and", "eq", "ne", "lt", "le", "gt", "ge", "add", "sub", "mul", "div", "mod"}

// ValidateConfig normalizes operator names to lower case and rejects
// unknown ones.
func ValidateConfig(cfg Config) (Config, error) {
	if cfg.Indent < 0 {
		return cfg, fmt.Errorf("invalid indent %d", cfg.Indent)
	}
	ops := make([]string, len(cfg.Ops))
	for o, op := range cfg.Ops {
		valid := false
		for _, vop := range validOps {
			if strings.EqualFold(op, vop) {
				ops[o] = vop
				valid = true
			}
		}
		if !valid {
			return cfg, fmt.Errorf("invalid operator %q; valid operators: %s", op, strings.Join(validOps, ", "))
		}
	}
	cfg.Ops = ops
	return cfg, nil
}

// Format parses src and prints it back in canonical form. The output is
// parsed once more to make sure printing preserved the program.
func Format(src string, cfg Config) (string, error) {
	cfg, err := ValidateConfig(cfg)
	if err != nil {
		return "", err
	}
	prog, err := loopguard.Parse(src)
	if err != nil {
		return "", fmt.Errorf("could not parse program: %w", err)
	}
	out := Print(prog, cfg)
	again, err := loopguard.Parse(out)
	if err != nil {
		return "", fmt.Errorf("could not parse formatted program: %w", err)
	}
	return Print(again, cfg), nil
}

// Print renders prog as source text.
func Print(prog *loopguard.Program, cfg Config) string {
	p := newPrinter(cfg)
	for _, s := range prog.Body {
		p.stmt(s)
	}
	return p.b.String()
}

// PrintExpr renders a single expression.
func PrintExpr(e loopguard.Expr) string {
	p := newPrinter(Config{})
	p.expr(e, precAssign)
	return p.b.String()
}

type printer struct {
	b      strings.Builder
	indent string
	depth  int
	breaks map[string]bool
}

func newPrinter(cfg Config) *printer {
	n := cfg.Indent
	if n == 0 {
		n = 4
	}
	p := &printer{indent: strings.Repeat(" ", n), breaks: map[string]bool{}}
	for _, op := range cfg.Ops {
		p.breaks[strings.ToLower(op)] = true
	}
	return p
}

func (p *printer) line() {
	p.b.WriteByte('\n')
	p.b.WriteString(strings.Repeat(p.indent, p.depth))
}

func (p *printer) startLine() {
	p.b.WriteString(strings.Repeat(p.indent, p.depth))
}

func (p *printer) stmt(s loopguard.Stmt) {
	p.startLine()
	p.stmtInline(s)
	p.b.WriteByte('\n')
}

// stmtInline prints s starting at the cursor, without a trailing newline.
func (p *printer) stmtInline(s loopguard.Stmt) {
	switch s := s.(type) {
	case *loopguard.LetStmt:
		p.decl(s)
		p.b.WriteByte(';')
	case *loopguard.FuncDecl:
		fmt.Fprintf(&p.b, "function %s(%s) ", s.Name, strings.Join(s.Params, ", "))
		p.block(s.Body)
	case *loopguard.ExprStmt:
		p.exprStmt(s.X)
		p.b.WriteByte(';')
	case *loopguard.ReturnStmt:
		p.b.WriteString("return")
		if s.Value != nil {
			p.b.WriteByte(' ')
			p.expr(s.Value, precAssign)
		}
		p.b.WriteByte(';')
	case *loopguard.IfStmt:
		p.b.WriteString("if (")
		p.expr(s.Test, precAssign)
		p.b.WriteString(") ")
		p.block(s.Then)
		if s.Else != nil {
			p.b.WriteString(" else ")
			p.stmtInline(s.Else)
		}
	case *loopguard.WhileStmt:
		p.b.WriteString("while (")
		p.expr(s.Test, precAssign)
		p.b.WriteString(") ")
		p.block(s.Body)
	case *loopguard.ForStmt:
		p.b.WriteString("for (")
		switch init := s.Init.(type) {
		case *loopguard.LetStmt:
			p.decl(init)
		case *loopguard.ExprStmt:
			p.expr(init.X, precAssign)
		}
		p.b.WriteString("; ")
		if s.Test != nil {
			p.expr(s.Test, precAssign)
		}
		p.b.WriteString("; ")
		if s.Update != nil {
			p.expr(s.Update, precAssign)
		}
		p.b.WriteString(") ")
		p.block(s.Body)
	case *loopguard.BreakStmt:
		p.b.WriteString("break;")
	case *loopguard.ContinueStmt:
		p.b.WriteString("continue;")
	case *loopguard.Block:
		p.block(s)
	}
}

func (p *printer) decl(s *loopguard.LetStmt) {
	fmt.Fprintf(&p.b, "%s %s = ", s.Kind, s.Name)
	p.expr(s.Init, precAssign)
}

// exprStmt keeps a statement from starting with "{" or "function".
func (p *printer) exprStmt(x loopguard.Expr) {
	if _, ok := x.(*loopguard.ArrowFunc); ok {
		p.b.WriteByte('(')
		p.expr(x, precAssign)
		p.b.WriteByte(')')
		return
	}
	p.expr(x, precAssign)
}

func (p *printer) block(b *loopguard.Block) {
	if b == nil || len(b.Body) == 0 {
		p.b.WriteString("{}")
		return
	}
	p.b.WriteString("{\n")
	p.depth++
	for _, s := range b.Body {
		p.stmt(s)
	}
	p.depth--
	p.startLine()
	p.b.WriteByte('}')
}
