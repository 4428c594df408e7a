package srcfmt

import (
	"strings"

	"github.com/speakeasy-api/loopguard"
)

// Binding strength, loosest first.
const (
	precAssign = iota + 1
	precCond
	precOr
	precAnd
	precEq
	precRel
	precAdd
	precMul
	precUnary
	precPostfix
	precPrimary
)

var binaryPrec = map[string]int{
	"||":  precOr,
	"&&":  precAnd,
	"===": precEq,
	"!==": precEq,
	"<":   precRel,
	"<=":  precRel,
	">":   precRel,
	">=":  precRel,
	"+":   precAdd,
	"-":   precAdd,
	"*":   precMul,
	"/":   precMul,
	"%":   precMul,
}

func precOf(e loopguard.Expr) int {
	switch x := e.(type) {
	case *loopguard.AssignExpr, *loopguard.IndexAssignExpr, *loopguard.ArrowFunc:
		return precAssign
	case *loopguard.CondExpr:
		return precCond
	case *loopguard.BinaryExpr:
		return binaryPrec[x.Op]
	case *loopguard.LogicalExpr:
		return binaryPrec[x.Op]
	case *loopguard.UnaryExpr:
		return precUnary
	case *loopguard.CallExpr, *loopguard.IndexExpr, *loopguard.MemberExpr:
		return precPostfix
	default:
		return precPrimary
	}
}

// expr prints e, parenthesized when it binds looser than min.
func (p *printer) expr(e loopguard.Expr, min int) {
	if precOf(e) < min {
		p.b.WriteByte('(')
		p.expr(e, precAssign)
		p.b.WriteByte(')')
		return
	}
	switch x := e.(type) {
	case *loopguard.NumberLit:
		p.b.WriteString(loopguard.FormatNumber(x.Value))
	case *loopguard.StringLit:
		p.b.WriteString(quote(x.Value))
	case *loopguard.BoolLit:
		if x.Value {
			p.b.WriteString("true")
		} else {
			p.b.WriteString("false")
		}
	case *loopguard.NullLit:
		p.b.WriteString("null")
	case *loopguard.UndefinedLit:
		p.b.WriteString("undefined")
	case *loopguard.Ident:
		p.b.WriteString(x.Name)
	case *loopguard.ArrayLit:
		p.b.WriteByte('[')
		p.list(x.Elems)
		p.b.WriteByte(']')
	case *loopguard.UnaryExpr:
		p.b.WriteString(x.Op)
		if _, nested := x.X.(*loopguard.UnaryExpr); nested {
			p.b.WriteByte('(')
			p.expr(x.X, precAssign)
			p.b.WriteByte(')')
			return
		}
		p.expr(x.X, precUnary)
	case *loopguard.BinaryExpr:
		p.binary(x.Op, x.Left, x.Right)
	case *loopguard.LogicalExpr:
		p.binary(x.Op, x.Left, x.Right)
	case *loopguard.CondExpr:
		p.expr(x.Test, precOr)
		p.b.WriteString(" ? ")
		p.expr(x.Then, precAssign)
		p.b.WriteString(" : ")
		p.expr(x.Else, precAssign)
	case *loopguard.CallExpr:
		p.expr(x.Callee, precPostfix)
		p.b.WriteByte('(')
		p.list(x.Args)
		p.b.WriteByte(')')
	case *loopguard.IndexExpr:
		p.expr(x.X, precPostfix)
		p.b.WriteByte('[')
		p.expr(x.Index, precAssign)
		p.b.WriteByte(']')
	case *loopguard.MemberExpr:
		p.expr(x.X, precPostfix)
		p.b.WriteByte('.')
		p.b.WriteString(x.Name)
	case *loopguard.AssignExpr:
		p.b.WriteString(x.Name)
		p.b.WriteString(" = ")
		p.expr(x.Value, precAssign)
	case *loopguard.IndexAssignExpr:
		p.expr(x.X, precPostfix)
		p.b.WriteByte('[')
		p.expr(x.Index, precAssign)
		p.b.WriteString("] = ")
		p.expr(x.Value, precAssign)
	case *loopguard.ArrowFunc:
		p.b.WriteByte('(')
		p.b.WriteString(strings.Join(x.Params, ", "))
		p.b.WriteString(") => ")
		if x.Body != nil {
			p.block(x.Body)
			return
		}
		p.expr(x.Expr, precAssign)
	}
}

// binary prints a left-associative operator application.
func (p *printer) binary(op string, l, r loopguard.Expr) {
	prec := binaryPrec[op]
	p.expr(l, prec)
	p.b.WriteByte(' ')
	p.b.WriteString(op)
	if p.breaks[opNames[op]] {
		p.depth++
		p.line()
		p.expr(r, prec+1)
		p.depth--
		return
	}
	p.b.WriteByte(' ')
	p.expr(r, prec+1)
}

func (p *printer) list(xs []loopguard.Expr) {
	for i, x := range xs {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.expr(x, precAssign)
	}
}

// quote writes s with the escapes the lexer understands.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
