package loopguard

// Program is one parsed submission. Index orders submissions within a session:
// 0 is the prelude, then prior programs, then the candidate.
type Program struct {
	Index int
	Body  []Stmt
}

// Stmt is a statement node.
type Stmt interface {
	Position() Pos
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Position() Pos
	exprNode()
}

// DeclKind distinguishes let and const declarations.
type DeclKind int

const (
	DeclLet DeclKind = iota
	DeclConst
)

func (k DeclKind) String() string {
	if k == DeclConst {
		return "const"
	}
	return "let"
}

type (
	// LetStmt declares a name in the enclosing block.
	LetStmt struct {
		Pos  Pos
		Kind DeclKind
		Name string
		Init Expr
	}

	// FuncDecl is a hoisted function declaration.
	FuncDecl struct {
		Pos    Pos
		Name   string
		Params []string
		Body   *Block
	}

	ExprStmt struct {
		Pos Pos
		X   Expr
	}

	ReturnStmt struct {
		Pos   Pos
		Value Expr // nil for a bare return
	}

	IfStmt struct {
		Pos  Pos
		Test Expr
		Then *Block
		Else Stmt // nil, *Block or *IfStmt
	}

	WhileStmt struct {
		Pos  Pos
		Test Expr
		Body *Block
	}

	// ForStmt is a counting loop. Any of Init, Test and Update may be nil.
	ForStmt struct {
		Pos    Pos
		Init   Stmt
		Test   Expr
		Update Expr
		Body   *Block
	}

	BreakStmt struct {
		Pos Pos
	}

	ContinueStmt struct {
		Pos Pos
	}

	Block struct {
		Pos  Pos
		Body []Stmt
	}
)

type (
	NumberLit struct {
		Pos   Pos
		Value float64
	}

	StringLit struct {
		Pos   Pos
		Value string
	}

	BoolLit struct {
		Pos   Pos
		Value bool
	}

	NullLit struct {
		Pos Pos
	}

	UndefinedLit struct {
		Pos Pos
	}

	Ident struct {
		Pos  Pos
		Name string
	}

	ArrayLit struct {
		Pos   Pos
		Elems []Expr
	}

	UnaryExpr struct {
		Pos Pos
		Op  string
		X   Expr
	}

	BinaryExpr struct {
		Pos   Pos
		Op    string
		Left  Expr
		Right Expr
	}

	// LogicalExpr is a short-circuiting && or ||.
	LogicalExpr struct {
		Pos   Pos
		Op    string
		Left  Expr
		Right Expr
	}

	CondExpr struct {
		Pos  Pos
		Test Expr
		Then Expr
		Else Expr
	}

	CallExpr struct {
		Pos    Pos
		Callee Expr
		Args   []Expr
	}

	IndexExpr struct {
		Pos   Pos
		X     Expr
		Index Expr
	}

	// MemberExpr reads a named member of a record such as an injected table.
	MemberExpr struct {
		Pos  Pos
		X    Expr
		Name string
	}

	// AssignExpr assigns to a name.
	AssignExpr struct {
		Pos   Pos
		Name  string
		Value Expr
	}

	// IndexAssignExpr assigns to an array element.
	IndexAssignExpr struct {
		Pos   Pos
		X     Expr
		Index Expr
		Value Expr
	}

	// ArrowFunc is a lambda. Exactly one of Expr and Body is set.
	ArrowFunc struct {
		Pos    Pos
		Params []string
		Expr   Expr
		Body   *Block
	}
)

func (s *LetStmt) Position() Pos      { return s.Pos }
func (s *FuncDecl) Position() Pos     { return s.Pos }
func (s *ExprStmt) Position() Pos     { return s.Pos }
func (s *ReturnStmt) Position() Pos   { return s.Pos }
func (s *IfStmt) Position() Pos       { return s.Pos }
func (s *WhileStmt) Position() Pos    { return s.Pos }
func (s *ForStmt) Position() Pos      { return s.Pos }
func (s *BreakStmt) Position() Pos    { return s.Pos }
func (s *ContinueStmt) Position() Pos { return s.Pos }
func (s *Block) Position() Pos        { return s.Pos }

func (*LetStmt) stmtNode()      {}
func (*FuncDecl) stmtNode()     {}
func (*ExprStmt) stmtNode()     {}
func (*ReturnStmt) stmtNode()   {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*ForStmt) stmtNode()      {}
func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*Block) stmtNode()        {}

func (e *NumberLit) Position() Pos       { return e.Pos }
func (e *StringLit) Position() Pos       { return e.Pos }
func (e *BoolLit) Position() Pos         { return e.Pos }
func (e *NullLit) Position() Pos         { return e.Pos }
func (e *UndefinedLit) Position() Pos    { return e.Pos }
func (e *Ident) Position() Pos           { return e.Pos }
func (e *ArrayLit) Position() Pos        { return e.Pos }
func (e *UnaryExpr) Position() Pos       { return e.Pos }
func (e *BinaryExpr) Position() Pos      { return e.Pos }
func (e *LogicalExpr) Position() Pos     { return e.Pos }
func (e *CondExpr) Position() Pos        { return e.Pos }
func (e *CallExpr) Position() Pos        { return e.Pos }
func (e *IndexExpr) Position() Pos       { return e.Pos }
func (e *MemberExpr) Position() Pos      { return e.Pos }
func (e *AssignExpr) Position() Pos      { return e.Pos }
func (e *IndexAssignExpr) Position() Pos { return e.Pos }
func (e *ArrowFunc) Position() Pos       { return e.Pos }

func (*NumberLit) exprNode()       {}
func (*StringLit) exprNode()       {}
func (*BoolLit) exprNode()         {}
func (*NullLit) exprNode()         {}
func (*UndefinedLit) exprNode()    {}
func (*Ident) exprNode()           {}
func (*ArrayLit) exprNode()        {}
func (*UnaryExpr) exprNode()       {}
func (*BinaryExpr) exprNode()      {}
func (*LogicalExpr) exprNode()     {}
func (*CondExpr) exprNode()        {}
func (*CallExpr) exprNode()        {}
func (*IndexExpr) exprNode()       {}
func (*MemberExpr) exprNode()      {}
func (*AssignExpr) exprNode()      {}
func (*IndexAssignExpr) exprNode() {}
func (*ArrowFunc) exprNode()       {}
