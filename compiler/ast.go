package compiler

import (
	"bytes"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Monkey
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Position
	String() string
	node() // marker method
}

// Statement is the interface for statement nodes.
type Statement interface {
	Node
	stmt() // marker method
}

// Expression is the interface for expression nodes.
type Expression interface {
	Node
	expr() // marker method
}

// ---------------------------------------------------------------------------
// Program and statements
// ---------------------------------------------------------------------------

// Program is the root node: a sequence of statements.
type Program struct {
	Statements []Statement
}

func (p *Program) Pos() Position {
	if len(p.Statements) > 0 {
		return p.Statements[0].Pos()
	}
	return Position{Line: 1, Column: 1}
}
func (p *Program) node() {}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// LetStatement binds Name to Value.
type LetStatement struct {
	Token Token // the 'let' token
	Name  *Identifier
	Value Expression
}

func (n *LetStatement) Pos() Position { return n.Token.Pos }
func (n *LetStatement) node()         {}
func (n *LetStatement) stmt()         {}

func (n *LetStatement) String() string {
	var out bytes.Buffer
	out.WriteString("let ")
	out.WriteString(n.Name.String())
	out.WriteString(" = ")
	if n.Value != nil {
		out.WriteString(n.Value.String())
	}
	out.WriteString(";")
	return out.String()
}

// ReturnStatement returns a value from the enclosing function (or halts the
// program at top level).
type ReturnStatement struct {
	Token       Token // the 'return' token
	ReturnValue Expression
}

func (n *ReturnStatement) Pos() Position { return n.Token.Pos }
func (n *ReturnStatement) node()         {}
func (n *ReturnStatement) stmt()         {}

func (n *ReturnStatement) String() string {
	var out bytes.Buffer
	out.WriteString("return ")
	if n.ReturnValue != nil {
		out.WriteString(n.ReturnValue.String())
	}
	out.WriteString(";")
	return out.String()
}

// ExpressionStatement is an expression evaluated for its value.
type ExpressionStatement struct {
	Token      Token // first token of the expression
	Expression Expression
}

func (n *ExpressionStatement) Pos() Position { return n.Token.Pos }
func (n *ExpressionStatement) node()         {}
func (n *ExpressionStatement) stmt()         {}

func (n *ExpressionStatement) String() string {
	if n.Expression != nil {
		return n.Expression.String()
	}
	return ""
}

// BlockStatement is a braced statement list.
type BlockStatement struct {
	Token      Token // the '{' token
	Statements []Statement
}

func (n *BlockStatement) Pos() Position { return n.Token.Pos }
func (n *BlockStatement) node()         {}
func (n *BlockStatement) stmt()         {}

func (n *BlockStatement) String() string {
	var out bytes.Buffer
	for _, s := range n.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Identifier is a name reference.
type Identifier struct {
	Token Token
	Value string
}

func (n *Identifier) Pos() Position  { return n.Token.Pos }
func (n *Identifier) node()          {}
func (n *Identifier) expr()          {}
func (n *Identifier) String() string { return n.Value }

// IntegerLiteral is a 64-bit integer constant.
type IntegerLiteral struct {
	Token Token
	Value int64
}

func (n *IntegerLiteral) Pos() Position  { return n.Token.Pos }
func (n *IntegerLiteral) node()          {}
func (n *IntegerLiteral) expr()          {}
func (n *IntegerLiteral) String() string { return n.Token.Literal }

// StringLiteral is a string constant.
type StringLiteral struct {
	Token Token
	Value string
}

func (n *StringLiteral) Pos() Position  { return n.Token.Pos }
func (n *StringLiteral) node()          {}
func (n *StringLiteral) expr()          {}
func (n *StringLiteral) String() string { return n.Token.Literal }

// Boolean is true or false.
type Boolean struct {
	Token Token
	Value bool
}

func (n *Boolean) Pos() Position  { return n.Token.Pos }
func (n *Boolean) node()          {}
func (n *Boolean) expr()          {}
func (n *Boolean) String() string { return n.Token.Literal }

// ArrayLiteral is [e1, e2, ...].
type ArrayLiteral struct {
	Token    Token // the '[' token
	Elements []Expression
}

func (n *ArrayLiteral) Pos() Position { return n.Token.Pos }
func (n *ArrayLiteral) node()         {}
func (n *ArrayLiteral) expr()         {}

func (n *ArrayLiteral) String() string {
	return "[" + joinExpressions(n.Elements) + "]"
}

// HashLiteral is {k1: v1, ...}. Pairs keeps source order.
type HashLiteral struct {
	Token Token // the '{' token
	Pairs []HashPair
}

// HashPair is one key/value entry of a HashLiteral.
type HashPair struct {
	Key   Expression
	Value Expression
}

func (n *HashLiteral) Pos() Position { return n.Token.Pos }
func (n *HashLiteral) node()         {}
func (n *HashLiteral) expr()         {}

func (n *HashLiteral) String() string {
	pairs := make([]string, 0, len(n.Pairs))
	for _, p := range n.Pairs {
		pairs = append(pairs, p.Key.String()+":"+p.Value.String())
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// PrefixExpression is a unary operator application: !x, -x.
type PrefixExpression struct {
	Token    Token // the operator token
	Operator string
	Right    Expression
}

func (n *PrefixExpression) Pos() Position { return n.Token.Pos }
func (n *PrefixExpression) node()         {}
func (n *PrefixExpression) expr()         {}

func (n *PrefixExpression) String() string {
	return "(" + n.Operator + n.Right.String() + ")"
}

// InfixExpression is a binary operator application.
type InfixExpression struct {
	Token    Token // the operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (n *InfixExpression) Pos() Position { return n.Token.Pos }
func (n *InfixExpression) node()         {}
func (n *InfixExpression) expr()         {}

func (n *InfixExpression) String() string {
	return "(" + n.Left.String() + " " + n.Operator + " " + n.Right.String() + ")"
}

// IfExpression is if (cond) { ... } else { ... }. Alternative may be nil.
type IfExpression struct {
	Token       Token // the 'if' token
	Condition   Expression
	Consequence *BlockStatement
	Alternative *BlockStatement
}

func (n *IfExpression) Pos() Position { return n.Token.Pos }
func (n *IfExpression) node()         {}
func (n *IfExpression) expr()         {}

func (n *IfExpression) String() string {
	var out bytes.Buffer
	out.WriteString("if")
	out.WriteString(n.Condition.String())
	out.WriteString(" ")
	out.WriteString(n.Consequence.String())
	if n.Alternative != nil {
		out.WriteString("else ")
		out.WriteString(n.Alternative.String())
	}
	return out.String()
}

// FunctionLiteral is fn(params) { body }. Name is set when the literal is
// the value of a let statement.
type FunctionLiteral struct {
	Token      Token // the 'fn' token
	Parameters []*Identifier
	Body       *BlockStatement
	Name       string
}

func (n *FunctionLiteral) Pos() Position { return n.Token.Pos }
func (n *FunctionLiteral) node()         {}
func (n *FunctionLiteral) expr()         {}

func (n *FunctionLiteral) String() string {
	params := make([]string, 0, len(n.Parameters))
	for _, p := range n.Parameters {
		params = append(params, p.String())
	}
	var out bytes.Buffer
	out.WriteString(n.Token.Literal)
	if n.Name != "" {
		out.WriteString("<" + n.Name + ">")
	}
	out.WriteString("(")
	out.WriteString(strings.Join(params, ", "))
	out.WriteString(") ")
	out.WriteString(n.Body.String())
	return out.String()
}

// CallExpression is function(args).
type CallExpression struct {
	Token     Token // the '(' token
	Function  Expression
	Arguments []Expression
}

func (n *CallExpression) Pos() Position { return n.Token.Pos }
func (n *CallExpression) node()         {}
func (n *CallExpression) expr()         {}

func (n *CallExpression) String() string {
	return n.Function.String() + "(" + joinExpressions(n.Arguments) + ")"
}

// IndexExpression is left[index].
type IndexExpression struct {
	Token Token // the '[' token
	Left  Expression
	Index Expression
}

func (n *IndexExpression) Pos() Position { return n.Token.Pos }
func (n *IndexExpression) node()         {}
func (n *IndexExpression) expr()         {}

func (n *IndexExpression) String() string {
	return "(" + n.Left.String() + "[" + n.Index.String() + "])"
}

func joinExpressions(exprs []Expression) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, ", ")
}
