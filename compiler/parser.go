package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Pratt parser for Monkey
// ---------------------------------------------------------------------------

// Operator precedences, lowest first.
const (
	_ int = iota
	precLowest
	precEquals      // ==
	precLessGreater // > or <
	precSum         // +
	precProduct     // *
	precPrefix      // -X or !X
	precCall        // myFunction(X)
	precIndex       // array[index]
)

var precedences = map[TokenType]int{
	TokenEq:       precEquals,
	TokenNotEq:    precEquals,
	TokenLT:       precLessGreater,
	TokenGT:       precLessGreater,
	TokenPlus:     precSum,
	TokenMinus:    precSum,
	TokenSlash:    precProduct,
	TokenAsterisk: precProduct,
	TokenLParen:   precCall,
	TokenLBracket: precIndex,
}

type (
	prefixParseFn func() Expression
	infixParseFn  func(Expression) Expression
)

// Parser parses Monkey source code into an AST. The current token is the
// last token consumed by the construct being parsed.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    ParseErrors

	prefixFns map[TokenType]prefixParseFn
	infixFns  map[TokenType]infixParseFn
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}

	p.prefixFns = map[TokenType]prefixParseFn{
		TokenIdent:    p.parseIdentifier,
		TokenInt:      p.parseIntegerLiteral,
		TokenString:   p.parseStringLiteral,
		TokenTrue:     p.parseBoolean,
		TokenFalse:    p.parseBoolean,
		TokenBang:     p.parsePrefixExpression,
		TokenMinus:    p.parsePrefixExpression,
		TokenLParen:   p.parseGroupedExpression,
		TokenIf:       p.parseIfExpression,
		TokenFunction: p.parseFunctionLiteral,
		TokenLBracket: p.parseArrayLiteral,
		TokenLBrace:   p.parseHashLiteral,
	}
	p.infixFns = map[TokenType]infixParseFn{
		TokenPlus:     p.parseInfixExpression,
		TokenMinus:    p.parseInfixExpression,
		TokenSlash:    p.parseInfixExpression,
		TokenAsterisk: p.parseInfixExpression,
		TokenEq:       p.parseInfixExpression,
		TokenNotEq:    p.parseInfixExpression,
		TokenLT:       p.parseInfixExpression,
		TokenGT:       p.parseInfixExpression,
		TokenLParen:   p.parseCallExpression,
		TokenLBracket: p.parseIndexExpression,
	}

	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses input into a Program. A non-nil error is ParseErrors.
func Parse(input string) (*Program, error) {
	p := NewParser(input)
	program := p.ParseProgram()
	if len(p.errors) > 0 {
		return nil, p.errors
	}
	return program, nil
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the peek token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek advances if the peek token matches, otherwise records an error.
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorAt(p.peekToken.Pos, "expected %s, got %s", t, p.peekToken)
	return false
}

// errorAt records a parse error.
func (p *Parser) errorAt(pos Position, format string, args ...interface{}) {
	p.errors = append(p.errors, ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() ParseErrors {
	return p.errors
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return precLowest
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return precLowest
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// ParseProgram parses statements until EOF.
func (p *Parser) ParseProgram() *Program {
	program := &Program{}
	for !p.curTokenIs(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			program.Statements = append(program.Statements, stmt)
		}
		p.nextToken()
	}
	return program
}

func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case TokenLet:
		return p.parseLetStatement()
	case TokenReturn:
		return p.parseReturnStatement()
	case TokenSemicolon:
		return nil
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseLetStatement() Statement {
	stmt := &LetStatement{Token: p.curToken}

	if !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.Name = &Identifier{Token: p.curToken, Value: p.curToken.Literal}

	if !p.expectPeek(TokenAssign) {
		return nil
	}
	p.nextToken()

	stmt.Value = p.parseExpression(precLowest)
	if stmt.Value == nil {
		return nil
	}
	if fn, ok := stmt.Value.(*FunctionLiteral); ok {
		fn.Name = stmt.Name.Value
	}

	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseReturnStatement() Statement {
	stmt := &ReturnStatement{Token: p.curToken}
	p.nextToken()

	stmt.ReturnValue = p.parseExpression(precLowest)
	if stmt.ReturnValue == nil {
		return nil
	}

	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseExpressionStatement() Statement {
	stmt := &ExpressionStatement{Token: p.curToken}
	stmt.Expression = p.parseExpression(precLowest)
	if stmt.Expression == nil {
		return nil
	}
	if p.peekTokenIs(TokenSemicolon) {
		p.nextToken()
	}
	return stmt
}

func (p *Parser) parseBlockStatement() *BlockStatement {
	block := &BlockStatement{Token: p.curToken}
	p.nextToken()

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		if stmt := p.parseStatement(); stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}
	if p.curTokenIs(TokenEOF) {
		p.errorAt(p.curToken.Pos, "expected }, got EOF")
	}
	return block
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(precedence int) Expression {
	prefix := p.prefixFns[p.curToken.Type]
	if prefix == nil {
		if p.curTokenIs(TokenIllegal) {
			p.errorAt(p.curToken.Pos, "illegal token %q", p.curToken.Literal)
		} else {
			p.errorAt(p.curToken.Pos, "unexpected %s", p.curToken)
		}
		return nil
	}
	left := prefix()
	if left == nil {
		return nil
	}

	for !p.peekTokenIs(TokenSemicolon) && precedence < p.peekPrecedence() {
		infix := p.infixFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
		if left == nil {
			return nil
		}
	}
	return left
}

func (p *Parser) parseIdentifier() Expression {
	return &Identifier{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseIntegerLiteral() Expression {
	value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.errorAt(p.curToken.Pos, "could not parse %q as integer", p.curToken.Literal)
		return nil
	}
	return &IntegerLiteral{Token: p.curToken, Value: value}
}

func (p *Parser) parseStringLiteral() Expression {
	return &StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBoolean() Expression {
	return &Boolean{Token: p.curToken, Value: p.curTokenIs(TokenTrue)}
}

func (p *Parser) parsePrefixExpression() Expression {
	expr := &PrefixExpression{Token: p.curToken, Operator: p.curToken.Literal}
	p.nextToken()
	expr.Right = p.parseExpression(precPrefix)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseInfixExpression(left Expression) Expression {
	expr := &InfixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Left:     left,
	}
	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	if expr.Right == nil {
		return nil
	}
	return expr
}

func (p *Parser) parseGroupedExpression() Expression {
	p.nextToken()
	expr := p.parseExpression(precLowest)
	if expr == nil || !p.expectPeek(TokenRParen) {
		return nil
	}
	return expr
}

func (p *Parser) parseIfExpression() Expression {
	expr := &IfExpression{Token: p.curToken}

	if !p.expectPeek(TokenLParen) {
		return nil
	}
	p.nextToken()
	expr.Condition = p.parseExpression(precLowest)
	if expr.Condition == nil {
		return nil
	}
	if !p.expectPeek(TokenRParen) || !p.expectPeek(TokenLBrace) {
		return nil
	}
	expr.Consequence = p.parseBlockStatement()

	if p.peekTokenIs(TokenElse) {
		p.nextToken()
		if !p.expectPeek(TokenLBrace) {
			return nil
		}
		expr.Alternative = p.parseBlockStatement()
	}
	return expr
}

func (p *Parser) parseFunctionLiteral() Expression {
	fn := &FunctionLiteral{Token: p.curToken}

	if !p.expectPeek(TokenLParen) {
		return nil
	}
	params, ok := p.parseFunctionParameters()
	if !ok {
		return nil
	}
	fn.Parameters = params

	if !p.expectPeek(TokenLBrace) {
		return nil
	}
	fn.Body = p.parseBlockStatement()
	return fn
}

func (p *Parser) parseFunctionParameters() ([]*Identifier, bool) {
	var params []*Identifier

	if p.peekTokenIs(TokenRParen) {
		p.nextToken()
		return params, true
	}

	if !p.expectPeek(TokenIdent) {
		return nil, false
	}
	params = append(params, &Identifier{Token: p.curToken, Value: p.curToken.Literal})

	for p.peekTokenIs(TokenComma) {
		p.nextToken()
		if !p.expectPeek(TokenIdent) {
			return nil, false
		}
		params = append(params, &Identifier{Token: p.curToken, Value: p.curToken.Literal})
	}

	if !p.expectPeek(TokenRParen) {
		return nil, false
	}
	return params, true
}

func (p *Parser) parseCallExpression(function Expression) Expression {
	expr := &CallExpression{Token: p.curToken, Function: function}
	args, ok := p.parseExpressionList(TokenRParen)
	if !ok {
		return nil
	}
	expr.Arguments = args
	return expr
}

func (p *Parser) parseArrayLiteral() Expression {
	array := &ArrayLiteral{Token: p.curToken}
	elements, ok := p.parseExpressionList(TokenRBracket)
	if !ok {
		return nil
	}
	array.Elements = elements
	return array
}

// parseExpressionList parses a comma separated list up to end.
func (p *Parser) parseExpressionList(end TokenType) ([]Expression, bool) {
	var list []Expression

	if p.peekTokenIs(end) {
		p.nextToken()
		return list, true
	}

	p.nextToken()
	expr := p.parseExpression(precLowest)
	if expr == nil {
		return nil, false
	}
	list = append(list, expr)

	for p.peekTokenIs(TokenComma) {
		p.nextToken()
		p.nextToken()
		expr := p.parseExpression(precLowest)
		if expr == nil {
			return nil, false
		}
		list = append(list, expr)
	}

	if !p.expectPeek(end) {
		return nil, false
	}
	return list, true
}

func (p *Parser) parseIndexExpression(left Expression) Expression {
	expr := &IndexExpression{Token: p.curToken, Left: left}
	p.nextToken()
	expr.Index = p.parseExpression(precLowest)
	if expr.Index == nil || !p.expectPeek(TokenRBracket) {
		return nil
	}
	return expr
}

func (p *Parser) parseHashLiteral() Expression {
	hash := &HashLiteral{Token: p.curToken}

	for !p.peekTokenIs(TokenRBrace) {
		p.nextToken()
		key := p.parseExpression(precLowest)
		if key == nil || !p.expectPeek(TokenColon) {
			return nil
		}
		p.nextToken()
		value := p.parseExpression(precLowest)
		if value == nil {
			return nil
		}
		hash.Pairs = append(hash.Pairs, HashPair{Key: key, Value: value})

		if !p.peekTokenIs(TokenRBrace) && !p.expectPeek(TokenComma) {
			return nil
		}
	}

	if !p.expectPeek(TokenRBrace) {
		return nil
	}
	return hash
}
