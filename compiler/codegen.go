package compiler

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/monkey/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// ErrLimitExceeded reports a program that does not fit the instruction
// encoding, such as too many constants or a jump target past 65535.
var ErrLimitExceeded = errors.New("limit exceeded")

// EmittedInstruction records an opcode and where it was written.
type EmittedInstruction struct {
	Opcode   vm.Opcode
	Position int
}

// CompilationScope holds the instructions of one function body being
// compiled.
type CompilationScope struct {
	instructions        vm.Instructions
	lastInstruction     EmittedInstruction
	previousInstruction EmittedInstruction
}

// Compiler compiles AST nodes to bytecode. A Compiler is not safe for
// concurrent use.
type Compiler struct {
	constants   []vm.Object
	symbolTable *SymbolTable

	scopes     []CompilationScope
	scopeIndex int
}

// NewSymbolTableWithBuiltins returns a global symbol table with every
// builtin defined at its table index.
func NewSymbolTableWithBuiltins() *SymbolTable {
	st := NewSymbolTable()
	for i, def := range vm.Builtins {
		st.DefineBuiltin(i, def.Name)
	}
	return st
}

// New creates a compiler with a fresh global scope.
func New() *Compiler {
	return NewWithState(NewSymbolTableWithBuiltins(), nil)
}

// NewWithState creates a compiler that continues from an earlier
// compilation's symbol table and constant pool. The REPL and server
// sessions use it so later inputs see earlier definitions.
func NewWithState(st *SymbolTable, constants []vm.Object) *Compiler {
	return &Compiler{
		constants:   constants,
		symbolTable: st,
		scopes:      []CompilationScope{{}},
	}
}

// Compile parses input and compiles it with a fresh compiler.
func Compile(input string) (*vm.Bytecode, error) {
	program, err := Parse(input)
	if err != nil {
		return nil, err
	}
	c := New()
	if err := c.Compile(program); err != nil {
		return nil, err
	}
	return c.Bytecode(), nil
}

// Bytecode returns the compiled main program and the constant pool.
func (c *Compiler) Bytecode() *vm.Bytecode {
	return &vm.Bytecode{
		Instructions: c.currentInstructions(),
		Constants:    c.constants,
	}
}

// SymbolTable returns the current symbol table.
func (c *Compiler) SymbolTable() *SymbolTable {
	return c.symbolTable
}

// Constants returns the constant pool.
func (c *Compiler) Constants() []vm.Object {
	return c.constants
}

func (c *Compiler) errorf(node Node, kind error, format string, args ...interface{}) error {
	return &Error{Pos: node.Pos(), Msg: fmt.Sprintf(format, args...), Err: kind}
}

// Compile compiles node into the current scope. It stops at the first error.
func (c *Compiler) Compile(node Node) error {
	switch node := node.(type) {
	case *Program:
		for _, s := range node.Statements {
			if err := c.Compile(s); err != nil {
				return err
			}
		}

	case *ExpressionStatement:
		if err := c.Compile(node.Expression); err != nil {
			return err
		}
		c.emit(vm.OpPop)

	case *BlockStatement:
		if node == nil {
			return &Error{Msg: "nil block", Err: ErrUnsupportedNode}
		}
		for _, s := range node.Statements {
			if err := c.Compile(s); err != nil {
				return err
			}
		}

	case *LetStatement:
		// The value sees the previous binding of the name, if any.
		if err := c.Compile(node.Value); err != nil {
			return err
		}
		symbol := c.symbolTable.Define(node.Name.Value)
		if err := c.checkSlot(node, symbol); err != nil {
			return err
		}
		if symbol.Scope == GlobalScope {
			c.emit(vm.OpSetGlobal, symbol.Index)
		} else {
			c.emit(vm.OpSetLocal, symbol.Index)
		}

	case *ReturnStatement:
		if err := c.Compile(node.ReturnValue); err != nil {
			return err
		}
		c.emit(vm.OpReturnValue)

	case *Identifier:
		symbol, ok := c.symbolTable.Resolve(node.Value)
		if !ok {
			return c.errorf(node, ErrUndefinedVariable, "undefined variable %s", node.Value)
		}
		c.loadSymbol(symbol)

	case *IntegerLiteral:
		return c.emitConstant(node, vm.Integer(node.Value))

	case *StringLiteral:
		return c.emitConstant(node, vm.String(node.Value))

	case *Boolean:
		if node.Value {
			c.emit(vm.OpTrue)
		} else {
			c.emit(vm.OpFalse)
		}

	case *PrefixExpression:
		if err := c.Compile(node.Right); err != nil {
			return err
		}
		switch node.Operator {
		case "!":
			c.emit(vm.OpBang)
		case "-":
			c.emit(vm.OpMinus)
		default:
			return c.errorf(node, ErrUnknownOperator, "unknown operator %s", node.Operator)
		}

	case *InfixExpression:
		return c.compileInfix(node)

	case *IfExpression:
		return c.compileIf(node)

	case *ArrayLiteral:
		for _, el := range node.Elements {
			if err := c.Compile(el); err != nil {
				return err
			}
		}
		c.emit(vm.OpArray, len(node.Elements))

	case *HashLiteral:
		pairs := make([]HashPair, len(node.Pairs))
		copy(pairs, node.Pairs)
		sort.SliceStable(pairs, func(i, j int) bool {
			return pairs[i].Key.String() < pairs[j].Key.String()
		})
		for _, p := range pairs {
			if err := c.Compile(p.Key); err != nil {
				return err
			}
			if err := c.Compile(p.Value); err != nil {
				return err
			}
		}
		c.emit(vm.OpHash, len(pairs)*2)

	case *IndexExpression:
		if err := c.Compile(node.Left); err != nil {
			return err
		}
		if err := c.Compile(node.Index); err != nil {
			return err
		}
		c.emit(vm.OpIndex)

	case *FunctionLiteral:
		return c.compileFunction(node)

	case *CallExpression:
		if err := c.Compile(node.Function); err != nil {
			return err
		}
		for _, arg := range node.Arguments {
			if err := c.Compile(arg); err != nil {
				return err
			}
		}
		if len(node.Arguments) > math.MaxUint8 {
			return c.errorf(node, ErrLimitExceeded, "too many arguments (%d)", len(node.Arguments))
		}
		c.emit(vm.OpCall, len(node.Arguments))

	case nil:
		return &Error{Msg: "nil node", Err: ErrUnsupportedNode}

	default:
		return c.errorf(node, ErrUnsupportedNode, "cannot compile %T", node)
	}

	return nil
}

func (c *Compiler) compileInfix(node *InfixExpression) error {
	if node.Operator == "<" {
		if err := c.Compile(node.Right); err != nil {
			return err
		}
		if err := c.Compile(node.Left); err != nil {
			return err
		}
		c.emit(vm.OpGreaterThan)
		return nil
	}

	if err := c.Compile(node.Left); err != nil {
		return err
	}
	if err := c.Compile(node.Right); err != nil {
		return err
	}

	switch node.Operator {
	case "+":
		c.emit(vm.OpAdd)
	case "-":
		c.emit(vm.OpSub)
	case "*":
		c.emit(vm.OpMul)
	case "/":
		c.emit(vm.OpDiv)
	case ">":
		c.emit(vm.OpGreaterThan)
	case "==":
		c.emit(vm.OpEqual)
	case "!=":
		c.emit(vm.OpNotEqual)
	default:
		return c.errorf(node, ErrUnknownOperator, "unknown operator %s", node.Operator)
	}
	return nil
}

func (c *Compiler) compileIf(node *IfExpression) error {
	if err := c.Compile(node.Condition); err != nil {
		return err
	}

	// Operand is patched once the consequence is compiled.
	jumpNotTruthyPos := c.emit(vm.OpJumpNotTruthy, 9999)

	if err := c.compileBranch(node.Consequence); err != nil {
		return err
	}

	jumpPos := c.emit(vm.OpJump, 9999)
	if err := c.patchJump(node, jumpNotTruthyPos); err != nil {
		return err
	}

	if node.Alternative == nil {
		c.emit(vm.OpNull)
	} else if err := c.compileBranch(node.Alternative); err != nil {
		return err
	}

	return c.patchJump(node, jumpPos)
}

// patchJump points the jump at pos to the end of the current instructions.
func (c *Compiler) patchJump(node Node, pos int) error {
	target := len(c.currentInstructions())
	if target > math.MaxUint16 {
		return c.errorf(node, ErrLimitExceeded, "jump target %d out of range", target)
	}
	c.changeOperand(pos, target)
	return nil
}

// compileBranch compiles an if branch so it leaves exactly one value.
func (c *Compiler) compileBranch(block *BlockStatement) error {
	if err := c.Compile(block); err != nil {
		return err
	}
	if c.lastInstructionIs(vm.OpPop) {
		c.removeLastPop()
	} else {
		c.emit(vm.OpNull)
	}
	return nil
}

func (c *Compiler) compileFunction(node *FunctionLiteral) error {
	c.enterScope()

	if node.Name != "" {
		c.symbolTable.DefineFunctionName(node.Name)
	}
	for _, p := range node.Parameters {
		c.symbolTable.Define(p.Value)
	}

	if err := c.Compile(node.Body); err != nil {
		c.leaveScope()
		return err
	}

	if c.lastInstructionIs(vm.OpPop) {
		c.replaceLastPopWithReturn()
	}
	if !c.lastInstructionIs(vm.OpReturnValue) {
		c.emit(vm.OpReturn)
	}

	freeSymbols := c.symbolTable.FreeSymbols
	numLocals := c.symbolTable.NumDefinitions()
	instructions := c.leaveScope()

	if numLocals > math.MaxUint8+1 {
		return c.errorf(node, ErrLimitExceeded, "too many locals (%d)", numLocals)
	}
	if len(freeSymbols) > math.MaxUint8 {
		return c.errorf(node, ErrLimitExceeded, "too many free variables (%d)", len(freeSymbols))
	}

	for _, s := range freeSymbols {
		c.loadSymbol(s)
	}

	fn := &vm.CompiledFunction{
		Instructions:  instructions,
		NumLocals:     numLocals,
		NumParameters: len(node.Parameters),
		Name:          node.Name,
	}
	idx, err := c.addConstant(node, fn)
	if err != nil {
		return err
	}
	c.emit(vm.OpClosure, idx, len(freeSymbols))
	return nil
}

func (c *Compiler) checkSlot(node Node, s Symbol) error {
	switch {
	case s.Scope == GlobalScope && s.Index > math.MaxUint16:
		return c.errorf(node, ErrLimitExceeded, "too many globals (%d)", s.Index+1)
	case s.Scope == LocalScope && s.Index > math.MaxUint8:
		return c.errorf(node, ErrLimitExceeded, "too many locals (%d)", s.Index+1)
	}
	return nil
}

func (c *Compiler) loadSymbol(s Symbol) {
	switch s.Scope {
	case GlobalScope:
		c.emit(vm.OpGetGlobal, s.Index)
	case LocalScope:
		c.emit(vm.OpGetLocal, s.Index)
	case BuiltinScope:
		c.emit(vm.OpGetBuiltin, s.Index)
	case FreeScope:
		c.emit(vm.OpGetFree, s.Index)
	case FunctionScope:
		c.emit(vm.OpCurrentClosure)
	}
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) addConstant(node Node, obj vm.Object) (int, error) {
	if len(c.constants) > math.MaxUint16 {
		return 0, c.errorf(node, ErrLimitExceeded, "too many constants (%d)", len(c.constants)+1)
	}
	c.constants = append(c.constants, obj)
	return len(c.constants) - 1, nil
}

func (c *Compiler) emitConstant(node Node, obj vm.Object) error {
	idx, err := c.addConstant(node, obj)
	if err != nil {
		return err
	}
	c.emit(vm.OpConstant, idx)
	return nil
}

// emit appends an instruction and returns its position.
func (c *Compiler) emit(op vm.Opcode, operands ...int) int {
	ins := vm.Make(op, operands...)
	pos := c.addInstruction(ins)
	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []byte) int {
	pos := len(c.currentInstructions())
	c.scopes[c.scopeIndex].instructions = append(c.currentInstructions(), ins...)
	return pos
}

func (c *Compiler) setLastInstruction(op vm.Opcode, pos int) {
	scope := &c.scopes[c.scopeIndex]
	scope.previousInstruction = scope.lastInstruction
	scope.lastInstruction = EmittedInstruction{Opcode: op, Position: pos}
}

func (c *Compiler) currentInstructions() vm.Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) lastInstructionIs(op vm.Opcode) bool {
	if len(c.currentInstructions()) == 0 {
		return false
	}
	return c.scopes[c.scopeIndex].lastInstruction.Opcode == op
}

func (c *Compiler) removeLastPop() {
	scope := &c.scopes[c.scopeIndex]
	scope.instructions = scope.instructions[:scope.lastInstruction.Position]
	scope.lastInstruction = scope.previousInstruction
}

func (c *Compiler) replaceInstruction(pos int, newInstruction []byte) {
	ins := c.currentInstructions()
	for i := 0; i < len(newInstruction); i++ {
		ins[pos+i] = newInstruction[i]
	}
}

// changeOperand rewrites the operand of the instruction at opPos in place.
func (c *Compiler) changeOperand(opPos int, operand int) {
	op := vm.Opcode(c.currentInstructions()[opPos])
	c.replaceInstruction(opPos, vm.Make(op, operand))
}

func (c *Compiler) replaceLastPopWithReturn() {
	scope := &c.scopes[c.scopeIndex]
	pos := scope.lastInstruction.Position
	c.replaceInstruction(pos, vm.Make(vm.OpReturnValue))
	scope.lastInstruction.Opcode = vm.OpReturnValue
}

func (c *Compiler) enterScope() {
	c.scopes = append(c.scopes, CompilationScope{})
	c.scopeIndex++
	c.symbolTable = NewEnclosedSymbolTable(c.symbolTable)
}

func (c *Compiler) leaveScope() vm.Instructions {
	ins := c.currentInstructions()
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--
	c.symbolTable = c.symbolTable.Outer
	return ins
}
