package vm

import (
	"fmt"
	"io"
	"os"
)

// Default limits.
const (
	StackSize   = 2048
	GlobalsSize = 65536
	MaxFrames   = 1024
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	stackSize   int
	globalsSize int
	maxFrames   int
	globals     []Object
	out         io.Writer
	trace       io.Writer
	profiler    *Profiler
}

// WithStackSize sets the operand stack capacity.
func WithStackSize(n int) Option {
	return func(c *vmConfig) { c.stackSize = n }
}

// WithGlobalsSize sets the size of a freshly allocated globals store.
// Ignored when WithGlobals is given.
func WithGlobalsSize(n int) Option {
	return func(c *vmConfig) { c.globalsSize = n }
}

// WithMaxFrames sets the maximum call depth.
func WithMaxFrames(n int) Option {
	return func(c *vmConfig) { c.maxFrames = n }
}

// WithGlobals makes the VM read and write an existing globals store, so
// state survives across runs (REPL sessions).
func WithGlobals(globals []Object) Option {
	return func(c *vmConfig) { c.globals = globals }
}

// WithOutput sets where builtins such as puts write. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *vmConfig) { c.out = w }
}

// WithTrace writes one line per dispatched instruction to w.
func WithTrace(w io.Writer) Option {
	return func(c *vmConfig) { c.trace = w }
}

// WithProfiler records instruction and call counts into p.
func WithProfiler(p *Profiler) Option {
	return func(c *vmConfig) { c.profiler = p }
}

// NewGlobals allocates a globals store of the default size.
func NewGlobals() []Object {
	return make([]Object, GlobalsSize)
}

// ---------------------------------------------------------------------------
// VM: The Monkey Virtual Machine
// ---------------------------------------------------------------------------

// VM executes one Bytecode unit.
type VM struct {
	constants []Object

	stack []Object
	sp    int // next free slot; the top of stack is stack[sp-1]

	globals []Object

	frames      []*Frame
	framesIndex int

	out      io.Writer
	trace    io.Writer
	profiler *Profiler

	// Current instruction, for error reporting.
	op Opcode
	ip int

	halted bool  // a top-level return ended the program
	err    error // fatal error from a previous run
}

// New creates a VM for the given bytecode.
func New(bytecode *Bytecode, opts ...Option) *VM {
	cfg := &vmConfig{
		stackSize:   StackSize,
		globalsSize: GlobalsSize,
		maxFrames:   MaxFrames,
		out:         os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	globals := cfg.globals
	if globals == nil {
		globals = make([]Object, cfg.globalsSize)
	}

	mainFn := &CompiledFunction{Instructions: bytecode.Instructions}
	mainFrame := NewFrame(&Closure{Fn: mainFn}, 0)

	frames := make([]*Frame, cfg.maxFrames)
	frames[0] = mainFrame

	return &VM{
		constants:   bytecode.Constants,
		stack:       make([]Object, cfg.stackSize),
		globals:     globals,
		frames:      frames,
		framesIndex: 1,
		out:         cfg.out,
		trace:       cfg.trace,
		profiler:    cfg.profiler,
	}
}

// Globals returns the globals store.
func (vm *VM) Globals() []Object {
	return vm.globals
}

// StackTop returns the value on top of the stack, or nil when empty.
func (vm *VM) StackTop() Object {
	if vm.sp == 0 {
		return nil
	}
	return vm.stack[vm.sp-1]
}

// LastPoppedStackElem returns the value most recently popped off the top of
// the stack. After a successful Run this is the program's result.
func (vm *VM) LastPoppedStackElem() Object {
	if vm.sp >= len(vm.stack) {
		return Nil
	}
	if obj := vm.stack[vm.sp]; obj != nil {
		return obj
	}
	return Nil
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) {
	vm.frames[vm.framesIndex] = f
	vm.framesIndex++
}

func (vm *VM) popFrame() *Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (vm *VM) push(o Object) error {
	if vm.sp >= len(vm.stack) {
		return vm.errorf(ErrStackOverflow, "capacity %d", len(vm.stack))
	}
	vm.stack[vm.sp] = o
	vm.sp++
	return nil
}

func (vm *VM) pop() (Object, error) {
	if vm.sp == 0 {
		return nil, vm.errorf(ErrStackUnderflow, "")
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) pop2() (left, right Object, err error) {
	if vm.sp < 2 {
		return nil, nil, vm.errorf(ErrStackUnderflow, "need 2 operands, have %d", vm.sp)
	}
	right = vm.stack[vm.sp-1]
	left = vm.stack[vm.sp-2]
	vm.sp -= 2
	return left, right, nil
}

func (vm *VM) errorf(kind error, format string, args ...interface{}) error {
	return &RuntimeError{
		Kind: kind,
		Op:   vm.op,
		IP:   vm.ip,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// Run executes the bytecode until the main instructions are exhausted or a
// fatal error occurs. A VM that failed cannot be run again.
func (vm *VM) Run() error {
	if vm.err != nil {
		return fmt.Errorf("%w: %v", ErrHalted, vm.err)
	}
	if err := vm.run(); err != nil {
		vm.err = err
		return err
	}
	return nil
}

func (vm *VM) run() error {
	for !vm.halted {
		frame := vm.currentFrame()
		ins := frame.Instructions()
		ip := frame.ip
		if ip >= len(ins) {
			if vm.framesIndex == 1 {
				return nil
			}
			// Compiled functions always end in a return.
			vm.op, vm.ip = OpReturn, ip
			return vm.errorf(ErrStackUnderflow, "function ran past its instructions")
		}

		op := Opcode(ins[ip])
		vm.op, vm.ip = op, ip

		def, ok := definitions[op]
		if !ok {
			return vm.errorf(ErrUnknownOpcode, "byte %d", ins[ip])
		}
		if ip+1+def.Width() > len(ins) {
			return vm.errorf(ErrUnknownOpcode, "truncated operands for %s", def.Name)
		}
		frame.ip = ip + 1 + def.Width()

		if vm.trace != nil {
			fmt.Fprintf(vm.trace, "[%04d] %-16s sp=%d\n", ip, def.Name, vm.sp)
		}
		if vm.profiler != nil {
			vm.profiler.RecordInstruction(op)
		}

		var err error
		switch op {
		case OpConstant:
			constIndex := int(ReadUint16(ins[ip+1:]))
			if constIndex >= len(vm.constants) {
				err = vm.errorf(ErrBadOperand, "constant %d of %d", constIndex, len(vm.constants))
				break
			}
			err = vm.push(vm.constants[constIndex])

		case OpTrue:
			err = vm.push(True)

		case OpFalse:
			err = vm.push(False)

		case OpNull:
			err = vm.push(Nil)

		case OpPop:
			_, err = vm.pop()

		case OpAdd, OpSub, OpMul, OpDiv:
			err = vm.executeBinaryOperation(op)

		case OpEqual, OpNotEqual, OpGreaterThan:
			err = vm.executeComparison(op)

		case OpBang:
			err = vm.executeBangOperator()

		case OpMinus:
			err = vm.executeMinusOperator()

		case OpJump:
			frame.ip = int(ReadUint16(ins[ip+1:]))

		case OpJumpNotTruthy:
			pos := int(ReadUint16(ins[ip+1:]))
			var condition Object
			if condition, err = vm.pop(); err == nil && !IsTruthy(condition) {
				frame.ip = pos
			}

		case OpSetGlobal:
			globalIndex := int(ReadUint16(ins[ip+1:]))
			if globalIndex >= len(vm.globals) {
				err = vm.errorf(ErrBadOperand, "global %d of %d", globalIndex, len(vm.globals))
				break
			}
			var value Object
			if value, err = vm.pop(); err == nil {
				vm.globals[globalIndex] = value
			}

		case OpGetGlobal:
			globalIndex := int(ReadUint16(ins[ip+1:]))
			if globalIndex >= len(vm.globals) {
				err = vm.errorf(ErrBadOperand, "global %d of %d", globalIndex, len(vm.globals))
				break
			}
			err = vm.push(orNull(vm.globals[globalIndex]))

		case OpSetLocal:
			slot := frame.basePointer + int(ReadUint8(ins[ip+1:]))
			if slot >= len(vm.stack) {
				err = vm.errorf(ErrBadOperand, "local slot %d", slot)
				break
			}
			var value Object
			if value, err = vm.pop(); err == nil {
				vm.stack[slot] = value
			}

		case OpGetLocal:
			slot := frame.basePointer + int(ReadUint8(ins[ip+1:]))
			if slot >= len(vm.stack) {
				err = vm.errorf(ErrBadOperand, "local slot %d", slot)
				break
			}
			err = vm.push(orNull(vm.stack[slot]))

		case OpGetBuiltin:
			builtinIndex := int(ReadUint8(ins[ip+1:]))
			if builtinIndex >= len(Builtins) {
				err = vm.errorf(ErrNotCallable, "no builtin at index %d", builtinIndex)
				break
			}
			err = vm.push(Builtins[builtinIndex].Builtin)

		case OpGetFree:
			freeIndex := int(ReadUint8(ins[ip+1:]))
			if freeIndex >= len(frame.cl.Free) {
				err = vm.errorf(ErrBadOperand, "free variable %d of %d", freeIndex, len(frame.cl.Free))
				break
			}
			err = vm.push(frame.cl.Free[freeIndex])

		case OpCurrentClosure:
			err = vm.push(frame.cl)

		case OpArray:
			numElements := int(ReadUint16(ins[ip+1:]))
			err = vm.buildArray(numElements)

		case OpHash:
			numElements := int(ReadUint16(ins[ip+1:]))
			err = vm.buildHash(numElements)

		case OpIndex:
			var left, index Object
			if left, index, err = vm.pop2(); err == nil {
				err = vm.executeIndexExpression(left, index)
			}

		case OpCall:
			numArgs := int(ReadUint8(ins[ip+1:]))
			err = vm.executeCall(numArgs)

		case OpReturnValue:
			var returnValue Object
			if returnValue, err = vm.pop(); err == nil {
				err = vm.returnFromFrame(returnValue)
			}

		case OpReturn:
			err = vm.returnFromFrame(Nil)

		case OpClosure:
			constIndex := int(ReadUint16(ins[ip+1:]))
			numFree := int(ReadUint8(ins[ip+3:]))
			err = vm.pushClosure(constIndex, numFree)

		default:
			err = vm.errorf(ErrUnknownOpcode, "no handler for %s", op)
		}

		if err != nil {
			return err
		}
	}
	return nil
}

func orNull(obj Object) Object {
	if obj == nil {
		return Nil
	}
	return obj
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (vm *VM) executeBinaryOperation(op Opcode) error {
	left, right, err := vm.pop2()
	if err != nil {
		return err
	}

	switch l := left.(type) {
	case Integer:
		if r, ok := right.(Integer); ok {
			return vm.executeBinaryIntegerOperation(op, l, r)
		}
	case String:
		if r, ok := right.(String); ok && op == OpAdd {
			return vm.push(l + r)
		}
	}
	return vm.errorf(ErrTypeMismatch, "unsupported types for binary operation: %s %s", left.Type(), right.Type())
}

func (vm *VM) executeBinaryIntegerOperation(op Opcode, left, right Integer) error {
	var result Integer
	switch op {
	case OpAdd:
		result = left + right
	case OpSub:
		result = left - right
	case OpMul:
		result = left * right
	case OpDiv:
		if right == 0 {
			return vm.errorf(ErrDivisionByZero, "%d / 0", left)
		}
		result = left / right
	default:
		return vm.errorf(ErrTypeMismatch, "unknown integer operator: %s", op)
	}
	return vm.push(result)
}

func (vm *VM) executeComparison(op Opcode) error {
	left, right, err := vm.pop2()
	if err != nil {
		return err
	}

	if l, ok := left.(Integer); ok {
		if r, ok := right.(Integer); ok {
			switch op {
			case OpEqual:
				return vm.push(NativeBool(l == r))
			case OpNotEqual:
				return vm.push(NativeBool(l != r))
			case OpGreaterThan:
				return vm.push(NativeBool(l > r))
			}
		}
	}

	switch op {
	case OpEqual:
		return vm.push(NativeBool(left == right))
	case OpNotEqual:
		return vm.push(NativeBool(left != right))
	}
	return vm.errorf(ErrTypeMismatch, "unknown operator: %s (%s %s)", op, left.Type(), right.Type())
}

func (vm *VM) executeBangOperator() error {
	operand, err := vm.pop()
	if err != nil {
		return err
	}
	return vm.push(NativeBool(!IsTruthy(operand)))
}

func (vm *VM) executeMinusOperator() error {
	operand, err := vm.pop()
	if err != nil {
		return err
	}
	i, ok := operand.(Integer)
	if !ok {
		return vm.errorf(ErrTypeMismatch, "unsupported type for negation: %s", operand.Type())
	}
	return vm.push(-i)
}

// ---------------------------------------------------------------------------
// Composite values
// ---------------------------------------------------------------------------

func (vm *VM) buildArray(numElements int) error {
	if numElements > vm.sp {
		return vm.errorf(ErrStackUnderflow, "array of %d elements", numElements)
	}
	elements := make([]Object, numElements)
	copy(elements, vm.stack[vm.sp-numElements:vm.sp])
	vm.sp -= numElements
	return vm.push(&Array{Elements: elements})
}

func (vm *VM) buildHash(numElements int) error {
	if numElements > vm.sp {
		return vm.errorf(ErrStackUnderflow, "hash of %d elements", numElements)
	}
	startIndex := vm.sp - numElements
	pairs := make(map[HashKey]HashPair, numElements/2)
	for i := startIndex; i < vm.sp; i += 2 {
		key := vm.stack[i]
		value := vm.stack[i+1]

		hashKey, ok := key.(Hashable)
		if !ok {
			return vm.errorf(ErrUnhashable, "%s", key.Type())
		}
		pairs[hashKey.HashKey()] = HashPair{Key: key, Value: value}
	}
	vm.sp = startIndex
	return vm.push(&Hash{Pairs: pairs})
}

func (vm *VM) executeIndexExpression(left, index Object) error {
	switch l := left.(type) {
	case *Array:
		i, ok := index.(Integer)
		if !ok {
			return vm.errorf(ErrTypeMismatch, "array index must be INTEGER, got %s", index.Type())
		}
		if i < 0 || int64(i) >= int64(len(l.Elements)) {
			return vm.push(Nil)
		}
		return vm.push(l.Elements[i])

	case *Hash:
		key, ok := index.(Hashable)
		if !ok {
			return vm.errorf(ErrUnhashable, "%s", index.Type())
		}
		pair, ok := l.Pairs[key.HashKey()]
		if !ok {
			return vm.push(Nil)
		}
		return vm.push(pair.Value)

	default:
		return vm.errorf(ErrNotIndexable, "%s", left.Type())
	}
}

// ---------------------------------------------------------------------------
// Calls and closures
// ---------------------------------------------------------------------------

func (vm *VM) executeCall(numArgs int) error {
	if numArgs+1 > vm.sp {
		return vm.errorf(ErrStackUnderflow, "call with %d arguments", numArgs)
	}
	switch callee := vm.stack[vm.sp-1-numArgs].(type) {
	case *Closure:
		return vm.callClosure(callee, numArgs)
	case *Builtin:
		return vm.callBuiltin(callee, numArgs)
	default:
		return vm.errorf(ErrNotCallable, "%s", typeName(callee))
	}
}

func typeName(obj Object) ObjectType {
	if obj == nil {
		return NullObj
	}
	return obj.Type()
}

func (vm *VM) callClosure(cl *Closure, numArgs int) error {
	if numArgs != cl.Fn.NumParameters {
		return vm.errorf(ErrArity, "want=%d, got=%d", cl.Fn.NumParameters, numArgs)
	}
	if vm.framesIndex >= len(vm.frames) {
		return vm.errorf(ErrFrameOverflow, "max depth %d", len(vm.frames))
	}

	basePointer := vm.sp - numArgs
	top := basePointer + cl.Fn.NumLocals
	if top > len(vm.stack) {
		return vm.errorf(ErrStackOverflow, "capacity %d", len(vm.stack))
	}
	for i := vm.sp; i < top; i++ {
		vm.stack[i] = Nil
	}

	if vm.profiler != nil {
		vm.profiler.RecordCall(cl.Fn)
	}
	vm.pushFrame(NewFrame(cl, basePointer))
	vm.sp = top
	return nil
}

func (vm *VM) callBuiltin(builtin *Builtin, numArgs int) error {
	args := make([]Object, numArgs)
	copy(args, vm.stack[vm.sp-numArgs:vm.sp])

	result := builtin.Fn(vm.out, args...)
	vm.sp = vm.sp - numArgs - 1

	return vm.push(orNull(result))
}

func (vm *VM) returnFromFrame(returnValue Object) error {
	if vm.framesIndex == 1 {
		// Top-level return ends the program with this value as its result.
		vm.sp = 0
		vm.stack[0] = returnValue
		vm.halted = true
		return nil
	}

	frame := vm.popFrame()
	vm.sp = frame.basePointer - 1
	return vm.push(returnValue)
}

func (vm *VM) pushClosure(constIndex, numFree int) error {
	if constIndex >= len(vm.constants) {
		return vm.errorf(ErrBadOperand, "constant %d of %d", constIndex, len(vm.constants))
	}
	fn, ok := vm.constants[constIndex].(*CompiledFunction)
	if !ok {
		return vm.errorf(ErrTypeMismatch, "not a function: %s", vm.constants[constIndex].Type())
	}
	if numFree > vm.sp {
		return vm.errorf(ErrStackUnderflow, "closure with %d free variables", numFree)
	}

	free := make([]Object, numFree)
	copy(free, vm.stack[vm.sp-numFree:vm.sp])
	vm.sp -= numFree

	return vm.push(&Closure{Fn: fn, Free: free})
}
