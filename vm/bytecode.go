package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Constants and literals
const (
	OpConstant Opcode = iota // push constant from pool (16-bit index)
	OpTrue                   // push true
	OpFalse                  // push false
	OpNull                   // push null
	OpArray                  // build array from top N stack values (16-bit count)
	OpHash                   // build hash from top N stack values (16-bit count, N = 2*pairs)
)

// Stack
const (
	OpPop Opcode = iota + 0x10 // discard top of stack
)

// Arithmetic and comparison
const (
	OpAdd         Opcode = iota + 0x20 // pop two, push sum (or string concatenation)
	OpSub                              // pop two, push difference
	OpMul                              // pop two, push product
	OpDiv                              // pop two, push quotient
	OpEqual                            // pop two, push equality
	OpNotEqual                         // pop two, push inequality
	OpGreaterThan                      // pop two, push left > right
	OpMinus                            // negate integer on top of stack
	OpBang                             // logical not of top of stack
)

// Control flow
const (
	OpJump          Opcode = iota + 0x30 // jump to absolute offset (16-bit)
	OpJumpNotTruthy                      // pop, jump to absolute offset if falsy (16-bit)
)

// Variables
const (
	OpGetGlobal      Opcode = iota + 0x40 // push global (16-bit index)
	OpSetGlobal                           // pop into global (16-bit index)
	OpGetLocal                            // push local (8-bit index)
	OpSetLocal                            // pop into local (8-bit index)
	OpGetBuiltin                          // push builtin (8-bit index)
	OpGetFree                             // push captured free variable (8-bit index)
	OpCurrentClosure                      // push the closure being executed
)

// Calls and closures
const (
	OpIndex       Opcode = iota + 0x50 // pop index and container, push element
	OpCall                             // call callee below N args (8-bit argc)
	OpReturnValue                      // return top of stack
	OpReturn                           // return null
	OpClosure                          // wrap function constant (16-bit index) capturing N free values (8-bit count)
)

// Definition describes an opcode's name and operand layout.
type Definition struct {
	Name          string // human-readable name
	OperandWidths []int  // width in bytes of each operand, in order
}

// Width returns the total number of operand bytes.
func (d *Definition) Width() int {
	w := 0
	for _, ow := range d.OperandWidths {
		w += ow
	}
	return w
}

// definitions is built once and never mutated.
var definitions = map[Opcode]*Definition{
	OpConstant: {"OpConstant", []int{2}},
	OpTrue:     {"OpTrue", []int{}},
	OpFalse:    {"OpFalse", []int{}},
	OpNull:     {"OpNull", []int{}},
	OpArray:    {"OpArray", []int{2}},
	OpHash:     {"OpHash", []int{2}},

	OpPop: {"OpPop", []int{}},

	OpAdd:         {"OpAdd", []int{}},
	OpSub:         {"OpSub", []int{}},
	OpMul:         {"OpMul", []int{}},
	OpDiv:         {"OpDiv", []int{}},
	OpEqual:       {"OpEqual", []int{}},
	OpNotEqual:    {"OpNotEqual", []int{}},
	OpGreaterThan: {"OpGreaterThan", []int{}},
	OpMinus:       {"OpMinus", []int{}},
	OpBang:        {"OpBang", []int{}},

	OpJump:          {"OpJump", []int{2}},
	OpJumpNotTruthy: {"OpJumpNotTruthy", []int{2}},

	OpGetGlobal:      {"OpGetGlobal", []int{2}},
	OpSetGlobal:      {"OpSetGlobal", []int{2}},
	OpGetLocal:       {"OpGetLocal", []int{1}},
	OpSetLocal:       {"OpSetLocal", []int{1}},
	OpGetBuiltin:     {"OpGetBuiltin", []int{1}},
	OpGetFree:        {"OpGetFree", []int{1}},
	OpCurrentClosure: {"OpCurrentClosure", []int{}},

	OpIndex:       {"OpIndex", []int{}},
	OpCall:        {"OpCall", []int{1}},
	OpReturnValue: {"OpReturnValue", []int{}},
	OpReturn:      {"OpReturn", []int{}},
	OpClosure:     {"OpClosure", []int{2, 1}},
}

// Lookup returns the definition for an opcode byte.
func Lookup(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	if def, ok := definitions[op]; ok {
		return def.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// AllOpcodes returns every defined opcode.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(definitions))
	for op := range definitions {
		ops = append(ops, op)
	}
	return ops
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Instructions is an encoded instruction stream.
type Instructions []byte

// Make encodes a single instruction. Operands are truncated to their
// declared width. Passing the wrong number of operands is a programming
// error and panics.
func Make(op Opcode, operands ...int) Instructions {
	def, ok := definitions[op]
	if !ok {
		return Instructions{}
	}
	if len(operands) != len(def.OperandWidths) {
		panic(fmt.Sprintf("vm: %s expects %d operands, got %d", def.Name, len(def.OperandWidths), len(operands)))
	}

	ins := make(Instructions, 1+def.Width())
	ins[0] = byte(op)

	offset := 1
	for i, o := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 2:
			binary.BigEndian.PutUint16(ins[offset:], uint16(o))
		case 1:
			ins[offset] = byte(o)
		}
		offset += width
	}
	return ins
}

// ReadOperands decodes the operands that follow an opcode. It returns the
// operands and the number of bytes consumed.
func ReadOperands(def *Definition, ins Instructions) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	offset := 0
	for i, width := range def.OperandWidths {
		switch width {
		case 2:
			operands[i] = int(ReadUint16(ins[offset:]))
		case 1:
			operands[i] = int(ReadUint8(ins[offset:]))
		}
		offset += width
	}
	return operands, offset
}

// ReadUint16 reads a big-endian uint16 operand.
func ReadUint16(ins Instructions) uint16 {
	return binary.BigEndian.Uint16(ins)
}

// ReadUint8 reads a single-byte operand.
func ReadUint8(ins Instructions) uint8 {
	return ins[0]
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// String renders the instruction stream one instruction per line as
// "offset name operands". Unknown opcodes produce an inline error line and
// disassembly resumes at the next byte.
func (ins Instructions) String() string {
	var out strings.Builder

	i := 0
	for i < len(ins) {
		def, err := Lookup(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "%04d ERROR: %s\n", i, err)
			i++
			continue
		}
		if i+1+def.Width() > len(ins) {
			fmt.Fprintf(&out, "%04d ERROR: truncated operands for %s\n", i, def.Name)
			break
		}

		operands, read := ReadOperands(def, ins[i+1:])
		fmt.Fprintf(&out, "%04d %s\n", i, fmtInstruction(def, operands))
		i += 1 + read
	}

	return out.String()
}

func fmtInstruction(def *Definition, operands []int) string {
	count := len(def.OperandWidths)
	if len(operands) != count {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d", len(operands), count)
	}

	switch count {
	case 0:
		return def.Name
	case 1:
		return fmt.Sprintf("%s %d", def.Name, operands[0])
	case 2:
		return fmt.Sprintf("%s %d %d", def.Name, operands[0], operands[1])
	}
	return fmt.Sprintf("ERROR: unhandled operand count for %s", def.Name)
}

// ---------------------------------------------------------------------------
// Bytecode unit
// ---------------------------------------------------------------------------

// Bytecode is a compiled program: the main instruction stream and the
// constant pool it indexes. It is never mutated once produced.
type Bytecode struct {
	Instructions Instructions
	Constants    []Object
}

// Disassemble returns a listing of the constant pool, the main
// instructions and the body of every compiled function constant.
func (b *Bytecode) Disassemble() string {
	var sb strings.Builder

	if len(b.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range b.Constants {
			display := c.Inspect()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			fmt.Fprintf(&sb, ";   [%3d] %s %s\n", i, c.Type(), display)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("; Code:\n")
	sb.WriteString(b.Instructions.String())

	for i, c := range b.Constants {
		fn, ok := c.(*CompiledFunction)
		if !ok {
			continue
		}
		name := fn.Name
		if name == "" {
			name = "<anonymous>"
		}
		fmt.Fprintf(&sb, "\n; Function [%d] %s params=%d locals=%d\n", i, name, fn.NumParameters, fn.NumLocals)
		sb.WriteString(fn.Instructions.String())
	}

	return sb.String()
}
