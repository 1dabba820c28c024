// Package vm implements the Monkey bytecode virtual machine.
//
// This package contains:
//   - Opcode definitions, instruction encoding and disassembly
//   - The runtime value types, also used by the tree-walking evaluator
//     (closures are not shared; each engine has its own)
//   - The builtin function table
//   - The stack-based interpreter with call frames and closures
//
// A Bytecode value produced by the compiler is immutable and may be run by
// any number of fresh VM instances. A single VM is not safe for concurrent
// use.
package vm
