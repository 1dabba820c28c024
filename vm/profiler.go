package vm

import (
	"fmt"
	"io"
	"sort"
)

// Profiler counts dispatched instructions per opcode and invocations per
// compiled function. A Profiler belongs to one VM at a time.
type Profiler struct {
	instructions map[Opcode]uint64
	calls        map[*CompiledFunction]uint64

	// HotThreshold marks a function as hot once its call count reaches it.
	HotThreshold uint64

	// OnHot is called the first time a function becomes hot.
	OnHot func(fn *CompiledFunction, count uint64)

	hotCount uint64
}

// NewProfiler creates a profiler with the default hot threshold.
func NewProfiler() *Profiler {
	return &Profiler{
		instructions: make(map[Opcode]uint64),
		calls:        make(map[*CompiledFunction]uint64),
		HotThreshold: 100,
	}
}

// RecordInstruction increments the count for op.
func (p *Profiler) RecordInstruction(op Opcode) {
	p.instructions[op]++
}

// RecordCall increments the invocation count for fn. Returns true if this
// call made the function hot.
func (p *Profiler) RecordCall(fn *CompiledFunction) bool {
	p.calls[fn]++
	count := p.calls[fn]
	if count == p.HotThreshold {
		p.hotCount++
		if p.OnHot != nil {
			p.OnHot(fn, count)
		}
		return true
	}
	return false
}

// InstructionCount returns how many times op was dispatched.
func (p *Profiler) InstructionCount(op Opcode) uint64 {
	return p.instructions[op]
}

// CallCount returns how many times fn was invoked.
func (p *Profiler) CallCount(fn *CompiledFunction) uint64 {
	return p.calls[fn]
}

// TotalInstructions returns the number of dispatched instructions.
func (p *Profiler) TotalInstructions() uint64 {
	var total uint64
	for _, n := range p.instructions {
		total += n
	}
	return total
}

// HotFunctionCount returns the number of functions that reached the threshold.
func (p *Profiler) HotFunctionCount() uint64 {
	return p.hotCount
}

// Report writes opcode counts, most frequent first.
func (p *Profiler) Report(w io.Writer) {
	type entry struct {
		op    Opcode
		count uint64
	}
	entries := make([]entry, 0, len(p.instructions))
	for op, n := range p.instructions {
		entries = append(entries, entry{op, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].op < entries[j].op
	})

	fmt.Fprintf(w, "; %d instructions, %d functions called, %d hot\n",
		p.TotalInstructions(), len(p.calls), p.hotCount)
	for _, e := range entries {
		fmt.Fprintf(w, "%-18s %d\n", e.op, e.count)
	}
}
