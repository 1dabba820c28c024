package vm

// ---------------------------------------------------------------------------
// Frame: Execution state for a function invocation
// ---------------------------------------------------------------------------

// Frame is the execution state of one active closure call.
type Frame struct {
	cl          *Closure // the closure being executed
	ip          int      // offset of the next instruction to fetch
	basePointer int      // stack slot of local 0
}

// NewFrame creates a frame for cl whose locals start at basePointer.
func NewFrame(cl *Closure, basePointer int) *Frame {
	return &Frame{cl: cl, basePointer: basePointer}
}

// Instructions returns the bytecode executed by this frame.
func (f *Frame) Instructions() Instructions {
	return f.cl.Fn.Instructions
}

// Closure returns the closure executed by this frame.
func (f *Frame) Closure() *Closure {
	return f.cl
}

// BasePointer returns the stack slot of local 0.
func (f *Frame) BasePointer() int {
	return f.basePointer
}
