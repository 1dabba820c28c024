package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestProfilerCallThreshold(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 5

	fn := &CompiledFunction{Name: "test"}

	var hotCalls int
	p.OnHot = func(got *CompiledFunction, count uint64) {
		hotCalls++
		if got != fn || count != 5 {
			t.Errorf("OnHot(%v, %d), want (%v, 5)", got, count, fn)
		}
	}

	// First invocation
	if p.RecordCall(fn) {
		t.Error("function should not be hot after 1 call")
	}

	// Invoke 4 more times (total 5)
	var becameHot bool
	for i := 0; i < 4; i++ {
		becameHot = p.RecordCall(fn)
	}
	if !becameHot {
		t.Error("function should become hot at threshold")
	}

	// Additional calls should not re-trigger hot
	if p.RecordCall(fn) {
		t.Error("function should not re-trigger hot")
	}

	if hotCalls != 1 {
		t.Errorf("OnHot called %d times, want 1", hotCalls)
	}
	if p.CallCount(fn) != 6 {
		t.Errorf("CallCount = %d, want 6", p.CallCount(fn))
	}
	if p.HotFunctionCount() != 1 {
		t.Errorf("HotFunctionCount = %d, want 1", p.HotFunctionCount())
	}
}

func TestProfilerInstructions(t *testing.T) {
	p := NewProfiler()
	bc := &Bytecode{
		Instructions: append(append(Make(OpTrue), Make(OpPop)...), append(Make(OpTrue), Make(OpPop)...)...),
	}
	if err := New(bc, WithProfiler(p)).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if p.InstructionCount(OpTrue) != 2 || p.InstructionCount(OpPop) != 2 {
		t.Errorf("counts = %d/%d, want 2/2", p.InstructionCount(OpTrue), p.InstructionCount(OpPop))
	}
	if p.TotalInstructions() != 4 {
		t.Errorf("TotalInstructions = %d, want 4", p.TotalInstructions())
	}

	var out bytes.Buffer
	p.Report(&out)
	report := out.String()
	if !strings.HasPrefix(report, "; 4 instructions, 0 functions called, 0 hot\n") {
		t.Errorf("report header = %q", report)
	}
	// Ties are broken by opcode value; OpTrue sorts before OpPop.
	if strings.Index(report, "OpTrue") > strings.Index(report, "OpPop") {
		t.Errorf("report not ordered by opcode on ties:\n%s", report)
	}
}
