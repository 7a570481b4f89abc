package jit

import (
	"testing"

	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
)

func newTestMachine(t *testing.T) *cpu.Machine {
	t.Helper()
	m := mem.New(1 << 20)
	root, ok := m.AllocRoot()
	if !ok {
		t.Fatal("alloc root")
	}
	if !sv32.MapRange(m, root, 0, 0x4000, sv32.KernelRWX()) {
		t.Fatal("map")
	}
	cur := &sv32.CurrentRoot{}
	cur.Set(root)
	return cpu.New(m, cur)
}

func encodeLE(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func TestTraceCompilesAfterThreshold(t *testing.T) {
	m := newTestMachine(t)
	// addi x1,x1,1 ; addi x1,x1,1 ; jal x0,0  (the jal ends the trace and jumps to itself)
	prog := []uint32{0x00108093, 0x00108093, 0x0000006f}
	for i, w := range prog {
		sv32.Copy(m.Mem, m.Root.Get(), uint32(i*4), encodeLE(w))
	}

	e := NewEngine(3)
	for i := 0; i < 2; i++ {
		m.PC = 0
		ran, trap := e.MaybeRun(m)
		if ran {
			t.Fatalf("iter %d: ran too early", i)
		}
		if trap != nil {
			t.Fatalf("iter %d: unexpected trap %+v", i, trap)
		}
	}
	if e.Stats.CompileAttempts != 0 {
		t.Fatalf("compiled before threshold: attempts=%d", e.Stats.CompileAttempts)
	}

	m.PC = 0
	ran, trap := e.MaybeRun(m)
	if !ran || trap != nil {
		t.Fatalf("third hit: ran=%v trap=%+v, want compiled run", ran, trap)
	}
	if e.Stats.CompileAttempts != 1 || e.Stats.CompileSuccesses != 1 {
		t.Fatalf("stats = %+v, want one attempt/success", e.Stats)
	}
	if m.GetX(1) != 2 {
		t.Fatalf("x1 = %d, want 2 (two addi before the trailing jal)", m.GetX(1))
	}

	m.PC = 0
	ran, _ = e.MaybeRun(m)
	if !ran || e.Stats.CacheHits != 1 {
		t.Fatalf("expected a cache hit on the second compiled visit, stats=%+v", e.Stats)
	}
}

func TestTraceStopsAtTraceLimit(t *testing.T) {
	m := newTestMachine(t)
	if !sv32.MapRange(m.Mem, m.Root.Get(), 0, 0x10000, sv32.KernelRWX()) {
		t.Fatal("map larger region")
	}
	for i := 0; i < TraceLimit+10; i++ {
		sv32.Copy(m.Mem, m.Root.Get(), uint32(i*4), encodeLE(0x00108093)) // addi x1,x1,1
	}
	insts, ok := buildTrace(m, 0)
	if !ok {
		t.Fatal("buildTrace failed")
	}
	if len(insts) != TraceLimit {
		t.Fatalf("trace length = %d, want %d", len(insts), TraceLimit)
	}
}

func TestTraceStopsAtUnsupportedOp(t *testing.T) {
	m := newTestMachine(t)
	sv32.Copy(m.Mem, m.Root.Get(), 0, encodeLE(0x00108093)) // addi x1,x1,1
	sv32.Copy(m.Mem, m.Root.Get(), 4, encodeLE(0x00100073)) // ebreak (not JIT-supported)
	insts, ok := buildTrace(m, 0)
	if !ok || len(insts) != 1 {
		t.Fatalf("insts = %v ok=%v, want exactly the addi", insts, ok)
	}
}
