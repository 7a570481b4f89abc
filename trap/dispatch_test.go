package trap

import (
	"testing"

	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
)

type fakeSyscall struct{ calls int }

func (f *fakeSyscall) Dispatch(m *cpu.Machine) { f.calls++; m.SetX(10, 42) }

type fakeCompleter struct {
	completeOK bool
	completed  int
}

func (f *fakeCompleter) Complete(m *cpu.Machine) (int, bool) { return f.completed, f.completeOK }

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

func TestEcallDispatchesToSyscallTable(t *testing.T) {
	m := newTestMachine(t)
	sv32.Copy(m.Mem, m.Root.Get(), 0, encodeLE(0x00000073)) // ecall
	sc := &fakeSyscall{}
	d := &Dispatcher{Machine: m, Syscall: sc, Tasks: &fakeCompleter{}}
	if f := d.StepOnce(); f != nil {
		t.Fatalf("unexpected fatal: %v", f)
	}
	if sc.calls != 1 {
		t.Fatalf("syscall calls = %d, want 1", sc.calls)
	}
	if m.GetX(10) != 42 {
		t.Fatalf("x10 = %d, want 42", m.GetX(10))
	}
}

func TestEbreakCallsOnEbreak(t *testing.T) {
	m := newTestMachine(t)
	sv32.Copy(m.Mem, m.Root.Get(), 0, encodeLE(0x00100073)) // ebreak
	tasks := &fakeCompleter{completeOK: true, completed: 7}
	var got int = -1
	d := &Dispatcher{Machine: m, Syscall: &fakeSyscall{}, Tasks: tasks, OnEbreak: func(c int) { got = c }}
	if f := d.StepOnce(); f != nil {
		t.Fatalf("unexpected fatal: %v", f)
	}
	if got != 7 {
		t.Fatalf("OnEbreak got %d, want 7", got)
	}
}

func TestUnhandledPageFaultIsFatal(t *testing.T) {
	m := newTestMachine(t)
	m.PC = 0x7ffff000 // unmapped
	d := &Dispatcher{Machine: m, Syscall: &fakeSyscall{}, Tasks: &fakeCompleter{}}
	f := d.StepOnce()
	if f == nil {
		t.Fatal("expected fatal trap on unmapped fetch")
	}
}

func TestCompleteFailureIsFatal(t *testing.T) {
	m := newTestMachine(t)
	sv32.Copy(m.Mem, m.Root.Get(), 0, encodeLE(0x00100073)) // ebreak
	d := &Dispatcher{Machine: m, Syscall: &fakeSyscall{}, Tasks: &fakeCompleter{completeOK: false}}
	f := d.StepOnce()
	if f == nil {
		t.Fatal("expected fatal when Complete fails")
	}
}
