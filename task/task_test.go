package task

import (
	"encoding/binary"
	"testing"

	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
)

func newTestDriver(t *testing.T) (*cpu.Machine, *Table) {
	t.Helper()
	m := mem.New(4 << 20)
	kernelRoot, ok := m.AllocRoot()
	if !ok {
		t.Fatal("alloc kernel root")
	}
	root := &sv32.CurrentRoot{}
	root.Set(kernelRoot)
	mach := cpu.New(m, root)
	tbl, ok := NewTable(m, root, kernelRoot)
	if !ok {
		t.Fatal("new table")
	}
	return mach, tbl
}

const ebreak32 = 0x00100073

func encodeLE(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func TestPrepAndRunToEbreak(t *testing.T) {
	mach, tbl := newTestDriver(t)

	img := Image{Bytes: encodeLE(ebreak32), EntryOff: 0}
	slot, ok := tbl.RunTask(mach, [20]byte{1}, [20]byte{2}, img, nil)
	if !ok {
		t.Fatal("run task")
	}
	if tbl.Current != slot {
		t.Fatalf("current = %d, want %d", tbl.Current, slot)
	}
	if mach.PC != ProgramVABase {
		t.Fatalf("pc = %#x, want %#x", mach.PC, ProgramVABase)
	}

	trap := mach.Step()
	if trap == nil || trap.SCause != cpu.CauseBreakpoint {
		t.Fatalf("step: trap=%+v, want ebreak", trap)
	}

	completed, ok := tbl.Complete(mach)
	if !ok {
		t.Fatal("complete")
	}
	if completed != slot {
		t.Fatalf("completed = %d, want %d", completed, slot)
	}
	if tbl.Current != KernelTask {
		t.Fatalf("current after complete = %d, want kernel", tbl.Current)
	}
	res := tbl.Tasks[slot].Result
	if res == nil || res.Success {
		t.Fatalf("result = %+v, want zero-valued (unwritten header)", res)
	}
}

func TestPrepProgramTaskWritesResultHeader(t *testing.T) {
	mach, tbl := newTestDriver(t)

	img := Image{Bytes: encodeLE(ebreak32), EntryOff: 0}
	slot, ok := tbl.RunTask(mach, [20]byte{1}, [20]byte{2}, img, nil)
	if !ok {
		t.Fatal("run task")
	}

	var head [16]byte
	binary.LittleEndian.PutUint32(head[0:4], 1) // success
	binary.LittleEndian.PutUint32(head[4:8], 0)
	binary.LittleEndian.PutUint32(head[8:12], 4)
	binary.LittleEndian.PutUint32(head[12:16], 100)
	if !sv32.CopyUser(mach.Mem, mach.Root.Get(), ResultHeaderVA, head[:]) {
		t.Fatal("write result header")
	}

	trap := mach.Step()
	if trap == nil || trap.SCause != cpu.CauseBreakpoint {
		t.Fatalf("step: trap=%+v", trap)
	}
	if _, ok := tbl.Complete(mach); !ok {
		t.Fatal("complete")
	}
	res := tbl.Tasks[slot].Result
	if res == nil || !res.Success || res.ErrorCode != 0 || len(res.Data) != 4 {
		t.Fatalf("result = %+v", res)
	}
	if binary.LittleEndian.Uint32(res.Data) != 100 {
		t.Fatalf("data = %v, want [100 0 0 0]", res.Data)
	}
}

func TestCallArgsPageHoldsToFrom(t *testing.T) {
	mach, tbl := newTestDriver(t)
	to := [20]byte{0xAA}
	from := [20]byte{0xBB}
	img := Image{Bytes: encodeLE(ebreak32), EntryOff: 0}
	_, ok := tbl.RunTask(mach, to, from, img, []byte("hi"))
	if !ok {
		t.Fatal("run task")
	}
	var got [20]byte
	if !sv32.ReadUser(mach.Mem, mach.Root.Get(), CallArgsVA, got[:]) {
		t.Fatal("read to")
	}
	if got != to {
		t.Fatalf("to = %x, want %x", got, to)
	}
	var gotFrom [20]byte
	if !sv32.ReadUser(mach.Mem, mach.Root.Get(), CallArgsVA+callArgsFromOff, gotFrom[:]) {
		t.Fatal("read from")
	}
	if gotFrom != from {
		t.Fatalf("from = %x, want %x", gotFrom, from)
	}
	var input [2]byte
	if !sv32.ReadUser(mach.Mem, mach.Root.Get(), CallArgsVA+callArgsInputOff, input[:]) {
		t.Fatal("read input")
	}
	if string(input[:]) != "hi" {
		t.Fatalf("input = %q, want %q", input, "hi")
	}
}

func TestTableExhaustion(t *testing.T) {
	mach, tbl := newTestDriver(t)
	img := Image{Bytes: encodeLE(ebreak32), EntryOff: 0}
	for i := 1; i < MaxTasks; i++ {
		if _, ok := tbl.PrepProgramTask(KernelTask, [20]byte{}, [20]byte{}, img, nil); !ok {
			t.Fatalf("prep %d unexpectedly failed", i)
		}
	}
	if _, ok := tbl.PrepProgramTask(KernelTask, [20]byte{}, [20]byte{}, img, nil); ok {
		t.Fatal("expected exhaustion once all non-kernel slots are used")
	}
	_ = mach
}
