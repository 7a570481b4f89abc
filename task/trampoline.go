package task

import (
	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
)

// Trampoline is the one physical page mapped identically into the
// kernel root and every task root, at the same VA in both, that
// spec.md §4.7 calls for so a satp switch can happen without ever
// leaving mapped territory mid-instruction-stream.
//
// Per the Design Notes' explicit permission to reinterpret this as "a
// purely interpreted privilege boundary" rather than literal native
// trampoline code (spec.md §9): the page is real and really mirrored
// into both roots (so the "identically mapped" invariant is testable
// by walking both roots), but the actual satp/mode/sepc swap happens
// as a direct Go-level assignment in RunTask/KernelRunTask rather
// than by fetching and executing instructions through it. The page's
// bytes are a single EBREAK encoding, so anything that ever fetches
// from it by mistake traps loudly instead of running garbage.
type Trampoline struct {
	VA   uint32
	Phys mem.PPN
}

const trampolineEbreak uint32 = 0x00100073 // ebreak, used only as a guard

func newTrampoline(m *mem.Memory, kernelRoot mem.PPN) (Trampoline, bool) {
	ppn, ok := m.AllocRoot()
	if !ok {
		return Trampoline{}, false
	}
	va := CallArgsVA + mem.PageSize // one page past the call-args region
	w := trampolineEbreak
	buf := []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
	copy(m.Page(ppn), buf)
	if !sv32.MapPhysicalRange(m, kernelRoot, va, uint32(ppn)*mem.PageSize, mem.PageSize, sv32.New(true, false, true, false)) {
		return Trampoline{}, false
	}
	return Trampoline{VA: va, Phys: ppn}, true
}

// mirrorInto maps the trampoline's physical page into a freshly
// created user root at the same VA, with user+execute permission.
func (tr Trampoline) mirrorInto(m *mem.Memory, userRoot mem.PPN) bool {
	return sv32.MapPhysicalRange(m, userRoot, tr.VA, uint32(tr.Phys)*mem.PageSize, mem.PageSize, sv32.New(true, false, true, true))
}

// enter performs the kernel→user privilege transition spec.md §4.7's
// "run_task" describes: switch the active root, drop to user mode,
// and set the program counter to the task's entry point. It is the
// software trampoline's entry stub, reinterpreted as a direct state
// transition rather than an executed satp-write-then-sret sequence.
func enter(m *cpu.Machine, root *sv32.CurrentRoot, as AddressSpace, entry uint32) {
	root.Set(as.Root)
	m.Mode = sv32.ModeUser
	m.PC = entry
}

// leave performs the reverse transition on task completion: switch
// back to the kernel root and supervisor mode. It is the trampoline's
// trap stub, reinterpreted the same way.
func leave(m *cpu.Machine, root *sv32.CurrentRoot, kernelRoot mem.PPN) {
	root.Set(kernelRoot)
	m.Mode = sv32.ModeSupervisor
}
