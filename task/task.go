// Package task implements the fixed-size task table, ASID allocation,
// program-image mapping, and the one-way kernel→user handoff spec.md
// §4.7 describes: prep_program_task, run_task, kernel_run_task, and
// ebreak-driven completion.
//
// Grounded on biscuit/src/vm/as.go's Vm_t (address-space record: root
// page table + owning lock, here simplified to a single-owner struct
// since this core is single-threaded per spec.md §5) and
// original_source/crates/kernel/src/task/{mod,prep,run,trampoline}.rs
// for the shape of prep/run/trampoline split this package mirrors.
package task

import (
	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
)

// MaxTasks is the size of the fixed task table; slot 0 is reserved for
// the kernel, per spec.md §3.
const MaxTasks = 16

// KernelTask is the reserved index of the kernel task.
const KernelTask = 0

// None is the sentinel for "no caller" / "no completed task".
const None = -1

// Layout constants for a program window. These are this
// implementation's concrete resolution of spec.md §4.7's "fixed low
// VA" / "fixed VA" language — not fully pinned down by the
// distillation, recorded as a design decision in DESIGN.md.
const (
	// ProgramVABase is where every task's program image starts — the
	// program image is copied starting at VA 0 so the ELF's internal
	// offsets remain valid (spec.md §4.7 step 4).
	ProgramVABase uint32 = 0

	// ResultHeaderVA is where a task's own ebreak-time result header
	// lives inside its own window (spec.md §4.4, §6, scenario 4). It
	// falls inside page 0, which is therefore mapped RWX rather than
	// split into a separate read-only region.
	ResultHeaderVA uint32 = 0x100

	// DefaultWindowLen is the size of a program's address-space
	// window when the loaded image doesn't require a larger one; code,
	// rodata, bss, heap and stack all live below this bound. Every
	// mapped page gets its own real physical frame (sv32.MapRange has
	// no notion of lazy/copy-on-write commit, spec.md §4.1), so this is
	// kept modest — 64 KiB — rather than a more realistic multi-MiB
	// guest address space, so a handful of concurrent task windows fit
	// comfortably inside the default 16 MiB physical memory (spec.md
	// §6's vm_memory_size) without every run needing a huge -mem value.
	DefaultWindowLen uint32 = 64 * 1024

	// CallArgsVA is the fixed VA of the one-page call-args region
	// (spec.md §4.7 step 3), placed just past the program window so it
	// never collides with the image: to (20B at offset 0) || from (20B
	// at offset 20) || input (from offset 64 to the end of the page,
	// truncated if it would not fit).
	CallArgsVA      = ProgramVABase + DefaultWindowLen
	callArgsToOff    = 0
	callArgsFromOff  = 20
	callArgsInputOff = 64
	callArgsInputMax = mem.PageSize - callArgsInputOff

	// CallArgsFromVA is the fixed VA of the 20-byte "from" field inside
	// the call-args page: the address of whoever called the currently
	// running task. Exported so package syscall can read it directly
	// for syscall 9 (transfer), whose source account is the caller, not
	// the running task itself — see
	// original_source/crates/kernel/src/syscall/balance.rs's
	// sys_transfer, which reads FROM_PTR_ADDR rather than TO_PTR_ADDR.
	CallArgsFromVA = CallArgsVA + callArgsFromOff
)

// AddressSpace is the {root PPN, ASID, va_base, va_len} tuple spec.md
// §3 names.
type AddressSpace struct {
	Root   mem.PPN
	ASID   uint32
	VABase uint32
	VALen  uint32
}

// Result is a completed task's outcome, read from its result header
// at ebreak time.
type Result struct {
	Success  bool
	ErrorCode uint32
	Data     []byte
}

// Task is one runnable unit of guest execution, per spec.md §3.
type Task struct {
	Valid   bool
	AS      AddressSpace
	Frame   cpu.Frame
	HeapPtr uint32
	Caller  int // task-table index, or None
	Result  *Result
}

// Table is the bounded, single-owner collection of tasks plus the
// scheduling side channels (ASID counter, last-completed index) that
// spec.md §3/§4.7 describe.
type Table struct {
	Tasks         [MaxTasks]Task
	nextASID      uint32
	Current       int
	LastCompleted int

	Mem  *mem.Memory
	Root *sv32.CurrentRoot

	Trampoline Trampoline
}

// NewTable constructs an empty task table sharing the given physical
// memory and current-root side channel with the CPU, and installs the
// trampoline page (spec.md §4.7) into the kernel root.
func NewTable(m *mem.Memory, root *sv32.CurrentRoot, kernelRoot mem.PPN) (*Table, bool) {
	t := &Table{
		Mem:           m,
		Root:          root,
		Current:       KernelTask,
		LastCompleted: None,
		nextASID:      1,
	}
	t.Tasks[KernelTask] = Task{Valid: true, AS: AddressSpace{Root: kernelRoot}, Caller: None}
	tr, ok := newTrampoline(m, kernelRoot)
	if !ok {
		return nil, false
	}
	t.Trampoline = tr
	return t, true
}

func (t *Table) allocASID() uint32 {
	a := t.nextASID
	t.nextASID++
	return a
}

// allocSlot finds a free (invalid) task-table slot other than 0.
func (t *Table) allocSlot() (int, bool) {
	for i := 1; i < MaxTasks; i++ {
		if !t.Tasks[i].Valid {
			return i, true
		}
	}
	return 0, false
}
