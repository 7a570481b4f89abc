// Package syscall implements the guest-visible syscall surface
// spec.md §4.6 describes: storage access, program-to-program calls,
// events, a bump allocator, and native value transfer, dispatched on
// ecall by reading a7 for the syscall id and a1-a6 for its six
// argument words, per spec.md §4.4.
//
// Grounded on original_source/crates/kernel/src/syscall/{storage,
// transfer}.rs for per-call semantics and on
// biscuit/src/syscall/sys.go's id-to-handler dispatch table shape.
package syscall

import (
	"encoding/binary"

	"rvavm/cpu"
	"rvavm/state"
	"rvavm/sv32"
	"rvavm/task"
)

// Syscall IDs, per spec.md §4.6.
const (
	IDStorageGet  = 1
	IDStorageSet  = 2
	IDPanic       = 3
	IDCallProgram = 5
	IDFireEvent   = 6
	IDAlloc       = 7
	IDDealloc     = 8
	IDTransfer    = 9
	IDBalance     = 10
	IDBrk         = 214 // reserved, not implemented
)

// errOK is the only sentinel this package returns on failure as well as
// success: every handler in spec.md §4.6's table and in
// original_source/crates/kernel/src/syscall/*.rs reports "miss",
// "fault" and "invalid argument" the same way the guest sees success —
// as a plain 0 (or, for transfer alone, a plain 1) — never a negative
// or out-of-band sentinel.
const errOK = 0

// Event is a guest-emitted log record (syscall 6, fire_event): a
// single opaque byte blob, per spec.md §4.6 row 6 and
// original_source/crates/kernel/src/syscall/fire_event.rs (there is no
// topic/data split).
type Event struct {
	Task int
	Data []byte
}

// Table is the syscall dispatcher: it owns the bundle-level ledger
// and drives the task table for call_program, and accumulates events
// for the bundle driver to attach to the eventual receipt.
type Table struct {
	Ledger *state.Ledger
	Tasks  *task.Table
	Events []Event

	// Loader resolves a target address's code into a program image
	// ready for RunTask, the hook package bundle installs so this
	// package never has to know about ELF parsing.
	Loader func(addr state.Address, code []byte) (task.Image, bool)

	// Panicked is set by syscall 3; the dispatcher does not itself
	// decide what a panicking task should do beyond recording it —
	// package trap's ebreak-completion path still runs normally,
	// since a guest panic is expected to be followed by an ebreak.
	Panicked map[int]string
}

// NewTable builds an empty dispatcher bound to ledger and tasks.
func NewTable(ledger *state.Ledger, tasks *task.Table) *Table {
	return &Table{Ledger: ledger, Tasks: tasks, Panicked: make(map[int]string)}
}

// registers, per spec.md §4.4's dispatcher policy: a7=x17 is the
// syscall number, a1..a6=x11..x16 are the six argument words, and
// a0=x10 is return-value-only — it is never read as an input.
const (
	regA0 = 10
	regA1 = 11
	regA6 = 16
	regA7 = 17
)

// Dispatch performs one syscall: it reads a7 and a1-a6 off m, runs the
// matching handler, and writes the result back into a0. An
// unrecognized id writes 0 and otherwise does nothing, rather than
// trapping again.
func (t *Table) Dispatch(m *cpu.Machine) {
	id := m.GetX(regA7)
	var args [regA6 - regA1 + 1]uint32
	for i := range args {
		args[i] = m.GetX(uint8(regA1 + i))
	}
	ret := t.call(m, id, args)
	m.SetX(regA0, ret)
}

// needsSelf reports whether id requires resolving the caller's own
// account address from its call-args page (spec.md §4.7 step 3) — the
// kernel task has no such page, so ids it legitimately issues
// (panic, fire_event, alloc, dealloc) must never require one. Transfer
// (syscall 9) reads the caller's address itself instead (see
// transfer's doc comment), so it is not included here.
func needsSelf(id uint32) bool {
	switch id {
	case IDStorageGet, IDStorageSet, IDCallProgram:
		return true
	default:
		return false
	}
}

func (t *Table) call(m *cpu.Machine, id uint32, a [6]uint32) uint32 {
	var self state.Address
	if needsSelf(id) {
		var ok bool
		self, ok = t.selfAddress(m)
		if !ok {
			return errOK
		}
	}
	switch id {
	case IDStorageGet:
		return t.storageGet(m, self, a[0], a[1], a[2], a[3])
	case IDStorageSet:
		return t.storageSet(m, self, a[0], a[1], a[2], a[3], a[4], a[5])
	case IDPanic:
		return t.panic(m, a[0], a[1])
	case IDCallProgram:
		return t.callProgram(m, self, a[0], a[1], a[2], a[3])
	case IDFireEvent:
		return t.fireEvent(m, a[0], a[1])
	case IDAlloc:
		return t.alloc(a[0], a[1])
	case IDDealloc:
		return errOK
	case IDTransfer:
		return t.transfer(m, a[1], a[2], a[3])
	case IDBalance:
		return t.balance(m, a[0])
	default:
		return errOK
	}
}

// selfAddress recovers the running task's own address from the 'to'
// field of the call-args page it was prepped with (spec.md §4.7 step
// 3); the kernel task has no such page and is not expected to issue
// storage/transfer syscalls directly.
func (t *Table) selfAddress(m *cpu.Machine) (state.Address, bool) {
	var buf [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), task.CallArgsVA, buf[:]) {
		return state.Address{}, false
	}
	return state.Address(buf), true
}

func readBytes(m *cpu.Machine, ptr, length uint32) ([]byte, bool) {
	if length == 0 {
		return nil, true
	}
	buf := make([]byte, length)
	if !sv32.ReadUser(m.Mem, m.Root.Get(), ptr, buf) {
		return nil, false
	}
	return buf, true
}

func writeBytes(m *cpu.Machine, ptr uint32, data []byte) bool {
	return sv32.CopyUser(m.Mem, m.Root.Get(), ptr, data)
}

// addressMatchesSelf reports whether the 20 bytes at ptr equal self,
// mirroring original_source/crates/kernel/src/syscall/storage.rs's
// caller_address_matches: the kernel task has no call-args page and is
// exempt from the check, since it never has a "self" to validate
// against.
func (t *Table) addressMatchesSelf(m *cpu.Machine, ptr uint32, self state.Address) bool {
	if t.Tasks.Current == task.KernelTask {
		return true
	}
	var addr [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), ptr, addr[:]) {
		return false
	}
	return state.Address(addr) == self
}

// allocBuf runs the current task's bump allocator (see alloc) to carve
// out room for a return buffer, then writes data into it — the pattern
// storage_get and balance both use in
// original_source/crates/kernel/src/syscall/{storage,balance}.rs,
// where sys_storage_get/sys_balance call straight into sys_alloc with a
// fixed 8-byte alignment before copying their result in.
func (t *Table) allocBuf(m *cpu.Machine, data []byte) uint32 {
	va := t.alloc(uint32(len(data)), 8)
	if va == 0 {
		return 0
	}
	if !writeBytes(m, va, data) {
		return 0
	}
	return va
}

// storageGet implements spec.md §4.6 row 1: addr_ptr must match the
// calling task's own address; domain/key length is packed into lens as
// key_len<<16|dom_len. On a hit it returns the VA of a freshly
// allocated buffer holding a 4-byte little-endian length prefix
// followed by the value; 0 on any miss, fault, or address mismatch.
func (t *Table) storageGet(m *cpu.Machine, self state.Address, addrPtr, domainPtr, keyPtr, lens uint32) uint32 {
	if !t.addressMatchesSelf(m, addrPtr, self) {
		return errOK
	}
	domainLen := lens & 0xffff
	keyLen := lens >> 16
	domain, ok := readBytes(m, domainPtr, domainLen)
	if !ok {
		return errOK
	}
	key, ok := readBytes(m, keyPtr, keyLen)
	if !ok {
		return errOK
	}
	val, found := t.Ledger.Get(self, domain, key)
	if !found {
		return errOK
	}
	buf := make([]byte, 4+len(val))
	binary.LittleEndian.PutUint32(buf, uint32(len(val)))
	copy(buf[4:], val)
	return t.allocBuf(m, buf)
}

// storageSet implements spec.md §4.6 row 2, packing domain/key lengths
// the same way storageGet does.
func (t *Table) storageSet(m *cpu.Machine, self state.Address, addrPtr, domainPtr, keyPtr, lens, valPtr, valLen uint32) uint32 {
	if !t.addressMatchesSelf(m, addrPtr, self) {
		return errOK
	}
	domainLen := lens & 0xffff
	keyLen := lens >> 16
	domain, ok := readBytes(m, domainPtr, domainLen)
	if !ok {
		return errOK
	}
	key, ok := readBytes(m, keyPtr, keyLen)
	if !ok {
		return errOK
	}
	val, ok := readBytes(m, valPtr, valLen)
	if !ok {
		return errOK
	}
	t.Ledger.Set(self, domain, key, val)
	return errOK
}

func (t *Table) panic(m *cpu.Machine, msgPtr, msgLen uint32) uint32 {
	msg, ok := readBytes(m, msgPtr, msgLen)
	if !ok {
		msg = []byte("<unreadable panic message>")
	}
	t.Panicked[t.Tasks.Current] = string(msg)
	return errOK
}

// callProgram implements spec.md §4.6 row 5: from_ptr must match the
// calling task's own address, mirroring call_program.rs's
// caller_address_matches check on from_ptr (not to_ptr). On the
// success path RunTask has already switched the active frame to the
// child by the time Dispatch writes the return value, so the 0 lands
// in the child's a0. Nothing writes a result into the caller's a0:
// at the child's ebreak, task.Complete restores the caller's saved
// frame unchanged, so the caller sees the a0 it had when it trapped.
func (t *Table) callProgram(m *cpu.Machine, self state.Address, toPtr, fromPtr, inputPtr, inputLen uint32) uint32 {
	if !t.addressMatchesSelf(m, fromPtr, self) {
		return errOK
	}
	var to [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), toPtr, to[:]) {
		return errOK
	}
	input, ok := readBytes(m, inputPtr, inputLen)
	if !ok {
		return errOK
	}
	code := t.Ledger.Code(state.Address(to))
	if code == nil || t.Loader == nil {
		return errOK
	}
	img, ok := t.Loader(state.Address(to), code)
	if !ok {
		return errOK
	}
	_, ok = t.Tasks.RunTask(m, to, [20]byte(self), img, input)
	if !ok {
		return errOK
	}
	return errOK
}

// fireEvent implements spec.md §4.6 row 6: a single opaque blob, with
// no topic/data split (fire_event.rs returns 0 on every path, including
// an unreadable pointer, so a read failure is not distinguished from
// success here either).
func (t *Table) fireEvent(m *cpu.Machine, ptr, length uint32) uint32 {
	data, ok := readBytes(m, ptr, length)
	if !ok {
		return errOK
	}
	t.Events = append(t.Events, Event{Task: t.Tasks.Current, Data: data})
	return errOK
}

// alloc implements spec.md §4.6 row 7 and
// original_source/crates/kernel/src/syscall/alloc.rs's alloc_in_task:
// align must be a nonzero power of two, size must be nonzero, and the
// rounded-up [start, start+size) range must land inside the current
// task's address-space window with no overflow; any violation returns
// 0 rather than advancing the heap pointer.
func (t *Table) alloc(size, align uint32) uint32 {
	if size == 0 || align == 0 || align&(align-1) != 0 {
		return 0
	}
	cur := &t.Tasks.Tasks[t.Tasks.Current]
	start := cur.HeapPtr + (align - 1)
	if start < cur.HeapPtr {
		return 0 // overflow
	}
	start &^= align - 1
	end := start + size
	if end < start {
		return 0 // overflow
	}
	windowEnd := cur.AS.VABase + cur.AS.VALen
	if start < cur.AS.VABase || end > windowEnd {
		return 0
	}
	cur.HeapPtr = end
	return start
}

// transfer implements spec.md §4.6 row 9: the source account is the
// call-args "from" field — the caller, not the running task itself —
// per original_source/crates/kernel/src/syscall/balance.rs's
// sys_transfer, which reads FROM_PTR_ADDR rather than TO_PTR_ADDR. The
// kernel task is never a valid transfer source. The guest-visible
// result is 0 on success and 1 on failure, the inverse of this
// package's internal errOK convention.
func (t *Table) transfer(m *cpu.Machine, toPtr, amountLo, amountHi uint32) uint32 {
	if t.Tasks.Current == task.KernelTask {
		return 1
	}
	var from [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), task.CallArgsFromVA, from[:]) {
		return 1
	}
	var to [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), toPtr, to[:]) {
		return 1
	}
	amount := uint64(amountLo) | uint64(amountHi)<<32
	if t.Ledger.Transfer(state.Address(from), state.Address(to), amount) != state.TransferOK {
		return 1
	}
	return 0
}

// balance implements spec.md §4.6 row 10: returns the VA of a freshly
// allocated 16-byte little-endian balance, mirroring sys_balance's
// alloc-and-return-VA pattern; the kernel task has no balance to report.
func (t *Table) balance(m *cpu.Machine, addrPtr uint32) uint32 {
	if t.Tasks.Current == task.KernelTask {
		return 0
	}
	var addr [20]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), addrPtr, addr[:]) {
		return errOK
	}
	bal := t.Ledger.Balance(state.Address(addr))
	return t.allocBuf(m, bal)
}
