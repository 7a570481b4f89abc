package task

import (
	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
	"rvavm/util"
)

func roundUpPage(n uint32) uint32 {
	return util.Roundup(n, uint32(mem.PageSize))
}

// mapProgramWindow installs the three permission classes spec.md
// §4.7 step 2 describes: page 0 stays RWX since the guest writes its
// result header there (task.ResultHeaderVA); the rest of the code,
// rounded up to a whole number of pages, is R+X to protect program
// text; everything past that, out to the end of the window
// (rodata/bss/stack/heap), is R+W.
func mapProgramWindow(m *mem.Memory, root mem.PPN, windowLen, codeLen uint32) bool {
	codeLen = roundUpPage(codeLen)
	if codeLen > windowLen {
		codeLen = windowLen
	}
	firstPageLen := codeLen
	if firstPageLen > mem.PageSize {
		firstPageLen = mem.PageSize
	}
	if !sv32.MapRange(m, root, ProgramVABase, firstPageLen, sv32.UserRWX()) {
		return false
	}
	if codeLen > mem.PageSize {
		codeStart := ProgramVABase + mem.PageSize
		codeRest := codeLen - mem.PageSize
		codePerm := sv32.New(true, false, true, true) // R+X, no W
		if !sv32.MapRange(m, root, codeStart, codeRest, codePerm) {
			return false
		}
	}
	dataStart := ProgramVABase + codeLen
	dataLen := windowLen - codeLen
	dataPerm := sv32.New(true, true, false, true) // R+W, no X
	return sv32.MapRange(m, root, dataStart, dataLen, dataPerm)
}

// Image is the pre-parsed program a loader hands to PrepProgramTask:
// code+rodata+bss bytes to place at ProgramVABase, plus the entry
// point's offset from that base. Parsing the ELF itself is package
// elfload's job (spec.md §4.8); this package only ever sees bytes.
type Image struct {
	Bytes    []byte
	EntryOff uint32
}

// PrepProgramTask builds a fresh task: a new address space with its
// own root page table and ASID, the program image mapped and copied
// in, the call-args page populated, and a trap frame parked at the
// entry point with SP at the top of the window — spec.md §4.7 step by
// step. It returns the new task's table index.
func (t *Table) PrepProgramTask(caller int, to, from [20]byte, img Image, input []byte) (int, bool) {
	slot, ok := t.allocSlot()
	if !ok {
		return 0, false
	}
	root, ok := t.Mem.AllocRoot()
	if !ok {
		return 0, false
	}

	windowLen := DefaultWindowLen
	if need := uint32(len(img.Bytes)); need > windowLen {
		windowLen = roundUpPage(need)
	}
	if !mapProgramWindow(t.Mem, root, windowLen, uint32(len(img.Bytes))) {
		return 0, false
	}
	if !sv32.Copy(t.Mem, root, ProgramVABase, img.Bytes) {
		return 0, false
	}

	if !sv32.MapRange(t.Mem, root, CallArgsVA, mem.PageSize, sv32.UserRO()) {
		return 0, false
	}
	args := make([]byte, mem.PageSize)
	copy(args[callArgsToOff:], to[:])
	copy(args[callArgsFromOff:], from[:])
	n := len(input)
	if n > callArgsInputMax {
		n = callArgsInputMax
	}
	copy(args[callArgsInputOff:], input[:n])
	if !sv32.Copy(t.Mem, root, CallArgsVA, args) {
		return 0, false
	}

	if !t.Trampoline.mirrorInto(t.Mem, root) {
		return 0, false
	}

	heapPtr := roundUpPage(uint32(len(img.Bytes)))
	if heapPtr < mem.PageSize {
		heapPtr = mem.PageSize
	}

	frame := cpu.Frame{PC: ProgramVABase + img.EntryOff}
	frame.X[2] = ProgramVABase + windowLen // sp = top of window

	t.Tasks[slot] = Task{
		Valid: true,
		AS: AddressSpace{
			Root:   root,
			ASID:   t.allocASID(),
			VABase: ProgramVABase,
			VALen:  windowLen,
		},
		Frame:   frame,
		HeapPtr: heapPtr,
		Caller:  caller,
	}
	return slot, true
}
