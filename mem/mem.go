// Package mem owns the flat physical memory buffer and the bump page
// allocator that hands out zeroed 4 KiB frames. It has no notion of
// virtual addresses or page tables — that lives in package sv32, which
// borrows the buffer through this package's Page accessor.
//
// Grounded on biscuit/src/mem/mem.go (Pa_t, PGSIZE, Pmap_t, Physmem_t
// refcounted frame pool), simplified to a single-owner bump allocator:
// this core never frees a root while a task references it, so the
// original per-page refcounting (Physmem_t.Refup/Refdown) is unneeded
// machinery for this domain and is dropped in favor of a plain
// next-free counter, matching spec.md §4.1.
package mem

import "fmt"

// PageSize is the size in bytes of one physical page frame.
const PageSize = 4096

// PageShift is log2(PageSize); used to convert between byte offsets
// and page numbers.
const PageShift = 12

// DefaultSize is the default physical memory size used when a runner
// does not override it (spec.md §6 RunOptions.vm_memory_size).
const DefaultSize = 16 * 1024 * 1024

// PPN identifies a physical page frame by its index (physical address
// = PPN * PageSize).
type PPN uint32

// Memory is the flat physical byte buffer plus the bump allocator that
// hands out frames from it. The zero value is not usable; construct
// with New.
type Memory struct {
	buf      []byte
	nextFree PPN
	npages   PPN
}

// New allocates a physical memory region of the given size, rounded
// down to a whole number of pages. Page 0 is reserved (never handed
// out by AllocRoot) the way biscuit reserves low physical memory for
// the BIOS/bootloader area.
func New(sizeBytes int) *Memory {
	if sizeBytes <= 0 {
		sizeBytes = DefaultSize
	}
	npages := PPN(sizeBytes / PageSize)
	return &Memory{
		buf:      make([]byte, npages*PageSize),
		nextFree: 1,
		npages:   npages,
	}
}

// NumPages returns the total number of physical frames backing this
// memory.
func (m *Memory) NumPages() PPN { return m.npages }

// Size returns the total size in bytes of the physical memory region.
func (m *Memory) Size() int { return len(m.buf) }

// AllocRoot hands out one zero-filled page frame and advances the
// bump pointer. It returns ok=false once the region is exhausted.
func (m *Memory) AllocRoot() (ppn PPN, ok bool) {
	if m.nextFree >= m.npages {
		return 0, false
	}
	ppn = m.nextFree
	m.nextFree++
	clear(m.Page(ppn))
	return ppn, true
}

// BumpTo advances the allocator's next-free counter to ppn, reserving
// every page below it. Used by the boot path to reserve pages already
// consumed by the kernel image and boot info block (spec.md §6).
func (m *Memory) BumpTo(ppn PPN) {
	if ppn > m.nextFree {
		m.nextFree = ppn
	}
}

// NextFree returns the current bump pointer, for boot-info handoff.
func (m *Memory) NextFree() PPN { return m.nextFree }

// Page returns the byte slice backing the given frame. It panics on an
// out-of-range PPN: every caller in this codebase derives ppn from a
// prior successful walk or allocation, so an out-of-range PPN here
// indicates a bug in the caller, not user-controllable input.
func (m *Memory) Page(ppn PPN) []byte {
	start := int(ppn) * PageSize
	if ppn >= m.npages {
		panic(fmt.Sprintf("mem: ppn %d out of range (npages=%d)", ppn, m.npages))
	}
	return m.buf[start : start+PageSize]
}

// ReadWord performs one aligned 4-byte little-endian read from frame
// ppn at the given in-page offset. off must satisfy 0 <= off <= PageSize-4.
func (m *Memory) ReadWord(ppn PPN, off uint32) uint32 {
	pg := m.Page(ppn)
	return uint32(pg[off]) | uint32(pg[off+1])<<8 | uint32(pg[off+2])<<16 | uint32(pg[off+3])<<24
}

// WriteWord performs one aligned 4-byte little-endian write into frame
// ppn at the given in-page offset.
func (m *Memory) WriteWord(ppn PPN, off uint32, v uint32) {
	pg := m.Page(ppn)
	pg[off] = byte(v)
	pg[off+1] = byte(v >> 8)
	pg[off+2] = byte(v >> 16)
	pg[off+3] = byte(v >> 24)
}
