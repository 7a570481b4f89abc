// Package sv32 implements the two-level Sv32 page-table walk over a
// mem.Memory physical buffer: translation, permission-checked mapping,
// aliasing/mirroring, and the copy/copy_user/peek_word helpers the
// trap dispatcher and syscall layer use to move bytes across the
// privilege boundary.
//
// Grounded on biscuit/src/vm/as.go (Vm_t.Userdmap8_inner walk-then-map
// pattern, the Lock_pmap/pgfltaken bookkeeping simplified away here
// since this core is single-threaded — see spec.md §5) and
// biscuit/src/mem/mem.go's PTE bit layout (PTE_P/PTE_W/PTE_U/PTE_ADDR),
// adapted from biscuit's amd64 3-level non-PAE-sized layout to the
// real RISC-V Sv32 two-level, 32-bit-PTE layout.
package sv32

import "rvavm/mem"

// PTE bit positions, per the RISC-V privileged spec's Sv32 format.
const (
	bitV = 1 << 0 // valid
	bitR = 1 << 1 // readable
	bitW = 1 << 2 // writable
	bitX = 1 << 3 // executable
	bitU = 1 << 4 // user-accessible
	bitG = 1 << 5 // global
	bitA = 1 << 6 // accessed
	bitD = 1 << 7 // dirty

	ppnShift = 10
	ppnMask  = 0xFFFFF // 20 bits, pre-shift
)

// PTE is one 32-bit Sv32 page-table entry.
type PTE uint32

// Valid reports whether the V bit is set.
func (p PTE) Valid() bool { return p&bitV != 0 }

// IsLeaf reports whether any of R/W/X is set — a leaf PTE maps a page
// (or superpage) directly, vs. a non-leaf PTE that points at a child
// table.
func (p PTE) IsLeaf() bool { return p&(bitR|bitW|bitX) != 0 }

func (p PTE) Readable() bool  { return p&bitR != 0 }
func (p PTE) Writable() bool  { return p&bitW != 0 }
func (p PTE) Executable() bool { return p&bitX != 0 }
func (p PTE) User() bool      { return p&bitU != 0 }

// PPN extracts the physical page number field.
func (p PTE) PPN() mem.PPN { return mem.PPN(p >> ppnShift) }

// Perm is an access-permission triple plus the user-accessibility bit,
// used both to build a leaf PTE and to check a requested access kind
// against one.
type Perm struct {
	R, W, X, U bool
}

// New builds an arbitrary permission set. Exposed alongside the preset
// constructors below per spec.md §4.3.
func New(r, w, x, user bool) Perm { return Perm{R: r, W: w, X: x, U: user} }

// KernelRW is read+write, supervisor-only (no U bit).
func KernelRW() Perm { return Perm{R: true, W: true} }

// KernelRWX is read+write+execute, supervisor-only.
func KernelRWX() Perm { return Perm{R: true, W: true, X: true} }

// UserRWX is read+write+execute, user-accessible — used for the first
// page of a program window (the result header lives there and is
// treated as writable+executable per spec.md §4.7 step 2).
func UserRWX() Perm { return Perm{R: true, W: true, X: true, U: true} }

// UserRO is read-only, user-accessible — used for the call-args page.
func UserRO() Perm { return Perm{R: true, U: true} }

func (p Perm) bits() PTE {
	var b PTE = bitV
	if p.R {
		b |= bitR
	}
	if p.W {
		b |= bitW
	}
	if p.X {
		b |= bitX
	}
	if p.U {
		b |= bitU
	}
	return b
}

func leafPTE(ppn mem.PPN, p Perm) PTE {
	return PTE(ppn)<<ppnShift | p.bits() | bitA | bitD
}

func nonLeafPTE(childPPN mem.PPN) PTE {
	return PTE(childPPN)<<ppnShift | bitV
}
