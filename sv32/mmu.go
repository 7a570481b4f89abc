package sv32

import "rvavm/mem"

// AccessKind distinguishes the three ways an instruction can touch
// memory, each checked against a different PTE permission bit and
// raising a distinct scause on failure (spec.md §4.3 step 4).
type AccessKind int

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExecute
)

// Mode is the privilege level a translation is performed on behalf of.
type Mode int

const (
	ModeSupervisor Mode = iota
	ModeUser
)

// scause values for Sv32 page faults, per the RISC-V privileged spec.
const (
	CauseInstructionPageFault uint32 = 12
	CauseLoadPageFault        uint32 = 13
	CauseStorePageFault       uint32 = 15
)

// Fault describes a failed checked translation in terms a trap
// dispatcher can write directly into scause/stval.
type Fault struct {
	SCause uint32
	STval  uint32
}

func causeFor(kind AccessKind) uint32 {
	switch kind {
	case AccessExecute:
		return CauseInstructionPageFault
	case AccessWrite:
		return CauseStorePageFault
	default:
		return CauseLoadPageFault
	}
}

const (
	vpnBits   = 10
	vpnMask   = (1 << vpnBits) - 1
	offsetBits = 12
	offsetMask = (1 << offsetBits) - 1
)

func split(va uint32) (vpn1, vpn0, off uint32) {
	off = va & offsetMask
	vpn0 = (va >> offsetBits) & vpnMask
	vpn1 = (va >> (offsetBits + vpnBits)) & vpnMask
	return
}

func readPTE(m *mem.Memory, tablePPN mem.PPN, idx uint32) PTE {
	return PTE(m.ReadWord(tablePPN, idx*4))
}

func writePTE(m *mem.Memory, tablePPN mem.PPN, idx uint32, v PTE) {
	m.WriteWord(tablePPN, idx*4, uint32(v))
}

// walkLookup resolves va to a leaf PTE without creating anything. ok
// is false if any level of the walk is missing.
func walkLookup(m *mem.Memory, root mem.PPN, va uint32) (leaf PTE, pageOff uint32, superpage bool, ok bool) {
	vpn1, vpn0, off := split(va)
	pte1 := readPTE(m, root, vpn1)
	if !pte1.Valid() {
		return 0, 0, false, false
	}
	if pte1.IsLeaf() {
		// 4 MiB superpage: VPN0 folds into the physical offset.
		return pte1, (vpn0 << offsetBits) | off, true, true
	}
	child := pte1.PPN()
	pte0 := readPTE(m, child, vpn0)
	if !pte0.Valid() || !pte0.IsLeaf() {
		return 0, 0, false, false
	}
	return pte0, off, false, true
}

// Translate performs a raw walk with no permission checks, per
// spec.md §4.1's translate(root, va) -> phys | none.
func Translate(m *mem.Memory, root mem.PPN, va uint32) (phys uint32, ok bool) {
	leaf, off, _, ok := walkLookup(m, root, va)
	if !ok {
		return 0, false
	}
	return uint32(leaf.PPN())*mem.PageSize + off, true
}

// TranslateChecked performs a walk and enforces the requested access
// kind and privilege mode against the leaf's permission bits, per
// spec.md §4.3 step 4. On failure it returns the scause/stval pair the
// trap dispatcher should raise.
func TranslateChecked(m *mem.Memory, root mem.PPN, va uint32, kind AccessKind, mode Mode) (phys uint32, fault *Fault) {
	leaf, off, _, ok := walkLookup(m, root, va)
	if !ok {
		return 0, &Fault{SCause: causeFor(kind), STval: va}
	}
	if mode == ModeUser && !leaf.User() {
		return 0, &Fault{SCause: causeFor(kind), STval: va}
	}
	var permOK bool
	switch kind {
	case AccessRead:
		permOK = leaf.Readable()
	case AccessWrite:
		permOK = leaf.Writable()
	case AccessExecute:
		permOK = leaf.Executable()
	}
	if !permOK {
		return 0, &Fault{SCause: causeFor(kind), STval: va}
	}
	return uint32(leaf.PPN())*mem.PageSize + off, nil
}

// ensureChild returns the child table PPN for root's VPN1 slot,
// allocating and installing a fresh zeroed table if none exists yet.
// It fails only when the page allocator is exhausted.
func ensureChild(m *mem.Memory, root mem.PPN, vpn1 uint32) (mem.PPN, bool) {
	pte1 := readPTE(m, root, vpn1)
	if pte1.Valid() {
		if pte1.IsLeaf() {
			// A superpage already occupies this slot; refuse to shadow
			// it with a second-level table.
			return 0, false
		}
		return pte1.PPN(), true
	}
	child, ok := m.AllocRoot()
	if !ok {
		return 0, false
	}
	writePTE(m, root, vpn1, nonLeafPTE(child))
	return child, true
}

// installLeaf writes (or overwrites) the leaf PTE mapping the single
// page containing va.
func installLeaf(m *mem.Memory, root mem.PPN, va uint32, ppn mem.PPN, perm Perm) bool {
	vpn1, vpn0, _ := split(va)
	child, ok := ensureChild(m, root, vpn1)
	if !ok {
		return false
	}
	writePTE(m, child, vpn0, leafPTE(ppn, perm))
	return true
}

func pageAligned(n uint32) bool { return n%mem.PageSize == 0 }

// eachPage calls fn once per page-aligned VA covering [va, va+length).
// A zero length calls fn zero times.
func eachPage(va, length uint32, fn func(pageVA uint32) bool) bool {
	if length == 0 {
		return true
	}
	start := va &^ (mem.PageSize - 1)
	end := va + length
	for p := start; p < end; p += mem.PageSize {
		if !fn(p) {
			return false
		}
	}
	return true
}

// MapRange ensures every page intersecting [va, va+len) has a fresh
// frame allocated and a leaf PTE installed with perm, per spec.md
// §4.1. A zero-length request is a no-op that returns true.
// Remapping an already-mapped VA overrides the previous perms (a new
// frame is allocated each time — this is not an aliasing operation).
func MapRange(m *mem.Memory, root mem.PPN, va uint32, length uint32, perm Perm) bool {
	return eachPage(va, length, func(pageVA uint32) bool {
		ppn, ok := m.AllocRoot()
		if !ok {
			return false
		}
		return installLeaf(m, root, pageVA, ppn, perm)
	})
}

// MapPhysicalRange aliases the pre-existing physical pages starting at
// phys into [va, va+len) of root, per spec.md §4.1. Both phys and va
// must be page-aligned; on a misaligned request, no mapping is
// installed (fail-fast before any page is touched).
func MapPhysicalRange(m *mem.Memory, root mem.PPN, va uint32, phys uint32, length uint32, perm Perm) bool {
	if !pageAligned(va) || !pageAligned(phys) {
		return false
	}
	base := mem.PPN(phys / mem.PageSize)
	i := mem.PPN(0)
	ok := eachPage(va, length, func(pageVA uint32) bool {
		ok := installLeaf(m, root, pageVA, base+i, perm)
		i++
		return ok
	})
	return ok
}

// MirrorInto installs, in rootDst, an alias of every page mapped in
// [va, va+len) of rootSrc, pointing at the same physical frames. On
// the first VA in the range that is unmapped in rootSrc, it returns
// false immediately and leaves rootDst untouched for that page and
// everything past it — pages before the gap remain mirrored, per
// spec.md §4.1.
func MirrorInto(m *mem.Memory, rootSrc, rootDst mem.PPN, va uint32, length uint32, perm Perm) bool {
	return eachPage(va, length, func(pageVA uint32) bool {
		leaf, _, _, ok := walkLookup(m, rootSrc, pageVA)
		if !ok {
			return false
		}
		return installLeaf(m, rootDst, pageVA, leaf.PPN(), perm)
	})
}

// Copy writes bytes into the address space starting at va, honoring
// page boundaries, with no permission check on the writer side
// (spec.md §4.1) — used by the loader and task-prep paths that write
// into a window they just mapped themselves.
func Copy(m *mem.Memory, root mem.PPN, va uint32, data []byte) bool {
	written := 0
	for written < len(data) {
		cur := va + uint32(written)
		leaf, off, _, ok := walkLookup(m, root, cur)
		if !ok {
			return false
		}
		pg := m.Page(leaf.PPN())
		n := copy(pg[off:], data[written:])
		written += n
	}
	return true
}

// CopyUser is the atomic, permission-checked variant: it first
// verifies every page in [va, va+len(data)) is mapped and writable,
// and only then copies, so a failure leaves every byte in the
// destination range untouched (spec.md §4.1 and §8's atomicity
// invariant).
func CopyUser(m *mem.Memory, root mem.PPN, va uint32, data []byte) bool {
	if len(data) == 0 {
		return true
	}
	ok := eachPage(va, uint32(len(data)), func(pageVA uint32) bool {
		leaf, _, _, ok := walkLookup(m, root, pageVA)
		return ok && leaf.Writable()
	})
	if !ok {
		return false
	}
	return Copy(m, root, va, data)
}

// PeekWord performs one aligned 4-byte read through the walk, per
// spec.md §4.1.
func PeekWord(m *mem.Memory, root mem.PPN, va uint32) (uint32, bool) {
	leaf, off, _, ok := walkLookup(m, root, va)
	if !ok {
		return 0, false
	}
	return m.ReadWord(leaf.PPN(), off), true
}

// ReadBytes copies len(out) bytes starting at va into out, honoring
// page boundaries, with no permission check — the read-side
// counterpart of Copy, used by the kernel's own bookkeeping (reading
// a just-written result header back out of a window it controls).
func ReadBytes(m *mem.Memory, root mem.PPN, va uint32, out []byte) bool {
	read := 0
	for read < len(out) {
		cur := va + uint32(read)
		leaf, off, _, ok := walkLookup(m, root, cur)
		if !ok {
			return false
		}
		pg := m.Page(leaf.PPN())
		n := copy(out[read:], pg[off:])
		read += n
	}
	return true
}

// ReadUser is the permission-checked variant of ReadBytes: it first
// verifies every page in [va, va+len(out)) is mapped, user-accessible
// and readable, and only then reads, so a fault never returns partial
// data — the syscall layer's read_user_bytes primitive (spec.md
// §4.6).
func ReadUser(m *mem.Memory, root mem.PPN, va uint32, out []byte) bool {
	if len(out) == 0 {
		return true
	}
	ok := eachPage(va, uint32(len(out)), func(pageVA uint32) bool {
		leaf, _, _, ok := walkLookup(m, root, pageVA)
		return ok && leaf.Readable() && leaf.User()
	})
	if !ok {
		return false
	}
	return ReadBytes(m, root, va, out)
}

// CurrentRoot tracks which root the CPU considers active — the
// single side-channel spec.md §4.3 describes, updated explicitly on
// task switch and trap entry. It is not thread-safe because nothing
// in this core is concurrent (spec.md §5).
type CurrentRoot struct {
	root mem.PPN
}

func (c *CurrentRoot) Get() mem.PPN   { return c.root }
func (c *CurrentRoot) Set(p mem.PPN) { c.root = p }
