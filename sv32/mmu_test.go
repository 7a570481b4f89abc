package sv32

import (
	"testing"

	"rvavm/mem"
)

func newTestMem(t *testing.T) (*mem.Memory, mem.PPN) {
	t.Helper()
	m := mem.New(1 << 20) // 1 MiB, 256 pages
	root, ok := m.AllocRoot()
	if !ok {
		t.Fatal("failed to allocate root")
	}
	return m, root
}

func TestMapRangeThenTranslate(t *testing.T) {
	m, root := newTestMem(t)
	if !MapRange(m, root, 0x1000, 0x2000, KernelRW()) {
		t.Fatal("MapRange failed")
	}
	for _, va := range []uint32{0x1000, 0x1800, 0x2000, 0x2fff} {
		if _, ok := Translate(m, root, va); !ok {
			t.Errorf("translate(%#x) failed, want success", va)
		}
	}
	if _, ok := Translate(m, root, 0x3000); ok {
		t.Errorf("translate(0x3000) succeeded, want failure (past mapped range)")
	}
}

func TestMapRangeZeroLengthIsNoop(t *testing.T) {
	m, root := newTestMem(t)
	if !MapRange(m, root, 0x5000, 0, KernelRW()) {
		t.Fatal("zero-length MapRange should return true")
	}
	if _, ok := Translate(m, root, 0x5000); ok {
		t.Error("zero-length MapRange should not create a translation")
	}
}

func TestMapPhysicalRangeAlignment(t *testing.T) {
	m, root := newTestMem(t)
	if MapPhysicalRange(m, root, 0x1000, 0x1004, mem.PageSize, KernelRW()) {
		t.Error("misaligned phys should be rejected")
	}
	if MapPhysicalRange(m, root, 0x1004, 0x2000, mem.PageSize, KernelRW()) {
		t.Error("misaligned va should be rejected")
	}
	if _, ok := Translate(m, root, 0x1000); ok {
		t.Error("rejected MapPhysicalRange must leave no partial mapping")
	}
}

func TestMirrorIntoStopsAtFirstGap(t *testing.T) {
	m, rootSrc := newTestMem(t)
	rootDst, ok := m.AllocRoot()
	if !ok {
		t.Fatal("alloc rootDst")
	}
	// Map only the first of two pages in the source range.
	if !MapRange(m, rootSrc, 0x4000, mem.PageSize, UserRWX()) {
		t.Fatal("MapRange src failed")
	}
	ok = MirrorInto(m, rootSrc, rootDst, 0x4000, 2*mem.PageSize, UserRWX())
	if ok {
		t.Fatal("MirrorInto should fail: second page missing in source")
	}
	if _, ok := Translate(m, rootDst, 0x4000); !ok {
		t.Error("page before the gap should still be mirrored")
	}
	if _, ok := Translate(m, rootDst, 0x4000+mem.PageSize); ok {
		t.Error("page at/after the gap must be untouched")
	}
}

func TestCopyUserAtomicAcrossPageBoundary(t *testing.T) {
	m, root := newTestMem(t)
	if !MapRange(m, root, 0x1000, mem.PageSize, KernelRW()) {
		t.Fatal("map first page RW")
	}
	if !MapRange(m, root, 0x2000, mem.PageSize, Perm{R: true}) {
		t.Fatal("map second page RO")
	}
	before0, _ := PeekWord(m, root, 0x1ffc)
	before1, _ := PeekWord(m, root, 0x2000)

	data := make([]byte, 8)
	for i := range data {
		data[i] = 0xAA
	}
	if CopyUser(m, root, 0x1ffc, data) {
		t.Fatal("CopyUser should fail: destination straddles a read-only page")
	}
	after0, _ := PeekWord(m, root, 0x1ffc)
	after1, _ := PeekWord(m, root, 0x2000)
	if before0 != after0 || before1 != after1 {
		t.Error("CopyUser must not modify any byte when it fails")
	}
}

func TestRemapTighterPermsRejectsWrite(t *testing.T) {
	m, root := newTestMem(t)
	if !MapRange(m, root, 0x1000, mem.PageSize, KernelRW()) {
		t.Fatal("map RW")
	}
	if !MapRange(m, root, 0x1000, mem.PageSize, Perm{R: true}) {
		t.Fatal("remap RO")
	}
	if CopyUser(m, root, 0x1000, []byte{1, 2, 3, 4}) {
		t.Error("CopyUser should fail after remap to read-only")
	}
}

func TestAllocRootExhaustion(t *testing.T) {
	m := mem.New(4 * mem.PageSize) // pages: 0 reserved, 1,2,3 free
	var last mem.PPN
	for i := 0; i < 3; i++ {
		ppn, ok := m.AllocRoot()
		if !ok {
			t.Fatalf("alloc %d should have succeeded", i)
		}
		last = ppn
	}
	if _, ok := m.AllocRoot(); ok {
		t.Error("alloc should fail once pages are exhausted")
	}
	m.BumpTo(mem.PPN(4))
	if _, ok := m.AllocRoot(); ok {
		t.Error("alloc after bump_to(total) must return none")
	}
	_ = last
}

func TestTranslateCheckedPermissionFault(t *testing.T) {
	m, root := newTestMem(t)
	if !MapRange(m, root, 0x1000, mem.PageSize, KernelRW()) {
		t.Fatal("map kernel-only page")
	}
	_, fault := TranslateChecked(m, root, 0x1000, AccessRead, ModeUser)
	if fault == nil {
		t.Fatal("user access to a kernel-only page must fault")
	}
	if fault.SCause != CauseLoadPageFault {
		t.Errorf("scause = %d, want %d", fault.SCause, CauseLoadPageFault)
	}
	if _, fault := TranslateChecked(m, root, 0x1000, AccessRead, ModeSupervisor); fault != nil {
		t.Error("supervisor access to a kernel-only page should succeed")
	}
}
