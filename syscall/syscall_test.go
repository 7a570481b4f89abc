package syscall

import (
	"encoding/binary"
	"testing"

	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/state"
	"rvavm/sv32"
	"rvavm/task"
)

func newTestSetup(t *testing.T) (*cpu.Machine, *task.Table, *Table, state.Address) {
	t.Helper()
	m := mem.New(4 << 20)
	kernelRoot, ok := m.AllocRoot()
	if !ok {
		t.Fatal("alloc kernel root")
	}
	root := &sv32.CurrentRoot{}
	root.Set(kernelRoot)
	mach := cpu.New(m, root)
	tasks, ok := task.NewTable(m, root, kernelRoot)
	if !ok {
		t.Fatal("new task table")
	}
	ledger := state.NewLedger()
	tbl := NewTable(ledger, tasks)

	img := task.Image{Bytes: []byte{0x73, 0x00, 0x10, 0x00}, EntryOff: 0} // ebreak, unused here
	to := state.Address{0xAA}
	from := state.Address{0xBB}
	_, ok = tasks.RunTask(mach, to, from, img, []byte("payload"))
	if !ok {
		t.Fatal("run task")
	}
	return mach, tasks, tbl, to
}

func writeUser(t *testing.T, m *cpu.Machine, va uint32, data []byte) {
	t.Helper()
	if !sv32.CopyUser(m.Mem, m.Root.Get(), va, data) {
		t.Fatalf("write user bytes at %#x", va)
	}
}

func packLens(domainLen, keyLen int) uint32 {
	return uint32(keyLen)<<16 | uint32(domainLen)
}

func TestStorageSetThenGet(t *testing.T) {
	m, _, tbl, self := newTestSetup(t)

	const selfVA = task.ResultHeaderVA + 0x200
	const domainVA = selfVA + 32
	const keyVA = selfVA + 48
	const valVA = selfVA + 64

	domain := []byte("dom")
	key := []byte("key")
	val := []byte("value!!")
	writeUser(t, m, selfVA, self[:])
	writeUser(t, m, domainVA, domain)
	writeUser(t, m, keyVA, key)
	writeUser(t, m, valVA, val)

	m.SetX(regA7, IDStorageSet)
	m.SetX(regA1, selfVA)
	m.SetX(regA1+1, domainVA)
	m.SetX(regA1+2, keyVA)
	m.SetX(regA1+3, packLens(len(domain), len(key)))
	m.SetX(regA1+4, valVA)
	m.SetX(regA1+5, uint32(len(val)))
	tbl.Dispatch(m)
	if ret := m.GetX(regA0); ret != errOK {
		t.Fatalf("storage_set returned %d, want 0", ret)
	}

	m.SetX(regA7, IDStorageGet)
	m.SetX(regA1, selfVA)
	m.SetX(regA1+1, domainVA)
	m.SetX(regA1+2, keyVA)
	m.SetX(regA1+3, packLens(len(domain), len(key)))
	tbl.Dispatch(m)
	va := m.GetX(regA0)
	if va == 0 {
		t.Fatal("storage_get returned 0, want a buffer VA")
	}
	var lenPrefix [4]byte
	if !sv32.ReadUser(m.Mem, m.Root.Get(), va, lenPrefix[:]) {
		t.Fatal("read length prefix")
	}
	n := binary.LittleEndian.Uint32(lenPrefix[:])
	got := make([]byte, n)
	if !sv32.ReadUser(m.Mem, m.Root.Get(), va+4, got) {
		t.Fatal("read back value")
	}
	if string(got) != string(val) {
		t.Fatalf("got %q, want %q", got, val)
	}
}

func TestStorageGetMissReturnsZero(t *testing.T) {
	m, _, tbl, self := newTestSetup(t)
	const selfVA = task.ResultHeaderVA + 0x200
	const domainVA = selfVA + 32
	const keyVA = selfVA + 48
	writeUser(t, m, selfVA, self[:])
	writeUser(t, m, domainVA, []byte("d"))
	writeUser(t, m, keyVA, []byte("nope"))

	m.SetX(regA7, IDStorageGet)
	m.SetX(regA1, selfVA)
	m.SetX(regA1+1, domainVA)
	m.SetX(regA1+2, keyVA)
	m.SetX(regA1+3, packLens(1, 4))
	tbl.Dispatch(m)
	if got := m.GetX(regA0); got != 0 {
		t.Fatalf("storage_get on a miss returned %d, want 0", got)
	}
}

func TestStorageGetRejectsAddressMismatch(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	const wrongVA = task.ResultHeaderVA + 0x200
	const domainVA = wrongVA + 32
	const keyVA = wrongVA + 48
	wrong := state.Address{0xFF}
	writeUser(t, m, wrongVA, wrong[:])
	writeUser(t, m, domainVA, []byte("d"))
	writeUser(t, m, keyVA, []byte("k"))

	m.SetX(regA7, IDStorageGet)
	m.SetX(regA1, wrongVA)
	m.SetX(regA1+1, domainVA)
	m.SetX(regA1+2, keyVA)
	m.SetX(regA1+3, packLens(1, 1))
	tbl.Dispatch(m)
	if got := m.GetX(regA0); got != 0 {
		t.Fatalf("storage_get with mismatched address returned %d, want 0", got)
	}
}

func TestAllocAdvancesHeapPointer(t *testing.T) {
	m, tasks, tbl, _ := newTestSetup(t)
	before := tasks.Tasks[tasks.Current].HeapPtr

	m.SetX(regA7, IDAlloc)
	m.SetX(regA1, 64)
	m.SetX(regA1+1, 8)
	tbl.Dispatch(m)
	got := m.GetX(regA0)
	if got != before {
		t.Fatalf("alloc returned %#x, want current heap ptr %#x", got, before)
	}
	if tasks.Tasks[tasks.Current].HeapPtr != before+64 {
		t.Fatalf("heap ptr = %#x, want %#x", tasks.Tasks[tasks.Current].HeapPtr, before+64)
	}
}

func TestAllocRejectsZeroSize(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	m.SetX(regA7, IDAlloc)
	m.SetX(regA1, 0)
	m.SetX(regA1+1, 8)
	tbl.Dispatch(m)
	if got := m.GetX(regA0); got != 0 {
		t.Fatalf("alloc(0, 8) returned %d, want 0", got)
	}
}

func TestAllocRejectsNonPowerOfTwoAlign(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	m.SetX(regA7, IDAlloc)
	m.SetX(regA1, 16)
	m.SetX(regA1+1, 3)
	tbl.Dispatch(m)
	if got := m.GetX(regA0); got != 0 {
		t.Fatalf("alloc(16, 3) returned %d, want 0", got)
	}
}

func TestAllocRejectsOutOfWindowSize(t *testing.T) {
	m, tasks, tbl, _ := newTestSetup(t)
	cur := tasks.Tasks[tasks.Current]
	tooBig := cur.AS.VABase + cur.AS.VALen - cur.HeapPtr + mem.PageSize

	m.SetX(regA7, IDAlloc)
	m.SetX(regA1, tooBig)
	m.SetX(regA1+1, 8)
	tbl.Dispatch(m)
	if got := m.GetX(regA0); got != 0 {
		t.Fatalf("out-of-window alloc returned %d, want 0", got)
	}
}

func TestTransferMovesBalanceFromCaller(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	caller := state.Address{0xBB} // the "from" field RunTask was set up with
	tbl.Ledger.Credit(caller, 100)

	const destVA = task.ResultHeaderVA + 0x200
	dest := state.Address{0xCC}
	writeUser(t, m, destVA, dest[:])

	m.SetX(regA7, IDTransfer)
	m.SetX(regA1+1, destVA)
	m.SetX(regA1+2, 40)
	m.SetX(regA1+3, 0)
	tbl.Dispatch(m)
	if ret := m.GetX(regA0); ret != 0 {
		t.Fatalf("transfer returned %d, want 0 (success)", ret)
	}
	if got := tbl.Ledger.Balance(dest); bytesToU64(got) != 40 {
		t.Fatalf("dest balance = %d, want 40", bytesToU64(got))
	}
	if got := tbl.Ledger.Balance(caller); bytesToU64(got) != 60 {
		t.Fatalf("caller balance = %d, want 60", bytesToU64(got))
	}
}

func TestTransferInsufficientFundsFails(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	const destVA = task.ResultHeaderVA + 0x200
	dest := state.Address{0xDD}
	writeUser(t, m, destVA, dest[:])

	m.SetX(regA7, IDTransfer)
	m.SetX(regA1+1, destVA)
	m.SetX(regA1+2, 1)
	m.SetX(regA1+3, 0)
	tbl.Dispatch(m)
	if ret := m.GetX(regA0); ret != 1 {
		t.Fatalf("transfer with no funds returned %d, want 1 (failure)", ret)
	}
}

func TestBalanceReturnsBufferVA(t *testing.T) {
	m, _, tbl, _ := newTestSetup(t)
	addr := state.Address{0xEE}
	tbl.Ledger.Credit(addr, 7)

	const addrVA = task.ResultHeaderVA + 0x200
	writeUser(t, m, addrVA, addr[:])

	m.SetX(regA7, IDBalance)
	m.SetX(regA1, addrVA)
	tbl.Dispatch(m)
	va := m.GetX(regA0)
	if va == 0 {
		t.Fatal("balance returned 0, want a buffer VA")
	}
	got := make([]byte, 16)
	if !sv32.ReadUser(m.Mem, m.Root.Get(), va, got) {
		t.Fatal("read back balance")
	}
	if bytesToU64(got) != 7 {
		t.Fatalf("balance = %d, want 7", bytesToU64(got))
	}
}

func bytesToU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
