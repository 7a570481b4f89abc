package bundle

import (
	"encoding/binary"
	"testing"

	"rvavm/state"
)

func encodeLE(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

// elfImage wraps code in a minimal ELF32/EM_RISCV executable: one
// PT_LOAD segment at VA 0 holding code, with the entry point at VA 0.
func elfImage(code []byte) []byte {
	const ehsize, phentsize = 52, 32
	le := binary.LittleEndian
	buf := make([]byte, ehsize+phentsize, ehsize+phentsize+len(code))
	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1}) // ELFCLASS32, ELFDATA2LSB, EV_CURRENT
	le.PutUint16(buf[16:], 2)                         // ET_EXEC
	le.PutUint16(buf[18:], 243)                       // EM_RISCV
	le.PutUint32(buf[20:], 1)                         // e_version
	le.PutUint32(buf[28:], ehsize)                    // e_phoff
	le.PutUint16(buf[40:], ehsize)                    // e_ehsize
	le.PutUint16(buf[42:], phentsize)                 // e_phentsize
	le.PutUint16(buf[44:], 1)                         // e_phnum
	ph := buf[ehsize:]
	le.PutUint32(ph[0:], 1)                  // PT_LOAD
	le.PutUint32(ph[4:], ehsize+phentsize)   // p_offset
	le.PutUint32(ph[16:], uint32(len(code))) // p_filesz
	le.PutUint32(ph[20:], uint32(len(code))) // p_memsz
	le.PutUint32(ph[24:], 5)                 // PF_R|PF_X
	le.PutUint32(ph[28:], 0x1000)            // p_align
	return append(buf, code...)
}

func TestNoVMTransactionIsPlainTransfer(t *testing.T) {
	d, err := NewDriver(4<<20, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	from := state.Address{0x01}
	to := state.Address{0x02}
	d.Ledger.Credit(from, 1000)

	r, err := d.Run(Transaction{To: to, From: from, Value: 250})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success {
		t.Fatalf("receipt = %+v, want success", r)
	}
	if got := d.Ledger.Balance(to); bytesToU64(got) != 250 {
		t.Fatalf("dest balance = %d, want 250", bytesToU64(got))
	}
	if got := d.Ledger.Balance(from); bytesToU64(got) != 750 {
		t.Fatalf("source balance = %d, want 750", bytesToU64(got))
	}
}

func TestProgramTransactionRunsToEbreak(t *testing.T) {
	d, err := NewDriver(4<<20, 10_000)
	if err != nil {
		t.Fatal(err)
	}
	to := state.Address{0x03}
	from := state.Address{0x04}
	d.CreateAccount(to, elfImage(encodeLE(0x00100073))) // a single ebreak

	r, err := d.Run(Transaction{To: to, From: from})
	if err != nil {
		t.Fatal(err)
	}
	// No result header was ever written by the (trivial) program, so
	// the zero-valued header decodes as success=false.
	if r.Success {
		t.Fatalf("receipt = %+v, want success=false for an unwritten header", r)
	}
	if d.Tasks.Current != 0 {
		t.Fatalf("current task after completion = %d, want kernel (0)", d.Tasks.Current)
	}
}

func bytesToU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
