package cpu

// CSR addresses this core recognizes, per spec.md §3/§4.4. Only the
// supervisor-level trap CSRs are modeled — this core never enters
// machine mode.
const (
	CSRSstatus  uint16 = 0x100
	CSRStvec    uint16 = 0x105
	CSRSscratch uint16 = 0x140
	CSRSepc     uint16 = 0x141
	CSRScause   uint16 = 0x142
	CSRStval    uint16 = 0x143
	CSRSatp     uint16 = 0x180
)

// SstatusSPP is the bit recording the privilege mode a trap was taken
// from: 0 = U, 1 = S.
const SstatusSPP uint32 = 1 << 8

// CSRFile holds the subset of control/status registers spec.md §3/§4.4
// names. Kernel-mode code (the trap entry stub, trampoline builder)
// reads and writes these fields directly; guest code only reaches
// them through CSRRW/CSRRS/CSRRC and friends, gated by Mode.
type CSRFile struct {
	Sstatus  uint32
	Sepc     uint32
	Scause   uint32
	Stval    uint32
	Stvec    uint32
	Sscratch uint32
	Satp     uint32
}

// Read returns the value of the named CSR and whether it exists.
func (c *CSRFile) Read(addr uint16) (uint32, bool) {
	switch addr {
	case CSRSstatus:
		return c.Sstatus, true
	case CSRStvec:
		return c.Stvec, true
	case CSRSscratch:
		return c.Sscratch, true
	case CSRSepc:
		return c.Sepc, true
	case CSRScause:
		return c.Scause, true
	case CSRStval:
		return c.Stval, true
	case CSRSatp:
		return c.Satp, true
	default:
		return 0, false
	}
}

// Write sets the named CSR and reports whether it exists.
func (c *CSRFile) Write(addr uint16, v uint32) bool {
	switch addr {
	case CSRSstatus:
		c.Sstatus = v
	case CSRStvec:
		c.Stvec = v
	case CSRSscratch:
		c.Sscratch = v
	case CSRSepc:
		c.Sepc = v
	case CSRScause:
		c.Scause = v
	case CSRStval:
		c.Stval = v
	case CSRSatp:
		c.Satp = v
	default:
		return false
	}
	return true
}
