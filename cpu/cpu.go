package cpu

import (
	"rvavm/mem"
	"rvavm/sv32"
)

// TrapKind classifies why Step returned a non-nil Trap.
type TrapKind int

const (
	TrapEcall TrapKind = iota
	TrapEbreak
	TrapPageFault
	TrapIllegal
)

// scause for an environment call, selected by current privilege —
// 8 = ecall from U, 9 = ecall from S, per spec.md §4.2.
const (
	CauseEcallU       uint32 = 8
	CauseEcallS       uint32 = 9
	CauseBreakpoint   uint32 = 3
	CauseIllegalInstr uint32 = 2
)

// Trap describes a synchronous exception raised by Step. The caller
// (package trap) is responsible for running the entry sequence and
// dispatch.
type Trap struct {
	Kind   TrapKind
	SCause uint32
	STval  uint32
}

// Machine is the complete interpreter state: registers, PC, privilege
// mode, CSRs, and the memory/translation it executes against. The
// zero value is not usable; use New.
//
// Grounded on the register-file/step-loop shape of
// other_examples/…wyf-ACCEPT-eth2030__pkg-zkvm-riscv_cpu.go (RVCPU),
// extended with the Sv32 current-root side channel and privilege mode
// spec.md §4.3 requires.
type Machine struct {
	X    [32]uint32
	PC   uint32
	Mode sv32.Mode
	CSR  CSRFile

	Mem  *mem.Memory
	Root *sv32.CurrentRoot

	// InstRet counts retired instructions, the metering hook spec.md
	// §5 describes ("the interpreter honors a caller-specified step or
	// instruction budget").
	InstRet uint64
}

// New builds a Machine sharing the given physical memory and current-root
// side channel (so the JIT and trap dispatcher observe the same root).
func New(m *mem.Memory, root *sv32.CurrentRoot) *Machine {
	return &Machine{Mem: m, Root: root, Mode: sv32.ModeSupervisor}
}

// GetX reads general register i; x0 always reads 0.
func (cpu *Machine) GetX(i uint8) uint32 {
	if i == 0 {
		return 0
	}
	return cpu.X[i]
}

// SetX writes general register i; writes to x0 are silently discarded,
// per spec.md §4.2.
func (cpu *Machine) SetX(i uint8, v uint32) {
	if i == 0 {
		return
	}
	cpu.X[i] = v
}

// fetchHalfword reads two bytes at va through the current root,
// checked for execute+current-privilege permission.
func (cpu *Machine) fetchHalfword(va uint32) (uint16, *sv32.Fault) {
	phys, fault := sv32.TranslateChecked(cpu.Mem, cpu.Root.Get(), va, sv32.AccessExecute, cpu.Mode)
	if fault != nil {
		return 0, fault
	}
	ppn := mem.PPN(phys / mem.PageSize)
	off := phys % mem.PageSize
	pg := cpu.Mem.Page(ppn)
	if off+1 >= mem.PageSize {
		// A halfword fetch straddling a page boundary reads the low
		// byte from this page and must re-walk for the high byte.
		lo := pg[off]
		hiPhys, fault := sv32.TranslateChecked(cpu.Mem, cpu.Root.Get(), va+1, sv32.AccessExecute, cpu.Mode)
		if fault != nil {
			return 0, fault
		}
		hiPPN := mem.PPN(hiPhys / mem.PageSize)
		hi := cpu.Mem.Page(hiPPN)[hiPhys%mem.PageSize]
		return uint16(lo) | uint16(hi)<<8, nil
	}
	return uint16(pg[off]) | uint16(pg[off+1])<<8, nil
}

// Fetch reads and decodes the instruction at the current PC, per
// spec.md §4.2: two bytes, and if both low bits are set, two more
// bytes for a 32-bit instruction, else a 16-bit RVC decode.
func (cpu *Machine) Fetch() (Inst, *sv32.Fault) {
	return cpu.FetchAt(cpu.PC)
}

// FetchAt reads and decodes the instruction at an arbitrary VA without
// touching cpu.PC — package jit's trace builder uses this to look
// ahead of the currently-executing instruction.
func (cpu *Machine) FetchAt(va uint32) (Inst, *sv32.Fault) {
	lo, fault := cpu.fetchHalfword(va)
	if fault != nil {
		return Inst{}, fault
	}
	if lo&0x3 != 0x3 {
		return DecodeC(lo), nil
	}
	hi, fault := cpu.fetchHalfword(va + 2)
	if fault != nil {
		return Inst{}, fault
	}
	w := uint32(lo) | uint32(hi)<<16
	return Decode32(w), nil
}

// Step fetches, decodes, and executes one instruction. It returns a
// non-nil Trap when the instruction raised a synchronous exception;
// otherwise PC has already been advanced by the handler.
func (cpu *Machine) Step() *Trap {
	inst, fault := cpu.Fetch()
	if fault != nil {
		return &Trap{Kind: TrapPageFault, SCause: fault.SCause, STval: fault.STval}
	}
	trap := cpu.Execute(inst)
	if trap == nil {
		cpu.InstRet++
	}
	return trap
}
