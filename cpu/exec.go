package cpu

import (
	"rvavm/mem"
	"rvavm/sv32"
)

// Execute runs one decoded instruction against the machine, advancing
// PC (for non-control-flow instructions) or setting it directly
// (branch/jump). It returns a non-nil *Trap for ecall, ebreak, an
// illegal/unsupported encoding, or a memory permission fault.
//
// Division-by-zero and signed-overflow behavior follows the RISC-V
// manual exactly, per spec.md §4.2: DIV by zero yields all-ones,
// REM by zero yields the dividend; signed DIV overflow yields the
// dividend, signed REM overflow yields zero. Shift amounts are masked
// to 5 bits. Misaligned accesses are never trapped (spec.md §4.2, §9).
func (cpu *Machine) Execute(in Inst) *Trap {
	size := uint32(in.Size)
	advance := func() { cpu.PC += size }

	switch in.Op {
	case OpUnimp:
		return &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr, STval: uint32(in.RawBytes)}

	case OpLUI:
		cpu.SetX(in.Rd, uint32(in.Imm))
		advance()
	case OpAUIPC:
		cpu.SetX(in.Rd, cpu.PC+uint32(in.Imm))
		advance()

	case OpJAL:
		ret := cpu.PC + size
		cpu.PC = cpu.PC + uint32(in.Imm)
		cpu.SetX(in.Rd, ret)
	case OpJALR:
		ret := cpu.PC + size
		target := (cpu.GetX(in.Rs1) + uint32(in.Imm)) &^ 1
		cpu.PC = target
		cpu.SetX(in.Rd, ret)

	case OpBEQ:
		cpu.branch(in, size, cpu.GetX(in.Rs1) == cpu.GetX(in.Rs2))
	case OpBNE:
		cpu.branch(in, size, cpu.GetX(in.Rs1) != cpu.GetX(in.Rs2))
	case OpBLT:
		cpu.branch(in, size, int32(cpu.GetX(in.Rs1)) < int32(cpu.GetX(in.Rs2)))
	case OpBGE:
		cpu.branch(in, size, int32(cpu.GetX(in.Rs1)) >= int32(cpu.GetX(in.Rs2)))
	case OpBLTU:
		cpu.branch(in, size, cpu.GetX(in.Rs1) < cpu.GetX(in.Rs2))
	case OpBGEU:
		cpu.branch(in, size, cpu.GetX(in.Rs1) >= cpu.GetX(in.Rs2))

	case OpLB, OpLH, OpLW, OpLBU, OpLHU:
		v, trap := cpu.load(in)
		if trap != nil {
			return trap
		}
		cpu.SetX(in.Rd, v)
		advance()
	case OpSB, OpSH, OpSW:
		if trap := cpu.store(in); trap != nil {
			return trap
		}
		advance()

	case OpADDI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)+uint32(in.Imm))
		advance()
	case OpSLTI:
		cpu.SetX(in.Rd, boolU32(int32(cpu.GetX(in.Rs1)) < in.Imm))
		advance()
	case OpSLTIU:
		cpu.SetX(in.Rd, boolU32(cpu.GetX(in.Rs1) < uint32(in.Imm)))
		advance()
	case OpXORI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)^uint32(in.Imm))
		advance()
	case OpORI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)|uint32(in.Imm))
		advance()
	case OpANDI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)&uint32(in.Imm))
		advance()
	case OpSLLI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)<<(uint32(in.Imm)&0x1f))
		advance()
	case OpSRLI:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)>>(uint32(in.Imm)&0x1f))
		advance()
	case OpSRAI:
		cpu.SetX(in.Rd, uint32(int32(cpu.GetX(in.Rs1))>>(uint32(in.Imm)&0x1f)))
		advance()

	case OpADD:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)+cpu.GetX(in.Rs2))
		advance()
	case OpSUB:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)-cpu.GetX(in.Rs2))
		advance()
	case OpSLL:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)<<(cpu.GetX(in.Rs2)&0x1f))
		advance()
	case OpSLT:
		cpu.SetX(in.Rd, boolU32(int32(cpu.GetX(in.Rs1)) < int32(cpu.GetX(in.Rs2))))
		advance()
	case OpSLTU:
		cpu.SetX(in.Rd, boolU32(cpu.GetX(in.Rs1) < cpu.GetX(in.Rs2)))
		advance()
	case OpXOR:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)^cpu.GetX(in.Rs2))
		advance()
	case OpSRL:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)>>(cpu.GetX(in.Rs2)&0x1f))
		advance()
	case OpSRA:
		cpu.SetX(in.Rd, uint32(int32(cpu.GetX(in.Rs1))>>(cpu.GetX(in.Rs2)&0x1f)))
		advance()
	case OpOR:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)|cpu.GetX(in.Rs2))
		advance()
	case OpAND:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)&cpu.GetX(in.Rs2))
		advance()

	case OpFENCE, OpFENCEI:
		advance() // no-op, per spec.md §4.5 supported set

	case OpECALL:
		cause := CauseEcallU
		if cpu.Mode == sv32.ModeSupervisor {
			cause = CauseEcallS
		}
		return &Trap{Kind: TrapEcall, SCause: cause}
	case OpEBREAK:
		return &Trap{Kind: TrapEbreak, SCause: CauseBreakpoint}

	case OpMUL:
		cpu.SetX(in.Rd, cpu.GetX(in.Rs1)*cpu.GetX(in.Rs2))
		advance()
	case OpMULH:
		p := int64(int32(cpu.GetX(in.Rs1))) * int64(int32(cpu.GetX(in.Rs2)))
		cpu.SetX(in.Rd, uint32(p>>32))
		advance()
	case OpMULHU:
		p := uint64(cpu.GetX(in.Rs1)) * uint64(cpu.GetX(in.Rs2))
		cpu.SetX(in.Rd, uint32(p>>32))
		advance()
	case OpMULHSU:
		p := int64(int32(cpu.GetX(in.Rs1))) * int64(cpu.GetX(in.Rs2))
		cpu.SetX(in.Rd, uint32(p>>32))
		advance()
	case OpDIV:
		a, b := int32(cpu.GetX(in.Rs1)), int32(cpu.GetX(in.Rs2))
		switch {
		case b == 0:
			cpu.SetX(in.Rd, 0xffffffff)
		case a == math32MinInt && b == -1:
			cpu.SetX(in.Rd, uint32(a))
		default:
			cpu.SetX(in.Rd, uint32(a/b))
		}
		advance()
	case OpDIVU:
		a, b := cpu.GetX(in.Rs1), cpu.GetX(in.Rs2)
		if b == 0 {
			cpu.SetX(in.Rd, 0xffffffff)
		} else {
			cpu.SetX(in.Rd, a/b)
		}
		advance()
	case OpREM:
		a, b := int32(cpu.GetX(in.Rs1)), int32(cpu.GetX(in.Rs2))
		switch {
		case b == 0:
			cpu.SetX(in.Rd, uint32(a))
		case a == math32MinInt && b == -1:
			cpu.SetX(in.Rd, 0)
		default:
			cpu.SetX(in.Rd, uint32(a%b))
		}
		advance()
	case OpREMU:
		a, b := cpu.GetX(in.Rs1), cpu.GetX(in.Rs2)
		if b == 0 {
			cpu.SetX(in.Rd, a)
		} else {
			cpu.SetX(in.Rd, a%b)
		}
		advance()

	case OpLRW, OpSCW, OpAMOSWAPW, OpAMOADDW, OpAMOXORW, OpAMOANDW, OpAMOORW,
		OpAMOMINW, OpAMOMAXW, OpAMOMINUW, OpAMOMAXUW:
		if trap := cpu.amo(in); trap != nil {
			return trap
		}
		advance()

	case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
		if trap := cpu.csrOp(in); trap != nil {
			return trap
		}
		advance()

	default:
		return &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr, STval: uint32(in.RawBytes)}
	}
	return nil
}

const math32MinInt = int32(-1) << 31

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (cpu *Machine) branch(in Inst, size uint32, taken bool) {
	if taken {
		cpu.PC += uint32(in.Imm)
	} else {
		cpu.PC += size
	}
}

// load performs the effective-address computation and the MMU read for
// a load instruction, returning the sign/zero-extended result.
func (cpu *Machine) load(in Inst) (uint32, *Trap) {
	addr := cpu.GetX(in.Rs1) + uint32(in.Imm)
	switch in.Op {
	case OpLW:
		v, trap := cpu.readN(addr, 4)
		return v, trap
	case OpLH:
		v, trap := cpu.readN(addr, 2)
		if trap != nil {
			return 0, trap
		}
		return uint32(int32(int16(uint16(v)))), nil
	case OpLHU:
		return cpu.readN(addr, 2)
	case OpLB:
		v, trap := cpu.readN(addr, 1)
		if trap != nil {
			return 0, trap
		}
		return uint32(int32(int8(uint8(v)))), nil
	case OpLBU:
		return cpu.readN(addr, 1)
	}
	return 0, &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr}
}

func (cpu *Machine) store(in Inst) *Trap {
	addr := cpu.GetX(in.Rs1) + uint32(in.Imm)
	v := cpu.GetX(in.Rs2)
	switch in.Op {
	case OpSW:
		return cpu.writeN(addr, 4, v)
	case OpSH:
		return cpu.writeN(addr, 2, v)
	case OpSB:
		return cpu.writeN(addr, 1, v)
	}
	return &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr}
}

// readN reads n bytes (1, 2, or 4) at addr, straddling page boundaries
// byte-by-byte so misaligned accesses (permitted, per spec.md §4.2)
// never assume a single page's worth of contiguous bytes.
func (cpu *Machine) readN(addr uint32, n int) (uint32, *Trap) {
	var v uint32
	for i := 0; i < n; i++ {
		phys, fault := sv32.TranslateChecked(cpu.Mem, cpu.Root.Get(), addr+uint32(i), sv32.AccessRead, cpu.Mode)
		if fault != nil {
			return 0, &Trap{Kind: TrapPageFault, SCause: fault.SCause, STval: fault.STval}
		}
		ppn := mem.PPN(phys / mem.PageSize)
		b := cpu.Mem.Page(ppn)[phys%mem.PageSize]
		v |= uint32(b) << (8 * i)
	}
	return v, nil
}

func (cpu *Machine) writeN(addr uint32, n int, v uint32) *Trap {
	for i := 0; i < n; i++ {
		phys, fault := sv32.TranslateChecked(cpu.Mem, cpu.Root.Get(), addr+uint32(i), sv32.AccessWrite, cpu.Mode)
		if fault != nil {
			return &Trap{Kind: TrapPageFault, SCause: fault.SCause, STval: fault.STval}
		}
		ppn := mem.PPN(phys / mem.PageSize)
		cpu.Mem.Page(ppn)[phys%mem.PageSize] = byte(v >> (8 * i))
	}
	return nil
}

// amo implements the A-extension handlers the interpreter (but not the
// JIT, per spec.md §9) supports: a plain non-atomic read-modify-write,
// since this core is single-threaded (spec.md §5) and there is no
// concurrent hart to race with.
func (cpu *Machine) amo(in Inst) *Trap {
	addr := cpu.GetX(in.Rs1)
	old, trap := cpu.readN(addr, 4)
	if trap != nil {
		return trap
	}
	rs2 := cpu.GetX(in.Rs2)
	var result uint32
	switch in.Op {
	case OpLRW:
		cpu.SetX(in.Rd, old)
		return nil
	case OpSCW:
		if trap := cpu.writeN(addr, 4, rs2); trap != nil {
			return trap
		}
		cpu.SetX(in.Rd, 0) // always succeeds: no other hart to lose the reservation to
		return nil
	case OpAMOSWAPW:
		result = rs2
	case OpAMOADDW:
		result = old + rs2
	case OpAMOXORW:
		result = old ^ rs2
	case OpAMOANDW:
		result = old & rs2
	case OpAMOORW:
		result = old | rs2
	case OpAMOMINW:
		if int32(old) < int32(rs2) {
			result = old
		} else {
			result = rs2
		}
	case OpAMOMAXW:
		if int32(old) > int32(rs2) {
			result = old
		} else {
			result = rs2
		}
	case OpAMOMINUW:
		if old < rs2 {
			result = old
		} else {
			result = rs2
		}
	case OpAMOMAXUW:
		if old > rs2 {
			result = old
		} else {
			result = rs2
		}
	}
	if trap := cpu.writeN(addr, 4, result); trap != nil {
		return trap
	}
	cpu.SetX(in.Rd, old)
	return nil
}

// csrOp implements CSRRW/CSRRS/CSRRC and their immediate forms.
// Accessing status registers from user mode is a fault, matching the
// status-register access rule spec.md's CPU design carries over from
// its RiSC-32 lineage (WSR/RSR fault in user mode).
func (cpu *Machine) csrOp(in Inst) *Trap {
	if cpu.Mode == sv32.ModeUser {
		return &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr, STval: uint32(in.CSR)}
	}
	old, ok := cpu.CSR.Read(in.CSR)
	if !ok {
		return &Trap{Kind: TrapIllegal, SCause: CauseIllegalInstr, STval: uint32(in.CSR)}
	}
	var operand uint32
	isImm := in.Op == OpCSRRWI || in.Op == OpCSRRSI || in.Op == OpCSRRCI
	if isImm {
		operand = uint32(in.Imm)
	} else {
		operand = cpu.GetX(in.Rs1)
	}
	var next uint32
	switch in.Op {
	case OpCSRRW, OpCSRRWI:
		next = operand
	case OpCSRRS, OpCSRRSI:
		next = old | operand
	case OpCSRRC, OpCSRRCI:
		next = old &^ operand
	}
	cpu.CSR.Write(in.CSR, next)
	cpu.SetX(in.Rd, old)
	return nil
}
