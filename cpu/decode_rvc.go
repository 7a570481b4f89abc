package cpu

// DecodeC decodes a 16-bit RVC instruction into its expanded
// equivalent Inst, with Size forced to 2 so the fetch loop advances PC
// correctly. Unsupported or reserved encodings (including any compressed
// floating-point op — out of scope per spec.md's non-goals) yield
// OpUnimp.
//
// Grounded on the base-opcode/quadrant dispatch shape of
// other_examples/…LMMilewski-riscv-emu__decode.go, generalized to the
// RVC quadrant table (RISC-V spec v2.2, chapter "C" extension).
func DecodeC(h uint16) Inst {
	op := h & 0x3
	funct3 := uint8(h >> 13 & 0x7)
	raw := uint32(h)

	cr := func(bits uint16) uint8 { return uint8(8 + bits&0x7) } // x8..x15

	switch op {
	case 0x0:
		return decodeCQuadrant0(h, funct3, cr, raw)
	case 0x1:
		return decodeCQuadrant1(h, funct3, cr, raw)
	case 0x2:
		return decodeCQuadrant2(h, funct3, raw)
	default:
		return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
	}
}

func decodeCQuadrant0(h uint16, funct3 uint8, cr func(uint16) uint8, raw uint32) Inst {
	rdp := cr(h >> 2)
	rs1p := cr(h >> 7)
	switch funct3 {
	case 0x0: // C.ADDI4SPN
		imm := (h>>7&0x30)<<0 | (h>>1&0x3c0)<<0 | (h>>4&0x4)<<0 | (h>>2&0x8)<<0
		nzuimm := uint32(h>>1&0x3c0) | uint32(h>>7&0x30) | uint32(h>>4&0x4) | uint32(h>>2&0x8)
		_ = imm
		if nzuimm == 0 {
			return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
		}
		return Inst{Op: OpADDI, Rd: rdp, Rs1: 2, Imm: int32(nzuimm), Size: 2, RawBytes: raw}
	case 0x2: // C.LW
		imm := uint32(h>>7&0x38) | uint32(h>>4&0x4) | uint32(h<<1&0x40)
		return Inst{Op: OpLW, Rd: rdp, Rs1: rs1p, Imm: int32(imm), Size: 2, RawBytes: raw}
	case 0x6: // C.SW
		rs2p := cr(h >> 2)
		imm := uint32(h>>7&0x38) | uint32(h>>4&0x4) | uint32(h<<1&0x40)
		return Inst{Op: OpSW, Rs1: rs1p, Rs2: rs2p, Imm: int32(imm), Size: 2, RawBytes: raw}
	default:
		return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
	}
}

func decodeCQuadrant1(h uint16, funct3 uint8, cr func(uint16) uint8, raw uint32) Inst {
	rd := uint8(h >> 7 & 0x1f)
	ci := func() int32 {
		// 6-bit signed immediate split across bit 12 and bits [6:2].
		v := uint32(h>>2&0x1f) | uint32(h>>7&0x20)
		return signExtend(v, 6)
	}
	switch funct3 {
	case 0x0: // C.ADDI / C.NOP
		return Inst{Op: OpADDI, Rd: rd, Rs1: rd, Imm: ci(), Size: 2, RawBytes: raw}
	case 0x1: // C.JAL (RV32 only): x1 <- pc+2, pc <- pc+imm
		imm := uint32(h>>1&0x800) | uint32(h>>7&0x10) | uint32(h>>1&0x300) | uint32(h<<2&0x400) |
			uint32(h>>1&0x40) | uint32(h<<1&0x80) | uint32(h>>2&0xe) | uint32(h<<3&0x20)
		return Inst{Op: OpJAL, Rd: 1, Imm: signExtend(imm, 12), Size: 2, RawBytes: raw}
	case 0x2: // C.LI
		return Inst{Op: OpADDI, Rd: rd, Rs1: 0, Imm: ci(), Size: 2, RawBytes: raw}
	case 0x3:
		if rd == 2 { // C.ADDI16SP
			v := uint32(h>>3&0x200) | uint32(h>>2&0x10) | uint32(h<<1&0x40) | uint32(h<<4&0x180) | uint32(h<<3&0x20)
			imm := signExtend(v, 10)
			if imm == 0 {
				return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
			}
			return Inst{Op: OpADDI, Rd: 2, Rs1: 2, Imm: imm, Size: 2, RawBytes: raw}
		}
		// C.LUI
		v := uint32(h)<<10&0x1f000 | uint32(h)<<5&0x20000
		imm := signExtend(v>>12, 6) << 12
		if imm == 0 || rd == 0 {
			return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
		}
		return Inst{Op: OpLUI, Rd: rd, Imm: imm, Size: 2, RawBytes: raw}
	case 0x4:
		return decodeCAlu(h, cr, raw)
	case 0x5: // C.J
		imm := uint32(h>>1&0x800) | uint32(h>>7&0x10) | uint32(h>>1&0x300) | uint32(h<<2&0x400) |
			uint32(h>>1&0x40) | uint32(h<<1&0x80) | uint32(h>>2&0xe) | uint32(h<<3&0x20)
		return Inst{Op: OpJAL, Rd: 0, Imm: signExtend(imm, 12), Size: 2, RawBytes: raw}
	case 0x6, 0x7: // C.BEQZ / C.BNEZ
		rs1p := cr(h >> 7)
		v := uint32(h>>4&0x100) | uint32(h>>7&0x18) | uint32(h<<1&0xc0) | uint32(h>>2&0x6) | uint32(h<<3&0x20)
		imm := signExtend(v, 9)
		op := OpBEQ
		if funct3 == 0x7 {
			op = OpBNE
		}
		return Inst{Op: op, Rs1: rs1p, Rs2: 0, Imm: imm, Size: 2, RawBytes: raw}
	default:
		return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
	}
}

func decodeCAlu(h uint16, cr func(uint16) uint8, raw uint32) Inst {
	rdp := cr(h >> 7)
	funct2 := h >> 10 & 0x3
	shamt := uint32(h>>2&0x1f) | uint32(h>>7&0x20)
	switch funct2 {
	case 0x0: // C.SRLI
		return Inst{Op: OpSRLI, Rd: rdp, Rs1: rdp, Imm: int32(shamt), Size: 2, RawBytes: raw}
	case 0x1: // C.SRAI
		return Inst{Op: OpSRAI, Rd: rdp, Rs1: rdp, Imm: int32(shamt), Size: 2, RawBytes: raw}
	case 0x2: // C.ANDI
		imm := signExtend(uint32(h>>2&0x1f)|uint32(h>>7&0x20), 6)
		return Inst{Op: OpANDI, Rd: rdp, Rs1: rdp, Imm: imm, Size: 2, RawBytes: raw}
	case 0x3:
		rs2p := cr(h >> 2)
		isWordVariant := h>>12&0x1 != 0 // bit 12 set selects the RV64-only *W forms; reserved here
		if isWordVariant {
			return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
		}
		switch h >> 5 & 0x3 {
		case 0x0:
			return Inst{Op: OpSUB, Rd: rdp, Rs1: rdp, Rs2: rs2p, Size: 2, RawBytes: raw}
		case 0x1:
			return Inst{Op: OpXOR, Rd: rdp, Rs1: rdp, Rs2: rs2p, Size: 2, RawBytes: raw}
		case 0x2:
			return Inst{Op: OpOR, Rd: rdp, Rs1: rdp, Rs2: rs2p, Size: 2, RawBytes: raw}
		case 0x3:
			return Inst{Op: OpAND, Rd: rdp, Rs1: rdp, Rs2: rs2p, Size: 2, RawBytes: raw}
		}
	}
	return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
}

func decodeCQuadrant2(h uint16, funct3 uint8, raw uint32) Inst {
	rd := uint8(h >> 7 & 0x1f)
	rs2 := uint8(h >> 2 & 0x1f)
	switch funct3 {
	case 0x0: // C.SLLI
		shamt := uint32(h>>2&0x1f) | uint32(h>>7&0x20)
		return Inst{Op: OpSLLI, Rd: rd, Rs1: rd, Imm: int32(shamt), Size: 2, RawBytes: raw}
	case 0x2: // C.LWSP
		if rd == 0 {
			return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
		}
		imm := uint32(h>>7&0x20) | uint32(h>>2&0x1c) | uint32(h<<4&0xc0)
		return Inst{Op: OpLW, Rd: rd, Rs1: 2, Imm: int32(imm), Size: 2, RawBytes: raw}
	case 0x4:
		bit12 := h>>12&0x1 != 0
		if !bit12 {
			if rs2 == 0 { // C.JR
				if rd == 0 {
					return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
				}
				return Inst{Op: OpJALR, Rd: 0, Rs1: rd, Imm: 0, Size: 2, RawBytes: raw}
			}
			// C.MV
			return Inst{Op: OpADD, Rd: rd, Rs1: 0, Rs2: rs2, Size: 2, RawBytes: raw}
		}
		if rd == 0 && rs2 == 0 {
			return Inst{Op: OpEBREAK, Size: 2, RawBytes: raw}
		}
		if rs2 == 0 { // C.JALR
			return Inst{Op: OpJALR, Rd: 1, Rs1: rd, Imm: 0, Size: 2, RawBytes: raw}
		}
		// C.ADD
		return Inst{Op: OpADD, Rd: rd, Rs1: rd, Rs2: rs2, Size: 2, RawBytes: raw}
	case 0x6: // C.SWSP
		imm := uint32(h>>7&0x3c) | uint32(h>>1&0xc0)
		return Inst{Op: OpSW, Rs1: 2, Rs2: rs2, Imm: int32(imm), Size: 2, RawBytes: raw}
	default:
		return Inst{Op: OpUnimp, Size: 2, RawBytes: raw}
	}
}
