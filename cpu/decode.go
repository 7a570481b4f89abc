package cpu

// DecodeResult is the outcome of decoding one instruction starting at
// a given PC, independent of 16/32-bit width.
type DecodeResult struct {
	Inst Inst
	Size uint8
}

// base opcode field, bits [6:2] of a 32-bit instruction (bits [1:0]
// are always 0b11 for a non-compressed instruction).
const (
	opLoad    = 0x00
	opMiscMem = 0x03
	opOpImm   = 0x04
	opAUIPC   = 0x05
	opStore   = 0x08
	opAMO     = 0x0B
	opOp      = 0x0C
	opLUI     = 0x0D
	opBranch  = 0x18
	opJALR    = 0x19
	opJAL     = 0x1B
	opSystem  = 0x1C
)

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// Decode32 decodes a 32-bit instruction word (already fetched little
// endian). Unknown or malformed encodings yield OpUnimp, which traps
// on execution rather than failing here — decoding is a pure,
// total function, per spec.md §4.2.
func Decode32(w uint32) Inst {
	rd := uint8(w >> 7 & 0x1f)
	rs1 := uint8(w >> 15 & 0x1f)
	rs2 := uint8(w >> 20 & 0x1f)
	funct3 := w >> 12 & 0x7
	funct7 := w >> 25 & 0x7f
	base := w >> 2 & 0x1f

	mk := func(op Op) Inst {
		return Inst{Op: op, Rd: rd, Rs1: rs1, Rs2: rs2, Size: 4, RawBytes: w}
	}

	switch base {
	case opLUI:
		in := mk(OpLUI)
		in.Imm = int32(w & 0xfffff000)
		return in
	case opAUIPC:
		in := mk(OpAUIPC)
		in.Imm = int32(w & 0xfffff000)
		return in
	case opJAL:
		in := mk(OpJAL)
		imm := (w>>11&(1<<20)) | (w & 0xff000) | (w >> 9 & 0x800) | (w >> 20 & 0x7fe)
		in.Imm = signExtend(imm, 21)
		return in
	case opJALR:
		if funct3 != 0 {
			return Inst{Op: OpUnimp, Size: 4, RawBytes: w}
		}
		in := mk(OpJALR)
		in.Imm = signExtend(w>>20, 12)
		return in
	case opBranch:
		imm := (w>>19&(1<<12)) | (w<<4&0x800) | (w>>20&0x7e0) | (w>>7&0x1e)
		in := Inst{Rd: 0, Rs1: rs1, Rs2: rs2, Size: 4, RawBytes: w, Imm: signExtend(imm, 13)}
		switch funct3 {
		case 0x0:
			in.Op = OpBEQ
		case 0x1:
			in.Op = OpBNE
		case 0x4:
			in.Op = OpBLT
		case 0x5:
			in.Op = OpBGE
		case 0x6:
			in.Op = OpBLTU
		case 0x7:
			in.Op = OpBGEU
		default:
			in.Op = OpUnimp
		}
		return in
	case opLoad:
		in := mk(opFor(funct3, loadOps[:]))
		in.Imm = signExtend(w>>20, 12)
		return in
	case opStore:
		imm := (w>>20&0xfe0) | (w >> 7 & 0x1f)
		op := OpUnimp
		switch funct3 {
		case 0x0:
			op = OpSB
		case 0x1:
			op = OpSH
		case 0x2:
			op = OpSW
		}
		return Inst{Op: op, Rs1: rs1, Rs2: rs2, Imm: signExtend(imm, 12), Size: 4, RawBytes: w}
	case opOpImm:
		in := mk(OpUnimp)
		switch funct3 {
		case 0x0:
			in.Op = OpADDI
			in.Imm = signExtend(w>>20, 12)
		case 0x2:
			in.Op = OpSLTI
			in.Imm = signExtend(w>>20, 12)
		case 0x3:
			in.Op = OpSLTIU
			in.Imm = signExtend(w>>20, 12)
		case 0x4:
			in.Op = OpXORI
			in.Imm = signExtend(w>>20, 12)
		case 0x6:
			in.Op = OpORI
			in.Imm = signExtend(w>>20, 12)
		case 0x7:
			in.Op = OpANDI
			in.Imm = signExtend(w>>20, 12)
		case 0x1:
			if funct7 == 0 {
				in.Op = OpSLLI
				in.Imm = int32(rs2)
			}
		case 0x5:
			switch funct7 {
			case 0x00:
				in.Op = OpSRLI
				in.Imm = int32(rs2)
			case 0x20:
				in.Op = OpSRAI
				in.Imm = int32(rs2)
			}
		}
		return in
	case opOp:
		return decodeOp(rd, rs1, rs2, funct3, funct7, w)
	case opMiscMem:
		if funct3 == 0 {
			return mk(OpFENCE)
		}
		if funct3 == 1 {
			return mk(OpFENCEI)
		}
		return Inst{Op: OpUnimp, Size: 4, RawBytes: w}
	case opSystem:
		return decodeSystem(rd, rs1, funct3, w)
	case opAMO:
		return decodeAMO(rd, rs1, rs2, funct3, funct7, w)
	default:
		return Inst{Op: OpUnimp, Size: 4, RawBytes: w}
	}
}

var loadOps = [8]Op{OpLB, OpLH, OpLW, OpUnimp, OpLBU, OpLHU, OpUnimp, OpUnimp}

func opFor(funct3 uint32, table []Op) Op {
	if int(funct3) >= len(table) {
		return OpUnimp
	}
	return table[funct3]
}

func decodeOp(rd, rs1, rs2 uint8, funct3, funct7, w uint32) Inst {
	in := Inst{Rd: rd, Rs1: rs1, Rs2: rs2, Size: 4, RawBytes: w, Op: OpUnimp}
	if funct7 == 0x01 { // M extension
		switch funct3 {
		case 0x0:
			in.Op = OpMUL
		case 0x1:
			in.Op = OpMULH
		case 0x2:
			in.Op = OpMULHSU
		case 0x3:
			in.Op = OpMULHU
		case 0x4:
			in.Op = OpDIV
		case 0x5:
			in.Op = OpDIVU
		case 0x6:
			in.Op = OpREM
		case 0x7:
			in.Op = OpREMU
		}
		return in
	}
	switch funct3 {
	case 0x0:
		if funct7 == 0x20 {
			in.Op = OpSUB
		} else {
			in.Op = OpADD
		}
	case 0x1:
		in.Op = OpSLL
	case 0x2:
		in.Op = OpSLT
	case 0x3:
		in.Op = OpSLTU
	case 0x4:
		in.Op = OpXOR
	case 0x5:
		if funct7 == 0x20 {
			in.Op = OpSRA
		} else {
			in.Op = OpSRL
		}
	case 0x6:
		in.Op = OpOR
	case 0x7:
		in.Op = OpAND
	}
	return in
}

func decodeSystem(rd, rs1 uint8, funct3, w uint32) Inst {
	imm12 := w >> 20
	if funct3 == 0 {
		switch imm12 {
		case 0x0:
			return Inst{Op: OpECALL, Size: 4, RawBytes: w}
		case 0x1:
			return Inst{Op: OpEBREAK, Size: 4, RawBytes: w}
		default:
			return Inst{Op: OpUnimp, Size: 4, RawBytes: w}
		}
	}
	csr := uint16(imm12)
	in := Inst{Rd: rd, Rs1: rs1, CSR: csr, Size: 4, RawBytes: w}
	switch funct3 {
	case 0x1:
		in.Op = OpCSRRW
	case 0x2:
		in.Op = OpCSRRS
	case 0x3:
		in.Op = OpCSRRC
	case 0x5:
		in.Op = OpCSRRWI
		in.Imm = int32(rs1)
	case 0x6:
		in.Op = OpCSRRSI
		in.Imm = int32(rs1)
	case 0x7:
		in.Op = OpCSRRCI
		in.Imm = int32(rs1)
	default:
		in.Op = OpUnimp
	}
	return in
}

func decodeAMO(rd, rs1, rs2 uint8, funct3, funct7, w uint32) Inst {
	in := Inst{Rd: rd, Rs1: rs1, Rs2: rs2, Size: 4, RawBytes: w, Op: OpUnimp}
	if funct3 != 0x2 { // only .w width supported
		return in
	}
	in.Rl = funct7&0x1 != 0
	in.Aq = funct7&0x2 != 0
	switch funct7 >> 2 {
	case 0x00:
		in.Op = OpAMOADDW
	case 0x01:
		in.Op = OpAMOSWAPW
	case 0x02:
		in.Op = OpLRW
	case 0x03:
		in.Op = OpSCW
	case 0x04:
		in.Op = OpAMOXORW
	case 0x08:
		in.Op = OpAMOORW
	case 0x0C:
		in.Op = OpAMOANDW
	case 0x10:
		in.Op = OpAMOMINW
	case 0x14:
		in.Op = OpAMOMAXW
	case 0x18:
		in.Op = OpAMOMINUW
	case 0x1C:
		in.Op = OpAMOMAXUW
	}
	return in
}
