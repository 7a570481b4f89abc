// Package disasm renders raw instruction bytes as human-readable
// mnemonics for diagnostics — it is never on the execution path (no
// other package of this module calls it); package cpu's own decoder is
// what the interpreter and JIT actually execute against.
//
// Wraps golang.org/x/arch/riscv64/riscv64asm: its instruction set is a
// strict superset of RV32IMAC's base+compressed encodings (the extra
// RV64-only opcodes, e.g. ADDIW, simply never appear in an RV32
// program), so it's a faithful diagnostic decoder for this core
// without needing an RV32-specific disassembler from the pack.
package disasm

import (
	"fmt"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// Format decodes one instruction, 2 or 4 raw bytes at the start of
// buf, and renders it as a mnemonic string. On a decode failure it
// returns a placeholder string rather than an error, since this is a
// best-effort diagnostic path that must never itself abort a trace
// dump.
func Format(buf []byte) string {
	inst, err := riscv64asm.Decode(buf)
	if err != nil {
		return fmt.Sprintf("<bad: % x>", firstBytes(buf))
	}
	return inst.String()
}

func firstBytes(buf []byte) []byte {
	n := 4
	if len(buf) < n {
		n = len(buf)
	}
	return buf[:n]
}

// FormatWord is a convenience wrapper over Format for a single raw
// 32-bit little-endian instruction word.
func FormatWord(w uint32) string {
	buf := []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
	return Format(buf)
}
