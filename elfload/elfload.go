// Package elfload parses an RV32 ELF image into the pre-parsed
// code/rodata/bss-plus-entry form package task's PrepProgramTask
// consumes (spec.md §4.8): it never touches an address space itself.
//
// Grounded on biscuit/src/kernel/chentry.go's use of the standard
// library's debug/elf (header validation against a fixed machine/class/
// endianness, here EM_RISCV/ELFCLASS32/ELFDATA2LSB in place of
// chentry's EM_X86_64/ELFCLASS64 checks).
package elfload

import (
	"debug/elf"
	"fmt"
	"io"

	"rvavm/task"
)

// Load validates and flattens an RV32 ELF executable read from r into
// a task.Image: every loadable segment copied to its file-relative
// position within a single byte buffer based at the lowest segment
// VA, plus the entry point's offset from that base.
func Load(r io.ReaderAt) (task.Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return task.Image{}, fmt.Errorf("elfload: %w", err)
	}
	defer f.Close()

	if err := check(f); err != nil {
		return task.Image{}, err
	}

	var base uint32 = 0xffffffff
	var top uint32
	type seg struct {
		va   uint32
		data []byte
	}
	var segs []seg
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		va := uint32(p.Vaddr)
		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil && err != io.EOF {
			return task.Image{}, fmt.Errorf("elfload: reading segment: %w", err)
		}
		segs = append(segs, seg{va: va, data: data})
		if va < base {
			base = va
		}
		end := va + uint32(p.Memsz)
		if end > top {
			top = end
		}
	}
	if len(segs) == 0 {
		return task.Image{}, fmt.Errorf("elfload: no PT_LOAD segments")
	}

	buf := make([]byte, top-base)
	for _, s := range segs {
		copy(buf[s.va-base:], s.data)
	}

	entry := uint32(f.Entry)
	if entry < base || entry >= top {
		return task.Image{}, fmt.Errorf("elfload: entry %#x outside image [%#x, %#x)", entry, base, top)
	}

	return task.Image{Bytes: buf, EntryOff: entry - base}, nil
}

func check(f *elf.File) error {
	if f.Class != elf.ELFCLASS32 {
		return fmt.Errorf("elfload: not a 32-bit elf")
	}
	if f.Data != elf.ELFDATA2LSB {
		return fmt.Errorf("elfload: not little-endian")
	}
	if f.Machine != elf.EM_RISCV {
		return fmt.Errorf("elfload: not a RISC-V elf")
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return fmt.Errorf("elfload: not an executable elf")
	}
	return nil
}
