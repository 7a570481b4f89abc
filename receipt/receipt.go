// Package receipt encodes and decodes the bundle-level result: the
// kernel task's result header (a fixed four-word pointer+length
// struct, spec.md §6) and the per-transaction receipt the bundle
// driver hands back to its caller.
//
// Grounded on biscuit/src/kernel/chentry.go's use of encoding/binary
// for fixed-layout header I/O, and on
// original_source/crates/kernel/src/bootloader/result.rs for the
// round-trip encode/decode contract the Design Notes call out
// explicitly (spec.md §9): encoding a header and decoding it back
// must reproduce the original fields exactly.
package receipt

import (
	"encoding/binary"
	"fmt"

	"rvavm/cpu"
	"rvavm/mem"
	"rvavm/sv32"
	"rvavm/task"
)

// KernelResultHeader is the fixed 16-byte structure the kernel task
// writes at ResultHeaderVA of its own window on completion: pointers
// and lengths into that same window, not inline data (spec.md §6).
type KernelResultHeader struct {
	ReceiptsPtr uint32
	ReceiptsLen uint32
	StatePtr    uint32
	StateLen    uint32
}

const kernelResultHeaderLen = 16

// Encode writes h as 16 little-endian bytes, in field order.
func (h KernelResultHeader) Encode() []byte {
	buf := make([]byte, kernelResultHeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.ReceiptsPtr)
	binary.LittleEndian.PutUint32(buf[4:8], h.ReceiptsLen)
	binary.LittleEndian.PutUint32(buf[8:12], h.StatePtr)
	binary.LittleEndian.PutUint32(buf[12:16], h.StateLen)
	return buf
}

// DecodeKernelResultHeader is Encode's inverse.
func DecodeKernelResultHeader(buf []byte) (KernelResultHeader, error) {
	if len(buf) < kernelResultHeaderLen {
		return KernelResultHeader{}, fmt.Errorf("receipt: short header (%d bytes)", len(buf))
	}
	return KernelResultHeader{
		ReceiptsPtr: binary.LittleEndian.Uint32(buf[0:4]),
		ReceiptsLen: binary.LittleEndian.Uint32(buf[4:8]),
		StatePtr:    binary.LittleEndian.Uint32(buf[8:12]),
		StateLen:    binary.LittleEndian.Uint32(buf[12:16]),
	}, nil
}

// ReadKernelResultHeader reads and decodes the kernel task's result
// header out of its own window at task.ResultHeaderVA.
func ReadKernelResultHeader(m *cpu.Machine, root mem.PPN) (KernelResultHeader, error) {
	buf := make([]byte, kernelResultHeaderLen)
	if !sv32.ReadBytes(m.Mem, root, task.ResultHeaderVA, buf) {
		return KernelResultHeader{}, fmt.Errorf("receipt: unmapped result header at %#x", task.ResultHeaderVA)
	}
	return DecodeKernelResultHeader(buf)
}

// Receipt is one completed transaction's externally-visible outcome:
// success/failure, any guest-supplied return data, the events fired
// during execution, and the error code if the task panicked or
// faulted — SPEC_FULL.md §7's supplemented per-transaction record.
type Receipt struct {
	Success   bool
	ErrorCode uint32
	Data      []byte
	Events    [][]byte // opaque blobs, each exactly as fired by syscall 6
}

// Encode serializes a Receipt as: success(u32) || error(u32) ||
// data_len(u32) || data || event_count(u32) || (len(u32) || bytes)*.
func (r Receipt) Encode() []byte {
	buf := make([]byte, 0, 16+len(r.Data)+4)
	var head [12]byte
	binary.LittleEndian.PutUint32(head[0:4], boolU32(r.Success))
	binary.LittleEndian.PutUint32(head[4:8], r.ErrorCode)
	binary.LittleEndian.PutUint32(head[8:12], uint32(len(r.Data)))
	buf = append(buf, head[:]...)
	buf = append(buf, r.Data...)

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(r.Events)))
	buf = append(buf, count[:]...)
	for _, ev := range r.Events {
		var l [4]byte
		binary.LittleEndian.PutUint32(l[:], uint32(len(ev)))
		buf = append(buf, l[:]...)
		buf = append(buf, ev...)
	}
	return buf
}

// Decode is Encode's inverse.
func Decode(buf []byte) (Receipt, error) {
	if len(buf) < 12 {
		return Receipt{}, fmt.Errorf("receipt: short buffer (%d bytes)", len(buf))
	}
	success := binary.LittleEndian.Uint32(buf[0:4]) != 0
	errCode := binary.LittleEndian.Uint32(buf[4:8])
	dataLen := binary.LittleEndian.Uint32(buf[8:12])
	off := 12
	if uint32(len(buf)-off) < dataLen {
		return Receipt{}, fmt.Errorf("receipt: truncated data (want %d, have %d)", dataLen, len(buf)-off)
	}
	data := append([]byte(nil), buf[off:off+int(dataLen)]...)
	off += int(dataLen)

	if len(buf)-off < 4 {
		return Receipt{}, fmt.Errorf("receipt: missing event count")
	}
	count := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	events := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf)-off < 4 {
			return Receipt{}, fmt.Errorf("receipt: truncated event %d length", i)
		}
		l := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		if uint32(len(buf)-off) < l {
			return Receipt{}, fmt.Errorf("receipt: truncated event %d body", i)
		}
		events = append(events, append([]byte(nil), buf[off:off+int(l)]...))
		off += int(l)
	}
	return Receipt{Success: success, ErrorCode: errCode, Data: data, Events: events}, nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
