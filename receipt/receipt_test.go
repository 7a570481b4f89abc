package receipt

import (
	"bytes"
	"testing"
)

func TestKernelResultHeaderRoundTrip(t *testing.T) {
	h := KernelResultHeader{ReceiptsPtr: 0x1000, ReceiptsLen: 64, StatePtr: 0x2000, StateLen: 128}
	got, err := DecodeKernelResultHeader(h.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestDecodeKernelResultHeaderShortBuffer(t *testing.T) {
	if _, err := DecodeKernelResultHeader([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short buffer")
	}
}

func TestReceiptRoundTripWithEvents(t *testing.T) {
	r := Receipt{
		Success:   true,
		ErrorCode: 0,
		Data:      []byte{1, 2, 3, 4},
		Events:    [][]byte{[]byte("topic-a-data"), {}, []byte("x")},
	}
	got, err := Decode(r.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.Success != r.Success || got.ErrorCode != r.ErrorCode || !bytes.Equal(got.Data, r.Data) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Events) != len(r.Events) {
		t.Fatalf("events = %d, want %d", len(got.Events), len(r.Events))
	}
	for i := range r.Events {
		if !bytes.Equal(got.Events[i], r.Events[i]) {
			t.Fatalf("event %d = %v, want %v", i, got.Events[i], r.Events[i])
		}
	}
}

func TestDecodeTruncatedReceiptFails(t *testing.T) {
	r := Receipt{Success: true, Data: []byte{1, 2, 3, 4}}
	buf := r.Encode()
	if _, err := Decode(buf[:len(buf)-2]); err == nil {
		t.Fatal("expected error on truncated buffer")
	}
}
