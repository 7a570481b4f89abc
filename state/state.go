// Package state is the bundle-level ledger: per-account native balance
// and a domain-namespaced key/value store, the storage the syscall
// layer's storage_get/storage_set/transfer/balance calls (spec.md
// §4.6) read and write.
//
// Grounded on biscuit/src/accnt/accnt.go's shape (a small accounting
// record with an embedded mutex and explicit accessor methods) adapted
// from per-process CPU-time accounting to per-address account
// balances and storage, and on
// original_source/crates/kernel/src/syscall/storage.rs (domain-scoped
// keys) per SPEC_FULL.md §7's supplemented storage addressing.
package state

import (
	"encoding/binary"
	"sync"
)

// Address is a 20-byte account identifier, matching the receipt
// encoding's to/from fields (spec.md §6).
type Address [20]byte

type account struct {
	balance uint64
	storage map[string][]byte
	code    []byte
}

// Ledger holds every account touched during a bundle run. The zero
// value is ready to use.
type Ledger struct {
	mu       sync.Mutex
	accounts map[Address]*account
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[Address]*account)}
}

func (l *Ledger) get(addr Address) *account {
	if l.accounts == nil {
		l.accounts = make(map[Address]*account)
	}
	a, ok := l.accounts[addr]
	if !ok {
		a = &account{storage: make(map[string][]byte)}
		l.accounts[addr] = a
	}
	return a
}

// storageKey composes the domain-namespaced key per SPEC_FULL.md §7:
// domain || 0x00 || key.
func storageKey(domain, key []byte) string {
	buf := make([]byte, 0, len(domain)+1+len(key))
	buf = append(buf, domain...)
	buf = append(buf, 0)
	buf = append(buf, key...)
	return string(buf)
}

// Get returns the stored value for (addr, domain, key), or ok=false on
// a miss — syscall 1 (storage_get), spec.md §4.6.
func (l *Ledger) Get(addr Address, domain, key []byte) (val []byte, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(addr)
	v, ok := a.storage[storageKey(domain, key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Set stores val under (addr, domain, key) — syscall 2 (storage_set),
// spec.md §4.6.
func (l *Ledger) Set(addr Address, domain, key, val []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(addr)
	stored := make([]byte, len(val))
	copy(stored, val)
	a.storage[storageKey(domain, key)] = stored
}

// TransferFailure distinguishes why a transfer (syscall 9) could not
// complete, even though the guest-visible contract only ever sees a
// plain 0/1 (spec.md §4.6) — SPEC_FULL.md §7's supplemented detail
// that the bundle driver's receipt error_code can carry.
type TransferFailure int

const (
	TransferOK TransferFailure = iota
	TransferInsufficientBalance
	TransferNoSuchDestination
)

// Transfer moves value from 'from' to 'to'. The destination account is
// implicitly created (an account with a zero balance is a valid
// destination — "no such account" is never returned in this model
// since accounts are pure map entries, but the reason is kept as a
// documented enum value for parity with the original's three-way
// classification; see SPEC_FULL.md §7).
func (l *Ledger) Transfer(from, to Address, value uint64) TransferFailure {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.get(from)
	if src.balance < value {
		return TransferInsufficientBalance
	}
	src.balance -= value
	l.get(to).balance += value
	return TransferOK
}

// Credit adds value to addr's balance unconditionally — used when
// seeding genesis balances or crediting a block reward outside the
// guest-visible transfer path.
func (l *Ledger) Credit(addr Address, value uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(addr).balance += value
}

// Balance returns addr's native balance encoded as 16 little-endian
// bytes (128 bits, high 64 bits always zero), matching syscall 10's
// contract (spec.md §4.6).
func (l *Ledger) Balance(addr Address) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, l.get(addr).balance)
	return buf
}

// SetCode installs the program image associated with addr, used when
// creating a new contract account (bundle driver's account-creation
// path, spec.md §4.8).
func (l *Ledger) SetCode(addr Address, code []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(addr)
	a.code = make([]byte, len(code))
	copy(a.code, code)
}

// Code returns the program image for addr, or nil if none was set.
func (l *Ledger) Code(addr Address) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(addr).code
}
