// Package bundle is the transaction driver spec.md §4.8 describes: a
// queue of transactions, each either a plain value transfer (no
// target code) or a full program invocation (prep + run to
// completion), with a receipt populated from the result.
//
// Grounded on biscuit/src/kernel/chentry.go's entry-point wiring style
// (construct the pieces, hand control to the loaded image) generalized
// from a one-shot kernel bootstrap into a per-transaction driver loop.
package bundle

import (
	"bytes"
	"fmt"

	"rvavm/cpu"
	"rvavm/elfload"
	"rvavm/jit"
	"rvavm/mem"
	"rvavm/receipt"
	"rvavm/state"
	"rvavm/sv32"
	"rvavm/syscall"
	"rvavm/task"
	"rvavm/trap"
)

// JITThreshold is the default hit count before a PC is traced and
// compiled, per spec.md §4.5.
const JITThreshold = 16

// Transaction is one unit of work the bundle driver executes, per
// spec.md §4.8.
type Transaction struct {
	To    state.Address
	From  state.Address
	Value uint64
	Input []byte
}

// Driver owns every moving part of one bundle run: physical memory,
// the interpreter, the MMU current-root side channel, the task table,
// the syscall table, the trap dispatcher, and the ledger transactions
// read and write against.
type Driver struct {
	Mem    *mem.Memory
	CPU    *cpu.Machine
	Root   *sv32.CurrentRoot
	Tasks  *task.Table
	Syscalls *syscall.Table
	Dispatcher *trap.Dispatcher
	Ledger *state.Ledger

	JIT *jit.Engine

	KernelRoot mem.PPN
	MaxSteps   uint64
}

// NewDriver constructs a Driver with a fresh physical memory region of
// memSize bytes (spec.md §6 RunOptions.vm_memory_size) and maxSteps as
// the per-transaction instruction budget (the caller derives this from
// RunOptions.timeout_ms, since this package has no notion of
// wall-clock time).
func NewDriver(memSize int, maxSteps uint64) (*Driver, error) {
	m := mem.New(memSize)
	kernelRoot, ok := m.AllocRoot()
	if !ok {
		return nil, fmt.Errorf("bundle: out of memory allocating kernel root")
	}
	root := &sv32.CurrentRoot{}
	root.Set(kernelRoot)
	cpuMachine := cpu.New(m, root)

	tasks, ok := task.NewTable(m, root, kernelRoot)
	if !ok {
		return nil, fmt.Errorf("bundle: out of memory building task table")
	}

	ledger := state.NewLedger()
	syscalls := syscall.NewTable(ledger, tasks)

	d := &Driver{
		Mem:        m,
		CPU:        cpuMachine,
		Root:       root,
		Tasks:      tasks,
		Syscalls:   syscalls,
		Ledger:     ledger,
		KernelRoot: kernelRoot,
		MaxSteps:   maxSteps,
	}
	syscalls.Loader = func(addr state.Address, code []byte) (task.Image, bool) {
		img, err := elfload.Load(bytes.NewReader(code))
		if err != nil {
			return task.Image{}, false
		}
		return img, true
	}
	d.JIT = jit.NewEngine(JITThreshold)
	d.Dispatcher = &trap.Dispatcher{Machine: cpuMachine, Syscall: syscalls, Tasks: tasks, JIT: d.JIT}
	return d, nil
}

// Run executes one transaction to completion (or until the step budget
// or a fatal trap stops it) and returns its receipt, per spec.md §4.8.
// A transaction whose target has no installed code is a plain value
// transfer with no interpreter involvement at all.
func (d *Driver) Run(tx Transaction) (receipt.Receipt, error) {
	code := d.Ledger.Code(tx.To)
	if code == nil {
		failure := d.Ledger.Transfer(tx.From, tx.To, tx.Value)
		return receipt.Receipt{Success: failure == state.TransferOK}, nil
	}

	img, err := elfload.Load(bytes.NewReader(code))
	if err != nil {
		return receipt.Receipt{}, fmt.Errorf("bundle: loading target image: %w", err)
	}

	if tx.Value > 0 {
		if failure := d.Ledger.Transfer(tx.From, tx.To, tx.Value); failure != state.TransferOK {
			return receipt.Receipt{Success: false, ErrorCode: uint32(failure)}, nil
		}
	}

	slot, ok := d.Tasks.PrepProgramTask(task.KernelTask, tx.To, tx.From, img, tx.Input)
	if !ok {
		return receipt.Receipt{}, fmt.Errorf("bundle: task table exhausted")
	}
	d.Tasks.EnterTask(d.CPU, slot)

	baseEvents := len(d.Syscalls.Events)
	done := false
	d.Dispatcher.OnEbreak = func(completed int) { done = done || completed == slot }
	defer func() { d.Dispatcher.OnEbreak = nil }()

	var steps uint64
	for steps = 0; steps < d.MaxSteps && !done; steps++ {
		if f := d.Dispatcher.StepOnce(); f != nil {
			return receipt.Receipt{}, f
		}
	}
	if !done {
		return receipt.Receipt{}, fmt.Errorf("bundle: step budget exhausted before completion")
	}

	res, ok := taskResult(d.Tasks, slot)
	if !ok {
		return receipt.Receipt{}, fmt.Errorf("bundle: task %d produced no result", slot)
	}
	if msg, panicked := d.Syscalls.Panicked[slot]; panicked {
		res.Success = false
		if res.ErrorCode == 0 {
			res.ErrorCode = 1
		}
		_ = msg
	}

	var events [][]byte
	for _, ev := range d.Syscalls.Events[baseEvents:] {
		if ev.Task != slot {
			continue
		}
		events = append(events, append([]byte(nil), ev.Data...))
	}

	return receipt.Receipt{
		Success:   res.Success,
		ErrorCode: res.ErrorCode,
		Data:      res.Data,
		Events:    events,
	}, nil
}

func taskResult(t *task.Table, slot int) (task.Result, bool) {
	if t.Tasks[slot].Result == nil {
		return task.Result{}, false
	}
	return *t.Tasks[slot].Result, true
}

// CreateAccount installs code at addr, making subsequent transactions
// targeting it full program invocations rather than plain transfers
// (spec.md §4.8's account-creation path).
func (d *Driver) CreateAccount(addr state.Address, code []byte) {
	d.Ledger.SetCode(addr, code)
}
