// Package trap routes a cpu.Trap raised by Machine.Step to its
// handler: the syscall table on ecall, task completion on ebreak, or
// a fatal abort for anything else, per spec.md §4.4.
//
// Grounded on biscuit/src/runtime/trap.go's trap-cause switch (the
// shape of dispatching on scause to a small set of named handlers),
// adapted from biscuit's many hardware traps down to the three this
// core recognizes.
package trap

import (
	"fmt"

	"rvavm/cpu"
)

// Syscaller is the subset of the syscall table's behavior the
// dispatcher needs: given the machine (to read a7/a1..a6 and write
// a0) perform one syscall. It reports nothing back to the dispatcher.
type Syscaller interface {
	Dispatch(m *cpu.Machine)
}

// Completer is the subset of the task table's behavior the dispatcher
// needs on ebreak.
type Completer interface {
	Complete(m *cpu.Machine) (completed int, ok bool)
}

// Tracer is the subset of the JIT engine's behavior the dispatcher
// needs: given the machine, try to run a cached trace for the current
// (root, PC), reporting whether it ran and with what trap, if any.
type Tracer interface {
	MaybeRun(m *cpu.Machine) (ran bool, trap *cpu.Trap)
}

// Fatal is returned by Run when a trap cannot be handled: an unknown
// synchronous cause, or a page fault with no handler installed
// (spec.md §9's Design Notes resolution — both funnel into an abort
// rather than a silently-repeating instruction).
type Fatal struct {
	Trap cpu.Trap
	PC   uint32
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("fatal trap: cause=%d tval=%#x pc=%#x", f.Trap.SCause, f.Trap.STval, f.PC)
}

// Dispatcher wires a Machine to a syscall table and a task table and
// drives the fetch-execute-trap loop one StepOnce at a time. Task
// completion does not stop it; callers watch OnEbreak for that.
type Dispatcher struct {
	Machine *cpu.Machine
	Syscall Syscaller
	Tasks   Completer

	// JIT, if set, is consulted before every interpreted Step; a
	// cached trace running to completion (or trapping) replaces that
	// step entirely (spec.md §4.5). Nil means every instruction is
	// interpreted one at a time.
	JIT Tracer

	// OnEbreak, if set, is called after every successful task
	// completion, carrying the completed task's index — the bundle
	// driver's hook for collecting a per-task receipt without this
	// package importing package task or package bundle directly.
	OnEbreak func(completed int)
}

// StepOnce executes one instruction and, if it trapped, dispatches
// it. It returns a non-nil *Fatal when the trap could not be handled
// and the caller should stop driving the machine.
func (d *Dispatcher) StepOnce() *Fatal {
	if d.JIT != nil {
		if ran, trap := d.JIT.MaybeRun(d.Machine); ran {
			if trap == nil {
				return nil
			}
			return d.handle(*trap)
		}
	}
	tr := d.Machine.Step()
	if tr == nil {
		return nil
	}
	return d.handle(*tr)
}

// Run drives StepOnce until either a fatal trap occurs or StepOnce has
// been called maxSteps times, whichever comes first (one call may run
// a whole cached JIT trace, so this is not a count of retired
// instructions) — the caller (the
// bundle driver, or a test) supplies the bound since this package has
// no notion of wall-clock timeouts (spec.md §6's timeout_ms is
// enforced by the caller).
func (d *Dispatcher) Run(maxSteps uint64) (steps uint64, fatal *Fatal) {
	for steps = 0; steps < maxSteps; steps++ {
		if f := d.StepOnce(); f != nil {
			return steps, f
		}
	}
	return steps, nil
}

func (d *Dispatcher) handle(tr cpu.Trap) *Fatal {
	switch tr.SCause {
	case cpu.CauseEcallU, cpu.CauseEcallS:
		d.Syscall.Dispatch(d.Machine)
		return nil
	case cpu.CauseBreakpoint:
		completed, ok := d.Tasks.Complete(d.Machine)
		if !ok {
			return &Fatal{Trap: tr, PC: d.Machine.PC}
		}
		if d.OnEbreak != nil {
			d.OnEbreak(completed)
		}
		return nil
	default:
		return &Fatal{Trap: tr, PC: d.Machine.PC}
	}
}
