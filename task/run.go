package task

import (
	"encoding/binary"

	"rvavm/cpu"
	"rvavm/sv32"
)

// EnterTask saves the currently-running task's register frame (so it
// can be resumed exactly where it left off) and transitions the
// machine into idx, per spec.md §4.7 step 5 ("jump to the
// entry-trampoline VA"). idx must already have been populated by
// PrepProgramTask.
func (t *Table) EnterTask(m *cpu.Machine, idx int) {
	caller := t.Current
	t.Tasks[caller].Frame = cpu.SaveFrame(m)
	t.Tasks[idx].Caller = caller
	t.Current = idx

	task := t.Tasks[idx]
	cpu.RestoreFrame(m, task.Frame)
	enter(m, t.Root, task.AS, task.Frame.PC)
}

// RunTask preps a fresh child task from a program image and enters
// it, the combination package syscall's call_program handler drives
// (spec.md §4.6, §4.7).
func (t *Table) RunTask(m *cpu.Machine, to, from [20]byte, img Image, input []byte) (int, bool) {
	caller := t.Current
	idx, ok := t.PrepProgramTask(caller, to, from, img, input)
	if !ok {
		return 0, false
	}
	t.EnterTask(m, idx)
	return idx, true
}

// KernelRunTask starts the top-level kernel task (slot 0) at entryPC
// in supervisor mode against the kernel root already installed at
// construction — the bundle driver's one entry point into the
// interpreter per transaction (spec.md §4.8).
func (t *Table) KernelRunTask(m *cpu.Machine, entryPC uint32) {
	t.Current = KernelTask
	t.Tasks[KernelTask].Caller = None
	t.Tasks[KernelTask].Frame = cpu.Frame{PC: entryPC}
	m.Mode = sv32.ModeSupervisor
	t.Root.Set(t.Tasks[KernelTask].AS.Root)
	m.PC = entryPC
}

// resultHeaderFixedLen is the fixed-size prefix of a task's result
// header: success (u32 bool), error_code (u32), data_len (u32). The
// trailing data_len bytes of data immediately follow, per scenario 4.
const resultHeaderFixedLen = 12

// readResult decodes the current task's result header out of its own
// window at ResultHeaderVA.
func readResult(mm *cpu.Machine) (Result, bool) {
	head := make([]byte, resultHeaderFixedLen)
	root := mm.Root.Get()
	if !sv32.ReadBytes(mm.Mem, root, ResultHeaderVA, head) {
		return Result{}, false
	}
	success := binary.LittleEndian.Uint32(head[0:4]) != 0
	errCode := binary.LittleEndian.Uint32(head[4:8])
	dataLen := binary.LittleEndian.Uint32(head[8:12])
	data := make([]byte, dataLen)
	if dataLen > 0 && !sv32.ReadBytes(mm.Mem, root, ResultHeaderVA+resultHeaderFixedLen, data) {
		return Result{}, false
	}
	return Result{Success: success, ErrorCode: errCode, Data: data}, true
}

// Complete handles an ebreak trap from the currently-running task: it
// reads the task's result header, records it, restores the caller's
// frame and privilege level (or leaves the machine parked if the
// kernel task itself just finished; LastCompleted records which task
// it was), per spec.md §4.4 and §4.7.
func (t *Table) Complete(m *cpu.Machine) (completed int, ok bool) {
	completed = t.Current
	res, ok := readResult(m)
	if !ok {
		return completed, false
	}
	r := res
	t.Tasks[completed].Result = &r
	t.LastCompleted = completed

	caller := t.Tasks[completed].Caller
	if caller == None {
		return completed, true
	}
	t.Current = caller
	callerTask := t.Tasks[caller]
	cpu.RestoreFrame(m, callerTask.Frame)
	if caller == KernelTask {
		leave(m, t.Root, callerTask.AS.Root)
	} else {
		t.Root.Set(callerTask.AS.Root)
		m.Mode = sv32.ModeUser
	}
	return completed, true
}

// LastResult returns the result record of the most recently completed
// task, if any.
func (t *Table) LastResult() (*Result, bool) {
	if t.LastCompleted == None {
		return nil, false
	}
	return t.Tasks[t.LastCompleted].Result, true
}
