// Package jit implements the tracing compiler spec.md §4.5 describes:
// a per-(root, PC) hit counter, a bounded straight-line trace builder,
// and a compiler that turns a trace into a Go closure cached for
// future hits — "compiled" in the sense of specializing dispatch, not
// native code generation (spec.md §9's Design Notes license this
// reinterpretation explicitly).
//
// Grounded on biscuit/src/vm/as.go's translation-cache shape (a map
// keyed by an address-space-scoped key, populated lazily on a repeat
// access) adapted from page-table-entry caching to instruction-trace
// caching.
package jit

import (
	"rvavm/cpu"
	"rvavm/mem"
)

// TraceLimit bounds how many instructions a single trace may contain,
// per spec.md §4.5.
const TraceLimit = 64

// Stats mirrors the counters spec.md §4.5 calls for: how many distinct
// PCs have been observed at all, how many crossed the hot threshold,
// how many cache hits were served, and the compiler's attempt/success/
// failure tallies.
type Stats struct {
	TrackedPCs       uint64
	HotPCs           uint64
	CacheHits        uint64
	CompileAttempts  uint64
	CompileSuccesses uint64
	CompileFailures  uint64
}

type key struct {
	root mem.PPN
	pc   uint32
}

// compiled is a specialized closure that executes every instruction
// of a trace in sequence, stopping early (and reporting where) if one
// of them traps.
type compiled struct {
	insts []cpu.Inst
}

func (c *compiled) run(m *cpu.Machine) *cpu.Trap {
	for _, in := range c.insts {
		if trap := m.Execute(in); trap != nil {
			return trap
		}
		m.InstRet++
	}
	return nil
}

// Engine is the tracing JIT: hit-counts PCs, builds and caches traces
// once a PC crosses the hot threshold, and serves cache hits on
// subsequent visits to an already-compiled PC.
type Engine struct {
	Threshold int

	hits  map[key]int
	cache map[key]*compiled
	Stats Stats
}

// NewEngine builds an Engine that compiles a PC after it has been hit
// threshold times.
func NewEngine(threshold int) *Engine {
	if threshold < 1 {
		threshold = 1
	}
	return &Engine{
		Threshold: threshold,
		hits:      make(map[key]int),
		cache:     make(map[key]*compiled),
	}
}

// MaybeRun is the interpreter loop's JIT hook, called once before each
// Step: if the current (root, PC) is cached, it runs the compiled
// trace and reports true; otherwise it records a hit (compiling on the
// threshold-th) and reports false so the caller falls back to a plain
// interpreted Step.
func (e *Engine) MaybeRun(m *cpu.Machine) (ran bool, trap *cpu.Trap) {
	k := key{root: m.Root.Get(), pc: m.PC}

	if c, ok := e.cache[k]; ok {
		e.Stats.CacheHits++
		return true, c.run(m)
	}

	if _, tracked := e.hits[k]; !tracked {
		e.Stats.TrackedPCs++
	}
	e.hits[k]++
	if e.hits[k] < e.Threshold {
		return false, nil
	}
	if e.hits[k] == e.Threshold {
		e.Stats.HotPCs++
	}

	trace, ok := buildTrace(m, k.pc)
	e.Stats.CompileAttempts++
	if !ok {
		e.Stats.CompileFailures++
		return false, nil
	}
	e.Stats.CompileSuccesses++
	c := &compiled{insts: trace}
	e.cache[k] = c
	return true, c.run(m)
}

// Counter is one observed (root, pc) pair's hit count, for export to
// package stats.
type Counter struct {
	Root mem.PPN
	PC   uint32
	Hits int
}

// Counters snapshots every tracked (root, pc) pair and its current hit
// count, in no particular order.
func (e *Engine) Counters() []Counter {
	out := make([]Counter, 0, len(e.hits))
	for k, n := range e.hits {
		out = append(out, Counter{Root: k.root, PC: k.pc, Hits: n})
	}
	return out
}

// buildTrace decodes straight-line instructions starting at pc,
// stopping at TraceLimit instructions, after a branch/jump (which is
// kept as the trace's last instruction), before an instruction
// outside the JIT-supported set, or at a decode/fetch failure —
// spec.md §4.5's trace-termination rules. A trace of zero
// instructions (the very first instruction already disqualifies it)
// fails.
func buildTrace(m *cpu.Machine, start uint32) ([]cpu.Inst, bool) {
	var insts []cpu.Inst
	pc := start
	for len(insts) < TraceLimit {
		in, fault := m.FetchAt(pc)
		if fault != nil {
			break
		}
		if !in.JITSupported() {
			break
		}
		insts = append(insts, in)
		if in.IsBranchOrJump() {
			break
		}
		pc += uint32(in.Size)
	}
	if len(insts) == 0 {
		return nil, false
	}
	return insts, true
}
