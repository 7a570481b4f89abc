// Package console is the diagnostic write port a runner's -v/verbose
// mode uses to print per-step and per-syscall trace lines, with
// locale-aware thousands separators on the large instruction-retired
// and cycle counters this core deals in.
//
// Grounded on bassosimone-risc32/cmd/vm/main.go's log.Printf-based
// verbose tracing style, extended with golang.org/x/text/message so
// counters like InstRet print as "1,048,576" rather than a bare run of
// digits once they grow past a few thousand.
package console

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Console writes formatted diagnostic lines to an underlying writer
// using a fixed locale's number formatting.
type Console struct {
	p *message.Printer
	w io.Writer
}

// New builds a Console writing to w, formatting numbers per tag (use
// language.AmericanEnglish when the caller has no stronger opinion).
func New(w io.Writer, tag language.Tag) *Console {
	return &Console{p: message.NewPrinter(tag), w: w}
}

// Tracef prints one diagnostic line, substituting %d verbs with
// locale-grouped numbers (message.Printer's Fprintf does this for any
// integer argument).
func (c *Console) Tracef(format string, args ...interface{}) {
	c.p.Fprintf(c.w, format+"\n", args...)
}

// Step reports one retired instruction at pc, with its mnemonic
// already rendered by package disasm — kept free of a direct disasm
// import so this package doesn't need to agree on an Inst
// representation, just a string.
func (c *Console) Step(instRet uint64, pc uint32, mnemonic string) {
	c.Tracef("step %d: pc=%#08x %s", instRet, pc, mnemonic)
}

// Syscall reports one dispatched syscall id and its return value.
func (c *Console) Syscall(instRet uint64, id uint32, ret uint32) {
	c.Tracef("step %d: syscall %d -> %d", instRet, id, ret)
}
