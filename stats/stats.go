// Package stats exports the JIT's per-PC hit counters as a pprof
// profile, so standard pprof tooling (`go tool pprof`) can visualize
// which PCs got hot, per SPEC_FULL.md §6. Only hit counts are exported;
// the JIT's compile attempt/success/failure tallies are not.
//
// Wraps github.com/google/pprof/profile, the same profile.proto model
// `go tool pprof` itself consumes — there is no pack example that
// produces a pprof profile from scratch, so this follows the
// library's own documented construction pattern (one Location per
// sampled site, one Sample per observation, a single value type).
package stats

import (
	"io"

	"github.com/google/pprof/profile"

	"rvavm/jit"
)

// WriteJITProfile encodes engine's current per-PC hit counters as a
// gzip-compressed pprof profile and writes it to w. Each tracked PC
// becomes one Location (named by its hex address, since there is no
// symbol table to resolve it against) with one Sample carrying its
// hit count.
func WriteJITProfile(w io.Writer, engine *jit.Engine) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "hits", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "pc", Unit: "count"},
		Period:     1,
	}

	fnByPC := make(map[uint32]*profile.Function)
	locByPC := make(map[uint32]*profile.Location)
	var nextID uint64 = 1

	for _, c := range engine.Counters() {
		fn, ok := fnByPC[c.PC]
		if !ok {
			fn = &profile.Function{ID: nextID, Name: hexName(c.PC)}
			nextID++
			p.Function = append(p.Function, fn)
			fnByPC[c.PC] = fn
		}
		loc, ok := locByPC[c.PC]
		if !ok {
			loc = &profile.Location{
				ID:   nextID,
				Line: []profile.Line{{Function: fn}},
			}
			nextID++
			p.Location = append(p.Location, loc)
			locByPC[c.PC] = loc
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(c.Hits)},
		})
	}

	return p.Write(w)
}

func hexName(pc uint32) string {
	const hexdigits = "0123456789abcdef"
	buf := [10]byte{'0', 'x', '0', '0', '0', '0', '0', '0', '0', '0'}
	for i := 0; i < 8; i++ {
		shift := uint(28 - 4*i)
		buf[2+i] = hexdigits[(pc>>shift)&0xf]
	}
	return string(buf[:])
}
