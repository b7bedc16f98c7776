package regalloc

import (
	"strconv"
	"strings"

	"tessera/internal/analyses"
	"tessera/internal/diag"
	"tessera/internal/ir"
	"tessera/internal/mdlog"
)

// Variant selects which of spec.md §4.3's two SSA-level coloring
// strategies an Allocator runs.
type Variant int

const (
	TopDown Variant = iota
	BottomUp
)

// Allocator runs the SSA graph-coloring register allocator of spec.md
// §4.3 over a Function already in SSA form: live-range construction by
// union-find, (Bottom-Up only) coalescing, then coloring with
// spill-and-restart until every live range has a color in 0..k-1.
type Allocator struct {
	isa     *ir.ISAContext
	cfg     Config
	k       int
	variant Variant
	sink    mdlog.Sink
}

// NewAllocator builds an Allocator targeting k hardware registers. A nil
// sink is replaced by mdlog.NullSink, matching the "injectable sink,
// null-sink default" pattern internal/sched.NewScheduler already
// establishes.
func NewAllocator(isa *ir.ISAContext, cfg Config, k int, variant Variant, sink mdlog.Sink) *Allocator {
	if sink == nil {
		sink = mdlog.NullSink{}
	}
	return &Allocator{isa: isa, cfg: cfg, k: k, variant: variant, sink: sink}
}

// Run replaces every virtual register in fn with one of k hardware
// register names plus spill-slot memory traffic, in place. fn must be in
// SSA form (spec.md §4.3's precondition). Run does not check this — it is
// a property of the *input*, not something the allocator can repair.
func (a *Allocator) Run(fn *ir.Function) *diag.CompilerError {
	a.sink.Section("register allocation: " + fn.Name)

	lr := BuildLiveRanges(fn, a.isa)
	lr.Rewrite(fn, a.isa)
	count := lr.Count

	if a.variant == BottomUp {
		count = Coalesce(fn, a.isa, a.cfg, count)
	}

	for {
		fn.Invalidate()
		ig := analyses.BuildInterference(fn, a.isa)
		sc := analyses.BuildSpillCost(fn, a.isa)

		var res ColorResult
		if a.variant == BottomUp {
			res = ColorBottomUp(ig, sc, a.k)
		} else {
			res = ColorTopDown(ig, sc, a.k)
		}

		if res.OK {
			a.applyColoring(fn, res.Assignment)
			a.sink.Note("colored %d live range(s) with k=%d", len(res.Assignment), a.k)
			return nil
		}

		if sc.Unspillable(res.Spill) {
			return diag.Unspillable(fn.Name, liveRangeNumber(res.Spill))
		}

		offset := nextSpillOffset(fn, a.isa, a.cfg)
		a.sink.Row(offset, res.Spill, "spilled at slot offset "+strconv.Itoa(offset))
		spillLiveRange(fn, a.isa, a.cfg, res.Spill, &count, offset)
	}
}

// applyColoring replaces every "lrN" token with its assigned "hrC" name.
// Reserved registers (never given a live-range id by BuildLiveRanges, and
// kept out of the interference graph, so never in assignment) are left
// untouched — spec.md's "sp is mapped to its reserved hardware name"
// is, for this toy ISA format, simply its own name, since spec.md §6
// carries no separate physical-register-naming table.
func (a *Allocator) applyColoring(fn *ir.Function, assignment map[string]int) {
	mapRegisters(fn, a.isa, func(reg string) string {
		if c, ok := assignment[reg]; ok {
			return hrName(c)
		}
		return reg
	})
	fn.Invalidate()
}

func liveRangeNumber(reg string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(reg, "lr"))
	return n
}
