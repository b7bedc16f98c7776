package regalloc

import (
	"strings"

	"tessera/internal/analyses"
	"tessera/internal/ir"
)

// Coalesce runs spec.md §4.3's Bottom-Up-only coalescing to fixpoint:
// repeatedly find a `mov lr_d, lr_u` whose operands do not interfere,
// delete the move, rename every reference of lr_d to lr_u, and renumber
// the tail to keep ids dense if the live-range count dropped. count is the
// current number of live ranges (from BuildLiveRanges or a prior spill
// round); Coalesce returns the (possibly smaller) count after fixpoint.
//
// Each step invalidates fn's cached analyses and rebuilds Interference
// before looking for the next candidate, matching spec.md's "each
// coalescing step invalidates the interference graph and live-now;
// recompute lazily" — coalescing two ranges can only remove interference
// edges, never add them, but a later move's operands may only stop
// interfering once an earlier move's contraction has happened.
func Coalesce(fn *ir.Function, isa *ir.ISAContext, cfg Config, count int) int {
	for {
		fn.Invalidate()
		ig := analyses.BuildInterference(fn, isa)
		d, u, ok := findCoalescibleMove(fn, isa, cfg, ig)
		if !ok {
			break
		}
		contractMove(fn, isa, cfg, d, u)
		count = renumberDense(fn, isa, count)
	}
	fn.Invalidate()
	return count
}

// findCoalescibleMove returns the first `Mov` instruction, in program
// order, whose def operand and use operand are distinct live ranges that
// do not interfere. The def/use positions are read from the ISA's own
// argspec rather than an assumed argument order, so Config.Mov works
// regardless of whether the loaded ISA declares destination or source
// first.
func findCoalescibleMove(fn *ir.Function, isa *ir.ISAContext, cfg Config, ig *analyses.Interference) (def, use string, ok bool) {
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Op != cfg.Mov {
				continue
			}
			kinds := ir.ArgKinds(isa, in)
			var d, u string
			for i, k := range kinds {
				if i >= len(in.Args) {
					break
				}
				switch k {
				case ir.ArgRegDef:
					d = stripSigil(in.Args[i])
				case ir.ArgRegUse:
					u = stripSigil(in.Args[i])
				}
			}
			if d == "" || u == "" || d == u {
				continue
			}
			if ig.Interferes(d, u) {
				continue
			}
			return d, u, true
		}
	}
	return "", "", false
}

// contractMove deletes the specific `mov def, use` instruction the caller
// found coalescible and renames every other reference of def to use.
func contractMove(fn *ir.Function, isa *ir.ISAContext, cfg Config, def, use string) {
	for _, b := range fn.Blocks {
		out := b.Instructions[:0]
		for _, in := range b.Instructions {
			if in.Op == cfg.Mov && isMoveOf(isa, in, def, use) {
				continue
			}
			out = append(out, in)
		}
		b.Instructions = out
	}
	mapRegisters(fn, isa, func(reg string) string {
		if reg == def {
			return use
		}
		return reg
	})
}

func isMoveOf(isa *ir.ISAContext, in ir.Instruction, def, use string) bool {
	kinds := ir.ArgKinds(isa, in)
	var d, u string
	for i, k := range kinds {
		if i >= len(in.Args) {
			break
		}
		switch k {
		case ir.ArgRegDef:
			d = stripSigil(in.Args[i])
		case ir.ArgRegUse:
			u = stripSigil(in.Args[i])
		}
	}
	return d == def && u == use
}

// renumberDense recomputes the set of "lrN" tokens still present in fn and,
// if any id is now unused (a coalescing contraction always removes
// exactly one), remaps the remaining ids to a dense 0..L'-1 range
// preserving first-appearance order. Non-"lr"-prefixed tokens (reserved
// registers) are left untouched. Returns the new live-range count.
func renumberDense(fn *ir.Function, isa *ir.ISAContext, count int) int {
	var order []string
	seen := map[string]bool{}
	walkLR := func(reg string) {
		if !strings.HasPrefix(reg, "lr") {
			return
		}
		if !seen[reg] {
			seen[reg] = true
			order = append(order, reg)
		}
	}
	for _, a := range fn.Args {
		walkLR(a)
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			kinds := ir.ArgKinds(isa, in)
			for i, k := range kinds {
				if i >= len(in.Args) || !isRegKind(k) {
					continue
				}
				walkLR(stripSigil(in.Args[i]))
			}
		}
	}

	if len(order) == count {
		return count // already dense, nothing contracted this round
	}

	remap := make(map[string]string, len(order))
	for i, old := range order {
		remap[old] = lrName(i)
	}
	mapRegisters(fn, isa, func(reg string) string {
		if to, ok := remap[reg]; ok {
			return to
		}
		return reg
	})
	fn.Invalidate()
	return len(order)
}
