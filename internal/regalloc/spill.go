package regalloc

import (
	"strconv"

	"tessera/internal/ir"
)

// nextSpillOffset scans every Load/Store instruction already in fn for its
// constant offset argument and returns the next free, slot-aligned offset
// past the highest one found (spec.md §4.3: "starting after the highest
// existing sp-relative load/store offset in the function, aligned per
// target; 4 bytes per slot here").
func nextSpillOffset(fn *ir.Function, isa *ir.ISAContext, cfg Config) int {
	slot := cfg.slotSize()
	max := -slot
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Op != cfg.Load && in.Op != cfg.Store {
				continue
			}
			kinds := ir.ArgKinds(isa, in)
			for i, k := range kinds {
				if i >= len(in.Args) || k != ir.ArgConst {
					continue
				}
				if off, err := strconv.Atoi(in.Args[i]); err == nil && off > max {
					max = off
				}
			}
		}
	}
	return max + slot
}

// spillLiveRange rewrites every block of fn so that references to target
// go through memory at offset, per spec.md §4.3's "Spilling" step:
//
//   - At each use, a load into a fresh live range precedes the
//     instruction, and every use-occurrence of target within that one
//     instruction shares the same fresh range ("multiple uses in the same
//     instruction share one load").
//   - At each def, the instruction's own def-occurrence of target is
//     replaced by a fresh live range, and a store of that range to offset
//     follows immediately.
//   - A use-def occurrence reads and writes the same physical slot, so it
//     reuses the load's fresh range in place rather than minting a second
//     one: loaded before, mutated by the instruction, stored back after.
//
// next is the allocator's running live-range counter; spillLiveRange
// advances it once or twice per rewritten instruction, however many fresh
// ranges that instruction needs.
func spillLiveRange(fn *ir.Function, isa *ir.ISAContext, cfg Config, target string, next *int, offset int) {
	fresh := func() string {
		name := lrName(*next)
		*next++
		return name
	}

	for _, b := range fn.Blocks {
		var out []ir.Instruction
		for _, in := range b.Instructions {
			kinds := ir.ArgKinds(isa, in)
			hasUseDef, hasPlainUse, hasPlainDef := false, false, false
			for i, k := range kinds {
				if i >= len(in.Args) || stripSigil(in.Args[i]) != target {
					continue
				}
				switch k {
				case ir.ArgUseDef:
					hasUseDef = true
				case ir.ArgRegUse:
					hasPlainUse = true
				case ir.ArgRegDef:
					hasPlainDef = true
				}
			}
			if !hasUseDef && !hasPlainUse && !hasPlainDef {
				out = append(out, in)
				continue
			}

			var useRange, defRange string
			if hasUseDef || hasPlainUse {
				useRange = fresh()
				out = append(out, cfg.makeLoad(useRange, offset))
			}
			switch {
			case hasUseDef:
				defRange = useRange
			case hasPlainDef:
				defRange = fresh()
			}

			args := append([]string(nil), in.Args...)
			for i, k := range kinds {
				if i >= len(args) || stripSigil(in.Args[i]) != target {
					continue
				}
				switch k {
				case ir.ArgRegUse:
					args[i] = "%" + useRange
				case ir.ArgUseDef, ir.ArgRegDef:
					args[i] = "%" + defRange
				}
			}
			out = append(out, ir.Instruction{Op: in.Op, Args: args})
			if hasUseDef || hasPlainDef {
				out = append(out, cfg.makeStore(defRange, offset))
			}
		}
		b.Instructions = out
	}
	fn.Invalidate()
}
