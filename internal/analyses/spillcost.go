package analyses

import (
	"math"

	"tessera/internal/ir"
)

// Spill costs per access, weighted by estimated block frequency (spec.md
// §4.3's "farthest-next-use and spill-cost" design note): a reload costs
// less than a spill-store since a load can often be rematerialized cheaper
// than a write-back, matching the original implementation's fixed weights.
const (
	loadCost  = 3
	storeCost = 4
)

// SpillCost maps each register to its estimated cost of being spilled:
// every use contributes loadCost*freq(block), every def contributes
// storeCost*freq(block); a register whose entire life is a single-block
// span that no other register's life ends inside of gets +Inf (spec.md
// §4.3: "live ranges that span no potentially-interfering range have cost
// +∞ to mark them unspillable" — spilling such a range would never free a
// register anything else in its span actually needs).
type SpillCost map[string]float64

// BuildSpillCost computes (or returns the cached) SpillCost for fn.
func BuildSpillCost(fn *ir.Function, isa *ir.ISAContext) SpillCost {
	if v, ok := fn.CacheGet(ir.AnalysisSpillCost); ok {
		return v.(SpillCost)
	}
	freq := BuildBlockFreq(fn, isa)

	cost := make(SpillCost)
	for _, b := range fn.Blocks {
		w := freq.Freq(b.Name)
		for _, in := range b.Instructions {
			for _, u := range in.UseRegs(isa, nil) {
				cost[u] += loadCost * w
			}
			for _, d := range in.DefRegs(isa) {
				cost[d] += storeCost * w
			}
		}
	}

	for _, r := range unspillableLiveRanges(fn, isa) {
		cost[r] = math.Inf(1)
	}

	fn.CacheSet(ir.AnalysisSpillCost, cost)
	return cost
}

// livePos is one (block, instruction index) position of a register's def
// or end, mirroring original_source/backend/reg-alloc/color-ssa-td/src/
// lib/spill-cost.cc's `defs_pos_of`/`ends_pos_of` LiveNow queries.
type livePos struct {
	block string
	idx   int
}

// unspillableLiveRanges implements spill-cost.cc's "figure out which LR have
// an infinite life cost" pass: for every register with exactly one def and
// exactly one end position, both in the same block, scan every register's
// end positions (including its own) for one that falls strictly between
// this register's def and end; if none does, nothing else is fighting this
// register for a register during its entire lifetime, so spilling it would
// not free anything up, and it is marked unspillable.
func unspillableLiveRanges(fn *ir.Function, isa *ir.ISAContext) []string {
	defs := make(map[string][]livePos)
	for _, b := range fn.Blocks {
		for i, in := range b.Instructions {
			if in.IsPhi() {
				continue
			}
			for _, d := range in.DefRegs(isa) {
				defs[d] = append(defs[d], livePos{b.Name, i})
			}
		}
	}

	ends := registerEndPositions(fn, isa)

	endsInBlock := make(map[string][]int)
	for _, ps := range ends {
		for _, p := range ps {
			endsInBlock[p.block] = append(endsInBlock[p.block], p.idx)
		}
	}

	var unspillable []string
	for reg, dp := range defs {
		if len(dp) != 1 {
			continue // only handle simple cases: exactly one def
		}
		ep, ok := ends[reg]
		if !ok || len(ep) != 1 {
			continue // exactly one end position
		}
		def, end := dp[0], ep[0]
		if def.block != end.block {
			continue // life crosses a block boundary: assume it may spill
		}
		if def.idx >= end.idx {
			continue // degenerate: no instruction separates def from end
		}
		maySpill := false
		for _, idx := range endsInBlock[def.block] {
			if idx > def.idx && idx < end.idx {
				maySpill = true
				break
			}
		}
		if !maySpill {
			unspillable = append(unspillable, reg)
		}
	}
	return unspillable
}

// registerEndPositions returns, for every register that dies within a
// single block (i.e. is not live out of it), the index of its last use in
// that block. LiveNow's afterEach[i] is the live set AFTER instruction i
// runs, so a register used for the last time at instruction k appears in
// afterEach[k-1] (still live going into k) but not afterEach[k] (dead once
// k consumes it); the highest index at which it appears is therefore k-1,
// one less than the actual last-use index, hence the +1 below. A register
// live out of every block it appears in (never dies within one) gets no
// entry, and neither does a register that is live after no instruction of
// a block (e.g. one whose last use is the block's first instruction, or a
// def that is never used).
func registerEndPositions(fn *ir.Function, isa *ir.ISAContext) map[string][]livePos {
	liveOut := BuildLiveOut(fn, isa)
	liveNow := BuildLiveNow(fn, isa)

	out := make(map[string][]livePos)
	for _, b := range fn.Blocks {
		afterEach := liveNow[b.Name]
		lastIdx := make(map[string]int) // reg -> highest index it's still live after in this block
		for i, set := range afterEach {
			for r := range set {
				lastIdx[r] = i // indices visited low-to-high, so the final write per reg is the max
			}
		}
		outOfBlock := liveOut[b.Name]
		for r, idx := range lastIdx {
			if outOfBlock[r] {
				continue // still live past the block: it doesn't end here
			}
			out[r] = append(out[r], livePos{b.Name, idx + 1})
		}
	}
	return out
}

// Cost returns reg's spill cost, 0 if reg never appears.
func (c SpillCost) Cost(reg string) float64 { return c[reg] }

// Unspillable reports whether reg's cost is +Inf.
func (c SpillCost) Unspillable(reg string) bool { return math.IsInf(c[reg], 1) }
