package analyses

import "tessera/internal/ir"

// LiveOut maps each block name to the set of registers live across its
// exit (spec.md §3, computed by iterative backward dataflow).
type LiveOut map[string]map[string]bool

// BuildLiveOut computes (or returns the cached) LiveOut for fn.
//
// Phi operands are attributed to the edge they name, not to the phi's own
// block: liveOut(b) pulls, from each successor s, the value s's phis name
// for predecessor b (not the phi's own block-local def), plus whatever is
// live into s minus s's own phi definitions. This is the standard SSA
// liveness treatment of phis (Appel); treating a phi destination as an
// ordinary same-block use/def would make it look live-in on every
// predecessor edge instead of only the one it actually reads.
func BuildLiveOut(fn *ir.Function, isa *ir.ISAContext) LiveOut {
	if v, ok := fn.CacheGet(ir.AnalysisLiveOut); ok {
		return v.(LiveOut)
	}
	cfg := BuildCFG(fn, isa)
	use, def, phiDefs := blockUseDef(fn, isa)

	liveIn := make(map[string]map[string]bool, len(fn.Blocks))
	liveOut := make(LiveOut, len(fn.Blocks))
	for _, b := range fn.Blocks {
		liveIn[b.Name] = map[string]bool{}
		liveOut[b.Name] = map[string]bool{}
	}

	order := cfg.ReversePostorder()
	for changed := true; changed; {
		changed = false
		for i := len(order) - 1; i >= 0; i-- {
			b := order[i]
			out := map[string]bool{}
			for _, s := range cfg.Successors(b) {
				sBlk := fn.BlockByName(s)
				for _, v := range phiUsesForPred(sBlk, b) {
					out[v] = true
				}
				for r := range liveIn[s] {
					if !phiDefs[s][r] {
						out[r] = true
					}
				}
			}
			in := map[string]bool{}
			for r := range use[b] {
				in[r] = true
			}
			for r := range out {
				if !def[b][r] {
					in[r] = true
				}
			}
			if !setsEqual(out, liveOut[b]) || !setsEqual(in, liveIn[b]) {
				changed = true
			}
			liveOut[b] = out
			liveIn[b] = in
		}
	}

	fn.CacheSet(ir.AnalysisLiveOut, liveOut)
	return liveOut
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// blockUseDef computes, per block, the set of registers used before any
// local def (use), the set of registers defined anywhere in the block
// (def, phi destinations included), and the set of registers defined
// specifically by a phi (phiDefs, a subset of def).
func blockUseDef(fn *ir.Function, isa *ir.ISAContext) (use, def, phiDefs map[string]map[string]bool) {
	use = make(map[string]map[string]bool, len(fn.Blocks))
	def = make(map[string]map[string]bool, len(fn.Blocks))
	phiDefs = make(map[string]map[string]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		u, d, pd := map[string]bool{}, map[string]bool{}, map[string]bool{}
		for _, in := range b.Instructions {
			if in.IsPhi() {
				pdef, _ := in.PhiOperands()
				d[pdef] = true
				pd[pdef] = true
				continue
			}
			for _, r := range in.UseRegs(isa, nil) {
				if !d[r] {
					u[r] = true
				}
			}
			for _, r := range in.DefRegs(isa) {
				d[r] = true
			}
		}
		use[b.Name] = u
		def[b.Name] = d
		phiDefs[b.Name] = pd
	}
	return use, def, phiDefs
}

// phiUsesForPred returns the operand values named by block's phis for the
// edge coming from pred; empty if block is nil or has no matching phis.
func phiUsesForPred(block *ir.BasicBlock, pred string) []string {
	if block == nil {
		return nil
	}
	var out []string
	for _, in := range block.Instructions {
		if !in.IsPhi() {
			continue
		}
		_, pairs := in.PhiOperands()
		for _, pr := range pairs {
			if pr[0] == pred {
				out = append(out, pr[1])
			}
		}
	}
	return out
}

// LiveNow gives, for each block, the set of registers live immediately
// after each instruction index (spec.md §3's "per-instruction live sets"),
// used by the interference-graph builder to decide which ranges overlap a
// given definition.
type LiveNow map[string][]map[string]bool

// BuildLiveNow computes (or returns the cached) LiveNow for fn.
func BuildLiveNow(fn *ir.Function, isa *ir.ISAContext) LiveNow {
	if v, ok := fn.CacheGet(ir.AnalysisLiveNow); ok {
		return v.(LiveNow)
	}
	out := BuildLiveOut(fn, isa)
	result := make(LiveNow, len(fn.Blocks))

	for _, b := range fn.Blocks {
		live := map[string]bool{}
		for r := range out[b.Name] {
			live[r] = true
		}
		afterEach := make([]map[string]bool, len(b.Instructions))
		for i := len(b.Instructions) - 1; i >= 0; i-- {
			in := b.Instructions[i]
			afterEach[i] = copySet(live)
			if in.IsPhi() {
				def, _ := in.PhiOperands()
				delete(live, def)
				continue // phi operands are not ordinary same-block uses
			}
			for _, r := range in.DefRegs(isa) {
				delete(live, r)
			}
			for _, r := range in.UseRegs(isa, nil) {
				live[r] = true
			}
		}
		result[b.Name] = afterEach
	}

	fn.CacheSet(ir.AnalysisLiveNow, result)
	return result
}

func copySet(s map[string]bool) map[string]bool {
	out := make(map[string]bool, len(s))
	for k := range s {
		out[k] = true
	}
	return out
}
