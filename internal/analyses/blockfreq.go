package analyses

import "tessera/internal/ir"

// loopHeaderWeight is the estimated average trip count used to scale a loop
// header's execution frequency relative to the entry block (spec.md §9's
// "estimate block execution frequency" design note; the original
// implementation's constant, carried forward verbatim since no better
// estimate is available without profile data).
const loopHeaderWeight = 10

// BlockFreq estimates each block's execution frequency relative to the
// entry block (entry == 1), used by the instruction scheduler's EBB-path
// selection and the spill-cost analysis.
type BlockFreq map[string]float64

// BuildBlockFreq computes (or returns the cached) BlockFreq for fn, as
// spec.md §4.3 defines it: "the product of branch probabilities, with an
// assumed loop-iteration multiplier ≈10 applied to loop-entry blocks." A DFS
// from the entry starts at frequency 1, multiplies by loopHeaderWeight on
// entering any block that is the target of a back edge, and divides by the
// block's out-degree before propagating to each successor — mirroring
// original_source/backend/reg-alloc/color-ssa-td/src/lib/block-freq.cc's
// _eval: back edges are never followed (the induced subgraph without them
// is a DAG, so the recursion always terminates), and a block reached along
// more than one DAG path accumulates the sum of each path's contribution
// rather than overwriting it, exactly as `_freqs[&bb] += freq` does there.
func BuildBlockFreq(fn *ir.Function, isa *ir.ISAContext) BlockFreq {
	if v, ok := fn.CacheGet(ir.AnalysisBlockFreq); ok {
		return v.(BlockFreq)
	}
	cfg := BuildCFG(fn, isa)

	headers := make(map[string]bool)
	backSucc := make(map[string]map[string]bool)
	for _, e := range cfg.BackEdges() {
		headers[e[1]] = true
		if backSucc[e[0]] == nil {
			backSucc[e[0]] = make(map[string]bool)
		}
		backSucc[e[0]][e[1]] = true
	}

	freq := make(BlockFreq, len(cfg.Blocks()))
	var eval func(block string, f float64)
	eval = func(block string, f float64) {
		if headers[block] {
			f *= loopHeaderWeight
		}
		freq[block] += f

		succs := cfg.Successors(block)
		if len(succs) == 0 {
			return
		}
		next := f / float64(len(succs))
		for _, s := range succs {
			if backSucc[block][s] {
				continue // never follow a back edge
			}
			eval(s, next)
		}
	}
	if entry := cfg.Entry(); entry != "" {
		eval(entry, 1)
	}
	for _, b := range cfg.Blocks() {
		if _, ok := freq[b]; !ok {
			freq[b] = 1 // unreachable block: never colder than normal execution
		}
	}

	fn.CacheSet(ir.AnalysisBlockFreq, freq)
	return freq
}

// Freq returns block's estimated frequency, defaulting to 1 (unreachable or
// unknown blocks are never colder than a normally-executed block).
func (f BlockFreq) Freq(block string) float64 {
	if v, ok := f[block]; ok {
		return v
	}
	return 1
}
