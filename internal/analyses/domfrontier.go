package analyses

import "tessera/internal/ir"

// DomFrontier maps each block to its dominance frontier: the set of blocks
// where that block's dominance "runs out" (Cytron et al.). No pass in this
// repository inserts phis with it, since this IR is already required to be
// in SSA form on input (spec.md §3), and ValidatePhis does not consult it.
type DomFrontier map[string]map[string]bool

// BuildDomFrontier computes (or returns the cached) DomFrontier for fn.
func BuildDomFrontier(fn *ir.Function, isa *ir.ISAContext) DomFrontier {
	if v, ok := fn.CacheGet(ir.AnalysisDomFrontier); ok {
		return v.(DomFrontier)
	}
	cfg := BuildCFG(fn, isa)
	dom := BuildDominance(fn, isa)

	df := make(DomFrontier, len(cfg.Blocks()))
	for _, b := range cfg.Blocks() {
		df[b] = map[string]bool{}
	}

	for _, b := range cfg.Blocks() {
		preds := cfg.Predecessors(b)
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			runner := p
			for runner != "" && runner != dom.IDom(b) {
				df[runner][b] = true
				runner = dom.IDom(runner)
			}
		}
	}

	fn.CacheSet(ir.AnalysisDomFrontier, df)
	return df
}
