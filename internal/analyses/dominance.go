package analyses

import "tessera/internal/ir"

// Dominance holds, per block, its immediate dominator and full dominator
// set, computed with the classic iterative algorithm (Cooper, Harvey &
// Kennedy) over the CFG's reverse-postorder.
type Dominance struct {
	idom map[string]string   // immediate dominator; entry maps to itself
	doms map[string][]string // full dominator set, entry first
}

// BuildDominance computes (or returns the cached) Dominance for fn.
func BuildDominance(fn *ir.Function, isa *ir.ISAContext) *Dominance {
	if v, ok := fn.CacheGet(ir.AnalysisDominance); ok {
		return v.(*Dominance)
	}
	cfg := BuildCFG(fn, isa)
	rpo := cfg.ReversePostorder()

	order := make(map[string]int, len(rpo))
	for i, b := range rpo {
		order[b] = i
	}

	entry := cfg.Entry()
	idom := make(map[string]string, len(rpo))
	idom[entry] = entry

	for changed := true; changed; {
		changed = false
		for _, b := range rpo {
			if b == entry {
				continue
			}
			var newIdom string
			for _, p := range cfg.Predecessors(b) {
				if idom[p] == "" {
					continue // predecessor not yet processed this pass
				}
				if newIdom == "" {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, order)
			}
			if newIdom != "" && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	d := &Dominance{idom: idom, doms: make(map[string][]string, len(rpo))}
	for _, b := range rpo {
		d.doms[b] = d.chain(b)
	}

	fn.CacheSet(ir.AnalysisDominance, d)
	return d
}

func intersect(a, b string, idom map[string]string, order map[string]int) string {
	for a != b {
		for order[a] > order[b] {
			a = idom[a]
		}
		for order[b] > order[a] {
			b = idom[b]
		}
	}
	return a
}

// chain walks idom pointers from b up to the entry, returning the
// dominator set in entry-first order.
func (d *Dominance) chain(b string) []string {
	var rev []string
	for {
		rev = append(rev, b)
		if d.idom[b] == b {
			break
		}
		b = d.idom[b]
	}
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}

// IDom returns block's immediate dominator, or "" if block is the entry or
// unreachable.
func (d *Dominance) IDom(block string) string {
	id, ok := d.idom[block]
	if !ok || id == block {
		return ""
	}
	return id
}

// Dominates reports whether a dominates b (a == b counts as dominating).
func (d *Dominance) Dominates(a, b string) bool {
	for _, x := range d.doms[b] {
		if x == a {
			return true
		}
	}
	return false
}

// Dominators returns b's full dominator set, entry first, b last.
func (d *Dominance) Dominators(b string) []string { return d.doms[b] }
