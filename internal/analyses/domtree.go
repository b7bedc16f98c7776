package analyses

import "tessera/internal/ir"

// DomTree is the dominator tree: each block's immediate children in
// declaration order, derived from Dominance.
type DomTree struct {
	children map[string][]string
	root     string
}

// BuildDomTree computes (or returns the cached) DomTree for fn.
func BuildDomTree(fn *ir.Function, isa *ir.ISAContext) *DomTree {
	if v, ok := fn.CacheGet(ir.AnalysisDomTree); ok {
		return v.(*DomTree)
	}
	cfg := BuildCFG(fn, isa)
	dom := BuildDominance(fn, isa)

	t := &DomTree{children: make(map[string][]string), root: cfg.Entry()}
	for _, b := range cfg.Blocks() {
		if id := dom.IDom(b); id != "" {
			t.children[id] = append(t.children[id], b)
		}
	}

	fn.CacheSet(ir.AnalysisDomTree, t)
	return t
}

// Children returns block's immediate dominator-tree children.
func (t *DomTree) Children(block string) []string { return t.children[block] }

// Root returns the dominator tree's root (the function's entry block).
func (t *DomTree) Root() string { return t.root }

// Preorder returns every reachable block in dominator-tree preorder,
// children visited in declaration order.
func (t *DomTree) Preorder() []string {
	var out []string
	var visit func(string)
	visit = func(b string) {
		out = append(out, b)
		for _, c := range t.children[b] {
			visit(c)
		}
	}
	visit(t.root)
	return out
}
