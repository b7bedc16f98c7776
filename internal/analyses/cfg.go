// Package analyses implements the pure functions spec.md §2/§3 calls the
// "Analyses" cluster: CFG, LiveOut, LiveNow, Dominance, DominatorTree,
// DominanceFrontier, block-frequency, EBB partitioning, interference, and
// spill cost. Every analysis is a function of a Function's current
// instructions; results are cached on the Function via its typed
// AnalysisKind slots (internal/ir/cache.go) and must be invalidated by any
// pass that mutates the function.
//
// Grounded on the teacher's internal/semantic/flow_analyzer.go (iterative
// CFG dataflow) and internal/semantic/context.go / symbols.go (scoped
// lookups), adapted from a type-checker's def-use tracking to a
// backend's liveness/dominance/frequency tracking.
package analyses

import "tessera/internal/ir"

// CFG is the directed graph with one node per BasicBlock of a Function.
type CFG struct {
	fn    *ir.Function
	succ  map[string][]string
	pred  map[string][]string
	order []string // blocks in declaration order, for deterministic iteration
}

// BuildCFG computes (or returns the cached) CFG for fn under isa.
func BuildCFG(fn *ir.Function, isa *ir.ISAContext) *CFG {
	if v, ok := fn.CacheGet(ir.AnalysisCFG); ok {
		return v.(*CFG)
	}
	c := &CFG{
		fn:   fn,
		succ: make(map[string][]string, len(fn.Blocks)),
		pred: make(map[string][]string, len(fn.Blocks)),
	}
	for _, b := range fn.Blocks {
		c.order = append(c.order, b.Name)
		c.succ[b.Name] = nil
	}
	for _, b := range fn.Blocks {
		term := b.Terminator()
		for _, t := range term.BranchTargets(isa) {
			c.succ[b.Name] = append(c.succ[b.Name], t)
			c.pred[t] = append(c.pred[t], b.Name)
		}
	}
	fn.CacheSet(ir.AnalysisCFG, c)
	return c
}

// Successors returns block's successors in terminator-argument order.
func (c *CFG) Successors(block string) []string { return c.succ[block] }

// Predecessors returns block's predecessors in the order discovered while
// scanning the function top to bottom.
func (c *CFG) Predecessors(block string) []string { return c.pred[block] }

// Blocks returns all block names in the function's declared order.
func (c *CFG) Blocks() []string { return c.order }

// Entry returns the entry block's name.
func (c *CFG) Entry() string {
	if len(c.order) == 0 {
		return ""
	}
	return c.order[0]
}

// ReversePostorder returns block names in reverse-postorder of a DFS from
// the entry, the iteration order dataflow and dominance both want for fast
// convergence. Unreachable blocks are appended afterward in declared order
// so callers still see every block.
func (c *CFG) ReversePostorder() []string {
	visited := make(map[string]bool, len(c.order))
	var post []string
	var visit func(string)
	visit = func(b string) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range c.succ[b] {
			visit(s)
		}
		post = append(post, b)
	}
	visit(c.Entry())

	rpo := make([]string, 0, len(c.order))
	for i := len(post) - 1; i >= 0; i-- {
		rpo = append(rpo, post[i])
	}
	for _, b := range c.order {
		if !visited[b] {
			rpo = append(rpo, b)
		}
	}
	return rpo
}

// BackEdges returns the set of edges (tail -> head) that are back edges of
// a DFS from the entry, i.e. head is an ancestor of tail in the DFS tree.
// head is therefore a natural-loop header. Used by BlockFreq.
func (c *CFG) BackEdges() [][2]string {
	onStack := make(map[string]bool)
	visited := make(map[string]bool)
	var edges [][2]string
	var visit func(string)
	visit = func(b string) {
		visited[b] = true
		onStack[b] = true
		for _, s := range c.succ[b] {
			if onStack[s] {
				edges = append(edges, [2]string{b, s})
				continue
			}
			if !visited[s] {
				visit(s)
			}
		}
		onStack[b] = false
	}
	visit(c.Entry())
	return edges
}
