package sched

import (
	"strings"

	"tessera/internal/ir"
)

// node is one instruction's position along a scheduled path.
type node struct {
	Block string
	Index int // index within Block's original instruction list
	Instr ir.Instruction
}

// DepGraph is the per-path dependency DAG spec.md §4.1 step 1 builds: nodes
// are instruction positions along a path (the concatenation of each path
// block's instructions, in program order), edges x->y meaning x must issue
// no later than y. Graph construction never reorders Nodes, so successors
// always carry a higher index than their predecessors — the program order
// the DAG is already consistent with, which rank relies on to do a
// single backward (high-to-low index) pass instead of a topological sort.
type DepGraph struct {
	Nodes []node
	Succs [][]int
	Preds [][]int

	blockStart map[string]int
	blockEnd   map[string]int
	terminal   int
}

// NumNodes returns the number of positions in the graph.
func (g *DepGraph) NumNodes() int { return len(g.Nodes) }

// Terminal returns the node index of the path's final terminator, the sink
// every no-successor node is anchored to.
func (g *DepGraph) Terminal() int { return g.terminal }

// BlockOf returns the original block name a node index belongs to.
func (g *DepGraph) BlockOf(i int) string { return g.Nodes[i].Block }

// BuildDepGraph builds the dependency graph for one EBB path (spec.md §4.1,
// "Per-path scheduling" step 1). path must be a chain of block names
// belonging to the same EBB, head first, as produced by analyses.EBB.Paths.
func BuildDepGraph(fn *ir.Function, isa *ir.ISAContext, path []string) *DepGraph {
	g := &DepGraph{blockStart: map[string]int{}, blockEnd: map[string]int{}}

	for _, bname := range path {
		b := fn.BlockByName(bname)
		g.blockStart[bname] = len(g.Nodes)
		for i, in := range b.Instructions {
			g.Nodes = append(g.Nodes, node{Block: bname, Index: i, Instr: in})
		}
		g.blockEnd[bname] = len(g.Nodes)
	}
	n := len(g.Nodes)
	g.Succs = make([][]int, n)
	g.Preds = make([][]int, n)
	g.terminal = n - 1

	addEdge := func(x, y int) {
		if x == y {
			return
		}
		for _, s := range g.Succs[x] {
			if s == y {
				return
			}
		}
		g.Succs[x] = append(g.Succs[x], y)
		g.Preds[y] = append(g.Preds[y], x)
	}

	lastDef := map[string]int{}        // reg -> most recent defining node
	usesSinceDef := map[string][]int{} // reg -> uses recorded since its last def
	var storesInBlock []int

	for _, bname := range path {
		storesInBlock = storesInBlock[:0]
		for idx := g.blockStart[bname]; idx < g.blockEnd[bname]; idx++ {
			in := g.Nodes[idx].Instr

			if in.IsPhi() {
				// A phi's operands belong to specific predecessor edges, not
				// to this linear path position, so it contributes no
				// register use here; its destination is still a def other
				// instructions in the path may depend on.
				def, _ := in.PhiOperands()
				lastDef[def] = idx
				usesSinceDef[def] = nil
				continue
			}

			for _, r := range in.UseRegs(isa, nil) {
				if d, ok := lastDef[r]; ok {
					addEdge(d, idx) // true dependence: def -> use
				}
				usesSinceDef[r] = append(usesSinceDef[r], idx)
			}
			if isLoad(in.Op) {
				for _, s := range storesInBlock {
					addEdge(s, idx) // memory ordering: store -> later load, same block
				}
			}
			if isStore(in.Op) {
				storesInBlock = append(storesInBlock, idx)
			}
			for _, r := range in.DefRegs(isa) {
				if d, ok := lastDef[r]; ok {
					addEdge(d, idx) // output dependence: def -> redef
				}
				for _, u := range usesSinceDef[r] {
					addEdge(u, idx) // anti dependence: use -> redef
				}
				lastDef[r] = idx
				usesSinceDef[r] = nil
			}
		}
	}

	// Last-terminal edges: every node with no successors so far anchors to
	// the path's final terminator (spec.md §4.1, "this anchors the
	// terminator"). Computed before block-entry edges so it reflects only
	// true/output/anti/memory dependence, per the order spec.md lists them.
	// These edges are added once, here, at graph-build time; they are not
	// recomputed as the scheduler's ready set changes.
	for i := 0; i < n-1; i++ {
		if len(g.Succs[i]) == 0 {
			addEdge(i, g.terminal)
		}
	}

	// Block-entry edges: an instruction not yet anyone's successor, sitting
	// in a non-first block of the path, is pinned after the previous
	// block's terminator so it cannot migrate before its original block's
	// entry. The reverse (preventing later migration) is deliberately not
	// enforced here, matching spec.md §4.1 exactly — later migration is
	// what the compensation-code step in reorder.go handles instead.
	for bi := 1; bi < len(path); bi++ {
		prevTerm := g.blockEnd[path[bi-1]] - 1
		for idx := g.blockStart[path[bi]]; idx < g.blockEnd[path[bi]]; idx++ {
			if len(g.Preds[idx]) == 0 {
				addEdge(prevTerm, idx)
			}
		}
	}

	return g
}

// isLoad and isStore classify an opcode by name convention: this IR's ISA
// format carries no separate memory-operation kind (§3's instruction kinds
// are normal/call/return/branch only), and spec.md's own worked example
// (§8, scenario S1) names its memory opcodes "loadAI" and "store" literally.
func isLoad(op string) bool  { return strings.Contains(strings.ToLower(op), "load") }
func isStore(op string) bool { return strings.Contains(strings.ToLower(op), "store") }
