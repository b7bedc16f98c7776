package sched

import (
	"sort"

	"tessera/internal/analyses"
	"tessera/internal/ir"
)

// reorder applies spec.md §4.1's "Code reordering and compensation" step:
// walk the computed start-cycle map in ascending order, append each
// instruction to the block it originally belonged to, except when its
// cycle places it past its own block's terminator — then it migrates
// forward into whichever later path block its cycle actually falls in,
// and a copy of it is prepended to every CFG successor of its ORIGINAL
// block that is not the path's continuation out of that block (the
// off-path edges the migrated instruction's original, unconditional
// execution must still be honored on). Terminators themselves never
// migrate: one stays the fixed last instruction of each path block.
//
// Returns, for every block in path, its final per-instruction start cycle
// (same order as the block's rewritten Instructions) so a later path
// sharing this one as a committed prefix can pin those instructions to the
// cycles already decided here (spec.md step 3).
func reorder(fn *ir.Function, isa *ir.ISAContext, cfg *analyses.CFG, path []string, g *DepGraph, res *Result) map[string][]int {
	n := g.NumNodes()
	pathPos := make(map[string]int, len(path))
	for i, b := range path {
		pathPos[b] = i
	}
	termIdx := make(map[string]int, len(path))
	for _, b := range path {
		termIdx[b] = g.blockEnd[b] - 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if res.StartCycle[a] != res.StartCycle[b] {
			return res.StartCycle[a] < res.StartCycle[b]
		}
		return a < b
	})

	newContent := make(map[string][]ir.Instruction, len(path))
	for _, b := range path {
		newContent[b] = nil
	}
	compensations := make(map[string][]ir.Instruction)

	isTerminator := func(i int) bool {
		return i == termIdx[g.BlockOf(i)]
	}

	for _, i := range order {
		if isTerminator(i) {
			continue // placed last, below
		}
		origin := g.BlockOf(i)
		originPos := pathPos[origin]
		dest := origin
		for j := originPos; j < len(path); j++ {
			dest = path[j]
			if res.StartCycle[i] <= res.StartCycle[termIdx[path[j]]] {
				break
			}
		}
		newContent[dest] = append(newContent[dest], g.Nodes[i].Instr)

		if dest == origin {
			continue
		}
		var nextPath string
		if originPos+1 < len(path) {
			nextPath = path[originPos+1]
		}
		for _, succ := range cfg.Successors(origin) {
			if succ == nextPath {
				continue
			}
			compensations[succ] = append(compensations[succ], g.Nodes[i].Instr)
		}
	}

	for _, b := range path {
		newContent[b] = append(newContent[b], g.Nodes[termIdx[b]].Instr)
	}

	touched := make(map[string][]ir.Instruction, len(path)+len(compensations))
	for b, c := range newContent {
		touched[b] = c
	}
	get := func(b string) []ir.Instruction {
		if c, ok := touched[b]; ok {
			return c
		}
		blk := fn.BlockByName(b)
		out := make([]ir.Instruction, len(blk.Instructions))
		copy(out, blk.Instructions)
		return out
	}
	// Compensation succs in stable key order so output is deterministic.
	var succKeys []string
	for b := range compensations {
		succKeys = append(succKeys, b)
	}
	sort.Strings(succKeys)
	for _, succ := range succKeys {
		copies := compensations[succ]
		existing := get(succ)
		merged := make([]ir.Instruction, 0, len(copies)+len(existing))
		merged = append(merged, copies...)
		merged = append(merged, existing...)
		touched[succ] = merged
	}

	for b, content := range touched {
		fn.BlockByName(b).Instructions = content
	}
	fn.Invalidate()

	// Recover the cycle each final instruction of a path block was
	// assigned, in the same order reorder placed them, so a later path
	// sharing this block as a committed prefix can pin by position.
	placedAt := make(map[string][]int, len(path))
	for _, i := range order {
		if isTerminator(i) {
			continue
		}
		origin := g.BlockOf(i)
		originPos := pathPos[origin]
		dest := origin
		for j := originPos; j < len(path); j++ {
			dest = path[j]
			if res.StartCycle[i] <= res.StartCycle[termIdx[path[j]]] {
				break
			}
		}
		placedAt[dest] = append(placedAt[dest], res.StartCycle[i])
	}
	finalCycles := make(map[string][]int, len(path))
	for _, b := range path {
		finalCycles[b] = append(placedAt[b], res.StartCycle[termIdx[b]])
	}
	return finalCycles
}
