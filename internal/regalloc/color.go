package regalloc

import (
	"sort"

	"tessera/internal/analyses"
)

// ColorResult is the outcome of one coloring attempt over an interference
// graph: either a complete register -> color (0..k-1) assignment, or the
// single live range the algorithm has decided must be spilled before
// coloring can succeed (spec.md §4.3: "on failure, spill and restart").
type ColorResult struct {
	Assignment map[string]int
	Spill      string
	OK         bool
}

// ColorBottomUp implements spec.md §4.3's Bottom-Up coloring: repeatedly
// simplify the interference graph onto a stack — preferring any
// unconstrained node (current degree < k), else the constrained node with
// the minimum finite spill cost — then pop the stack and assign each
// popped node any color not used by an already-colored neighbor. The
// first node that runs out of available colors is reported as Spill; the
// caller is expected to spill it and call ColorBottomUp again.
func ColorBottomUp(ig *analyses.Interference, sc analyses.SpillCost, k int) ColorResult {
	regs := ig.Registers()
	sort.Strings(regs) // deterministic scan order before any cost tie-break

	degree := make(map[string]int, len(regs))
	removed := make(map[string]bool, len(regs))
	for _, r := range regs {
		degree[r] = ig.Degree(r)
	}

	stack := make([]string, 0, len(regs))
	for remaining := len(regs); remaining > 0; remaining-- {
		pick := pickUnconstrained(regs, removed, degree, k)
		if pick == "" {
			pick = pickMinSpillCost(regs, removed, sc)
		}
		if pick == "" {
			// every remaining node is unspillable and constrained: push
			// the first in deterministic order; it will fail to find a
			// color when popped, which the caller reports as the
			// unspillable failure.
			for _, r := range regs {
				if !removed[r] {
					pick = r
					break
				}
			}
		}
		removed[pick] = true
		for _, n := range ig.Neighbors(pick) {
			if !removed[n] {
				degree[n]--
			}
		}
		stack = append(stack, pick)
	}

	assignment := make(map[string]int, len(regs))
	for i := len(stack) - 1; i >= 0; i-- {
		r := stack[i]
		c, ok := firstFreeColor(ig, assignment, r, k)
		if !ok {
			return ColorResult{Spill: r}
		}
		assignment[r] = c
	}
	return ColorResult{Assignment: assignment, OK: true}
}

func pickUnconstrained(regs []string, removed map[string]bool, degree map[string]int, k int) string {
	for _, r := range regs {
		if !removed[r] && degree[r] < k {
			return r
		}
	}
	return ""
}

func pickMinSpillCost(regs []string, removed map[string]bool, sc analyses.SpillCost) string {
	best := ""
	var bestCost float64
	for _, r := range regs {
		if removed[r] || sc.Unspillable(r) {
			continue
		}
		c := sc.Cost(r)
		if best == "" || c < bestCost {
			best, bestCost = r, c
		}
	}
	return best
}

func firstFreeColor(ig *analyses.Interference, assignment map[string]int, r string, k int) (int, bool) {
	used := make(map[int]bool, k)
	for _, n := range ig.Neighbors(r) {
		if c, ok := assignment[n]; ok {
			used[c] = true
		}
	}
	for c := 0; c < k; c++ {
		if !used[c] {
			return c, true
		}
	}
	return 0, false
}

// ColorTopDown implements spec.md §4.3's Top-Down coloring: partition
// nodes into constrained (degree >= k) and unconstrained, assign
// constrained nodes first in ascending spill-cost order (with +Inf-cost
// nodes forced first, since they may never be the one spilled), then
// assign every unconstrained node, which cannot fail.
func ColorTopDown(ig *analyses.Interference, sc analyses.SpillCost, k int) ColorResult {
	regs := ig.Registers()
	sort.Strings(regs)

	var constrained, unconstrained []string
	for _, r := range regs {
		if ig.Degree(r) >= k {
			constrained = append(constrained, r)
		} else {
			unconstrained = append(unconstrained, r)
		}
	}
	sort.SliceStable(constrained, func(i, j int) bool {
		a, b := constrained[i], constrained[j]
		ai, bi := sc.Unspillable(a), sc.Unspillable(b)
		if ai != bi {
			return ai
		}
		ca, cb := sc.Cost(a), sc.Cost(b)
		if ca != cb {
			return ca < cb
		}
		return a < b
	})

	assignment := make(map[string]int, len(regs))
	for _, r := range constrained {
		c, ok := firstFreeColor(ig, assignment, r, k)
		if !ok {
			return ColorResult{Spill: r}
		}
		assignment[r] = c
	}
	for _, r := range unconstrained {
		c, ok := firstFreeColor(ig, assignment, r, k)
		if !ok {
			// Cannot happen for a true unconstrained node (degree < k
			// guarantees a free color among k); treated as a spill of
			// this node rather than a silent invariant break, so a bug
			// here still surfaces as a diagnosable allocator failure.
			return ColorResult{Spill: r}
		}
		assignment[r] = c
	}
	return ColorResult{Assignment: assignment, OK: true}
}
