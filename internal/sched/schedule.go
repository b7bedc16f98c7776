package sched

import (
	"sort"

	"tessera/internal/config"
	"tessera/internal/diag"
)

// nodeLatency returns the per-opcode issue latency for node i of g, or a
// metadata-gap error if the opcode has no entry and no "default" fallback
// (spec.md §4.1: "an unknown opcode is a hard error").
func nodeLatency(g *DepGraph, lat config.LatencyTable, i int) (int, *diag.CompilerError) {
	op := g.Nodes[i].Instr.Op
	c, ok := lat.Latency(op)
	if !ok {
		return 0, diag.MissingLatency(op)
	}
	return c, nil
}

// rank computes, per spec.md §4.1 step 2, each node's latency to the region
// sink: the longest delay-weighted path from the node to any node with no
// successors. Nodes are processed in decreasing index order, which is
// sufficient since the dependency graph never links a higher-index node
// back to a lower one (DepGraph.Succs only grows forward in program order).
func rank(g *DepGraph, lat config.LatencyTable) ([]int, *diag.CompilerError) {
	n := g.NumNodes()
	r := make([]int, n)
	ownLat := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		l, err := nodeLatency(g, lat, i)
		if err != nil {
			return nil, err
		}
		ownLat[i] = l
		best := 0
		for _, s := range g.Succs[i] {
			if r[s] > best {
				best = r[s]
			}
		}
		r[i] = ownLat[i] + best
	}
	return r, nil
}

// Result is the outcome of scheduling one path: the issue cycle assigned to
// every node of its dependency graph, in DepGraph.Nodes order.
type Result struct {
	StartCycle []int
}

// List runs the forward list scheduler of spec.md §4.1 steps 4-5 over g,
// honoring a machine model that issues at most one instruction per cycle.
// pinned optionally fixes a subset of nodes to a specific start cycle
// (spec.md step 3, "restore that prefix's schedule" for a path sharing a
// committed block prefix with an already-scheduled path) — every other
// node is free to be chosen by the tie-break heuristics. Scheduling is
// deterministic and total (spec.md §4.1 "Failure semantics"): the only
// failure mode is a missing latency entry.
func List(g *DepGraph, lat config.LatencyTable, pinned map[int]int) (*Result, *diag.CompilerError) {
	n := g.NumNodes()
	r, err := rank(g, lat)
	if err != nil {
		return nil, err
	}

	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		indegree[i] = len(g.Preds[i])
	}

	startCycle := make([]int, n)
	finish := make([]int, n)
	scheduled := make([]bool, n)
	active := make(map[int]bool)
	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	remaining := n
	for cycle := 0; remaining > 0; cycle++ {
		// Retire anything finishing at or before this cycle, releasing
		// successors whose last predecessor just completed.
		for idx := range active {
			if finish[idx] <= cycle {
				delete(active, idx)
				for _, s := range g.Succs[idx] {
					indegree[s]--
					if indegree[s] == 0 {
						ready = append(ready, s)
					}
				}
			}
		}
		if len(ready) == 0 {
			continue
		}

		pick := selectReady(ready, r, g, pinned, cycle)
		if pick < 0 {
			continue // the only pinned-for-this-cycle candidate isn't ready yet
		}

		// remove pick from ready
		next := ready[:0]
		for _, x := range ready {
			if x != pick {
				next = append(next, x)
			}
		}
		ready = next

		lat_, err := nodeLatency(g, lat, pick)
		if err != nil {
			return nil, err
		}
		startCycle[pick] = cycle
		finish[pick] = cycle + lat_
		active[pick] = true
		scheduled[pick] = true
		remaining--
	}

	return &Result{StartCycle: startCycle}, nil
}

// selectReady applies spec.md §4.1 step 5's tie-break order: a pinned node
// due this exact cycle always wins (it is re-emitting an already-fixed
// schedule, per step 3); otherwise (a) maximum latency-to-sink, then (b)
// maximum successor count, then (c) lowest node index for determinism.
// Returns -1 if ready holds only a pinned node whose fixed cycle hasn't
// arrived yet (nothing else may legally issue this cycle: doing so would
// use the cycle's one issue slot the pinned node needs to reclaim).
func selectReady(ready []int, r []int, g *DepGraph, pinned map[int]int, cycle int) int {
	for _, x := range ready {
		if c, ok := pinned[x]; ok && c == cycle {
			return x
		}
	}
	// Filter out any pinned node not yet due; it must wait, but other
	// unpinned ready nodes may still issue around it.
	var free []int
	for _, x := range ready {
		if c, ok := pinned[x]; ok && c > cycle {
			continue
		}
		free = append(free, x)
	}
	if len(free) == 0 {
		return -1
	}
	sort.SliceStable(free, func(i, j int) bool {
		a, b := free[i], free[j]
		if r[a] != r[b] {
			return r[a] > r[b]
		}
		if len(g.Succs[a]) != len(g.Succs[b]) {
			return len(g.Succs[a]) > len(g.Succs[b])
		}
		return a < b
	})
	return free[0]
}
