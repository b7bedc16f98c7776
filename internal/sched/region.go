package sched

import (
	"fmt"
	"sort"
	"strings"

	"tessera/internal/analyses"
	"tessera/internal/config"
	"tessera/internal/diag"
	"tessera/internal/ir"
	"tessera/internal/mdlog"
)

// Scheduler runs the local-list/EBB instruction scheduler (spec.md §4.1)
// over a Function: the SSA-like renaming pre-pass, EBB path enumeration
// sorted globally by probability, then per-path dependency-graph
// construction, list scheduling, and compensation-code reordering. A
// block's schedule is fixed the first time some path reaches it; a later
// path sharing that block as a prefix "restores" its already-decided
// per-instruction cycles (spec.md step 3) instead of recomputing them, by
// pinning those nodes in the list scheduler to their recorded cycle.
type Scheduler struct {
	isa  *ir.ISAContext
	lat  config.LatencyTable
	sink mdlog.Sink

	done      map[string]bool
	committed map[string][]int // block -> final start cycle per instruction, current order
}

// NewScheduler builds a Scheduler. A nil sink is replaced by mdlog.NullSink.
func NewScheduler(isa *ir.ISAContext, lat config.LatencyTable, sink mdlog.Sink) *Scheduler {
	if sink == nil {
		sink = mdlog.NullSink{}
	}
	return &Scheduler{
		isa: isa, lat: lat, sink: sink,
		done:      map[string]bool{},
		committed: map[string][]int{},
	}
}

// Run reorders fn's blocks in place: one Scheduler instance must not be
// reused across unrelated functions, since its committed-prefix bookkeeping
// is per-Function.
func (s *Scheduler) Run(fn *ir.Function) *diag.CompilerError {
	Rename(fn, s.isa)
	cfg := analyses.BuildCFG(fn, s.isa)
	ebb := analyses.BuildEBB(fn, s.isa)

	var all []analyses.Path
	for _, root := range ebb.Roots() {
		all = append(all, ebb.Paths(root, cfg)...)
	}
	// Global probability-descending order (spec.md §4.1 "Region
	// selection"); ties keep discovery order (roots in declaration order,
	// depth-first within a root) for determinism.
	sort.SliceStable(all, func(i, j int) bool { return all[i].Probability > all[j].Probability })

	for _, p := range all {
		if s.allDone(p.Blocks) {
			continue
		}
		if err := s.schedulePath(fn, cfg, p.Blocks); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) allDone(blocks []string) bool {
	for _, b := range blocks {
		if !s.done[b] {
			return false
		}
	}
	return true
}

func (s *Scheduler) schedulePath(fn *ir.Function, cfg *analyses.CFG, path []string) *diag.CompilerError {
	g := BuildDepGraph(fn, s.isa, path)

	pinned := make(map[int]int)
	for i := 0; i < g.NumNodes(); i++ {
		b := g.BlockOf(i)
		if !s.done[b] {
			continue
		}
		cycles, ok := s.committed[b]
		idx := g.Nodes[i].Index
		// A block whose final content grew via a compensation-copy prepend
		// since it was committed has more entries than cycles[] recorded;
		// those extra leading instructions are simply left unpinned rather
		// than mis-indexed, a fallback for the rare case of an EBB path
		// looping back on its own head.
		if ok && idx < len(cycles) {
			pinned[i] = cycles[idx]
		}
	}

	res, err := List(g, s.lat, pinned)
	if err != nil {
		return err
	}

	s.sink.Section(fmt.Sprintf("schedule path %s", strings.Join(path, " -> ")))
	for i := 0; i < g.NumNodes(); i++ {
		s.sink.Row(res.StartCycle[i], g.BlockOf(i), g.Nodes[i].Instr.String())
	}

	finalCycles := reorder(fn, s.isa, cfg, path, g, res)
	for _, b := range path {
		s.done[b] = true
		s.committed[b] = finalCycles[b]
	}
	return nil
}
