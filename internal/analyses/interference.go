package analyses

import "tessera/internal/ir"

// Interference is an undirected graph over virtual register names: two
// registers interfere if one is live at the point the other is defined
// (spec.md §4.3), the input the register allocator's coloring pass
// partitions into color classes.
type Interference struct {
	edges map[string]map[string]bool
}

// BuildInterference computes (or returns the cached) Interference graph for
// fn, using LiveNow to find, for every definition, the set of registers
// live immediately after it. ISA-reserved registers (e.g. sp) are left out
// of the graph entirely.
func BuildInterference(fn *ir.Function, isa *ir.ISAContext) *Interference {
	if v, ok := fn.CacheGet(ir.AnalysisInterference); ok {
		return v.(*Interference)
	}
	live := BuildLiveNow(fn, isa)
	reserved := func(reg string) bool { return isa != nil && isa.Reserved[reg] }

	g := &Interference{edges: make(map[string]map[string]bool)}
	for _, b := range fn.Blocks {
		after := live[b.Name]
		for i, in := range b.Instructions {
			var defs []string
			for _, d := range in.DefRegs(isa) {
				if !reserved(d) {
					defs = append(defs, d)
				}
			}
			if len(defs) == 0 {
				continue
			}
			g.touch(defs...)
			for _, d := range defs {
				for other := range after[i] {
					if other != d && !reserved(other) {
						g.add(d, other)
					}
				}
				// two simultaneous defs of the same instruction interfere
				// with each other too (e.g. a call clobbering several regs).
				for _, d2 := range defs {
					if d2 != d {
						g.add(d, d2)
					}
				}
			}
		}
	}

	fn.CacheSet(ir.AnalysisInterference, g)
	return g
}

func (g *Interference) touch(regs ...string) {
	for _, r := range regs {
		if g.edges[r] == nil {
			g.edges[r] = map[string]bool{}
		}
	}
}

func (g *Interference) add(a, b string) {
	g.touch(a, b)
	g.edges[a][b] = true
	g.edges[b][a] = true
}

// Neighbors returns reg's interference neighbors.
func (g *Interference) Neighbors(reg string) []string {
	out := make([]string, 0, len(g.edges[reg]))
	for n := range g.edges[reg] {
		out = append(out, n)
	}
	return out
}

// Degree returns the number of registers reg interferes with.
func (g *Interference) Degree(reg string) int { return len(g.edges[reg]) }

// Interferes reports whether a and b interfere.
func (g *Interference) Interferes(a, b string) bool { return g.edges[a][b] }

// Registers returns every register appearing in the graph (isolated
// registers included, with degree zero).
func (g *Interference) Registers() []string {
	out := make([]string, 0, len(g.edges))
	for r := range g.edges {
		out = append(out, r)
	}
	return out
}
