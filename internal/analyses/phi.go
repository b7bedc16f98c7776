package analyses

import (
	"tessera/internal/diag"
	"tessera/internal/ir"
)

// ValidatePhis checks that every phi instruction names exactly one operand
// per predecessor of its block and that every named predecessor actually
// is one (spec.md §7's phi-arity-mismatch class), checks that need the CFG
// and so cannot live in internal/ir.Validate.
func ValidatePhis(mod *ir.Module, filename string) []*diag.CompilerError {
	var errs []*diag.CompilerError
	for _, fn := range mod.Functions {
		cfg := BuildCFG(fn, mod.ISA)
		for _, b := range fn.Blocks {
			preds := make(map[string]bool, len(cfg.Predecessors(b.Name)))
			for _, p := range cfg.Predecessors(b.Name) {
				preds[p] = true
			}
			for _, in := range b.Instructions {
				if !in.IsPhi() {
					continue
				}
				pos := diag.Position{Filename: filename}
				_, pairs := in.PhiOperands()
				if len(pairs) != len(preds) {
					errs = append(errs, diag.PhiArityMismatch(fn.Name, b.Name, pos, len(pairs), len(preds)))
				}
				for _, pr := range pairs {
					if !preds[pr[0]] {
						errs = append(errs, diag.UnknownBranchTarget(fn.Name, b.Name, pr[0], pos))
					}
				}
			}
		}
	}
	return errs
}

// defSite records where a register is defined: its block and instruction
// index within that block (-1 for a phi, which is treated as defining at
// the very top of the block for dominance purposes).
type defSite struct {
	block string
	index int
}

// ValidateReachingDefs checks that every non-phi register use is dominated
// by its definition, and that every phi operand's definition dominates
// the named predecessor (spec.md §7's undefined-SSA-name class). This is
// the SSA dominance property, not a full reaching-definitions dataflow:
// since the IR is required to already be in single-assignment form on
// input (spec.md §3), a definition dominating every use is both necessary
// and sufficient.
func ValidateReachingDefs(mod *ir.Module, filename string) []*diag.CompilerError {
	var errs []*diag.CompilerError
	for _, fn := range mod.Functions {
		dom := BuildDominance(fn, mod.ISA)
		defs := collectDefSites(fn, mod.ISA)

		for _, b := range fn.Blocks {
			for i, in := range b.Instructions {
				pos := diag.Position{Filename: filename}
				if in.IsPhi() {
					_, pairs := in.PhiOperands()
					for _, pr := range pairs {
						site, ok := defs[pr[1]]
						if !ok {
							errs = append(errs, diag.UndefinedSSAName(fn.Name, b.Name, pr[1], pos))
							continue
						}
						if site.block != pr[0] && !dom.Dominates(site.block, pr[0]) {
							errs = append(errs, diag.UndefinedSSAName(fn.Name, b.Name, pr[1], pos))
						}
					}
					continue
				}
				for _, u := range in.UseRegs(mod.ISA, nil) {
					site, ok := defs[u]
					if !ok {
						errs = append(errs, diag.UndefinedSSAName(fn.Name, b.Name, u, pos))
						continue
					}
					if !dominatesPoint(dom, site, b.Name, i) {
						errs = append(errs, diag.UndefinedSSAName(fn.Name, b.Name, u, pos))
					}
				}
			}
		}
	}
	return errs
}

func collectDefSites(fn *ir.Function, isa *ir.ISAContext) map[string]defSite {
	out := make(map[string]defSite)
	for _, b := range fn.Blocks {
		for i, in := range b.Instructions {
			if in.IsPhi() {
				def, _ := in.PhiOperands()
				out[def] = defSite{block: b.Name, index: -1}
				continue
			}
			for _, d := range in.DefRegs(isa) {
				out[d] = defSite{block: b.Name, index: i}
			}
		}
	}
	for _, a := range fn.Args {
		out[a] = defSite{block: fn.Entry().Name, index: -1}
	}
	return out
}

// dominatesPoint reports whether a definition at site reaches the point
// (useBlock, useIndex): either site.block strictly dominates useBlock, or
// they are the same block and the definition's index precedes useIndex
// (phi defs, index -1, count as preceding every real instruction).
func dominatesPoint(dom *Dominance, site defSite, useBlock string, useIndex int) bool {
	if site.block == useBlock {
		return site.index < useIndex
	}
	return dom.Dominates(site.block, useBlock)
}
