package selector

import (
	"tessera/internal/diag"
	"tessera/internal/ir"
)

// Selector lowers an IR Function block-by-block into a target-ISA Function
// using a loaded RuleSet (spec.md §4.2). Root is the designated root
// non-terminal every tree must reduce to (spec.md's scenario S2 uses
// "reg": every expression tree's value ends up in some register). A single
// Selector instance is meant for one Function's run: its fresh-temp counter
// increments across every block it processes (spec.md §4.2 note 2).
type Selector struct {
	Rules *RuleSet
	Root  string
	Arch  Arch

	tmp int
}

// NewSelector builds a Selector over rules, reducing every tree to root.
// A nil arch is replaced with NoopArch, which runs neither shipped
// architecture pass.
func NewSelector(rules *RuleSet, root string, arch Arch) *Selector {
	if arch == nil {
		arch = NoopArch{}
	}
	return &Selector{Rules: rules, Root: root, Arch: arch}
}

// Run lowers every block of fn in place: each block's instructions are
// replaced by the target instructions its expression forest rewrites to.
// fn must be in the IR this Selector's rule set was written against; the
// architecture pass then runs its pre-IR step before lowering and its
// post-ASM step after.
func (s *Selector) Run(fn *ir.Function, isa *ir.ISAContext) *diag.CompilerError {
	if err := s.Arch.PreIR(fn, isa); err != nil {
		return err
	}
	for _, b := range fn.Blocks {
		insNodes := buildBlockDAG(fn, isa, b)
		roots := dagToForest(insNodes)
		matches := matchTree(s.Rules, roots)
		out, err := rewriteForest(s.Rules, matches, roots, s.Root, fn.Name, b.Name, &s.tmp)
		if err != nil {
			return err
		}
		b.Instructions = out
	}
	fn.Invalidate()
	if err := s.Arch.PostASM(fn, isa); err != nil {
		return err
	}
	fn.Invalidate()
	return nil
}
