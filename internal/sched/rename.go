// Package sched implements the local-list / EBB instruction scheduler
// (spec.md §4.1): SSA-like renaming, EBB path enumeration, per-path
// dependency-graph construction and list scheduling, and the final code
// reordering with cross-block compensation code.
package sched

import (
	"fmt"

	"tessera/internal/analyses"
	"tessera/internal/ir"
)

// Rename performs the pre-pass SSA-like renaming spec.md §4.1 requires
// before scheduling: for each block, for each definition whose defined
// name is not live out of the block, the definition and every subsequent
// use within the block (until the name is redefined) is renamed to a
// fresh name. This removes anti- and output-dependences that would
// otherwise pin instructions to their original relative order for no
// semantic reason, leaving only the dependences spec.md §4.1 actually
// wants the scheduler to respect.
//
// Rename mutates fn's blocks in place and invalidates fn's analysis cache,
// since LiveOut depends on the unrenamed names being stable during its own
// computation — callers must compute LiveOut first in their own pass and
// must not reuse it afterward.
func Rename(fn *ir.Function, isa *ir.ISAContext) {
	liveOut := analyses.BuildLiveOut(fn, isa)
	counter := 0

	for _, b := range fn.Blocks {
		out := liveOut[b.Name]
		current := map[string]string{} // original name -> current rename, reset on redefinition

		for i := range b.Instructions {
			in := b.Instructions[i]
			if in.IsPhi() {
				continue // phi operands/results are not subject to intra-block renaming
			}
			kinds := ir.ArgKinds(isa, in)
			originalBare := make([]string, len(in.Args))
			originalSigil := make([]string, len(in.Args))
			for ai, tok := range in.Args {
				originalBare[ai] = stripSigil(tok)
				originalSigil[ai] = sigilFor(tok)
			}

			// Pass 1: substitute every read (RegUse and the read half of a
			// UseDef) with whatever name currently stands in for it.
			for ai, kind := range kinds {
				if kind != ir.ArgRegUse && kind != ir.ArgUseDef {
					continue
				}
				if r, ok := current[originalBare[ai]]; ok {
					in.Args[ai] = originalSigil[ai] + r
				}
			}
			// Pass 2: every write (RegDef and the write half of a UseDef)
			// gets a fresh name unless it is live out of the block, in
			// which case the original name must survive unchanged. Uses
			// the name's ORIGINAL identity (captured before pass 1), since
			// liveOut is keyed by pre-renaming names.
			for ai, kind := range kinds {
				if kind != ir.ArgRegDef && kind != ir.ArgUseDef {
					continue
				}
				bare := originalBare[ai]
				if out[bare] {
					delete(current, bare) // live out: keep the original name
					continue
				}
				counter++
				fresh := fmt.Sprintf("%s.sched%d", bare, counter)
				current[bare] = fresh
				in.Args[ai] = originalSigil[ai] + fresh
			}
			b.Instructions[i] = in
		}
	}
	fn.Invalidate()
}

func sigilFor(tok string) string {
	if len(tok) > 0 && (tok[0] == '%' || tok[0] == '@') {
		return string(tok[0])
	}
	return ""
}

func stripSigil(tok string) string {
	if len(tok) > 0 && (tok[0] == '%' || tok[0] == '@') {
		return tok[1:]
	}
	return tok
}
