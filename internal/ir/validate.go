package ir

import "tessera/internal/diag"

// Validate runs the structural checks spec.md §5/§7/§8 ask for that do not
// require dataflow: every block is non-empty and terminator-shaped, every
// branch target exists, block names are unique per function, every token
// well-formed, and (when mod.ISA is set) every opcode known. It returns
// every violation found rather than stopping at the first one, since a
// tool should report every problem in one pass.
//
// Checks that need a CFG (phi arity, undefined SSA names) live in
// internal/analyses.ValidatePhis and internal/analyses.ValidateReachingDefs,
// run by callers after this passes, matching spec.md §5's "validated once
// after parse and once after each pass."
func Validate(mod *Module, filename string) []*diag.CompilerError {
	var errs []*diag.CompilerError
	for _, fn := range mod.Functions {
		errs = append(errs, validateFunction(mod.ISA, fn, filename)...)
	}
	return errs
}

func validateFunction(isa *ISAContext, fn *Function, filename string) []*diag.CompilerError {
	var errs []*diag.CompilerError

	seen := make(map[string]bool, len(fn.Blocks))
	names := make(map[string]bool, len(fn.Blocks))
	for _, b := range fn.Blocks {
		names[b.Name] = true
	}

	for _, b := range fn.Blocks {
		if seen[b.Name] {
			errs = append(errs, diag.DuplicateBlockName(fn.Name, b.Name, diag.Position{Filename: filename}))
		}
		seen[b.Name] = true

		if len(b.Instructions) == 0 {
			errs = append(errs, diag.EmptyBlock(fn.Name, b.Name, diag.Position{Filename: filename}))
			continue
		}

		for i, in := range b.Instructions {
			pos := diag.Position{Filename: filename}
			isTerm := isa != nil && isa.IsTerminator(in.Op)
			isLast := i == len(b.Instructions)-1

			if isa != nil {
				if isLast && !isTerm {
					errs = append(errs, diag.MisplacedTerminator(fn.Name, b.Name, pos, true))
				}
				if !isLast && isTerm {
					errs = append(errs, diag.MisplacedTerminator(fn.Name, b.Name, pos, false))
				}
				if _, ok := isa.Opcodes[in.Op]; !ok && in.Op != "phi" {
					errs = append(errs, diag.UnknownOpcode(fn.Name, b.Name, in.Op, pos, closestOpcode(isa, in.Op)))
					continue
				}
			}

			for _, tok := range in.Args {
				if !validToken(tok) {
					errs = append(errs, diag.MalformedToken(fn.Name, b.Name, tok, pos))
				}
			}

			if isTerm {
				for _, t := range in.BranchTargets(isa) {
					if !names[t] {
						errs = append(errs, diag.UnknownBranchTarget(fn.Name, b.Name, t, pos))
					}
				}
			}
		}
	}

	return errs
}

func validToken(tok string) bool {
	if tok == "" {
		return false
	}
	switch tok[0] {
	case '%', '@':
		return len(tok) > 1
	default:
		return isConstant(tok)
	}
}

// closestOpcode returns the ISA opcode with the smallest edit distance to
// op, used only to populate a "did you mean" suggestion; empty if the ISA
// has no opcodes or op is already an exact match.
func closestOpcode(isa *ISAContext, op string) string {
	best, bestDist := "", -1
	for known := range isa.Opcodes {
		d := editDistance(op, known)
		if bestDist == -1 || d < bestDist {
			best, bestDist = known, d
		}
	}
	if bestDist >= 0 && bestDist <= 2 {
		return best
	}
	return ""
}

func editDistance(a, b string) int {
	da := make([]int, len(b)+1)
	for j := range da {
		da[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := da[0]
		da[0] = i
		for j := 1; j <= len(b); j++ {
			tmp := da[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			da[j] = min3(da[j]+1, da[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return da[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
