package selector

import (
	"fmt"
	"strconv"
	"strings"

	"tessera/internal/diag"
	"tessera/internal/ir"
)

// rewriter carries the per-function state a top-down rewrite pass needs:
// a fresh-temp counter that increments across the whole function (spec.md
// §4.2 note 2: "a fresh-temp generator that increments across the whole
// function"), so no two trees, in any block, ever collide on a generated
// name.
type rewriter struct {
	rs      *RuleSet
	m       Matches
	root    string // the designated root non-terminal, e.g. "reg"
	tmp     int
	out     []ir.Instruction
	fnName  string
	blkName string
}

// rewriteForest implements spec.md §4.2's top-down rewrite: each forest
// root is rewritten against rs.root in program order, emitting target
// instructions into a single output slice for the block.
func rewriteForest(rs *RuleSet, m Matches, roots []*Node, root, fnName, blkName string, tmp *int) ([]ir.Instruction, *diag.CompilerError) {
	rw := &rewriter{rs: rs, m: m, root: root, tmp: *tmp, fnName: fnName, blkName: blkName}
	for _, n := range roots {
		if _, ok := m[n].cost[root]; !ok {
			return nil, diag.NoCover(fnName, blkName, diag.Position{}, n.Op)
		}
		if err := rw.rewrite(n, root, true); err != nil {
			return nil, err
		}
	}
	*tmp = rw.tmp
	return rw.out, nil
}

// rewrite applies the chain of rules chosen for n against required (the
// non-terminal the caller needs n to produce), outermost chain rule first,
// then the underlying operator rule, executing each rule's action list.
// atRoot is true only for a forest root's own top-level call, the one case
// spec.md §4.2 asks to reuse the tree's existing IR destination register
// instead of minting a fresh temporary.
func (rw *rewriter) rewrite(n *Node, required string, atRoot bool) *diag.CompilerError {
	rec := rw.m[n]
	ruleIdx, ok := rec.rule[required]
	if !ok {
		return diag.NoCover(rw.fnName, rw.blkName, diag.Position{}, n.Op)
	}

	if ruleIdx < 0 {
		// A leaf's built-in match: nothing to rewrite, its D is already set.
		return nil
	}
	r := rw.rs.Rules[ruleIdx]

	if r.IsChain() {
		if err := rw.rewrite(n, r.Pattern.Chain, atRoot); err != nil {
			return err
		}
		return rw.applyActions(n, r, atRoot)
	}

	// Operator rule: rewrite every child against its required non-terminal
	// first (post-order, spec.md §5's "tree evaluation order is post-order").
	for i, childNT := range r.Pattern.Children {
		if err := rw.rewrite(n.Operands[i], childNT, false); err != nil {
			return err
		}
	}
	return rw.applyActions(n, r, atRoot)
}

// applyActions executes one rule's ordered action list against n, resolving
// placeholders via resolve.
func (rw *rewriter) applyActions(n *Node, r Rule, atRoot bool) *diag.CompilerError {
	for _, act := range r.Code {
		switch act.Op {
		case "set":
			if len(act.Args) != 2 {
				return diag.Invariant(rw.fnName, rw.blkName, fmt.Sprintf("set() expects 2 args, got %d", len(act.Args)))
			}
			val, err := rw.resolveValue(n, act.Args[1], atRoot)
			if err != nil {
				return err
			}
			if err := rw.bind(n, act.Args[0], val); err != nil {
				return err
			}
		case "emit":
			if len(act.Args) == 0 {
				return diag.Invariant(rw.fnName, rw.blkName, "emit() requires an opcode argument")
			}
			opName := act.Args[0]
			var args []string
			for _, raw := range act.Args[1:] {
				v, err := rw.resolveValue(n, raw, atRoot)
				if err != nil {
					return err
				}
				args = append(args, v)
			}
			rw.out = append(rw.out, ir.Instruction{Op: opName, Args: args})
			// "After emit, if the emitted target instruction has a def,
			// that def becomes the node's .D": nodeD already mints n's
			// fresh temporary lazily, the first time some later placeholder
			// asks for it, which is exactly the binding this emitted
			// instruction's destination needs to satisfy — no eager
			// assignment is needed here.
		default:
			return diag.Invariant(rw.fnName, rw.blkName, fmt.Sprintf("unknown rewrite action %q", act.Op))
		}
	}
	return nil
}

// bind assigns val to the field named by path (only ".D" is a legal
// assignment target: spec.md's set(dst,src) binds or rebinds a field, and
// the only mutable field a rule can rebind is a node's own def register).
// Node.D stores a bare register name (the convention buildBlockDAG and
// nodeD both use), so any sigil resolveValue added for emit's sake is
// stripped back off here.
func (rw *rewriter) bind(n *Node, path, val string) *diag.CompilerError {
	if path != "$.D" && path != ".D" {
		return diag.Invariant(rw.fnName, rw.blkName, fmt.Sprintf("set() target %q is not assignable", path))
	}
	n.D = strings.TrimPrefix(val, "%")
	return nil
}

// defD mints a fresh temporary for n's destination register. This is only
// ever reached for a node with no explicit IR destination of its own:
// buildBlockDAG already populates D for every Ins node that does have one
// (and extraction/cloning preserve it), which is what makes the "preserve
// user-visible names" optimization of spec.md §4.2 hold at the forest
// root automatically — nodeD returns that pre-existing D without calling
// here at all.
func (rw *rewriter) defD(n *Node, atRoot bool) {
	rw.tmp++
	n.D = fmt.Sprintf("t%d", rw.tmp)
}

// resolveValue resolves one placeholder or literal token from a rule's
// code field against n (spec.md §4.2 "Placeholder grammar"): $<dotted path>
// where a leading digit selects the d-th child operand and a following
// .val/.def/.name/.D reads a field of whatever node that digit selected (or
// of n itself, if the path has no leading digit). A token with no leading
// `$` is a literal, returned unchanged (e.g. an emit's opcode name, or a
// bare register name written directly in a rule's code field).
func (rw *rewriter) resolveValue(n *Node, tok string, atRoot bool) (string, *diag.CompilerError) {
	if !strings.HasPrefix(tok, "$") {
		return tok, nil
	}
	path := strings.TrimPrefix(tok, "$")
	parts := strings.Split(path, ".")

	target := n
	targetAtRoot := atRoot
	rest := parts
	if len(parts) > 0 {
		if idx, err := strconv.Atoi(parts[0]); err == nil {
			if idx < 0 || idx >= len(n.Operands) {
				return "", diag.Invariant(rw.fnName, rw.blkName, fmt.Sprintf("placeholder $%s: child index out of range", path))
			}
			target = n.Operands[idx]
			targetAtRoot = false
			rest = parts[1:]
		}
	}

	if len(rest) == 0 {
		return "%" + rw.nodeD(target, targetAtRoot), nil
	}
	switch rest[len(rest)-1] {
	case "val":
		return strconv.Itoa(target.ConstVal), nil
	case "def":
		return "%" + rw.nodeD(target, targetAtRoot), nil
	case "name":
		if target.Kind == KindBlockRef {
			return "@" + target.Name, nil
		}
		return "%" + target.Name, nil
	case "D":
		return "%" + rw.nodeD(target, targetAtRoot), nil
	}
	return "", diag.Invariant(rw.fnName, rw.blkName, fmt.Sprintf("placeholder $%s: unknown field %q", path, rest[len(rest)-1]))
}

// nodeD returns target's destination register, minting one if this is the
// first reference to an Ins node that has not emitted anything yet. The
// caller is responsible for the `%` sigil every register token carries in
// emitted Args — nodeD itself deals only in bare names, the same
// convention Node.D and Node.Name use internally.
func (rw *rewriter) nodeD(target *Node, atRoot bool) string {
	if target.D == "" {
		rw.defD(target, atRoot)
	}
	return target.D
}
