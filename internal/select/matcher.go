package selector

import "strconv"

// match records, for one forest node, the cheapest rule found so far for
// each non-terminal it has ever matched, plus the total cost of that match.
type match struct {
	cost map[string]int
	rule map[string]int // non-terminal -> index into RuleSet.Rules
}

func newMatch() *match {
	return &match{cost: map[string]int{}, rule: map[string]int{}}
}

// Matches maps every forest Node to its match record, built by matchTree.
type Matches map[*Node]*match

// matchTree implements spec.md §4.2's bottom-up matching pass over every
// tree in a forest: each node is visited post-order (children matched
// before their parent, since a parent rule's cost depends on its children's
// already-known best costs), then record() applies every candidate rule
// and closes the result under chain rules to a fixpoint.
func matchTree(rs *RuleSet, roots []*Node) Matches {
	m := Matches{}
	var visit func(n *Node)
	visit = func(n *Node) {
		if _, ok := m[n]; ok {
			return
		}
		for _, op := range n.Operands {
			visit(op)
		}
		m[n] = newMatch()
		recordMatches(rs, m, n)
	}
	for _, root := range roots {
		visit(root)
	}
	return m
}

// recordMatches applies every rule that could possibly match node n and
// closes the result under chain rules until no non-terminal's best cost
// improves further (spec.md §4.2: "close under chain rules... for every
// chain rule with RHS equal to the just-updated LHS"). On an exact cost tie
// the later rule wins, per spec.md §4.2's "previous best cost was ≥ c,
// record (rule, c) as the new best".
func recordMatches(rs *RuleSet, m Matches, n *Node) {
	rec := m[n]

	tryRecord := func(lhs string, cost int, ruleIdx int) bool {
		if best, ok := rec.cost[lhs]; ok && best < cost {
			return false
		}
		rec.cost[lhs] = cost
		rec.rule[lhs] = ruleIdx
		return true
	}

	var worklist []string

	if n.IsLeaf() {
		for _, lhs := range leafNonTerminals(n) {
			if tryRecord(lhs, 0, -1) {
				worklist = append(worklist, lhs)
			}
		}
	} else {
		for _, idx := range rs.ByOp[n.Op] {
			r := rs.Rules[idx]
			if len(r.Pattern.Children) != len(n.Operands) {
				continue
			}
			total := r.Cost
			ok := true
			for i, childNT := range r.Pattern.Children {
				c, has := m[n.Operands[i]].cost[childNT]
				if !has {
					ok = false
					break
				}
				total += c
			}
			if !ok {
				continue
			}
			if tryRecord(r.LHS, total, idx) {
				worklist = append(worklist, r.LHS)
			}
		}
	}

	for len(worklist) > 0 {
		rhs := worklist[0]
		worklist = worklist[1:]
		base := rec.cost[rhs]
		for _, idx := range rs.ByChainRHS[rhs] {
			r := rs.Rules[idx]
			total := base + r.Cost
			if tryRecord(r.LHS, total, idx) {
				worklist = append(worklist, r.LHS)
			}
		}
	}
}

// leafNonTerminals returns every built-in non-terminal a leaf node matches
// at cost 0: the generic __reg__/__block__/__const__ family, plus, for a
// constant, the value-specific __const__<k> non-terminal spec.md §4.2
// calls out ("__const__<k> matches a specific integer constant") so a rule
// can require an exact immediate.
func leafNonTerminals(n *Node) []string {
	switch n.Kind {
	case KindConst:
		return []string{NTConst, constNonTerminal(n.ConstVal)}
	case KindReg:
		return []string{NTReg}
	case KindBlockRef:
		return []string{NTBlock}
	}
	return nil
}

func constNonTerminal(v int) string {
	return NTConst + strconv.Itoa(v)
}
