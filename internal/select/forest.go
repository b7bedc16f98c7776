package selector

import (
	"tessera/internal/ir"
)

// NodeKind tags the variant a Node represents in the expression DAG/forest
// spec.md §4.2's block-to-forest conversion builds.
type NodeKind int

const (
	KindConst NodeKind = iota
	KindReg
	KindBlockRef
	KindIns
)

// Node is one DAG/forest vertex. Const/Reg/BlockRef nodes are leaves; Ins
// nodes wrap one IR instruction's opcode and its operand Nodes. D is the
// register name the node's value is bound to once rewritten: for Reg and
// BlockRef leaves, and for Ins nodes whose instruction has an IR def, it is
// set at construction time; for Const leaves and Ins nodes without a def it
// is assigned lazily during rewriting (spec.md §4.2's `.D` placeholder
// semantics).
type Node struct {
	Kind NodeKind

	// Const
	ConstVal int

	// Reg / BlockRef
	Name string

	// Ins
	Op       string
	Operands []*Node
	Instr    ir.Instruction

	preds int // in-degree while still shaped as a DAG; forest.go consumes this
	D     string
}

// IsLeaf reports whether n is a Const, Reg, or BlockRef node.
func (n *Node) IsLeaf() bool { return n.Kind != KindIns }

// DAG is the per-block expression graph built in forest.go step 1:
// Roots holds every Ins node with no (remaining) predecessor, in program
// order, after DAG-to-forest conversion has run.
type DAG struct {
	Roots []*Node
}

// buildBlockDAG implements spec.md §4.2 step 1: build a DAG whose nodes are
// Constants, Registers (entry values — function args, ISA-reserved names,
// and any register used in this block before being defined in it, i.e. a
// value live-in), BlockRefs, and one Ins node per instruction, wired to its
// operand nodes. Instructions are visited in program order so later defs
// correctly shadow earlier same-name defs (SSA or not).
func buildBlockDAG(fn *ir.Function, isa *ir.ISAContext, block *ir.BasicBlock) []*Node {
	regProducer := map[string]*Node{}
	constCache := map[int]*Node{}
	blockRefCache := map[string]*Node{}

	regLeaf := func(name string) *Node {
		if n, ok := regProducer[name]; ok {
			return n
		}
		n := &Node{Kind: KindReg, Name: name, D: name}
		regProducer[name] = n
		return n
	}
	constLeaf := func(v int) *Node {
		if n, ok := constCache[v]; ok {
			return n
		}
		n := &Node{Kind: KindConst, ConstVal: v}
		constCache[v] = n
		return n
	}
	blockRefLeaf := func(name string) *Node {
		if n, ok := blockRefCache[name]; ok {
			return n
		}
		n := &Node{Kind: KindBlockRef, Name: name, D: name}
		blockRefCache[name] = n
		return n
	}

	var insNodes []*Node
	for _, in := range block.Instructions {
		insNode := &Node{Kind: KindIns, Op: in.Op, Instr: in}
		kinds := classifyArgs(isa, in)
		for i, arg := range in.Args {
			var operand *Node
			switch {
			case len(arg) > 0 && arg[0] == '%':
				reg := arg[1:]
				if kinds[i] == ir.ArgRegDef || kinds[i] == ir.ArgUseDef {
					continue // defs are not operand edges; handled below
				}
				operand = regLeaf(reg)
			case len(arg) > 0 && arg[0] == '@':
				operand = blockRefLeaf(arg[1:])
			default:
				v := parseIntOrZero(arg)
				operand = constLeaf(v)
			}
			operand.preds++
			insNode.Operands = append(insNode.Operands, operand)
		}
		if defs := in.DefRegs(isa); len(defs) > 0 {
			insNode.D = defs[len(defs)-1]
			regProducer[insNode.D] = insNode
		}
		insNodes = append(insNodes, insNode)
	}
	return insNodes
}

// classifyArgs exposes the argument-kind classification ir.Instruction
// keeps private, recomputed here the same way UseRegs/DefRegs do.
func classifyArgs(isa *ir.ISAContext, in ir.Instruction) []ir.ArgKind {
	spec, ok := isa.Opcodes[in.Op]
	if !ok {
		return make([]ir.ArgKind, len(in.Args))
	}
	kinds := make([]ir.ArgKind, len(in.Args))
	for i := range in.Args {
		if i < len(spec.Args) {
			kinds[i] = spec.Args[i]
		} else if spec.Variadic && len(spec.Args) > 0 {
			kinds[i] = spec.Args[len(spec.Args)-1]
		}
	}
	return kinds
}

func parseIntOrZero(tok string) int {
	neg := false
	i := 0
	if len(tok) > 0 && tok[0] == '-' {
		neg = true
		i = 1
	}
	v := 0
	for ; i < len(tok); i++ {
		c := tok[i]
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int(c-'0')
	}
	if neg {
		v = -v
	}
	return v
}

// subtreeDepth returns the longest operand chain below n, 0 for a leaf.
func subtreeDepth(n *Node) int {
	if n.IsLeaf() {
		return 0
	}
	best := 0
	for _, op := range n.Operands {
		if d := subtreeDepth(op); d+1 > best {
			best = d + 1
		}
	}
	return best
}

// cloneSubtree deep-copies n and everything below it, resetting preds on
// the clone (it now has exactly the one new incoming edge the caller is
// about to wire up).
func cloneSubtree(n *Node) *Node {
	if n.IsLeaf() {
		c := *n
		c.preds = 0
		return &c
	}
	c := *n
	c.preds = 0
	c.Operands = make([]*Node, len(n.Operands))
	for i, op := range n.Operands {
		c.Operands[i] = cloneSubtree(op)
	}
	return &c
}

// dagToForest implements spec.md §4.2 step 2: while any node has more than
// one predecessor, either clone its subtree (depth < 2: a leaf or a single
// operator, cheap to re-evaluate) or extract it as a new tree root,
// redirecting every former user to a fresh Reg reference bound to its
// defined register. Extraction of an Ins node requires the node to carry
// (or be given) a definition register, which an Ins always has once it
// reaches this step: either its own IR def, or — for a pure-leaf operand
// with no def of its own — its cached reg/const/blockref Name.
func dagToForest(insNodes []*Node) []*Node {
	// Multi-pred Ins nodes are resolved repeatedly until none remain; each
	// resolution can only ever reduce total multi-pred count (clone removes
	// one user's edge to the shared node without adding new sharing, and
	// extract redirects every user to a brand-new single-use Reg leaf), so
	// this loop always terminates.
	for {
		var shared *Node
		for _, root := range insNodes {
			shared = findSharedDescendant(root, map[*Node]bool{})
			if shared != nil {
				break
			}
		}
		if shared == nil {
			break
		}
		if subtreeDepth(shared) < 2 {
			resolveByCloning(insNodes, shared)
		} else {
			resolveByExtraction(insNodes, shared)
		}
	}

	// Remaining in-degree-0 Ins nodes are the forest's tree roots, in
	// program order (spec.md step 3).
	var roots []*Node
	for _, n := range insNodes {
		if n.preds == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}

// findSharedDescendant does a DFS from root looking for the first node
// (other than root itself) with preds > 1, i.e. an operand reached along
// more than one edge elsewhere in the DAG.
func findSharedDescendant(root *Node, visited map[*Node]bool) *Node {
	for _, op := range root.Operands {
		if op.preds > 1 && !visited[op] {
			return op
		}
		if visited[op] {
			continue
		}
		visited[op] = true
		if found := findSharedDescendant(op, visited); found != nil {
			return found
		}
	}
	return nil
}

// resolveByCloning gives every user of shared except one its own private
// copy of the subtree, so shared (and its single remaining edge) returns to
// preds == 1.
func resolveByCloning(insNodes []*Node, shared *Node) {
	first := true
	var walk func(n *Node)
	walk = func(n *Node) {
		for i, op := range n.Operands {
			if op == shared && !first {
				n.Operands[i] = cloneSubtree(shared)
				shared.preds--
				op = n.Operands[i]
			} else if op == shared {
				first = false
			}
			walk(op)
		}
	}
	for _, root := range insNodes {
		walk(root)
	}
}

// resolveByExtraction makes shared a new tree root in its own right: every
// former user is redirected to a freshly minted Reg leaf naming shared's
// defining register, making the former producer/consumer edge an explicit
// store/load boundary the rewriter will emit as ordinary register traffic.
func resolveByExtraction(insNodes []*Node, shared *Node) {
	def := extractedName(shared)
	ref := &Node{Kind: KindReg, Name: def, D: def}
	var replace func(n *Node)
	replace = func(n *Node) {
		for i, op := range n.Operands {
			if op == shared {
				n.Operands[i] = ref
				ref.preds++
				continue
			}
			replace(op)
		}
	}
	for _, root := range insNodes {
		if root == shared {
			continue
		}
		replace(root)
	}
	// shared is already present in insNodes (every instruction in the
	// block gets one Ins node); it now has no remaining predecessor, so
	// the root-collection pass below picks it up as its own tree.
	shared.preds = 0
}

// extractedName returns the register an extracted Ins node's value will be
// known by. An instruction with an explicit IR destination keeps that name
// (buildBlockDAG already recorded it as D); an Ins with no def of its own
// (a store, say) falls back to a structural name derived from its operator,
// since nothing else in the function can legally reference its value
// anyway.
func extractedName(n *Node) string {
	if n.D != "" {
		return n.D
	}
	return "__extract_" + n.Op
}
