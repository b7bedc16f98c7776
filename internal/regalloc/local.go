package regalloc

import (
	"math"

	"tessera/internal/diag"
	"tessera/internal/ir"
)

const farFuture = math.MaxInt32

// vstate tracks one virtual register's location during the local
// allocator's single forward pass: hw >= 0 means it currently lives in
// hardware register hw; spilled means it also has (or needs) a slot at
// offset, which is only assigned the first time the register is spilled.
type vstate struct {
	hw      int
	spilled bool
	offset  int
}

// LocalAllocator implements spec.md §4.3's "simpler local variant": a
// single-block, SSA-agnostic, coalescing-free allocator that simulates K
// hardware registers forward across the block, spilling the resident
// value with the farthest next use when a new value needs a register and
// none is free (spec.md §9 Open Question 3's mandated farthest-next-use
// fix, in place of the original's absent-TODO arbitrary choice).
type LocalAllocator struct {
	isa *ir.ISAContext
	cfg Config
	k   int
}

// NewLocalAllocator builds a LocalAllocator targeting k hardware
// registers.
func NewLocalAllocator(isa *ir.ISAContext, cfg Config, k int) *LocalAllocator {
	return &LocalAllocator{isa: isa, cfg: cfg, k: k}
}

// Run replaces every virtual register in fn's single block with a
// hardware register name, inserting spill loads/stores as needed. fn must
// consist of exactly one block (spec.md: "used when the Function
// consists of a single block").
func (a *LocalAllocator) Run(fn *ir.Function) *diag.CompilerError {
	if len(fn.Blocks) != 1 {
		return diag.Invariant(fn.Name, "", "the local block allocator requires a single-block function")
	}
	b := fn.Blocks[0]
	nextUse := computeNextUse(b.Instructions, a.isa)

	st := &localState{
		isa:    a.isa,
		cfg:    a.cfg,
		numHW:  a.k,
		state:  map[string]*vstate{},
		owner:  map[int]string{},
		free:   map[int]bool{},
		offset: nextSpillOffset(fn, a.isa, a.cfg),
	}
	for i := 0; i < a.k; i++ {
		st.free[i] = true
	}

	var out []ir.Instruction
	for i, in := range b.Instructions {
		out = st.rewriteInstr(out, in, nextUse[i])
	}
	b.Instructions = out
	fn.Invalidate()
	return nil
}

// computeNextUse returns, for every instruction index i, a map from each
// register used anywhere in the remainder of instrs to the next index
// j > i at which it is read. A register absent from result[i] has no
// further use after i. One backward pre-pass per block, matching spec.md
// §9's resolved Open Question ("computed in a single backward pass").
func computeNextUse(instrs []ir.Instruction, isa *ir.ISAContext) []map[string]int {
	n := len(instrs)
	result := make([]map[string]int, n)
	next := map[string]int{}
	for i := n - 1; i >= 0; i-- {
		snapshot := make(map[string]int, len(next))
		for r, idx := range next {
			snapshot[r] = idx
		}
		result[i] = snapshot
		for _, u := range instrs[i].UseRegs(isa, nil) {
			next[u] = i
		}
	}
	return result
}

// localState carries the per-block simulation state rewriteInstr mutates
// as it walks forward.
type localState struct {
	isa    *ir.ISAContext
	cfg    Config
	numHW  int
	state  map[string]*vstate
	owner  map[int]string // hw register -> virtual register currently holding it
	free   map[int]bool
	offset int
}

// rewriteInstr ensures every use (and use-def) operand of in is resident
// in a hardware register (reloading or evicting as needed), emits in with
// those operands substituted, allocates a destination register for every
// def (reusing the source register for a Mov per spec.md), and finally
// frees any register whose value has no next use.
func (s *localState) rewriteInstr(out []ir.Instruction, in ir.Instruction, nextUse map[string]int) []ir.Instruction {
	kinds := ir.ArgKinds(s.isa, in)
	args := append([]string(nil), in.Args...)

	movSrc := ""
	if in.Op == s.cfg.Mov {
		for i, k := range kinds {
			if i < len(in.Args) && k == ir.ArgRegUse {
				movSrc = stripSigil(in.Args[i])
			}
		}
	}

	for i, k := range kinds {
		if i >= len(in.Args) {
			continue
		}
		switch k {
		case ir.ArgRegUse, ir.ArgUseDef:
			v := stripSigil(in.Args[i])
			hw, pre := s.ensureResident(v, nextUse)
			out = append(out, pre...)
			args[i] = "%" + hrName(hw)
		}
	}

	for i, k := range kinds {
		if i >= len(in.Args) || k != ir.ArgRegDef {
			continue
		}
		v := stripSigil(in.Args[i])
		hw, pre := s.allocateDest(v, movSrc, nextUse)
		out = append(out, pre...)
		args[i] = "%" + hrName(hw)
	}

	out = append(out, ir.Instruction{Op: in.Op, Args: args})

	for v, st := range s.state {
		if st.hw < 0 {
			continue
		}
		if _, ok := nextUse[v]; !ok {
			s.release(v)
		}
	}
	return out
}

// ensureResident brings v into some hardware register, spilling (by
// farthest next use among currently resident values) if none is free, and
// reloads v from its slot if it had previously been spilled. Returns the
// assigned hw index and any instructions (a victim's store, v's own
// reload) that must precede the current one.
func (s *localState) ensureResident(v string, nextUse map[string]int) (int, []ir.Instruction) {
	if st, ok := s.state[v]; ok && !st.spilled {
		return st.hw, nil
	}

	hw, pre := s.acquireRegister(nextUse)
	st, existed := s.state[v]
	if existed && st.spilled {
		pre = append(pre, s.cfg.makeLoad(hrName(hw), st.offset))
		st.hw, st.spilled = hw, false
	} else {
		s.state[v] = &vstate{hw: hw, offset: -1}
	}
	s.owner[hw] = v
	return hw, pre
}

// allocateDest assigns a hardware register for a freshly defined value v.
// If the defining instruction is a Mov and its source register has no
// further use, the destination reuses the source's register directly
// rather than evicting a third value to free one up (spec.md: "allocate
// destination registers, preferring to reuse the source register for
// mov").
func (s *localState) allocateDest(v, movSrc string, nextUse map[string]int) (int, []ir.Instruction) {
	if movSrc != "" {
		if st, ok := s.state[movSrc]; ok && !st.spilled {
			if _, aliveAfter := nextUse[movSrc]; !aliveAfter {
				hw := st.hw
				delete(s.owner, hw)
				delete(s.state, movSrc)
				s.state[v] = &vstate{hw: hw, offset: -1}
				s.owner[hw] = v
				return hw, nil
			}
		}
	}
	hw, pre := s.acquireRegister(nextUse)
	s.state[v] = &vstate{hw: hw, offset: -1}
	s.owner[hw] = v
	return hw, pre
}

// acquireRegister returns a hardware register not currently owned by
// anything, spilling the resident value with the farthest next use (or no
// next use at all) if every register is occupied. The lowest-indexed free
// register is preferred when more than one is free, for determinism.
func (s *localState) acquireRegister(nextUse map[string]int) (int, []ir.Instruction) {
	for hw := 0; hw < s.numHW; hw++ {
		if s.free[hw] {
			delete(s.free, hw)
			return hw, nil
		}
	}

	victim, farthest := "", -1
	for v, st := range s.state {
		if st.hw < 0 {
			continue
		}
		nu, ok := nextUse[v]
		if !ok {
			nu = farFuture
		}
		if nu > farthest || (nu == farthest && v < victim) {
			victim, farthest = v, nu
		}
	}

	vst := s.state[victim]
	hw := vst.hw
	delete(s.owner, hw)
	if vst.offset < 0 {
		vst.offset = s.offset
		s.offset += s.cfg.slotSize()
	}
	store := s.cfg.makeStore(hrName(hw), vst.offset)
	vst.hw, vst.spilled = -1, true
	return hw, []ir.Instruction{store}
}

func (s *localState) release(v string) {
	st := s.state[v]
	if st.hw >= 0 {
		s.free[st.hw] = true
		delete(s.owner, st.hw)
	}
	delete(s.state, v)
}
