package diag

import "fmt"

// Builders for the concrete errors the validator and the three cores raise.
// Grounded on the teacher's NewSemanticError-style fluent constructors
// (internal/errors/semantic_errors.go), retargeted at spec.md §7's taxonomy.

func EmptyBlock(fn, block string, pos Position) *CompilerError {
	return New(ErrorEmptyBlock, fmt.Sprintf("block %q has no instructions", block), pos).In(fn, block).
		WithHelp("every basic block must end with a branch, unconditional jump, or return")
}

func MisplacedTerminator(fn, block string, pos Position, isLast bool) *CompilerError {
	msg := "a non-terminal instruction is a terminator"
	if isLast {
		msg = "the last instruction of the block is not a terminator"
	}
	return New(ErrorMisplacedTerminator, msg, pos).In(fn, block).
		WithHelp("the last instruction, and only the last, must be a branch/jump/return")
}

func UnknownBranchTarget(fn, block, target string, pos Position) *CompilerError {
	return New(ErrorUnknownBranchTarget, fmt.Sprintf("branch target %q is not a block of function %q", target, fn), pos).In(fn, block)
}

func UndefinedSSAName(fn, block, reg string, pos Position) *CompilerError {
	return New(ErrorUndefinedSSAName, fmt.Sprintf("register %%%s used without a reaching definition", reg), pos).In(fn, block)
}

func PhiArityMismatch(fn, block string, pos Position, got, want int) *CompilerError {
	return New(ErrorPhiArityMismatch, fmt.Sprintf("phi has %d operand(s), block has %d predecessor(s)", got, want), pos).In(fn, block)
}

func DuplicateBlockName(fn, block string, pos Position) *CompilerError {
	return New(ErrorDuplicateBlockName, fmt.Sprintf("block %q declared more than once in function %q", block, fn), pos).In(fn, block)
}

func MalformedToken(fn, block, tok string, pos Position) *CompilerError {
	return New(ErrorMalformedToken, fmt.Sprintf("token %q is not a valid register, label, or constant", tok), pos).In(fn, block)
}

func UnknownOpcode(fn, block, op string, pos Position, suggestion string) *CompilerError {
	e := New(ErrorUnknownOpcode, fmt.Sprintf("opcode %q is not declared in the ISA context", op), pos).In(fn, block)
	if suggestion != "" {
		e.WithSuggestion(fmt.Sprintf("did you mean %q?", suggestion))
	}
	return e
}

func MissingLatency(op string) *CompilerError {
	return New(ErrorMissingLatency, fmt.Sprintf("opcode %q has no entry in the latency table", op), Position{})
}

func MissingRule(nonterminal string) *CompilerError {
	return New(ErrorMissingRule, fmt.Sprintf("no rule produces non-terminal %q", nonterminal), Position{})
}

func NoCover(fn, block string, pos Position, op string) *CompilerError {
	return New(ErrorNoCover, fmt.Sprintf("no rule covers the subtree rooted at %q", op), pos).In(fn, block).
		WithHelp("add a rule whose right-hand side matches this operator, or a cheaper chain rule")
}

func Unspillable(fn string, liveRange int) *CompilerError {
	return New(ErrorUnspillable, fmt.Sprintf("live range lr%d has infinite spill cost and cannot be spilled", liveRange), Position{}).In(fn, "")
}

func Invariant(fn, block, message string) *CompilerError {
	return New(ErrorInvariantViolation, message, Position{}).In(fn, block).
		WithNote("this indicates a bug in the pass, not a malformed input")
}
