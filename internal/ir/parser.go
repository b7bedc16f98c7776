package ir

import (
	"strconv"
	"strings"

	"tessera/internal/diag"
)

// Parse reads the line-oriented textual IR format of spec.md §6 and
// returns a Module (without an attached ISAContext — load one separately
// via internal/config and assign it to Module.ISA before running any of
// the three cores). Parse performs only syntactic recognition; structural
// checks (terminator placement, branch target existence, SSA-ness) are
// the job of Validate, run once after parse as spec.md §5 requires.
//
// Grammar (line-oriented, grounded on the teacher's rune-scanner style in
// internal/parser/scanner.go, simplified to whole-line tokens since this
// format has no nested expressions):
//
//	fname:                     function label, must precede a .fun line
//	.fun name, %arg0, %arg1    opens a function
//	name:                      block label within the current function
//	opcode arg1, arg2, ...     instruction, `=>` is sugar for one more comma
//	; comment                  rest of line ignored
func Parse(source, filename string) (*Module, *ParseError) {
	lines := strings.Split(source, "\n")
	mod := &Module{}

	var cur *Function
	var curBlock *BasicBlock
	pendingFuncLabel := ""

	for i, raw := range lines {
		lineNo := i + 1
		text := stripComment(raw)
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		col := leadingSpace(text) + 1

		switch {
		case strings.HasPrefix(trimmed, "."):
			if !strings.HasPrefix(trimmed, ".fun") {
				return nil, &ParseError{Message: "unknown directive " + trimmed, Pos: diag.Position{Filename: filename, Line: lineNo, Column: col}}
			}
			name, args, err := parseFunDirective(trimmed)
			if err != nil {
				return nil, &ParseError{Message: err.Error(), Pos: diag.Position{Filename: filename, Line: lineNo, Column: col}}
			}
			_ = pendingFuncLabel // the preceding label is informational only; name comes from the directive
			cur = &Function{Name: name, Args: args}
			mod.Functions = append(mod.Functions, cur)
			curBlock = nil
			pendingFuncLabel = ""

		case isLabelLine(trimmed):
			label := strings.TrimSuffix(trimmed, ":")
			if looksLikeFunctionLabel(lines, i) {
				pendingFuncLabel = label
				continue
			}
			if cur == nil {
				return nil, &ParseError{Message: "block label outside any function", Pos: diag.Position{Filename: filename, Line: lineNo, Column: col}}
			}
			curBlock = &BasicBlock{Name: label}
			cur.Blocks = append(cur.Blocks, curBlock)

		default:
			if cur == nil || curBlock == nil {
				return nil, &ParseError{Message: "instruction outside any block", Pos: diag.Position{Filename: filename, Line: lineNo, Column: col}}
			}
			in, err := parseInstruction(trimmed)
			if err != nil {
				return nil, &ParseError{Message: err.Error(), Pos: diag.Position{Filename: filename, Line: lineNo, Column: col}}
			}
			curBlock.Instructions = append(curBlock.Instructions, in)
		}
	}

	return mod, nil
}

// ParseError reports a syntax problem found while scanning the textual IR.
type ParseError struct {
	Message string
	Pos     diag.Position
}

func (e *ParseError) Error() string { return e.Pos.String() + ": " + e.Message }

func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		return line[:i]
	}
	return line
}

func leadingSpace(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}

func isLabelLine(trimmed string) bool {
	if !strings.HasSuffix(trimmed, ":") {
		return false
	}
	body := strings.TrimSuffix(trimmed, ":")
	if body == "" {
		return false
	}
	return !strings.ContainsAny(body, " \t,")
}

// looksLikeFunctionLabel peeks forward past blank/comment lines to see if
// the next real line is a .fun directive.
func looksLikeFunctionLabel(lines []string, idx int) bool {
	for j := idx + 1; j < len(lines); j++ {
		t := strings.TrimSpace(stripComment(lines[j]))
		if t == "" {
			continue
		}
		return strings.HasPrefix(t, ".fun")
	}
	return false
}

func parseFunDirective(trimmed string) (string, []string, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, ".fun"))
	parts := splitArgs(rest)
	if len(parts) == 0 || parts[0] == "" {
		return "", nil, &ParseError{Message: ".fun requires a function name"}
	}
	name := parts[0]
	var args []string
	for _, a := range parts[1:] {
		args = append(args, strings.TrimPrefix(a, "%"))
	}
	return name, args, nil
}

func parseInstruction(trimmed string) (Instruction, error) {
	trimmed = strings.ReplaceAll(trimmed, "=>", ",")
	opEnd := strings.IndexAny(trimmed, " \t")
	if opEnd < 0 {
		return Instruction{Op: trimmed}, nil
	}
	op := trimmed[:opEnd]
	rest := strings.TrimSpace(trimmed[opEnd+1:])
	if rest == "" {
		return Instruction{Op: op}, nil
	}
	return Instruction{Op: op, Args: splitArgs(rest)}, nil
}

func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isConstant reports whether tok is a decimal integer literal (spec.md §3:
// "a constant is a decimal integer"), allowing an optional leading '-'.
func isConstant(tok string) bool {
	if tok == "" {
		return false
	}
	_, err := strconv.ParseInt(tok, 10, 64)
	return err == nil
}
