package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Term is the nested right-hand-side grammar a rule file's rhs field is
// parsed as: a bare non-terminal/operator name, optionally applied to a
// parenthesized, comma-separated list of further Terms. This is the one
// place in tessera a real grammar library earns its keep: the teacher's
// grammar package leans on participle for exactly this kind of small,
// recursive, comma-separated term language.
type Term struct {
	Name string  `@Ident`
	Args []*Term `("(" @@ ("," @@)* ")")?`
}

var termLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var termParser = participle.MustBuild[Term](
	participle.Lexer(termLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// parseTerm parses one rhs field into a Term tree.
func parseTerm(src string) (*Term, error) {
	return termParser.ParseString("", src)
}

// LoadRules parses a rule file (spec.md §6: "Line-oriented. Each rule:
// `lhs ; rhs ; cost ; code`") into a RuleSet. Blank lines and lines whose
// first non-space character is `#` (a comment) are skipped; every other
// line must have exactly four `;`-separated fields.
func LoadRules(src string) (*RuleSet, error) {
	rs := newRuleSet()
	lines := strings.Split(src, "\n")
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) != 4 {
			return nil, fmt.Errorf("rule file line %d: expected 4 `;`-separated fields, got %d", lineNo+1, len(fields))
		}
		lhs := strings.TrimSpace(fields[0])
		rhs := strings.TrimSpace(fields[1])
		costField := strings.TrimSpace(fields[2])
		codeField := strings.TrimSpace(fields[3])

		cost, err := strconv.Atoi(costField)
		if err != nil {
			return nil, fmt.Errorf("rule file line %d: cost %q is not an integer", lineNo+1, costField)
		}

		term, err := parseTerm(rhs)
		if err != nil {
			return nil, fmt.Errorf("rule file line %d: %w", lineNo+1, err)
		}
		code, err := parseCode(codeField, lineNo+1)
		if err != nil {
			return nil, err
		}

		pattern := rs.flatten(term)
		rs.add(Rule{LHS: lhs, Pattern: pattern, Cost: cost, Code: code})
	}
	return rs, nil
}

// flatten turns a parsed Term into a Pattern, synthesizing fresh
// intermediate non-terminals and extra chain-free operator rules for any
// nested operator argument (spec.md §4.2's flattening requirement). A bare
// Term with no Args is a chain; an applied Term is an operator whose
// children must themselves be bare non-terminal names once flattened — a
// nested applied Term becomes a synthesized non-terminal produced by its
// own freshly added rule of cost 0.
func (rs *RuleSet) flatten(t *Term) Pattern {
	if len(t.Args) == 0 {
		return Pattern{Chain: t.Name}
	}
	children := make([]string, len(t.Args))
	for i, arg := range t.Args {
		if len(arg.Args) == 0 {
			children[i] = arg.Name
			continue
		}
		// Nested operator: synthesize a non-terminal for it and recurse,
		// so the synthesized rule's own Children are always bare names.
		nt := rs.freshNonTerminal()
		childPattern := rs.flatten(arg)
		rs.add(Rule{LHS: nt, Pattern: childPattern, Cost: 0, Code: passthroughCode(arg.Name, len(childPattern.Children))})
		children[i] = nt
	}
	return Pattern{Op: t.Name, Children: children}
}

// passthroughCode is the action a synthesized flattening rule uses: a
// nested operator term like `mult(reg,reg)` written inside an outer rule's
// rhs has no action of its own in the rule file (the outer rule supplies
// the only code field), so the synthesized rule emits the plain lowering of
// that operator — one target instruction of the same name, over the
// resolved `.D` of each of its own children — so the outer rule can read
// its result back through the synthesized non-terminal's `.D`, exactly as
// if the user had written the two rules separately. This is the documented
// reading of spec.md §4.2's "flattens nested operators" for an otherwise
// under-specified case (see DESIGN.md).
func passthroughCode(opName string, arity int) []Action {
	args := make([]string, arity)
	for i := range args {
		args[i] = fmt.Sprintf("$%d.D", i)
	}
	return []Action{{Op: "emit", Args: append([]string{opName}, args...)}}
}

// parseCode splits a rule's code field on `|` into individual ops of the
// form name(a1,a2,...); arguments are raw tokens, resolved later against a
// matched node by rewriter.go.
func parseCode(field string, lineNo int) ([]Action, error) {
	if field == "" {
		return nil, nil
	}
	var actions []Action
	for _, part := range strings.Split(field, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		open := strings.IndexByte(part, '(')
		if open < 0 || !strings.HasSuffix(part, ")") {
			return nil, fmt.Errorf("rule file line %d: malformed action %q", lineNo, part)
		}
		name := strings.TrimSpace(part[:open])
		argsStr := part[open+1 : len(part)-1]
		var args []string
		if strings.TrimSpace(argsStr) != "" {
			for _, a := range strings.Split(argsStr, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		actions = append(actions, Action{Op: name, Args: args})
	}
	return actions, nil
}
