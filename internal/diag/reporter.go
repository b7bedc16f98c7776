// Package diag renders the five-class error taxonomy of spec.md §7 as
// Rust-style caret diagnostics, grounded on the teacher's
// internal/errors/reporter.go.
package diag

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a CompilerError.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
	Help    Level = "help"
)

// CompilerError is a structured, position-carrying error. The validators
// and the passes in internal/ir, internal/sched, internal/select, and
// internal/regalloc return these (satisfying the standard `error`
// interface via Error()); ir.Parse returns an ir.ParseError instead, and
// the rule-file loader select.LoadRules a plain error.
type CompilerError struct {
	Level       Level
	Code        string
	Message     string
	Position    Position
	Length      int
	Function    string
	Block       string
	Suggestions []Suggestion
	Notes       []string
	HelpText    string
}

// Suggestion is a suggested fix attached to a CompilerError.
type Suggestion struct {
	Message     string
	Replacement string
}

// Error satisfies the standard error interface with a single-line summary;
// use Reporter.Format for the full multi-line caret rendering.
func (e *CompilerError) Error() string {
	if e.Function != "" {
		loc := e.Position.String()
		if e.Block != "" {
			return fmt.Sprintf("%s[%s] in %s/%s at %s: %s", e.Level, e.Code, e.Function, e.Block, loc, e.Message)
		}
		return fmt.Sprintf("%s[%s] in %s at %s: %s", e.Level, e.Code, e.Function, loc, e.Message)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Level, e.Code, e.Message)
}

// New builds a CompilerError at Error level.
func New(code, message string, pos Position) *CompilerError {
	return &CompilerError{Level: Error, Code: code, Message: message, Position: pos, Length: 1}
}

// NewWarning builds a CompilerError at Warning level.
func NewWarning(code, message string, pos Position) *CompilerError {
	return &CompilerError{Level: Warning, Code: code, Message: message, Position: pos, Length: 1}
}

// In annotates a CompilerError with the function/block it was found in, for
// the "offending function, block, and instruction" identification spec.md
// §7 requires.
func (e *CompilerError) In(fn, block string) *CompilerError {
	e.Function, e.Block = fn, block
	return e
}

// WithNote appends a note line.
func (e *CompilerError) WithNote(note string) *CompilerError {
	e.Notes = append(e.Notes, note)
	return e
}

// WithHelp sets the help text line.
func (e *CompilerError) WithHelp(help string) *CompilerError {
	e.HelpText = help
	return e
}

// WithSuggestion appends a suggestion.
func (e *CompilerError) WithSuggestion(message string) *CompilerError {
	e.Suggestions = append(e.Suggestions, Suggestion{Message: message})
	return e
}

// Reporter formats CompilerErrors against a known source text.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a Reporter for a file's source text.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

// Format renders err as a multi-line, colorized, caret-annotated diagnostic.
func (r *Reporter) Format(err *CompilerError) string {
	var out strings.Builder

	levelColor := r.levelColor(err.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	if err.Code != "" {
		out.WriteString(fmt.Sprintf("%s[%s]: %s\n", levelColor(string(err.Level)), err.Code, err.Message))
	} else {
		out.WriteString(fmt.Sprintf("%s: %s\n", levelColor(string(err.Level)), err.Message))
	}

	width := r.lineNumberWidth(err.Position.Line)
	indent := strings.Repeat(" ", width)

	loc := fmt.Sprintf("%s:%d:%d", r.filename, err.Position.Line, err.Position.Column)
	if err.Function != "" {
		loc = fmt.Sprintf("%s (in %s)", loc, err.Function)
	}
	out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("-->"), loc))
	out.WriteString(fmt.Sprintf("%s %s\n", indent, dim("│")))

	line := err.Position.Line
	if line > 0 && line <= len(r.lines) {
		if line > 1 {
			out.WriteString(fmt.Sprintf("%s %s %s\n", dim(fmt.Sprintf("%*d", width, line-1)), dim("│"), r.lines[line-2]))
		}
		out.WriteString(fmt.Sprintf("%s %s %s\n", bold(fmt.Sprintf("%*d", width, line)), dim("│"), r.lines[line-1]))
		out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), r.marker(err.Position.Column, err.Length)))
		if line < len(r.lines) {
			out.WriteString(fmt.Sprintf("%s %s %s\n", dim(fmt.Sprintf("%*d", width, line+1)), dim("│"), r.lines[line]))
		}
	}

	for _, s := range err.Suggestions {
		help := color.New(color.FgCyan).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s: %s\n", indent, help("help"), help("try"), s.Message))
		if s.Replacement != "" {
			out.WriteString(fmt.Sprintf("%s %s %s\n", indent, dim("│"), help(s.Replacement)))
		}
	}
	for _, n := range err.Notes {
		note := color.New(color.FgBlue).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), note("note:"), n))
	}
	if err.HelpText != "" {
		help := color.New(color.FgGreen).SprintFunc()
		out.WriteString(fmt.Sprintf("%s %s %s %s\n", indent, dim("│"), help("help:"), err.HelpText))
	}

	out.WriteString("\n")
	return out.String()
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case Note:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case Help:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column, length int) string {
	if length <= 0 {
		length = 1
	}
	spaces := strings.Repeat(" ", max(0, column-1))
	marker := color.New(color.FgRed, color.Bold).SprintFunc()(strings.Repeat("^", length))
	return spaces + marker
}

func (r *Reporter) lineNumberWidth(line int) int {
	width := len(fmt.Sprintf("%d", line))
	if width < 3 {
		width = 3
	}
	return width
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
