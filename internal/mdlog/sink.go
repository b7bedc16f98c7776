// Package mdlog is the optional markdown diagnostic sidecar spec.md §6
// calls "a side-channel; excluded from the core." It is deliberately not a
// package-level global: spec.md §9's "Global singletons" design note asks
// for an injectable sink passed into each pass constructor instead, with a
// no-op default, so the three cores never reach for hidden mutable state.
package mdlog

import (
	"fmt"
	"io"
	"strings"
)

// Sink receives one markdown diagnostic report per invoked tool. The
// default is NullSink, which discards everything; a real sink is wired in
// only by callers that asked for one (the CLI's --report flag).
type Sink interface {
	// Section starts a new titled section of the report (one per pass run,
	// e.g. "Scheduling path B1 -> B2 -> B3").
	Section(title string)
	// Row appends one row of a register-transfer-style trace table: a
	// cycle or step number, a short label, and the instruction text.
	Row(step int, label, instr string)
	// Note appends a free-text line to the current section.
	Note(format string, args ...any)
}

// NullSink discards every call; it is the zero-value default everywhere a
// Sink is threaded through a constructor.
type NullSink struct{}

func (NullSink) Section(string)                 {}
func (NullSink) Row(int, string, string)         {}
func (NullSink) Note(format string, args ...any) {}

// MarkdownSink renders a simple markdown document: one `##` heading per
// Section call, and a `| step | label | instruction |` table accumulating
// Row calls until the next Section (or Note lines interleaved as plain
// paragraphs). Grounded on spec.md §6's framing of the sidecar as "a
// diagnostic directory of markdown reports," in the register-transfer
// trace-table style a scheduler/allocator pass naturally produces.
type MarkdownSink struct {
	w          io.Writer
	inTable    bool
	rowsWritten int
}

// NewMarkdownSink wraps w as a Sink.
func NewMarkdownSink(w io.Writer) *MarkdownSink {
	return &MarkdownSink{w: w}
}

func (s *MarkdownSink) Section(title string) {
	s.closeTable()
	fmt.Fprintf(s.w, "\n## %s\n\n", title)
}

func (s *MarkdownSink) Row(step int, label, instr string) {
	if !s.inTable {
		fmt.Fprintln(s.w, "| step | label | instruction |")
		fmt.Fprintln(s.w, "|---|---|---|")
		s.inTable = true
		s.rowsWritten = 0
	}
	fmt.Fprintf(s.w, "| %d | %s | `%s` |\n", step, escapeCell(label), escapeCell(instr))
	s.rowsWritten++
}

func (s *MarkdownSink) Note(format string, args ...any) {
	s.closeTable()
	fmt.Fprintf(s.w, "%s\n\n", fmt.Sprintf(format, args...))
}

func (s *MarkdownSink) closeTable() {
	if s.inTable {
		fmt.Fprintln(s.w)
		s.inTable = false
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
