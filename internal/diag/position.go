package diag

import "fmt"

// Position identifies a location in a source text file, used by the parser
// and propagated into diagnostics. It lives in diag, not ir, so that ir can
// depend on diag (for CompilerError) without a cycle.
type Position struct {
	Filename string
	Line     int
	Column   int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
}
