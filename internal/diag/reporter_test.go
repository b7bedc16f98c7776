package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReporterFormat(t *testing.T) {
	source := "loadAI %r0, 0 => %r1\nbogus %r1 => %r2\nret %r2"
	reporter := NewReporter("block.ir", source)

	err := UnknownOpcode("f", "entry", "bogus", Position{Filename: "block.ir", Line: 2, Column: 1}, "loadAI")
	formatted := reporter.Format(err)

	assert.Contains(t, formatted, "error["+ErrorUnknownOpcode+"]")
	assert.Contains(t, formatted, "bogus")
	assert.Contains(t, formatted, "block.ir:2:1")
	assert.Contains(t, formatted, "did you mean")
}

func TestErrorTaxonomyCategories(t *testing.T) {
	assert.Equal(t, "Malformed IR", GetErrorCategory(ErrorEmptyBlock))
	assert.Equal(t, "Missing Metadata", GetErrorCategory(ErrorUnknownOpcode))
	assert.Equal(t, "Selection Failure", GetErrorCategory(ErrorNoCover))
	assert.Equal(t, "Allocation Failure", GetErrorCategory(ErrorUnspillable))
	assert.Equal(t, "Invariant Violation", GetErrorCategory(ErrorInvariantViolation))
	assert.True(t, IsWarning(WarningUnreachableBlock))
	assert.False(t, IsWarning(ErrorEmptyBlock))
}

func TestCompilerErrorMessage(t *testing.T) {
	e := EmptyBlock("f", "b0", Position{Filename: "x.ir", Line: 3, Column: 1})
	assert.Contains(t, e.Error(), "f/b0")
	assert.Contains(t, e.Error(), ErrorEmptyBlock)
}
