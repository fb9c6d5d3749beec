package errors_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"scatha/internal/errors"
)

func TestIssueListHasErrors(t *testing.T) {
	var l errors.IssueList
	require.False(t, l.HasErrors())

	l = append(l, errors.Issue{Level: errors.LevelWarning, Message: "heads up"})
	require.False(t, l.HasErrors())

	l = append(l, errors.Issue{Level: errors.LevelError, Code: errors.ErrorUndeclaredSymbol, Message: "boom"})
	require.True(t, l.HasErrors())
}

func TestReporterFormatIncludesCaret(t *testing.T) {
	src := "module m\nglobal @g i32\n"
	r := errors.NewReporter("m.ir", src)
	out := r.Format(errors.Issue{
		Level:   errors.LevelError,
		Code:    errors.ErrorUndeclaredSymbol,
		Message: "reference to undeclared struct type @Point",
		Pos:     errors.Position{Filename: "m.ir", Line: 2, Column: 8},
		Length:  2,
	})
	require.Contains(t, out, "E2001")
	require.Contains(t, out, "m.ir:2:8")
	require.Contains(t, out, "global @g i32")
	require.True(t, strings.Contains(out, "^^"))
}

func TestFormatAllConcatenatesIssues(t *testing.T) {
	r := errors.NewReporter("m.ir", "module m\n")
	issues := errors.IssueList{
		{Level: errors.LevelError, Message: "first", Pos: errors.Position{Line: 1, Column: 1}},
		{Level: errors.LevelWarning, Message: "second", Pos: errors.Position{Line: 1, Column: 1}},
	}
	out := r.FormatAll(issues)
	require.Contains(t, out, "first")
	require.Contains(t, out, "second")
}
