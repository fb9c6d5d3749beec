package errors

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/fatih/color"
)

// Level is the severity of an Issue.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
	LevelHelp    Level = "help"
)

// Position locates an Issue in the source text that produced it.
type Position struct {
	Filename string
	Line     int
	Column   int
}

// FromLexer converts a participle lexer position, as captured by a `Pos
// lexer.Position` grammar field, to a Position.
func FromLexer(p lexer.Position) Position {
	return Position{Filename: p.Filename, Line: p.Line, Column: p.Column}
}

// Issue is one structured diagnostic: a parse error, a semantic error such
// as redeclaration, or a linker/FFI resolution failure (spec.md §7).
type Issue struct {
	Level   Level
	Code    string
	Message string
	Pos     Position
	Length  int
	Notes   []string
	Help    string
}

func (i Issue) Error() string {
	if i.Code != "" {
		return fmt.Sprintf("%s[%s]: %s (%s:%d:%d)", i.Level, i.Code, i.Message, i.Pos.Filename, i.Pos.Line, i.Pos.Column)
	}
	return fmt.Sprintf("%s: %s (%s:%d:%d)", i.Level, i.Message, i.Pos.Filename, i.Pos.Line, i.Pos.Column)
}

// IssueList collects every issue found while parsing or resolving one
// source, matching the "parsing may continue after a recoverable issue to
// collect more" contract of spec.md §7. A nil or empty IssueList is not an
// error; callers check HasErrors before treating it as one.
type IssueList []Issue

func (l IssueList) Error() string {
	msgs := make([]string, len(l))
	for i, issue := range l {
		msgs[i] = issue.Error()
	}
	return strings.Join(msgs, "\n")
}

// HasErrors reports whether any issue at LevelError is present; warnings
// and notes alone do not block compilation.
func (l IssueList) HasErrors() bool {
	for _, issue := range l {
		if issue.Level == LevelError {
			return true
		}
	}
	return false
}

// FromParticiple wraps a participle parse error as a single-element
// IssueList with the lexical/syntactic error code, extracting position
// information when the underlying error carries one.
func FromParticiple(err error) IssueList {
	msg := err.Error()
	pos := Position{}
	if pe, ok := err.(participle.Error); ok {
		pos = FromLexer(pe.Position())
		msg = pe.Message()
	}
	return IssueList{{Level: LevelError, Code: ErrorSyntax, Message: msg, Pos: pos, Length: 1}}
}

// Reporter formats Issues against one source file with caret-style
// annotation, the same layout the teacher's ErrorReporter produces.
type Reporter struct {
	filename string
	lines    []string
}

// NewReporter creates a Reporter for the given filename and source text.
func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

// Format renders one Issue as a multi-line, colour-annotated diagnostic.
func (r *Reporter) Format(issue Issue) string {
	var b strings.Builder
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	levelColor := r.levelColor(issue.Level)

	if issue.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", levelColor(string(issue.Level)), issue.Code, issue.Message)
	} else {
		fmt.Fprintf(&b, "%s: %s\n", levelColor(string(issue.Level)), issue.Message)
	}

	width := lineNumberWidth(issue.Pos.Line)
	indent := strings.Repeat(" ", width)
	fmt.Fprintf(&b, "%s %s %s:%d:%d\n", indent, dim("-->"), r.filename, issue.Pos.Line, issue.Pos.Column)
	fmt.Fprintf(&b, "%s %s\n", indent, dim("│"))

	if line := issue.Pos.Line; line > 0 && line <= len(r.lines) {
		fmt.Fprintf(&b, "%s %s %s\n", bold(fmt.Sprintf("%*d", width, line)), dim("│"), r.lines[line-1])
		marker := r.marker(issue.Pos.Column, issue.Length)
		fmt.Fprintf(&b, "%s %s %s\n", indent, dim("│"), levelColor(marker))
	}

	for _, note := range issue.Notes {
		noteColor := color.New(color.FgBlue).SprintFunc()
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, dim("│"), noteColor("note:"), note)
	}
	if issue.Help != "" {
		helpColor := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(&b, "%s %s %s %s\n", indent, dim("│"), helpColor("help:"), issue.Help)
	}
	return b.String()
}

// FormatAll renders every issue in order, separated by blank lines.
func (r *Reporter) FormatAll(issues IssueList) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = r.Format(issue)
	}
	return strings.Join(parts, "\n")
}

func (r *Reporter) levelColor(level Level) func(...interface{}) string {
	switch level {
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	case LevelNote:
		return color.New(color.FgBlue, color.Bold).SprintFunc()
	case LevelHelp:
		return color.New(color.FgGreen, color.Bold).SprintFunc()
	default:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	}
}

func (r *Reporter) marker(column, length int) string {
	if length <= 0 {
		length = 1
	}
	if column < 1 {
		column = 1
	}
	return strings.Repeat(" ", column-1) + strings.Repeat("^", length)
}

func lineNumberWidth(line int) int {
	w := len(fmt.Sprintf("%d", line))
	if w < 3 {
		w = 3
	}
	return w
}
