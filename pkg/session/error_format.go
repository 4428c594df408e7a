package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/loopdetect"
)

const tabWidth = 4

// FormatError turns a parse or runtime error into a message with the
// offending line of src and a caret under the reported column.
func FormatError(src string, err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	var pe *loopguard.ParseError
	var re *loopguard.RuntimeError
	switch {
	case errors.As(err, &pe):
		fmt.Fprintf(&b, "Syntax error: %s\n", pe.Msg)
		writeSnippet(&b, src, pe.Pos.Line, pe.Pos.Col)
	case errors.As(err, &re):
		fmt.Fprintf(&b, "Runtime error: %s\n", re.Msg)
		writeSnippet(&b, src, re.Pos.Line, re.Pos.Col)
	default:
		fmt.Fprintf(&b, "Error: %s\n", err)
	}
	return b.String()
}

// FormatDiagnostic renders a diagnostic with a snippet of src, which must
// be the program the diagnostic's location points into.
func FormatDiagnostic(src string, d *loopdetect.Diagnostic) string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	switch d.Kind {
	case loopdetect.NonTermination:
		b.WriteString("Infinite loop detected")
	case loopdetect.Timeout:
		b.WriteString("Possible infinite loop")
	default:
		b.WriteString("Analysis failed")
	}
	if d.Location.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", d.Location.Line)
	}
	fmt.Fprintf(&b, ": %s\n", d.Message)
	writeSnippet(&b, src, d.Location.Line, d.Location.Col)
	return b.String()
}

// writeSnippet prints line of src with a caret under byte column col.
// Nothing is printed for a position outside src.
func writeSnippet(b *strings.Builder, src string, line, col int) {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return
	}
	text := strings.TrimRight(lines[line-1], "\r")
	prefix := text
	if col >= 1 && col-1 <= len(text) {
		prefix = text[:col-1]
	}
	gutter := fmt.Sprintf("%4d | ", line)
	b.WriteString(gutter)
	b.WriteString(expandTabs(text))
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", len(gutter)-2))
	b.WriteString("| ")
	b.WriteString(strings.Repeat(" ", runewidth.StringWidth(expandTabs(prefix))))
	b.WriteString("^\n")
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}
