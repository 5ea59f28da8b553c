package pieuvre

// types.go — shared domain types for sentences, diagnostics, and editor positions.

// Sentence is the smallest prover-executable unit of source text.
// Start and End are byte offsets into the document; End is exclusive and
// includes the terminating '.'.
type Sentence struct {
	Text  string
	Start int
	End   int
}

// Diagnostic is an editor-facing problem report.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
}

// Diagnostic severities, numbered like LSP.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Position is a 0-indexed line and byte column.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// PositionStatus reports how many sentences are verified out of the total
// number of complete sentences in the document.
type PositionStatus struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// OffsetAt converts a Position to a byte offset in content, clamped to the
// end of the addressed line.
func OffsetAt(content string, pos Position) int {
	line := 0
	lineStart := 0
	for i := 0; i < len(content) && line < pos.Line; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	if line < pos.Line {
		return len(content)
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}
	off := lineStart + pos.Character
	if off > lineEnd {
		off = lineEnd
	}
	if off < lineStart {
		off = lineStart
	}
	return off
}

// PositionAt converts a byte offset in content to a Position.
func PositionAt(content string, offset int) Position {
	if offset > len(content) {
		offset = len(content)
	}
	var pos Position
	lineStart := 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			pos.Line++
			lineStart = i + 1
		}
	}
	pos.Character = offset - lineStart
	return pos
}

// RangeOf converts a byte span in content to a Range.
func RangeOf(content string, start, end int) Range {
	return Range{Start: PositionAt(content, start), End: PositionAt(content, end)}
}
