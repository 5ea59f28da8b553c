package pieuvre

// format.go — rendering synchronization results, outcomes, and diagnostics as tool text.

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// FormatStatus renders the position indicator.
func FormatStatus(st PositionStatus) string {
	if st.Total == 0 {
		return "No complete sentences."
	}
	if st.Current == st.Total {
		return fmt.Sprintf("All %d sentences verified.", st.Total)
	}
	return fmt.Sprintf("Verified %d of %d sentences.", st.Current, st.Total)
}

// FormatOutcome renders one outcome on a single line.
func FormatOutcome(name string, o Outcome) string {
	switch o.Kind {
	case OutcomeOK:
		return fmt.Sprintf("%s : %s", name, o.Type)
	case OutcomeMismatch:
		return fmt.Sprintf("%s : %s (expected %s)", name, o.Type, o.Expected)
	case OutcomeError:
		return fmt.Sprintf("%s : error: %s", name, o.Message)
	default:
		return fmt.Sprintf("%s : unknown", name)
	}
}

// WriteEntry writes a verified sentence followed by its outcomes, sorted by
// identifier.
func WriteEntry(sb *strings.Builder, index int, e Entry) {
	fmt.Fprintf(sb, "=== Sentence %d ===\n%s\n", index+1, e.Sentence.Text)
	names := make([]string, 0, len(e.Result.Idents))
	for name := range e.Result.Idents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, o := range e.Result.Idents[name] {
			fmt.Fprintf(sb, "  %s\n", FormatOutcome(name, o))
		}
	}
	for _, m := range e.Result.Messages {
		if m.Kind == OutcomeError {
			fmt.Fprintf(sb, "  error: %s\n", m.Text)
			continue
		}
		fmt.Fprintf(sb, "  %s\n", m.Text)
	}
}

// FormatSyncResults renders the state of a session after a pass. When
// last is set the most recently verified sentence is shown in full.
func FormatSyncResults(s *Session, last bool) *mcp.CallToolResult {
	var sb strings.Builder
	st := s.PositionStatus()
	sb.WriteString(FormatStatus(st))
	sb.WriteString("\n")

	if last && st.Current > 0 {
		verified := s.Verified()
		sb.WriteString("\n")
		WriteEntry(&sb, len(verified)-1, verified[len(verified)-1])
	}

	if f := s.Failure(); f != nil {
		fmt.Fprintf(&sb, "\n=== Failed at sentence %d ===\n%s\n%s\n", f.Index+1, f.Sentence.Text, f.Message)
	}

	FormatDiagnostics(&sb, s.Diagnostics())
	return TextResult(sb.String())
}

// FormatHover renders what is known about the identifier under the cursor.
func FormatHover(h Hover) string {
	switch {
	case !h.Mentioned:
		return fmt.Sprintf("%s: no information from the prover", h.Ident)
	case h.Outcome == nil:
		return fmt.Sprintf("%s: no outcome for occurrence %d", h.Ident, h.Occurrence+1)
	default:
		return FormatOutcome(h.Ident, *h.Outcome)
	}
}

// FormatDiagnostics appends diagnostic output to a string builder.
func FormatDiagnostics(sb *strings.Builder, diags []Diagnostic) {
	if len(diags) > 0 {
		sb.WriteString("\n=== Diagnostics ===\n")
		for _, d := range diags {
			severity := "info"
			switch d.Severity {
			case SeverityError:
				severity = "error"
			case SeverityWarning:
				severity = "warning"
			case SeverityInfo:
				severity = "info"
			case SeverityHint:
				severity = "hint"
			}
			fmt.Fprintf(sb, "[%s] line %d:%d–%d:%d: %s\n",
				severity,
				d.Range.Start.Line+1, d.Range.Start.Character,
				d.Range.End.Line+1, d.Range.End.Character,
				d.Message)
		}
	}
}

// TextResult wraps a string in an MCP CallToolResult.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// ErrResult wraps an error in an MCP CallToolResult.
func ErrResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: err.Error()},
		},
	}
}
