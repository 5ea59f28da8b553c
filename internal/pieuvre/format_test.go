package pieuvre

import (
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return "<nil>"
	}
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		st   PositionStatus
		want string
	}{
		{PositionStatus{}, "No complete sentences."},
		{PositionStatus{Current: 3, Total: 3}, "All 3 sentences verified."},
		{PositionStatus{Current: 1, Total: 4}, "Verified 1 of 4 sentences."},
	}
	for _, tt := range tests {
		if got := FormatStatus(tt.st); got != tt.want {
			t.Errorf("FormatStatus(%+v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}

func TestFormatOutcome(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{Outcome{Kind: OutcomeOK, Type: "nat"}, "v : nat"},
		{Outcome{Kind: OutcomeMismatch, Type: "nat", Expected: "bool"}, "v : nat (expected bool)"},
		{Outcome{Kind: OutcomeError, Message: "not found"}, "v : error: not found"},
		{Outcome{Kind: OutcomeUnknown}, "v : unknown"},
	}
	for _, tt := range tests {
		if got := FormatOutcome("v", tt.o); got != tt.want {
			t.Errorf("FormatOutcome(%+v) = %q, want %q", tt.o, got, tt.want)
		}
	}
}

func TestWriteEntry(t *testing.T) {
	e := Entry{
		Sentence: Sentence{Text: "Check y x y."},
		Result: Result{
			Idents: map[string][]Outcome{
				"y": {{Kind: OutcomeOK, Type: "nat"}, {Kind: OutcomeUnknown}},
				"x": {{Kind: OutcomeOK, Type: "bool"}},
			},
			Messages: []Message{{Kind: OutcomeOK, Text: "deprecated"}, {Kind: OutcomeError, Text: "universe inconsistency"}},
		},
	}
	var sb strings.Builder
	WriteEntry(&sb, 1, e)
	want := `=== Sentence 2 ===
Check y x y.
  x : bool
  y : nat
  y : unknown
  deprecated
  error: universe inconsistency
`
	if got := sb.String(); got != want {
		t.Errorf("mismatch.\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestFormatHover(t *testing.T) {
	ok := Outcome{Kind: OutcomeOK, Type: "nat"}
	tests := []struct {
		h    Hover
		want string
	}{
		{Hover{Ident: "n"}, "n: no information from the prover"},
		{Hover{Ident: "n", Mentioned: true, Occurrence: 1}, "n: no outcome for occurrence 2"},
		{Hover{Ident: "n", Mentioned: true, Outcome: &ok}, "n : nat"},
	}
	for _, tt := range tests {
		if got := FormatHover(tt.h); got != tt.want {
			t.Errorf("FormatHover(%+v) = %q, want %q", tt.h, got, tt.want)
		}
	}
}

func TestFormatDiagnostics(t *testing.T) {
	var sb strings.Builder
	FormatDiagnostics(&sb, nil)
	if sb.Len() != 0 {
		t.Errorf("expected no output for no diagnostics, got %q", sb.String())
	}

	FormatDiagnostics(&sb, []Diagnostic{
		{Range: Range{Start: Position{Line: 0, Character: 11}, End: Position{Line: 0, Character: 12}}, Severity: SeverityError, Message: "v: expected bool, found nat"},
		{Range: Range{Start: Position{Line: 2, Character: 0}, End: Position{Line: 2, Character: 8}}, Severity: SeverityInfo, Message: "note"},
	})
	want := `
=== Diagnostics ===
[error] line 1:11–1:12: v: expected bool, found nat
[info] line 3:0–3:8: note
`
	if got := sb.String(); got != want {
		t.Errorf("mismatch.\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestFormatSyncResults(t *testing.T) {
	f := &proverFactory{prepare: func(p *scriptedProver) {
		p.reply = func(sentence string) (string, error) {
			if sentence == "Check y." {
				return "", &ProverError{Kind: KindCheck, Message: "The reference y was not found."}
			}
			return "x; nat\n#ok\n", nil
		}
	}}
	s := newTestSession(t, f)
	if err := s.Synchronize(t.Context(), "Definition x := 1.\nCheck y.\n", 1); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	got := resultText(FormatSyncResults(s, true))
	want := `Verified 1 of 2 sentences.

=== Sentence 1 ===
Definition x := 1.
  x : nat

=== Failed at sentence 2 ===
Check y.
The reference y was not found.

=== Diagnostics ===
[error] line 2:0–2:8: The reference y was not found.
`
	if got != want {
		t.Errorf("mismatch.\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestErrResult(t *testing.T) {
	r := ErrResult(errors.New("boom"))
	if !r.IsError {
		t.Error("expected IsError")
	}
	if got := resultText(r); got != "boom" {
		t.Errorf("got %q", got)
	}
	if TextResult("ok").IsError {
		t.Error("TextResult must not be an error")
	}
}
