package pieuvre

// interpret.go — parsing CHECK replies into per-identifier outcomes.

import (
	"strings"
)

// OutcomeKind classifies what the prover concluded about one identifier
// occurrence.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeMismatch
	OutcomeError
	OutcomeUnknown
)

var outcomeNames = map[string]OutcomeKind{
	"ok":       OutcomeOK,
	"mismatch": OutcomeMismatch,
	"error":    OutcomeError,
	"unknown":  OutcomeUnknown,
}

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeError:
		return "error"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Outcome is the prover's verdict for one occurrence of an identifier.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Type     string      `json:"type,omitempty"`     // ok, mismatch
	Expected string      `json:"expected,omitempty"` // mismatch
	Message  string      `json:"message,omitempty"`  // error
}

// Message is a group that names no identifier, such as a free-text
// prover error about the whole sentence.
type Message struct {
	Kind OutcomeKind `json:"kind"`
	Text string      `json:"text"`
}

// Result holds everything learned from one sentence's CHECK reply.
// Each identifier maps to its outcomes in left-to-right occurrence order.
type Result struct {
	Idents   map[string][]Outcome
	Messages []Message
}

// Outcomes returns the outcomes for name. ok is false when the reply never
// mentioned name, which is different from a mention checked as unknown.
func (r Result) Outcomes(name string) ([]Outcome, bool) {
	outcomes, ok := r.Idents[name]
	return outcomes, ok
}

const markerPrefix = "#"

// Interpret parses a CHECK reply.
//
// The reply is a sequence of groups. Each group ends with a marker line
// "#ok", "#unknown", "#error" or "#mismatch <expected>". The group's first
// line is "identifier; rest" and the payload is rest followed by the
// remaining lines. A group whose first line has no ';' or an empty
// identifier is a sentence-level message carrying the whole group. Lines
// after the last marker are ignored.
func Interpret(raw string) Result {
	res := Result{Idents: make(map[string][]Outcome)}
	var group []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		kind, rest, ok := parseMarker(line)
		if !ok {
			group = append(group, line)
			continue
		}
		res.add(kind, rest, group)
		group = nil
	}
	return res
}

func parseMarker(line string) (OutcomeKind, string, bool) {
	body, ok := strings.CutPrefix(line, markerPrefix)
	if !ok {
		return 0, "", false
	}
	word, rest, _ := strings.Cut(body, " ")
	kind, ok := outcomeNames[strings.TrimSpace(word)]
	if !ok {
		return 0, "", false
	}
	return kind, strings.TrimSpace(rest), true
}

func (r *Result) add(kind OutcomeKind, rest string, lines []string) {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}

	var name, payload string
	if len(lines) > 0 {
		first, after, found := strings.Cut(lines[0], ";")
		if found {
			name = strings.TrimSpace(first)
			lines = append([]string{after}, lines[1:]...)
		}
		payload = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	outcome := Outcome{Kind: kind}
	switch kind {
	case OutcomeOK:
		outcome.Type = payload
	case OutcomeMismatch:
		outcome.Type = payload
		outcome.Expected = rest
	case OutcomeError:
		outcome.Message = payload
		if outcome.Message == "" {
			outcome.Message = rest
		}
	}

	if name == "" {
		if msg := messageText(outcome, payload); msg != "" {
			r.Messages = append(r.Messages, Message{Kind: kind, Text: msg})
		}
		return
	}
	r.Idents[name] = append(r.Idents[name], outcome)
}

func messageText(o Outcome, payload string) string {
	switch o.Kind {
	case OutcomeError:
		return o.Message
	case OutcomeMismatch:
		if o.Expected != "" {
			return payload + " (expected " + o.Expected + ")"
		}
	}
	return payload
}
