// pieuvre-mock is a toy prover that speaks the pieuvre stdio protocol.
//
// It understands three sentence forms:
//
//	Definition name := expr.
//	Definition name : type := expr.
//	Check expr.
//
// Numbers have type nat, true/false have type bool and string literals
// have type string. An expression has the type of its first operand.
// Anything else is rejected with the error tag.
//
// Usage:
//
//	pieuvre-mock [--noise] [--crash-after N]
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sanjit/pieuvre-mcp/internal/pieuvre"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type mockOptions struct {
	tags       pieuvre.Tags
	noise      bool
	crashAfter int
}

func newRootCmd() *cobra.Command {
	opts := mockOptions{tags: pieuvre.DefaultTags()}
	cmd := &cobra.Command{
		Use:           "pieuvre-mock",
		Short:         "Toy prover speaking the pieuvre stdio protocol",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &prover{opts: opts, out: bufio.NewWriter(cmd.OutOrStdout()), errOut: cmd.ErrOrStderr()}
			return p.serve(cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&opts.tags.Ready, "ready-tag", opts.tags.Ready, "startup sentinel")
	cmd.Flags().StringVar(&opts.tags.Begin, "begin-tag", opts.tags.Begin, "reply start tag")
	cmd.Flags().StringVar(&opts.tags.End, "end-tag", opts.tags.End, "reply end tag")
	cmd.Flags().StringVar(&opts.tags.Error, "error-tag", opts.tags.Error, "error tag")
	cmd.Flags().BoolVar(&opts.noise, "noise", false, "write chatter to stderr before every reply")
	cmd.Flags().IntVar(&opts.crashAfter, "crash-after", 0, "exit after answering N commands (0 = never)")
	return cmd
}

type binding struct {
	sentence string
	name     string // empty for Check
	typ      string
}

type prover struct {
	opts    mockOptions
	out     *bufio.Writer
	errOut  io.Writer
	env     []binding
	handled int
}

func (p *prover) serve(in io.Reader) error {
	fmt.Fprintln(p.out, p.opts.tags.Ready)
	if err := p.out.Flush(); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		kind := strings.TrimSpace(sc.Text())
		if kind == "" {
			continue
		}
		if !sc.Scan() {
			break
		}
		payload := sc.Text()

		if p.opts.noise {
			fmt.Fprintf(p.errOut, "[mock] handling %s\n", kind)
		}
		body, err := p.handle(pieuvre.Kind(kind), payload)
		p.reply(body, err)
		if err := p.out.Flush(); err != nil {
			return err
		}

		p.handled++
		if p.opts.crashAfter > 0 && p.handled >= p.opts.crashAfter {
			return fmt.Errorf("crashing after %d commands", p.handled)
		}
	}
	return sc.Err()
}

func (p *prover) reply(body string, err error) {
	fmt.Fprintln(p.out, p.opts.tags.Begin)
	if body != "" {
		fmt.Fprintln(p.out, body)
	}
	if err != nil {
		fmt.Fprintf(p.out, "%s %s\n", p.opts.tags.Error, err)
	}
	fmt.Fprintln(p.out, p.opts.tags.End)
}

func (p *prover) handle(kind pieuvre.Kind, payload string) (string, error) {
	switch kind {
	case pieuvre.KindCheck:
		return p.check(payload)
	case pieuvre.KindUndo:
		return "", p.undo(payload)
	case pieuvre.KindQuery:
		return p.query(payload)
	default:
		return "", fmt.Errorf("unknown command %q", kind)
	}
}

func (p *prover) check(sentence string) (string, error) {
	words := tokens(stripComments(strings.TrimSuffix(strings.TrimSpace(sentence), ".")))
	if len(words) == 0 {
		return "", fmt.Errorf("empty sentence")
	}
	switch words[0] {
	case "Definition":
		return p.define(sentence, words[1:])
	case "Check":
		if len(words) < 2 {
			return "", fmt.Errorf("Check expects an expression")
		}
		var sb strings.Builder
		p.describe(&sb, words[1:])
		p.env = append(p.env, binding{sentence: sentence})
		return strings.TrimSuffix(sb.String(), "\n"), nil
	default:
		return "", fmt.Errorf("syntax error: unexpected %q", words[0])
	}
}

func (p *prover) define(sentence string, words []string) (string, error) {
	if len(words) < 3 || !isIdent(words[0]) {
		return "", fmt.Errorf("syntax error in Definition")
	}
	name := words[0]
	declared := ""
	rest := words[1:]
	if rest[0] == ":" {
		if len(rest) < 4 || rest[2] != ":=" {
			return "", fmt.Errorf("syntax error in Definition")
		}
		declared = rest[1]
		rest = rest[2:]
	}
	if rest[0] != ":=" {
		return "", fmt.Errorf("syntax error in Definition")
	}
	expr := rest[1:]
	if len(expr) == 0 {
		return "", fmt.Errorf("Definition %s has no body", name)
	}
	for _, w := range expr {
		if isIdent(w) && p.lookup(w) == "" {
			return "", fmt.Errorf("the reference %s was not found in the current environment", w)
		}
	}
	if p.lookup(name) != "" {
		return "", fmt.Errorf("%s already exists", name)
	}

	typ := p.typeOf(expr[0])
	var sb strings.Builder
	if declared != "" && declared != typ {
		fmt.Fprintf(&sb, "%s; %s\n#mismatch %s\n", name, typ, declared)
		typ = declared
	} else {
		fmt.Fprintf(&sb, "%s; %s\n#ok\n", name, typ)
	}
	p.describe(&sb, expr)
	p.env = append(p.env, binding{sentence: sentence, name: name, typ: typ})
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

// describe writes one group per identifier occurrence in expr.
func (p *prover) describe(sb *strings.Builder, expr []string) {
	for _, w := range expr {
		if !isIdent(w) {
			continue
		}
		if typ := p.lookup(w); typ != "" {
			fmt.Fprintf(sb, "%s; %s\n#ok\n", w, typ)
		} else {
			fmt.Fprintf(sb, "%s;\n#unknown\n", w)
		}
	}
}

func (p *prover) undo(sentence string) error {
	if len(p.env) == 0 {
		return fmt.Errorf("nothing to undo")
	}
	top := p.env[len(p.env)-1]
	if top.sentence != sentence {
		return fmt.Errorf("cannot undo %q: last sentence is %q", sentence, top.sentence)
	}
	p.env = p.env[:len(p.env)-1]
	return nil
}

func (p *prover) query(text string) (string, error) {
	words := tokens(strings.TrimSuffix(strings.TrimSpace(text), "."))
	if len(words) == 0 {
		return "", fmt.Errorf("empty query")
	}
	if words[0] == "Print" || words[0] == "About" {
		words = words[1:]
	}
	var lines []string
	for _, w := range words {
		if typ := p.typeOf(w); typ != "" {
			lines = append(lines, fmt.Sprintf("%s : %s", w, typ))
		} else {
			lines = append(lines, fmt.Sprintf("%s not a defined object.", w))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (p *prover) lookup(name string) string {
	for i := len(p.env) - 1; i >= 0; i-- {
		if p.env[i].name == name {
			return p.env[i].typ
		}
	}
	return ""
}

func (p *prover) typeOf(w string) string {
	switch {
	case w == "true" || w == "false":
		return "bool"
	case strings.HasPrefix(w, `"`):
		return "string"
	case w[0] >= '0' && w[0] <= '9':
		return "nat"
	default:
		return p.lookup(w)
	}
}

func isIdent(w string) bool {
	if w == "" || w == "true" || w == "false" {
		return false
	}
	c := w[0]
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func stripComments(s string) string {
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "(*"):
			depth++
			i++
		case strings.HasPrefix(s[i:], "*)") && depth > 0:
			depth--
			i++
		case depth == 0:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

// tokens splits on whitespace and separates ":=", ":" and "+" from words.
func tokens(s string) []string {
	s = strings.ReplaceAll(s, ":=", " := ")
	var out []string
	for _, f := range strings.Fields(s) {
		if f == ":=" {
			out = append(out, f)
			continue
		}
		for _, part := range splitKeep(f, ":") {
			out = append(out, splitKeep(part, "+")...)
		}
	}
	return out
}

func splitKeep(s, sep string) []string {
	var out []string
	for {
		i := strings.Index(s, sep)
		if i < 0 || s == sep {
			break
		}
		if i > 0 {
			out = append(out, s[:i])
		}
		out = append(out, sep)
		s = s[i+len(sep):]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
