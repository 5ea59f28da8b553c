package pieuvre

// transcript.go — bounded ring of recent prover I/O with an optional file mirror.

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const defaultTranscriptEntries = 200

// transcript keeps the most recent prover I/O in memory and optionally
// mirrors it to a writer.
type transcript struct {
	mu    sync.Mutex
	out   io.Writer
	ring  []string
	next  int
	full  bool
	close func() error
}

func newTranscript(out io.Writer, size int) *transcript {
	if size <= 0 {
		size = defaultTranscriptEntries
	}
	t := &transcript{out: out, ring: make([]string, size)}
	if closer, ok := out.(io.Closer); ok {
		t.close = closer.Close
	}
	return t
}

func (t *transcript) record(stream, text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	var entry string
	switch stream {
	case "stderr":
		entry = "ERROR: " + text
	case "stdin":
		entry = "> " + text
	default:
		entry = text
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = entry
	t.next = (t.next + 1) % len(t.ring)
	if t.next == 0 {
		t.full = true
	}
	if t.out != nil {
		fmt.Fprintln(t.out, entry)
	}
}

func (t *transcript) entries() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]string(nil), t.ring[:t.next]...)
	}
	out := make([]string, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

func (t *transcript) closeOut() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	closeFn := t.close
	t.out = nil
	t.close = nil
	if closeFn == nil {
		return nil
	}
	return closeFn()
}
