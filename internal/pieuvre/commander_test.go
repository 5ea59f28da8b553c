package pieuvre

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// scriptedProver is an in-memory Commander that keeps a sentence stack the
// way a real prover does and records every command it accepts.
type scriptedProver struct {
	mu      sync.Mutex
	log     []string
	stack   []string
	started bool
	stopped bool
	cancels int

	startErr error
	// reply answers a CHECK; nil replies with "".
	reply func(sentence string) (string, error)
	// block, when set, holds every CHECK until it can receive.
	block   chan struct{}
	entered chan string
	// queryErrs fail successive QUERY commands before they are answered.
	queryErrs []error
}

func (p *scriptedProver) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.started = true
	return nil
}

func (p *scriptedProver) SendCommand(ctx context.Context, kind Kind, payload string) (string, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return "", ErrNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return "", ErrStopped
	}
	p.log = append(p.log, string(kind)+" "+payload)
	block, entered := p.block, p.entered
	p.mu.Unlock()

	switch kind {
	case KindUndo:
		p.mu.Lock()
		defer p.mu.Unlock()
		if n := len(p.stack); n == 0 || p.stack[n-1] != payload {
			return "", &ProverError{Kind: kind, Message: "cannot undo " + payload}
		}
		p.stack = p.stack[:len(p.stack)-1]
		return "", nil
	case KindQuery:
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.queryErrs) > 0 {
			err := p.queryErrs[0]
			p.queryErrs = p.queryErrs[1:]
			return "", err
		}
		return "answer to " + payload, nil
	}

	if block != nil {
		if entered != nil {
			entered <- payload
		}
		select {
		case <-block:
		case <-ctx.Done():
			return "", ErrAbandoned
		}
	}
	var reply string
	if p.reply != nil {
		var err error
		if reply, err = p.reply(payload); err != nil {
			return "", err
		}
	}
	p.mu.Lock()
	p.stack = append(p.stack, payload)
	p.mu.Unlock()
	return reply, nil
}

func (p *scriptedProver) CancelNextCommands() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels++
	return false
}

func (p *scriptedProver) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

func (p *scriptedProver) Transcript() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *scriptedProver) commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *scriptedProver) sentences() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stack...)
}

func (p *scriptedProver) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = nil
}

// rejectContaining rejects sentences containing marker and replies with
// an ok group for every other sentence.
func rejectContaining(marker string) func(string) (string, error) {
	return func(sentence string) (string, error) {
		if strings.Contains(sentence, marker) {
			return "", &ProverError{Kind: KindCheck, Message: "rejected " + sentence}
		}
		return "", nil
	}
}

// proverFactory hands out provers in order and records them.
type proverFactory struct {
	mu      sync.Mutex
	made    []*scriptedProver
	prepare func(*scriptedProver)
}

func (f *proverFactory) build() Commander {
	p := &scriptedProver{}
	if f.prepare != nil {
		f.prepare(p)
	}
	f.mu.Lock()
	f.made = append(f.made, p)
	f.mu.Unlock()
	return p
}

func (f *proverFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func (f *proverFactory) last() *scriptedProver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

func newTestSession(t *testing.T, f *proverFactory) *Session {
	t.Helper()
	s := NewSession(SessionConfig{Factory: f.build, Logger: testLogger()})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var errBroken = errors.New("pipe broken")
