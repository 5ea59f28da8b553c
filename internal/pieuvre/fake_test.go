package pieuvre

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pkt.systems/pslog"
)

func testLogger() pslog.Logger {
	return pslog.NewWithOptions(io.Discard, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.TraceLevel,
	})
}

// respondFunc returns the raw output the fake prover writes for a command.
// An empty string writes nothing, leaving the command unanswered.
type respondFunc func(kind Kind, payload string) string

// fakeProver is an in-process prover wired to the client through pipes.
type fakeProver struct {
	tags    Tags
	respond respondFunc

	stdinR, stdoutR, stderrR *io.PipeReader
	stdinW, stdoutW, stderrW *io.PipeWriter

	out chan func()

	mu       sync.Mutex
	received []string

	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

func newFakeProver(respond respondFunc) *fakeProver {
	f := &fakeProver{
		tags:    DefaultTags(),
		respond: respond,
		out:     make(chan func(), 128),
		exited:  make(chan struct{}),
	}
	f.stdinR, f.stdinW = io.Pipe()
	f.stdoutR, f.stdoutW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()
	go f.writeLoop()
	go f.serve()
	return f
}

func (f *fakeProver) writeLoop() {
	for {
		select {
		case fn := <-f.out:
			fn()
		case <-f.exited:
			return
		}
	}
}

func (f *fakeProver) serve() {
	r := bufio.NewReader(f.stdinR)
	for {
		kind, err := r.ReadString('\n')
		if err != nil {
			return
		}
		payload, err := r.ReadString('\n')
		if err != nil {
			return
		}
		kind = strings.TrimSuffix(kind, "\n")
		payload = strings.TrimSuffix(payload, "\n")
		f.mu.Lock()
		f.received = append(f.received, kind+" "+payload)
		f.mu.Unlock()
		if f.respond == nil {
			continue
		}
		if raw := f.respond(Kind(kind), payload); raw != "" {
			f.write(raw)
		}
	}
}

// write queues raw stdout output.
func (f *fakeProver) write(raw string) {
	f.out <- func() { _, _ = io.WriteString(f.stdoutW, raw) }
}

// writeErr queues raw stderr output.
func (f *fakeProver) writeErr(raw string) {
	f.out <- func() { _, _ = io.WriteString(f.stderrW, raw) }
}

func (f *fakeProver) ready() {
	f.write(f.tags.Ready + "\n")
}

// crash exits after all queued output has been written.
func (f *fakeProver) crash(err error) {
	f.out <- func() { f.exit(err) }
}

func (f *fakeProver) exit(err error) {
	f.exitOnce.Do(func() {
		f.exitErr = err
		_ = f.stdoutW.Close()
		_ = f.stderrW.Close()
		_ = f.stdinR.Close()
		close(f.exited)
	})
}

func (f *fakeProver) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeProver) Stdin() io.WriteCloser { return f.stdinW }
func (f *fakeProver) Stdout() io.Reader     { return f.stdoutR }
func (f *fakeProver) Stderr() io.Reader     { return f.stderrR }
func (f *fakeProver) Pid() int              { return 4242 }
func (f *fakeProver) Kill() error {
	f.exit(errors.New("signal: killed"))
	return nil
}
func (f *fakeProver) Wait() error {
	<-f.exited
	return f.exitErr
}

func replyText(text string) string {
	tags := DefaultTags()
	return tags.Begin + "\n" + text + "\n" + tags.End + "\n"
}

func rejectText(msg string) string {
	tags := DefaultTags()
	return tags.Begin + "\n" + tags.Error + " " + msg + "\n" + tags.End + "\n"
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) snapshot() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...), append([]string(nil), n.errors...)
}

// newFakeClient returns an unstarted client whose process is fp.
func newFakeClient(t *testing.T, fp *fakeProver) (*Client, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	c := NewClient(ClientConfig{Path: "fake-prover", Logger: testLogger(), Notifier: n})
	c.spawn = func(path string, args []string) (process, error) {
		return fp, nil
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c, n
}

// startFakeClient returns a client that has completed its handshake.
func startFakeClient(t *testing.T, respond respondFunc) (*Client, *fakeProver) {
	t.Helper()
	fp := newFakeProver(respond)
	c, _ := newFakeClient(t, fp)
	fp.ready()
	ctx, cancel := testContext(t)
	defer cancel()
	require.NoError(t, c.Start(ctx))
	return c, fp
}

// echo answers every command with its payload.
func echo(kind Kind, payload string) string {
	return replyText(payload)
}

func testContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}
