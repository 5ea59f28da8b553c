package pieuvre

// client.go — the prover subprocess: startup handshake, FIFO command queue, cancellation.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// Kind is the first line of every request written to the prover.
type Kind string

const (
	// KindCheck executes a sentence and returns per-identifier type facts.
	KindCheck Kind = "CHECK"
	// KindUndo retracts the most recent sentence; the payload is its text.
	KindUndo Kind = "UNDO"
	// KindQuery runs a read-only command and returns free text.
	KindQuery Kind = "QUERY"
)

// State is the lifecycle state of a Client.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateBusy
	StateStopped
	StateFailed
)

func (s State) String() string {
	names := []string{"not-started", "starting", "ready", "busy", "stopped", "failed"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Notifier surfaces user-visible lifecycle messages.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Path string
	Args []string
	Tags Tags

	// Transcript receives a copy of all prover I/O. It is closed on Stop
	// when it implements io.Closer.
	Transcript io.Writer
	// TranscriptEntries bounds the in-memory transcript ring.
	TranscriptEntries int

	Logger   pslog.Logger
	Notifier Notifier
}

// process is the running subprocess as seen by the client.
type process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Pid() int
	Kill() error
	Wait() error
}

type spawnFunc func(path string, args []string) (process, error)

type command struct {
	kind    Kind
	payload string
	done    chan commandResult
	sent    time.Time
}

type commandResult struct {
	text string
	err  error
}

// Client owns one prover subprocess. Commands are transmitted one at a
// time in the order they were sent; the next command is written only after
// the previous one has been answered.
type Client struct {
	cfg      ClientConfig
	log      pslog.Logger
	notifier Notifier
	spawn    spawnFunc

	mu       sync.Mutex
	state    State
	proc     process
	stdin    io.Writer
	framer   *framer
	queue    []*command
	inflight *command
	resolved bool
	startErr error
	waiters  []chan error
	stopped  bool

	writeMu    sync.Mutex
	transcript *transcript
	exited     chan struct{}
}

// NewClient constructs a client in the NotStarted state.
func NewClient(cfg ClientConfig) *Client {
	if !cfg.Tags.valid() {
		cfg.Tags = DefaultTags()
	}
	log := cfg.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = logNotifier{log: log}
	}
	return &Client{
		cfg:        cfg,
		log:        log,
		notifier:   notifier,
		spawn:      execSpawn,
		framer:     newFramer(cfg.Tags),
		transcript: newTranscript(cfg.Transcript, cfg.TranscriptEntries),
		exited:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start spawns the prover and blocks until it writes the ready tag, the
// process exits, or ctx is done.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNotStarted {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("prover already %s", state)
	}
	if c.cfg.Path == "" {
		err := &BinaryNotFoundError{}
		c.resolveStartLocked(err)
		c.mu.Unlock()
		c.notifier.Error(fmt.Sprintf("Failed to start prover: %v", err))
		recordSpawn(ctx, false)
		return err
	}
	c.state = StateStarting
	c.mu.Unlock()

	c.log.Info("prover start", "path", c.cfg.Path, "args", c.cfg.Args)
	proc, err := c.spawn(c.cfg.Path, c.cfg.Args)
	if err != nil {
		c.mu.Lock()
		c.resolveStartLocked(err)
		c.mu.Unlock()
		c.notifier.Error(fmt.Sprintf("Failed to start prover: %v", err))
		recordSpawn(ctx, false)
		return err
	}

	c.mu.Lock()
	c.proc = proc
	c.stdin = proc.Stdin()
	c.mu.Unlock()
	c.log.Info("prover started", "pid", proc.Pid())

	var wg sync.WaitGroup
	wg.Add(2)
	go c.readStream(proc.Stdout(), "stdout", &wg)
	go c.readStream(proc.Stderr(), "stderr", &wg)
	go func() {
		wg.Wait()
		c.handleExit(proc.Wait())
	}()

	if err := c.UntilStarted(ctx); err != nil {
		if ctx.Err() != nil {
			c.mu.Lock()
			c.resolveStartLocked(fmt.Errorf("%w: %v", ErrStartFailed, ctx.Err()))
			err = c.startErr
			c.mu.Unlock()
			if err == nil {
				recordSpawn(ctx, true)
				return nil
			}
			_ = proc.Kill()
		}
		recordSpawn(ctx, false)
		c.notifier.Error(fmt.Sprintf("Failed to start prover: %v", err))
		return err
	}
	recordSpawn(ctx, true)
	c.notifier.Info("Prover started successfully")
	return nil
}

// UntilStarted blocks until Start has resolved and returns its outcome.
// It returns immediately once the outcome is known.
func (c *Client) UntilStarted(ctx context.Context) error {
	c.mu.Lock()
	if c.resolved {
		err := c.startErr
		c.mu.Unlock()
		return err
	}
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		c.mu.Lock()
		for i, w := range c.waiters {
			if w == ch {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				c.mu.Unlock()
				return ctx.Err()
			}
		}
		c.mu.Unlock()
		return <-ch
	}
}

// SendCommand queues a command and waits for its reply. A prover
// rejection is returned as *ProverError. If ctx ends while the command is
// still queued it is dropped with ErrCanceled; if it is already in flight
// the caller gets ErrAbandoned and the reply is discarded when it arrives.
func (c *Client) SendCommand(ctx context.Context, kind Kind, payload string) (string, error) {
	cmd := &command{kind: kind, payload: payload, done: make(chan commandResult, 1)}

	c.mu.Lock()
	switch c.state {
	case StateNotStarted:
		c.mu.Unlock()
		return "", ErrNotStarted
	case StateFailed:
		err := c.startErr
		c.mu.Unlock()
		return "", err
	case StateStopped:
		c.mu.Unlock()
		return "", ErrStopped
	}
	c.queue = append(c.queue, cmd)
	next := c.nextLocked()
	c.mu.Unlock()
	c.transmit(next)

	select {
	case res := <-cmd.done:
		return res.text, res.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	for i, q := range c.queue {
		if q == cmd {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.mu.Unlock()
			return "", fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		}
	}
	c.mu.Unlock()
	select {
	case res := <-cmd.done:
		return res.text, res.err
	default:
		return "", fmt.Errorf("%w: %v", ErrAbandoned, ctx.Err())
	}
}

// CancelNextCommands rejects every queued command with ErrCanceled and
// reports whether a command was in flight.
func (c *Client) CancelNextCommands() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cmd := range c.queue {
		cmd.done <- commandResult{err: ErrCanceled}
	}
	if len(c.queue) > 0 {
		c.log.Debug("prover commands canceled", "count", len(c.queue))
	}
	c.queue = nil
	return c.inflight != nil
}

// Stop rejects outstanding commands, kills the subprocess and closes the
// transcript. It is safe to call more than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.failAllLocked(ErrStopped)
	// Only a failed handshake keeps the client in StateFailed.
	failed := c.resolved && c.startErr != nil
	if !c.resolved {
		c.resolveStartLocked(ErrStopped)
	}
	if !failed {
		c.state = StateStopped
	}
	proc := c.proc
	c.mu.Unlock()

	var err error
	if proc != nil {
		_ = proc.Stdin().Close()
		if kerr := proc.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill prover: %w", kerr)
		}
		c.log.Info("prover stopped", "pid", proc.Pid())
	}
	if cerr := c.transcript.closeOut(); cerr != nil && err == nil {
		err = fmt.Errorf("close transcript: %w", cerr)
	}
	return err
}

// Done is closed once the subprocess has exited and its output is drained.
func (c *Client) Done() <-chan struct{} {
	return c.exited
}

// Transcript returns the most recent prover I/O, oldest first.
func (c *Client) Transcript() []string {
	return c.transcript.entries()
}

func (c *Client) readStream(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.onChunk(stream, string(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.log.Debug("prover stream closed", "stream", stream, "err", err)
			}
			return
		}
	}
}

// onChunk feeds one chunk of output to the framer and settles every frame
// it completes.
func (c *Client) onChunk(stream, chunk string) {
	c.transcript.record(stream, chunk)
	preview := previewText(chunk, 200)
	c.log.Trace("prover output", "stream", stream, "len", len(chunk), "preview", preview, "truncated", len(preview) < len(chunk))

	c.mu.Lock()
	for _, fr := range c.framer.feed(chunk) {
		switch fr.kind {
		case frameReady:
			if !c.resolved {
				c.log.Info("prover ready")
				c.resolveStartLocked(nil)
			}
		case frameReply:
			c.completeLocked(commandResult{text: fr.text})
		case frameError:
			kind := Kind("")
			if c.inflight != nil {
				kind = c.inflight.kind
			}
			c.completeLocked(commandResult{err: &ProverError{Kind: kind, Message: fr.text}})
		case frameNoise:
			c.log.Debug("prover output outside reply", "stream", stream, "preview", previewText(fr.text, 200))
		}
	}
	next := c.nextLocked()
	c.mu.Unlock()
	c.transmit(next)
}

// transmit writes cmd and, if the write fails, settles it and moves on to
// the next queued command.
func (c *Client) transmit(cmd *command) {
	for cmd != nil {
		line := string(cmd.kind) + "\n" + sanitizePayload(cmd.payload) + "\n"
		c.transcript.record("stdin", line)
		c.log.Debug("prover command", "kind", cmd.kind, "len", len(line))

		c.mu.Lock()
		w := c.stdin
		c.mu.Unlock()

		c.writeMu.Lock()
		_, err := io.WriteString(w, line)
		c.writeMu.Unlock()
		if err == nil {
			return
		}

		c.log.Warn("prover write failed", "kind", cmd.kind, "err", err)
		c.mu.Lock()
		if c.inflight == cmd {
			c.completeLocked(commandResult{err: fmt.Errorf("write %s: %w", cmd.kind, err)})
		}
		cmd = c.nextLocked()
		c.mu.Unlock()
	}
}

func (c *Client) handleExit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(c.exited)
	if c.stopped {
		return
	}
	exitErr := ErrProverExited
	if err != nil {
		exitErr = fmt.Errorf("%w: %v", ErrProverExited, err)
	}
	c.log.Warn("prover exited", "err", err)
	c.notifier.Error(fmt.Sprintf("Prover exited: %v", exitErr))
	c.failAllLocked(exitErr)
	if !c.resolved {
		c.resolveStartLocked(fmt.Errorf("%w: %v", ErrStartFailed, exitErr))
	}
	if c.state != StateFailed {
		c.state = StateStopped
	}
}

// resolveStartLocked settles the startup gate once. Waiters are released
// newest first.
func (c *Client) resolveStartLocked(err error) {
	if c.resolved {
		return
	}
	c.resolved = true
	c.startErr = err
	if err == nil {
		c.state = StateReady
	} else {
		c.state = StateFailed
		c.failAllLocked(err)
	}
	for i := len(c.waiters) - 1; i >= 0; i-- {
		c.waiters[i] <- err
	}
	c.waiters = nil
}

func (c *Client) completeLocked(res commandResult) {
	cmd := c.inflight
	if cmd == nil {
		c.log.Warn("unsolicited prover reply", "err", res.err, "preview", previewText(res.text, 200))
		return
	}
	c.inflight = nil
	if c.state == StateBusy {
		c.state = StateReady
	}
	recordCommand(context.Background(), cmd.kind, time.Since(cmd.sent), res.err == nil)
	cmd.done <- res
}

// nextLocked promotes the head of the queue to in flight when the prover
// is idle.
func (c *Client) nextLocked() *command {
	if c.state != StateReady || c.inflight != nil || len(c.queue) == 0 {
		return nil
	}
	cmd := c.queue[0]
	c.queue = c.queue[1:]
	c.inflight = cmd
	c.state = StateBusy
	cmd.sent = time.Now()
	return cmd
}

func (c *Client) failAllLocked(err error) {
	if c.inflight != nil {
		c.inflight.done <- commandResult{err: err}
		c.inflight = nil
	}
	for _, cmd := range c.queue {
		cmd.done <- commandResult{err: err}
	}
	c.queue = nil
}

// sanitizePayload makes a payload fit on one line of the wire protocol.
func sanitizePayload(payload string) string {
	payload = strings.TrimSpace(payload)
	payload = strings.ReplaceAll(payload, "\r\n", " ")
	payload = strings.ReplaceAll(payload, "\n", " ")
	return strings.ReplaceAll(payload, "\r", " ")
}

func previewText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

// execProcess adapts exec.Cmd to process.
type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func execSpawn(path string, args []string) (process, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, &BinaryNotFoundError{Path: path}
	}
	cmd := exec.Command(resolved, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start prover: %w", err)
	}
	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }

// logNotifier is the Notifier used when none is configured.
type logNotifier struct {
	log pslog.Logger
}

func (n logNotifier) Info(msg string)  { n.log.Info(msg) }
func (n logNotifier) Error(msg string) { n.log.Error(msg) }
