package pieuvre

// session.go — incremental synchronization of a document with one prover.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"pkt.systems/pslog"
)

// Commander is the part of a prover client used by a Session.
type Commander interface {
	Start(ctx context.Context) error
	SendCommand(ctx context.Context, kind Kind, payload string) (string, error)
	CancelNextCommands() bool
	Stop() error
	Transcript() []string
}

// ClientFactory builds a fresh, unstarted prover client.
type ClientFactory func() Commander

// SessionConfig configures a Session.
type SessionConfig struct {
	Factory ClientFactory
	Logger  pslog.Logger
	// StartTimeout bounds the ready handshake. Zero means no bound.
	StartTimeout time.Duration
	// CommandTimeout bounds every prover command. Zero means no bound.
	CommandTimeout time.Duration
}

// Entry is a verified sentence and the prover's reply for it.
type Entry struct {
	Sentence Sentence
	Result   Result
}

// Failure records the sentence the prover rejected.
type Failure struct {
	Index    int      `json:"index"`
	Sentence Sentence `json:"sentence"`
	Message  string   `json:"message"`
}

// Hover describes the identifier at a document offset.
type Hover struct {
	Ident      string
	Occurrence int
	Sentence   Sentence
	// Mentioned is false when the reply for the sentence never named Ident.
	Mentioned bool
	// Outcome is nil when Ident was not mentioned or has fewer outcomes
	// than occurrences.
	Outcome *Outcome
}

type watermark struct {
	set     bool
	version int
	text    string
	target  int
}

// Session keeps one prover in step with one document. The verified list
// always holds exactly the sentences the prover has executed, in order.
type Session struct {
	id      string
	factory ClientFactory
	log     pslog.Logger
	timeout time.Duration
	startup time.Duration

	runMu    sync.Mutex
	gen      atomic.Uint64
	restarts singleflight.Group

	mu         sync.Mutex
	client     Commander
	verified   []Entry
	candidates []Sentence
	text       string
	version    int
	mark       watermark
	failure    *Failure
	invalid    bool
	closed     bool
}

// NewSession creates a session. The prover is started by the first
// synchronization or by Restart.
func NewSession(cfg SessionConfig) *Session {
	id := uuid.NewString()
	log := cfg.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Session{
		id:      id,
		factory: cfg.Factory,
		log:     log.With("session", id),
		timeout: cfg.CommandTimeout,
		startup: cfg.StartTimeout,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Synchronize brings the prover in step with the whole of text.
func (s *Session) Synchronize(ctx context.Context, text string, version int) error {
	return s.SynchronizeTo(ctx, text, version, -1)
}

// SynchronizeTo verifies the sentences of text that end at or before byte
// offset limit. A negative limit selects the whole document. A call that
// arrives while another pass is running supersedes it; the older pass
// returns ErrSuperseded.
func (s *Session) SynchronizeTo(ctx context.Context, text string, version, limit int) error {
	candidates := Segment(text)
	return s.syncCount(ctx, text, version, candidates, sentencesBefore(candidates, limit))
}

// StepForward verifies one more sentence of text.
func (s *Session) StepForward(ctx context.Context, text string, version int) error {
	candidates := Segment(text)
	s.mu.Lock()
	target := commonPrefix(s.verified, candidates) + 1
	s.mu.Unlock()
	target = min(target, len(candidates))
	return s.syncCount(ctx, text, version, candidates, target)
}

// StepBackward retracts the last verified sentence of text.
func (s *Session) StepBackward(ctx context.Context, text string, version int) error {
	candidates := Segment(text)
	s.mu.Lock()
	target := commonPrefix(s.verified, candidates) - 1
	s.mu.Unlock()
	target = max(target, 0)
	return s.syncCount(ctx, text, version, candidates, target)
}

func (s *Session) syncCount(ctx context.Context, text string, version int, candidates []Sentence, target int) error {
	gen := s.supersede()

	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.gen.Load() != gen {
		return ErrSuperseded
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStopped
	}
	upToDate := !s.invalid && s.mark.set && s.mark.text == text && s.mark.target == target
	s.candidates = candidates
	s.text = text
	s.version = version
	if upToDate {
		s.mark.version = version
	}
	s.mu.Unlock()
	if upToDate {
		return nil
	}
	return s.run(ctx, gen, text, version, candidates, target)
}

// supersede starts a new generation and drops queued commands of the
// pass it replaces.
func (s *Session) supersede() uint64 {
	gen := s.gen.Add(1)
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.CancelNextCommands()
	}
	return gen
}

func (s *Session) run(ctx context.Context, gen uint64, text string, version int, candidates []Sentence, target int) (err error) {
	undone, replayed := 0, 0
	ctx, span := startSyncSpan(ctx, s.id, version)
	defer func() {
		recordSync(ctx, undone, replayed)
		endSyncSpan(span, undone, replayed, err)
	}()

	if err := s.ensureClient(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	client := s.client
	keep := min(commonPrefix(s.verified, candidates), target)
	for i := range keep {
		s.verified[i].Sentence = candidates[i]
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		n := len(s.verified)
		var last Entry
		if n > keep {
			last = s.verified[n-1]
		}
		s.mu.Unlock()
		if n <= keep {
			break
		}
		if s.gen.Load() != gen {
			return ErrSuperseded
		}
		if _, err := s.send(ctx, client, KindUndo, last.Sentence.Text); err != nil {
			return s.commandFailed(gen, "undo", n-1, err)
		}
		s.mu.Lock()
		s.verified = s.verified[:n-1]
		s.mu.Unlock()
		undone++
	}

	s.mu.Lock()
	s.failure = nil
	s.mu.Unlock()

	for i := keep; i < target; i++ {
		if s.gen.Load() != gen {
			return ErrSuperseded
		}
		sentence := candidates[i]
		reply, err := s.send(ctx, client, KindCheck, sentence.Text)
		if err != nil {
			var pe *ProverError
			if errors.As(err, &pe) {
				s.log.Info("sentence rejected", "index", i, "message", pe.Message)
				s.mu.Lock()
				s.failure = &Failure{Index: i, Sentence: sentence, Message: pe.Message}
				s.mark = watermark{set: true, version: version, text: text, target: target}
				s.mu.Unlock()
				return nil
			}
			return s.commandFailed(gen, "check", i, err)
		}
		s.mu.Lock()
		s.verified = append(s.verified, Entry{Sentence: sentence, Result: Interpret(reply)})
		s.mu.Unlock()
		replayed++
	}

	s.mu.Lock()
	s.mark = watermark{set: true, version: version, text: text, target: target}
	s.mu.Unlock()
	s.log.Debug("synchronized", "version", version, "undone", undone, "replayed", replayed, "verified", target)
	return nil
}

// commandFailed classifies a failed undo or check. Canceled commands never
// reached the prover; anything else leaves its state unknown.
func (s *Session) commandFailed(gen uint64, op string, index int, err error) error {
	if errors.Is(err, ErrCanceled) {
		if s.gen.Load() != gen {
			return ErrSuperseded
		}
		return err
	}
	s.mu.Lock()
	s.invalid = true
	s.mu.Unlock()
	s.log.Warn("session invalidated", "op", op, "index", index, "error", err)
	return fmt.Errorf("%s sentence %d: %w", op, index, err)
}

func (s *Session) send(ctx context.Context, client Commander, kind Kind, payload string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return client.SendCommand(ctx, kind, payload)
}

// ensureClient starts the prover when there is none or when the recorded
// state can no longer be trusted.
func (s *Session) ensureClient(ctx context.Context) error {
	s.mu.Lock()
	ok := s.client != nil && !s.invalid
	s.mu.Unlock()
	if ok {
		return nil
	}
	return s.restartLocked(ctx)
}

// restartLocked replaces the prover and clears verified state. The caller
// holds runMu.
func (s *Session) restartLocked(ctx context.Context) error {
	if s.factory == nil {
		return fmt.Errorf("%w: no prover configured", ErrNotStarted)
	}
	s.mu.Lock()
	old := s.client
	s.client = nil
	s.verified = nil
	s.failure = nil
	s.mark = watermark{}
	s.invalid = true
	s.mu.Unlock()

	if old != nil {
		if err := old.Stop(); err != nil {
			s.log.Warn("stop prover", "error", err)
		}
	}

	client := s.factory()
	startCtx := ctx
	if s.startup > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, s.startup)
		defer cancel()
	}
	if err := client.Start(startCtx); err != nil {
		_ = client.Stop()
		return fmt.Errorf("start prover: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = client.Stop()
		return ErrStopped
	}
	s.client = client
	s.invalid = false
	s.log.Info("prover session started")
	return nil
}

// Restart stops the prover, starts a new one and forgets all verified
// sentences. Concurrent calls share one restart.
func (s *Session) Restart(ctx context.Context) error {
	_, err, _ := s.restarts.Do("restart", func() (any, error) {
		s.supersede()
		s.runMu.Lock()
		defer s.runMu.Unlock()
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrStopped
		}
		return nil, s.restartLocked(ctx)
	})
	return err
}

// maxQueryAttempts bounds how often Query resends a query whose queue slot
// was dropped by a concurrent synchronization pass.
const maxQueryAttempts = 3

// Query sends a read-only command to the running prover. It does not
// change the verified state.
//
// A synchronization pass that starts while the query is still queued
// cancels it along with the pass it supersedes. Query resends it in that
// case, as long as ctx and the session timeout allow.
func (s *Session) Query(ctx context.Context, text string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	var err error
	for range maxQueryAttempts {
		s.mu.Lock()
		client := s.client
		invalid := s.invalid
		s.mu.Unlock()
		if client == nil {
			return "", ErrNotStarted
		}
		if invalid {
			return "", ErrSessionInvalid
		}
		var reply string
		reply, err = client.SendCommand(ctx, KindQuery, text)
		if !errors.Is(err, ErrCanceled) || ctx.Err() != nil {
			return reply, err
		}
		s.log.Debug("query canceled by synchronization, resending", "text", previewText(text, 80))
	}
	return "", err
}

// PositionStatus reports how many sentences are verified out of the
// complete sentences of the last synchronized text.
func (s *Session) PositionStatus() PositionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PositionStatus{Current: len(s.verified), Total: len(s.candidates)}
}

// Verified returns a copy of the verified list.
func (s *Session) Verified() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.verified...)
}

// Failure returns the sentence rejected by the last pass, if any.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	f := *s.failure
	return &f
}

// Invalid reports whether the next pass will restart the prover.
func (s *Session) Invalid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

// Text returns the last synchronized text and its version.
func (s *Session) Text() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text, s.version
}

// OutcomeAt finds the identifier covering offset in a verified sentence.
// The Nth occurrence of a name in a sentence maps to its Nth outcome.
func (s *Session) OutcomeAt(offset int) (Hover, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.verified {
		if offset < e.Sentence.Start || offset > e.Sentence.End {
			continue
		}
		tok, n, ok := occurrenceAt(e.Sentence.Text, offset-e.Sentence.Start)
		if !ok {
			return Hover{}, false
		}
		h := Hover{Ident: tok.Name, Occurrence: n, Sentence: e.Sentence}
		outcomes, mentioned := e.Result.Outcomes(tok.Name)
		h.Mentioned = mentioned
		if n < len(outcomes) {
			o := outcomes[n]
			h.Outcome = &o
		}
		return h, true
	}
	return Hover{}, false
}

// Diagnostics reports error and mismatch outcomes of verified sentences
// and the rejected sentence, positioned in the last synchronized text.
func (s *Session) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()

	var diags []Diagnostic
	for _, e := range s.verified {
		seen := make(map[string]int)
		for _, tok := range identTokens(e.Sentence.Text) {
			n := seen[tok.Name]
			seen[tok.Name]++
			outcomes := e.Result.Idents[tok.Name]
			if n >= len(outcomes) {
				continue
			}
			o := outcomes[n]
			var msg string
			switch o.Kind {
			case OutcomeError:
				msg = fmt.Sprintf("%s: %s", tok.Name, o.Message)
			case OutcomeMismatch:
				msg = fmt.Sprintf("%s: expected %s, found %s", tok.Name, o.Expected, o.Type)
			default:
				continue
			}
			start := e.Sentence.Start + tok.Start
			diags = append(diags, Diagnostic{
				Range:    RangeOf(s.text, start, e.Sentence.Start+tok.End),
				Severity: SeverityError,
				Message:  msg,
			})
		}
		for _, m := range e.Result.Messages {
			diags = append(diags, Diagnostic{
				Range:    RangeOf(s.text, e.Sentence.Start, e.Sentence.End),
				Severity: messageSeverity(m.Kind),
				Message:  m.Text,
			})
		}
	}
	if s.failure != nil {
		diags = append(diags, Diagnostic{
			Range:    RangeOf(s.text, s.failure.Sentence.Start, s.failure.Sentence.End),
			Severity: SeverityError,
			Message:  s.failure.Message,
		})
	}
	return diags
}

func messageSeverity(kind OutcomeKind) int {
	switch kind {
	case OutcomeError, OutcomeMismatch:
		return SeverityError
	case OutcomeUnknown:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Transcript returns recent prover I/O of the current prover.
func (s *Session) Transcript() []string {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Transcript()
}

// Close stops the prover. Later passes fail with ErrStopped.
func (s *Session) Close() error {
	s.supersede()
	s.mu.Lock()
	s.closed = true
	client := s.client
	s.client = nil
	s.mu.Unlock()

	var err error
	if client != nil {
		err = client.Stop()
	}
	s.runMu.Lock()
	s.runMu.Unlock()
	return err
}
