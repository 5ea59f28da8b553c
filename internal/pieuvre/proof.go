package pieuvre

// proof.go — proof-checking operations: open, check, step, query, and restart.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"pkt.systems/pslog"
)

// DoOpen opens a .v file and reports how many sentences it has.
func DoOpen(sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.OpenDoc(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	n := len(Segment(doc.Content))
	return TextResult(fmt.Sprintf("Opened %s (%d sentences)", file, n)), nil, nil
}

// DoClose stops the prover of a document and forgets it.
func DoClose(sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	if err := sm.CloseDoc(file); err != nil {
		return ErrResult(err), nil, nil
	}
	return TextResult("Closed " + file), nil, nil
}

// DoSync re-reads the file and re-verifies it up to the last requested point.
func DoSync(ctx context.Context, sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.SyncDoc(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	if err := doc.Session.SynchronizeTo(ctx, doc.Content, doc.Version, doc.Limit); err != nil {
		return syncErrResult(err), nil, nil
	}
	return FormatSyncResults(doc.Session, false), nil, nil
}

// DoCheck verifies every sentence that ends at or before (line, col).
func DoCheck(ctx context.Context, sm *StateManager, file string, line, col int) (*mcp.CallToolResult, any, error) {
	doc, err := sm.SyncDoc(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	limit := OffsetAt(doc.Content, Position{Line: line, Character: col})
	sm.SetLimit(file, limit)
	if err := doc.Session.SynchronizeTo(ctx, doc.Content, doc.Version, limit); err != nil {
		return syncErrResult(err), nil, nil
	}
	return FormatSyncResults(doc.Session, true), nil, nil
}

// DoCheckAll verifies the whole document.
func DoCheckAll(ctx context.Context, sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.SyncDoc(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	sm.SetLimit(file, -1)
	if err := doc.Session.Synchronize(ctx, doc.Content, doc.Version); err != nil {
		return syncErrResult(err), nil, nil
	}
	return FormatSyncResults(doc.Session, false), nil, nil
}

// DoStep verifies the next sentence or retracts the last one.
func DoStep(ctx context.Context, sm *StateManager, file string, forward bool) (*mcp.CallToolResult, any, error) {
	doc, err := sm.SyncDoc(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	if forward {
		err = doc.Session.StepForward(ctx, doc.Content, doc.Version)
	} else {
		err = doc.Session.StepBackward(ctx, doc.Content, doc.Version)
	}
	if err != nil {
		return syncErrResult(err), nil, nil
	}

	limit := 0
	if verified := doc.Session.Verified(); len(verified) > 0 {
		limit = verified[len(verified)-1].Sentence.End
	}
	if f := doc.Session.Failure(); f != nil {
		limit = f.Sentence.End
	}
	sm.SetLimit(file, limit)
	return FormatSyncResults(doc.Session, true), nil, nil
}

// DoStatus reports the position indicator of a document.
func DoStatus(sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	st := doc.Session.PositionStatus()
	text := FormatStatus(st)
	if doc.Session.Invalid() {
		text += "\nProver state is out of sync; the next check restarts it."
	}
	return TextResult(text), nil, nil
}

// DoHover reports the outcome for the identifier at (line, col) in the
// last verified text.
func DoHover(sm *StateManager, file string, line, col int) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	text, _ := doc.Session.Text()
	offset := OffsetAt(text, Position{Line: line, Character: col})
	h, ok := doc.Session.OutcomeAt(offset)
	if !ok {
		return TextResult("No verified identifier at that position."), nil, nil
	}
	return TextResult(FormatHover(h)), nil, nil
}

// DoDiagnostics lists problems found in the verified part of a document.
func DoDiagnostics(sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	diags := doc.Session.Diagnostics()
	if len(diags) == 0 {
		return TextResult("No diagnostics."), nil, nil
	}
	var sb strings.Builder
	FormatDiagnostics(&sb, diags)
	return TextResult(strings.TrimPrefix(sb.String(), "\n")), nil, nil
}

// DoQuery sends a read-only command to the document's prover.
func DoQuery(ctx context.Context, sm *StateManager, file, pattern string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	text, err := doc.Session.Query(ctx, pattern)
	if err != nil {
		if errors.Is(err, ErrNotStarted) {
			err = fmt.Errorf("%w: check the document first", err)
		}
		return ErrResult(err), nil, nil
	}
	if strings.TrimSpace(text) == "" {
		text = "No result."
	}
	return TextResult(text), nil, nil
}

// DoRestart replaces the document's prover and clears verified state.
func DoRestart(ctx context.Context, sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	if err := doc.Session.Restart(ctx); err != nil {
		return ErrResult(err), nil, nil
	}
	return TextResult("Restarted prover for " + file), nil, nil
}

// DoTranscript returns recent prover I/O for a document.
func DoTranscript(sm *StateManager, file string) (*mcp.CallToolResult, any, error) {
	doc, err := sm.Snapshot(file)
	if err != nil {
		return ErrResult(err), nil, nil
	}
	lines := doc.Session.Transcript()
	if len(lines) == 0 {
		return TextResult("Transcript is empty."), nil, nil
	}
	return TextResult(strings.Join(lines, "\n")), nil, nil
}

// Resync re-verifies a document after its file changed on disk. It is
// used as the ChangeHandler of a Watcher.
func Resync(ctx context.Context, sm *StateManager, file string) {
	log := pslog.Ctx(ctx).With("file", file)
	doc, err := sm.SyncDoc(file)
	if err != nil {
		log.Debug("resync skipped", "error", err)
		return
	}
	if doc.Session.PositionStatus().Total == 0 {
		return
	}
	err = doc.Session.SynchronizeTo(ctx, doc.Content, doc.Version, doc.Limit)
	switch {
	case err == nil:
		log.Info("resynchronized", "version", doc.Version, "status", FormatStatus(doc.Session.PositionStatus()))
	case errors.Is(err, ErrSuperseded):
	default:
		log.Warn("resync failed", "error", err)
	}
}

func syncErrResult(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, ErrSuperseded):
		return ErrResult(fmt.Errorf("%w by a newer request", err))
	case errors.Is(err, ErrBinaryNotFound):
		return ErrResult(fmt.Errorf("%w (set PIEUVRE_PROVER_PATH)", err))
	default:
		return ErrResult(err)
	}
}
