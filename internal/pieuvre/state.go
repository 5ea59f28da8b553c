package pieuvre

// state.go — per-document sessions keyed by file URI.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
)

// DocState tracks one open document and the session verifying it.
type DocState struct {
	URI     string
	Path    string
	Version int
	Content string
	// Limit is the byte offset the document was last synchronized to;
	// -1 means the whole document.
	Limit   int
	Session *Session
}

// ManagerConfig configures a StateManager.
type ManagerConfig struct {
	// NewClient builds the prover client for a document's session.
	NewClient      func(path string) Commander
	StartTimeout   time.Duration
	CommandTimeout time.Duration
	Logger         pslog.Logger
}

// StateManager owns the sessions of all open documents. Each document has
// its own prover.
type StateManager struct {
	Docs map[string]*DocState // keyed by URI
	Mu   sync.Mutex

	cfg ManagerConfig
	log pslog.Logger
}

func NewStateManager(cfg ManagerConfig) *StateManager {
	log := cfg.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &StateManager{
		Docs: make(map[string]*DocState),
		cfg:  cfg,
		log:  log,
	}
}

func FileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + abs
}

// OpenDoc reads a file and creates its session. No sentence is sent to
// the prover until the document is synchronized.
func (sm *StateManager) OpenDoc(path string) (*DocState, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	uri := FileURI(path)
	if _, exists := sm.Docs[uri]; exists {
		return nil, fmt.Errorf("document already open: %s", path)
	}

	var factory ClientFactory
	if sm.cfg.NewClient != nil {
		factory = func() Commander { return sm.cfg.NewClient(path) }
	}
	doc := &DocState{
		URI:     uri,
		Path:    path,
		Version: 1,
		Content: string(content),
		Limit:   -1,
		Session: NewSession(SessionConfig{
			Factory:        factory,
			Logger:         sm.log.With("uri", uri),
			StartTimeout:   sm.cfg.StartTimeout,
			CommandTimeout: sm.cfg.CommandTimeout,
		}),
	}
	sm.Docs[uri] = doc
	sm.log.Info("document opened", "uri", uri, "session", doc.Session.ID())
	return doc, nil
}

// CloseDoc stops the document's prover and forgets it.
func (sm *StateManager) CloseDoc(path string) error {
	sm.Mu.Lock()
	uri := FileURI(path)
	doc, ok := sm.Docs[uri]
	if !ok {
		sm.Mu.Unlock()
		return fmt.Errorf("document not open: %s", path)
	}
	delete(sm.Docs, uri)
	sm.Mu.Unlock()

	sm.log.Info("document closed", "uri", uri)
	return doc.Session.Close()
}

// SyncDoc re-reads a file from disk. The version is bumped only when the
// content changed. It returns a snapshot of the document.
func (sm *StateManager) SyncDoc(path string) (DocState, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return DocState{}, fmt.Errorf("read file: %w", err)
	}

	sm.Mu.Lock()
	defer sm.Mu.Unlock()

	doc, err := sm.GetDoc(path)
	if err != nil {
		return DocState{}, err
	}
	if string(content) != doc.Content {
		doc.Version++
		doc.Content = string(content)
	}
	return *doc, nil
}

// Snapshot returns a copy of the document state.
func (sm *StateManager) Snapshot(path string) (DocState, error) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()
	doc, err := sm.GetDoc(path)
	if err != nil {
		return DocState{}, err
	}
	return *doc, nil
}

// SetLimit records how far the document should be kept verified.
func (sm *StateManager) SetLimit(path string, limit int) {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()
	if doc, err := sm.GetDoc(path); err == nil {
		doc.Limit = limit
	}
}

// GetDoc returns the state for a file (caller must hold lock or accept races).
func (sm *StateManager) GetDoc(path string) (*DocState, error) {
	uri := FileURI(path)
	doc, ok := sm.Docs[uri]
	if !ok {
		return nil, fmt.Errorf("document not open: %s", path)
	}
	return doc, nil
}

// Paths returns the paths of all open documents.
func (sm *StateManager) Paths() []string {
	sm.Mu.Lock()
	defer sm.Mu.Unlock()
	paths := make([]string, 0, len(sm.Docs))
	for _, doc := range sm.Docs {
		paths = append(paths, doc.Path)
	}
	return paths
}

// Shutdown stops every session.
func (sm *StateManager) Shutdown() error {
	sm.Mu.Lock()
	docs := make([]*DocState, 0, len(sm.Docs))
	for uri, doc := range sm.Docs {
		docs = append(docs, doc)
		delete(sm.Docs, uri)
	}
	sm.Mu.Unlock()

	var g errgroup.Group
	for _, doc := range docs {
		g.Go(func() error {
			if err := doc.Session.Close(); err != nil {
				return fmt.Errorf("close %s: %w", doc.URI, err)
			}
			return nil
		})
	}
	return g.Wait()
}
