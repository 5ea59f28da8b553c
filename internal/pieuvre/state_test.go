package pieuvre

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestManager(t *testing.T, f *proverFactory) *StateManager {
	t.Helper()
	sm := NewStateManager(ManagerConfig{
		NewClient: func(path string) Commander { return f.build() },
		Logger:    testLogger(),
	})
	t.Cleanup(func() { _ = sm.Shutdown() })
	return sm
}

func TestOpenDoc(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.v")
	writeFile(t, path, "Check a.")
	f := &proverFactory{}
	sm := newTestManager(t, f)

	doc, err := sm.OpenDoc(path)
	require.NoError(t, err)
	assert.Equal(t, FileURI(path), doc.URI)
	assert.Equal(t, 1, doc.Version)
	assert.Equal(t, -1, doc.Limit)
	assert.Equal(t, "Check a.", doc.Content)
	assert.Equal(t, 0, f.count(), "no prover before the first synchronization")

	_, err = sm.OpenDoc(path)
	assert.ErrorContains(t, err, "already open")

	_, err = sm.OpenDoc(filepath.Join(dir, "missing.v"))
	assert.ErrorContains(t, err, "read file")
}

func TestSyncDocBumpsVersionOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.v")
	writeFile(t, path, "Check a.")
	sm := newTestManager(t, &proverFactory{})
	_, err := sm.OpenDoc(path)
	require.NoError(t, err)

	doc, err := sm.SyncDoc(path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Version)

	writeFile(t, path, "Check a. Check b.")
	doc, err = sm.SyncDoc(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, "Check a. Check b.", doc.Content)

	doc, err = sm.SyncDoc(path)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
}

func TestSetLimitAndSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.v")
	writeFile(t, path, "Check a.")
	sm := newTestManager(t, &proverFactory{})
	_, err := sm.OpenDoc(path)
	require.NoError(t, err)

	sm.SetLimit(path, 4)
	doc, err := sm.Snapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.Limit)

	// Snapshots are copies.
	doc.Limit = 9
	again, err := sm.Snapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 4, again.Limit)
}

func TestCloseDocStopsProver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.v")
	writeFile(t, path, "Check a.")
	f := &proverFactory{}
	sm := newTestManager(t, f)
	doc, err := sm.OpenDoc(path)
	require.NoError(t, err)
	require.NoError(t, doc.Session.Synchronize(t.Context(), doc.Content, doc.Version))

	require.NoError(t, sm.CloseDoc(path))
	assert.True(t, f.last().stopped)
	_, err = sm.Snapshot(path)
	assert.ErrorContains(t, err, "not open")
	assert.ErrorContains(t, sm.CloseDoc(path), "not open")
}

func TestShutdownClosesAllSessions(t *testing.T) {
	dir := t.TempDir()
	f := &proverFactory{}
	sm := newTestManager(t, f)
	var want []string
	for _, name := range []string{"a.v", "b.v", "c.v"} {
		path := filepath.Join(dir, name)
		writeFile(t, path, "Check x.")
		doc, err := sm.OpenDoc(path)
		require.NoError(t, err)
		require.NoError(t, doc.Session.Synchronize(t.Context(), doc.Content, doc.Version))
		want = append(want, path)
	}

	paths := sm.Paths()
	sort.Strings(paths)
	assert.Equal(t, want, paths)

	require.NoError(t, sm.Shutdown())
	assert.Empty(t, sm.Paths())
	require.Equal(t, 3, f.count())
	for _, p := range f.made {
		assert.True(t, p.stopped)
	}
}

func TestFileURI(t *testing.T) {
	abs, err := filepath.Abs("x.v")
	require.NoError(t, err)
	assert.Equal(t, "file://"+abs, FileURI("x.v"))
}
