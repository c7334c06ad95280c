package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakalope/newsagger-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResumeFailed(t *testing.T) {
	st := newTestStore(t)
	page := store.Page{ItemID: "/lccn/sn1/1900-01-01/ed-1/seq-1/"}
	_, _, err := st.StorePagesAndEnqueue([]store.Page{page}, 5)
	require.NoError(t, err)

	items, err := st.GetDownloadQueue(nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)

	failed := store.QueueFailed
	msg := "boom"
	require.NoError(t, st.UpdateQueueItem(store.QueueItemUpdate{ID: items[0].ID, Status: &failed, ErrorMessage: &msg}))

	ops := New(st, nil)
	n, err := ops.ResumeFailed()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	queued := store.QueueQueued
	requeued, err := st.GetDownloadQueue(&queued, 0)
	require.NoError(t, err)
	require.Len(t, requeued, 1)
	assert.Empty(t, requeued[0].ErrorMessage)
}

func TestResetStuckActive(t *testing.T) {
	st := newTestStore(t)
	page := store.Page{ItemID: "/lccn/sn1/1900-01-01/ed-1/seq-1/"}
	_, _, err := st.StorePagesAndEnqueue([]store.Page{page}, 5)
	require.NoError(t, err)

	items, err := st.GetDownloadQueue(nil, 0)
	require.NoError(t, err)
	active := store.QueueActive
	require.NoError(t, st.UpdateQueueItem(store.QueueItemUpdate{ID: items[0].ID, Status: &active}))

	ops := New(st, nil)
	n, err := ops.ResetStuckActive()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestEnqueuePeriodical_CreatesPeriodicalQueueItem(t *testing.T) {
	st := newTestStore(t)
	ops := New(st, nil)

	id, err := ops.EnqueuePeriodical("sn84026749")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := st.GetDownloadQueue(nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, store.QueuePeriodical, items[0].QueueType)
	assert.Equal(t, "sn84026749", items[0].ReferenceID)
	assert.Equal(t, store.QueueQueued, items[0].Status)
}

func TestCleanupIncomplete_RemovesZeroByteAndTinyPDFs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "empty.pdf"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "tiny.pdf"), []byte("short"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "good.pdf"), make([]byte, 2048), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), nil, 0o644))

	st := newTestStore(t)
	ops := New(st, nil)
	removed, err := ops.CleanupIncomplete(root)
	require.NoError(t, err)
	assert.Equal(t, 3, removed) // empty.pdf, tiny.pdf, empty note.txt

	assert.FileExists(t, filepath.Join(root, "good.pdf"))
	assert.NoFileExists(t, filepath.Join(root, "empty.pdf"))
	assert.NoFileExists(t, filepath.Join(root, "tiny.pdf"))
}
