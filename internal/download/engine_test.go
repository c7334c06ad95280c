package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakalope/newsagger-go/internal/config"
	"github.com/jakalope/newsagger-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir+"/test.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEngine_ProcessesQueuedPagesAndMarksComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdfdata"))
	}))
	defer srv.Close()

	st := newTestStore(t)
	page := store.Page{
		ItemID:  "/lccn/sn1/1900-01-01/ed-1/seq-1/",
		LCCN:    "sn1",
		Date:    "1900-01-01",
		Edition: 1,
		PDFUrl:  srv.URL,
	}
	_, _, err := st.StorePagesAndEnqueue([]store.Page{page}, 5)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DownloadRoot = t.TempDir()
	cfg.FileTypes = []string{"pdf"}
	cfg.DownloadBatchSize = 10

	eng := New(st, srv.Client(), cfg, logrus.StandardLogger())

	err = eng.Run(context.Background(), false)
	require.NoError(t, err)

	got, err := st.GetPage(page.ItemID)
	require.NoError(t, err)
	assert.True(t, got.Downloaded)

	completedStatus := store.QueueCompleted
	items, err := st.GetDownloadQueue(&completedStatus, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestEngine_ProcessesFacetItemAcrossItsPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdfdata"))
	}))
	defer srv.Close()

	st := newTestStore(t)
	pages := []store.Page{
		{ItemID: "/lccn/sn1/1900-01-01/ed-1/seq-1/", LCCN: "sn1", Date: "1900-01-01", Edition: 1, PDFUrl: srv.URL, FacetID: "facet-1"},
		{ItemID: "/lccn/sn1/1900-01-02/ed-1/seq-1/", LCCN: "sn1", Date: "1900-01-02", Edition: 1, PDFUrl: srv.URL, FacetID: "facet-1"},
	}
	_, err := st.StorePages(pages)
	require.NoError(t, err)
	_, err = st.EnqueueItem(store.QueueFacet, "facet-1", 3)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DownloadRoot = t.TempDir()
	cfg.FileTypes = []string{"pdf"}
	cfg.DownloadBatchSize = 10

	eng := New(st, srv.Client(), cfg, logrus.StandardLogger())
	require.NoError(t, eng.Run(context.Background(), false))

	for _, p := range pages {
		got, err := st.GetPage(p.ItemID)
		require.NoError(t, err)
		assert.True(t, got.Downloaded)
	}

	completedStatus := store.QueueCompleted
	items, err := st.GetDownloadQueue(&completedStatus, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, store.QueueFacet, items[0].QueueType)
}

func TestEngine_PeriodicalItemFailsWhenEveryPageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := newTestStore(t)
	page := store.Page{ItemID: "/lccn/sn2/1900-01-01/ed-1/seq-1/", LCCN: "sn2", PDFUrl: srv.URL}
	_, err := st.StorePages([]store.Page{page})
	require.NoError(t, err)
	_, err = st.EnqueueItem(store.QueuePeriodical, "sn2", 3)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.DownloadRoot = t.TempDir()
	cfg.FileTypes = []string{"pdf"}

	eng := New(st, srv.Client(), cfg, logrus.StandardLogger())
	eng.worker.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	require.NoError(t, eng.Run(context.Background(), false))

	failedStatus := store.QueueFailed
	items, err := st.GetDownloadQueue(&failedStatus, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, store.QueuePeriodical, items[0].QueueType)
	assert.NotEmpty(t, items[0].ErrorMessage)
}

func TestEngine_SkipsAlreadyDownloadedPage(t *testing.T) {
	st := newTestStore(t)
	page := store.Page{ItemID: "/lccn/sn1/1900-01-01/ed-1/seq-1/", LCCN: "sn1"}
	_, _, err := st.StorePagesAndEnqueue([]store.Page{page}, 5)
	require.NoError(t, err)
	require.NoError(t, st.MarkPageDownloaded(page.ItemID))

	cfg := config.Default()
	cfg.DownloadRoot = t.TempDir()
	eng := New(st, http.DefaultClient, cfg, nil)

	require.NoError(t, eng.Run(context.Background(), false))

	completedStatus := store.QueueCompleted
	items, err := st.GetDownloadQueue(&completedStatus, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
