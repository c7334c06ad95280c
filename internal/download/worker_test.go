package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakalope/newsagger-go/internal/store"
)

func TestFetchBinary_StreamsAndSkipsIfPresent(t *testing.T) {
	body := []byte("pdf-bytes-content")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	root := t.TempDir()
	worker := newPageWorker(srv.Client(), 2, []string{"pdf"}, root, nil)

	dest := filepath.Join(root, "out.pdf")
	skipped, n, err := worker.fetchBinary(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.EqualValues(t, len(body), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, data)

	skipped2, n2, err := worker.fetchBinary(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.True(t, skipped2)
	assert.EqualValues(t, len(body), n2)
}

func TestFetchBinary_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	root := t.TempDir()
	worker := newPageWorker(srv.Client(), 2, []string{"pdf"}, root, nil)
	worker.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	dest := filepath.Join(root, "out.pdf")
	_, _, err := worker.fetchBinary(context.Background(), srv.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestProcessPage_WritesOCRAndMetadataWithoutFetch(t *testing.T) {
	root := t.TempDir()
	worker := newPageWorker(http.DefaultClient, 2, []string{"ocr", "metadata"}, root, nil)

	page := store.Page{
		ItemID:  "/lccn/sn1/1900-01-01/ed-1/seq-1/",
		LCCN:    "sn1",
		Date:    "1900-01-01",
		Edition: 1,
		OCRText: "hello world",
	}

	downloaded, _, err := worker.ProcessPage(context.Background(), page)
	require.NoError(t, err)
	assert.True(t, downloaded)

	dir, err := issueDir(root, page)
	require.NoError(t, err)

	ocrData, err := os.ReadFile(ocrTextPath(dir, page))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(ocrData))

	assert.True(t, fileIsPresent(metadataPath(dir, page)))
}
