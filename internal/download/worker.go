package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jakalope/newsagger-go/internal/store"
)

// binaryRetryBackoff is the per-fetch retry schedule of spec.md §4.5 step
// 4: "Retry the single fetch up to 3 times with exponential backoff (2s,
// 4s, 8s) on transport errors."
var binaryRetryBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

const streamChunkSize = 64 * 1024

// fileResult describes the outcome of fetching one artifact.
type fileResult struct {
	kind      string
	skipped   bool
	bytes     int64
	err       error
}

// pageWorker fetches the configured artifacts for one Page, concurrently
// for pdf/jp2 within a bounded pool, per spec.md §4.5 steps 3-4.
type pageWorker struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	fileTypes  map[string]bool
	root       string
	sleep      func(context.Context, time.Duration) error
	log        *logrus.Entry
}

func newPageWorker(httpClient *http.Client, perPageConcurrency int, fileTypes []string, root string, log *logrus.Entry) *pageWorker {
	set := make(map[string]bool, len(fileTypes))
	for _, ft := range fileTypes {
		set[ft] = true
	}
	return &pageWorker{
		httpClient: httpClient,
		sem:        semaphore.NewWeighted(int64(perPageConcurrency)),
		fileTypes:  set,
		root:       root,
		sleep:      sleepCtx,
		log:        log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessPage fetches every configured artifact for page and reports
// whether anything was newly downloaded and how many bytes were written.
func (w *pageWorker) ProcessPage(ctx context.Context, p store.Page) (downloaded bool, bytesWritten int64, err error) {
	dir, err := issueDir(w.root, p)
	if err != nil {
		return false, 0, err
	}

	results := make(chan fileResult, 4)
	inflight := 0
	var files []string
	requested := make([]string, 0, 4)

	if w.fileTypes["pdf"] && p.PDFUrl != "" {
		inflight++
		requested = append(requested, "pdf")
		go w.fetchBinaryTask(ctx, "pdf", p.PDFUrl, pdfPath(dir, p), results)
	}
	if w.fileTypes["jp2"] && p.JP2Url != "" {
		inflight++
		requested = append(requested, "jp2")
		go w.fetchBinaryTask(ctx, "jp2", p.JP2Url, jp2Path(dir, p), results)
	}

	for i := 0; i < inflight; i++ {
		r := <-results
		if r.err != nil {
			err = r.err
			continue
		}
		bytesWritten += r.bytes
		if !r.skipped {
			downloaded = true
		}
		if r.kind == "pdf" {
			files = append(files, pdfPath(dir, p))
		} else if r.kind == "jp2" {
			files = append(files, jp2Path(dir, p))
		}
	}
	if err != nil {
		return downloaded, bytesWritten, err
	}

	if w.fileTypes["ocr"] {
		requested = append(requested, "ocr")
		if p.OCRText != "" {
			path := ocrTextPath(dir, p)
			if !fileIsPresent(path) {
				if werr := writeOCRText(path, p.OCRText); werr != nil {
					return downloaded, bytesWritten, fmt.Errorf("download: writing ocr text for %s: %w", p.ItemID, werr)
				}
				downloaded = true
			}
			files = append(files, path)
		}
	}

	if w.fileTypes["metadata"] {
		requested = append(requested, "metadata")
		if werr := writeMetadata(metadataPath(dir, p), p, files, requested, time.Now()); werr != nil {
			return downloaded, bytesWritten, fmt.Errorf("download: writing metadata for %s: %w", p.ItemID, werr)
		}
	}

	return downloaded, bytesWritten, nil
}

func (w *pageWorker) fetchBinaryTask(ctx context.Context, kind, url, dest string, results chan<- fileResult) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		results <- fileResult{kind: kind, err: err}
		return
	}
	defer w.sem.Release(1)

	skipped, n, err := w.fetchBinary(ctx, url, dest)
	results <- fileResult{kind: kind, skipped: skipped, bytes: n, err: err}
}

// fetchBinary streams url to dest in 64 KiB chunks, verifying
// Content-Length when present, and retries transport errors per
// binaryRetryBackoff. Rate limiting is intentionally not applied here:
// binary downloads use a different host pattern with much higher quota
// than the metadata API (spec.md §4.5 step 4).
func (w *pageWorker) fetchBinary(ctx context.Context, url, dest string) (skipped bool, bytesWritten int64, err error) {
	if fileIsPresent(dest) {
		info, _ := os.Stat(dest)
		return true, info.Size(), nil
	}

	var lastErr error
	for attempt := 0; attempt <= len(binaryRetryBackoff); attempt++ {
		n, ferr := w.fetchOnce(ctx, url, dest)
		if ferr == nil {
			return false, n, nil
		}
		lastErr = ferr
		if attempt < len(binaryRetryBackoff) {
			if serr := w.sleep(ctx, binaryRetryBackoff[attempt]); serr != nil {
				return false, 0, serr
			}
		}
	}
	return false, 0, fmt.Errorf("download: fetching %s: %w", url, lastErr)
}

func (w *pageWorker) fetchOnce(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, streamChunkSize)
	n, copyErr := io.CopyBuffer(f, resp.Body, buf)
	closeErr := f.Close()

	if copyErr != nil {
		os.Remove(dest)
		return 0, copyErr
	}
	if closeErr != nil {
		os.Remove(dest)
		return 0, closeErr
	}

	if resp.ContentLength > 0 && n != resp.ContentLength {
		os.Remove(dest)
		return 0, fmt.Errorf("content-length mismatch: got %d want %d", n, resp.ContentLength)
	}

	return n, nil
}
