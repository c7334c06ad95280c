// Package download implements the Download Engine (spec.md §4.5,
// component E): a consumer loop over the download queue that fetches
// pdf/jp2/ocr/metadata artifacts for each Page with a bounded per-page
// worker pool, flushing progress in batched transactions.
package download

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/config"
	"github.com/jakalope/newsagger-go/internal/progress"
	"github.com/jakalope/newsagger-go/internal/store"
)

const (
	flushEvery   = 10
	pollInterval = 30 * time.Second
	fileTimeout  = 120 * time.Second
)

// engineStore is the subset of *store.Store the Download Engine uses.
type engineStore interface {
	GetDownloadQueue(status *store.QueueStatus, limit int) ([]store.QueueItem, error)
	UpdateQueueItem(u store.QueueItemUpdate) error
	BatchUpdateQueue(updates []store.QueueItemUpdate, log *logrus.Entry) error
	GetPage(itemID string) (*store.Page, error)
	MarkPageDownloaded(itemID string) error
	RecalculatePeriodicalCounters(lccn string) error
	CreateDownloadSession(scope string) (*store.DownloadSession, error)
	RecordDownloadOutcome(id uint, filesDownloaded, bytesDownloaded, filesFailed, filesSkipped int64) error
	EndDownloadSession(id uint) error
	GetUndownloadedPagesByFacet(facetID string) ([]store.Page, error)
	GetUndownloadedPagesByLCCN(lccn string) ([]store.Page, error)
}

// Engine is the Download Engine.
type Engine struct {
	st     engineStore
	worker *pageWorker
	cfg    config.Config
	log    *logrus.Entry

	// Bus receives download progress events; nil is a valid no-op
	// observer, per spec.md §9.
	Bus *progress.Bus

	sleep func(context.Context, time.Duration) error
}

// New constructs a Download Engine. httpClient is used only for pdf/jp2
// fetches, with whatever timeout the caller configured on it; a nil
// httpClient is replaced by one with the file-body timeout (fileTimeout).
func New(st *store.Store, httpClient *http.Client, cfg config.Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fileTimeout}
	}
	log := logger.WithField("component", "download.Engine")
	return &Engine{
		st:     st,
		worker: newPageWorker(httpClient, cfg.PerPageFileConcurrency, cfg.FileTypes, cfg.DownloadRoot, log),
		cfg:    cfg,
		log:    log,
		sleep:  sleepCtx,
	}
}

// itemOutcome is the per-QueueItem result the engine accumulates before a
// batched flush.
type itemOutcome struct {
	id       string
	status   store.QueueStatus
	progress float64
	errMsg   string
}

// Run drives the consumer loop until ctx is canceled. When continuous is
// true, an empty queue triggers a 30s poll rather than returning, and the
// engine exits after maxIdleMinutes of consecutive empty polls.
func (e *Engine) Run(ctx context.Context, continuous bool) error {
	sess, err := e.st.CreateDownloadSession("queue")
	if err != nil {
		return fmt.Errorf("download: opening session: %w", err)
	}
	defer func() {
		if eerr := e.st.EndDownloadSession(sess.ID); eerr != nil {
			e.log.WithError(eerr).Warn("failed to close download session")
		}
	}()

	idleSince := time.Time{}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		queued := store.QueueQueued
		items, err := e.st.GetDownloadQueue(&queued, e.cfg.DownloadBatchSize)
		if err != nil {
			return err
		}

		if len(items) == 0 {
			if !continuous {
				return nil
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if time.Since(idleSince) >= time.Duration(e.cfg.MaxIdleMinutes)*time.Minute {
				e.log.Info("queue idle past max_idle_minutes, exiting")
				return nil
			}
			if err := e.sleep(ctx, pollInterval); err != nil {
				return nil
			}
			continue
		}
		idleSince = time.Time{}

		if err := e.runBatch(ctx, sess.ID, items); err != nil {
			return err
		}
	}
}

func (e *Engine) runBatch(ctx context.Context, sessionID uint, items []store.QueueItem) error {
	active := store.QueueActive
	outcomes := make([]itemOutcome, 0, flushEvery)
	var filesDownloaded, bytesDownloaded, filesFailed, filesSkipped int64

	flush := func() error {
		if len(outcomes) == 0 {
			return nil
		}
		updates := make([]store.QueueItemUpdate, len(outcomes))
		for i, o := range outcomes {
			status := o.status
			progress := o.progress
			updates[i] = store.QueueItemUpdate{ID: o.id, Status: &status, ProgressPercent: &progress}
			if o.errMsg != "" {
				msg := o.errMsg
				updates[i].ErrorMessage = &msg
			}
		}
		if err := e.st.BatchUpdateQueue(updates, e.log); err != nil {
			return err
		}
		if err := e.st.RecordDownloadOutcome(sessionID, filesDownloaded, bytesDownloaded, filesFailed, filesSkipped); err != nil {
			return err
		}
		outcomes = outcomes[:0]
		filesDownloaded, bytesDownloaded, filesFailed, filesSkipped = 0, 0, 0, 0
		return nil
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return flush()
		}

		if err := e.st.UpdateQueueItem(store.QueueItemUpdate{ID: item.ID, Status: &active}); err != nil {
			return err
		}

		result := e.processItem(ctx, item)
		percent := 0.0
		if result.status == store.QueueCompleted {
			percent = 100.0
		}
		outcomes = append(outcomes, itemOutcome{id: item.ID, status: result.status, progress: percent, errMsg: result.errMsg})

		switch {
		case result.status == store.QueueFailed:
			filesFailed++
		case result.downloaded:
			filesDownloaded++
			bytesDownloaded += result.bytes
		default:
			filesSkipped++
		}

		e.Bus.Publish(progress.Event{
			Kind:        progress.KindPageDownloaded,
			ReferenceID: item.ReferenceID,
			Success:     result.status == store.QueueCompleted,
			Bytes:       result.bytes,
			Message:     result.errMsg,
		})

		if len(outcomes) >= flushEvery {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// pageOutcome is processItem's richer return: itemOutcome carries only
// what BatchUpdateQueue needs, while the DownloadSession and progress bus
// also want bytes transferred and whether the fetch was fresh work or a
// skip-if-present no-op.
type pageOutcome struct {
	status     store.QueueStatus
	errMsg     string
	downloaded bool
	bytes      int64
}

// processItem dispatches on QueueItem.QueueType, per spec.md §4.5's three
// item kinds.
func (e *Engine) processItem(ctx context.Context, item store.QueueItem) pageOutcome {
	switch item.QueueType {
	case store.QueuePage:
		return e.processPageItem(ctx, item.ReferenceID)
	case store.QueueFacet:
		pages, err := e.st.GetUndownloadedPagesByFacet(item.ReferenceID)
		if err != nil {
			return pageOutcome{status: store.QueueFailed, errMsg: err.Error()}
		}
		return e.processGroupItem(ctx, pages)
	case store.QueuePeriodical:
		pages, err := e.st.GetUndownloadedPagesByLCCN(item.ReferenceID)
		if err != nil {
			return pageOutcome{status: store.QueueFailed, errMsg: err.Error()}
		}
		return e.processGroupItem(ctx, pages)
	default:
		return pageOutcome{status: store.QueueFailed, errMsg: fmt.Sprintf("unknown queue_type %q", item.QueueType)}
	}
}

func (e *Engine) processPageItem(ctx context.Context, itemID string) pageOutcome {
	page, err := e.st.GetPage(itemID)
	if err != nil {
		return pageOutcome{status: store.QueueFailed, errMsg: err.Error()}
	}
	return e.processPage(ctx, *page)
}

// processGroupItem implements spec.md §4.5's "Processing a `facet` item"
// and "Processing a `periodical` item" operations: iterate the given
// undownloaded pages, processing each as a plain page item, and report
// overall success if at least one page succeeded.
func (e *Engine) processGroupItem(ctx context.Context, pages []store.Page) pageOutcome {
	if len(pages) == 0 {
		return pageOutcome{status: store.QueueCompleted}
	}

	var succeeded int
	var totalBytes int64
	var lastErr string
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			lastErr = err.Error()
			break
		}
		result := e.processPage(ctx, p)
		if result.status == store.QueueCompleted {
			succeeded++
			totalBytes += result.bytes
		} else {
			lastErr = result.errMsg
		}
	}

	if succeeded > 0 {
		return pageOutcome{status: store.QueueCompleted, downloaded: true, bytes: totalBytes}
	}
	return pageOutcome{status: store.QueueFailed, errMsg: lastErr}
}

// processPage fetches the configured artifacts for one Page. It is the
// unit both processPageItem (a `page` QueueItem) and processGroupItem (a
// `facet`/`periodical` QueueItem, per spec.md §4.5) build on.
func (e *Engine) processPage(ctx context.Context, page store.Page) pageOutcome {
	if page.Downloaded {
		return pageOutcome{status: store.QueueCompleted}
	}

	downloaded, bytesWritten, err := e.worker.ProcessPage(ctx, page)
	if err != nil {
		return pageOutcome{status: store.QueueFailed, errMsg: err.Error()}
	}

	if downloaded {
		if err := e.st.MarkPageDownloaded(page.ItemID); err != nil {
			return pageOutcome{status: store.QueueFailed, errMsg: err.Error()}
		}
		if err := e.st.RecalculatePeriodicalCounters(page.LCCN); err != nil {
			e.log.WithError(err).WithField("lccn", page.LCCN).Warn("failed to recalculate periodical counters")
		}
	}
	return pageOutcome{status: store.QueueCompleted, downloaded: downloaded, bytes: bytesWritten}
}
