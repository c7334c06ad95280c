package discovery

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/locapi"
	"github.com/jakalope/newsagger-go/internal/progress"
	"github.com/jakalope/newsagger-go/internal/store"
)

const defaultCooldownPollInterval = 5 * time.Minute

// batchPriority is the priority assigned to pages discovered in batch
// mode, per spec.md §4.4.1 step 2c.
const batchPriority = 2

// BatchEngine implements the batch-mode Discovery Engine of spec.md
// §4.4.1: the preferred discovery path, because it reads server-prepared
// bundles and rarely triggers CAPTCHA. It is the sole batch-discovery
// implementation in this repository — spec.md §9 explicitly retires the
// source's legacy duplicate.
type BatchEngine struct {
	client locapiClient
	st     stateStore
	gate   gateChecker

	pollInterval time.Duration
	sleep        func(context.Context, time.Duration) error

	issueCache *lru.Cache[string, bool]

	// Bus receives discovery progress events, per spec.md §9's
	// "coroutine-style progress callback" guidance. A nil Bus (the
	// default) is a valid no-op observer.
	Bus *progress.Bus

	log *logrus.Entry
}

// NewBatchEngine constructs a BatchEngine.
func NewBatchEngine(client *locapi.Client, st *store.Store, gate gateChecker, logger *logrus.Logger) *BatchEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cache, _ := lru.New[string, bool](10000)
	return &BatchEngine{
		client:       client,
		st:           st,
		gate:         gate,
		pollInterval: defaultCooldownPollInterval,
		sleep:        sleepCtx,
		issueCache:   cache,
		log:          logger.WithField("component", "discovery.BatchEngine"),
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

// Run drives batch-mode discovery for sessionName to completion or until
// ctx is canceled, per spec.md §4.4.1's numbered algorithm.
func (e *BatchEngine) Run(ctx context.Context, sessionName string, autoEnqueue bool) error {
	var batches []locapi.BatchSummary
	for b, err := range e.client.IterAllBatches(ctx) {
		if err != nil {
			return fmt.Errorf("discovery: listing batches: %w", err)
		}
		batches = append(batches, b)
	}

	sess, err := e.st.CreateDiscoverySession(sessionName, len(batches), autoEnqueue)
	if err != nil {
		return fmt.Errorf("discovery: creating session %q: %w", sessionName, err)
	}

	batchIdx := sess.CurrentBatchIndex
	issueIdxStart := sess.CurrentIssueIndex

	for ; batchIdx < len(batches); batchIdx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		b := batches[batchIdx]
		resuming := batchIdx == sess.CurrentBatchIndex && issueIdxStart > 0

		startIssueIdx := 0
		idxCopy := batchIdx
		if resuming {
			startIssueIdx = issueIdxStart
			if err := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{
				CurrentBatchIndex: &idxCopy,
				CurrentBatchName:  &b.Name,
			}); err != nil {
				return fmt.Errorf("discovery: recording resumed batch %q: %w", b.Name, err)
			}
		} else {
			zero := 0
			if err := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{
				CurrentBatchIndex:  &idxCopy,
				CurrentBatchName:   &b.Name,
				TotalIssuesInBatch: &zero,
				CurrentIssueIndex:  &zero,
			}); err != nil {
				return fmt.Errorf("discovery: resetting session for batch %q: %w", b.Name, err)
			}
		}

		detail, err := e.client.GetBatch(ctx, b.Name)
		if err != nil {
			if handled, werr := e.waitOutCaptcha(ctx, sessionName, err); werr != nil {
				return werr
			} else if handled {
				batchIdx-- // retry the same batch
				continue
			}
			e.log.WithError(err).WithField("batch", b.Name).Warn("failed to fetch batch detail, skipping")
			continue
		}

		totalIssues := len(detail.Issues)
		if err := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{TotalIssuesInBatch: &totalIssues}); err != nil {
			return err
		}

		for i := startIssueIdx; i < len(detail.Issues); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			if err := e.processIssue(ctx, sessionName, b.Name, detail.Issues[i], i); err != nil {
				return err
			}
		}
	}

	completed := store.SessionCompleted
	if err := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{Status: &completed}); err != nil {
		return err
	}
	e.Bus.Publish(progress.Event{Kind: progress.KindSessionUpdate, SessionName: sessionName, Message: "completed"})
	return nil
}

// processIssue handles one issue entry, including the fast-path skip and
// CAPTCHA retry loop of spec.md §4.4.1 steps 2c/2d.
func (e *BatchEngine) processIssue(ctx context.Context, sessionName, batchName string, issue locapi.BatchIssue, idx int) error {
	parsed, perr := ParseIssueURL(issue.URL)
	if perr != nil {
		e.log.WithError(perr).WithField("url", issue.URL).Warn("could not parse issue url, skipping")
		return e.advanceIssue(sessionName, idx)
	}

	if already, err := e.issueAlreadyIngested(parsed); err != nil {
		return err
	} else if already {
		return e.advanceIssue(sessionName, idx)
	}

	for {
		detail, err := e.client.GetIssue(ctx, issue.URL)
		if err == nil {
			pages := buildPages(parsed, detail, batchName)
			stored, enqueued, serr := e.st.StorePagesAndEnqueue(pages, batchPriority)
			if serr != nil {
				return fmt.Errorf("discovery: storing pages for issue %q: %w", issue.URL, serr)
			}
			if stored > 0 || enqueued > 0 {
				if uerr := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{
					DeltaDiscovered: stored,
					DeltaEnqueued:   enqueued,
				}); uerr != nil {
					return uerr
				}
			}
			e.issueCache.Add(issueCacheKey(parsed), true)
			e.Bus.Publish(progress.Event{
				Kind:        progress.KindQueueItemDone,
				ReferenceID: issue.URL,
				Success:     true,
			})
			return e.advanceIssue(sessionName, idx)
		}

		handled, werr := e.waitOutCaptcha(ctx, sessionName, err)
		if werr != nil {
			return werr
		}
		if handled {
			continue // retry the same issue, per spec.md §4.4.1 step 2d
		}

		e.log.WithError(err).WithField("url", issue.URL).Warn("failed to fetch issue, skipping")
		return e.advanceIssue(sessionName, idx)
	}
}

func (e *BatchEngine) advanceIssue(sessionName string, idx int) error {
	next := idx + 1
	return e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{CurrentIssueIndex: &next})
}

// waitOutCaptcha inspects err; if it is a CAPTCHA error it marks the
// session captcha_blocked, polls the Rate Gate every pollInterval until it
// reopens, marks the session active again, and returns handled=true so
// the caller retries. For any other error it returns handled=false so the
// caller can apply its own non-captcha recovery.
func (e *BatchEngine) waitOutCaptcha(ctx context.Context, sessionName string, err error) (handled bool, retErr error) {
	if !locapi.IsKind(err, locapi.KindCaptcha) {
		return false, nil
	}

	blocked := store.SessionCaptchaBlocked
	if uerr := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{Status: &blocked}); uerr != nil {
		return false, uerr
	}
	e.Bus.Publish(progress.Event{Kind: progress.KindCaptchaBlocked, SessionName: sessionName, Message: err.Error()})

	for e.gate.Status().Blocked {
		if serr := e.sleep(ctx, e.pollInterval); serr != nil {
			return false, serr
		}
	}

	active := store.SessionActive
	if uerr := e.st.UpdateDiscoverySession(sessionName, store.SessionUpdate{Status: &active}); uerr != nil {
		return false, uerr
	}
	return true, nil
}

// issueAlreadyIngested treats an issue as fully ingested as soon as any
// page of it is stored; an issue whose ingest was interrupted part-way is
// therefore skipped on later runs and its missing pages are not fetched.
func (e *BatchEngine) issueAlreadyIngested(p ParsedIssueURL) (bool, error) {
	key := issueCacheKey(p)
	if v, ok := e.issueCache.Get(key); ok {
		return v, nil
	}
	count, err := e.st.CountIssuePages(p.LCCN, p.Date, p.Edition)
	if err != nil {
		return false, err
	}
	ingested := count > 0
	e.issueCache.Add(key, ingested)
	return ingested, nil
}

func issueCacheKey(p ParsedIssueURL) string {
	return p.LCCN + "|" + p.Date + "|" + fmt.Sprint(p.Edition)
}

// buildPages constructs Page records from one issue's metadata, per
// spec.md §4.4.1: "no per-page HTTP: URLs are derivable by suffixing."
func buildPages(parsed ParsedIssueURL, detail *locapi.IssueDetail, batchName string) []store.Page {
	title := detail.Title.Name
	pages := make([]store.Page, 0, len(detail.Pages))
	for _, pg := range detail.Pages {
		pdf, jp2, ocr := pageURLs(pg.URL)
		pages = append(pages, store.Page{
			ItemID:   ItemID(parsed.LCCN, parsed.Date, parsed.Edition, pg.Sequence),
			LCCN:     parsed.LCCN,
			Title:    title,
			Date:     parsed.Date,
			Edition:  parsed.Edition,
			Sequence: pg.Sequence,
			PageURL:  pg.URL,
			PDFUrl:   pdf,
			JP2Url:   jp2,
			OCRUrl:   ocr,
		})
	}
	return pages
}
