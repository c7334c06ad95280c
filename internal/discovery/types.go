// Package discovery implements the Discovery Engine (spec.md §4.4,
// component D): batch-mode traversal of batch→issue→page with resumable
// session state, and facet-mode search-driven discovery with its own
// state machine. Both modes persist through internal/store atomically.
package discovery

import (
	"context"
	"iter"

	"github.com/jakalope/newsagger-go/internal/locapi"
	"github.com/jakalope/newsagger-go/internal/ratelimit"
	"github.com/jakalope/newsagger-go/internal/store"
)

// gateChecker is the subset of *ratelimit.Gate the Discovery Engine polls
// while a session/facet is captcha_blocked, per spec.md §4.4.1 step 2d.
type gateChecker interface {
	Status() ratelimit.Status
}

// ParsedIssueURL is the (lccn, date, edition) tuple parsed from an issue
// URL path, used by the batch-mode fast path (spec.md §4.4.1).
type ParsedIssueURL struct {
	LCCN    string
	Date    string
	Edition int
}

// pageURLs derives the pdf/jp2/ocr URLs for a page base URL by
// suffixing, per spec.md §4.4.1: "no per-page HTTP: URLs are derivable by
// suffixing .pdf, .jp2, /ocr.txt to the page base URL."
func pageURLs(base string) (pdf, jp2, ocr string) {
	trimmed := base
	for len(trimmed) > 0 && trimmed[len(trimmed)-1] == '/' {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return trimmed + ".pdf", trimmed + ".jp2", trimmed + "/ocr.txt"
}

// locapiClient is the subset of *locapi.Client the Discovery Engine uses,
// so tests can supply a fake.
type locapiClient interface {
	IterAllBatches(ctx context.Context) iter.Seq2[locapi.BatchSummary, error]
	GetBatch(ctx context.Context, name string) (*locapi.BatchDetail, error)
	GetIssue(ctx context.Context, url string) (*locapi.IssueDetail, error)
	SearchPages(ctx context.Context, p locapi.SearchParams) (*locapi.SearchPagesResult, error)
	EstimateSize(ctx context.Context, y1, y2 int) (*locapi.SizeEstimate, error)
	GetPeriodical(ctx context.Context, lccn string) (*locapi.PeriodicalDetail, error)
}

// stateStore is the subset of *store.Store the Discovery Engine uses.
type stateStore interface {
	CreateDiscoverySession(name string, totalBatches int, autoEnqueue bool) (*store.DiscoverySession, error)
	GetDiscoverySession(name string) (*store.DiscoverySession, error)
	UpdateDiscoverySession(name string, u store.SessionUpdate) error
	CountIssuePages(lccn, date string, edition int) (int64, error)
	StorePagesAndEnqueue(pages []store.Page, priority int) (stored, enqueued int, err error)
	StorePages(pages []store.Page) (int, error)
	CreateSearchFacet(facetType store.FacetType, value, query string, estimate int) (string, error)
	GetFacet(id string) (*store.SearchFacet, error)
	UpdateFacet(id string, u store.FacetUpdate) error
	CreateFacets(facets []store.SearchFacet) error
	ListPeriodicalLCCNsByState(state string) ([]string, error)
	ListFacetsByStatus(status store.FacetStatus) ([]store.SearchFacet, error)
	EnqueueItem(queueType store.QueueType, referenceID string, priority int) (string, error)
}
