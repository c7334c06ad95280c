// Package locapi is the thin HTTP Client (spec.md §4.2, component B) in
// front of the Chronicling America archive: it builds URLs, issues
// requests through the Rate Gate, decodes responses into narrow typed
// records, and classifies errors into a small tagged set.
package locapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/ratelimit"
)

const (
	metadataReadTimeout = 60 * time.Second
	fileReadTimeout     = 120 * time.Second
)

// metadataBackoff is the 5s/20s/45s schedule of spec.md §4.2, capped at
// three attempts.
var metadataBackoff = []time.Duration{5 * time.Second, 20 * time.Second, 45 * time.Second}

// http429Backoff is the 1h/2h/4h schedule of spec.md §4.1.
var http429Backoff = []time.Duration{time.Hour, 2 * time.Hour, 4 * time.Hour}

// Client is the HTTP Client component. One Client is constructed per
// process and shares a single ratelimit.Gate with every other component
// that issues metadata requests.
type Client struct {
	baseURL    string
	httpClient *http.Client
	gate       *ratelimit.Gate
	maxRetries int

	metadataBackoff []time.Duration
	http429Backoff  []time.Duration
	sleep           func(context.Context, time.Duration) error

	log *logrus.Entry
}

// Option customizes a Client, primarily for tests.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (e.g. to point at
// an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleep overrides the backoff sleep function, for deterministic tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// New constructs a Client bound to baseURL and gate.
func New(baseURL string, gate *ratelimit.Gate, maxRetries int, logger *logrus.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	c := &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: metadataReadTimeout},
		gate:            gate,
		maxRetries:      maxRetries,
		metadataBackoff: metadataBackoff,
		http429Backoff:  http429Backoff,
		sleep:           sleepCtx,
		log:             logger.WithField("component", "locapi.Client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
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

// get performs one logical GET operation through the Rate Gate, with
// retries on transport and http_other outcomes, and no retry on CAPTCHA.
func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	var target string
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, newErr(op, KindParse, fmt.Errorf("invalid absolute url: %w", err))
		}
		if query != nil {
			u.RawQuery = query.Encode()
		}
		target = u.String()
	} else {
		u, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, newErr(op, KindParse, fmt.Errorf("invalid base url: %w", err))
		}
		u.Path += path
		if query != nil {
			u.RawQuery = query.Encode()
		}
		target = u.String()
	}

	attempts := c.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		ua, err := c.gate.Acquire(ctx)
		if err != nil {
			var cooldown *ratelimit.CooldownError
			if isCooldownError(err, &cooldown) {
				return nil, captchaErr(op, cooldown.BlockedUntil)
			}
			return nil, newErr(op, KindTransport, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, newErr(op, KindParse, err)
		}
		req.Header.Set("User-Agent", ua)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.gate.Report(ratelimit.OutcomeTransportError)
			lastErr = err
			if attempt < attempts-1 {
				if sleepErr := c.sleep(ctx, c.metadataBackoff[min(attempt, len(c.metadataBackoff)-1)]); sleepErr != nil {
					return nil, newErr(op, KindTransport, sleepErr)
				}
				continue
			}
			return nil, newErr(op, KindTransport, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		resp.Body.Close()
		if readErr != nil {
			c.gate.Report(ratelimit.OutcomeTransportError)
			lastErr = readErr
			if attempt < attempts-1 {
				continue
			}
			return nil, newErr(op, KindTransport, readErr)
		}

		headers := map[string]string{}
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}

		if ratelimit.DetectCaptcha(resp.StatusCode, headers, body) {
			c.gate.Report(ratelimit.OutcomeCaptcha)
			return nil, captchaErr(op, c.gate.Status().BlockedUntil)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			c.gate.Report(ratelimit.OutcomeHTTPOther)
			return nil, newErr(op, KindNotFound, fmt.Errorf("%s: 404 not found", target))

		case resp.StatusCode == http.StatusTooManyRequests:
			c.gate.Report(ratelimit.OutcomeHTTP429)
			lastErr = fmt.Errorf("%s: 429 too many requests", target)
			if attempt < attempts-1 {
				if sleepErr := c.sleep(ctx, c.http429Backoff[min(attempt, len(c.http429Backoff)-1)]); sleepErr != nil {
					return nil, newErr(op, KindRateLimit, sleepErr)
				}
				continue
			}
			return nil, newErr(op, KindRateLimit, lastErr)

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.gate.Report(ratelimit.OutcomeOK)
			return body, nil

		default:
			c.gate.Report(ratelimit.OutcomeHTTPOther)
			lastErr = fmt.Errorf("%s: unexpected status %d", target, resp.StatusCode)
			if attempt < attempts-1 {
				if sleepErr := c.sleep(ctx, c.metadataBackoff[min(attempt, len(c.metadataBackoff)-1)]); sleepErr != nil {
					return nil, newErr(op, KindTransport, sleepErr)
				}
				continue
			}
			return nil, newErr(op, KindTransport, lastErr)
		}
	}
	return nil, newErr(op, KindTransport, lastErr)
}

func isCooldownError(err error, target **ratelimit.CooldownError) bool {
	if ce, ok := err.(*ratelimit.CooldownError); ok {
		*target = ce
		return true
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ListPeriodicals fetches one page of newspapers.json.
func (c *Client) ListPeriodicals(ctx context.Context, page, rows int) (*PeriodicalsPage, error) {
	if rows > 1000 {
		rows = 1000
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "rows": {strconv.Itoa(rows)}}
	body, err := c.get(ctx, "list_periodicals", "newspapers.json", q)
	if err != nil {
		return nil, err
	}
	var out PeriodicalsPage
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("list_periodicals", KindParse, jsonErr)
	}
	return &out, nil
}

// IterAllPeriodicals lazily walks every page of newspapers.json.
func (c *Client) IterAllPeriodicals(ctx context.Context) iter.Seq2[PeriodicalSummary, error] {
	return func(yield func(PeriodicalSummary, error) bool) {
		page := 1
		for {
			resp, err := c.ListPeriodicals(ctx, page, 1000)
			if err != nil {
				yield(PeriodicalSummary{}, err)
				return
			}
			for _, p := range resp.Newspapers {
				if !yield(p, nil) {
					return
				}
			}
			if page >= resp.TotalPages || resp.TotalPages == 0 {
				return
			}
			page++
		}
	}
}

// GetPeriodical fetches lccn/<lccn>.json.
func (c *Client) GetPeriodical(ctx context.Context, lccn string) (*PeriodicalDetail, error) {
	body, err := c.get(ctx, "get_periodical", fmt.Sprintf("lccn/%s.json", lccn), nil)
	if err != nil {
		return nil, err
	}
	var out PeriodicalDetail
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("get_periodical", KindParse, jsonErr)
	}
	return &out, nil
}

// SearchPages issues a search/pages/results query, per spec.md §4.2's
// date-range handling rules (year-only bounds pass dateFilterType=
// yearRange, specific dates pass MM/DD/YYYY with dateFilterType=range).
func (c *Client) SearchPages(ctx context.Context, p SearchParams) (*SearchPagesResult, error) {
	q := url.Values{"format": {"json"}}
	if p.Date1 != "" {
		q.Set("date1", p.Date1)
	}
	if p.Date2 != "" {
		q.Set("date2", p.Date2)
	}
	if p.DateFilterType != "" {
		q.Set("dateFilterType", p.DateFilterType)
	}
	if p.State != "" {
		q.Set("state", p.State)
	}
	if p.AndText != "" {
		q.Set("andtext", p.AndText)
	}
	rows := p.Rows
	if rows <= 0 {
		rows = 50
	}
	q.Set("rows", strconv.Itoa(rows))
	q.Set("page", strconv.Itoa(maxInt(p.Page, 1)))

	body, err := c.get(ctx, "search_pages", "search/pages/results/", q)
	if err != nil {
		return nil, err
	}
	var out SearchPagesResult
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("search_pages", KindParse, jsonErr)
	}
	return &out, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ListBatches fetches one page of batches.json.
func (c *Client) ListBatches(ctx context.Context, page, rows int) (*BatchesPage, error) {
	if rows > 1000 {
		rows = 1000
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "rows": {strconv.Itoa(rows)}}
	body, err := c.get(ctx, "list_batches", "batches.json", q)
	if err != nil {
		return nil, err
	}
	var out BatchesPage
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("list_batches", KindParse, jsonErr)
	}
	return &out, nil
}

// IterAllBatches lazily walks every page of batches.json.
func (c *Client) IterAllBatches(ctx context.Context) iter.Seq2[BatchSummary, error] {
	return func(yield func(BatchSummary, error) bool) {
		page := 1
		for {
			resp, err := c.ListBatches(ctx, page, 1000)
			if err != nil {
				yield(BatchSummary{}, err)
				return
			}
			for _, b := range resp.Batches {
				if !yield(b, nil) {
					return
				}
			}
			if page >= resp.TotalPages || resp.TotalPages == 0 {
				return
			}
			page++
		}
	}
}

// GetBatch fetches batches/<name>.json.
func (c *Client) GetBatch(ctx context.Context, name string) (*BatchDetail, error) {
	body, err := c.get(ctx, "get_batch", fmt.Sprintf("batches/%s.json", name), nil)
	if err != nil {
		return nil, err
	}
	var out BatchDetail
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("get_batch", KindParse, jsonErr)
	}
	return &out, nil
}

// GetIssue fetches the absolute issueURL (already qualified by the
// upstream API, e.g. a BatchIssue.URL).
func (c *Client) GetIssue(ctx context.Context, issueURL string) (*IssueDetail, error) {
	body, err := c.get(ctx, "get_issue", issueURL, nil)
	if err != nil {
		return nil, err
	}
	var out IssueDetail
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil {
		return nil, newErr("get_issue", KindParse, jsonErr)
	}
	return &out, nil
}

// EstimateSize fetches the total page count and implied storage size for
// a year range, per spec.md §4.2's estimate_size operation. The upstream
// API has no single estimate endpoint; like the original_source Python
// client, this issues a minimal search_pages query with rows=1 and reads
// totalItems, using an empirically derived average page size.
func (c *Client) EstimateSize(ctx context.Context, y1, y2 int) (*SizeEstimate, error) {
	res, err := c.SearchPages(ctx, SearchParams{
		Date1:          strconv.Itoa(y1),
		Date2:          strconv.Itoa(y2),
		DateFilterType: "yearRange",
		Rows:           1,
		Page:           1,
	})
	if err != nil {
		return nil, err
	}
	const avgPageSizeMB = 1.8
	return &SizeEstimate{
		TotalPages:      res.TotalItems,
		EstimatedSizeMB: float64(res.TotalItems) * avgPageSizeMB,
	}, nil
}
