package locapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jakalope/newsagger-go/internal/ratelimit"
)

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	gate := ratelimit.New(ratelimit.Config{MaxPerMinute: 1000})
	return New(srv.URL+"/", gate, 3, nil, WithHTTPClient(srv.Client()), WithSleep(noopSleep))
}

func TestGetPeriodical_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lccn/sn84038012.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lccn":"sn84038012","name":"The Example Times","start_year":"1900","end_year":"1920","issues":[{"date_issued":"1900-01-01","url":"https://x/issue1"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	detail, err := c.GetPeriodical(context.Background(), "sn84038012")
	require.NoError(t, err)
	require.Equal(t, "sn84038012", detail.LCCN)
	require.Len(t, detail.Issues, 1)
}

func TestGetPeriodical_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not found"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetPeriodical(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, IsKind(err, KindNotFound))
}

func TestSearchPages_CaptchaSurfacesWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<div class="g-recaptcha" data-sitekey="x"></div>`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.SearchPages(context.Background(), SearchParams{Date1: "1906", Date2: "1906", DateFilterType: "yearRange"})
	require.Error(t, err)
	require.True(t, IsKind(err, KindCaptcha))
	require.Equal(t, 1, calls, "captcha must not be retried")
}

func TestListBatches_RetriesTransportErrorsThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("transient failure, please retry this operation shortly"))
			return
		}
		w.Write([]byte(`{"batches":[{"name":"batch_a","page_count":10}],"totalPages":1}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	page, err := c.ListBatches(context.Background(), 1, 100)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, page.Batches, 1)
}

func TestIterAllBatches_WalksAllPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			w.Write([]byte(`{"batches":[{"name":"a"}],"totalPages":2}`))
		case "2":
			w.Write([]byte(`{"batches":[{"name":"b"}],"totalPages":2}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var names []string
	for b, err := range c.IterAllBatches(context.Background()) {
		require.NoError(t, err)
		names = append(names, b.Name)
	}
	require.Equal(t, []string{"a", "b"}, names)
}

func TestGetIssue_FollowsAbsoluteURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/lccn/sn84038012/1900-01-01/ed-1.json", r.URL.Path)
		w.Write([]byte(`{"date_issued":"1900-01-01","pages":[{"url":"https://x/seq-1","sequence":1}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	issue, err := c.GetIssue(context.Background(), srv.URL+"/lccn/sn84038012/1900-01-01/ed-1.json")
	require.NoError(t, err)
	require.Len(t, issue.Pages, 1)
}
