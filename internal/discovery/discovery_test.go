package discovery

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakalope/newsagger-go/internal/locapi"
	"github.com/jakalope/newsagger-go/internal/ratelimit"
	"github.com/jakalope/newsagger-go/internal/store"
)

func TestParseIssueURL(t *testing.T) {
	parsed, err := ParseIssueURL("https://chroniclingamerica.loc.gov/lccn/sn84026749/1900-01-05/ed-1/")
	require.NoError(t, err)
	assert.Equal(t, "sn84026749", parsed.LCCN)
	assert.Equal(t, "1900-01-05", parsed.Date)
	assert.Equal(t, 1, parsed.Edition)

	_, err = ParseIssueURL("https://example.com/not-an-issue")
	assert.Error(t, err)
}

func TestItemID(t *testing.T) {
	assert.Equal(t, "/lccn/sn84026749/1900-01-05/ed-1/seq-3/", ItemID("sn84026749", "1900-01-05", 1, 3))
}

func TestSanitizeForFilesystem(t *testing.T) {
	assert.Equal(t, "sn84026749_1900-01-05_ed-1", SanitizeForFilesystem("sn84026749/1900-01-05:ed-1"))
}

// --- fakes ---

type fakeGate struct {
	status ratelimit.Status
}

func (g *fakeGate) Status() ratelimit.Status { return g.status }

type fakeClient struct {
	batches     []locapi.BatchSummary
	batchDetail map[string]*locapi.BatchDetail
	issues      map[string]*locapi.IssueDetail
	issueErrs   map[string]error
	searchPages func(p locapi.SearchParams) (*locapi.SearchPagesResult, error)
}

func (c *fakeClient) IterAllBatches(ctx context.Context) iter.Seq2[locapi.BatchSummary, error] {
	return func(yield func(locapi.BatchSummary, error) bool) {
		for _, b := range c.batches {
			if !yield(b, nil) {
				return
			}
		}
	}
}

func (c *fakeClient) GetBatch(ctx context.Context, name string) (*locapi.BatchDetail, error) {
	return c.batchDetail[name], nil
}

func (c *fakeClient) GetIssue(ctx context.Context, url string) (*locapi.IssueDetail, error) {
	if err, ok := c.issueErrs[url]; ok && err != nil {
		delete(c.issueErrs, url) // surface once, then succeed on retry
		return nil, err
	}
	return c.issues[url], nil
}

func (c *fakeClient) SearchPages(ctx context.Context, p locapi.SearchParams) (*locapi.SearchPagesResult, error) {
	return c.searchPages(p)
}

func (c *fakeClient) EstimateSize(ctx context.Context, y1, y2 int) (*locapi.SizeEstimate, error) {
	return &locapi.SizeEstimate{}, nil
}

func (c *fakeClient) GetPeriodical(ctx context.Context, lccn string) (*locapi.PeriodicalDetail, error) {
	return &locapi.PeriodicalDetail{}, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir+"/test.db", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBatchEngine_RunDiscoversAllIssuesAndCompletes(t *testing.T) {
	st := newTestStore(t)
	issueURL := "https://example.com/lccn/sn1/1900-01-01/ed-1/"
	client := &fakeClient{
		batches: []locapi.BatchSummary{{Name: "batch1"}},
		batchDetail: map[string]*locapi.BatchDetail{
			"batch1": {Name: "batch1", Issues: []locapi.BatchIssue{{URL: issueURL}}},
		},
		issues: map[string]*locapi.IssueDetail{
			issueURL: {
				Title: locapi.BatchIssueTitle{Name: "The Daily"},
				Pages: []locapi.IssuePageRef{{URL: "https://example.com/seq-1", Sequence: 1}},
			},
		},
		issueErrs: map[string]error{},
	}
	gate := &fakeGate{}

	eng := NewBatchEngine(nil, st, gate, nil)
	eng.client = client // override typed nil with the fake

	err := eng.Run(context.Background(), "session1", true)
	require.NoError(t, err)

	sess, err := st.GetDiscoverySession("session1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, sess.Status)
	assert.Equal(t, 1, sess.TotalPagesDiscovered)

	count, err := st.CountIssuePages("sn1", "1900-01-01", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSplitFacet_SingleYearDateRangeProducesFourQuarters(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetDateRange, "1906/1906", "", 1000)
	require.NoError(t, err)
	needsSplit := store.FacetNeedsSplitting
	require.NoError(t, st.UpdateFacet(id, store.FacetUpdate{Status: &needsSplit}))

	children, err := SplitFacet(st, id)
	require.NoError(t, err)
	assert.Len(t, children, 4)

	parent, err := st.GetFacet(id)
	require.NoError(t, err)
	assert.Equal(t, store.FacetSplitCompleted, parent.Status)
}

func TestSplitFacet_StateProducesSixCombinedFacets(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetState, "California", "", 5000)
	require.NoError(t, err)
	needsSplit := store.FacetNeedsSplitting
	require.NoError(t, st.UpdateFacet(id, store.FacetUpdate{Status: &needsSplit}))

	children, err := SplitFacet(st, id)
	require.NoError(t, err)
	assert.Len(t, children, 6)
	for _, c := range children {
		assert.Equal(t, store.FacetCombined, c.FacetType)
	}
}

func TestFacetEngine_StateFacetWithNoPeriodicalsCompletesImmediately(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetState, "Nowhere", "", 0)
	require.NoError(t, err)

	client := &fakeClient{}
	eng := NewFacetEngine(client, st, &fakeGate{}, nil)

	require.NoError(t, eng.RunFacet(context.Background(), id))

	f, err := st.GetFacet(id)
	require.NoError(t, err)
	assert.Equal(t, store.FacetCompleted, f.Status)
	assert.Equal(t, 0, f.ItemsDiscovered)
}

func TestFacetEngine_DateRangeFacetPaginatesToCompletion(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetDateRange, "1906/1906", "", 0)
	require.NoError(t, err)

	client := &fakeClient{
		searchPages: func(p locapi.SearchParams) (*locapi.SearchPagesResult, error) {
			if p.Page == 1 {
				// a full page exactly matching the requested rows: not the
				// last page yet.
				items := make([]locapi.SearchPageItem, p.Rows)
				for i := range items {
					items[i] = locapi.SearchPageItem{
						ID:   ItemID("sn1", "1906-01-01", 1, i+1),
						LCCN: "sn1",
					}
				}
				return &locapi.SearchPagesResult{Items: items}, nil
			}
			// page 2 returns fewer than requested: last page.
			return &locapi.SearchPagesResult{Items: []locapi.SearchPageItem{
				{ID: ItemID("sn1", "1906-01-02", 1, 1), LCCN: "sn1"},
			}}, nil
		},
	}
	eng := NewFacetEngine(client, st, &fakeGate{}, nil)

	require.NoError(t, eng.RunFacet(context.Background(), id))

	f, err := st.GetFacet(id)
	require.NoError(t, err)
	assert.Equal(t, store.FacetCompleted, f.Status)
	assert.Equal(t, defaultFacetRows+1, f.ItemsDiscovered)
	assert.Equal(t, 2, f.CurrentPage)

	items, err := st.GetDownloadQueue(nil, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, store.QueueFacet, items[0].QueueType)
	assert.Equal(t, id, items[0].ReferenceID)
}

func TestFacetEngine_CaptchaBlocksAndHaltsGlobally(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetDateRange, "1906/1906", "", 0)
	require.NoError(t, err)

	client := &fakeClient{
		searchPages: func(p locapi.SearchParams) (*locapi.SearchPagesResult, error) {
			return nil, &locapi.Error{Kind: locapi.KindCaptcha}
		},
	}
	eng := NewFacetEngine(client, st, &fakeGate{}, nil)

	err = eng.RunFacet(context.Background(), id)
	assert.ErrorIs(t, err, ErrGlobalHalt)

	f, err := st.GetFacet(id)
	require.NoError(t, err)
	assert.Equal(t, store.FacetCaptchaBlocked, f.Status)
}

func TestFacetEngine_SelfAuditRevivesFalseCompletion(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetDateRange, "1906/1906", "", 0)
	require.NoError(t, err)
	completed := store.FacetCompleted
	page := 2
	require.NoError(t, st.UpdateFacet(id, store.FacetUpdate{Status: &completed, CurrentPage: &page}))

	client := &fakeClient{
		searchPages: func(p locapi.SearchParams) (*locapi.SearchPagesResult, error) {
			assert.Equal(t, 3, p.Page)
			return &locapi.SearchPagesResult{Items: nil}, nil
		},
	}
	eng := NewFacetEngine(client, st, &fakeGate{}, nil)
	require.NoError(t, eng.RunFacet(context.Background(), id))

	f, err := st.GetFacet(id)
	require.NoError(t, err)
	assert.Equal(t, store.FacetCompleted, f.Status)
}
