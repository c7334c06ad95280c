package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

func TestHealth_ReturnsOK(t *testing.T) {
	st := newTestStore(t)
	r := NewRouter(New(st, nil), nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats_ReportsFacetAndPageCounts(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateSearchFacet(store.FacetState, "California", "", 100)
	require.NoError(t, err)
	_, _, err = st.StorePagesAndEnqueue([]store.Page{{ItemID: "/lccn/sn1/1900-01-01/ed-1/seq-1/"}}, 5)
	require.NoError(t, err)

	r := NewRouter(New(st, nil), nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["pages_total"])
}

func TestFacets_FiltersByStatus(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSearchFacet(store.FacetState, "Texas", "", 10)
	require.NoError(t, err)
	completed := store.FacetCompleted
	require.NoError(t, st.UpdateFacet(id, store.FacetUpdate{Status: &completed}))

	r := NewRouter(New(st, nil), nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/facets?status=completed", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var facets []store.SearchFacet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &facets))
	require.Len(t, facets, 1)
	assert.Equal(t, id, facets[0].ID)
}

func TestSessionByName_NotFoundReturns404(t *testing.T) {
	st := newTestStore(t)
	r := NewRouter(New(st, nil), nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_ServesPrometheusFormat(t *testing.T) {
	st := newTestStore(t)
	r := NewRouter(New(st, nil), nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
