package discovery

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jakalope/newsagger-go/internal/store"
)

// stateBands are the six year-bands combined with a state to form
// needs_splitting state facets, per spec.md §4.4.2's "six state×year-band
// combined facets" rule. Bands follow the newspaper digitization era
// (Chronicling America coverage begins 1756; the last band ends 1963).
var stateBands = [][2]int{
	{1756, 1849},
	{1850, 1869},
	{1870, 1889},
	{1890, 1909},
	{1910, 1929},
	{1930, 1963},
}

// SplitFacet resolves a needs_splitting facet into narrower child facets
// and transitions the parent to split_completed, per spec.md §4.4.2's
// Splitting rules. Each child's estimated_items is the parent's estimate
// divided evenly (integer division) across the children.
func SplitFacet(st stateStore, facetID string) ([]store.SearchFacet, error) {
	f, err := st.GetFacet(facetID)
	if err != nil {
		return nil, err
	}
	if f.Status != store.FacetNeedsSplitting {
		return nil, fmt.Errorf("discovery: facet %s is not needs_splitting (status=%s)", facetID, f.Status)
	}

	childPriority := f.Priority - 1

	var children []store.SearchFacet
	switch f.FacetType {
	case store.FacetDateRange:
		children, err = splitDateRangeFacet(*f, childPriority)
	case store.FacetState:
		children = splitStateFacet(*f, childPriority)
	default:
		return nil, fmt.Errorf("discovery: facet type %s is not splittable", f.FacetType)
	}
	if err != nil {
		return nil, err
	}

	if len(children) > 0 {
		share := f.EstimatedItems / len(children)
		for i := range children {
			children[i].EstimatedItems = share
		}
	}

	if err := st.CreateFacets(children); err != nil {
		return nil, err
	}

	splitCompleted := store.FacetSplitCompleted
	if err := st.UpdateFacet(facetID, store.FacetUpdate{Status: &splitCompleted}); err != nil {
		return nil, err
	}
	return children, nil
}

// splitDateRangeFacet splits a single-year date_range into four quarterly
// facets, or a multi-year date_range into one facet per year.
func splitDateRangeFacet(f store.SearchFacet, priority int) ([]store.SearchFacet, error) {
	parts := strings.Split(f.FacetValue, "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("discovery: facet value %q is not a year range", f.FacetValue)
	}
	y1, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("discovery: bad start year %q: %w", parts[0], err)
	}
	y2, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("discovery: bad end year %q: %w", parts[1], err)
	}

	var children []store.SearchFacet
	if y1 == y2 {
		quarters := [4][2]string{
			{"01/01", "03/31"},
			{"04/01", "06/30"},
			{"07/01", "09/30"},
			{"10/01", "12/31"},
		}
		for _, q := range quarters {
			value := fmt.Sprintf("%s/%d/%s/%d", q[0], y1, q[1], y1)
			children = append(children, store.SearchFacet{
				FacetType:  store.FacetDateRange,
				FacetValue: value,
				Priority:   priority,
			})
		}
		return children, nil
	}

	for y := y1; y <= y2; y++ {
		children = append(children, store.SearchFacet{
			FacetType:  store.FacetDateRange,
			FacetValue: fmt.Sprintf("%d/%d", y, y),
			Priority:   priority,
		})
	}
	return children, nil
}

// splitStateFacet splits a state facet into six state×year-band combined
// facets.
func splitStateFacet(f store.SearchFacet, priority int) []store.SearchFacet {
	children := make([]store.SearchFacet, 0, len(stateBands))
	for _, band := range stateBands {
		value := fmt.Sprintf("%s|%d/%d", f.FacetValue, band[0], band[1])
		children = append(children, store.SearchFacet{
			FacetType:  store.FacetCombined,
			FacetValue: value,
			Priority:   priority,
		})
	}
	return children
}
