package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/locapi"
	"github.com/jakalope/newsagger-go/internal/progress"
	"github.com/jakalope/newsagger-go/internal/store"
)

const (
	defaultFacetRows = 100
	stateFacetRows   = 50
	stateFacetLCCNCap = 5
)

// ErrGlobalHalt is returned by RunPendingFacets when a CAPTCHA blocks the
// global gate: per spec.md §4.4.2 step 9, discovery across all facets
// must halt until the gate reopens, since a per-facet retry would simply
// re-trigger the block.
var ErrGlobalHalt = errors.New("discovery: global captcha cooldown, halting all facets")

// FacetEngine implements facet-mode discovery, spec.md §4.4.2.
type FacetEngine struct {
	client locapiClient
	st     stateStore
	gate   gateChecker

	// Bus receives discovery progress events; nil is a valid no-op
	// observer, per spec.md §9.
	Bus *progress.Bus

	log *logrus.Entry
}

// NewFacetEngine constructs a FacetEngine.
func NewFacetEngine(client locapiClient, st stateStore, gate gateChecker, logger *logrus.Logger) *FacetEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FacetEngine{client: client, st: st, gate: gate, log: logger.WithField("component", "discovery.FacetEngine")}
}

// RunPendingFacets drives every pending or discovering facet to a terminal
// or suspended state, stopping immediately (returning ErrGlobalHalt) if a
// CAPTCHA blocks the global gate.
func (e *FacetEngine) RunPendingFacets(ctx context.Context) error {
	pending, err := e.st.ListFacetsByStatus(store.FacetPending)
	if err != nil {
		return err
	}
	discovering, err := e.st.ListFacetsByStatus(store.FacetDiscovering)
	if err != nil {
		return err
	}
	todo := append(pending, discovering...)

	for _, f := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.RunFacet(ctx, f.ID); err != nil {
			if errors.Is(err, ErrGlobalHalt) {
				return err
			}
			e.log.WithError(err).WithField("facet", f.ID).Warn("facet discovery run failed")
		}
	}
	return nil
}

// RunFacet drives one facet's discovery loop per spec.md §4.4.2, until it
// reaches completed, error, needs_splitting, or captcha_blocked.
func (e *FacetEngine) RunFacet(ctx context.Context, facetID string) error {
	f, err := e.st.GetFacet(facetID)
	if err != nil {
		return err
	}

	if f.Status == store.FacetCompleted && f.CurrentPage > 1 && f.ErrorMessage == "" {
		resume := f.CurrentPage + 1
		discovering := store.FacetDiscovering
		if err := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &discovering, ResumeFromPage: &resume}); err != nil {
			return err
		}
		f.Status = store.FacetDiscovering
		f.ResumeFromPage = resume
	} else if f.Status == store.FacetPending {
		discovering := store.FacetDiscovering
		if err := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &discovering}); err != nil {
			return err
		}
		f.Status = store.FacetDiscovering
	}

	if f.Status != store.FacetDiscovering {
		return nil
	}

	var lccns []string
	if f.FacetType == store.FacetState {
		lccns, err = e.st.ListPeriodicalLCCNsByState(f.FacetValue)
		if err != nil {
			return err
		}
		if len(lccns) == 0 {
			completed := store.FacetCompleted
			zero := 0
			if uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &completed, ItemsDiscovered: &zero}); uerr != nil {
				return uerr
			}
			e.Bus.Publish(progress.Event{Kind: progress.KindFacetUpdate, FacetID: facetID, FacetStatus: string(completed), Message: "no periodicals for state"})
			return nil
		}
	}

	seen := make(map[string]bool)
	rows := defaultFacetRows
	if f.FacetType == store.FacetState {
		rows = stateFacetRows
	}

	for p := max1(f.ResumeFromPage); ; p++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		params := e.buildSearchParams(*f, lccns, p, rows)
		result, err := e.client.SearchPages(ctx, params)
		if err != nil {
			if locapi.IsKind(err, locapi.KindCaptcha) {
				blocked := store.FacetCaptchaBlocked
				if uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &blocked}); uerr != nil {
					return uerr
				}
				e.Bus.Publish(progress.Event{Kind: progress.KindCaptchaBlocked, FacetID: facetID, FacetStatus: string(blocked), Message: err.Error()})
				return ErrGlobalHalt
			}

			if p > f.ResumeFromPage || p > 1 {
				needsSplit := store.FacetNeedsSplitting
				msg := err.Error()
				uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &needsSplit, ErrorMessage: &msg})
				e.Bus.Publish(progress.Event{Kind: progress.KindFacetUpdate, FacetID: facetID, FacetStatus: string(needsSplit), Message: msg})
				return uerr
			}

			facetErr := store.FacetError
			msg := err.Error()
			uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &facetErr, ErrorMessage: &msg})
			e.Bus.Publish(progress.Event{Kind: progress.KindFacetUpdate, FacetID: facetID, FacetStatus: string(facetErr), Message: msg})
			return uerr
		}

		fresh := dedupeItems(result.Items, seen)
		if f.MaxItems > 0 {
			fresh = capToMaxItems(fresh, f.ItemsDiscovered, f.MaxItems)
		}

		pages := make([]store.Page, 0, len(fresh))
		for _, it := range fresh {
			pages = append(pages, store.Page{
				ItemID:    it.ID,
				LCCN:      it.LCCN,
				Title:     it.Title,
				Date:      it.Date,
				Edition:   it.Edition,
				Sequence:  it.Sequence,
				PageURL:   it.URL,
				PDFUrl:    it.PDFUrl,
				JP2Url:    it.JP2Url,
				OCRUrl:    it.OCRUrl,
				OCRText:   it.OCRText,
				WordCount: it.WordCount,
				FacetID:   facetID,
			})
		}

		stored, serr := e.st.StorePages(pages)
		if serr != nil {
			return fmt.Errorf("discovery: storing facet pages: %w", serr)
		}

		currentPage := p
		lastBatch := rows
		if uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{
			CurrentPage:              &currentPage,
			LastBatchSize:            &lastBatch,
			IncrementItemsDiscovered: stored,
		}); uerr != nil {
			return uerr
		}

		f.ItemsDiscovered += stored

		if len(result.Items) < rows || (f.MaxItems > 0 && f.ItemsDiscovered >= f.MaxItems) {
			completed := store.FacetCompleted
			if uerr := e.st.UpdateFacet(facetID, store.FacetUpdate{Status: &completed}); uerr != nil {
				return uerr
			}
			if f.ItemsDiscovered > 0 {
				if _, qerr := e.st.EnqueueItem(store.QueueFacet, facetID, f.Priority); qerr != nil {
					return qerr
				}
			}
			e.Bus.Publish(progress.Event{Kind: progress.KindFacetUpdate, FacetID: facetID, FacetStatus: string(completed)})
			return nil
		}
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// buildSearchParams constructs locapi.SearchParams by facet type, per
// spec.md §4.4.2 step 1-4.
func (e *FacetEngine) buildSearchParams(f store.SearchFacet, stateLCCNs []string, page, rows int) locapi.SearchParams {
	p := locapi.SearchParams{Page: page, Rows: rows}

	switch f.FacetType {
	case store.FacetDateRange:
		y1, y2, full1, full2 := splitDateRange(f.FacetValue)
		if full1 != "" {
			p.Date1, p.Date2, p.DateFilterType = full1, full2, "range"
		} else {
			p.Date1, p.Date2, p.DateFilterType = y1, y2, "yearRange"
		}
	case store.FacetState:
		p.State = f.FacetValue
		if len(stateLCCNs) > 0 {
			n := len(stateLCCNs)
			if n > stateFacetLCCNCap {
				n = stateFacetLCCNCap
			}
			p.AndText = "lccn:(" + strings.Join(stateLCCNs[:n], " OR ") + ")"
		}
	case store.FacetCombined:
		parts := strings.SplitN(f.FacetValue, "|", 2)
		if len(parts) == 2 {
			p.State = parts[0]
			y1, y2, full1, full2 := splitDateRange(parts[1])
			if full1 != "" {
				p.Date1, p.Date2, p.DateFilterType = full1, full2, "range"
			} else {
				p.Date1, p.Date2, p.DateFilterType = y1, y2, "yearRange"
			}
		}
	}
	if f.Query != "" {
		if p.AndText != "" {
			p.AndText += " AND " + f.Query
		} else {
			p.AndText = f.Query
		}
	}
	return p
}

// splitDateRange parses a facet_value of either "YYYY/YYYY" (year range,
// returned via y1/y2) or "MM/DD/YYYY/MM/DD/YYYY" (full dates, returned via
// full1/full2), per spec.md §4.2's date-range parameter handling.
func splitDateRange(value string) (y1, y2, full1, full2 string) {
	parts := strings.Split(value, "/")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", ""
	case 6:
		return "", "", strings.Join(parts[0:3], "/"), strings.Join(parts[3:6], "/")
	default:
		return value, value, "", ""
	}
}

func dedupeItems(items []locapi.SearchPageItem, seen map[string]bool) []locapi.SearchPageItem {
	fresh := make([]locapi.SearchPageItem, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		fresh = append(fresh, it)
	}
	return fresh
}

func capToMaxItems(items []locapi.SearchPageItem, alreadyDiscovered, maxItems int) []locapi.SearchPageItem {
	remaining := maxItems - alreadyDiscovered
	if remaining <= 0 {
		return nil
	}
	if len(items) > remaining {
		return items[:remaining]
	}
	return items
}
