package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateSearchFacet idempotently creates a facet by (facet_type,
// facet_value, query), per spec.md §4.3.
func (s *Store) CreateSearchFacet(facetType FacetType, value, query string, estimate int) (string, error) {
	var existing SearchFacet
	err := s.db.Where("facet_type = ? AND facet_value = ? AND query = ?", facetType, value, query).
		First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	f := SearchFacet{
		ID:             uuid.NewString(),
		FacetType:      facetType,
		FacetValue:     value,
		Query:          query,
		EstimatedItems: estimate,
		Status:         FacetPending,
		ResumeFromPage: 1,
		Priority:       5,
	}
	if err := s.db.Create(&f).Error; err != nil {
		return "", err
	}
	return f.ID, nil
}

// FacetUpdate is the typed update-builder named in spec.md §9, replacing
// dynamic-dict UPDATE construction: every settable field is a pointer,
// nil meaning "leave unchanged".
type FacetUpdate struct {
	Status          *FacetStatus
	ErrorMessage    *string
	EstimatedItems  *int
	ActualItems     *int
	ItemsDiscovered *int
	ItemsDownloaded *int
	CurrentPage     *int
	LastBatchSize   *int
	ResumeFromPage  *int
	MaxItems        *int
	Priority        *int

	// IncrementItemsDiscovered/IncrementItemsDownloaded apply a delta
	// atomically rather than overwriting, for concurrent-safe counters.
	IncrementItemsDiscovered int
	IncrementItemsDownloaded int
}

// UpdateFacet performs a single atomic multi-field UPDATE. When
// CurrentPage is written, ResumeFromPage is set to the same value in the
// same transaction, per spec.md §4.3's resume-cursor rule — unless the
// caller explicitly also supplied ResumeFromPage, which wins.
func (s *Store) UpdateFacet(id string, u FacetUpdate) error {
	fields := map[string]interface{}{}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	if u.ErrorMessage != nil {
		fields["error_message"] = *u.ErrorMessage
	}
	if u.EstimatedItems != nil {
		fields["estimated_items"] = *u.EstimatedItems
	}
	if u.ActualItems != nil {
		fields["actual_items"] = *u.ActualItems
	}
	if u.ItemsDiscovered != nil {
		fields["items_discovered"] = *u.ItemsDiscovered
	}
	if u.ItemsDownloaded != nil {
		fields["items_downloaded"] = *u.ItemsDownloaded
	}
	if u.CurrentPage != nil {
		fields["current_page"] = *u.CurrentPage
		fields["resume_from_page"] = *u.CurrentPage
	}
	if u.LastBatchSize != nil {
		fields["last_batch_size"] = *u.LastBatchSize
	}
	if u.ResumeFromPage != nil {
		fields["resume_from_page"] = *u.ResumeFromPage
	}
	if u.MaxItems != nil {
		fields["max_items"] = *u.MaxItems
	}
	if u.Priority != nil {
		fields["priority"] = *u.Priority
	}
	fields["updated_at"] = time.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(fields) > 1 { // more than just updated_at
			if err := tx.Model(&SearchFacet{}).Where("id = ?", id).Updates(fields).Error; err != nil {
				return err
			}
		}
		if u.IncrementItemsDiscovered != 0 {
			if err := tx.Model(&SearchFacet{}).Where("id = ?", id).
				Update("items_discovered", gorm.Expr("items_discovered + ?", u.IncrementItemsDiscovered)).Error; err != nil {
				return err
			}
		}
		if u.IncrementItemsDownloaded != 0 {
			if err := tx.Model(&SearchFacet{}).Where("id = ?", id).
				Update("items_downloaded", gorm.Expr("items_downloaded + ?", u.IncrementItemsDownloaded)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertFacets inserts or fully overwrites facets by id ("INSERT OR
// REPLACE"), used by the split/merge operator tool (spec.md §6) to fold a
// worker's completed facets back into the master store.
func (s *Store) UpsertFacets(facets []SearchFacet) error {
	if len(facets) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"facet_type", "facet_value", "query", "estimated_items", "actual_items",
			"items_discovered", "items_downloaded", "current_page", "last_batch_size",
			"resume_from_page", "max_items", "priority", "status", "error_message", "updated_at",
		}),
	}).Create(&facets).Error
}

// GetFacet fetches a facet by id.
func (s *Store) GetFacet(id string) (*SearchFacet, error) {
	var f SearchFacet
	if err := s.db.First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFacetsByStatus returns all facets in the given status, ordered by
// priority then creation time.
func (s *Store) ListFacetsByStatus(status FacetStatus) ([]SearchFacet, error) {
	var facets []SearchFacet
	err := s.db.Where("status = ?", status).Order("priority asc, created_at asc").Find(&facets).Error
	return facets, err
}

// ListAllFacets returns every facet, for split/merge and audit tooling.
func (s *Store) ListAllFacets() ([]SearchFacet, error) {
	var facets []SearchFacet
	err := s.db.Order("priority asc, created_at asc").Find(&facets).Error
	return facets, err
}

// CreateFacets inserts newly-derived facets (e.g. from splitting) in one
// transaction.
func (s *Store) CreateFacets(facets []SearchFacet) error {
	if len(facets) == 0 {
		return nil
	}
	for i := range facets {
		if facets[i].ID == "" {
			facets[i].ID = uuid.NewString()
		}
		if facets[i].Status == "" {
			facets[i].Status = FacetPending
		}
		if facets[i].ResumeFromPage == 0 {
			facets[i].ResumeFromPage = 1
		}
	}
	return s.db.Clauses(gormOnConflictDoNothing()).Create(&facets).Error
}
