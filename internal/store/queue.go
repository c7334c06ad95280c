package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StorePagesAndEnqueue atomically stores pages and creates a QueueItem for
// each newly-stored page, per spec.md §4.3's essential atomicity
// guarantee: a crash between these two steps would otherwise leave pages
// undiscoverable by the downloader.
func (s *Store) StorePagesAndEnqueue(pages []Page, priority int) (stored, enqueued int, err error) {
	if len(pages) == 0 {
		return 0, 0, nil
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var newIDs []string
		var txErr error
		stored, newIDs, txErr = s.storePagesTx(tx, pages)
		if txErr != nil {
			return txErr
		}
		if len(newIDs) == 0 {
			return nil
		}

		items := make([]QueueItem, 0, len(newIDs))
		for _, id := range newIDs {
			items = append(items, QueueItem{
				ID:          uuid.NewString(),
				QueueType:   QueuePage,
				ReferenceID: id,
				Priority:    priority,
				Status:      QueueQueued,
				CreatedAt:   time.Now(),
			})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&items).Error; err != nil {
			return err
		}
		enqueued = len(items)
		return nil
	})
	return stored, enqueued, err
}

// EnqueueItem creates a single QueueItem of any queue_type, per spec.md
// §3's queue_type ∈ {page, facet, periodical}. Used for the `facet` and
// `periodical` bulk-download items (spec.md §4.5), which — unlike
// per-page items created by StorePagesAndEnqueue — are created once a
// facet has finished discovery, or when an operator requests a periodical.
func (s *Store) EnqueueItem(queueType QueueType, referenceID string, priority int) (string, error) {
	item := QueueItem{
		ID:          uuid.NewString(),
		QueueType:   queueType,
		ReferenceID: referenceID,
		Priority:    priority,
		Status:      QueueQueued,
		CreatedAt:   time.Now(),
	}
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&item).Error; err != nil {
		return "", err
	}
	return item.ID, nil
}

// GetUndownloadedPagesByFacet returns every Page discovered by facetID
// that has not yet been downloaded, per spec.md §4.5's "Processing a
// `facet` item" operation.
func (s *Store) GetUndownloadedPagesByFacet(facetID string) ([]Page, error) {
	var pages []Page
	err := s.db.Where("facet_id = ? AND downloaded = ?", facetID, false).Find(&pages).Error
	return pages, err
}

// GetUndownloadedPagesByLCCN returns every Page for lccn that has not yet
// been downloaded, per spec.md §4.5's "Processing a `periodical` item"
// operation.
func (s *Store) GetUndownloadedPagesByLCCN(lccn string) ([]Page, error) {
	var pages []Page
	err := s.db.Where("lccn = ? AND downloaded = ?", lccn, false).Find(&pages).Error
	return pages, err
}

// GetDownloadQueue returns queue items in (priority asc, created_at asc)
// order, optionally filtered by status, per spec.md §4.3/§4.5.
func (s *Store) GetDownloadQueue(status *QueueStatus, limit int) ([]QueueItem, error) {
	q := s.db.Order("priority asc, created_at asc")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []QueueItem
	err := q.Find(&items).Error
	return items, err
}

// HasActiveItem reports whether an `active` QueueItem already exists for
// (queueType, referenceID). Nothing in this module calls it: marking an
// item active does not check for another active item with the same
// reference.
func (s *Store) HasActiveItem(queueType QueueType, referenceID string) (bool, error) {
	var count int64
	err := s.db.Model(&QueueItem{}).
		Where("queue_type = ? AND reference_id = ? AND status = ?", queueType, referenceID, QueueActive).
		Count(&count).Error
	return count > 0, err
}

// QueueItemUpdate is the typed update-builder for QueueItem.
type QueueItemUpdate struct {
	ID              string
	Status          *QueueStatus
	ProgressPercent *float64
	ErrorMessage    *string
	EstimatedSizeMB *float64
}

func (u QueueItemUpdate) fields() map[string]interface{} {
	fields := map[string]interface{}{"updated_at": time.Now()}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	if u.ProgressPercent != nil {
		fields["progress_percent"] = *u.ProgressPercent
	}
	if u.ErrorMessage != nil {
		fields["error_message"] = *u.ErrorMessage
	}
	if u.EstimatedSizeMB != nil {
		fields["estimated_size_mb"] = *u.EstimatedSizeMB
	}
	return fields
}

// UpdateQueueItem applies a single-row update, used for the immediate
// "mark active" visibility update of spec.md §4.5 step 2.
func (s *Store) UpdateQueueItem(u QueueItemUpdate) error {
	return s.db.Model(&QueueItem{}).Where("id = ?", u.ID).Updates(u.fields()).Error
}

// BatchUpdateQueue applies many QueueItemUpdates in a single transaction —
// the Download Engine's periodic flush (spec.md §4.5 step 5). On
// transaction failure it falls back to per-row updates (spec.md §7's
// state-store error-handling rule) so one bad row does not lose an entire
// batch's progress.
func (s *Store) BatchUpdateQueue(updates []QueueItemUpdate, log *logrus.Entry) error {
	if len(updates) == 0 {
		return nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&QueueItem{}).Where("id = ?", u.ID).Updates(u.fields()).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if log != nil {
		log.WithError(err).Warn("batch queue update failed, falling back to per-row updates")
	}

	var firstErr error
	for _, u := range updates {
		if rowErr := s.db.Model(&QueueItem{}).Where("id = ?", u.ID).Updates(u.fields()).Error; rowErr != nil {
			if firstErr == nil {
				firstErr = rowErr
			}
		}
	}
	return firstErr
}
