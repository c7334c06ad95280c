package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// CreateDiscoverySession creates the session by name, or returns the
// existing one — "fetch or restore" per spec.md §4.4.1 step 1.
func (s *Store) CreateDiscoverySession(name string, totalBatches int, autoEnqueue bool) (*DiscoverySession, error) {
	var existing DiscoverySession
	err := s.db.Where("session_name = ?", name).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sess := DiscoverySession{
		SessionName:  name,
		TotalBatches: totalBatches,
		AutoEnqueue:  autoEnqueue,
		Status:       SessionActive,
		StartedAt:    time.Now(),
	}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetDiscoverySession fetches a session by name.
func (s *Store) GetDiscoverySession(name string) (*DiscoverySession, error) {
	var sess DiscoverySession
	if err := s.db.First(&sess, "session_name = ?", name).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// SessionUpdate is the typed update-builder for DiscoverySession, mirroring
// FacetUpdate's pattern (spec.md §9).
type SessionUpdate struct {
	CurrentBatchIndex  *int
	CurrentBatchName   *string
	TotalIssuesInBatch *int
	CurrentIssueIndex  *int
	Status             *SessionStatus

	DeltaDiscovered int
	DeltaEnqueued   int
}

// UpdateDiscoverySession atomically applies field overwrites and delta
// increments in a single transaction, per spec.md §4.3.
func (s *Store) UpdateDiscoverySession(name string, u SessionUpdate) error {
	fields := map[string]interface{}{}
	if u.CurrentBatchIndex != nil {
		fields["current_batch_index"] = *u.CurrentBatchIndex
	}
	if u.CurrentBatchName != nil {
		fields["current_batch_name"] = *u.CurrentBatchName
	}
	if u.TotalIssuesInBatch != nil {
		fields["total_issues_in_batch"] = *u.TotalIssuesInBatch
	}
	if u.CurrentIssueIndex != nil {
		fields["current_issue_index"] = *u.CurrentIssueIndex
	}
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	fields["updated_at"] = time.Now()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(fields) > 1 {
			if err := tx.Model(&DiscoverySession{}).Where("session_name = ?", name).Updates(fields).Error; err != nil {
				return err
			}
		}
		if u.DeltaDiscovered != 0 {
			if err := tx.Model(&DiscoverySession{}).Where("session_name = ?", name).
				Update("total_pages_discovered", gorm.Expr("total_pages_discovered + ?", u.DeltaDiscovered)).Error; err != nil {
				return err
			}
		}
		if u.DeltaEnqueued != 0 {
			if err := tx.Model(&DiscoverySession{}).Where("session_name = ?", name).
				Update("total_pages_enqueued", gorm.Expr("total_pages_enqueued + ?", u.DeltaEnqueued)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
