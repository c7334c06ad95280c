package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store wraps a *gorm.DB and exposes the atomic operations of spec.md
// §4.3. A single writer is assumed (spec.md §5); SQLite's connection pool
// is capped at one open connection the way the teacher's
// backend/cmd/server/main.go caps sqlDB.SetMaxOpenConns(1).
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

// Open connects to (creating if absent) the sqlite database at path and
// runs migrations, following the teacher's WAL/synchronous/cache_size
// pragma tuning.
func Open(path string, lg *logrus.Logger) (*Store, error) {
	if lg == nil {
		lg = logrus.StandardLogger()
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, log: lg.WithField("component", "store.Store")}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&Periodical{},
		&SearchFacet{},
		&DiscoverySession{},
		&Page{},
		&QueueItem{},
		&DownloadSession{},
	)
}

// UpsertPeriodicals idempotently inserts or updates by lccn, per spec.md
// §4.3.
func (s *Store) UpsertPeriodicals(periodicals []Periodical) error {
	if len(periodicals) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lccn"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "state", "city", "start_year", "end_year", "frequency", "language", "subject", "url", "total_issues", "updated_at"}),
	}).Create(&periodicals).Error
}

// UpsertPages inserts or fully overwrites pages by item_id ("INSERT OR
// REPLACE"), used by the split/merge operator tool (spec.md §6) to fold a
// worker's discovered pages back into the master store.
func (s *Store) UpsertPages(pages []Page) (int, error) {
	if len(pages) == 0 {
		return 0, nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lccn", "title", "date", "edition", "sequence", "page_url", "pdf_url", "jp2_url",
			"ocr_url", "ocr_text", "word_count", "downloaded", "facet_id", "updated_at",
		}),
	}).Create(&pages).Error
	return len(pages), err
}

// ListPeriodicalLCCNsByState returns the LCCNs of periodicals known for a
// given state, used by facet-mode discovery to decide whether a state
// facet has any periodicals to query and, if so, to restrict the query to
// the first few (spec.md §4.4.2 steps 2/3).
func (s *Store) ListPeriodicalLCCNsByState(state string) ([]string, error) {
	var lccns []string
	err := s.db.Model(&Periodical{}).Where("state = ?", state).Order("lccn").Pluck("lccn", &lccns).Error
	return lccns, err
}

// StorePages idempotently inserts pages by item_id and returns the count
// of rows actually inserted (spec.md §4.3/§8: storing a duplicate stores
// exactly one row).
func (s *Store) StorePages(pages []Page) (int, error) {
	stored, _, err := s.storePagesTx(s.db, pages)
	return stored, err
}

func (s *Store) storePagesTx(tx *gorm.DB, pages []Page) (stored int, newItemIDs []string, err error) {
	if len(pages) == 0 {
		return 0, nil, nil
	}

	seen := make(map[string]bool, len(pages))
	dedup := make([]Page, 0, len(pages))
	for _, p := range pages {
		if p.ItemID == "" || seen[p.ItemID] {
			continue
		}
		seen[p.ItemID] = true
		dedup = append(dedup, p)
	}

	for _, p := range dedup {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
		if res.Error != nil {
			return stored, newItemIDs, res.Error
		}
		if res.RowsAffected > 0 {
			stored++
			newItemIDs = append(newItemIDs, p.ItemID)
		}
	}
	return stored, newItemIDs, nil
}

// MarkPageDownloaded sets Page.Downloaded=true for itemID.
func (s *Store) MarkPageDownloaded(itemID string) error {
	return s.db.Model(&Page{}).Where("item_id = ?", itemID).
		Updates(map[string]interface{}{"downloaded": true, "updated_at": time.Now()}).Error
}

// GetPage fetches a single page by item_id.
func (s *Store) GetPage(itemID string) (*Page, error) {
	var p Page
	err := s.db.First(&p, "item_id = ?", itemID).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CountIssuePages implements the fast-path duplicate check of spec.md
// §4.4.1: a nonzero count means the issue has already been ingested.
func (s *Store) CountIssuePages(lccn, date string, edition int) (int64, error) {
	var count int64
	err := s.db.Model(&Page{}).
		Where("lccn = ? AND date = ? AND edition = ?", lccn, date, edition).
		Count(&count).Error
	return count, err
}

// RecalculatePeriodicalCounters recomputes issues_discovered/
// issues_downloaded for lccn from the Page table, a supplement drawn from
// original_source/src/newsagger/storage.py (SPEC_FULL.md §Supplemented
// Features #2). Both count distinct (date, edition) issues; an issue counts
// as downloaded once any of its pages is downloaded.
func (s *Store) RecalculatePeriodicalCounters(lccn string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var distinctIssues int64
		if err := tx.Model(&Page{}).
			Where("lccn = ?", lccn).
			Distinct("date", "edition").
			Count(&distinctIssues).Error; err != nil {
			return err
		}

		var downloadedIssues int64
		if err := tx.Model(&Page{}).
			Where("lccn = ? AND downloaded = ?", lccn, true).
			Distinct("date", "edition").
			Count(&downloadedIssues).Error; err != nil {
			return err
		}

		return tx.Model(&Periodical{}).Where("lccn = ?", lccn).Updates(map[string]interface{}{
			"issues_discovered": distinctIssues,
			"issues_downloaded": downloadedIssues,
			"updated_at":        time.Now(),
		}).Error
	})
}

// DB exposes the underlying *gorm.DB for components (statusapi) that need
// read-only ad-hoc queries outside the atomic-operation surface.
func (s *Store) DB() *gorm.DB { return s.db }
