// Package recovery implements the operator recovery operations of
// spec.md §4.5's closing bullets and §6's operator surface: resuming
// failed downloads, resetting items stuck active after a crash, and
// cleaning up incomplete files on disk.
package recovery

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/store"
)

// minPDFSize is the threshold below which a PDF on disk is treated as a
// truncated download rather than a genuine (vanishingly rare) empty
// document, per spec.md §4.5: "delete zero-byte files and PDFs <1 KiB."
const minPDFSize = 1024

// Ops bundles the state store handle the recovery operations act on.
type Ops struct {
	st  *store.Store
	log *logrus.Entry
}

// New constructs Ops.
func New(st *store.Store, logger *logrus.Logger) *Ops {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ops{st: st, log: logger.WithField("component", "recovery.Ops")}
}

// ResumeFailed transitions every failed QueueItem back to queued with its
// error cleared, per spec.md §4.5.
func (o *Ops) ResumeFailed() (int64, error) {
	clearedErr := ""
	queued := store.QueueQueued
	res := o.st.DB().Model(&store.QueueItem{}).
		Where("status = ?", store.QueueFailed).
		Updates(map[string]interface{}{"status": queued, "error_message": clearedErr})
	return res.RowsAffected, res.Error
}

// ResetStuckActive transitions every active QueueItem back to queued,
// used after an unclean process exit left items marked active with no
// worker actually processing them.
func (o *Ops) ResetStuckActive() (int64, error) {
	queued := store.QueueQueued
	res := o.st.DB().Model(&store.QueueItem{}).
		Where("status = ?", store.QueueActive).
		Update("status", queued)
	return res.RowsAffected, res.Error
}

// defaultPeriodicalPriority matches the QueueItem schema's default priority
// (5), so an operator-triggered periodical
// re-download competes fairly with ordinary queue traffic.
const defaultPeriodicalPriority = 5

// EnqueuePeriodical creates a `periodical` QueueItem for lccn, per
// spec.md §4.5's "Processing a `periodical` item" operation: the Download
// Engine will iterate every undownloaded Page for lccn when it picks up
// this item. Used by operators to retry a periodical's remaining pages in
// bulk rather than re-queuing each page individually.
func (o *Ops) EnqueuePeriodical(lccn string) (string, error) {
	return o.st.EnqueueItem(store.QueuePeriodical, lccn, defaultPeriodicalPriority)
}

// CleanupIncomplete walks root and deletes zero-byte files and PDFs
// smaller than minPDFSize, per spec.md §4.5.
func (o *Ops) CleanupIncomplete(root string) (int, error) {
	removed := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || (filepath.Ext(path) == ".pdf" && info.Size() < minPDFSize) {
			if rerr := os.Remove(path); rerr != nil {
				o.log.WithError(rerr).WithField("path", path).Warn("failed to remove incomplete file")
				return nil
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("recovery: walking %s: %w", root, err)
	}
	return removed, nil
}
