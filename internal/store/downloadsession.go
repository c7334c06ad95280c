package store

import "time"

// CreateDownloadSession opens a new DownloadSession row for one Download
// Engine invocation, a supplement drawn from original_source/'s
// downloader.py session bookkeeping (SPEC_FULL.md's Supplemented
// Features #3).
func (s *Store) CreateDownloadSession(scope string) (*DownloadSession, error) {
	sess := DownloadSession{Scope: scope, StartedAt: time.Now()}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, err
	}
	return &sess, nil
}

// RecordDownloadOutcome accumulates per-item totals onto an open
// DownloadSession in a single UPDATE, amortizing the write the way
// BatchUpdateQueue amortizes queue flushes.
func (s *Store) RecordDownloadOutcome(id uint, filesDownloaded, bytesDownloaded, filesFailed, filesSkipped int64) error {
	if filesDownloaded == 0 && bytesDownloaded == 0 && filesFailed == 0 && filesSkipped == 0 {
		return nil
	}
	return s.db.Exec(
		`UPDATE download_sessions SET
			files_downloaded = files_downloaded + ?,
			bytes_downloaded = bytes_downloaded + ?,
			files_failed = files_failed + ?,
			files_skipped = files_skipped + ?
		WHERE id = ?`,
		filesDownloaded, bytesDownloaded, filesFailed, filesSkipped, id,
	).Error
}

// EndDownloadSession stamps EndedAt, closing the session's audit window.
func (s *Store) EndDownloadSession(id uint) error {
	now := time.Now()
	return s.db.Model(&DownloadSession{}).Where("id = ?", id).Update("ended_at", &now).Error
}
