// Package store is the durable State Store (spec.md §4.3, component C): a
// single embedded gorm/sqlite database with a small set of atomic
// operations over periodicals, search facets, discovery sessions, pages,
// and the download queue. Generalized from the teacher's
// backend/internal/models + repository packages (which persisted
// Document/Image) to this spec's five entities.
package store

import "time"

// Periodical mirrors spec.md §3's Periodical entity.
type Periodical struct {
	LCCN      string `gorm:"primaryKey;size:32"`
	Title     string `gorm:"size:500"`
	State     string `gorm:"size:100;index"`
	City      string `gorm:"size:255"`
	StartYear string `gorm:"size:10"`
	EndYear   string `gorm:"size:10"`
	Frequency string `gorm:"size:100"`
	Language  string `gorm:"size:100"`
	Subject   string `gorm:"size:255"`
	URL       string `gorm:"size:500"`

	TotalIssues       int `gorm:"default:0"`
	IssuesDiscovered  int `gorm:"default:0"`
	IssuesDownloaded  int `gorm:"default:0"`

	DiscoveryComplete bool `gorm:"default:false"`
	DownloadComplete  bool `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FacetType enumerates SearchFacet.FacetType.
type FacetType string

const (
	FacetDateRange FacetType = "date_range"
	FacetState     FacetType = "state"
	FacetCombined  FacetType = "combined"
)

// FacetStatus enumerates the SearchFacet state machine of spec.md §4.4.2.
type FacetStatus string

const (
	FacetPending         FacetStatus = "pending"
	FacetDiscovering     FacetStatus = "discovering"
	FacetCompleted       FacetStatus = "completed"
	FacetError           FacetStatus = "error"
	FacetCaptchaRetry    FacetStatus = "captcha_retry"
	FacetCaptchaBlocked  FacetStatus = "captcha_blocked"
	FacetNeedsSplitting  FacetStatus = "needs_splitting"
	FacetSplitCompleted  FacetStatus = "split_completed"
)

// SearchFacet mirrors spec.md §3's SearchFacet entity.
type SearchFacet struct {
	ID          string `gorm:"primaryKey;size:36"`
	FacetType   FacetType `gorm:"size:20;index:idx_facet_unique,unique;not null"`
	FacetValue  string    `gorm:"size:255;index:idx_facet_unique,unique;not null"`
	Query       string    `gorm:"size:500;index:idx_facet_unique,unique"`

	EstimatedItems   int `gorm:"default:0"`
	ActualItems      int `gorm:"default:0"`
	ItemsDiscovered  int `gorm:"default:0"`
	ItemsDownloaded  int `gorm:"default:0"`

	CurrentPage     int `gorm:"default:0"`
	LastBatchSize   int `gorm:"default:0"`
	ResumeFromPage  int `gorm:"default:1"`

	MaxItems int `gorm:"default:0"` // 0 = unbounded

	Priority int `gorm:"default:5"`

	Status       FacetStatus `gorm:"size:20;index;not null;default:pending"`
	ErrorMessage string      `gorm:"size:1000"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionStatus enumerates DiscoverySession.Status.
type SessionStatus string

const (
	SessionActive        SessionStatus = "active"
	SessionCaptchaBlocked SessionStatus = "captcha_blocked"
	SessionCompleted     SessionStatus = "completed"
)

// DiscoverySession mirrors spec.md §3's DiscoverySession entity.
type DiscoverySession struct {
	ID                    uint   `gorm:"primaryKey"`
	SessionName           string `gorm:"size:255;uniqueIndex;not null"`
	TotalBatches          int    `gorm:"default:0"`
	CurrentBatchIndex     int    `gorm:"default:0"`
	CurrentBatchName      string `gorm:"size:255"`
	TotalIssuesInBatch    int    `gorm:"default:0"`
	CurrentIssueIndex     int    `gorm:"default:0"`
	TotalPagesDiscovered  int    `gorm:"default:0"`
	TotalPagesEnqueued    int    `gorm:"default:0"`
	AutoEnqueue           bool   `gorm:"default:true"`

	Status SessionStatus `gorm:"size:20;index;not null;default:active"`

	StartedAt time.Time
	UpdatedAt time.Time
}

// Page mirrors spec.md §3's Page entity.
type Page struct {
	ItemID   string `gorm:"primaryKey;size:255"`
	LCCN     string `gorm:"size:32;index"`
	Title    string `gorm:"size:500"`
	Date     string `gorm:"size:10;index"`
	Edition  int
	Sequence int

	// FacetID records which SearchFacet discovered this page, when
	// discovered via facet-mode (empty for batch-mode pages). It lets a
	// `facet` QueueItem (spec.md §4.5 "Processing a `facet` item") find
	// its constituent pages without a join table.
	FacetID string `gorm:"size:36;index"`

	PageURL string `gorm:"size:500"`
	PDFUrl  string `gorm:"size:500"`
	JP2Url  string `gorm:"size:500"`
	OCRUrl  string `gorm:"size:500"`

	OCRText   string `gorm:"type:text"`
	WordCount int

	Downloaded bool `gorm:"index;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueType enumerates QueueItem.QueueType.
type QueueType string

const (
	QueuePage       QueueType = "page"
	QueueFacet      QueueType = "facet"
	QueuePeriodical QueueType = "periodical"
)

// QueueStatus enumerates QueueItem.Status.
type QueueStatus string

const (
	QueueQueued    QueueStatus = "queued"
	QueueActive    QueueStatus = "active"
	QueuePaused    QueueStatus = "paused"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
)

// QueueItem mirrors spec.md §3's QueueItem entity.
type QueueItem struct {
	ID          string    `gorm:"primaryKey;size:36"`
	QueueType   QueueType `gorm:"size:20;index:idx_queue_inflight;not null"`
	ReferenceID string    `gorm:"size:255;index:idx_queue_inflight;not null"`

	Priority           int `gorm:"index;default:5"`
	EstimatedSizeMB    float64
	EstimatedTimeHours float64
	ProgressPercent    float64

	Status       QueueStatus `gorm:"size:20;index;not null;default:queued"`
	ErrorMessage string      `gorm:"size:1000"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// DownloadSession records one invocation of the Download Engine, a
// supplement drawn from original_source/src/newsagger/downloader.py's
// session bookkeeping (see SPEC_FULL.md's Supplemented Features #3) and
// named in spec.md §6's schema table.
type DownloadSession struct {
	ID                uint `gorm:"primaryKey"`
	Scope             string `gorm:"size:255"` // free text; the Download Engine writes "queue"
	StartedAt         time.Time
	EndedAt           *time.Time
	FilesDownloaded   int64
	BytesDownloaded   int64
	FilesFailed       int64
	FilesSkipped      int64
}
