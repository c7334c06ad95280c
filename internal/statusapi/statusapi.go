// Package statusapi is the read-only operator status endpoint named in
// spec.md §9's progress-observer guidance and SPEC_FULL.md's ambient
// "observability surface": a gin server reporting DiscoverySession and
// SearchFacet state, download queue depth, and a /metrics scrape point.
// It is adapted from the teacher's backend/internal/handlers.Handlers and
// backend/cmd/server/main.go (gin.New + Recovery + CORS + an /api route
// group), repurposed from serving Documents/Images to serving this
// system's harvesting state. It is distinct from the interactive
// dashboard spec.md names as out of scope — this is a thin JSON surface
// for curl/Prometheus, not a UI.
package statusapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jakalope/newsagger-go/internal/ratelimit"
	"github.com/jakalope/newsagger-go/internal/store"
)

// gateStatuser is the narrow view of the Rate Gate this package reads.
type gateStatuser interface {
	Status() ratelimit.Status
}

// Handlers holds the dependencies every route reads from. It mirrors the
// teacher's Handlers{repo} shape with the State Store standing in for
// the teacher's repository.Repository.
type Handlers struct {
	st   *store.Store
	gate gateStatuser
}

// New constructs Handlers. gate may be nil if the caller doesn't want
// gate status exposed (e.g. a recovery-only deployment).
func New(st *store.Store, gate gateStatuser) *Handlers {
	return &Handlers{st: st, gate: gate}
}

// Health reports liveness, per the teacher's Handlers.Health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "newsagger"})
}

// Stats reports aggregate counts across facets, sessions, pages, and the
// download queue, grouped by status — the operator's one-call overview.
func (h *Handlers) Stats(c *gin.Context) {
	var facetCounts []statusCount
	if err := h.st.DB().Model(&store.SearchFacet{}).
		Select("status, count(*) as count").Group("status").Scan(&facetCounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var queueCounts []statusCount
	if err := h.st.DB().Model(&store.QueueItem{}).
		Select("status, count(*) as count").Group("status").Scan(&queueCounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var totalPages, downloadedPages int64
	if err := h.st.DB().Model(&store.Page{}).Count(&totalPages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.st.DB().Model(&store.Page{}).Where("downloaded = ?", true).Count(&downloadedPages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{
		"facets_by_status": facetCounts,
		"queue_by_status":  queueCounts,
		"pages_total":      totalPages,
		"pages_downloaded": downloadedPages,
	}
	if h.gate != nil {
		resp["gate"] = h.gate.Status()
	}
	c.JSON(http.StatusOK, resp)
}

type statusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// Sessions lists all DiscoverySessions, newest first.
func (h *Handlers) Sessions(c *gin.Context) {
	var sessions []store.DiscoverySession
	if err := h.st.DB().Order("started_at desc").Find(&sessions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// SessionByName returns one DiscoverySession by its session_name.
func (h *Handlers) SessionByName(c *gin.Context) {
	sess, err := h.st.GetDiscoverySession(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// Facets lists SearchFacets, optionally filtered by ?status=.
func (h *Handlers) Facets(c *gin.Context) {
	if status := c.Query("status"); status != "" {
		facets, err := h.st.ListFacetsByStatus(store.FacetStatus(status))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, facets)
		return
	}
	facets, err := h.st.ListAllFacets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, facets)
}

// FacetByID returns one SearchFacet.
func (h *Handlers) FacetByID(c *gin.Context) {
	f, err := h.st.GetFacet(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "facet not found"})
		return
	}
	c.JSON(http.StatusOK, f)
}

// Queue reports the download queue, optionally filtered by ?status= and
// bounded by ?limit= (default 100, matching the teacher's GetImages cap
// pattern of clamping an operator-supplied limit).
func (h *Handlers) Queue(c *gin.Context) {
	limit := getIntParam(c, "limit", 100)
	if limit > 500 {
		limit = 500
	}

	var statusFilter *store.QueueStatus
	if s := c.Query("status"); s != "" {
		qs := store.QueueStatus(s)
		statusFilter = &qs
	}

	items, err := h.st.GetDownloadQueue(statusFilter, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func getIntParam(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(val, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}

// NewRouter builds the gin engine: Recovery, CORS, an /api route group,
// and a bare /metrics scrape endpoint — the same top-level shape as the
// teacher's backend/cmd/server/main.go, generalized to this package's
// handlers.
func NewRouter(h *Handlers, corsOrigins []string, logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "statusapi")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginLoggerMiddleware(log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/stats", h.Stats)
		api.GET("/sessions", h.Sessions)
		api.GET("/sessions/:name", h.SessionByName)
		api.GET("/facets", h.Facets)
		api.GET("/facets/:id", h.FacetByID)
		api.GET("/queue", h.Queue)
	}
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginLoggerMiddleware(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Info("request")
	}
}
