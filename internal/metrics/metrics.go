// Package metrics exposes prometheus collectors fed by the progress event
// bus (internal/progress), grounded on the package-level promauto.NewCounterVec
// pattern of estuary-flow's go/network/metrics.go. internal/statusapi
// registers the default registry's handler at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jakalope/newsagger-go/internal/progress"
)

var facetTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsagger_facet_transitions_total",
	Help: "counter of SearchFacet status transitions observed by the Discovery Engine",
}, []string{"status"})

var sessionUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsagger_session_updates_total",
	Help: "counter of DiscoverySession updates observed by the Discovery Engine",
}, []string{"session"})

var queueItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsagger_queue_items_total",
	Help: "counter of QueueItems that finished processing, by outcome",
}, []string{"outcome"})

var pagesDownloadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "newsagger_pages_downloaded_total",
	Help: "counter of Pages whose artifacts were fetched to disk",
}, []string{"outcome"})

var bytesDownloadedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "newsagger_bytes_downloaded_total",
	Help: "total bytes written to disk by the Download Engine",
})

var captchaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "newsagger_captcha_blocks_total",
	Help: "counter of global CAPTCHA cooldowns triggered",
})

// Subscribe starts a goroutine that drains bus and updates the package's
// collectors until the returned stop func is called; it is the sole
// observer wired into cmd/harvester by default,
// per spec.md §9's "any observer... subscribes" guidance — the engines
// never import this package directly.
func Subscribe(bus *progress.Bus) (stop func()) {
	ch, unsubscribe := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			record(e)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func record(e progress.Event) {
	switch e.Kind {
	case progress.KindFacetUpdate:
		facetTransitionsTotal.WithLabelValues(e.FacetStatus).Inc()
	case progress.KindSessionUpdate:
		sessionUpdatesTotal.WithLabelValues(e.SessionName).Inc()
	case progress.KindQueueItemDone:
		outcome := "success"
		if !e.Success {
			outcome = "failure"
		}
		queueItemsTotal.WithLabelValues(outcome).Inc()
	case progress.KindPageDownloaded:
		outcome := "success"
		if !e.Success {
			outcome = "failure"
		}
		pagesDownloadedTotal.WithLabelValues(outcome).Inc()
		bytesDownloadedTotal.Add(float64(e.Bytes))
	case progress.KindCaptchaBlocked:
		captchaBlocksTotal.Inc()
	}
}
