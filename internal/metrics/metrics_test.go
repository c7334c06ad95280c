package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jakalope/newsagger-go/internal/progress"
)

func TestSubscribe_RecordsFacetAndQueueEvents(t *testing.T) {
	bus := progress.New()
	stop := Subscribe(bus)

	bus.Publish(progress.Event{Kind: progress.KindFacetUpdate, FacetID: "f1", FacetStatus: "completed"})
	bus.Publish(progress.Event{Kind: progress.KindQueueItemDone, ReferenceID: "a", Success: true})
	bus.Publish(progress.Event{Kind: progress.KindQueueItemDone, ReferenceID: "b", Success: false})

	// give the subscriber goroutine a chance to drain before stopping.
	time.Sleep(20 * time.Millisecond)
	stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(facetTransitionsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(queueItemsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(queueItemsTotal.WithLabelValues("failure")))
}
