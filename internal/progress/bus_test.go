package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(4)
	defer unsubscribe()

	b.Publish(Event{Kind: KindFacetUpdate, FacetID: "f1", FacetStatus: "completed"})

	select {
	case e := <-ch:
		assert.Equal(t, KindFacetUpdate, e.Kind)
		assert.Equal(t, "f1", e.FacetID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New()
	b.Publish(Event{Kind: KindSessionUpdate, SessionName: "batch-1"})
}

func TestBus_NilBusPublishIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindPageDownloaded})
}

func TestBus_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(1)
	defer unsubscribe()

	b.Publish(Event{Kind: KindQueueItemDone, ReferenceID: "a"})
	b.Publish(Event{Kind: KindQueueItemDone, ReferenceID: "b"})

	e := <-ch
	assert.Equal(t, "a", e.ReferenceID)

	select {
	case <-ch:
		t.Fatal("expected the second event to have been dropped")
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe(1)
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}
