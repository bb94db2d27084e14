package events

import (
	"testing"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBroadcastsToAllSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(&Event{Type: ResourceAllocated, Resource: &clustertypes.Resource{ResourceId: "r1"}})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case e := <-sub:
			assert.Equal(t, ResourceAllocated, e.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(&Event{Type: ContainerStopped})
	_, ok := <-sub
	assert.False(t, ok, "unsubscribed channel should be closed, not receive")
}

func TestBusSinkPublishesEventsForEveryCallback(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	sink := NewBusSink(bus)

	sink.OnResourceAllocated(&clustertypes.Resource{ResourceId: "r1"})
	require.Equal(t, ResourceAllocated, mustRecv(t, sub).Type)

	sink.OnContainerStopped("0", "r1", "h1", clustertypes.ExitPreempted)
	e := mustRecv(t, sub)
	assert.Equal(t, ContainerStopped, e.Type)
	assert.Equal(t, clustertypes.ExitPreempted, e.ExitStatus)

	sink.OnContainerLaunchFailed("0", "r1")
	assert.Equal(t, ContainerLaunchFailed, mustRecv(t, sub).Type)

	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now())
	sink.OnResourceRequestExpired("0", req, nil)
	e = mustRecv(t, sub)
	assert.Equal(t, RequestExpired, e.Type)
	assert.Same(t, req, e.Request)
}

func mustRecv(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
