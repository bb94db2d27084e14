/*
Package events provides the in-memory broker-callback bus: a lightweight,
non-blocking pub/sub channel carrying resource-allocation, container-stop,
launch-failure, and request-expiry notifications between the broker's
callback threads and the allocator/coordinator control loops.

Publish never blocks: events are queued on a buffered channel and fanned
out to every subscriber's own buffered channel by a single broadcast
goroutine. A subscriber whose buffer is full drops the event rather than
stall the broadcaster, so a slow consumer cannot back-pressure a broker
callback thread.

Usage:

	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	go func() {
		for e := range sub {
			switch e.Type {
			case events.ContainerStopped:
				// handle stop
			}
		}
	}()

	bus.Publish(&events.Event{Type: events.ContainerStopped, ProcessorId: "0"})
*/
package events
