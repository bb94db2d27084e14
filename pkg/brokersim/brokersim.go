// Package brokersim is a deterministic, in-memory Broker for tests and
// local runs: Launch/Stop/Release complete synchronously against an
// events.Bus instead of talking to a real cluster resource manager,
// standing in for the external broker an actual deployment would wire
// in.
package brokersim

import (
	"fmt"
	"sync"

	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/events"
	"github.com/google/uuid"
)

// Broker is a fake broker.Broker. Launch succeeds unless the resource id
// has been pre-loaded into FailLaunch; Stop and Release always succeed
// and record the call for assertions.
type Broker struct {
	mu sync.Mutex

	bus *events.Bus

	FailLaunch map[clustertypes.ResourceId]bool

	Launched []Launch
	Stopped  []*clustertypes.Resource
	Released []*clustertypes.Resource
}

// Launch records one Broker.Launch call.
type Launch struct {
	Resource *clustertypes.Resource
	Spec     broker.LaunchSpec
}

var _ broker.Broker = (*Broker)(nil)

// New creates a Broker that publishes callbacks onto bus. bus may be nil
// if the test only inspects the recorded call slices.
func New(bus *events.Bus) *Broker {
	return &Broker{
		bus:        bus,
		FailLaunch: make(map[clustertypes.ResourceId]bool),
	}
}

// Launch implements broker.Broker. If res.ResourceId is marked in
// FailLaunch it publishes a ContainerLaunchFailed event instead of
// succeeding, mirroring an asynchronous broker rejection.
func (b *Broker) Launch(res *clustertypes.Resource, spec broker.LaunchSpec) error {
	b.mu.Lock()
	b.Launched = append(b.Launched, Launch{Resource: res, Spec: spec})
	fail := b.FailLaunch[res.ResourceId]
	b.mu.Unlock()

	if fail {
		b.publish(&events.Event{
			Type:       events.ContainerLaunchFailed,
			ResourceId: res.ResourceId,
		})
		return fmt.Errorf("brokersim: launch failed for resource %s", res.ResourceId)
	}
	return nil
}

// Stop implements broker.Broker.
func (b *Broker) Stop(res *clustertypes.Resource) error {
	b.mu.Lock()
	b.Stopped = append(b.Stopped, res)
	b.mu.Unlock()
	return nil
}

// Release implements broker.Broker.
func (b *Broker) Release(res *clustertypes.Resource) error {
	b.mu.Lock()
	b.Released = append(b.Released, res)
	b.mu.Unlock()
	return nil
}

// SimulateStop publishes a ContainerStopped event as if the broker had
// observed the processor exit, the way a real broker's callback thread
// would.
func (b *Broker) SimulateStop(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId, host clustertypes.Host, exitStatus clustertypes.ExitStatus) {
	b.publish(&events.Event{
		Type:        events.ContainerStopped,
		ProcessorId: processorId,
		ResourceId:  resourceId,
		Host:        host,
		ExitStatus:  exitStatus,
	})
}

// SimulateAllocation publishes a ResourceAllocated event as if the broker
// had just handed back res.
func (b *Broker) SimulateAllocation(res *clustertypes.Resource) {
	b.publish(&events.Event{
		Type:     events.ResourceAllocated,
		Resource: res,
	})
}

// AllocateResource mints a new Resource on host with a fresh id and
// simulates the broker handing it back, for tests that don't care what
// the resulting id is.
func (b *Broker) AllocateResource(host clustertypes.Host, cpuCores float64, memoryMb int64) *clustertypes.Resource {
	res := &clustertypes.Resource{
		ResourceId: clustertypes.ResourceId(uuid.NewString()),
		Host:       host,
		CPUCores:   cpuCores,
		MemoryMb:   memoryMb,
	}
	b.SimulateAllocation(res)
	return res
}

func (b *Broker) publish(e *events.Event) {
	if b.bus != nil {
		b.bus.Publish(e)
	}
}
