package events

import (
	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// BusSink adapts a broker.EventSink to a Bus: every callback a real
// broker adapter invokes synchronously from its own callback thread is
// republished as an Event, decoupling the allocator and coordinator
// subscribers from the broker's calling convention.
type BusSink struct {
	bus *Bus
}

// NewBusSink returns an EventSink that republishes every callback onto bus.
func NewBusSink(bus *Bus) *BusSink {
	return &BusSink{bus: bus}
}

var _ broker.EventSink = (*BusSink)(nil)

func (s *BusSink) OnResourceAllocated(resource *clustertypes.Resource) {
	s.bus.Publish(&Event{Type: ResourceAllocated, Resource: resource})
}

func (s *BusSink) OnContainerStopped(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId, host clustertypes.Host, exitStatus clustertypes.ExitStatus) {
	s.bus.Publish(&Event{
		Type:        ContainerStopped,
		ProcessorId: processorId,
		ResourceId:  resourceId,
		Host:        host,
		ExitStatus:  exitStatus,
	})
}

func (s *BusSink) OnContainerLaunchFailed(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId) {
	s.bus.Publish(&Event{
		Type:        ContainerLaunchFailed,
		ProcessorId: processorId,
		ResourceId:  resourceId,
	})
}

func (s *BusSink) OnResourceRequestExpired(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource) {
	s.bus.Publish(&Event{
		Type:        RequestExpired,
		ProcessorId: processorId,
		Request:     request,
		Alternative: alternative,
	})
}
