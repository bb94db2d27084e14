// Package broker defines the interface clustercore consumes from the
// external cluster resource broker. The concrete adapter that speaks
// the actual cluster protocol is explicitly out of scope for this
// core; callers inject whatever implementation talks to their cluster.
package broker

import "github.com/ferozmbasheer/clustercore/pkg/clustertypes"

// LaunchSpec is the opaque command the command builder produces and the
// broker consumes to start a processor on a resource.
type LaunchSpec interface{}

// Broker is the asynchronous interface to the external cluster resource
// manager. Launch, Stop, and Release never block on completion; the
// outcome arrives later through an EventSink callback.
type Broker interface {
	// Launch asks the broker to start spec on resource. Asynchronous:
	// completion arrives via EventSink.OnContainerStopped (on failure
	// exit) or is inferred by the caller observing the processor
	// transition into its running set.
	Launch(resource *clustertypes.Resource, spec LaunchSpec) error

	// Stop asks the broker to terminate whatever is running on resource.
	Stop(resource *clustertypes.Resource) error

	// Release returns an allocated-but-unused resource to the broker's
	// free pool.
	Release(resource *clustertypes.Resource) error
}

// EventSink receives the broker's asynchronous callbacks. Implementations
// must not block the calling goroutine on the allocator's control loop.
type EventSink interface {
	OnResourceAllocated(resource *clustertypes.Resource)
	OnContainerStopped(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId, host clustertypes.Host, exitStatus clustertypes.ExitStatus)
	OnContainerLaunchFailed(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId)
	OnResourceRequestExpired(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource)
}
