package allocator

import (
	"testing"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/brokersim"
	"github.com/ferozmbasheer/clustercore/pkg/clustererr"
	"github.com/ferozmbasheer/clustercore/pkg/clusterstate"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/events"
	"github.com/ferozmbasheer/clustercore/pkg/jobmodel"
	"github.com/ferozmbasheer/clustercore/pkg/launchspec"
	"github.com/ferozmbasheer/clustercore/pkg/requeststate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	ranRequests   []*clustertypes.ResourceRequest
	expired       []*clustertypes.ResourceRequest
	evictedAfter  time.Duration
}

func (f *fakeCoordinator) CheckStandbyConstraintsAndRun(req *clustertypes.ResourceRequest, preferredHost clustertypes.Host, res *clustertypes.Resource) {
	f.ranRequests = append(f.ranRequests, req)
}

func (f *fakeCoordinator) HandleExpiredResourceRequest(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource) {
	f.expired = append(f.expired, request)
}

func (f *fakeCoordinator) EvictStale(maxAge time.Duration) {
	f.evictedAfter = maxAge
}

func newTestAllocator(t *testing.T, policy Policy, coord Coordinator) (*Allocator, *requeststate.State, *brokersim.Broker) {
	t.Helper()
	br := brokersim.New(nil)
	state := requeststate.New(br)
	cluster := clusterstate.New()
	jm := jobmodel.NewStatic([]clustertypes.ProcessorId{"0"}, nil, "http://jobmodel")
	bus := events.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	cfg := Config{
		SleepInterval:       time.Hour,
		PreferredHostExpiry: 5 * time.Millisecond,
		CommandBuilder:      "shell",
	}
	a, err := New(cfg, state, cluster, br, jm, coord, bus, policy, zerolog.Nop())
	require.NoError(t, err)
	return a, state, br
}

func TestRunProcessorRejectsMissingResource(t *testing.T) {
	a, state, _ := newTestAllocator(t, AnyHostPolicy{}, &fakeCoordinator{})
	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now())
	state.AddRequest(req)

	err := a.RunProcessor(req, "h1")
	var precond *clustererr.PreconditionError
	assert.ErrorAs(t, err, &precond)
}

func TestRunProcessorRejectsHostMismatch(t *testing.T) {
	a, state, _ := newTestAllocator(t, AnyHostPolicy{}, &fakeCoordinator{})
	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now())
	state.AddRequest(req)
	state.AddResource(&clustertypes.Resource{ResourceId: "r1", Host: "h2"})

	err := a.RunProcessor(req, "h1")
	var precond *clustererr.PreconditionError
	assert.ErrorAs(t, err, &precond)
}

func TestRunProcessorLaunchesAndMarksPending(t *testing.T) {
	a, state, br := newTestAllocator(t, AnyHostPolicy{}, &fakeCoordinator{})
	req := clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now())
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	state.AddRequest(req)
	state.AddResource(res)

	err := a.RunProcessor(req, clustertypes.AnyHost)
	require.NoError(t, err)

	require.Len(t, br.Launched, 1)
	assert.True(t, a.cluster.IsPending("0"))
	assert.False(t, state.Contains(req))
}

func TestAnyHostPolicyAssignsWhenResourceAvailable(t *testing.T) {
	a, state, br := newTestAllocator(t, AnyHostPolicy{}, &fakeCoordinator{})
	req := clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now())
	res := &clustertypes.Resource{ResourceId: "r1", Host: "h1"}
	state.AddRequest(req)
	state.AddResource(res)

	a.assignResourceRequests()

	require.Len(t, br.Launched, 1)
}

func TestAnyHostPolicyNoopWithoutResource(t *testing.T) {
	a, state, br := newTestAllocator(t, AnyHostPolicy{}, &fakeCoordinator{})
	req := clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now())
	state.AddRequest(req)

	a.assignResourceRequests()

	assert.Empty(t, br.Launched)
}

func TestHostAwarePolicyRoutesThroughCoordinatorOnPreferredHostMatch(t *testing.T) {
	coord := &fakeCoordinator{}
	a, state, _ := newTestAllocator(t, HostAwarePolicy{}, coord)
	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now())
	state.AddRequest(req)
	state.AddResource(&clustertypes.Resource{ResourceId: "r1", Host: "h1"})

	a.assignResourceRequests()

	require.Len(t, coord.ranRequests, 1)
	assert.Same(t, req, coord.ranRequests[0])
}

func TestHostAwarePolicyRoutesThroughCoordinatorOnAnyHostMatch(t *testing.T) {
	coord := &fakeCoordinator{}
	a, state, _ := newTestAllocator(t, HostAwarePolicy{}, coord)
	req := clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now())
	state.AddRequest(req)
	state.AddResource(&clustertypes.Resource{ResourceId: "r1", Host: "h1"})

	a.assignResourceRequests()

	require.Len(t, coord.ranRequests, 1)
}

func TestHostAwarePolicyEscalatesExpiredPreferredHostRequest(t *testing.T) {
	coord := &fakeCoordinator{}
	a, state, _ := newTestAllocator(t, HostAwarePolicy{}, coord)
	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now().Add(-time.Hour))
	state.AddRequest(req)
	// No resource on h1, so the preferred-host branch falls through to
	// expiry once PreferredHostExpiry has elapsed.

	a.assignResourceRequests()

	require.Len(t, coord.expired, 1)
	assert.Same(t, req, coord.expired[0])
}

func TestHostAwarePolicyDefersBeforeExpiry(t *testing.T) {
	coord := &fakeCoordinator{}
	a, state, _ := newTestAllocator(t, HostAwarePolicy{}, coord)
	a.cfg.PreferredHostExpiry = time.Hour
	req := clustertypes.NewResourceRequest("0", "h1", 1, 512, time.Now())
	state.AddRequest(req)

	a.assignResourceRequests()

	assert.Empty(t, coord.expired)
	assert.Empty(t, coord.ranRequests)
}

func TestRunCycleInvokesEvictStale(t *testing.T) {
	coord := &fakeCoordinator{}
	a, _, _ := newTestAllocator(t, AnyHostPolicy{}, coord)
	a.cfg.FailoverEvictAge = 42 * time.Minute

	a.runCycle()

	assert.Equal(t, 42*time.Minute, coord.evictedAfter)
}

func TestRunCycleRecoversFromOrdinaryPanic(t *testing.T) {
	a, state, _ := newTestAllocator(t, panicPolicy{}, &fakeCoordinator{})
	state.AddRequest(clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now()))
	state.AddResource(&clustertypes.Resource{ResourceId: "r1", Host: "h1"})

	assert.NotPanics(t, func() { a.runCycle() })
}

func TestRunCycleRepanicsOnInvariantError(t *testing.T) {
	a, state, _ := newTestAllocator(t, invariantPanicPolicy{}, &fakeCoordinator{})
	state.AddRequest(clustertypes.NewResourceRequest("0", clustertypes.AnyHost, 1, 512, time.Now()))
	state.AddResource(&clustertypes.Resource{ResourceId: "r1", Host: "h1"})

	assert.Panics(t, func() { a.runCycle() })
}

type panicPolicy struct{}

func (panicPolicy) Assign(a *Allocator, req *clustertypes.ResourceRequest) {
	panic("ordinary failure")
}

type invariantPanicPolicy struct{}

func (invariantPanicPolicy) Assign(a *Allocator, req *clustertypes.ResourceRequest) {
	panic(clustererr.NewInvariant("family co-location violated"))
}

var _ launchspec.Builder = launchspec.ShellBuilder{}
