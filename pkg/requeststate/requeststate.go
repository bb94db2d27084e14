// Package requeststate is the thread-safe registry of outstanding
// resource requests and the resources the broker has handed back for
// them. A single internal lock protects the request queue and the
// per-host resource index.
package requeststate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustermetrics"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// State holds every pending ResourceRequest and every Resource the broker
// has allocated but which has not yet been consumed by a launch.
type State struct {
	mu        sync.Mutex
	broker    broker.Broker
	requests  []*clustertypes.ResourceRequest
	byHost    map[clustertypes.Host][]*clustertypes.Resource
	anyHostIx []*clustertypes.Resource // every resource, regardless of host, in arrival order
}

// New creates an empty request state backed by b for release calls.
func New(b broker.Broker) *State {
	return &State{
		broker: b,
		byHost: make(map[clustertypes.Host][]*clustertypes.Resource),
	}
}

// AddRequest enqueues r, ordered by RequestTimestamp with ties broken by
// insertion order (ResourceRequest.ID is monotonically assigned).
func (s *State) AddRequest(r *clustertypes.ResourceRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
	sort.SliceStable(s.requests, func(i, j int) bool {
		if s.requests[i].RequestTimestamp.Equal(s.requests[j].RequestTimestamp) {
			return s.requests[i].ID() < s.requests[j].ID()
		}
		return s.requests[i].RequestTimestamp.Before(s.requests[j].RequestTimestamp)
	})
}

// PeekReadyRequest returns the earliest request whose RequestTimestamp has
// arrived as of now, without removing it. Returns nil if none are ready.
func (s *State) PeekReadyRequest(now time.Time) *clustertypes.ResourceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.Ready(now) {
			return r
		}
	}
	return nil
}

// PendingRequests returns a snapshot of every request currently queued,
// ready or not, ordered the same way PeekReadyRequest walks them.
func (s *State) PendingRequests() []*clustertypes.ResourceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*clustertypes.ResourceRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Len returns the number of outstanding requests.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Contains reports whether r is still present in the queue.
func (s *State) Contains(r *clustertypes.ResourceRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.requests {
		if q.ID() == r.ID() {
			return true
		}
	}
	return false
}

// AddResource records an allocation from the broker, indexed both under
// its own host and under the shared any-host index.
func (s *State) AddResource(res *clustertypes.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHost[res.Host] = append(s.byHost[res.Host], res)
	s.anyHostIx = append(s.anyHostIx, res)
}

// PeekResource returns, without removing, the first resource available on
// host. Pass clustertypes.AnyHost to get the first resource on any host.
func (s *State) PeekResource(host clustertypes.Host) *clustertypes.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if host == clustertypes.AnyHost {
		if len(s.anyHostIx) == 0 {
			return nil
		}
		return s.anyHostIx[0]
	}
	bucket := s.byHost[host]
	if len(bucket) == 0 {
		return nil
	}
	return bucket[0]
}

// UpdateStateAfterAssignment atomically removes req from the request set
// and res from the allocated-on-host set, and increments the
// requests-satisfied counter. Callers must have already validated
// res.Host against req.PreferredHost.
func (s *State) UpdateStateAfterAssignment(req *clustertypes.ResourceRequest, host clustertypes.Host, res *clustertypes.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRequestLocked(req)
	s.removeResourceLocked(res)
	clustermetrics.RequestsSatisfied.Inc()
}

// ReleaseResource tells the broker to release res and removes it from the
// allocated index.
func (s *State) ReleaseResource(res *clustertypes.Resource) error {
	s.mu.Lock()
	s.removeResourceLocked(res)
	s.mu.Unlock()
	clustermetrics.ResourcesReleased.Inc()
	return s.broker.Release(res)
}

// ReleaseUnstartableContainer is like ReleaseResource but documents the
// caller's intent: the resource was matched to preferredHost and found
// unusable. It first returns an error, without releasing anything, when
// res is not on preferredHost (unless preferredHost is AnyHost);
// otherwise it behaves exactly like ReleaseResource and re-balances the
// same per-host index.
func (s *State) ReleaseUnstartableContainer(res *clustertypes.Resource, preferredHost clustertypes.Host) error {
	if res.Host != preferredHost && preferredHost != clustertypes.AnyHost {
		return fmt.Errorf("requeststate: resource %s on host %s does not match preferred host %s", res.ResourceId, res.Host, preferredHost)
	}
	return s.ReleaseResource(res)
}

// CancelResourceRequest removes req from the queue if still present. It
// is a no-op if the request was already consumed by
// UpdateStateAfterAssignment.
func (s *State) CancelResourceRequest(req *clustertypes.ResourceRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRequestLocked(req)
}

// ReleaseExtraResources releases resources allocated beyond what any
// pending request can use: resources on a host no request prefers, then
// (if still oversubscribed) the remaining any-host surplus.
func (s *State) ReleaseExtraResources() {
	s.mu.Lock()
	preferredHosts := make(map[clustertypes.Host]int)
	anyHostRequests := 0
	for _, r := range s.requests {
		if r.PreferredHost == clustertypes.AnyHost {
			anyHostRequests++
		} else {
			preferredHosts[r.PreferredHost]++
		}
	}

	var toRelease []*clustertypes.Resource
	for host, resources := range s.byHost {
		if host == clustertypes.AnyHost {
			continue
		}
		if preferredHosts[host] == 0 {
			toRelease = append(toRelease, resources...)
		}
	}
	for _, res := range toRelease {
		s.removeResourceLocked(res)
	}

	totalResources := len(s.anyHostIx)
	totalRequests := len(s.requests)
	var surplusRelease []*clustertypes.Resource
	if totalResources > totalRequests {
		surplus := totalResources - totalRequests
		for _, res := range s.anyHostIx {
			if surplus == 0 {
				break
			}
			if preferredHosts[res.Host] > 0 {
				continue // still needed by a host-specific request
			}
			surplusRelease = append(surplusRelease, res)
			surplus--
		}
		for _, res := range surplusRelease {
			s.removeResourceLocked(res)
		}
	}
	s.mu.Unlock()

	for _, res := range toRelease {
		clustermetrics.ResourcesReleasedExtra.Inc()
		_ = s.broker.Release(res)
	}
	for _, res := range surplusRelease {
		clustermetrics.ResourcesReleasedExtra.Inc()
		_ = s.broker.Release(res)
	}
}

// removeRequestLocked must be called with mu held.
func (s *State) removeRequestLocked(req *clustertypes.ResourceRequest) {
	for i, r := range s.requests {
		if r.ID() == req.ID() {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			return
		}
	}
}

// removeResourceLocked must be called with mu held.
func (s *State) removeResourceLocked(res *clustertypes.Resource) {
	if bucket, ok := s.byHost[res.Host]; ok {
		for i, r := range bucket {
			if r.ResourceId == res.ResourceId {
				s.byHost[res.Host] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
	}
	for i, r := range s.anyHostIx {
		if r.ResourceId == res.ResourceId {
			s.anyHostIx = append(s.anyHostIx[:i], s.anyHostIx[i+1:]...)
			break
		}
	}
}
