// Package clusterstate holds the shared, concurrently-mutated view of
// which processors are pending or running. A State value is constructed
// once and passed by reference into both the allocator and the
// coordinator; there is no module-level/global storage.
package clusterstate

import (
	"sync"

	"github.com/ferozmbasheer/clustercore/pkg/clustermetrics"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// State is the shared observable view of processor placement. Individual
// map mutations are atomic; callers must not assume a consistent
// snapshot across two reads — the coordinator is built to tolerate
// these races.
type State struct {
	mu      sync.RWMutex
	pending map[clustertypes.ProcessorId]*clustertypes.Resource
	running map[clustertypes.ProcessorId]*clustertypes.Resource
}

// New returns an empty State.
func New() *State {
	return &State{
		pending: make(map[clustertypes.ProcessorId]*clustertypes.Resource),
		running: make(map[clustertypes.ProcessorId]*clustertypes.Resource),
	}
}

// SetPending records that id has been launched on res and is awaiting
// the running callback. Must be called before the broker launch call
// returns.
func (s *State) SetPending(id clustertypes.ProcessorId, res *clustertypes.Resource) {
	s.mu.Lock()
	s.pending[id] = res
	s.mu.Unlock()
	clustermetrics.PendingProcessors.Set(float64(s.PendingCount()))
}

// PromoteToRunning moves id from pending to running. A no-op on the
// pending side if id was not recorded there (e.g. the broker's running
// callback arrived for a processor this process did not launch, such as
// after a restart).
func (s *State) PromoteToRunning(id clustertypes.ProcessorId, res *clustertypes.Resource) {
	s.mu.Lock()
	delete(s.pending, id)
	s.running[id] = res
	s.mu.Unlock()
	clustermetrics.PendingProcessors.Set(float64(s.PendingCount()))
	clustermetrics.RunningProcessors.Set(float64(s.RunningCount()))
}

// Clear removes id from both pending and running, e.g. on a stop
// callback.
func (s *State) Clear(id clustertypes.ProcessorId) {
	s.mu.Lock()
	delete(s.pending, id)
	delete(s.running, id)
	s.mu.Unlock()
	clustermetrics.PendingProcessors.Set(float64(s.PendingCount()))
	clustermetrics.RunningProcessors.Set(float64(s.RunningCount()))
}

// IsPending reports whether id is currently pending.
func (s *State) IsPending(id clustertypes.ProcessorId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pending[id]
	return ok
}

// IsRunning reports whether id is currently running.
func (s *State) IsRunning(id clustertypes.ProcessorId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.running[id]
	return ok
}

// RunningResource returns the resource id is running on, if any.
func (s *State) RunningResource(id clustertypes.ProcessorId) (*clustertypes.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.running[id]
	return res, ok
}

// PendingOrRunningOnHost reports whether id occupies host, pending or
// running.
func (s *State) PendingOrRunningOnHost(id clustertypes.ProcessorId, host clustertypes.Host) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.pending[id]; ok && res.Host == host {
		return true
	}
	if res, ok := s.running[id]; ok && res.Host == host {
		return true
	}
	return false
}

// RunningOnHost returns every currently-running processor id occupying
// host, used by initiateStandbyAwareAllocation to find the running
// standbys on the selected host.
func (s *State) RunningOnHost(host clustertypes.Host) []clustertypes.ProcessorId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []clustertypes.ProcessorId
	for id, res := range s.running {
		if res.Host == host {
			out = append(out, id)
		}
	}
	return out
}

// PendingCount returns the number of pending processors.
func (s *State) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// RunningCount returns the number of running processors.
func (s *State) RunningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.running)
}
