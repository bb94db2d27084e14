// Package jobmodel defines the external job-model/coordinator metadata
// store interface consumed by clustercore and a default in-memory
// implementation. The static map of which processors are active/standby
// siblings and their last-known hosts is this package's responsibility;
// clustercore's core treats it as read-only input.
package jobmodel

import (
	"sync"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// JobModel is the read interface the allocator and coordinator consume
// from the embedded job-model store.
type JobModel interface {
	// Containers returns every processor id known to the job model,
	// active and standby alike.
	Containers() []clustertypes.ProcessorId

	// ContainerToHost returns the last-known host for id, or
	// clustertypes.AnyHost if none is recorded.
	ContainerToHost(id clustertypes.ProcessorId) clustertypes.Host

	// ServerURL returns the job-model server URL passed to launched
	// workers.
	ServerURL() string
}

// Static is a simple in-memory JobModel seeded once at construction,
// sufficient for a single-process deployment where the job model does not
// need to survive a control-plane restart.
type Static struct {
	mu          sync.RWMutex
	containers  []clustertypes.ProcessorId
	lastHosts   map[clustertypes.ProcessorId]clustertypes.Host
	serverURL   string
}

// NewStatic builds a Static job model from containers and their last-known
// hosts (a host-less entry may simply be omitted from lastHosts).
func NewStatic(containers []clustertypes.ProcessorId, lastHosts map[clustertypes.ProcessorId]clustertypes.Host, serverURL string) *Static {
	cp := make(map[clustertypes.ProcessorId]clustertypes.Host, len(lastHosts))
	for k, v := range lastHosts {
		cp[k] = v
	}
	return &Static{
		containers: append([]clustertypes.ProcessorId(nil), containers...),
		lastHosts:  cp,
		serverURL:  serverURL,
	}
}

func (s *Static) Containers() []clustertypes.ProcessorId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]clustertypes.ProcessorId, len(s.containers))
	copy(out, s.containers)
	return out
}

func (s *Static) ContainerToHost(id clustertypes.ProcessorId) clustertypes.Host {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if h, ok := s.lastHosts[id]; ok {
		return h
	}
	return clustertypes.AnyHost
}

func (s *Static) ServerURL() string {
	return s.serverURL
}

// UpdateLastHost records a new last-known host for id, e.g. after a
// processor's placement is confirmed. Safe for concurrent use.
func (s *Static) UpdateLastHost(id clustertypes.ProcessorId, host clustertypes.Host) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHosts[id] = host
}
