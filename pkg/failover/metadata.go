package failover

import (
	"sync"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// Metadata is the per-failed-active-resource failover bookkeeping record.
// Each instance guards its own mutable fields with its own lock so
// concurrent broker-callback threads can record requests and standby
// selections without contending on the failover table's lock.
type Metadata struct {
	mu sync.Mutex

	activeProcessorId clustertypes.ProcessorId
	activeResourceId  clustertypes.ResourceId

	// selectedStandbys is append-only within one failover:
	// standbyResourceId -> host.
	selectedStandbys map[clustertypes.ResourceId]clustertypes.Host
	resourceRequests map[uint64]*clustertypes.ResourceRequest

	lastMutated time.Time
}

func newMetadata(activeProcessorId clustertypes.ProcessorId, activeResourceId clustertypes.ResourceId) *Metadata {
	return &Metadata{
		activeProcessorId: activeProcessorId,
		activeResourceId:  activeResourceId,
		selectedStandbys:  make(map[clustertypes.ResourceId]clustertypes.Host),
		resourceRequests:  make(map[uint64]*clustertypes.ResourceRequest),
		lastMutated:       time.Now(),
	}
}

// ActiveProcessorId returns the active processor this metadata tracks.
// Set once at construction; safe to read without the lock.
func (m *Metadata) ActiveProcessorId() clustertypes.ProcessorId {
	return m.activeProcessorId
}

// ActiveResourceId returns the dead active resource id this metadata is
// keyed by. Set once at construction; safe to read without the lock.
func (m *Metadata) ActiveResourceId() clustertypes.ResourceId {
	return m.activeResourceId
}

// RecordResourceRequest adds r to this failover's request set. Callers
// must record the request in the metadata before placing it in the
// request state so the allocator never processes a failover-owned
// request before the coordinator can recognise it as one.
func (m *Metadata) RecordResourceRequest(r *clustertypes.ResourceRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resourceRequests[r.ID()] = r
	m.lastMutated = time.Now()
}

// RecordSelectedStandby appends a (standbyResourceId -> host) pair.
// Never removes an entry: selectedStandbys is append-only for the
// lifetime of the metadata.
func (m *Metadata) RecordSelectedStandby(resourceId clustertypes.ResourceId, host clustertypes.Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectedStandbys[resourceId] = host
	m.lastMutated = time.Now()
}

// IsStandbyResourceUsed reports whether resourceId has already been
// stopped (or targeted) in this failover attempt.
func (m *Metadata) IsStandbyResourceUsed(resourceId clustertypes.ResourceId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.selectedStandbys[resourceId]
	return ok
}

// StandbyHost returns the host recorded for resourceId, read back when a
// standby this failover stopped itself reports its stop.
func (m *Metadata) StandbyHost(resourceId clustertypes.ResourceId) (clustertypes.Host, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.selectedStandbys[resourceId]
	return h, ok
}

// IsStandbyHostUsed reports whether host has already been targeted by
// this failover, either as a stopped standby's host or as some recorded
// request's preferred host. Reads both maps under the same lock so the
// two collections are observed as a consistent pair.
func (m *Metadata) IsStandbyHostUsed(host clustertypes.Host) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.selectedStandbys {
		if h == host {
			return true
		}
	}
	for _, r := range m.resourceRequests {
		if r.PreferredHost == host {
			return true
		}
	}
	return false
}

// ContainsResourceRequest reports whether r was recorded against this
// failover.
func (m *Metadata) ContainsResourceRequest(r *clustertypes.ResourceRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.resourceRequests[r.ID()]
	return ok
}

// LastMutated returns the time of the most recent Record* call, used by
// the eviction sweep to judge staleness.
func (m *Metadata) LastMutated() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMutated
}
