package allocator

import (
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/log"
)

// Policy decides, for one ready request, whether and how to place it.
// Assign is called once per request per control-loop iteration; it must
// not block.
type Policy interface {
	Assign(a *Allocator, req *clustertypes.ResourceRequest)
}

// AnyHostPolicy places every ready request on the first available
// resource regardless of host, with no constraint checking. Suitable
// for workloads with no standby-failover requirement.
type AnyHostPolicy struct{}

func (AnyHostPolicy) Assign(a *Allocator, req *clustertypes.ResourceRequest) {
	res := a.state.PeekResource(clustertypes.AnyHost)
	if res == nil {
		return
	}
	if err := a.RunProcessor(req, clustertypes.AnyHost); err != nil {
		log.WithProcessorID(a.logger, req.ProcessorId).Error().Err(err).Msg("any-host run failed")
	}
}

// HostAwarePolicy is the standby-aware placement policy: it honours a
// request's preferred host, falls through to the coordinator's expiry
// path once the preferred-host wait elapses, and routes every match
// through the coordinator's constraint check before running it.
type HostAwarePolicy struct{}

func (HostAwarePolicy) Assign(a *Allocator, req *clustertypes.ResourceRequest) {
	if req.PreferredHost != clustertypes.AnyHost {
		if res := a.state.PeekResource(req.PreferredHost); res != nil {
			a.coordinator.CheckStandbyConstraintsAndRun(req, req.PreferredHost, res)
			return
		}
		if time.Since(req.RequestTimestamp) > a.cfg.PreferredHostExpiry {
			a.coordinator.HandleExpiredResourceRequest(req.ProcessorId, req, nil)
		}
		return
	}

	if res := a.state.PeekResource(clustertypes.AnyHost); res != nil {
		a.coordinator.CheckStandbyConstraintsAndRun(req, clustertypes.AnyHost, res)
	}
}
