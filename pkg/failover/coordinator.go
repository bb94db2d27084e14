// Package failover implements the standby-aware failover coordinator: the
// state machine deciding, on every container stop, launch failure,
// expired request, or constraint violation, whether to
// initiate a failover, which standby host to steal, and how to sequence
// stopping the standby with starting the active on its host: a
// mutex-guarded struct with its own zerolog logger and Prometheus counters,
// driven here by broker callback events instead of a fixed ticker.
package failover

import (
	"sync"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustererr"
	"github.com/ferozmbasheer/clustercore/pkg/clustermetrics"
	"github.com/ferozmbasheer/clustercore/pkg/clusterstate"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/constraints"
	"github.com/ferozmbasheer/clustercore/pkg/events"
	"github.com/ferozmbasheer/clustercore/pkg/jobmodel"
	"github.com/ferozmbasheer/clustercore/pkg/log"
	"github.com/ferozmbasheer/clustercore/pkg/requeststate"
	"github.com/rs/zerolog"
)

// Runner is the allocator-side handle the coordinator uses to actually
// start a processor once a placement has cleared constraint checking.
// Satisfied by *allocator.Allocator without either package importing the
// other, breaking the allocator/coordinator reference cycle.
type Runner interface {
	RunProcessor(req *clustertypes.ResourceRequest, host clustertypes.Host) error
}

// Config is the coordinator's tunable configuration: container memory,
// container CPU cores, preferred-host retry delay.
type Config struct {
	ResourceCPUCores        float64
	ResourceMemoryMb        int64
	PreferredHostRetryDelay time.Duration
}

// Coordinator is the standby failover coordinator.
type Coordinator struct {
	cfg         Config
	constraints *constraints.Table
	cluster     *clusterstate.State
	state       *requeststate.State
	broker      broker.Broker
	jobModel    jobmodel.JobModel
	runner      Runner
	bus         *events.Bus
	logger      zerolog.Logger

	mu        sync.Mutex
	failovers map[clustertypes.ResourceId]*Metadata
}

// New constructs a Coordinator. runner is typically *allocator.Allocator.
func New(cfg Config, table *constraints.Table, cluster *clusterstate.State, state *requeststate.State, br broker.Broker, jm jobmodel.JobModel, runner Runner, bus *events.Bus, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		constraints: table,
		cluster:     cluster,
		state:       state,
		broker:      br,
		jobModel:    jm,
		runner:      runner,
		bus:         bus,
		logger:      logger,
		failovers:   make(map[clustertypes.ResourceId]*Metadata),
	}
}

// Start subscribes to the broker callback bus and handles every
// container-stop, launch-failure, and request-expiry event it carries.
// This broker callback thread must never block on the allocator loop,
// which is why it runs on its own goroutine reading from a buffered
// subscriber channel.
func (c *Coordinator) Start() {
	sub := c.bus.Subscribe()
	go c.consumeEvents(sub)
}

func (c *Coordinator) consumeEvents(sub events.Subscriber) {
	for e := range sub {
		switch e.Type {
		case events.ContainerStopped:
			c.HandleContainerStop(e.ProcessorId, e.ResourceId, e.Host, e.ExitStatus)
		case events.ContainerLaunchFailed:
			c.HandleContainerLaunchFail(e.ProcessorId, e.ResourceId)
		case events.RequestExpired:
			c.HandleExpiredResourceRequest(e.ProcessorId, e.Request, e.Alternative)
		}
	}
}

// RegisterActiveContainerFailure returns the FailoverMetadata for
// activeResourceId, creating it on first use. A second call for the
// same activeResourceId returns the same instance without duplicating
// records.
func (c *Coordinator) RegisterActiveContainerFailure(activeProcessorId clustertypes.ProcessorId, activeResourceId clustertypes.ResourceId) *Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fm, ok := c.failovers[activeResourceId]; ok {
		return fm
	}
	fm := newMetadata(activeProcessorId, activeResourceId)
	c.failovers[activeResourceId] = fm
	clustermetrics.FailoverMetadataEntries.Set(float64(len(c.failovers)))
	return fm
}

// lookupMetadata returns the FailoverMetadata already recorded for
// activeResourceId, or nil if none exists yet. Unlike
// RegisterActiveContainerFailure, it never creates an entry: callers
// that are still deciding whether a failover needs bookkeeping at all
// must not have that decision made for them by a side effect of a read.
func (c *Coordinator) lookupMetadata(activeResourceId clustertypes.ResourceId) *Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failovers[activeResourceId]
}

// findByUsedStandbyResource returns the FailoverMetadata that has
// already targeted resourceId as a standby, or nil.
func (c *Coordinator) findByUsedStandbyResource(resourceId clustertypes.ResourceId) *Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fm := range c.failovers {
		if fm.IsStandbyResourceUsed(resourceId) {
			return fm
		}
	}
	return nil
}

// lastKnownResourceId resolves the activeResourceId of whichever
// FailoverMetadata owns req, falling back to a synthetic
// "unknown-<processorId>" id when no metadata recorded it.
func (c *Coordinator) lastKnownResourceId(req *clustertypes.ResourceRequest, processorId clustertypes.ProcessorId) clustertypes.ResourceId {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fm := range c.failovers {
		if fm.ContainsResourceRequest(req) {
			return fm.ActiveResourceId()
		}
	}
	return clustertypes.ResourceId("unknown-" + string(processorId))
}

func (c *Coordinator) newRequest(processorId clustertypes.ProcessorId, preferredHost clustertypes.Host, when time.Time) *clustertypes.ResourceRequest {
	return clustertypes.NewResourceRequest(processorId, preferredHost, c.cfg.ResourceCPUCores, c.cfg.ResourceMemoryMb, when)
}

// EvictStale removes FailoverMetadata entries whose active processor is
// currently running again and which have not been mutated in maxAge,
// reclaiming dead entries from the unbounded failover table without
// changing any decision path.
func (c *Coordinator) EvictStale(maxAge time.Duration) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for resourceId, fm := range c.failovers {
		if c.cluster.IsRunning(fm.ActiveProcessorId()) && now.Sub(fm.LastMutated()) > maxAge {
			delete(c.failovers, resourceId)
		}
	}
	clustermetrics.FailoverMetadataEntries.Set(float64(len(c.failovers)))
}

// HandleContainerStop is entry point (a): a container (active or
// standby) stopped.
func (c *Coordinator) HandleContainerStop(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId, preferredHost clustertypes.Host, exitStatus clustertypes.ExitStatus) {
	if clustertypes.IsStandby(processorId) {
		c.HandleStandbyContainerStop(processorId, resourceId, preferredHost)
		return
	}

	if exitStatus.IsNodeFailureSignal() {
		c.initiateStandbyAwareAllocation(processorId, resourceId)
		return
	}

	// Unknown exit cause: defer to the expiry path. Register metadata and
	// record the request before it is placed in the request state so the
	// allocator never processes a failover-owned request before the
	// coordinator can recognise it as one.
	fm := c.RegisterActiveContainerFailure(processorId, resourceId)
	req := c.newRequest(processorId, preferredHost, time.Now().Add(c.cfg.PreferredHostRetryDelay))
	fm.RecordResourceRequest(req)
	c.state.AddRequest(req)
	log.WithHost(log.WithProcessorID(c.logger, processorId), preferredHost).Info().Msg("active stopped with unknown exit, issuing delayed restart")
}

// HandleContainerLaunchFail is entry point (b).
func (c *Coordinator) HandleContainerLaunchFail(processorId clustertypes.ProcessorId, resourceId clustertypes.ResourceId) {
	if clustertypes.IsStandby(processorId) {
		req := c.newRequest(processorId, clustertypes.AnyHost, time.Now())
		c.state.AddRequest(req)
		return
	}
	c.initiateStandbyAwareAllocation(processorId, resourceId)
}

// HandleStandbyContainerStop is entry point (c).
func (c *Coordinator) HandleStandbyContainerStop(standbyId clustertypes.ProcessorId, resourceId clustertypes.ResourceId, preferredHost clustertypes.Host) {
	if fm := c.findByUsedStandbyResource(resourceId); fm != nil {
		host, _ := fm.StandbyHost(resourceId)
		activeId := clustertypes.ActiveOf(standbyId)

		activeReq := c.newRequest(activeId, host, time.Now().Add(c.cfg.PreferredHostRetryDelay))
		fm.RecordResourceRequest(activeReq)
		c.state.AddRequest(activeReq)

		standbyReq := c.newRequest(standbyId, clustertypes.AnyHost, time.Now())
		fm.RecordResourceRequest(standbyReq)
		c.state.AddRequest(standbyReq)
		return
	}

	// Ordinary restart: not part of a failover this coordinator issued.
	req := c.newRequest(standbyId, preferredHost, time.Now().Add(c.cfg.PreferredHostRetryDelay))
	c.state.AddRequest(req)
}

// initiateStandbyAwareAllocation is entry point (d), the heart of
// failover.
func (c *Coordinator) initiateStandbyAwareAllocation(activeId clustertypes.ProcessorId, activeResourceId clustertypes.ResourceId) {
	host := c.selectStandbyHost(activeId, activeResourceId)

	if host == clustertypes.AnyHost {
		clustermetrics.FailoversToAnyHost.Inc()
		req := c.newRequest(activeId, clustertypes.AnyHost, time.Now())
		c.state.AddRequest(req)
		log.WithProcessorID(c.logger, activeId).Info().Msg("no standby host available, falling back to any-host")
		return
	}

	siblings := c.constraints.Siblings(activeId)
	var runningStandbysOnHost []clustertypes.ProcessorId
	for _, p := range c.cluster.RunningOnHost(host) {
		for _, sib := range siblings {
			if p == sib {
				runningStandbysOnHost = append(runningStandbysOnHost, p)
				break
			}
		}
	}

	fm := c.RegisterActiveContainerFailure(activeId, activeResourceId)

	if len(runningStandbysOnHost) == 0 {
		req := c.newRequest(activeId, host, time.Now())
		fm.RecordResourceRequest(req)
		c.state.AddRequest(req)
		clustermetrics.FailoversToStandby.Inc()
		return
	}

	if len(runningStandbysOnHost) > 1 {
		panic(clustererr.NewInvariant("host %q runs %d members of processor %q's constraint family simultaneously", host, len(runningStandbysOnHost), activeId))
	}

	standbyId := runningStandbysOnHost[0]
	res, ok := c.cluster.RunningResource(standbyId)
	if !ok {
		// The standby exited runningProcessors between selection and
		// here; treat this as if no standby were running rather than
		// re-validating.
		req := c.newRequest(activeId, host, time.Now())
		fm.RecordResourceRequest(req)
		c.state.AddRequest(req)
		clustermetrics.FailoversToStandby.Inc()
		return
	}

	fm.RecordSelectedStandby(res.ResourceId, host)
	clustermetrics.FailoversToStandby.Inc()
	if err := c.broker.Stop(res); err != nil {
		log.WithResourceID(c.logger, res.ResourceId).Warn().Err(err).Msg("broker stop call failed, relying on eventual callback")
	}
}

// selectStandbyHost runs a three-pass search for a standby host to steal:
// a running sibling not yet used by this failover, then a sibling's
// last-known host from the job model, then AnyHost.
func (c *Coordinator) selectStandbyHost(activeId clustertypes.ProcessorId, activeResourceId clustertypes.ResourceId) clustertypes.Host {
	fm := c.lookupMetadata(activeResourceId)
	siblings := c.constraints.Siblings(activeId)

	for _, sib := range siblings {
		if res, ok := c.cluster.RunningResource(sib); ok {
			if fm == nil || !fm.IsStandbyResourceUsed(res.ResourceId) {
				return res.Host
			}
		}
	}

	for _, sib := range siblings {
		if host := c.jobModel.ContainerToHost(sib); host != clustertypes.AnyHost {
			if fm == nil || !fm.IsStandbyHostUsed(host) {
				return host
			}
		}
	}

	return clustertypes.AnyHost
}

// CheckStandbyConstraintsAndRun is entry point (e), called by the
// allocator once it has matched a ready request to a resource.
func (c *Coordinator) CheckStandbyConstraintsAndRun(req *clustertypes.ResourceRequest, preferredHost clustertypes.Host, res *clustertypes.Resource) {
	id := req.ProcessorId

	violated := false
	for _, sib := range c.constraints.Siblings(id) {
		if c.cluster.PendingOrRunningOnHost(sib, res.Host) {
			violated = true
			break
		}
	}

	if !violated {
		if err := c.runner.RunProcessor(req, preferredHost); err != nil {
			log.WithProcessorID(c.logger, id).Error().Err(err).Msg("run processor failed after constraint check passed")
		}
		return
	}

	_ = c.state.ReleaseUnstartableContainer(res, preferredHost)
	c.state.CancelResourceRequest(req)
	clustermetrics.FailedStandbyAllocations.Inc()

	if clustertypes.IsStandby(id) {
		newReq := c.newRequest(id, clustertypes.AnyHost, time.Now())
		c.state.AddRequest(newReq)
		return
	}

	lastKnown := c.lastKnownResourceId(req, id)
	c.initiateStandbyAwareAllocation(id, lastKnown)
}

// HandleExpiredResourceRequest is entry point (f).
func (c *Coordinator) HandleExpiredResourceRequest(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource) {
	if clustertypes.IsStandby(processorId) {
		if alternative != nil {
			c.CheckStandbyConstraintsAndRun(request, clustertypes.AnyHost, alternative)
			return
		}
		c.state.CancelResourceRequest(request)
		newReq := c.newRequest(processorId, clustertypes.AnyHost, time.Now())
		c.state.AddRequest(newReq)
		return
	}

	c.state.CancelResourceRequest(request)
	lastKnown := c.lastKnownResourceId(request, processorId)
	c.initiateStandbyAwareAllocation(processorId, lastKnown)
}
