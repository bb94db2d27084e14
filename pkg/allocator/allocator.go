// Package allocator implements the container allocator control loop: a
// single goroutine that matches ready resource requests against
// resources the broker has handed back, applies a placement policy, and
// launches workers. It is a ticker-driven run loop guarded by its own
// stop channel, one zerolog logger per instance.
package allocator

import (
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustererr"
	"github.com/ferozmbasheer/clustercore/pkg/clustermetrics"
	"github.com/ferozmbasheer/clustercore/pkg/clusterstate"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/events"
	"github.com/ferozmbasheer/clustercore/pkg/jobmodel"
	"github.com/ferozmbasheer/clustercore/pkg/launchspec"
	"github.com/ferozmbasheer/clustercore/pkg/log"
	"github.com/ferozmbasheer/clustercore/pkg/requeststate"
	"github.com/rs/zerolog"
)

// Coordinator is the failover coordinator as seen by the allocator: a
// constraint-check collaborator plus the expired-request and eviction
// entry points the control loop drives every cycle. Defining this
// interface in the consuming package, rather than importing
// pkg/failover directly, breaks the coordinator/allocator reference
// cycle.
type Coordinator interface {
	// CheckStandbyConstraintsAndRun validates that placing req's
	// processor on res would not violate a placement constraint, and
	// either runs it or reroutes through failover.
	CheckStandbyConstraintsAndRun(req *clustertypes.ResourceRequest, preferredHost clustertypes.Host, res *clustertypes.Resource)

	// HandleExpiredResourceRequest drives failover for a request whose
	// preferred-host wait has elapsed.
	HandleExpiredResourceRequest(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource)

	// EvictStale sweeps the failover metadata table for entries whose
	// active is currently running and which have not been mutated for
	// more than maxAge.
	EvictStale(maxAge time.Duration)
}

// Config is the allocator's tunable configuration.
type Config struct {
	SleepInterval       time.Duration
	PreferredHostExpiry time.Duration
	FailoverEvictAge    time.Duration
	CommandBuilder      string
	Launch              launchspec.Config
}

// Allocator is the container allocator control loop.
type Allocator struct {
	cfg         Config
	state       *requeststate.State
	cluster     *clusterstate.State
	broker      broker.Broker
	jobModel    jobmodel.JobModel
	coordinator Coordinator
	builder     launchspec.Builder
	policy      Policy
	bus         *events.Bus
	logger      zerolog.Logger

	stopCh chan struct{}
}

// New constructs an Allocator. policy selects the placement strategy
// (AnyHostPolicy or HostAwarePolicy); production deployments that care
// about standby-aware failover use HostAwarePolicy.
func New(cfg Config, state *requeststate.State, cluster *clusterstate.State, br broker.Broker, jm jobmodel.JobModel, coordinator Coordinator, bus *events.Bus, policy Policy, logger zerolog.Logger) (*Allocator, error) {
	builder, err := launchspec.New(cfg.CommandBuilder)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		cfg:         cfg,
		state:       state,
		cluster:     cluster,
		broker:      br,
		jobModel:    jm,
		coordinator: coordinator,
		builder:     builder,
		policy:      policy,
		bus:         bus,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start launches the control loop and the event-subscriber goroutine
// that absorbs onResourceAllocated callbacks. Broker-delivered resource
// grants arrive on the shared events.Bus so the callback thread
// publishing them never blocks on the allocator loop.
func (a *Allocator) Start() {
	sub := a.bus.Subscribe()
	go a.consumeEvents(sub)
	go a.run()
}

// Stop closes the stop channel; the loop exits at the next iteration
// boundary. A cycle in progress runs to completion, but a wait for the
// next tick is cut short as soon as the stop signal arrives.
func (a *Allocator) Stop() {
	close(a.stopCh)
}

func (a *Allocator) consumeEvents(sub events.Subscriber) {
	for e := range sub {
		if e.Type == events.ResourceAllocated && e.Resource != nil {
			a.state.AddResource(e.Resource)
		}
	}
}

func (a *Allocator) run() {
	ticker := time.NewTicker(a.cfg.SleepInterval)
	defer ticker.Stop()

	a.logger.Info().Dur("sleep_interval", a.cfg.SleepInterval).Msg("allocator started")

	for {
		select {
		case <-ticker.C:
			a.runCycle()
		case <-a.stopCh:
			a.logger.Info().Msg("allocator stopped")
			return
		}
	}
}

// runCycle performs one control-loop iteration:
//
//	assignResourceRequests()
//	promoteDelayed()
//	releaseExtraResources()
//
// plus a stale-metadata eviction sweep. An InvariantError raised
// anywhere in the cycle is logged with full diagnostics and re-panicked
// so the host process aborts and restarts; any other panic is swallowed
// to preserve liveness.
func (a *Allocator) runCycle() {
	timer := clustermetrics.NewTimer()
	defer timer.ObserveDuration(clustermetrics.AllocationCycleDuration)
	defer func() {
		if r := recover(); r != nil {
			if _, fatal := r.(*clustererr.InvariantError); fatal {
				a.logger.Error().Interface("panic", r).Msg("invariant violation in allocator cycle, re-raising")
				panic(r)
			}
			a.logger.Error().Interface("panic", r).Msg("recovered from panic in allocator cycle")
		}
	}()

	a.assignResourceRequests()
	a.promoteDelayed()
	a.state.ReleaseExtraResources()
	a.coordinator.EvictStale(a.cfg.FailoverEvictAge)
}

// assignResourceRequests walks every ready pending request and applies
// the configured placement policy to it.
func (a *Allocator) assignResourceRequests() {
	now := time.Now()
	for _, r := range a.state.PendingRequests() {
		if !r.Ready(now) {
			continue
		}
		a.policy.Assign(a, r)
	}
}

// promoteDelayed is a documented no-op: PeekReadyRequest / PendingRequests
// already filter by readiness, so there is no side buffer of delayed
// requests to promote.
func (a *Allocator) promoteDelayed() {}

// RunProcessor pulls the resource allocated for host, marks req's
// processor pending on it, and asks the broker to launch. The pending
// insert happens before the broker call so a racing running callback can
// never observe a missing pending entry.
func (a *Allocator) RunProcessor(req *clustertypes.ResourceRequest, host clustertypes.Host) error {
	res := a.state.PeekResource(host)
	if res == nil {
		return clustererr.NewPrecondition("no resource available on host %q for processor %q", host, req.ProcessorId)
	}
	if host != clustertypes.AnyHost && res.Host != host {
		return clustererr.NewPrecondition("resource %s is on host %q, not requested host %q", res.ResourceId, res.Host, host)
	}

	a.state.UpdateStateAfterAssignment(req, host, res)
	a.cluster.SetPending(req.ProcessorId, res)

	procLogger := log.WithProcessorID(a.logger, req.ProcessorId)

	spec, err := a.builder.Build(a.cfg.Launch, req.ProcessorId, a.jobModel.ServerURL())
	if err != nil {
		procLogger.Error().Err(err).Msg("failed to build launch spec")
		return err
	}
	if err := a.broker.Launch(res, spec); err != nil {
		log.WithResourceID(procLogger, res.ResourceId).Warn().Err(err).Msg("broker launch call failed, will retry next cycle")
		return nil
	}
	log.WithResource(procLogger, res).Info().Msg("launched processor")
	return nil
}
