// Command clustercore runs the allocator/coordinator control plane as a
// standalone process, wiring together the placement-constraints table,
// request state, cluster state, job model, broker, allocator, and
// failover coordinator: a cobra root command, persistent logging flags
// initialized via cobra.OnInitialize, and a background metrics HTTP
// server.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/allocator"
	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/brokersim"
	"github.com/ferozmbasheer/clustercore/pkg/clusterconfig"
	"github.com/ferozmbasheer/clustercore/pkg/clustermetrics"
	"github.com/ferozmbasheer/clustercore/pkg/clusterstate"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"github.com/ferozmbasheer/clustercore/pkg/constraints"
	"github.com/ferozmbasheer/clustercore/pkg/events"
	"github.com/ferozmbasheer/clustercore/pkg/failover"
	"github.com/ferozmbasheer/clustercore/pkg/jobmodel"
	"github.com/ferozmbasheer/clustercore/pkg/launchspec"
	"github.com/ferozmbasheer/clustercore/pkg/log"
	"github.com/ferozmbasheer/clustercore/pkg/requeststate"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "clustercore",
	Short:   "Allocator and standby-failover coordinator for a stream-processing cluster",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("clustercore version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", true, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("config", "", "YAML config file (required)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the allocator and failover coordinator",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := clusterconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	jm := jobmodel.NewStatic(cfg.ProcessorIds(), cfg.LastKnownHostsTyped(), cfg.JobModelServerURL)
	table := constraints.Build(jm.Containers())

	bus := events.NewBus()
	bus.Start()

	var br broker.Broker = brokersim.New(bus)
	log.Logger.Warn().Msg("no production broker configured, running against an in-memory brokersim.Broker")

	state := requeststate.New(br)
	cluster := clusterstate.New()

	allocLogger := log.WithComponent("allocator")
	coordLogger := log.WithComponent("failover")

	var coord *failover.Coordinator
	var alloc *allocator.Allocator

	alloc, err = allocator.New(
		allocator.Config{
			SleepInterval:       cfg.AllocatorSleepInterval(),
			PreferredHostExpiry: cfg.PreferredHostRetryDelay(),
			FailoverEvictAge:    cfg.FailoverEvictAfter(),
			CommandBuilder:      cfg.CommandBuilder,
			Launch: launchspec.Config{
				CPUCores: cfg.ContainerCPUCores,
				MemoryMb: cfg.ContainerMemoryMb,
				ExtraEnv: cfg.ExtraEnv,
			},
		},
		state, cluster, br, jm,
		coordinatorAdapter{&coord},
		bus, allocator.HostAwarePolicy{}, allocLogger,
	)
	if err != nil {
		return fmt.Errorf("construct allocator: %w", err)
	}

	coord = failover.New(
		failover.Config{
			ResourceCPUCores:        cfg.ContainerCPUCores,
			ResourceMemoryMb:        cfg.ContainerMemoryMb,
			PreferredHostRetryDelay: cfg.PreferredHostRetryDelay(),
		},
		table, cluster, state, br, jm, alloc, bus, coordLogger,
	)

	coord.Start()
	alloc.Start()

	go func() {
		http.Handle("/metrics", clustermetrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	alloc.Stop()
	bus.Stop()
	return nil
}

// coordinatorAdapter lets allocator.New receive a handle to a
// *failover.Coordinator that has not been constructed yet: the
// coordinator needs the allocator as its Runner, and the allocator
// needs the coordinator as its Coordinator collaborator, so one side of
// the cycle must be filled in after the other is built. The adapter
// defers every call until coord is set, which happens before Start() is
// ever invoked on either component.
type coordinatorAdapter struct {
	coord **failover.Coordinator
}

func (a coordinatorAdapter) CheckStandbyConstraintsAndRun(req *clustertypes.ResourceRequest, host clustertypes.Host, res *clustertypes.Resource) {
	(*a.coord).CheckStandbyConstraintsAndRun(req, host, res)
}

func (a coordinatorAdapter) HandleExpiredResourceRequest(processorId clustertypes.ProcessorId, request *clustertypes.ResourceRequest, alternative *clustertypes.Resource) {
	(*a.coord).HandleExpiredResourceRequest(processorId, request, alternative)
}

func (a coordinatorAdapter) EvictStale(maxAge time.Duration) {
	(*a.coord).EvictStale(maxAge)
}
