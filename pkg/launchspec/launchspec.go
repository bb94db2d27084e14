// Package launchspec provides the command-builder registry. The command
// builder is an external collaborator that materializes the opaque
// launch spec the broker consumes, looked up from a registry of factory
// functions keyed by a configured name, constructed at startup.
package launchspec

import (
	"fmt"
	"sync"

	"github.com/ferozmbasheer/clustercore/pkg/broker"
	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
)

// Config is the subset of allocator configuration a CommandBuilder needs.
type Config struct {
	CPUCores         float64
	MemoryMb         int64
	ExtraEnv         map[string]string
}

// Builder constructs the opaque launch spec the broker consumes for one
// processor launch. One Builder is constructed at startup; Build is
// called once per launch with (config, processorId, jobModelServerUrl).
type Builder interface {
	Build(cfg Config, processorId clustertypes.ProcessorId, jobModelServerURL string) (broker.LaunchSpec, error)
}

// Factory constructs a Builder. Registered factories are looked up by the
// configured command-builder class name at startup.
type Factory func() Builder

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register adds factory under name, overwriting any prior registration.
// Called from init() in packages that provide a CommandBuilder
// implementation.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New constructs the Builder registered under name.
func New(name string) (Builder, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("launchspec: no command builder registered under %q", name)
	}
	return factory(), nil
}

// ShellCommand is the opaque launch spec produced by ShellBuilder: an
// argv plus environment, the shape most local/test brokers understand.
type ShellCommand struct {
	Argv []string
	Env  map[string]string
}

// ShellBuilder is the default CommandBuilder: a plain shell invocation of
// the processor's id and the job model server URL. Suitable for tests and
// local brokers; production deployments register their own Builder under
// a distinct configured name.
type ShellBuilder struct{}

func (ShellBuilder) Build(cfg Config, processorId clustertypes.ProcessorId, jobModelServerURL string) (broker.LaunchSpec, error) {
	env := map[string]string{
		"PROCESSOR_ID":          string(processorId),
		"JOB_MODEL_SERVER_URL":  jobModelServerURL,
	}
	for k, v := range cfg.ExtraEnv {
		env[k] = v
	}
	return ShellCommand{
		Argv: []string{"run-processor", "--id", string(processorId)},
		Env:  env,
	}, nil
}

func init() {
	Register("shell", func() Builder { return ShellBuilder{} })
}
