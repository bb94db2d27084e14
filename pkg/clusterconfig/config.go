// Package clusterconfig loads the allocator/coordinator's configuration
// from a YAML file via gopkg.in/yaml.v3.
package clusterconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/ferozmbasheer/clustercore/pkg/clustertypes"
	"gopkg.in/yaml.v3"
)

// Config is the full static configuration needed to build the
// placement-constraints table, the default job model, and the
// allocator/coordinator pair.
type Config struct {
	// AllocatorSleepIntervalMs is the control-loop's sleep interval.
	AllocatorSleepIntervalMs int `yaml:"allocatorSleepIntervalMs"`
	// PreferredHostRetryDelayMs is the delay before a delayed
	// preferred-host request becomes ready, and the threshold past
	// which a pending preferred-host request is treated as expired.
	PreferredHostRetryDelayMs int `yaml:"preferredHostRetryDelayMs"`
	// FailoverEvictAfterMs bounds how long a resolved FailoverMetadata
	// entry survives before the eviction sweep reclaims it.
	FailoverEvictAfterMs int `yaml:"failoverEvictAfterMs"`

	ContainerCPUCores float64 `yaml:"containerCpuCores"`
	ContainerMemoryMb int64   `yaml:"containerMemoryMb"`

	CommandBuilder string            `yaml:"commandBuilder"`
	ExtraEnv       map[string]string `yaml:"extraEnv"`

	JobModelServerURL string `yaml:"jobModelServerUrl"`

	// Processors lists every processor id known at startup (active and
	// standby), used to build the placement-constraints table.
	Processors []string `yaml:"processors"`

	// LastKnownHosts seeds the default in-memory job model's
	// containerToHost mapping.
	LastKnownHosts map[string]string `yaml:"lastKnownHosts"`
}

// Default returns a Config with conservative defaults, overridden by
// whatever a loaded file sets afterward.
func Default() Config {
	return Config{
		AllocatorSleepIntervalMs:  1000,
		PreferredHostRetryDelayMs: 5000,
		FailoverEvictAfterMs:      int(30 * time.Minute / time.Millisecond),
		ContainerCPUCores:         1.0,
		ContainerMemoryMb:         1024,
		CommandBuilder:            "shell",
	}
}

// Load reads and parses a YAML config file on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("clusterconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("clusterconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}

// AllocatorSleepInterval returns the configured sleep interval as a
// time.Duration.
func (c Config) AllocatorSleepInterval() time.Duration {
	return time.Duration(c.AllocatorSleepIntervalMs) * time.Millisecond
}

// PreferredHostRetryDelay returns the configured retry delay as a
// time.Duration.
func (c Config) PreferredHostRetryDelay() time.Duration {
	return time.Duration(c.PreferredHostRetryDelayMs) * time.Millisecond
}

// FailoverEvictAfter returns the configured eviction age as a
// time.Duration.
func (c Config) FailoverEvictAfter() time.Duration {
	return time.Duration(c.FailoverEvictAfterMs) * time.Millisecond
}

// ProcessorIds converts Processors to clustertypes.ProcessorId.
func (c Config) ProcessorIds() []clustertypes.ProcessorId {
	out := make([]clustertypes.ProcessorId, len(c.Processors))
	for i, p := range c.Processors {
		out[i] = clustertypes.ProcessorId(p)
	}
	return out
}

// LastKnownHostsTyped converts LastKnownHosts to clustertypes key/value
// types.
func (c Config) LastKnownHostsTyped() map[clustertypes.ProcessorId]clustertypes.Host {
	out := make(map[clustertypes.ProcessorId]clustertypes.Host, len(c.LastKnownHosts))
	for k, v := range c.LastKnownHosts {
		out[clustertypes.ProcessorId(k)] = clustertypes.Host(v)
	}
	return out
}
