package stackos

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/stackos/internal/env"
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/service/console"
	"github.com/viant/stackos/service/loader"
	"github.com/viant/stackos/service/messaging"
	"github.com/viant/stackos/service/scheduler"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the machine and kernel
// configuration. Sections left out of a YAML document keep their defaults.
type Config struct {
	Memory    MemoryConfig     `json:"memory" yaml:"memory"`
	Scheduler scheduler.Config `json:"scheduler" yaml:"scheduler"`
	Loader    loader.Config    `json:"loader" yaml:"loader"`
	Console   console.Config   `json:"console" yaml:"console"`
	Events    EventsConfig     `json:"events" yaml:"events"`
	Policy    *policy.Config   `json:"policy,omitempty" yaml:"policy,omitempty"`
	Tracing   bool             `json:"tracing" yaml:"tracing"`
}

// MemoryConfig describes physical memory. The allocator manages
// [KernelReserve, Size-GuardPad).
type MemoryConfig struct {
	Size          int `json:"size" yaml:"size"`
	KernelReserve int `json:"kernelReserve" yaml:"kernelReserve"`
	GuardPad      int `json:"guardPad" yaml:"guardPad"`
}

// EventsConfig selects the lifecycle event queue; an empty vendor disables
// events.
type EventsConfig struct {
	Vendor   messaging.Vendor `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	BasePath string           `json:"basePath,omitempty" yaml:"basePath,omitempty"`
	Buffer   int              `json:"buffer,omitempty" yaml:"buffer,omitempty"`
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() *Config {
	return &Config{
		Memory: MemoryConfig{
			Size:          64 * 1024,
			KernelReserve: 4 * 1024,
			GuardPad:      16,
		},
		Scheduler: scheduler.DefaultConfig(),
		Loader:    loader.DefaultConfig(),
	}
}

// Region returns the allocator managed range as base and size.
func (c *MemoryConfig) Region() (int, int) {
	return c.KernelReserve, c.Size - c.KernelReserve - c.GuardPad
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Memory.Size <= 0 {
		errs = append(errs, fmt.Errorf("memory.size must be > 0"))
	}
	if c.Memory.KernelReserve < 0 || c.Memory.GuardPad < 0 {
		errs = append(errs, fmt.Errorf("memory.kernelReserve and memory.guardPad must be >= 0"))
	}
	if _, size := c.Memory.Region(); size < 64 {
		errs = append(errs, fmt.Errorf("memory region too small: %d", size))
	}
	if c.Scheduler.MaxProcesses < 2 {
		errs = append(errs, fmt.Errorf("scheduler.maxProcesses must be >= 2"))
	}
	if c.Scheduler.Quantum < 0 {
		errs = append(errs, fmt.Errorf("scheduler.quantum must be >= 0"))
	}
	if c.Loader.Latency < 0 {
		errs = append(errs, fmt.Errorf("loader.latency must be >= 0"))
	}
	if c.Loader.DefaultStack < 0 {
		errs = append(errs, fmt.Errorf("loader.defaultStack must be >= 0"))
	}
	switch c.Events.Vendor {
	case "", messaging.VendorMemory, messaging.VendorFS:
	default:
		errs = append(errs, fmt.Errorf("unsupported events.vendor: %s", c.Events.Vendor))
	}
	if c.Policy != nil {
		switch c.Policy.Mode {
		case "", policy.ModeAuto, policy.ModeDeny, policy.ModeAsk:
		default:
			errs = append(errs, fmt.Errorf("unsupported policy.mode: %s", c.Policy.Mode))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config from URL on top of DefaultConfig.
// ${env.KEY} references are expanded before decoding.
func LoadConfig(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	if fs == nil {
		fs = afs.New()
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(env.Expand(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}
