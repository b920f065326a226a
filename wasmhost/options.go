package wasmhost

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

type (
	// HostModuleFn instantiates a host module into the runtime before
	// the guest module is loaded.
	HostModuleFn func(ctx context.Context, rt wazero.Runtime) (api.Module, error)

	Option func(*Options)

	Options struct {
		cfg     wazero.RuntimeConfig
		hostMod []HostModuleFn
	}
)

func defaultOptions() *Options {
	return &Options{
		cfg: wazero.NewRuntimeConfig().WithCloseOnContextDone(true),
	}
}

// WithRuntimeConfig replaces the default wazero runtime configuration.
func WithRuntimeConfig(cfg wazero.RuntimeConfig) Option {
	return func(o *Options) {
		o.cfg = cfg
	}
}

// WithHostModule registers a host module the guest module may import.
func WithHostModule(fn HostModuleFn) Option {
	return func(o *Options) {
		o.hostMod = append(o.hostMod, fn)
	}
}
