// Package wasmhost runs WASM guest modules with handle based access to
// the external buffer subsystem.
package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// VM is a wazero based virtual machine running one guest module.
type VM struct {
	runtime wazero.Runtime
	mod     api.Module
}

// New creates a VM, instantiating the registered host modules and then
// the guest from wasmSrc.
func New(ctx context.Context, wasmSrc []byte, opts ...Option) (*VM, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if len(wasmSrc) < 1 {
		return nil, fmt.Errorf("wasm source is missing")
	}
	rt := wazero.NewRuntimeWithConfig(ctx, options.cfg)
	for _, m := range options.hostMod {
		if _, err := m(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("host module initialization failed, %w", err)
		}
	}
	m, err := rt.Instantiate(ctx, wasmSrc)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to initiate VM with wasm source, %w", err)
	}
	return &VM{
		runtime: rt,
		mod:     m,
	}, nil
}

// Fn finds the exported guest function fnName.
func (vm *VM) Fn(fnName string) (api.Function, error) {
	fn := vm.mod.ExportedFunction(fnName)
	if fn == nil {
		return nil, fmt.Errorf("function %v not found", fnName)
	}
	return fn, nil
}

func (vm *VM) Close(ctx context.Context) error {
	return vm.runtime.Close(ctx)
}
