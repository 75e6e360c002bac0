package memory

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// Names of the allocator exports every contract must provide.
const (
	ExportAllocate   = "allocate"
	ExportDeallocate = "deallocate"
)

// ModuleAllocator adapts a contract's exported allocate/deallocate pair to
// the Allocator interface.
type ModuleAllocator struct {
	allocate   api.Function
	deallocate api.Function
}

var _ Allocator = (*ModuleAllocator)(nil)

// NewModuleAllocator resolves the allocator exports of an instantiated
// module.
func NewModuleAllocator(mod api.Module) (*ModuleAllocator, error) {
	allocFn := mod.ExportedFunction(ExportAllocate)
	if allocFn == nil {
		return nil, types.ResolveErr{Symbol: ExportAllocate}
	}
	deallocFn := mod.ExportedFunction(ExportDeallocate)
	if deallocFn == nil {
		return nil, types.ResolveErr{Symbol: ExportDeallocate}
	}
	return &ModuleAllocator{allocate: allocFn, deallocate: deallocFn}, nil
}

// Allocate implements Allocator.
func (a *ModuleAllocator) Allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := a.allocate.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("allocate returned %d results, want 1", len(results))
	}
	return uint32(results[0]), nil
}

// Deallocate implements Allocator.
func (a *ModuleAllocator) Deallocate(ctx context.Context, ptr uint32) error {
	_, err := a.deallocate.Call(ctx, uint64(ptr))
	return err
}
