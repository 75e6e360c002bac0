package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// Memory is the view of guest linear memory the manager needs.
// wazero's api.Memory satisfies it.
type Memory interface {
	// Read returns a view of the memory at [offset, offset+byteCount),
	// or false if the range is out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
	// Write copies v to the memory at offset, or returns false if the
	// range is out of bounds.
	Write(offset uint32, v []byte) bool
	// Size returns the memory size in bytes.
	Size() uint32
}

// Allocator requests and releases guest owned buffers through the
// contract's exported allocator.
type Allocator interface {
	// Allocate runs the contract's allocate export and returns the
	// pointer of a fresh Region descriptor with the requested capacity.
	Allocate(ctx context.Context, size uint32) (uint32, error)
	// Deallocate runs the contract's deallocate export for a descriptor
	// the host is done with.
	Deallocate(ctx context.Context, ptr uint32) error
}

// Manager moves payloads across the host/guest boundary for one instance.
type Manager struct {
	mem   Memory
	alloc Allocator
	gas   *gas.State
}

// New creates a Manager for one instance. The gas state must not be nil:
// all boundary copies are metered.
func New(mem Memory, alloc Allocator, gs *gas.State) *Manager {
	return &Manager{mem: mem, alloc: alloc, gas: gs}
}

// ReadRegion dereferences the Region descriptor at ptr and returns a copy of
// the bytes it points to. maxLength caps the payload so a corrupt descriptor
// cannot make the host buffer gigabytes.
func (m *Manager) ReadRegion(ptr uint32, maxLength uint32) ([]byte, error) {
	region, err := m.regionAt(ptr)
	if err != nil {
		return nil, err
	}
	if region.Length > maxLength {
		return nil, fmt.Errorf("region length %d exceeds the allowed %d bytes", region.Length, maxLength)
	}
	if err := m.gas.ConsumeMemoryGas(uint64(region.Length)); err != nil {
		return nil, err
	}
	if region.Length == 0 {
		return []byte{}, nil
	}
	view, ok := m.mem.Read(region.Offset, region.Length)
	if !ok {
		return nil, types.NewRegionValidationError("exceeds memory", "offset %d plus length %d is outside the %d byte memory", region.Offset, region.Length, m.mem.Size())
	}
	// Read returns a view into guest memory. Copy so later guest writes
	// cannot alias data the host already holds.
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// WriteData copies data into a fresh guest allocated buffer and returns the
// pointer of its Region descriptor. Ownership of argument regions passes to
// the contract with the call; result regions the host reads back are
// released with Free.
func (m *Manager) WriteData(ctx context.Context, data []byte) (uint32, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return 0, fmt.Errorf("data of %d bytes does not fit in a region", len(data))
	}
	size := uint32(len(data))
	if err := m.gas.ConsumeMemoryGas(uint64(size)); err != nil {
		return 0, err
	}
	ptr, err := m.alloc.Allocate(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("could not allocate %d bytes in the contract: %w", size, err)
	}
	if ptr == 0 {
		return 0, fmt.Errorf("contract allocator returned a null pointer")
	}
	if err := m.fillRegion(ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

// WriteToRegion copies data into an existing guest region, e.g. a
// destination buffer the contract passed to a host function.
func (m *Manager) WriteToRegion(ptr uint32, data []byte) error {
	if err := m.gas.ConsumeMemoryGas(uint64(len(data))); err != nil {
		return err
	}
	return m.fillRegion(ptr, data)
}

// Free releases a guest buffer the host is done with.
func (m *Manager) Free(ctx context.Context, ptr uint32) error {
	return m.alloc.Deallocate(ctx, ptr)
}

// regionAt reads and validates the descriptor at ptr.
func (m *Manager) regionAt(ptr uint32) (Region, error) {
	if ptr == 0 {
		return Region{}, fmt.Errorf("null region pointer passed to the host")
	}
	raw, ok := m.mem.Read(ptr, RegionSize)
	if !ok {
		return Region{}, fmt.Errorf("could not read region descriptor at offset %d", ptr)
	}
	region, err := RegionFromBytes(raw)
	if err != nil {
		return Region{}, err
	}
	// The whole reserved range must lie in memory, not just the used part.
	if uint64(region.Offset)+uint64(region.Capacity) > uint64(m.mem.Size()) {
		return Region{}, types.NewRegionValidationError("exceeds memory", "offset %d plus capacity %d is outside the %d byte memory", region.Offset, region.Capacity, m.mem.Size())
	}
	return region, nil
}

// fillRegion writes data into the buffer of the descriptor at ptr and
// updates the descriptor's length.
func (m *Manager) fillRegion(ptr uint32, data []byte) error {
	region, err := m.regionAt(ptr)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(region.Capacity) {
		return fmt.Errorf("region too small: capacity %d, need %d", region.Capacity, len(data))
	}
	if len(data) > 0 && !m.mem.Write(region.Offset, data) {
		return types.NewRegionValidationError("exceeds memory", "offset %d plus length %d is outside the %d byte memory", region.Offset, len(data), m.mem.Size())
	}
	region.Length = uint32(len(data))
	if !m.mem.Write(ptr, region.Bytes()) {
		return fmt.Errorf("could not write region descriptor at offset %d", ptr)
	}
	return nil
}
