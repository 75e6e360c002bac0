// Package memory implements the host side of the contract memory convention.
//
// Contracts exchange byte slices with the host through Region descriptors:
// 12 byte structs in guest linear memory holding offset, capacity and length
// of a guest allocated buffer, each encoded as a little-endian uint32. The
// host never dereferences a descriptor before validating it, and every byte
// crossing the boundary is charged to the call's gas state before the copy.
package memory

import (
	"encoding/binary"
	"math"

	"github.com/CosmWasm/wasmvm/v2/types"
)

const (
	// RegionSize is the encoded size of a Region descriptor.
	RegionSize uint32 = 12

	// WasmPageSize is the WebAssembly linear memory page size (64 KiB).
	WasmPageSize uint32 = 65536
)

// Region describes a guest allocated buffer in linear memory.
type Region struct {
	// Offset is the position of the buffer.
	Offset uint32
	// Capacity is the number of bytes reserved at Offset.
	Capacity uint32
	// Length is the number of bytes in use, at most Capacity.
	Length uint32
}

// RegionFromBytes decodes a Region descriptor and validates it.
func RegionFromBytes(raw []byte) (Region, error) {
	if uint32(len(raw)) != RegionSize {
		return Region{}, types.NewRegionValidationError("descriptor size", "got %d bytes, want %d", len(raw), RegionSize)
	}
	r := Region{
		Offset:   binary.LittleEndian.Uint32(raw[0:4]),
		Capacity: binary.LittleEndian.Uint32(raw[4:8]),
		Length:   binary.LittleEndian.Uint32(raw[8:12]),
	}
	if err := r.Validate(); err != nil {
		return Region{}, err
	}
	return r, nil
}

// Bytes encodes the descriptor in its guest memory layout.
func (r Region) Bytes() []byte {
	buf := make([]byte, RegionSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], r.Capacity)
	binary.LittleEndian.PutUint32(buf[8:12], r.Length)
	return buf
}

// Validate performs the plausibility checks a descriptor must pass before
// the host touches the memory it points to. Descriptors are produced by the
// contract, so a violation indicates a broken or malicious contract, not a
// host bug.
func (r Region) Validate() error {
	if r.Offset == 0 {
		return types.NewRegionValidationError("zero offset", "offset must not be zero")
	}
	if r.Length > r.Capacity {
		return types.NewRegionValidationError("length exceeds capacity", "length %d, capacity %d", r.Length, r.Capacity)
	}
	if r.Capacity > math.MaxUint32-r.Offset {
		return types.NewRegionValidationError("out of range", "offset %d plus capacity %d exceeds the address space", r.Offset, r.Capacity)
	}
	return nil
}
