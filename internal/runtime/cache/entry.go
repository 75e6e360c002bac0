package cache

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// Entry is a compiled module held by the cache. Callers that instantiate
// from it hold a reference; the underlying module is only closed once the
// entry has left every tier and the last reference is released.
type Entry struct {
	checksum types.Checksum
	module   wazero.CompiledModule
	size     uint64
	hits     uint32

	mu     sync.Mutex
	refs   int
	doomed bool
}

func newEntry(checksum types.Checksum, module wazero.CompiledModule, size uint64) *Entry {
	return &Entry{checksum: checksum, module: module, size: size}
}

// Checksum returns the code checksum this entry was compiled from.
func (e *Entry) Checksum() types.Checksum {
	return e.checksum
}

// Module returns the compiled module. Valid until Release.
func (e *Entry) Module() wazero.CompiledModule {
	return e.module
}

// Size returns the size estimate the memory tier accounts this entry with.
func (e *Entry) Size() uint64 {
	return e.size
}

func (e *Entry) retain() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// Release drops the caller's reference. When the entry was evicted while
// references were live, the last Release closes the module.
func (e *Entry) Release(ctx context.Context) error {
	e.mu.Lock()
	e.refs--
	closeNow := e.doomed && e.refs <= 0
	e.mu.Unlock()
	if closeNow {
		return e.module.Close(ctx)
	}
	return nil
}

// doom marks the entry as gone from all tiers. The module closes now if no
// reference is live, otherwise on the last Release.
func (e *Entry) doom(ctx context.Context) error {
	e.mu.Lock()
	if e.doomed {
		e.mu.Unlock()
		return nil
	}
	e.doomed = true
	closeNow := e.refs <= 0
	e.mu.Unlock()
	if closeNow {
		return e.module.Close(ctx)
	}
	return nil
}
