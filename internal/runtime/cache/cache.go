// Package cache holds contract code and compiled modules in three tiers:
// a pinned map immune to eviction, a size-bounded in-memory LRU, and a
// filesystem store of raw code blobs plus compiled-artifact manifests.
// The SHA-256 checksum of the code is the only key any tier uses.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// CompileFunc turns raw code into a compiled module. The engine provides
// it; the cache calls it on filesystem-tier hits and misses of the upper
// tiers.
type CompileFunc func(ctx context.Context, code []byte) (wazero.CompiledModule, error)

// Cache is the orchestrator over the three tiers. Resolution order is
// pinned, memory, filesystem; a hit in a lower tier backfills the memory
// tier. All methods are safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	fs      *fsStore
	pinned  map[types.Checksum]*Entry
	memory  *memoryTier
	compile CompileFunc
	logger  zerolog.Logger

	hitsPinned uint32
	hitsMemory uint32
	hitsFs     uint32
	misses     uint32
}

// New creates a Cache under opts.BaseDir, taking the exclusive directory
// lock. tag is the engine's compatibility tag; artifacts recorded under a
// different tag are recompiled, not reused.
func New(opts types.CacheOptions, tag string, compile CompileFunc, logger zerolog.Logger) (*Cache, error) {
	fs, err := newFsStore(opts.BaseDir, tag, logger)
	if err != nil {
		return nil, err
	}
	return &Cache{
		fs:      fs,
		pinned:  make(map[types.Checksum]*Entry),
		memory:  newMemoryTier(uint64(opts.MemoryCacheSizeBytes.Bytes())),
		compile: compile,
		logger:  logger,
	}, nil
}

// Save persists validated code and its compiled module: blob to the
// filesystem tier, manifest next to the engine artifacts, module into the
// memory tier. Saving the same code again is a no-op re-insert.
func (c *Cache) Save(ctx context.Context, checksum types.Checksum, code []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fs.storeCode(checksum, code); err != nil {
		return err
	}

	// Same checksum means same code. When a module is already resident,
	// refreshing the durable tier is all there is to do.
	_, isPinned := c.pinned[checksum]
	_, inMemory := c.memory.entries[checksum]
	if isPinned || inMemory {
		return nil
	}

	module, err := c.compile(ctx, code)
	if err != nil {
		return err
	}
	if err := c.fs.storeManifest(checksum, uint64(len(code))); err != nil {
		// The blob round-trips without the manifest, it only costs a
		// recompile later.
		c.logger.Warn().Str("checksum", checksum.String()).Err(err).Msg("could not store module manifest")
	}
	c.insertLocked(ctx, newEntry(checksum, module, uint64(len(code))))
	c.logger.Info().Str("checksum", checksum.String()).Int("size", len(code)).Msg("stored contract code")
	return nil
}

// Code returns the raw code blob for the checksum.
func (c *Cache) Code(checksum types.Checksum) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fs.loadCode(checksum)
}

// Acquire resolves the checksum to a compiled module and takes a reference
// on it. The caller must Release the entry when its instance is gone.
func (c *Cache) Acquire(ctx context.Context, checksum types.Checksum) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.pinned[checksum]; ok {
		c.hitsPinned++
		e.hits++
		e.retain()
		return e, nil
	}
	if e, ok := c.memory.get(checksum); ok {
		c.hitsMemory++
		e.hits++
		e.retain()
		return e, nil
	}

	e, err := c.compileFromFsLocked(ctx, checksum)
	if err != nil {
		return nil, err
	}
	// Reference first: when the insert rejects or evicts the entry right
	// away, the close defers to the caller's Release.
	e.hits++
	e.retain()
	c.insertLocked(ctx, e)
	return e, nil
}

// compileFromFsLocked loads the blob and compiles it, counting the probe as
// a filesystem hit when a matching artifact manifest exists and as a miss
// otherwise. Requires c.mu.
func (c *Cache) compileFromFsLocked(ctx context.Context, checksum types.Checksum) (*Entry, error) {
	code, err := c.fs.loadCode(checksum)
	if err != nil {
		c.misses++
		return nil, err
	}
	if c.fs.loadManifest(checksum) {
		c.hitsFs++
	} else {
		c.misses++
	}
	module, err := c.compile(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("could not compile stored code %s: %w", checksum, err)
	}
	if err := c.fs.storeManifest(checksum, uint64(len(code))); err != nil {
		c.logger.Warn().Str("checksum", checksum.String()).Err(err).Msg("could not refresh module manifest")
	}
	return newEntry(checksum, module, uint64(len(code))), nil
}

// insertLocked backfills the memory tier, dooming whatever the insert
// evicts. Requires c.mu.
func (c *Cache) insertLocked(ctx context.Context, e *Entry) {
	evicted, ok := c.memory.add(e)
	for _, victim := range evicted {
		c.logger.Debug().Str("checksum", victim.checksum.String()).Msg("evicted module from memory cache")
		if err := victim.doom(ctx); err != nil {
			c.logger.Warn().Str("checksum", victim.checksum.String()).Err(err).Msg("could not close evicted module")
		}
	}
	if !ok {
		// Larger than the whole budget: the caller keeps its module, the
		// tier just does not retain it.
		c.logger.Debug().Str("checksum", e.checksum.String()).Uint64("size", e.size).Msg("module exceeds memory cache budget, not cached")
		e.doom(ctx)
	}
}

// Pin moves the module into the pinned tier, compiling from the filesystem
// tier if it is not in memory. Pinning twice is a no-op.
func (c *Cache) Pin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[checksum]; ok {
		return nil
	}
	if e, ok := c.memory.remove(checksum); ok {
		c.pinned[checksum] = e
		c.logger.Info().Str("checksum", checksum.String()).Msg("pinned module")
		return nil
	}
	e, err := c.compileFromFsLocked(ctx, checksum)
	if err != nil {
		return err
	}
	c.pinned[checksum] = e
	c.logger.Info().Str("checksum", checksum.String()).Msg("pinned module")
	return nil
}

// Unpin returns the module to the memory tier. Unpinning an entry that is
// not pinned is a no-op.
func (c *Cache) Unpin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.pinned[checksum]
	if !ok {
		return nil
	}
	delete(c.pinned, checksum)
	c.insertLocked(ctx, e)
	c.logger.Info().Str("checksum", checksum.String()).Msg("unpinned module")
	return nil
}

// Remove drops the code from every tier and deletes the blob. Removing
// pinned code is an error; Unpin first.
func (c *Cache) Remove(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[checksum]; ok {
		return fmt.Errorf("code %s is pinned and cannot be removed", checksum)
	}
	if e, ok := c.memory.remove(checksum); ok {
		if err := e.doom(ctx); err != nil {
			c.logger.Warn().Str("checksum", checksum.String()).Err(err).Msg("could not close removed module")
		}
	}
	c.fs.removeManifest(checksum)
	if err := c.fs.removeCode(checksum); err != nil {
		return err
	}
	c.logger.Info().Str("checksum", checksum.String()).Msg("removed contract code")
	return nil
}

// Metrics returns the tier counters.
func (c *Cache) Metrics() types.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pinnedSize uint64
	for _, e := range c.pinned {
		pinnedSize += e.size
	}
	return types.Metrics{
		HitsPinnedMemoryCache:     c.hitsPinned,
		HitsMemoryCache:           c.hitsMemory,
		HitsFsCache:               c.hitsFs,
		Misses:                    c.misses,
		ElementsPinnedMemoryCache: uint64(len(c.pinned)),
		ElementsMemoryCache:       c.memory.len(),
		SizePinnedMemoryCache:     pinnedSize,
		SizeMemoryCache:           c.memory.size(),
	}
}

// PinnedMetrics returns per-checksum counters for the pinned tier, ordered
// by checksum so the encoding is deterministic.
func (c *Cache) PinnedMetrics() types.PinnedMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]types.PerModuleEntry, 0, len(c.pinned))
	for checksum, e := range c.pinned {
		entries = append(entries, types.PerModuleEntry{
			Checksum: checksum,
			Metrics: types.PerModuleMetrics{
				Hits: e.hits,
				Size: e.size,
			},
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Checksum[:]) < string(entries[j].Checksum[:])
	})
	return types.PinnedMetrics{PerModule: entries}
}

// Close dooms every cached module and releases the directory lock. Modules
// with live references close on their last Release.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for checksum, e := range c.pinned {
		if err := e.doom(ctx); err != nil {
			c.logger.Warn().Str("checksum", checksum.String()).Err(err).Msg("could not close pinned module")
		}
	}
	c.pinned = make(map[types.Checksum]*Entry)
	for checksum, e := range c.memory.entries {
		if err := e.doom(ctx); err != nil {
			c.logger.Warn().Str("checksum", checksum.String()).Err(err).Msg("could not close cached module")
		}
	}
	c.memory = newMemoryTier(c.memory.budget)
	return c.fs.close()
}
