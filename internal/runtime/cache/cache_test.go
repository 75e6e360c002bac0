package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/wasmvm/v2/internal/wasmbuilder"
	"github.com/CosmWasm/wasmvm/v2/types"
)

const testTag = "wazero-1-gas1-deadbeefdeadbeef-mem512"

func testOptions(dir string, budget uint32) types.CacheOptions {
	return types.CacheOptions{
		BaseDir:                  dir,
		MemoryCacheSizeBytes:     types.NewSize(budget),
		InstanceMemoryLimitBytes: types.NewSizeMebi(32),
	}
}

// newTestCache backs the cache with a real compiler so entries behave like
// production ones.
func newTestCache(t *testing.T, dir string, budget uint32, tag string) *Cache {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })

	c, err := New(testOptions(dir, budget), tag, func(ctx context.Context, code []byte) (wazero.CompiledModule, error) {
		return r.CompileModule(ctx, code)
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(ctx) })
	return c
}

func save(t *testing.T, c *Cache, code []byte) types.Checksum {
	t.Helper()
	checksum, err := types.CreateChecksum(code)
	require.NoError(t, err)
	require.NoError(t, c.Save(context.Background(), checksum, code))
	return checksum
}

func TestSaveAndAcquire(t *testing.T) {
	ctx := context.Background()
	code := wasmbuilder.Contract()
	c := newTestCache(t, t.TempDir(), uint32(10*len(code)), testTag)

	checksum := save(t, c, code)

	entry, err := c.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NotNil(t, entry.Module())
	assert.Equal(t, checksum, entry.Checksum())
	_, hasAllocate := entry.Module().ExportedFunctions()["allocate"]
	assert.True(t, hasAllocate)
	require.NoError(t, entry.Release(ctx))

	m := c.Metrics()
	assert.Equal(t, uint32(1), m.HitsMemoryCache)
	assert.Equal(t, uint32(0), m.Misses)
	assert.Equal(t, uint64(1), m.ElementsMemoryCache)
	assert.Equal(t, uint64(len(code)), m.SizeMemoryCache)
}

func TestAcquireUnknownChecksum(t *testing.T) {
	c := newTestCache(t, t.TempDir(), 1<<20, testTag)

	unknown := types.ForceNewChecksum("beefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeef")
	_, err := c.Acquire(context.Background(), unknown)
	require.Error(t, err)
	assert.Equal(t, types.NoSuchCodeError{Checksum: unknown}, err)
	assert.Equal(t, uint32(1), c.Metrics().Misses)
}

func TestCodeRoundTrip(t *testing.T) {
	code := wasmbuilder.Contract()
	c := newTestCache(t, t.TempDir(), uint32(10*len(code)), testTag)
	checksum := save(t, c, code)

	loaded, err := c.Code(checksum)
	require.NoError(t, err)
	assert.Equal(t, code, loaded)

	unknown := types.ForceNewChecksum("beefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeefbeef")
	_, err = c.Code(unknown)
	assert.Equal(t, types.NoSuchCodeError{Checksum: unknown}, err)
}

func TestPinnedSurvivesEviction(t *testing.T) {
	ctx := context.Background()
	a := wasmbuilder.MigrateVersionContract(1)
	// budget holds one module at a time
	c := newTestCache(t, t.TempDir(), uint32(len(a)+len(a)/2), testTag)

	checksumA := save(t, c, a)
	require.NoError(t, c.Pin(ctx, checksumA))

	// every save evicts the previous memory-tier resident
	for v := uint64(2); v < 6; v++ {
		save(t, c, wasmbuilder.MigrateVersionContract(v))
	}

	entry, err := c.Acquire(ctx, checksumA)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))

	m := c.Metrics()
	assert.Equal(t, uint32(1), m.HitsPinnedMemoryCache)
	assert.Equal(t, uint64(1), m.ElementsPinnedMemoryCache)
	assert.Equal(t, uint64(1), m.ElementsMemoryCache)

	pm := c.PinnedMetrics()
	require.Len(t, pm.PerModule, 1)
	assert.Equal(t, checksumA.Bytes(), pm.PerModule[0].Checksum)
	assert.Equal(t, uint32(1), pm.PerModule[0].Metrics.Hits)
	assert.Equal(t, uint64(len(a)), pm.PerModule[0].Metrics.Size)
}

func TestAcquireFromFsAfterEviction(t *testing.T) {
	ctx := context.Background()
	a := wasmbuilder.MigrateVersionContract(1)
	b := wasmbuilder.MigrateVersionContract(2)
	c := newTestCache(t, t.TempDir(), uint32(len(a)+len(a)/2), testTag)

	checksumA := save(t, c, a)
	save(t, c, b) // evicts a

	entry, err := c.Acquire(ctx, checksumA)
	require.NoError(t, err)
	_, hasAllocate := entry.Module().ExportedFunctions()["allocate"]
	assert.True(t, hasAllocate)
	require.NoError(t, entry.Release(ctx))

	m := c.Metrics()
	assert.Equal(t, uint32(1), m.HitsFsCache)
	assert.Equal(t, uint32(0), m.Misses)

	code, err := c.Code(checksumA)
	require.NoError(t, err)
	assert.Equal(t, a, code)
}

func TestManifestTagMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	code := wasmbuilder.Contract()
	budget := uint32(len(code)) / 2 // nothing stays in memory

	c1 := newTestCache(t, dir, budget, testTag)
	checksum := save(t, c1, code)
	require.NoError(t, c1.Close(ctx))

	// an artifact recorded under another engine configuration is a miss,
	// not an error
	c2 := newTestCache(t, dir, budget, "wazero-1-gas1-0000000000000000-mem256")
	entry, err := c2.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(1), c2.Metrics().Misses)
	assert.Equal(t, uint32(0), c2.Metrics().HitsFsCache)

	// the recompile refreshed the manifest under the new tag
	entry, err = c2.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(1), c2.Metrics().HitsFsCache)
}

func TestUndecodableManifest(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	code := wasmbuilder.Contract()
	budget := uint32(len(code)) / 2

	c1 := newTestCache(t, dir, budget, testTag)
	checksum := save(t, c1, code)
	require.NoError(t, os.WriteFile(c1.fs.manifestPath(checksum), []byte("not msgpack"), 0o644))

	entry, err := c1.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(1), c1.Metrics().Misses)
}

func TestPinUnpin(t *testing.T) {
	ctx := context.Background()
	code := wasmbuilder.Contract()
	c := newTestCache(t, t.TempDir(), uint32(10*len(code)), testTag)
	checksum := save(t, c, code)

	require.NoError(t, c.Pin(ctx, checksum))
	require.NoError(t, c.Pin(ctx, checksum)) // idempotent

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.ElementsPinnedMemoryCache)
	assert.Equal(t, uint64(0), m.ElementsMemoryCache) // moved, not copied
	assert.Equal(t, uint64(len(code)), m.SizePinnedMemoryCache)

	require.NoError(t, c.Unpin(ctx, checksum))
	require.NoError(t, c.Unpin(ctx, checksum)) // idempotent

	m = c.Metrics()
	assert.Equal(t, uint64(0), m.ElementsPinnedMemoryCache)
	assert.Equal(t, uint64(1), m.ElementsMemoryCache)

	// pinning code no tier knows reports the absence
	c2 := newTestCache(t, t.TempDir(), uint32(10*len(code)), testTag)
	err := c2.Pin(ctx, checksum)
	assert.Equal(t, types.NoSuchCodeError{Checksum: checksum}, err)
}

func TestPinFromFs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	code := wasmbuilder.Contract()

	c1 := newTestCache(t, dir, uint32(10*len(code)), testTag)
	checksum := save(t, c1, code)
	require.NoError(t, c1.Close(ctx))

	c2 := newTestCache(t, dir, uint32(10*len(code)), testTag)
	require.NoError(t, c2.Pin(ctx, checksum))
	assert.Equal(t, uint64(1), c2.Metrics().ElementsPinnedMemoryCache)

	entry, err := c2.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(1), c2.Metrics().HitsPinnedMemoryCache)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	code := wasmbuilder.Contract()
	c := newTestCache(t, t.TempDir(), uint32(10*len(code)), testTag)
	checksum := save(t, c, code)

	require.NoError(t, c.Pin(ctx, checksum))
	err := c.Remove(ctx, checksum)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinned")

	require.NoError(t, c.Unpin(ctx, checksum))
	require.NoError(t, c.Remove(ctx, checksum))

	_, err = c.Acquire(ctx, checksum)
	assert.Equal(t, types.NoSuchCodeError{Checksum: checksum}, err)
	_, err = c.Code(checksum)
	assert.Equal(t, types.NoSuchCodeError{Checksum: checksum}, err)

	// removing twice reports the absence
	err = c.Remove(ctx, checksum)
	assert.Equal(t, types.NoSuchCodeError{Checksum: checksum}, err)
}

// countedModule observes when the cache really closes a compiled module.
type countedModule struct {
	wazero.CompiledModule
	closes *atomic.Int32
}

func (m countedModule) Close(ctx context.Context) error {
	m.closes.Add(1)
	return m.CompiledModule.Close(ctx)
}

func TestEvictionDefersCloseToLastRelease(t *testing.T) {
	ctx := context.Background()
	a := wasmbuilder.MigrateVersionContract(1)
	b := wasmbuilder.MigrateVersionContract(2)

	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })
	var closes atomic.Int32
	c, err := New(testOptions(t.TempDir(), uint32(len(a)+len(a)/2)), testTag, func(ctx context.Context, code []byte) (wazero.CompiledModule, error) {
		cm, err := r.CompileModule(ctx, code)
		if err != nil {
			return nil, err
		}
		return countedModule{CompiledModule: cm, closes: &closes}, nil
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(ctx) })

	checksumA := save(t, c, a)
	entry, err := c.Acquire(ctx, checksumA)
	require.NoError(t, err)

	// the eviction must not close the module while the reference is live
	save(t, c, b)
	assert.Equal(t, int32(0), closes.Load())

	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, int32(1), closes.Load())
}

func TestOversizedModuleNotCached(t *testing.T) {
	ctx := context.Background()
	code := wasmbuilder.Contract()
	c := newTestCache(t, t.TempDir(), uint32(len(code)-1), testTag)

	// saving still works, the module just never becomes memory resident
	checksum := save(t, c, code)
	assert.Equal(t, uint64(0), c.Metrics().ElementsMemoryCache)

	entry, err := c.Acquire(ctx, checksum)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint64(0), c.Metrics().ElementsMemoryCache)
	assert.Equal(t, uint32(1), c.Metrics().HitsFsCache)
}

func TestExclusiveLock(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c1 := newTestCache(t, dir, 1<<20, testTag)

	_, err := New(testOptions(dir, 1<<20), testTag, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exclusive.lock")

	require.NoError(t, c1.Close(ctx))
	c2, err := New(testOptions(dir, 1<<20), testTag, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c2.Close(ctx))
}

func TestLRUOrderIsByUse(t *testing.T) {
	ctx := context.Background()
	a := wasmbuilder.MigrateVersionContract(1)
	b := wasmbuilder.MigrateVersionContract(2)
	d := wasmbuilder.MigrateVersionContract(3)
	// budget holds two modules
	c := newTestCache(t, t.TempDir(), uint32(2*len(a)+len(a)/2), testTag)

	checksumA := save(t, c, a)
	checksumB := save(t, c, b)

	// touching a makes b the eviction candidate
	entry, err := c.Acquire(ctx, checksumA)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))

	save(t, c, d)

	// a still memory resident, b only on the filesystem tier
	entry, err = c.Acquire(ctx, checksumA)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(2), c.Metrics().HitsMemoryCache)

	entry, err = c.Acquire(ctx, checksumB)
	require.NoError(t, err)
	require.NoError(t, entry.Release(ctx))
	assert.Equal(t, uint32(1), c.Metrics().HitsFsCache)
}
