// Package engine compiles contracts into wazero modules and runs metered
// instances of them. One Engine backs one VM: it owns the shared wazero
// runtime, the env host module and the gas cost table, and it names the
// compatibility tag under which compiled artifacts may be reused.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/host"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// engineMajor versions the runtime identity component of the compatibility
// tag. It tracks the wazero major release plus any local change that alters
// what compiled artifacts contain.
const engineMajor = 1

// DefaultMemoryLimitPages caps guest memory at 32 MiB unless configured
// otherwise.
const DefaultMemoryLimitPages uint32 = 512

// compilationCacheDir is where wazero persists compiled artifacts, relative
// to the cache base directory.
const compilationCacheDir = "cache/wazero"

// Config parameterizes an Engine.
type Config struct {
	// BaseDir is the cache base directory. When set, compiled artifacts are
	// persisted under it and survive restarts. Empty disables persistence.
	BaseDir string
	// MemoryLimitPages caps the linear memory any instance may grow to, in
	// 64 KiB pages. Zero means DefaultMemoryLimitPages.
	MemoryLimitPages uint32
	// Costs is the host operation cost table. The zero value means
	// gas.DefaultCosts.
	Costs gas.Costs
	// Logger receives engine and host diagnostics.
	Logger zerolog.Logger
}

// Engine is the compilation and execution core. Safe for concurrent use:
// modules can be compiled and instantiated from any goroutine.
type Engine struct {
	runtime   wazero.Runtime
	compCache wazero.CompilationCache
	costs     gas.Costs
	pages     uint32
	tag       string
	logger    zerolog.Logger
}

// New creates an Engine and registers the env host module on its runtime.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	pages := cfg.MemoryLimitPages
	if pages == 0 {
		pages = DefaultMemoryLimitPages
	}
	costs := cfg.Costs
	if costs == (gas.Costs{}) {
		costs = gas.DefaultCosts()
	}

	rc := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(pages).
		WithCloseOnContextDone(true)

	var compCache wazero.CompilationCache
	if cfg.BaseDir != "" {
		dir := filepath.Join(cfg.BaseDir, filepath.FromSlash(compilationCacheDir))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, types.CacheIOError{Op: "create compilation cache directory", Err: err}
		}
		var err error
		compCache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, types.CacheIOError{Op: "open compilation cache", Err: err}
		}
		rc = rc.WithCompilationCache(compCache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rc)
	if err := host.Register(ctx, r); err != nil {
		r.Close(ctx)
		if compCache != nil {
			compCache.Close(ctx)
		}
		return nil, err
	}

	e := &Engine{
		runtime:   r,
		compCache: compCache,
		costs:     costs,
		pages:     pages,
		tag:       fmt.Sprintf("wazero-%d-%s-%s-mem%d", engineMajor, gas.MeteringSchemaVersion, costs.Fingerprint(), pages),
		logger:    cfg.Logger,
	}
	e.logger.Debug().Str("tag", e.tag).Msg("engine ready")
	return e, nil
}

// Tag returns the compatibility tag of this engine configuration. It covers
// the engine identity, the metering schema, the cost table and the memory
// limit; compiled artifacts are only reused under an identical tag.
func (e *Engine) Tag() string {
	return e.tag
}

// Costs returns the host operation cost table of this engine.
func (e *Engine) Costs() gas.Costs {
	return e.costs
}

// MemoryLimitBytes returns the instance memory limit in bytes.
func (e *Engine) MemoryLimitBytes() uint64 {
	return uint64(e.pages) * uint64(memory.WasmPageSize)
}

// Compile turns raw Wasm code into an executable module with gas metering
// baked in: the binary is rewritten so that every function entry and loop
// iteration decrements the exported gas counter. The signature matches what
// the module cache expects from its compile hook.
func (e *Engine) Compile(ctx context.Context, code []byte) (wazero.CompiledModule, error) {
	metered, err := gas.Instrument(code)
	if err != nil {
		return nil, fmt.Errorf("could not compile contract: %w", err)
	}
	module, err := e.runtime.CompileModule(ctx, metered)
	if err != nil {
		return nil, fmt.Errorf("could not compile contract: %w", err)
	}
	return module, nil
}

// Close releases the runtime and the persistent compilation cache. Compiled
// modules and instances created from this engine must not be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.compCache != nil {
		if cerr := e.compCache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
