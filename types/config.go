package types

import (
	"encoding/json"
)

// VMConfig contains the configuration of the VM.
type VMConfig struct {
	// WasmLimits are the limits that are used for static validation of Wasm
	// binaries during StoreCode. Unset fields fall back to built-in defaults.
	WasmLimits WasmLimits `json:"wasm_limits"`
	// Cache configures code storage and module caching.
	Cache CacheOptions `json:"cache"`
}

// WasmLimits are the limits that are used for static validation of Wasm
// binaries. All fields are optional. Nil means "use the default limit".
type WasmLimits struct {
	// InitialMemoryLimitPages is the maximum number of memory pages
	// (64 KiB each) a Wasm binary may declare as its initial memory.
	InitialMemoryLimitPages *uint32 `json:"initial_memory_limit_pages,omitempty"`
	// TableSizeLimitElements is the upper limit of the declared size of
	// the function table.
	TableSizeLimitElements *uint32 `json:"table_size_limit_elements,omitempty"`
	// MaxImports is the maximum number of imports a binary may declare.
	MaxImports *uint32 `json:"max_imports,omitempty"`
	// MaxFunctions is the maximum number of functions a binary may declare.
	MaxFunctions *uint32 `json:"max_functions,omitempty"`
	// MaxFunctionParams is the maximum number of parameters of a single function.
	MaxFunctionParams *uint32 `json:"max_function_params,omitempty"`
	// MaxTotalFunctionParams is the maximum of the sum of all declared
	// function parameter counts.
	MaxTotalFunctionParams *uint32 `json:"max_total_function_params,omitempty"`
	// MaxFunctionResults is the maximum number of results of a single function.
	MaxFunctionResults *uint32 `json:"max_function_results,omitempty"`
}

// CacheOptions configures the code and module caches of the VM.
type CacheOptions struct {
	// BaseDir is the directory the cache stores code blobs and compiled
	// modules in. It is exclusively owned by one VM at a time.
	BaseDir string `json:"base_dir"`
	// AvailableCapabilities is the set of capabilities supported by this
	// chain. Contracts requiring anything outside of this set are rejected
	// during StoreCode.
	AvailableCapabilities []string `json:"available_capabilities"`
	// MemoryCacheSizeBytes is the combined size limit of all modules held
	// in the in-memory cache. Pinned modules are accounted separately and
	// do not count against this limit.
	MemoryCacheSizeBytes Size `json:"memory_cache_size_bytes"`
	// InstanceMemoryLimitBytes is the maximum amount of guest memory a
	// single contract instance may grow to.
	InstanceMemoryLimitBytes Size `json:"instance_memory_limit_bytes"`
}

// NewCacheOptions returns a CacheOptions with a capability set given as a list.
func NewCacheOptions(baseDir string, capabilities []string, memoryCacheSize Size, instanceMemoryLimit Size) CacheOptions {
	return CacheOptions{
		BaseDir:                  baseDir,
		AvailableCapabilities:    capabilities,
		MemoryCacheSizeBytes:     memoryCacheSize,
		InstanceMemoryLimitBytes: instanceMemoryLimit,
	}
}

// Size is a number of bytes. It is wrapped in a struct to require the use of
// one of the explicit constructors below at call sites.
type Size struct{ uint32 }

func (s Size) Bytes() uint32 {
	return s.uint32
}

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.uint32)
}

func (s *Size) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.uint32)
}

func NewSize(v uint32) Size {
	return Size{v}
}

func NewSizeKilo(v uint32) Size {
	return Size{v * 1000}
}

func NewSizeKibi(v uint32) Size {
	return Size{v * 1024}
}

func NewSizeMega(v uint32) Size {
	return Size{v * 1000 * 1000}
}

func NewSizeMebi(v uint32) Size {
	return Size{v * 1024 * 1024}
}

func NewSizeGiga(v uint32) Size {
	return Size{v * 1000 * 1000 * 1000}
}

func NewSizeGibi(v uint32) Size {
	return Size{v * 1024 * 1024 * 1024}
}
