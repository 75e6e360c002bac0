// Package validation implements the static checks a contract binary must
// pass before it is compiled or stored. All rejections are
// types.StaticValidationError values naming the violated rule.
package validation

import (
	"sort"
	"strings"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// MaxWasmSize is the hard cap on contract binary size. WasmLimits carries
// no size field, so this is not configurable per cache.
const MaxWasmSize = 800 * 1024

// Defaults applied when the corresponding WasmLimits field is unset.
const (
	DefaultMemoryLimitPages       uint32 = 512
	DefaultTableSizeLimit         uint32 = 2500
	DefaultMaxImports             uint32 = 100
	DefaultMaxFunctions           uint32 = 20_000
	DefaultMaxFunctionParams      uint32 = 100
	DefaultMaxTotalFunctionParams uint32 = 10_000
	DefaultMaxFunctionResults     uint32 = 1
)

// RequiresPrefix marks exports that declare a capability requirement,
// e.g. requires_iterator.
const RequiresPrefix = "requires_"

// interfaceVersionPrefix marks the contract interface version export. The
// runtime speaks exactly one version.
const (
	interfaceVersionPrefix    = "interface_version_"
	supportedInterfaceVersion = "interface_version_8"
)

// Config holds everything the rules need to know about the chain.
type Config struct {
	// AvailableCapabilities the chain offers, e.g. "iterator", "staking".
	AvailableCapabilities []string
	// SupportedImports is the set of env host function names the runtime
	// provides.
	SupportedImports map[string]struct{}
	// Limits for the structural checks. Nil fields fall back to defaults.
	Limits types.WasmLimits
}

// Validate parses code and runs all static rules against it.
func Validate(code []byte, cfg Config) error {
	module, err := Parse(code)
	if err != nil {
		return err
	}
	return Check(module, uint64(len(code)), cfg)
}

// Check runs the static rules on a parsed module. codeSize is the byte size
// of the original binary.
func Check(m *Module, codeSize uint64, cfg Config) error {
	if codeSize > MaxWasmSize {
		return types.NewStaticValidationError("binary of %d bytes exceeds the %d byte limit", codeSize, MaxWasmSize)
	}
	if err := checkInterfaceVersion(m); err != nil {
		return err
	}
	if err := checkExports(m); err != nil {
		return err
	}
	if err := checkMemories(m, limitOr(cfg.Limits.InitialMemoryLimitPages, DefaultMemoryLimitPages)); err != nil {
		return err
	}
	if err := checkTables(m, limitOr(cfg.Limits.TableSizeLimitElements, DefaultTableSizeLimit)); err != nil {
		return err
	}
	if err := checkFunctionLimits(m, cfg.Limits); err != nil {
		return err
	}
	if err := checkImports(m, limitOr(cfg.Limits.MaxImports, DefaultMaxImports), cfg.SupportedImports); err != nil {
		return err
	}
	if err := checkCapabilities(m, cfg.AvailableCapabilities); err != nil {
		return err
	}
	if m.floatUsage != "" {
		return types.NewStaticValidationError("float instruction or type detected (%s), the deterministic subset forbids floats", m.floatUsage)
	}
	return nil
}

func limitOr(v *uint32, def uint32) uint32 {
	if v != nil {
		return *v
	}
	return def
}

func checkInterfaceVersion(m *Module) error {
	var markers []string
	for name := range m.exports {
		if strings.HasPrefix(name, interfaceVersionPrefix) {
			markers = append(markers, name)
		}
	}
	switch len(markers) {
	case 0:
		return types.NewStaticValidationError("contract is missing the required marker export %s*", interfaceVersionPrefix)
	case 1:
		if markers[0] != supportedInterfaceVersion {
			return types.NewStaticValidationError("contract has unknown marker export %q, this runtime requires %s", markers[0], supportedInterfaceVersion)
		}
		return nil
	default:
		return types.NewStaticValidationError("contract has more than one %s* marker export", interfaceVersionPrefix)
	}
}

func checkExports(m *Module) error {
	for _, required := range []string{"allocate", "deallocate"} {
		kind, ok := m.exports[required]
		if !ok {
			return types.NewStaticValidationError("contract is missing the required export %q", required)
		}
		if kind != kindFunc {
			return types.NewStaticValidationError("export %q is not a function", required)
		}
	}
	return nil
}

func checkMemories(m *Module, limitPages uint32) error {
	if len(m.memories) != 1 {
		return types.NewStaticValidationError("contract must contain exactly one memory, found %d", len(m.memories))
	}
	if mem := m.memories[0]; mem.min > limitPages {
		return types.NewStaticValidationError("memory minimum of %d pages exceeds the %d page limit", mem.min, limitPages)
	}
	for _, imp := range m.imports {
		if imp.kind == kindMemory {
			return types.NewStaticValidationError("contract must not import memory %q", imp.module+"."+imp.name)
		}
	}
	return nil
}

func checkTables(m *Module, limitEntries uint32) error {
	switch len(m.tables) {
	case 0:
		return nil
	case 1:
		table := m.tables[0]
		if !table.hasMax {
			return types.NewStaticValidationError("contract table must declare a maximum size")
		}
		if table.max > limitEntries {
			return types.NewStaticValidationError("table maximum of %d entries exceeds the %d entry limit", table.max, limitEntries)
		}
		return nil
	default:
		return types.NewStaticValidationError("contract must not contain more than one table, found %d", len(m.tables))
	}
}

func checkFunctionLimits(m *Module, limits types.WasmLimits) error {
	maxFunctions := limitOr(limits.MaxFunctions, DefaultMaxFunctions)
	if uint32(len(m.funcs)) > maxFunctions {
		return types.NewStaticValidationError("%d functions exceed the limit of %d", len(m.funcs), maxFunctions)
	}

	maxParams := limitOr(limits.MaxFunctionParams, DefaultMaxFunctionParams)
	maxResults := limitOr(limits.MaxFunctionResults, DefaultMaxFunctionResults)
	for i, t := range m.types {
		if uint32(len(t.params)) > maxParams {
			return types.NewStaticValidationError("function type %d has %d parameters, the limit is %d", i, len(t.params), maxParams)
		}
		if uint32(len(t.results)) > maxResults {
			return types.NewStaticValidationError("function type %d has %d results, the limit is %d", i, len(t.results), maxResults)
		}
	}

	maxTotal := limitOr(limits.MaxTotalFunctionParams, DefaultMaxTotalFunctionParams)
	var total uint64
	for _, typeIdx := range m.funcs {
		total += uint64(len(m.types[typeIdx].params))
	}
	if total > uint64(maxTotal) {
		return types.NewStaticValidationError("functions declare %d parameters in total, the limit is %d", total, maxTotal)
	}
	return nil
}

func checkImports(m *Module, maxImports uint32, supported map[string]struct{}) error {
	if uint32(len(m.imports)) > maxImports {
		return types.NewStaticValidationError("%d imports exceed the limit of %d", len(m.imports), maxImports)
	}
	for _, imp := range m.imports {
		full := imp.module + "." + imp.name
		if imp.kind != kindFunc {
			return types.NewStaticValidationError("contract requires non-function import %q", full)
		}
		if imp.module != "env" {
			return types.NewStaticValidationError("import %q is outside the env namespace", full)
		}
		if _, ok := supported[imp.name]; !ok {
			return types.NewStaticValidationError("contract requires unsupported import %q", full)
		}
	}
	return nil
}

func checkCapabilities(m *Module, available []string) error {
	availableSet := make(map[string]struct{}, len(available))
	for _, capability := range available {
		availableSet[capability] = struct{}{}
	}
	var missing []string
	for _, required := range m.RequiredCapabilities() {
		if _, ok := availableSet[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return types.NewStaticValidationError("contract requires unavailable capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}
