// Package cosmwasm provides a WebAssembly runtime for smart contracts:
// checksum-keyed code storage, a tiered module cache and metered, sandboxed
// execution of the standard contract entry points.
package cosmwasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/cache"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/engine"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/host"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/validation"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// WasmCode is an alias for raw bytes of the wasm compiled code
type WasmCode []byte

// Checksum identifies stored code by the SHA-256 hash of its bytes
type Checksum = types.Checksum

// KVStore is a reference to some sub-kvstore that is valid for one instance of a code
type KVStore = types.KVStore

// GoAPI is a reference to some "precompiles", go callbacks
type GoAPI = types.GoAPI

// Querier lets us make read-only queries on other modules
type Querier = types.Querier

// GasMeter is a read-only version of the sdk gas meter
type GasMeter = types.GasMeter

// VM is the main entry point to this library.
// You should create an instance with its own subdirectory to manage state inside,
// and call it for all cosmwasm code related actions.
type VM struct {
	engine     *engine.Engine
	cache      *cache.Cache
	checks     validation.Config
	printDebug bool
	logger     zerolog.Logger
}

// NewVM creates a new VM.
//
// `dataDir` is a base directory for Wasm blobs and various caches.
// `supportedCapabilities` is a list of capabilities supported by the chain.
// `memoryLimit` is the memory limit of each contract execution (in MiB)
// `printDebug` is a flag to enable/disable printing debug logs from the contract to STDOUT. This should be false in production environments.
// `cacheSize` sets the size in MiB of an in-memory cache for e.g. module caching. Set to 0 to disable.
func NewVM(dataDir string, supportedCapabilities []string, memoryLimit uint32, printDebug bool, cacheSize uint32) (*VM, error) {
	logger := zerolog.Nop()
	if printDebug {
		logger = zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.DebugLevel)
	}
	return NewVMWithConfig(types.VMConfig{
		Cache: types.CacheOptions{
			BaseDir:                  dataDir,
			AvailableCapabilities:    supportedCapabilities,
			MemoryCacheSizeBytes:     types.NewSizeMebi(cacheSize),
			InstanceMemoryLimitBytes: types.NewSizeMebi(memoryLimit),
		},
	}, logger)
}

// NewVMWithConfig creates a new VM with a custom configuration.
// This allows for more fine-grained control over the VM's behavior compared to NewVM and
// can be extended more easily in the future.
//
// Contract debug output follows the logger: it is forwarded whenever the
// logger accepts debug-level events.
func NewVMWithConfig(config types.VMConfig, logger zerolog.Logger) (*VM, error) {
	ctx := context.Background()

	pages := engine.DefaultMemoryLimitPages
	if limit := config.Cache.InstanceMemoryLimitBytes.Bytes(); limit > 0 {
		pages = limit / memory.WasmPageSize
	}
	eng, err := engine.New(ctx, engine.Config{
		BaseDir:          config.Cache.BaseDir,
		MemoryLimitPages: pages,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	c, err := cache.New(config.Cache, eng.Tag(), eng.Compile, logger)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	level := logger.GetLevel()
	return &VM{
		engine: eng,
		cache:  c,
		checks: validation.Config{
			AvailableCapabilities: config.Cache.AvailableCapabilities,
			SupportedImports:      host.SupportedImports(),
			Limits:                config.WasmLimits,
		},
		printDebug: level <= zerolog.DebugLevel && level != zerolog.Disabled,
		logger:     logger,
	}, nil
}

// Cleanup should be called when no longer using this instance. It releases
// the module cache and the engine and unlocks the base directory.
func (vm *VM) Cleanup() {
	ctx := context.Background()
	if err := vm.cache.Close(ctx); err != nil {
		vm.logger.Warn().Err(err).Msg("could not close module cache")
	}
	if err := vm.engine.Close(ctx); err != nil {
		vm.logger.Warn().Err(err).Msg("could not close wasm engine")
	}
}

// StoreCode will compile the Wasm code, and store the resulting compiled module
// as well as the original code. Both can be referenced later via Checksum.
// This must be done one time for given code, after which it can be
// instatitated many times, and each instance called many times.
//
// For example, the code for all ERC-20 contracts should be the same.
// This function stores the code for that contract only once, but it can
// be instantiated with custom inputs in the future.
//
// Returns both the checksum, as well as the gas cost of compilation (in CosmWasm Gas) or an error.
func (vm *VM) StoreCode(code WasmCode, gasLimit uint64) (types.Checksum, uint64, error) {
	gasCost := compileCost(code)
	if gasLimit < gasCost {
		return types.Checksum{}, gasCost, types.OutOfGasError{Descriptor: "compile wasm code"}
	}

	checksum, err := types.CreateChecksum(code)
	if err != nil {
		return types.Checksum{}, gasCost, err
	}
	if err := validation.Validate(code, vm.checks); err != nil {
		return types.Checksum{}, gasCost, err
	}
	if err := vm.cache.Save(context.Background(), checksum, code); err != nil {
		return types.Checksum{}, gasCost, err
	}
	return checksum, gasCost, nil
}

// SimulateStoreCode is the same as StoreCode but does not actually store the code.
// This is useful for simulating all the validations happening in StoreCode without actually
// writing anything to disk.
func (vm *VM) SimulateStoreCode(code WasmCode, gasLimit uint64) (types.Checksum, uint64, error) {
	gasCost := compileCost(code)
	if gasLimit < gasCost {
		return types.Checksum{}, gasCost, types.OutOfGasError{Descriptor: "compile wasm code"}
	}

	checksum, err := types.CreateChecksum(code)
	if err != nil {
		return types.Checksum{}, gasCost, err
	}
	if err := validation.Validate(code, vm.checks); err != nil {
		return types.Checksum{}, gasCost, err
	}

	// Compile and throw the module away again, so a simulation catches
	// everything a real store would.
	ctx := context.Background()
	module, err := vm.engine.Compile(ctx, code)
	if err != nil {
		return types.Checksum{}, gasCost, err
	}
	if err := module.Close(ctx); err != nil {
		return types.Checksum{}, gasCost, err
	}
	return checksum, gasCost, nil
}

// StoreCodeUnchecked is the same as StoreCode but skips static validation checks and charges no gas.
// Use this for adding code that was checked before, particularly in the case of state sync.
func (vm *VM) StoreCodeUnchecked(code WasmCode) (types.Checksum, error) {
	checksum, err := types.CreateChecksum(code)
	if err != nil {
		return types.Checksum{}, err
	}
	if err := vm.cache.Save(context.Background(), checksum, code); err != nil {
		return types.Checksum{}, err
	}
	return checksum, nil
}

// RemoveCode removes a code from the VM. Pinned code must be unpinned before
// it can be removed.
func (vm *VM) RemoveCode(checksum types.Checksum) error {
	return vm.cache.Remove(context.Background(), checksum)
}

// GetCode will load the original Wasm code for the given checksum.
// This will only succeed if that checksum was previously returned from
// a call to StoreCode.
//
// This can be used so that the (short) checksum is stored in the iavl tree
// and the larger binary blobs (wasm and compiled modules) are all managed
// by this VM.
func (vm *VM) GetCode(checksum types.Checksum) (WasmCode, error) {
	return vm.cache.Code(checksum)
}

// Pin pins a code to an in-memory cache, such that is
// always loaded quickly when executed.
// Pin is idempotent.
func (vm *VM) Pin(checksum types.Checksum) error {
	return vm.cache.Pin(context.Background(), checksum)
}

// Unpin removes the guarantee of a contract to be pinned (see Pin).
// After calling this, the code may or may not remain in memory depending on
// the cache's eviction policy.
// Unpin is idempotent.
func (vm *VM) Unpin(checksum types.Checksum) error {
	return vm.cache.Unpin(context.Background(), checksum)
}

// AnalyzeCode returns a report of static analysis of the wasm contract (uncompiled).
// This contract must have been stored in the cache previously (via StoreCode).
// Only info currently needed is whether it exposes all ibc entry points, but this
// could be extended later.
func (vm *VM) AnalyzeCode(checksum types.Checksum) (*types.AnalysisReport, error) {
	code, err := vm.cache.Code(checksum)
	if err != nil {
		return nil, err
	}
	module, err := validation.Parse(code)
	if err != nil {
		return nil, err
	}
	report := module.Analyze()
	return &report, nil
}

// GetMetrics some internal metrics for monitoring purposes.
func (vm *VM) GetMetrics() (*types.Metrics, error) {
	metrics := vm.cache.Metrics()
	return &metrics, nil
}

// GetPinnedMetrics returns some internal metrics of pinned contracts for monitoring purposes.
// The order of entries is non-deterministic and the values are node-specific. Don't use this in consensus-critical contexts.
func (vm *VM) GetPinnedMetrics() (*types.PinnedMetrics, error) {
	metrics := vm.cache.PinnedMetrics()
	return &metrics, nil
}

// ContractCallParams bundles everything a single contract call needs: the
// code reference, the pre-serialized env/info/msg payloads, and the chain
// callbacks valid for exactly this call.
type ContractCallParams struct {
	Checksum types.Checksum
	// Env is the serialized environment (block, transaction, contract info).
	Env []byte
	// Info is the serialized message metadata. Only instantiate and execute
	// use it.
	Info []byte
	// Msg is the contract-specific request payload.
	Msg      []byte
	Store    KVStore
	API      *GoAPI
	Querier  Querier
	GasMeter GasMeter
	// GasLimit is the call budget in Cosmos SDK gas units.
	GasLimit uint64
	// DeserCost is the gas cost per result byte for deserializing the
	// contract response.
	DeserCost types.UFraction
}

// Instantiate will create a new contract based on the given Checksum.
// We can set the initMsg (contract "genesis") here, and it then receives
// an account and address and can be invoked (Execute) many times.
//
// Storage should be set with a PrefixedKVStore that this code can safely access.
//
// Under the hood, we may recompile the wasm, use a cached native compile, or even use a cached instance
// for performance.
func (vm *VM) Instantiate(params ContractCallParams) (*types.ContractResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("instantiate", params, false, staticArgs(params.Env, params.Info, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// Execute calls a given contract. Since the only difference between contracts with the same Checksum is the
// data in their local storage, and their address in the outside world, we need no ContractID here.
// (That is a detail for the external, sdk-facing, side).
//
// The caller is responsible for passing the correct `store` (which must have been initialized exactly once),
// and setting the env with relevant info on this instance (address, balance, etc).
func (vm *VM) Execute(params ContractCallParams) (*types.ContractResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("execute", params, false, staticArgs(params.Env, params.Info, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// Query allows a client to execute a contract-specific query. If the result is not empty, it should be
// valid json-encoded data to return to the client.
// The meaning of path and data can be determined by the code. Path is the suffix of the abci.QueryRequest.Path.
//
// Queries run with a read-only view of the store: writes and deletes from
// within the contract are rejected.
func (vm *VM) Query(params ContractCallParams) (*types.QueryResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("query", params, true, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.QueryResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// Migrate will migrate an existing contract to a new code binary.
// This takes storage of the data from the original contract and the Checksum of the new contract that should
// replace it. This allows it to run a migration step if needed, or return an error if unable to migrate
// the given data.
//
// MigrateMsg has some data on how to perform the migration.
func (vm *VM) Migrate(params ContractCallParams) (*types.ContractResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("migrate", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// MigrateWithInfo is like Migrate but passes the contract additional context
// about the migration: the sender and the previously stored migrate version.
// Contracts whose migrate entry point predates migrate info receive only env
// and msg, exactly as in Migrate.
func (vm *VM) MigrateWithInfo(params ContractCallParams, migrateInfo types.MigrateInfo) (*types.ContractResult, types.GasReport, error) {
	info, err := json.Marshal(migrateInfo)
	if err != nil {
		return nil, types.GasReport{}, fmt.Errorf("could not serialize migrate info: %w", err)
	}

	data, gasReport, err := vm.callContract("migrate", params, false, func(inst *engine.Instance) ([][]byte, error) {
		arity, err := inst.ParamCount("migrate")
		if err != nil {
			return nil, err
		}
		if arity == 3 {
			return [][]byte{params.Env, params.Msg, info}, nil
		}
		return [][]byte{params.Env, params.Msg}, nil
	})
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// Sudo allows native Go modules to make privileged (sudo) calls on the contract.
// The contract can expose entry points that cannot be triggered by any transaction, but only via
// native Go modules, and delegate the access control to the system.
//
// These work much like Migrate (same scenario) but allows free pass to the contract.
func (vm *VM) Sudo(params ContractCallParams) (*types.ContractResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("sudo", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// Reply allows the native Go wasm modules to make a privileged call to return the result
// of executing a SubMsg.
//
// These work much like Sudo (same scenario) but focuses on one specific case (and one message type).
func (vm *VM) Reply(params ContractCallParams) (*types.ContractResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("reply", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.ContractResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCChannelOpen is available on IBC-enabled contracts and is a hook to call into
// during the handshake phase.
func (vm *VM) IBCChannelOpen(params ContractCallParams) (*types.IBCChannelOpenResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_channel_open", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCChannelOpenResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCChannelConnect is available on IBC-enabled contracts and is a hook to call into
// during the handshake phase.
func (vm *VM) IBCChannelConnect(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_channel_connect", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCChannelClose is available on IBC-enabled contracts and is a hook to call into
// at the end of the channel lifetime.
func (vm *VM) IBCChannelClose(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_channel_close", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCPacketReceive is available on IBC-enabled contracts and is called when an incoming
// packet is received on a channel belonging to this contract.
func (vm *VM) IBCPacketReceive(params ContractCallParams) (*types.IBCReceiveResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_packet_receive", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCReceiveResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCPacketAck is available on IBC-enabled contracts and is called when an
// the response for an outgoing packet (previously sent by this contract)
// is received.
func (vm *VM) IBCPacketAck(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_packet_ack", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCPacketTimeout is available on IBC-enabled contracts and is called when an
// outgoing packet (previously sent by this contract) will provably never be executed.
// Usually handled like ack returning an error.
func (vm *VM) IBCPacketTimeout(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_packet_timeout", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCSourceCallback is available on IBC-enabled contracts with the corresponding entrypoint
// and should be called when the response (ack or timeout) for an outgoing callbacks-enabled packet
// (previously sent by this contract) is received.
func (vm *VM) IBCSourceCallback(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_source_callback", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// IBCDestinationCallback is available on IBC-enabled contracts with the corresponding entrypoint
// and should be called when an incoming callbacks-enabled IBC packet is received.
func (vm *VM) IBCDestinationCallback(params ContractCallParams) (*types.IBCBasicResult, types.GasReport, error) {
	data, gasReport, err := vm.callContract("ibc_destination_callback", params, false, staticArgs(params.Env, params.Msg))
	if err != nil {
		return nil, gasReport, err
	}

	var result types.IBCBasicResult
	if err := DeserializeResponse(gasReport.Limit, params.DeserCost, &gasReport, data, &result); err != nil {
		return nil, gasReport, err
	}
	return &result, gasReport, nil
}

// argsBuilder produces the payloads for one entry point call. Most entry
// points know their arguments up front; migrate inspects the instance first
// to pick between its two signatures.
type argsBuilder func(inst *engine.Instance) ([][]byte, error)

func staticArgs(args ...[]byte) argsBuilder {
	return func(*engine.Instance) ([][]byte, error) {
		return args, nil
	}
}

// callContract runs one entry point on a fresh instance of the contract
// behind the checksum and returns the raw response bytes together with the
// gas report of the call.
func (vm *VM) callContract(entrypoint string, params ContractCallParams, readonly bool, build argsBuilder) ([]byte, types.GasReport, error) {
	ctx := context.Background()

	code, err := vm.cache.Acquire(ctx, params.Checksum)
	if err != nil {
		return nil, types.GasReport{}, err
	}
	defer func() {
		if err := code.Release(ctx); err != nil {
			vm.logger.Warn().Str("checksum", params.Checksum.String()).Err(err).Msg("could not release module")
		}
	}()

	inst, err := vm.engine.NewInstance(ctx, code.Module(), engine.Bindings{
		Store:    params.Store,
		API:      params.API,
		Querier:  params.Querier,
		GasMeter: params.GasMeter,
		GasLimit: params.GasLimit,
		Readonly: readonly,
		Debug:    vm.printDebug,
	})
	if err != nil {
		return nil, types.GasReport{}, err
	}
	defer func() {
		if err := inst.Dispose(ctx); err != nil {
			vm.logger.Warn().Err(err).Msg("could not dispose contract instance")
		}
	}()

	args, err := build(inst)
	if err != nil {
		return nil, inst.GasReport(), err
	}

	data, err := inst.Call(ctx, entrypoint, args...)
	gasReport := inst.GasReport()
	if err != nil {
		return nil, gasReport, err
	}
	return data, gasReport, nil
}

func compileCost(code WasmCode) uint64 {
	return gas.CompileCostPerByte * uint64(len(code))
}

// hasSubMessages is an interface for contract results that can contain sub-messages.
type hasSubMessages interface {
	SubMessages() []types.SubMsg
}

// make sure the types implement the interface
// cannot put these next to the types, as the interface is private.
var (
	_ hasSubMessages = (*types.IBCBasicResult)(nil)
	_ hasSubMessages = (*types.IBCReceiveResult)(nil)
	_ hasSubMessages = (*types.ContractResult)(nil)
)

// DeserializeResponse deserializes a contract response and charges the
// deserialization gas against the report.
func DeserializeResponse(gasLimit uint64, deserCost types.UFraction, gasReport *types.GasReport, data []byte, response any) error {
	if len(data) == 0 {
		return errors.New("empty response data")
	}

	gasForDeserialization := deserCost.Mul(uint64(len(data))).Floor()
	if gasForDeserialization > gasLimit {
		return errors.New("gas limit exceeded for deserialization")
	}

	if err := json.Unmarshal(data, response); err != nil {
		return fmt.Errorf("failed to deserialize response: %w", err)
	}

	if gasReport != nil {
		gasReport.UsedInternally += gasForDeserialization
		gasReport.Remaining -= gasForDeserialization
	}

	return nil
}
