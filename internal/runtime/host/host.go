// Package host implements the env module contracts import: storage access,
// the address API, crypto verifiers, chain queries and diagnostics. Every
// pointer a contract passes is a Region descriptor in guest memory and is
// validated before any byte is copied.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// ModuleName is the import namespace contracts link against.
const ModuleName = "env"

// Input limits of the host functions. A region longer than the limit of its
// parameter aborts the call before any copy.
const (
	maxKeyLength              = 64 * 1024
	maxValueLength            = 128 * 1024
	maxHumanAddressLength     = 256
	maxCanonicalAddressLength = 64
	maxQueryRequestLength     = 64 * 1024
	maxDebugMessageLength     = 2 * 1024 * 1024
	maxAbortMessageLength     = 2 * 1024 * 1024
)

// maxIterators caps the number of iterators one call may hold open.
const maxIterators = 256

// Environment carries the chain bindings of one contract call. It lives for
// exactly one call: the iterator frame and the lazily resolved memory
// manager must not outlive the instance they belong to.
type Environment struct {
	Store        types.KVStore
	API          *types.GoAPI
	Querier      types.Querier
	Gas          *gas.State
	Readonly     bool
	DebugEnabled bool
	Logger       zerolog.Logger

	mu        sync.Mutex
	mgr       *memory.Manager
	iterators map[uint32]types.Iterator
	nextIter  uint32
}

type envKey struct{}

// WithEnvironment returns a context carrying the call's environment. The
// host functions read it back on every invocation.
func WithEnvironment(ctx context.Context, env *Environment) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

// FromContext returns the environment attached to ctx, or nil.
func FromContext(ctx context.Context) *Environment {
	env, _ := ctx.Value(envKey{}).(*Environment)
	return env
}

func mustEnv(ctx context.Context) *Environment {
	env := FromContext(ctx)
	if env == nil {
		panic(fmt.Errorf("host function called without a call environment"))
	}
	return env
}

// manager returns the memory manager for the calling module, resolving the
// contract's allocator exports on first use.
func (e *Environment) manager(mod api.Module) (*memory.Manager, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mgr != nil {
		return e.mgr, nil
	}
	alloc, err := memory.NewModuleAllocator(mod)
	if err != nil {
		return nil, err
	}
	e.mgr = memory.New(mod.Memory(), alloc, e.Gas)
	return e.mgr, nil
}

// addIterator stores an open iterator in the call's frame and returns its
// 1-based handle.
func (e *Environment) addIterator(iter types.Iterator) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.iterators == nil {
		e.iterators = make(map[uint32]types.Iterator)
	}
	if len(e.iterators) >= maxIterators {
		return 0, fmt.Errorf("reached the limit of %d open iterators per call", maxIterators)
	}
	e.nextIter++
	e.iterators[e.nextIter] = iter
	return e.nextIter, nil
}

func (e *Environment) iterator(id uint32) (types.Iterator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	iter, ok := e.iterators[id]
	return iter, ok
}

// CloseIterators closes every iterator of the frame. The instance calls it
// when the contract call returns, successfully or not.
func (e *Environment) CloseIterators() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, iter := range e.iterators {
		if err := iter.Close(); err != nil {
			e.Logger.Debug().Err(err).Uint32("iterator", id).Msg("could not close iterator")
		}
		delete(e.iterators, id)
	}
}

// debugMsg logs a contract debug message when debugging is enabled.
func (e *Environment) debugMsg(mm *memory.Manager, msgPtr uint32) error {
	if !e.DebugEnabled {
		return nil
	}
	msg, err := mm.ReadRegion(msgPtr, maxDebugMessageLength)
	if err != nil {
		return err
	}
	e.Logger.Debug().Str("msg", string(msg)).Msg("contract debug")
	return nil
}

// abortMsg reads the contract's abort message and returns the trap ending
// the call.
func (e *Environment) abortMsg(mm *memory.Manager, msgPtr uint32) error {
	msg, err := mm.ReadRegion(msgPtr, maxAbortMessageLength)
	if err != nil {
		return err
	}
	return types.Trap{Msg: "aborted: " + string(msg)}
}

// hostEnv resolves the environment and memory manager inside a host
// function. Failures abort the contract call.
func hostEnv(ctx context.Context, m api.Module) (*Environment, *memory.Manager) {
	e := mustEnv(ctx)
	mm, err := e.manager(m)
	if err != nil {
		panic(err)
	}
	return e, mm
}

// SupportedImports returns the names of all functions the env module
// provides. Static validation accepts exactly these as contract imports.
func SupportedImports() map[string]struct{} {
	names := []string{
		"db_read",
		"db_write",
		"db_remove",
		"db_scan",
		"db_next",
		"db_next_key",
		"db_next_value",
		"addr_validate",
		"addr_canonicalize",
		"addr_humanize",
		"secp256k1_verify",
		"secp256k1_recover_pubkey",
		"secp256r1_verify",
		"secp256r1_recover_pubkey",
		"ed25519_verify",
		"ed25519_batch_verify",
		"bls12_381_aggregate_g1",
		"bls12_381_aggregate_g2",
		"bls12_381_pairing_equality",
		"bls12_381_hash_to_g1",
		"bls12_381_hash_to_g2",
		"query_chain",
		"debug",
		"abort",
	}
	supported := make(map[string]struct{}, len(names))
	for _, name := range names {
		supported[name] = struct{}{}
	}
	return supported
}

// Register instantiates the env module into the runtime. It must run once
// per runtime, before any contract is instantiated.
func Register(ctx context.Context, r wazero.Runtime) error {
	_, err := buildModule(r).Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("could not instantiate the env module: %w", err)
	}
	return nil
}

// buildModule declares every host function on a fresh builder. Errors inside
// a host function are raised as panics with typed errors; the instance
// recovers them at the call boundary.
func buildModule(r wazero.Runtime) wazero.HostModuleBuilder {
	builder := r.NewHostModuleBuilder(ModuleName)

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.dbRead(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("db_read")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		if err := e.dbWrite(ctx, mm, uint32(stack[0]), uint32(stack[1])); err != nil {
			panic(err)
		}
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{}).Export("db_write")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		if err := e.dbRemove(ctx, mm, uint32(stack[0])); err != nil {
			panic(err)
		}
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).Export("db_remove")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		id, err := e.dbScan(ctx, mm, uint32(stack[0]), uint32(stack[1]), int32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(id)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("db_scan")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.dbNext(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("db_next")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.dbNextKey(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("db_next_key")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.dbNextValue(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("db_next_value")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.addrValidate(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("addr_validate")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.addrCanonicalize(ctx, mm, uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("addr_canonicalize")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.addrHumanize(ctx, mm, uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("addr_humanize")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.secp256k1Verify(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("secp256k1_verify")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		packed, err := e.secp256k1RecoverPubkey(ctx, mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = packed
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64}).Export("secp256k1_recover_pubkey")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.secp256r1Verify(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("secp256r1_verify")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		packed, err := e.secp256r1RecoverPubkey(ctx, mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = packed
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI64}).Export("secp256r1_recover_pubkey")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.ed25519Verify(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("ed25519_verify")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.ed25519BatchVerify(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("ed25519_batch_verify")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.blsAggregateG1(mm, uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("bls12_381_aggregate_g1")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.blsAggregateG2(mm, uint32(stack[0]), uint32(stack[1]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("bls12_381_aggregate_g2")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.blsPairingEquality(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("bls12_381_pairing_equality")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.blsHashToG1(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("bls12_381_hash_to_g1")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		code, err := e.blsHashToG2(mm, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(code)
	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("bls12_381_hash_to_g2")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		ptr, err := e.queryChain(ctx, mm, uint32(stack[0]))
		if err != nil {
			panic(err)
		}
		stack[0] = uint64(ptr)
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).Export("query_chain")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		if err := e.debugMsg(mm, uint32(stack[0])); err != nil {
			panic(err)
		}
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).Export("debug")

	builder.NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
		e, mm := hostEnv(ctx, m)
		panic(e.abortMsg(mm, uint32(stack[0])))
	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{}).Export("abort")

	return builder
}
