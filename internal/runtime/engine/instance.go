package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/host"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// maxResultLength caps the payload of a call result region, matching the
// upstream contract interface limits.
const maxResultLength = 64 * 1024 * 1024

// State is the lifecycle state of an instance. It moves strictly forward:
// Created, Ready, Executing, then one of Completed, Trapped or OutOfGas,
// and finally Disposed.
type State uint8

const (
	StateCreated State = iota
	StateReady
	StateExecuting
	StateCompleted
	StateTrapped
	StateOutOfGas
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateTrapped:
		return "trapped"
	case StateOutOfGas:
		return "out of gas"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Bindings are the chain callbacks and budget of one contract call.
type Bindings struct {
	Store   types.KVStore
	API     *types.GoAPI
	Querier types.Querier
	// GasMeter tracks gas the callbacks charge externally.
	GasMeter types.GasMeter
	// GasLimit is the call budget in Cosmos SDK gas units.
	GasLimit uint64
	// Readonly rejects writes and iterator mutation, for query contexts.
	Readonly bool
	// Debug forwards contract debug messages to the logger.
	Debug bool
}

// Instance is one instantiated contract bound to one set of chain
// callbacks. An instance serves a single call and belongs to a single
// goroutine.
type Instance struct {
	module  api.Module
	env     *host.Environment
	gas     *gas.State
	mgr     *memory.Manager
	counter api.MutableGlobal
	// opBudget is what the counter was last armed with, for reconciling.
	opBudget int64
	state    State
}

// NewInstance instantiates the compiled module and binds it to the given
// callbacks. The caller owns the instance and must Dispose it; the compiled
// module stays owned by the caller (usually the cache) and is not closed on
// disposal.
func (e *Engine) NewInstance(ctx context.Context, module wazero.CompiledModule, b Bindings) (*Instance, error) {
	gs := gas.NewState(b.GasLimit, b.GasMeter, e.costs)
	inst := &Instance{
		env: &host.Environment{
			Store:        b.Store,
			API:          b.API,
			Querier:      b.Querier,
			Gas:          gs,
			Readonly:     b.Readonly,
			DebugEnabled: b.Debug,
			Logger:       e.logger,
		},
		gas: gs,
	}

	mod, err := e.runtime.InstantiateModule(inst.callContext(ctx), module, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("could not instantiate contract: %w", err)
	}
	alloc, err := memory.NewModuleAllocator(mod)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}
	counter, ok := mod.ExportedGlobal(gas.GlobalName).(api.MutableGlobal)
	if !ok {
		mod.Close(ctx)
		return nil, fmt.Errorf("contract module carries no %s counter", gas.GlobalName)
	}
	inst.module = mod
	inst.mgr = memory.New(mod.Memory(), alloc, gs)
	inst.counter = counter
	inst.armCounter()
	inst.state = StateReady
	return inst, nil
}

// armCounter loads the remaining operation budget into the contract's gas
// counter.
func (i *Instance) armCounter() {
	budget := int64(i.gas.OperationBudget())
	i.opBudget = budget
	i.counter.Set(api.EncodeI64(budget))
}

// chargeWasmOps reconciles the gas counter with the gas state: operations
// the contract burned since the counter was last armed are charged as wasm
// gas, then the counter is re-armed from what is left.
func (i *Instance) chargeWasmOps() error {
	consumed := i.opBudget - int64(i.counter.Get())
	var err error
	if consumed > 0 {
		err = i.gas.ConsumeWasmGas(uint64(consumed))
	}
	i.armCounter()
	return err
}

// State returns the lifecycle state of the instance.
func (i *Instance) State() State {
	return i.state
}

// GasReport returns the gas usage of the instance so far, in wasmvm units.
func (i *Instance) GasReport() types.GasReport {
	return i.gas.Report()
}

// ParamCount returns the number of parameters of an exported function.
// Callers use it to distinguish entry point generations that differ in
// arity, like the two migrate signatures.
func (i *Instance) ParamCount(entry string) (int, error) {
	fn := i.module.ExportedFunction(entry)
	if fn == nil {
		return 0, types.ResolveErr{Symbol: entry}
	}
	return len(fn.Definition().ParamTypes()), nil
}

// callContext attaches the call environment for the host functions.
func (i *Instance) callContext(ctx context.Context) context.Context {
	return host.WithEnvironment(ctx, i.env)
}

// Call invokes an exported entry point. Every argument is copied into a
// region allocated by the contract and passed as a region pointer; the
// returned region is read back, copied out and released. An instance serves
// one call: afterwards its state records the outcome and further calls fail
// fast.
func (i *Instance) Call(ctx context.Context, entry string, args ...[]byte) ([]byte, error) {
	if i.state != StateReady {
		return nil, fmt.Errorf("instance is %s, cannot call %q", i.state, entry)
	}
	fn := i.module.ExportedFunction(entry)
	if fn == nil {
		return nil, types.ResolveErr{Symbol: entry}
	}

	ctx = i.callContext(ctx)
	i.state = StateExecuting
	defer i.env.CloseIterators()

	params := make([]uint64, len(args))
	for n, arg := range args {
		ptr, err := i.mgr.WriteData(ctx, arg)
		if err != nil {
			return nil, i.fail(err)
		}
		params[n] = uint64(ptr)
	}

	results, err := invoke(ctx, fn, params)
	if err != nil {
		return nil, i.fail(err)
	}
	if len(results) != 1 {
		return nil, i.fail(types.Trap{Msg: fmt.Sprintf("%s returned %d results, want a region pointer", entry, len(results))})
	}
	resultPtr := uint32(results[0])
	if resultPtr == 0 {
		return nil, i.fail(types.Trap{Msg: entry + " returned a null result pointer"})
	}

	data, err := i.mgr.ReadRegion(resultPtr, maxResultLength)
	if err != nil {
		return nil, i.fail(err)
	}
	if err := i.mgr.Free(ctx, resultPtr); err != nil {
		return nil, i.fail(err)
	}
	if err := i.chargeWasmOps(); err != nil {
		return nil, i.fail(err)
	}
	i.state = StateCompleted
	return data, nil
}

// invoke runs the export, recovering any panic that escapes the runtime so
// a misbehaving call cannot take the node down.
func invoke(ctx context.Context, fn api.Function, params []uint64) (results []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(error); ok {
				err = rerr
				return
			}
			err = fmt.Errorf("contract call panicked: %v", r)
		}
	}()
	return fn.Call(ctx, params...)
}

// fail maps err onto the public error taxonomy and moves the instance into
// its terminal state. The counter is reconciled first so the exhaustion
// check sees what the contract burned before failing.
func (i *Instance) fail(err error) error {
	_ = i.chargeWasmOps() // an overrun here surfaces through mapError
	mapped := i.mapError(err)
	var oog types.OutOfGasError
	if errors.As(mapped, &oog) {
		i.state = StateOutOfGas
	} else {
		i.state = StateTrapped
	}
	return mapped
}

// mapError converts low level failures into typed errors. Gas exhaustion is
// checked first: an exhausted call must never be misreported as a trap, no
// matter what error the exhaustion surfaced as.
func (i *Instance) mapError(err error) error {
	var oog types.OutOfGasError
	if errors.As(err, &oog) {
		return oog
	}
	if i.gas.Exhausted() {
		return types.OutOfGasError{Descriptor: "wasm execution"}
	}
	var trap types.Trap
	if errors.As(err, &trap) {
		return trap
	}
	var resolve types.ResolveErr
	if errors.As(err, &resolve) {
		return resolve
	}
	var region types.RegionValidationError
	if errors.As(err, &region) {
		return region
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.Trap{Msg: err.Error()}
}

// Dispose closes the module instance and whatever iterators the call left
// open. It never closes the compiled module the instance was created from.
// Dispose is idempotent.
func (i *Instance) Dispose(ctx context.Context) error {
	if i.state == StateDisposed {
		return nil
	}
	i.state = StateDisposed
	i.env.CloseIterators()
	if err := i.module.Close(ctx); err != nil {
		return fmt.Errorf("could not close contract instance: %w", err)
	}
	return nil
}
