// Package gas implements the deterministic gas accounting of the VM.
//
// Two kinds of gas flow through one State per contract call: internal gas,
// charged by the VM itself for Wasm execution and for bytes crossing the
// host/guest boundary, and external gas, charged by host callbacks through
// the wrapped Cosmos SDK gas meter. Internal gas is tracked in wasmvm gas
// units, external gas in SDK units; the two are combined via GasMultiplier
// and checked against the call's limit on every charge.
package gas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/CosmWasm/wasmvm/v2/types"
)

const (
	// GasMultiplier is the number of wasmvm gas units per Cosmos SDK gas unit.
	GasMultiplier uint64 = 100

	// WasmInstructionCost is charged per metered Wasm operation
	// (CosmWasm 1.x uses 150 gas per op).
	WasmInstructionCost uint64 = 150

	// MemoryCopyCost is charged per byte copied between host and guest memory.
	MemoryCopyCost uint64 = 1

	// CompileCostPerByte is charged per byte of Wasm code during code upload,
	// as per the CosmWasm gas schedule.
	CompileCostPerByte uint64 = 3 * 140_000
)

// Costs is the table of host-side operation costs, in wasmvm gas units.
// The table is part of the module compatibility key: compiled artifacts are
// only reused when they were produced under an identical table.
type Costs struct {
	// PerByte is charged per byte moved by a host operation.
	PerByte uint64
	// DatabaseRead is the base cost of db_read.
	DatabaseRead uint64
	// DatabaseWrite is the base cost of db_write and db_remove.
	DatabaseWrite uint64
	// ExternalQuery is the base cost of query_chain.
	ExternalQuery uint64
	// IteratorCreate is the base cost of db_scan.
	IteratorCreate uint64
	// IteratorNext is the base cost of db_next and its variants.
	IteratorNext uint64

	Secp256k1Verify        uint64
	Secp256k1RecoverPubkey uint64
	Secp256r1Verify        uint64
	Secp256r1RecoverPubkey uint64
	Ed25519Verify          uint64
	// Ed25519BatchVerify is charged per batch item on top of the base
	// Ed25519Verify cost of the first item.
	Ed25519BatchVerify uint64

	Bls12381AggregateG1 OperationCost
	Bls12381AggregateG2 OperationCost
	Bls12381HashToG1    OperationCost
	Bls12381HashToG2    OperationCost
	Bls12381Pairing     OperationCost
}

// OperationCost is a cost function with a base and a per-unit component.
type OperationCost struct {
	Base     uint64
	Variable uint64
}

// TotalCost returns the cost of an operation over n units.
func (c OperationCost) TotalCost(n uint64) uint64 {
	return c.Base + c.Variable*n
}

// DefaultCosts returns the cost table used by production chains.
func DefaultCosts() Costs {
	return Costs{
		PerByte:        1,
		DatabaseRead:   100,
		DatabaseWrite:  200,
		ExternalQuery:  500,
		IteratorCreate: 10_000,
		IteratorNext:   1_000,

		Secp256k1Verify:        20_000,
		Secp256k1RecoverPubkey: 25_000,
		Secp256r1Verify:        22_000,
		Secp256r1RecoverPubkey: 27_000,
		Ed25519Verify:          18_000,
		Ed25519BatchVerify:     9_000,

		Bls12381AggregateG1: OperationCost{Base: 13_500, Variable: 3_000},
		Bls12381AggregateG2: OperationCost{Base: 25_500, Variable: 6_000},
		Bls12381HashToG1:    OperationCost{Base: 324_000, Variable: 0},
		Bls12381HashToG2:    OperationCost{Base: 540_000, Variable: 0},
		Bls12381Pairing:     OperationCost{Base: 1_296_000, Variable: 408_000},
	}
}

// Fingerprint returns a short stable hash of the cost table. Two tables
// fingerprint equal exactly when every cost matches, so the fingerprint can
// serve as a cache compatibility component.
func (c Costs) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d/%d/%d/%d/%d/%d/", c.PerByte, c.DatabaseRead, c.DatabaseWrite, c.ExternalQuery, c.IteratorCreate, c.IteratorNext)
	fmt.Fprintf(h, "%d/%d/%d/%d/%d/%d/", c.Secp256k1Verify, c.Secp256k1RecoverPubkey, c.Secp256r1Verify, c.Secp256r1RecoverPubkey, c.Ed25519Verify, c.Ed25519BatchVerify)
	for _, op := range []OperationCost{c.Bls12381AggregateG1, c.Bls12381AggregateG2, c.Bls12381HashToG1, c.Bls12381HashToG2, c.Bls12381Pairing} {
		fmt.Fprintf(h, "%d+%d/", op.Base, op.Variable)
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// State tracks gas usage during one contract call.
type State struct {
	gasLimit      uint64         // limit in wasmvm gas units
	usedInternal  uint64         // internal usage in wasmvm gas units
	externalUsed  uint64         // external usage in SDK gas units
	initialExtern uint64         // external meter reading at call start, SDK units
	gasMeter      types.GasMeter // the wrapped SDK gas meter
	costs         Costs
}

// NewState creates a State for one call. The limit is given in Cosmos SDK
// gas units and converted to wasmvm units. The meter tracks external usage:
// its reading at creation time is the baseline all later readings are
// diffed against.
func NewState(limitSDK uint64, meter types.GasMeter, costs Costs) *State {
	gs := &State{
		gasLimit: mulSaturating(limitSDK, GasMultiplier),
		gasMeter: meter,
		costs:    costs,
	}
	if meter != nil {
		gs.initialExtern = uint64(meter.GasConsumed())
	}
	return gs
}

// Costs returns the cost table of this call.
func (gs *State) Costs() Costs {
	return gs.costs
}

// Limit returns the call's limit in wasmvm gas units.
func (gs *State) Limit() uint64 {
	return gs.gasLimit
}

// ConsumeWasmGas charges for executing numInstr metered Wasm operations.
func (gs *State) ConsumeWasmGas(numInstr uint64) error {
	if numInstr == 0 {
		return nil
	}
	return gs.consumeInternal(numInstr*WasmInstructionCost, "wasm execution")
}

// OperationBudget returns how many metered Wasm operations the remaining
// budget still covers. The instance arms the contract's gas counter with it
// before guest code runs.
func (gs *State) OperationBudget() uint64 {
	return gs.Report().Remaining / WasmInstructionCost
}

// ConsumeMemoryGas charges for copying numBytes between host and guest.
func (gs *State) ConsumeMemoryGas(numBytes uint64) error {
	if numBytes == 0 {
		return nil
	}
	return gs.consumeInternal(numBytes*MemoryCopyCost, "memory copy")
}

// ConsumeOperation charges a flat host operation cost plus the per-byte
// component, e.g. the base cost of db_read and the length of the value read.
func (gs *State) ConsumeOperation(base uint64, numBytes uint64, descriptor string) error {
	return gs.consumeInternal(base+numBytes*gs.costs.PerByte, descriptor)
}

// consumeInternal deducts cost from the internal budget and checks the
// combined usage against the limit.
func (gs *State) consumeInternal(cost uint64, descriptor string) error {
	if cost == 0 {
		return nil
	}
	gs.usedInternal = addSaturating(gs.usedInternal, cost)
	gs.refreshExternal()

	if gs.combinedUsed() > gs.gasLimit {
		return types.OutOfGasError{Descriptor: descriptor}
	}
	return nil
}

// refreshExternal re-reads the wrapped meter and updates the external delta.
func (gs *State) refreshExternal() {
	if gs.gasMeter == nil {
		return
	}
	current := uint64(gs.gasMeter.GasConsumed())
	if current < gs.initialExtern {
		// The meter was swapped under us. Re-baseline rather than underflow.
		gs.initialExtern = current
	}
	gs.externalUsed = current - gs.initialExtern
}

func (gs *State) combinedUsed() uint64 {
	return addSaturating(gs.usedInternal, mulSaturating(gs.externalUsed, GasMultiplier))
}

// Exhausted reports whether the combined usage has reached the limit.
func (gs *State) Exhausted() bool {
	gs.refreshExternal()
	return gs.combinedUsed() >= gs.gasLimit
}

// Report returns the gas usage so far, in wasmvm gas units.
func (gs *State) Report() types.GasReport {
	gs.refreshExternal()
	usedExtern := mulSaturating(gs.externalUsed, GasMultiplier)
	usedIntern := gs.usedInternal
	var remaining uint64
	if combined := addSaturating(usedIntern, usedExtern); gs.gasLimit > combined {
		remaining = gs.gasLimit - combined
	}
	return types.GasReport{
		Limit:          gs.gasLimit,
		Remaining:      remaining,
		UsedExternally: usedExtern,
		UsedInternally: usedIntern,
	}
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func mulSaturating(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}
