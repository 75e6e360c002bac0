// Package types provides core types used throughout the wasmvm package.
package types

// Gas represents the amount of computational resources consumed during execution.
type Gas = uint64

// GasMeter is a read-only version of the sdk gas meter
// It is a copy of an interface declaration from cosmos-sdk
// https://github.com/cosmos/cosmos-sdk/blob/18890a225b46260a9adc587be6fa1cc2aff101cd/store/types/gas.go#L34
type GasMeter interface {
	GasConsumed() Gas
}

// GasReport is a report of the gas consumed by one contract call. All values
// are measured in wasmvm gas units, which are a multiple of Cosmos SDK gas
// units (see the gas multiplier in the runtime's gas package).
type GasReport struct {
	// Limit is the maximum amount the call was allowed to consume.
	Limit uint64
	// Remaining is the amount left at the end of the call.
	Remaining uint64
	// UsedExternally is the amount consumed by host callbacks
	// (storage access, address API, querier).
	UsedExternally uint64
	// UsedInternally is the amount consumed by Wasm execution and by
	// memory traffic between host and guest.
	UsedInternally uint64
}

// EmptyGasReport creates a gas report with no consumption.
func EmptyGasReport(limit uint64) GasReport {
	return GasReport{
		Limit:          limit,
		Remaining:      limit,
		UsedExternally: 0,
		UsedInternally: 0,
	}
}
