package types

import (
	"fmt"
)

// OutOfGasError is returned when the gas limit of an execution is exhausted.
// Descriptor names the operation that consumed the last gas, e.g. a Wasm
// instruction batch or a host function.
type OutOfGasError struct {
	Descriptor string
}

var _ error = OutOfGasError{}

func (o OutOfGasError) Error() string {
	if o.Descriptor == "" {
		return "Out of gas"
	}
	return "Out of gas: " + o.Descriptor
}

// StaticValidationError is returned when a Wasm binary is rejected before
// compilation. The message names the violated rule.
type StaticValidationError struct {
	Rule string
}

var _ error = StaticValidationError{}

func (e StaticValidationError) Error() string {
	return "static validation failed: " + e.Rule
}

// NewStaticValidationError creates a StaticValidationError with a formatted rule description.
func NewStaticValidationError(format string, args ...any) StaticValidationError {
	return StaticValidationError{Rule: fmt.Sprintf(format, args...)}
}

// RegionValidationError is returned when a memory region descriptor read from
// guest memory violates one of the region invariants. No bytes are copied
// for an invalid region. Invariant names the violated invariant and the
// message contains the offending values.
type RegionValidationError struct {
	Invariant string
	Detail    string
}

var _ error = RegionValidationError{}

func (e RegionValidationError) Error() string {
	return fmt.Sprintf("invalid region (%s): %s", e.Invariant, e.Detail)
}

// NewRegionValidationError creates a RegionValidationError for the named invariant.
func NewRegionValidationError(invariant string, format string, args ...any) RegionValidationError {
	return RegionValidationError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// ResolveErr is returned when an export required for a call is not present
// in the contract module.
type ResolveErr struct {
	Symbol string
}

var _ error = ResolveErr{}

func (e ResolveErr) Error() string {
	return fmt.Sprintf("could not resolve export %q in contract", e.Symbol)
}

// Trap is returned when the contract faulted during execution, e.g. by
// executing an unreachable instruction, an out of bounds memory access or
// exceeding the call stack depth. Gas exhaustion is not a trap, it is
// reported as OutOfGasError.
type Trap struct {
	Msg string
}

var _ error = Trap{}

func (t Trap) Error() string {
	return "contract trapped: " + t.Msg
}

// NoSuchCodeError is returned when no code with the given checksum is known
// to any cache layer.
type NoSuchCodeError struct {
	Checksum Checksum
}

var _ error = NoSuchCodeError{}

func (e NoSuchCodeError) Error() string {
	return "no such code: " + e.Checksum.String()
}

// CacheIOError wraps problems of the file system layer of the cache, e.g.
// an unwritable base directory. Where possible the VM logs these and falls
// back to recompilation instead of failing calls.
type CacheIOError struct {
	Op  string
	Err error
}

var _ error = CacheIOError{}

func (e CacheIOError) Error() string {
	return fmt.Sprintf("cache i/o failed during %s: %v", e.Op, e.Err)
}

func (e CacheIOError) Unwrap() error {
	return e.Err
}
