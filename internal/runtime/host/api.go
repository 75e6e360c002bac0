package host

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
)

// The address functions return 0 on success. On a rejected address they
// write the reason into a fresh region and return its pointer, so the
// contract can surface the message without aborting.

// addrValidate checks a human readable address with the chain's codec.
func (e *Environment) addrValidate(ctx context.Context, mm *memory.Manager, srcPtr uint32) (uint32, error) {
	source, err := mm.ReadRegion(srcPtr, maxHumanAddressLength)
	if err != nil {
		return 0, err
	}
	if len(source) == 0 {
		return mm.WriteData(ctx, []byte("Input is empty"))
	}
	if !utf8.Valid(source) {
		return 0, fmt.Errorf("address passed to addr_validate is not valid UTF-8")
	}
	cost, validateErr := e.API.ValidateAddress(string(source))
	if err := e.Gas.ConsumeOperation(cost, 0, "addr_validate"); err != nil {
		return 0, err
	}
	if validateErr != nil {
		return mm.WriteData(ctx, []byte(validateErr.Error()))
	}
	return 0, nil
}

// addrCanonicalize translates a human readable address into its binary
// representation and writes it into the destination region.
func (e *Environment) addrCanonicalize(ctx context.Context, mm *memory.Manager, srcPtr, dstPtr uint32) (uint32, error) {
	source, err := mm.ReadRegion(srcPtr, maxHumanAddressLength)
	if err != nil {
		return 0, err
	}
	if len(source) == 0 {
		return mm.WriteData(ctx, []byte("Input is empty"))
	}
	if !utf8.Valid(source) {
		return 0, fmt.Errorf("address passed to addr_canonicalize is not valid UTF-8")
	}
	canonical, cost, canonErr := e.API.CanonicalizeAddress(string(source))
	if err := e.Gas.ConsumeOperation(cost, 0, "addr_canonicalize"); err != nil {
		return 0, err
	}
	if canonErr != nil {
		return mm.WriteData(ctx, []byte(canonErr.Error()))
	}
	if err := mm.WriteToRegion(dstPtr, canonical); err != nil {
		return 0, err
	}
	return 0, nil
}

// addrHumanize translates a binary address back into its human readable
// form and writes it into the destination region.
func (e *Environment) addrHumanize(ctx context.Context, mm *memory.Manager, srcPtr, dstPtr uint32) (uint32, error) {
	source, err := mm.ReadRegion(srcPtr, maxCanonicalAddressLength)
	if err != nil {
		return 0, err
	}
	human, cost, humanErr := e.API.HumanizeAddress(source)
	if err := e.Gas.ConsumeOperation(cost, 0, "addr_humanize"); err != nil {
		return 0, err
	}
	if humanErr != nil {
		return mm.WriteData(ctx, []byte(humanErr.Error()))
	}
	if err := mm.WriteToRegion(dstPtr, []byte(human)); err != nil {
		return 0, err
	}
	return 0, nil
}
