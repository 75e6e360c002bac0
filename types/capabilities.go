package types

import (
	"fmt"
	"strings"
)

// Capability is a feature a chain can expose to its contracts. Contracts
// declare the capabilities they need through `requires_*` exports and are
// rejected during code upload when the chain does not provide them.
type Capability string

const (
	CapIterator     Capability = "iterator"
	CapStaking      Capability = "staking"
	CapStargate     Capability = "stargate"
	CapCosmwasmV1_1 Capability = "cosmwasm_1_1"
	CapCosmwasmV1_2 Capability = "cosmwasm_1_2"
	CapCosmwasmV1_3 Capability = "cosmwasm_1_3"
	CapCosmwasmV1_4 Capability = "cosmwasm_1_4"
	CapCosmwasmV2_0 Capability = "cosmwasm_2_0"
	CapCosmwasmV2_1 Capability = "cosmwasm_2_1"
	CapCosmwasmV2_2 Capability = "cosmwasm_2_2"
)

// AllCapabilities returns all capabilities available
func AllCapabilities() []Capability {
	return []Capability{
		CapIterator,
		CapStaking,
		CapStargate,
		CapCosmwasmV1_1,
		CapCosmwasmV1_2,
		CapCosmwasmV1_3,
		CapCosmwasmV1_4,
		CapCosmwasmV2_0,
		CapCosmwasmV2_1,
		CapCosmwasmV2_2,
	}
}

// AllCapabilityStrings returns all capabilities as plain strings, which is
// the form CacheOptions and NewVM take them in.
func AllCapabilityStrings() []string {
	all := AllCapabilities()
	out := make([]string, len(all))
	for i, c := range all {
		out[i] = string(c)
	}
	return out
}

// Capabilities defines a list of capabilities
type Capabilities []Capability

// Validate ensures the list of capabilities contains only defined types and no duplicates
func (c Capabilities) Validate() error {
	idx := make(map[Capability]struct{}, len(c))
	for _, v := range c {
		if !isCapability(v) {
			return fmt.Errorf("not a capability: %q", v)
		}
		if _, exists := idx[v]; exists {
			return fmt.Errorf("duplicate: %q", v)
		}
		idx[v] = struct{}{}
	}
	return nil
}

func isCapability(c Capability) bool {
	for _, v := range AllCapabilities() {
		if v == c {
			return true
		}
	}
	return false
}

// Serialize converts the capabilities into a comma separated string representation
func (c Capabilities) Serialize() string {
	s := make([]string, len(c))
	for i, v := range c {
		s[i] = string(v)
	}
	return strings.Join(s, ",")
}
