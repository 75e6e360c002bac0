package validation

import (
	"sort"
	"strings"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// entrypoints are the exported call names the runtime knows how to invoke.
var entrypoints = map[string]struct{}{
	"instantiate":              {},
	"execute":                  {},
	"query":                    {},
	"migrate":                  {},
	"sudo":                     {},
	"reply":                    {},
	"ibc_channel_open":         {},
	"ibc_channel_connect":      {},
	"ibc_channel_close":        {},
	"ibc_packet_receive":       {},
	"ibc_packet_ack":           {},
	"ibc_packet_timeout":       {},
	"ibc_source_callback":      {},
	"ibc_destination_callback": {},
}

// ibcEntrypoints must all be exported for a contract to speak IBC.
var ibcEntrypoints = []string{
	"ibc_channel_open",
	"ibc_channel_connect",
	"ibc_channel_close",
	"ibc_packet_receive",
	"ibc_packet_ack",
	"ibc_packet_timeout",
}

// RequiredCapabilities returns the capabilities the contract declares via
// requires_* exports, sorted.
func (m *Module) RequiredCapabilities() []string {
	var caps []string
	for name := range m.exports {
		if rest := strings.TrimPrefix(name, RequiresPrefix); rest != name && rest != "" {
			caps = append(caps, rest)
		}
	}
	sort.Strings(caps)
	return caps
}

// Entrypoints returns the exported entry points the runtime can call,
// sorted.
func (m *Module) Entrypoints() []string {
	var points []string
	for name, kind := range m.exports {
		if kind != kindFunc {
			continue
		}
		if _, ok := entrypoints[name]; ok {
			points = append(points, name)
		}
	}
	sort.Strings(points)
	return points
}

// HasIBCEntryPoints reports whether all six IBC entry points are exported.
func (m *Module) HasIBCEntryPoints() bool {
	for _, name := range ibcEntrypoints {
		if kind, ok := m.exports[name]; !ok || kind != kindFunc {
			return false
		}
	}
	return true
}

// Analyze builds the report served by AnalyzeCode.
func (m *Module) Analyze() types.AnalysisReport {
	return types.AnalysisReport{
		HasIBCEntryPoints:      m.HasIBCEntryPoints(),
		RequiredCapabilities:   strings.Join(m.RequiredCapabilities(), ","),
		Entrypoints:            m.Entrypoints(),
		ContractMigrateVersion: m.migrateVersion,
	}
}
