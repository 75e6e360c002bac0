package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/wasmvm/v2/internal/wasmbuilder"
	"github.com/CosmWasm/wasmvm/v2/types"
)

func testConfig() Config {
	return Config{
		AvailableCapabilities: []string{"iterator", "staking", "stargate"},
		SupportedImports: map[string]struct{}{
			"db_read":     {},
			"db_write":    {},
			"db_remove":   {},
			"query_chain": {},
			"debug":       {},
			"abort":       {},
		},
	}
}

func limit(v uint32) *uint32 {
	return &v
}

// testModule is a module under construction that satisfies every rule once
// exportDefaults ran. Tests break exactly one property each.
type testModule struct {
	b     *wasmbuilder.Builder
	nop   uint32
	alloc uint32
	free  uint32
}

func bareModule(b *wasmbuilder.Builder) testModule {
	tNop := b.AddType(nil, nil)
	tAlloc := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
	tFree := b.AddType([]byte{wasmbuilder.I32}, nil)
	m := testModule{b: b}
	m.nop = b.AddFunc(tNop, nil)
	m.alloc = b.AddFunc(tAlloc, nil, wasmbuilder.I32Const(16))
	m.free = b.AddFunc(tFree, nil)
	b.AddMemory(1)
	return m
}

func (m testModule) exportDefaults() testModule {
	m.b.ExportMemory("memory")
	m.b.ExportFunc("interface_version_8", m.nop)
	m.b.ExportFunc("allocate", m.alloc)
	m.b.ExportFunc("deallocate", m.free)
	return m
}

func TestValidateAcceptsCannedContracts(t *testing.T) {
	contracts := map[string][]byte{
		"minimal":         wasmbuilder.MinimalContract(),
		"standard":        wasmbuilder.Contract(),
		"ibc":             wasmbuilder.IBCContract(),
		"capabilities":    wasmbuilder.CapabilityContract("iterator", "staking"),
		"migrate version": wasmbuilder.MigrateVersionContract(3),
		"migrate info":    wasmbuilder.MigrateInfoContract(),
		"trapping":        wasmbuilder.TrappingContract(),
		"recursive":       wasmbuilder.RecursiveContract(),
		"looping":         wasmbuilder.LoopingContract(),
		"host calls":      wasmbuilder.HostCallContract(),
	}
	for name, code := range contracts {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Validate(code, testConfig()))
		})
	}
}

func TestValidateRejectsOversizedBinary(t *testing.T) {
	b := wasmbuilder.New()
	bareModule(b).exportDefaults()
	b.AddCustomSection("padding", make([]byte, MaxWasmSize))
	err := Validate(b.Build(), testConfig())
	require.ErrorContains(t, err, "byte limit")
}

func TestInterfaceVersionRules(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b)
		b.ExportMemory("memory")
		b.ExportFunc("allocate", m.alloc)
		b.ExportFunc("deallocate", m.free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "marker export")
	})

	t.Run("unknown version", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b)
		b.ExportMemory("memory")
		b.ExportFunc("interface_version_5", m.nop)
		b.ExportFunc("allocate", m.alloc)
		b.ExportFunc("deallocate", m.free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "unknown marker export")
	})

	t.Run("more than one", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b).exportDefaults()
		b.ExportFunc("interface_version_5", m.nop)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "more than one")
	})
}

func TestRequiredExportRules(t *testing.T) {
	t.Run("missing allocate", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b)
		b.ExportMemory("memory")
		b.ExportFunc("interface_version_8", m.nop)
		b.ExportFunc("deallocate", m.free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, `missing the required export "allocate"`)
	})

	t.Run("missing deallocate", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b)
		b.ExportMemory("memory")
		b.ExportFunc("interface_version_8", m.nop)
		b.ExportFunc("allocate", m.alloc)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, `missing the required export "deallocate"`)
	})

	t.Run("allocate is not a function", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b)
		global := b.AddGlobal(wasmbuilder.I32, false, wasmbuilder.I32Const(0))
		b.ExportMemory("memory")
		b.ExportFunc("interface_version_8", m.nop)
		b.ExportGlobal("allocate", global)
		b.ExportFunc("deallocate", m.free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, `export "allocate" is not a function`)
	})
}

func TestMemoryRules(t *testing.T) {
	t.Run("no memory", func(t *testing.T) {
		b := wasmbuilder.New()
		tNop := b.AddType(nil, nil)
		tAlloc := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		tFree := b.AddType([]byte{wasmbuilder.I32}, nil)
		nop := b.AddFunc(tNop, nil)
		alloc := b.AddFunc(tAlloc, nil, wasmbuilder.I32Const(16))
		free := b.AddFunc(tFree, nil)
		b.ExportFunc("interface_version_8", nop)
		b.ExportFunc("allocate", alloc)
		b.ExportFunc("deallocate", free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "exactly one memory, found 0")
	})

	t.Run("two memories", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddMemory(1)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "exactly one memory, found 2")
	})

	t.Run("imported memory", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.ImportMemory("env", "memory", 1)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "must not import memory")
	})

	t.Run("too many pages", func(t *testing.T) {
		b := wasmbuilder.New()
		tNop := b.AddType(nil, nil)
		tAlloc := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		tFree := b.AddType([]byte{wasmbuilder.I32}, nil)
		nop := b.AddFunc(tNop, nil)
		alloc := b.AddFunc(tAlloc, nil, wasmbuilder.I32Const(16))
		free := b.AddFunc(tFree, nil)
		b.AddMemory(DefaultMemoryLimitPages + 1)
		b.ExportMemory("memory")
		b.ExportFunc("interface_version_8", nop)
		b.ExportFunc("allocate", alloc)
		b.ExportFunc("deallocate", free)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "exceeds the 512 page limit")
	})

	t.Run("configured page limit", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		cfg := testConfig()
		cfg.Limits.InitialMemoryLimitPages = limit(0)
		err := Validate(b.Build(), cfg)
		require.ErrorContains(t, err, "exceeds the 0 page limit")
	})
}

func TestTableRules(t *testing.T) {
	t.Run("declared maximum accepted", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddTableWithMax(2, 2)
		require.NoError(t, Validate(b.Build(), testConfig()))
	})

	t.Run("missing maximum", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddTable(2)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "must declare a maximum size")
	})

	t.Run("maximum too large", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddTableWithMax(1, DefaultTableSizeLimit+1)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "exceeds the 2500 entry limit")
	})

	t.Run("two tables", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddTableWithMax(1, 1)
		b.AddTableWithMax(1, 1)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "more than one table")
	})
}

func TestFunctionLimitRules(t *testing.T) {
	t.Run("too many functions", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		cfg := testConfig()
		cfg.Limits.MaxFunctions = limit(2)
		err := Validate(b.Build(), cfg)
		require.ErrorContains(t, err, "3 functions exceed the limit of 2")
	})

	t.Run("too many parameters", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		wide := b.AddType([]byte{wasmbuilder.I32, wasmbuilder.I32, wasmbuilder.I32}, nil)
		b.AddFunc(wide, nil)
		cfg := testConfig()
		cfg.Limits.MaxFunctionParams = limit(2)
		err := Validate(b.Build(), cfg)
		require.ErrorContains(t, err, "3 parameters, the limit is 2")
	})

	t.Run("too many results", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		pair := b.AddType(nil, []byte{wasmbuilder.I32, wasmbuilder.I32})
		b.AddFunc(pair, nil, wasmbuilder.I32Const(1), wasmbuilder.I32Const(2))
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "2 results, the limit is 1")
	})

	t.Run("too many parameters in total", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		wide := b.AddType([]byte{wasmbuilder.I32, wasmbuilder.I32, wasmbuilder.I32}, nil)
		b.AddFunc(wide, nil)
		b.AddFunc(wide, nil)
		cfg := testConfig()
		cfg.Limits.MaxTotalFunctionParams = limit(5)
		err := Validate(b.Build(), cfg)
		require.ErrorContains(t, err, "8 parameters in total, the limit is 5")
	})
}

func TestImportRules(t *testing.T) {
	t.Run("supported env imports accepted", func(t *testing.T) {
		b := wasmbuilder.New()
		tImport := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		b.ImportFunc("env", "db_read", tImport)
		bareModule(b).exportDefaults()
		require.NoError(t, Validate(b.Build(), testConfig()))
	})

	t.Run("unsupported import", func(t *testing.T) {
		b := wasmbuilder.New()
		tImport := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		b.ImportFunc("env", "db_mystery", tImport)
		bareModule(b).exportDefaults()
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, `unsupported import "env.db_mystery"`)
	})

	t.Run("outside env namespace", func(t *testing.T) {
		b := wasmbuilder.New()
		tImport := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		b.ImportFunc("wasi_snapshot_preview1", "fd_write", tImport)
		bareModule(b).exportDefaults()
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "outside the env namespace")
	})

	t.Run("non-function import", func(t *testing.T) {
		b := wasmbuilder.New()
		b.ImportTable("env", "table", 1, 1)
		bareModule(b).exportDefaults()
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, `non-function import "env.table"`)
	})

	t.Run("too many imports", func(t *testing.T) {
		b := wasmbuilder.New()
		tImport := b.AddType([]byte{wasmbuilder.I32}, []byte{wasmbuilder.I32})
		b.ImportFunc("env", "db_read", tImport)
		b.ImportFunc("env", "db_write", tImport)
		bareModule(b).exportDefaults()
		cfg := testConfig()
		cfg.Limits.MaxImports = limit(1)
		err := Validate(b.Build(), cfg)
		require.ErrorContains(t, err, "2 imports exceed the limit of 1")
	})
}

func TestCapabilityRules(t *testing.T) {
	t.Run("available capabilities accepted", func(t *testing.T) {
		code := wasmbuilder.CapabilityContract("iterator", "stargate")
		require.NoError(t, Validate(code, testConfig()))
	})

	t.Run("unavailable capabilities listed sorted", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b).exportDefaults()
		b.ExportFunc("requires_water", m.nop)
		b.ExportFunc("requires_fire", m.nop)
		err := Validate(b.Build(), testConfig())
		require.ErrorContains(t, err, "unavailable capabilities: fire, water")
	})
}

func TestFloatRules(t *testing.T) {
	cases := map[string]func(b *wasmbuilder.Builder, m testModule){
		"f32 const in body": func(b *wasmbuilder.Builder, m testModule) {
			t0 := b.AddType(nil, []byte{wasmbuilder.F32})
			b.AddFunc(t0, nil, wasmbuilder.F32Const(1.5))
		},
		"f32 arithmetic in body": func(b *wasmbuilder.Builder, m testModule) {
			t0 := b.AddType(nil, []byte{wasmbuilder.F32})
			b.AddFunc(t0, nil, wasmbuilder.F32Const(1), wasmbuilder.F32Const(2), wasmbuilder.F32Add())
		},
		"float local": func(b *wasmbuilder.Builder, m testModule) {
			t0 := b.AddType(nil, nil)
			b.AddFunc(t0, []byte{wasmbuilder.F64})
		},
		"float global": func(b *wasmbuilder.Builder, m testModule) {
			b.AddGlobal(wasmbuilder.F32, false, wasmbuilder.F32Const(0))
		},
		"float parameter type": func(b *wasmbuilder.Builder, m testModule) {
			b.AddType([]byte{wasmbuilder.F64}, nil)
		},
		"saturating truncation": func(b *wasmbuilder.Builder, m testModule) {
			t0 := b.AddType(nil, []byte{wasmbuilder.I32})
			b.AddFunc(t0, nil, wasmbuilder.F32Const(1), []byte{0xFC, 0x00})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := wasmbuilder.New()
			m := bareModule(b).exportDefaults()
			mutate(b, m)
			err := Validate(b.Build(), testConfig())
			require.ErrorContains(t, err, "forbids floats")
		})
	}
}

func TestParseRejectsMalformedBinaries(t *testing.T) {
	header := func() []byte {
		return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	}
	cases := map[string]struct {
		raw  []byte
		want string
	}{
		"empty":         {nil, "shorter than the 8 byte header"},
		"not wasm":      {[]byte("definitely not wasm"), "magic number"},
		"wrong version": {[]byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, "unsupported Wasm binary version 2"},
		"truncated section": {
			append(header(), 0x01),
			"unexpected end of binary",
		},
		"unknown section": {
			append(header(), 0x40, 0x00),
			"unknown section id 64",
		},
		"out of order sections": {
			append(header(), 0x05, 0x03, 0x01, 0x00, 0x01, 0x01, 0x01, 0x00),
			"section 1 out of order",
		},
		"duplicate section": {
			append(header(), 0x01, 0x01, 0x00, 0x01, 0x01, 0x00),
			"section 1 out of order",
		},
		"trailing bytes in section": {
			append(header(), 0x01, 0x02, 0x00, 0xAA),
			"trailing bytes",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(tc.raw)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)
			var static types.StaticValidationError
			assert.ErrorAs(t, err, &static)
		})
	}
}

func TestParseAcceptsDataCountSection(t *testing.T) {
	// The data count section (id 12) sits between element and code, out of
	// numeric id order.
	raw := []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type: () -> ()
		0x03, 0x02, 0x01, 0x00, // one function of type 0
		0x0C, 0x01, 0x00, // data count: 0
		0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B, // code: empty body
	}
	_, err := Parse(raw)
	require.NoError(t, err)
}

func TestMigrateVersionSection(t *testing.T) {
	t.Run("decimal digits", func(t *testing.T) {
		module, err := Parse(wasmbuilder.MigrateVersionContract(42))
		require.NoError(t, err)
		require.NotNil(t, module.migrateVersion)
		assert.Equal(t, uint64(42), *module.migrateVersion)
	})

	t.Run("not a number", func(t *testing.T) {
		b := wasmbuilder.New()
		bareModule(b).exportDefaults()
		b.AddCustomSection("cw_migrate_version", []byte("v1.2"))
		_, err := Parse(b.Build())
		require.ErrorContains(t, err, "does not hold a decimal version")
	})

	t.Run("absent", func(t *testing.T) {
		module, err := Parse(wasmbuilder.Contract())
		require.NoError(t, err)
		assert.Nil(t, module.migrateVersion)
	})
}

func TestAnalyze(t *testing.T) {
	t.Run("standard contract", func(t *testing.T) {
		module, err := Parse(wasmbuilder.Contract())
		require.NoError(t, err)
		report := module.Analyze()
		assert.False(t, report.HasIBCEntryPoints)
		assert.Empty(t, report.RequiredCapabilities)
		assert.Nil(t, report.ContractMigrateVersion)
		assert.Equal(t, []string{"execute", "instantiate", "migrate", "query", "reply", "sudo"}, report.Entrypoints)
	})

	t.Run("ibc contract", func(t *testing.T) {
		module, err := Parse(wasmbuilder.IBCContract())
		require.NoError(t, err)
		report := module.Analyze()
		assert.True(t, report.HasIBCEntryPoints)
		assert.Equal(t, []string{
			"execute",
			"ibc_channel_close",
			"ibc_channel_connect",
			"ibc_channel_open",
			"ibc_destination_callback",
			"ibc_packet_ack",
			"ibc_packet_receive",
			"ibc_packet_timeout",
			"ibc_source_callback",
			"instantiate",
			"migrate",
			"query",
			"reply",
			"sudo",
		}, report.Entrypoints)
	})

	t.Run("partial ibc exports are not ibc", func(t *testing.T) {
		b := wasmbuilder.New()
		m := bareModule(b).exportDefaults()
		b.ExportFunc("ibc_channel_open", m.nop)
		b.ExportFunc("ibc_packet_receive", m.nop)
		module, err := Parse(b.Build())
		require.NoError(t, err)
		assert.False(t, module.HasIBCEntryPoints())
	})

	t.Run("capabilities as sorted csv", func(t *testing.T) {
		module, err := Parse(wasmbuilder.CapabilityContract("staking", "iterator"))
		require.NoError(t, err)
		report := module.Analyze()
		assert.Equal(t, "iterator,staking", report.RequiredCapabilities)
	})

	t.Run("migrate version carried", func(t *testing.T) {
		module, err := Parse(wasmbuilder.MigrateVersionContract(7))
		require.NoError(t, err)
		report := module.Analyze()
		require.NotNil(t, report.ContractMigrateVersion)
		assert.Equal(t, uint64(7), *report.ContractMigrateVersion)
	})
}
