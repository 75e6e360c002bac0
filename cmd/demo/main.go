// Demo binary running a full contract lifecycle against the VM: store,
// pin, instantiate, execute, query, metrics. With no argument it runs a
// built-in contract, otherwise the given .wasm file.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	wasmvm "github.com/CosmWasm/wasmvm/v2"
	"github.com/CosmWasm/wasmvm/v2/internal/mocks"
	"github.com/CosmWasm/wasmvm/v2/internal/wasmbuilder"
	"github.com/CosmWasm/wasmvm/v2/types"
)

const (
	printDebug  = true
	memoryLimit = 32  // MiB
	cacheSize   = 100 // MiB
	gasLimit    = uint64(500_000_000_000)
)

// The demo chain offers every capability, a real chain picks a subset.
var supportedCapabilities = types.AllCapabilityStrings()

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	code := wasmbuilder.Contract()
	if len(os.Args) > 1 {
		var err error
		code, err = os.ReadFile(os.Args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %s (%d bytes)\n", os.Args[1], len(code))
	}

	dataDir, err := os.MkdirTemp("", "wasmvm-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dataDir)

	vm, err := wasmvm.NewVMWithConfig(types.VMConfig{
		Cache: types.CacheOptions{
			BaseDir:                  dataDir,
			AvailableCapabilities:    supportedCapabilities,
			MemoryCacheSizeBytes:     types.NewSizeMebi(cacheSize),
			InstanceMemoryLimitBytes: types.NewSizeMebi(memoryLimit),
		},
	}, zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.InfoLevel))
	if err != nil {
		return err
	}
	defer vm.Cleanup()

	checksum, cost, err := vm.StoreCode(code, gasLimit)
	if err != nil {
		return err
	}
	fmt.Printf("Stored code with checksum %s (compile gas %d)\n", checksum, cost)

	if err := vm.Pin(checksum); err != nil {
		return err
	}

	report, err := vm.AnalyzeCode(checksum)
	if err != nil {
		return err
	}
	fmt.Printf("Entry points: %v, IBC: %v\n", report.Entrypoints, report.HasIBCEntryPoints)

	env, err := json.Marshal(mocks.MockEnv())
	if err != nil {
		return err
	}
	info, err := json.Marshal(mocks.MockInfo("creator", nil))
	if err != nil {
		return err
	}

	params := func(msg []byte) wasmvm.ContractCallParams {
		meter := mocks.NewMockGasMeter(gasLimit)
		return wasmvm.ContractCallParams{
			Checksum:  checksum,
			Env:       env,
			Info:      info,
			Msg:       msg,
			Store:     mocks.NewLookup(meter),
			API:       mocks.NewMockAPI(),
			Querier:   mocks.DefaultQuerier(mocks.MOCK_CONTRACT_ADDR, types.Array[types.Coin]{types.NewCoin(250, "ATOM")}),
			GasMeter:  meter,
			GasLimit:  gasLimit,
			DeserCost: types.UFraction{Numerator: 1, Denominator: 16},
		}
	}

	ires, igas, err := vm.Instantiate(params([]byte(`{}`)))
	if err != nil {
		return err
	}
	fmt.Printf("Instantiated: err=%q gas=%d\n", ires.Err, igas.UsedInternally)

	eres, egas, err := vm.Execute(params([]byte(`{"run":{}}`)))
	if err != nil {
		return err
	}
	fmt.Printf("Executed: err=%q gas=%d\n", eres.Err, egas.UsedInternally)

	qres, _, err := vm.Query(params([]byte(`{"status":{}}`)))
	if err != nil {
		return err
	}
	fmt.Printf("Queried: %s\n", qres.Ok)

	metrics, err := vm.GetMetrics()
	if err != nil {
		return err
	}
	fmt.Printf("Cache metrics: pinned hits %d, memory hits %d, misses %d\n",
		metrics.HitsPinnedMemoryCache, metrics.HitsMemoryCache, metrics.Misses)

	fmt.Println("finished")
	return nil
}
