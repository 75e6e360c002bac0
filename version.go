package cosmwasm

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// wasmRuntimeModule is the Go module providing the Wasm engine. Its version
// is what LibwasmvmVersion reports.
const wasmRuntimeModule = "github.com/tetratelabs/wazero"

// LibwasmvmVersion returns the version of the Wasm engine backing this
// library, read from the build info of the running binary. The name is kept
// from the times when the engine was a separate system library.
func LibwasmvmVersion() (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", errors.New("build information is not available")
	}
	for _, dep := range info.Deps {
		if dep.Path == wasmRuntimeModule {
			return strings.TrimPrefix(dep.Version, "v"), nil
		}
	}
	return "", fmt.Errorf("module %s not present in build info", wasmRuntimeModule)
}
