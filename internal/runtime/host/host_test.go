package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/wasmvm/v2/internal/mocks"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// guestMemory implements memory.Memory over a plain byte slice, the way
// wazero exposes linear memory.
type guestMemory struct {
	data []byte
}

func newGuestMemory(size uint32) *guestMemory {
	return &guestMemory{data: make([]byte, size)}
}

func (m *guestMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+byteCount], true
}

func (m *guestMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], v)
	return true
}

func (m *guestMemory) Size() uint32 {
	return uint32(len(m.data))
}

// guestAllocator hands out buffers from the fake memory the way contract
// allocators do: a Region descriptor followed by the payload buffer.
type guestAllocator struct {
	mem   *guestMemory
	next  uint32
	freed []uint32
}

func (a *guestAllocator) Allocate(_ context.Context, size uint32) (uint32, error) {
	ptr := a.next
	region := memory.Region{Offset: ptr + memory.RegionSize, Capacity: size, Length: 0}
	copy(a.mem.data[ptr:], region.Bytes())
	a.next += memory.RegionSize + size
	return ptr, nil
}

func (a *guestAllocator) Deallocate(_ context.Context, ptr uint32) error {
	a.freed = append(a.freed, ptr)
	return nil
}

func testHost(t *testing.T) (*Environment, *memory.Manager, *guestAllocator, *gas.State) {
	t.Helper()
	mem := newGuestMemory(64 * memory.WasmPageSize)
	alloc := &guestAllocator{mem: mem, next: 1 << 16}
	gs := gas.NewState(5_000_000, nil, gas.DefaultCosts())
	env := &Environment{
		Store:        mocks.NewLookup(mocks.NewMockGasMeter(types.Gas(5_000_000))),
		API:          mocks.NewMockAPI(),
		Querier:      mocks.DefaultQuerier(mocks.MOCK_CONTRACT_ADDR, types.Array[types.Coin]{types.NewCoin(250, "ATOM")}),
		Gas:          gs,
		DebugEnabled: true,
		Logger:       zerolog.Nop(),
	}
	return env, memory.New(mem, alloc, gs), alloc, gs
}

// writeArg places data into a fresh guest region, like the instance does
// for call arguments.
func writeArg(t *testing.T, mm *memory.Manager, data []byte) uint32 {
	t.Helper()
	ptr, err := mm.WriteData(context.Background(), data)
	require.NoError(t, err)
	return ptr
}

func TestEnvironmentContext(t *testing.T) {
	env := &Environment{}
	ctx := WithEnvironment(context.Background(), env)
	assert.Same(t, env, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
	require.Panics(t, func() { mustEnv(context.Background()) })
}

func TestDbWriteReadRoundTrip(t *testing.T) {
	env, mm, _, _ := testHost(t)
	ctx := context.Background()

	keyPtr := writeArg(t, mm, []byte("config"))
	valuePtr := writeArg(t, mm, []byte(`{"owner":"alice"}`))
	require.NoError(t, env.dbWrite(ctx, mm, keyPtr, valuePtr))

	gotPtr, err := env.dbRead(ctx, mm, keyPtr)
	require.NoError(t, err)
	require.NotZero(t, gotPtr)
	got, err := mm.ReadRegion(gotPtr, maxValueLength)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"owner":"alice"}`), got)
}

func TestDbReadMissingKey(t *testing.T) {
	env, mm, _, gs := testHost(t)

	keyPtr := writeArg(t, mm, []byte("absent"))
	used := gs.Report().UsedInternally

	ptr, err := env.dbRead(context.Background(), mm, keyPtr)
	require.NoError(t, err)
	assert.Zero(t, ptr)

	// the 6 byte key copy plus the base price of the lookup
	want := used + 6*gas.MemoryCopyCost + gas.DefaultCosts().DatabaseRead
	assert.Equal(t, want, gs.Report().UsedInternally)
}

func TestDbRemove(t *testing.T) {
	env, mm, _, _ := testHost(t)
	ctx := context.Background()

	keyPtr := writeArg(t, mm, []byte("doomed"))
	require.NoError(t, env.dbWrite(ctx, mm, keyPtr, writeArg(t, mm, []byte("x"))))
	require.NoError(t, env.dbRemove(ctx, mm, keyPtr))

	ptr, err := env.dbRead(ctx, mm, keyPtr)
	require.NoError(t, err)
	assert.Zero(t, ptr)
}

func TestDbWritesRejectedInReadonlyCalls(t *testing.T) {
	env, mm, _, _ := testHost(t)
	env.Readonly = true
	ctx := context.Background()

	// rejected before any pointer is dereferenced
	require.ErrorContains(t, env.dbWrite(ctx, mm, 1, 2), "read-only")
	require.ErrorContains(t, env.dbRemove(ctx, mm, 1), "read-only")
}

func seedStore(t *testing.T, env *Environment) {
	t.Helper()
	env.Store.Set([]byte("a"), []byte("1"))
	env.Store.Set([]byte("b"), []byte("2"))
	env.Store.Set([]byte("c"), []byte("3"))
}

// drainIterator walks an open iterator with db_next until the end marker,
// two empty sections, comes back.
func drainIterator(t *testing.T, env *Environment, mm *memory.Manager, id uint32) []string {
	t.Helper()
	var entries []string
	for {
		ptr, err := env.dbNext(context.Background(), mm, id)
		require.NoError(t, err)
		raw, err := mm.ReadRegion(ptr, maxValueLength)
		require.NoError(t, err)
		sections, err := decodeSections(raw)
		require.NoError(t, err)
		require.Len(t, sections, 2)
		if len(sections[0]) == 0 && len(sections[1]) == 0 {
			return entries
		}
		entries = append(entries, fmt.Sprintf("%s=%s", sections[0], sections[1]))
	}
}

func TestDbScanAscending(t *testing.T) {
	env, mm, _, _ := testHost(t)
	seedStore(t, env)

	id, err := env.dbScan(context.Background(), mm, 0, 0, orderAscending)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, drainIterator(t, env, mm, id))
}

func TestDbScanDescending(t *testing.T) {
	env, mm, _, _ := testHost(t)
	seedStore(t, env)

	id, err := env.dbScan(context.Background(), mm, 0, 0, orderDescending)
	require.NoError(t, err)
	assert.Equal(t, []string{"c=3", "b=2", "a=1"}, drainIterator(t, env, mm, id))
}

func TestDbScanBounded(t *testing.T) {
	env, mm, _, _ := testHost(t)
	seedStore(t, env)

	startPtr := writeArg(t, mm, []byte("b"))
	id, err := env.dbScan(context.Background(), mm, startPtr, 0, orderAscending)
	require.NoError(t, err)
	assert.Equal(t, []string{"b=2", "c=3"}, drainIterator(t, env, mm, id))
}

func TestDbScanParallelIterators(t *testing.T) {
	env, mm, _, _ := testHost(t)
	seedStore(t, env)
	ctx := context.Background()

	first, err := env.dbScan(ctx, mm, 0, 0, orderAscending)
	require.NoError(t, err)
	second, err := env.dbScan(ctx, mm, 0, 0, orderDescending)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// both advance independently
	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, drainIterator(t, env, mm, first))
	assert.Equal(t, []string{"c=3", "b=2", "a=1"}, drainIterator(t, env, mm, second))
}

func TestDbScanInvalidOrder(t *testing.T) {
	env, mm, _, _ := testHost(t)
	_, err := env.dbScan(context.Background(), mm, 0, 0, 7)
	require.ErrorContains(t, err, "invalid iteration order 7")
}

func TestDbNextKeyAndValue(t *testing.T) {
	env, mm, _, _ := testHost(t)
	seedStore(t, env)
	ctx := context.Background()

	id, err := env.dbScan(ctx, mm, 0, 0, orderAscending)
	require.NoError(t, err)

	keyPtr, err := env.dbNextKey(ctx, mm, id)
	require.NoError(t, err)
	key, err := mm.ReadRegion(keyPtr, maxKeyLength)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), key)

	// the iterator advanced, so the next value belongs to the second entry
	valuePtr, err := env.dbNextValue(ctx, mm, id)
	require.NoError(t, err)
	value, err := mm.ReadRegion(valuePtr, maxValueLength)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)

	keyPtr, err = env.dbNextKey(ctx, mm, id)
	require.NoError(t, err)
	key, err = mm.ReadRegion(keyPtr, maxKeyLength)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), key)

	// exhausted iterators answer with a null pointer
	keyPtr, err = env.dbNextKey(ctx, mm, id)
	require.NoError(t, err)
	assert.Zero(t, keyPtr)
	valuePtr, err = env.dbNextValue(ctx, mm, id)
	require.NoError(t, err)
	assert.Zero(t, valuePtr)
}

func TestDbNextUnknownIterator(t *testing.T) {
	env, mm, _, _ := testHost(t)
	_, err := env.dbNext(context.Background(), mm, 42)
	require.ErrorContains(t, err, "unknown iterator id 42")
}

type stubIterator struct {
	closed *bool
}

func (s stubIterator) Domain() ([]byte, []byte) { return nil, nil }
func (s stubIterator) Valid() bool              { return false }
func (s stubIterator) Next()                    {}
func (s stubIterator) Key() []byte              { return nil }
func (s stubIterator) Value() []byte            { return nil }
func (s stubIterator) Error() error             { return nil }
func (s stubIterator) Close() error {
	if s.closed != nil {
		*s.closed = true
	}
	return nil
}

func TestIteratorLimit(t *testing.T) {
	env, _, _, _ := testHost(t)
	for i := 0; i < maxIterators; i++ {
		_, err := env.addIterator(stubIterator{})
		require.NoError(t, err)
	}
	_, err := env.addIterator(stubIterator{})
	require.ErrorContains(t, err, "limit of 256 open iterators")
}

func TestCloseIterators(t *testing.T) {
	env, mm, _, _ := testHost(t)
	var first, second bool
	idFirst, err := env.addIterator(stubIterator{closed: &first})
	require.NoError(t, err)
	_, err = env.addIterator(stubIterator{closed: &second})
	require.NoError(t, err)

	env.CloseIterators()
	assert.True(t, first)
	assert.True(t, second)

	// the frame is empty afterwards
	_, err = env.dbNext(context.Background(), mm, idFirst)
	require.ErrorContains(t, err, "unknown iterator id")
}

func TestAddrValidate(t *testing.T) {
	env, mm, _, _ := testHost(t)
	ctx := context.Background()

	ptr, err := env.addrValidate(ctx, mm, writeArg(t, mm, []byte("nice-address")))
	require.NoError(t, err)
	assert.Zero(t, ptr)

	// rejected addresses come back as an error message region
	ptr, err = env.addrValidate(ctx, mm, writeArg(t, mm, []byte("ADDRESS")))
	require.NoError(t, err)
	require.NotZero(t, ptr)
	msg, err := mm.ReadRegion(ptr, maxHumanAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "address validation failed", string(msg))

	ptr, err = env.addrValidate(ctx, mm, writeArg(t, mm, nil))
	require.NoError(t, err)
	require.NotZero(t, ptr)
	msg, err = mm.ReadRegion(ptr, maxHumanAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "Input is empty", string(msg))

	_, err = env.addrValidate(ctx, mm, writeArg(t, mm, []byte{0xff, 0xfe}))
	require.ErrorContains(t, err, "not valid UTF-8")
}

func TestAddrCanonicalizeHumanizeRoundTrip(t *testing.T) {
	env, mm, alloc, _ := testHost(t)
	ctx := context.Background()

	canonDst, err := alloc.Allocate(ctx, mocks.CanonicalLength)
	require.NoError(t, err)
	code, err := env.addrCanonicalize(ctx, mm, writeArg(t, mm, []byte("nice-address")), canonDst)
	require.NoError(t, err)
	assert.Zero(t, code)

	canonical, err := mm.ReadRegion(canonDst, maxCanonicalAddressLength)
	require.NoError(t, err)
	require.Len(t, canonical, mocks.CanonicalLength)
	assert.Equal(t, []byte("nice-address"), canonical[:12])

	humanDst, err := alloc.Allocate(ctx, maxHumanAddressLength)
	require.NoError(t, err)
	code, err = env.addrHumanize(ctx, mm, writeArg(t, mm, canonical), humanDst)
	require.NoError(t, err)
	assert.Zero(t, code)

	human, err := mm.ReadRegion(humanDst, maxHumanAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "nice-address", string(human))
}

func TestAddrCanonicalizeRejected(t *testing.T) {
	env, mm, alloc, _ := testHost(t)
	ctx := context.Background()

	dst, err := alloc.Allocate(ctx, mocks.CanonicalLength)
	require.NoError(t, err)
	tooLong := bytes.Repeat([]byte("x"), mocks.CanonicalLength+1)
	ptr, err := env.addrCanonicalize(ctx, mm, writeArg(t, mm, tooLong), dst)
	require.NoError(t, err)
	require.NotZero(t, ptr)

	msg, err := mm.ReadRegion(ptr, maxHumanAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "human encoding too long", string(msg))
}

func TestAddrHumanizeRejected(t *testing.T) {
	env, mm, alloc, _ := testHost(t)
	ctx := context.Background()

	dst, err := alloc.Allocate(ctx, maxHumanAddressLength)
	require.NoError(t, err)
	ptr, err := env.addrHumanize(ctx, mm, writeArg(t, mm, []byte("short")), dst)
	require.NoError(t, err)
	require.NotZero(t, ptr)

	msg, err := mm.ReadRegion(ptr, maxHumanAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "wrong canonical address length", string(msg))
}

func TestQueryChainBankBalance(t *testing.T) {
	env, mm, _, gs := testHost(t)
	ctx := context.Background()

	request := []byte(`{"bank":{"balance":{"address":"contract","denom":"ATOM"}}}`)
	used := gs.Report().UsedInternally

	ptr, err := env.queryChain(ctx, mm, writeArg(t, mm, request))
	require.NoError(t, err)

	// the base price plus the querier's own reported gas were charged
	charged := gs.Report().UsedInternally - used
	assert.GreaterOrEqual(t, charged, gas.DefaultCosts().ExternalQuery+mocks.QueryCost)

	raw, err := mm.ReadRegion(ptr, maxQueryRequestLength)
	require.NoError(t, err)
	var result types.QuerierResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Nil(t, result.Err)
	require.NotNil(t, result.Ok)

	var balance types.BalanceResponse
	require.NoError(t, json.Unmarshal(result.Ok.Ok, &balance))
	assert.Equal(t, types.NewCoin(250, "ATOM"), balance.Amount)
}

func TestQueryChainInvalidRequest(t *testing.T) {
	env, mm, _, _ := testHost(t)

	request := []byte(`{"bank":`)
	ptr, err := env.queryChain(context.Background(), mm, writeArg(t, mm, request))
	require.NoError(t, err)

	raw, err := mm.ReadRegion(ptr, maxQueryRequestLength)
	require.NoError(t, err)
	var result types.QuerierResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotNil(t, result.Err)
	require.NotNil(t, result.Err.InvalidRequest)
	assert.Equal(t, request, result.Err.InvalidRequest.Request)
}

func TestQueryChainUnsupportedRequest(t *testing.T) {
	env, mm, _, _ := testHost(t)

	request := []byte(`{"ibc":{"channel":{}}}`)
	ptr, err := env.queryChain(context.Background(), mm, writeArg(t, mm, request))
	require.NoError(t, err)

	raw, err := mm.ReadRegion(ptr, maxQueryRequestLength)
	require.NoError(t, err)
	var result types.QuerierResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotNil(t, result.Err)
	require.NotNil(t, result.Err.UnsupportedRequest)
	assert.Equal(t, "unknown variant", result.Err.UnsupportedRequest.Kind)
}

func TestQueryChainWithoutQuerier(t *testing.T) {
	env, mm, _, _ := testHost(t)
	env.Querier = nil

	_, err := env.queryChain(context.Background(), mm, writeArg(t, mm, []byte(`{}`)))
	require.ErrorContains(t, err, "without a bound querier")
}

func TestDebugMessage(t *testing.T) {
	env, mm, _, _ := testHost(t)

	var buf bytes.Buffer
	env.Logger = zerolog.New(&buf)
	require.NoError(t, env.debugMsg(mm, writeArg(t, mm, []byte("state migrated"))))
	assert.Contains(t, buf.String(), "state migrated")

	// with debugging off the pointer is not even dereferenced
	env.DebugEnabled = false
	buf.Reset()
	require.NoError(t, env.debugMsg(mm, 0xFFFF_FFFF))
	assert.Empty(t, buf.String())
}

func TestAbortMessage(t *testing.T) {
	env, mm, _, _ := testHost(t)

	err := env.abortMsg(mm, writeArg(t, mm, []byte("insufficient funds")))
	var trap types.Trap
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, "aborted: insufficient funds", trap.Msg)
}

func TestModuleExportsMatchSupportedImports(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	compiled, err := buildModule(r).Compile(ctx)
	require.NoError(t, err)
	defer compiled.Close(ctx)

	exports := compiled.ExportedFunctions()
	supported := SupportedImports()
	require.Len(t, exports, len(supported))
	for name := range supported {
		assert.Contains(t, exports, name)
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	require.NoError(t, Register(ctx, r))
	// the module name is taken now
	require.Error(t, Register(ctx, r))
}
