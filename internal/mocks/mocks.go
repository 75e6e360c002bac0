// Package mocks provides in-memory implementations of the interfaces a
// chain binds to the VM: a gas metered KVStore, an address API, and a
// querier. They are used by the package tests and the demo binary.
package mocks

import (
	"encoding/json"
	"fmt"
	"strings"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// Gas charged by the mock store, in Cosmos SDK gas units. The values follow
// the wasmd gas register.
const (
	GetPrice    uint64 = 99000
	SetPrice    uint64 = 187000
	RemovePrice uint64 = 142000
	RangePrice  uint64 = 261000
)

// MockGasMeter is a GasMeter the mock store can also charge on.
type MockGasMeter interface {
	types.GasMeter
	ConsumeGas(amount types.Gas, descriptor string)
}

type mockGasMeter struct {
	limit    types.Gas
	consumed types.Gas
}

// NewMockGasMeter returns a meter that panics with types.OutOfGasError once
// consumption passes the limit, like the SDK meter it stands in for.
func NewMockGasMeter(limit types.Gas) MockGasMeter {
	return &mockGasMeter{limit: limit}
}

func (m *mockGasMeter) GasConsumed() types.Gas {
	return m.consumed
}

func (m *mockGasMeter) ConsumeGas(amount types.Gas, descriptor string) {
	m.consumed += amount
	if m.consumed > m.limit {
		panic(types.OutOfGasError{Descriptor: descriptor})
	}
}

// Lookup is a KVStore over an in-memory database, charging the wrapped gas
// meter for every operation.
type Lookup struct {
	db    dbm.DB
	meter MockGasMeter
}

var _ types.KVStore = (*Lookup)(nil)

// NewLookup creates a fresh store charging the given meter.
func NewLookup(meter MockGasMeter) *Lookup {
	return &Lookup{db: dbm.NewMemDB(), meter: meter}
}

// WithGasMeter returns a new Lookup over the same database that charges a
// different meter. Used to give each contract call a fresh meter while the
// stored state carries over.
func (l *Lookup) WithGasMeter(meter MockGasMeter) *Lookup {
	return &Lookup{db: l.db, meter: meter}
}

// SetGasMeter swaps the meter in place.
func (l *Lookup) SetGasMeter(meter MockGasMeter) {
	l.meter = meter
}

func (l *Lookup) Get(key []byte) []byte {
	l.meter.ConsumeGas(GetPrice, "get")
	v, err := l.db.Get(key)
	if err != nil {
		panic(err)
	}
	return v
}

func (l *Lookup) Set(key, value []byte) {
	l.meter.ConsumeGas(SetPrice, "set")
	if err := l.db.Set(key, value); err != nil {
		panic(err)
	}
}

func (l *Lookup) Delete(key []byte) {
	l.meter.ConsumeGas(RemovePrice, "delete")
	if err := l.db.Delete(key); err != nil {
		panic(err)
	}
}

func (l *Lookup) Iterator(start, end []byte) types.Iterator {
	l.meter.ConsumeGas(RangePrice, "range")
	iter, err := l.db.Iterator(start, end)
	if err != nil {
		panic(err)
	}
	return iter
}

func (l *Lookup) ReverseIterator(start, end []byte) types.Iterator {
	l.meter.ConsumeGas(RangePrice, "range")
	iter, err := l.db.ReverseIterator(start, end)
	if err != nil {
		panic(err)
	}
	return iter
}

// CanonicalLength is the length of canonical addresses produced by the mock
// address API.
const CanonicalLength = 32

// Gas charged by the mock address API, in wasmvm gas units.
const (
	CostCanonicalize uint64 = 440
	CostHumanize     uint64 = 550
)

// MockCanonicalizeAddress lengthens the human address to CanonicalLength by
// zero padding. Longer inputs are rejected.
func MockCanonicalizeAddress(human string) ([]byte, uint64, error) {
	if len(human) > CanonicalLength {
		return nil, CostCanonicalize, fmt.Errorf("human encoding too long")
	}
	res := make([]byte, CanonicalLength)
	copy(res, human)
	return res, CostCanonicalize, nil
}

// MockHumanizeAddress cuts the canonical address at the first zero byte.
func MockHumanizeAddress(canon []byte) (string, uint64, error) {
	if len(canon) != CanonicalLength {
		return "", CostHumanize, fmt.Errorf("wrong canonical address length")
	}
	cut := CanonicalLength
	for i, v := range canon {
		if v == 0 {
			cut = i
			break
		}
	}
	return string(canon[:cut]), CostHumanize, nil
}

// MockValidateAddress does a canonicalize/humanize round trip and accepts the
// address when it comes back unchanged.
func MockValidateAddress(input string) (uint64, error) {
	canonicalized, cost, err := MockCanonicalizeAddress(input)
	if err != nil {
		return cost, err
	}
	humanized, humanizeCost, err := MockHumanizeAddress(canonicalized)
	cost += humanizeCost
	if err != nil {
		return cost, err
	}
	if humanized != strings.ToLower(input) {
		return cost, fmt.Errorf("address validation failed")
	}
	return cost, nil
}

// NewMockAPI returns a GoAPI backed by the mock address codec.
func NewMockAPI() *types.GoAPI {
	return &types.GoAPI{
		HumanizeAddress:     MockHumanizeAddress,
		CanonicalizeAddress: MockCanonicalizeAddress,
		ValidateAddress:     MockValidateAddress,
	}
}

// MOCK_CONTRACT_ADDR is the address the mock environment runs contracts under.
const MOCK_CONTRACT_ADDR = "contract"

// QueryCost is the flat wasmvm gas cost the mock querier reports per query.
const QueryCost uint64 = 5_000

// MockQuerier answers bank queries from a fixed balance table and reports a
// flat gas cost per query.
type MockQuerier struct {
	Bank    BankQuerier
	usedGas uint64
}

var _ types.Querier = (*MockQuerier)(nil)

// DefaultQuerier creates a querier with one prefilled account balance.
func DefaultQuerier(contractAddr string, coins types.Array[types.Coin]) types.Querier {
	balances := map[string]types.Array[types.Coin]{
		contractAddr: coins,
	}
	return &MockQuerier{
		Bank: NewBankQuerier(balances),
	}
}

func (q *MockQuerier) Query(request types.QueryRequest, _ uint64) ([]byte, error) {
	q.usedGas += QueryCost
	if request.Bank != nil {
		return q.Bank.Query(request.Bank)
	}
	return nil, types.UnsupportedRequest{Kind: "unknown variant"}
}

func (q *MockQuerier) GasConsumed() uint64 {
	return q.usedGas
}

// BankQuerier answers balance queries from a static table.
type BankQuerier struct {
	Balances map[string]types.Array[types.Coin]
}

func NewBankQuerier(balances map[string]types.Array[types.Coin]) BankQuerier {
	if balances == nil {
		balances = map[string]types.Array[types.Coin]{}
	}
	return BankQuerier{Balances: balances}
}

func (q BankQuerier) Query(request *types.BankQuery) ([]byte, error) {
	if request.Balance != nil {
		denom := request.Balance.Denom
		coin := types.NewCoin(0, denom)
		for _, c := range q.Balances[request.Balance.Address] {
			if c.Denom == denom {
				coin = c
			}
		}
		return json.Marshal(types.BalanceResponse{Amount: coin})
	}
	if request.AllBalances != nil {
		coins := q.Balances[request.AllBalances.Address]
		if coins == nil {
			coins = types.Array[types.Coin]{}
		}
		return json.Marshal(types.AllBalancesResponse{Amount: coins})
	}
	return nil, types.UnsupportedRequest{Kind: "empty bank query"}
}
