package mocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/wasmvm/v2/types"
)

func TestMockAddressRoundTrip(t *testing.T) {
	human := "foobar"
	canon, _, err := MockCanonicalizeAddress(human)
	require.NoError(t, err)
	assert.Len(t, canon, CanonicalLength)

	recovered, _, err := MockHumanizeAddress(canon)
	require.NoError(t, err)
	assert.Equal(t, human, recovered)

	_, err = MockValidateAddress(human)
	require.NoError(t, err)

	_, _, err = MockCanonicalizeAddress("a human address far beyond the canonical length")
	require.Error(t, err)
}

func TestLookupChargesGas(t *testing.T) {
	meter := NewMockGasMeter(100_000_000)
	store := NewLookup(meter)

	store.Set([]byte("foo"), []byte("bar"))
	require.Equal(t, SetPrice, meter.GasConsumed())

	value := store.Get([]byte("foo"))
	require.Equal(t, []byte("bar"), value)
	require.Equal(t, SetPrice+GetPrice, meter.GasConsumed())

	store.Delete([]byte("foo"))
	require.Equal(t, SetPrice+GetPrice+RemovePrice, meter.GasConsumed())
	require.Nil(t, store.Get([]byte("foo")))
}

func TestLookupIteration(t *testing.T) {
	store := NewLookup(NewMockGasMeter(100_000_000))
	store.Set([]byte("a"), []byte("1"))
	store.Set([]byte("b"), []byte("2"))
	store.Set([]byte("c"), []byte("3"))

	iter := store.Iterator(nil, nil)
	var keys []string
	for ; iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Close())
	require.Equal(t, []string{"a", "b", "c"}, keys)

	rev := store.ReverseIterator(nil, nil)
	keys = nil
	for ; rev.Valid(); rev.Next() {
		keys = append(keys, string(rev.Key()))
	}
	require.NoError(t, rev.Close())
	require.Equal(t, []string{"c", "b", "a"}, keys)
}

func TestGasMeterLimit(t *testing.T) {
	meter := NewMockGasMeter(100)
	meter.ConsumeGas(100, "all of it")
	require.PanicsWithValue(t, types.OutOfGasError{Descriptor: "one too much"}, func() {
		meter.ConsumeGas(1, "one too much")
	})
}

func TestDefaultQuerierBalance(t *testing.T) {
	querier := DefaultQuerier(MOCK_CONTRACT_ADDR, types.Array[types.Coin]{types.NewCoin(250, "ATOM")})

	res, err := querier.Query(types.QueryRequest{
		Bank: &types.BankQuery{
			Balance: &types.BalanceQuery{Address: MOCK_CONTRACT_ADDR, Denom: "ATOM"},
		},
	}, 1_000_000)
	require.NoError(t, err)
	var balance types.BalanceResponse
	require.NoError(t, json.Unmarshal(res, &balance))
	require.Equal(t, types.NewCoin(250, "ATOM"), balance.Amount)

	res, err = querier.Query(types.QueryRequest{
		Bank: &types.BankQuery{
			Balance: &types.BalanceQuery{Address: "nobody", Denom: "ATOM"},
		},
	}, 1_000_000)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(res, &balance))
	require.Equal(t, types.NewCoin(0, "ATOM"), balance.Amount)

	_, err = querier.Query(types.QueryRequest{}, 1_000_000)
	require.Error(t, err)
	require.Equal(t, QueryCost*3, querier.GasConsumed())
}
