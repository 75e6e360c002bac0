package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// queryChain routes a contract query through the bound querier and returns
// a region with the JSON encoded querier result envelope. Querier failures
// are carried inside the envelope; only boundary problems abort the call.
func (e *Environment) queryChain(ctx context.Context, mm *memory.Manager, requestPtr uint32) (uint32, error) {
	request, err := mm.ReadRegion(requestPtr, maxQueryRequestLength)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().ExternalQuery, 0, "query_chain"); err != nil {
		return 0, err
	}
	if e.Querier == nil {
		return 0, fmt.Errorf("query_chain called without a bound querier")
	}

	var result types.QuerierResult
	var parsed types.QueryRequest
	if err := json.Unmarshal(request, &parsed); err != nil {
		result = types.ToQuerierResult(nil, types.SystemError{
			InvalidRequest: &types.InvalidRequest{Err: err.Error(), Request: request},
		})
	} else {
		before := e.Querier.GasConsumed()
		response, queryErr := e.Querier.Query(parsed, e.Gas.Report().Remaining)
		if after := e.Querier.GasConsumed(); after > before {
			if err := e.Gas.ConsumeOperation(after-before, 0, "chain query"); err != nil {
				return 0, err
			}
		}
		result = types.ToQuerierResult(response, queryErr)
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return 0, fmt.Errorf("could not serialize the querier result: %w", err)
	}
	return mm.WriteData(ctx, serialized)
}
