package host

import (
	"context"
	"fmt"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// Iteration orders as the contract passes them to db_scan.
const (
	orderAscending  int32 = 1
	orderDescending int32 = 2
)

// dbRead looks the key up in the bound store and copies the value into a
// fresh guest region. A missing key returns a null pointer.
func (e *Environment) dbRead(ctx context.Context, mm *memory.Manager, keyPtr uint32) (uint32, error) {
	key, err := mm.ReadRegion(keyPtr, maxKeyLength)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().DatabaseRead, 0, "db_read"); err != nil {
		return 0, err
	}
	value := e.Store.Get(key)
	if value == nil {
		return 0, nil
	}
	return mm.WriteData(ctx, value)
}

// dbWrite stores a key/value pair. Rejected in read-only calls.
func (e *Environment) dbWrite(ctx context.Context, mm *memory.Manager, keyPtr, valuePtr uint32) error {
	if e.Readonly {
		return fmt.Errorf("db_write called in a read-only call")
	}
	key, err := mm.ReadRegion(keyPtr, maxKeyLength)
	if err != nil {
		return err
	}
	value, err := mm.ReadRegion(valuePtr, maxValueLength)
	if err != nil {
		return err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().DatabaseWrite, uint64(len(value)), "db_write"); err != nil {
		return err
	}
	e.Store.Set(key, value)
	return nil
}

// dbRemove deletes a key. Rejected in read-only calls.
func (e *Environment) dbRemove(ctx context.Context, mm *memory.Manager, keyPtr uint32) error {
	if e.Readonly {
		return fmt.Errorf("db_remove called in a read-only call")
	}
	key, err := mm.ReadRegion(keyPtr, maxKeyLength)
	if err != nil {
		return err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().DatabaseWrite, 0, "db_remove"); err != nil {
		return err
	}
	e.Store.Delete(key)
	return nil
}

// dbScan opens an iterator over [start, end) and returns its handle. Null
// bound pointers mean an unbounded side.
func (e *Environment) dbScan(ctx context.Context, mm *memory.Manager, startPtr, endPtr uint32, order int32) (uint32, error) {
	var start, end []byte
	var err error
	if startPtr != 0 {
		start, err = mm.ReadRegion(startPtr, maxKeyLength)
		if err != nil {
			return 0, err
		}
	}
	if endPtr != 0 {
		end, err = mm.ReadRegion(endPtr, maxKeyLength)
		if err != nil {
			return 0, err
		}
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().IteratorCreate, uint64(len(start)+len(end)), "db_scan"); err != nil {
		return 0, err
	}

	var iter types.Iterator
	switch order {
	case orderAscending:
		iter = e.Store.Iterator(start, end)
	case orderDescending:
		iter = e.Store.ReverseIterator(start, end)
	default:
		return 0, fmt.Errorf("invalid iteration order %d, want %d or %d", order, orderAscending, orderDescending)
	}
	id, err := e.addIterator(iter)
	if err != nil {
		iter.Close()
		return 0, err
	}
	return id, nil
}

// dbNext advances the iterator and returns a region holding the key and
// value as two sections. At the end both sections are empty.
func (e *Environment) dbNext(ctx context.Context, mm *memory.Manager, id uint32) (uint32, error) {
	key, value, err := e.advanceIterator(id)
	if err != nil {
		return 0, err
	}
	return mm.WriteData(ctx, encodeSections(key, value))
}

// dbNextKey advances the iterator and returns a region with the next key,
// or a null pointer at the end.
func (e *Environment) dbNextKey(ctx context.Context, mm *memory.Manager, id uint32) (uint32, error) {
	key, _, err := e.advanceIterator(id)
	if err != nil {
		return 0, err
	}
	if key == nil {
		return 0, nil
	}
	return mm.WriteData(ctx, key)
}

// dbNextValue advances the iterator and returns a region with the next
// value, or a null pointer at the end.
func (e *Environment) dbNextValue(ctx context.Context, mm *memory.Manager, id uint32) (uint32, error) {
	_, value, err := e.advanceIterator(id)
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	return mm.WriteData(ctx, value)
}

// advanceIterator returns the current entry of the iterator and moves it
// forward. Both return slices are nil once the iterator is exhausted.
func (e *Environment) advanceIterator(id uint32) ([]byte, []byte, error) {
	iter, ok := e.iterator(id)
	if !ok {
		return nil, nil, fmt.Errorf("db_next called with unknown iterator id %d", id)
	}
	if !iter.Valid() {
		if err := iter.Error(); err != nil {
			return nil, nil, fmt.Errorf("iterator %d failed: %w", id, err)
		}
		if err := e.Gas.ConsumeOperation(e.Gas.Costs().IteratorNext, 0, "db_next"); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	key := iter.Key()
	value := iter.Value()
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().IteratorNext, uint64(len(key)+len(value)), "db_next"); err != nil {
		return nil, nil, err
	}
	iter.Next()
	return key, value, nil
}
