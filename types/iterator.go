package types

// Iterator is the interface for iterating over key-value pairs of a KVStore.
// Compatible with the iterators of github.com/cosmos/cosmos-sdk/store/types
// and github.com/cometbft/cometbft-db.
type Iterator interface {
	// Domain returns the start (inclusive) and end (exclusive) limits of the iterator.
	Domain() (start []byte, end []byte)
	// Valid returns whether the current iterator is valid. Once invalid, the
	// Iterator remains invalid forever.
	Valid() bool
	// Next moves the iterator to the next key in the database, as defined by
	// order of iteration. If Valid returns false, this method will panic.
	Next()
	// Key returns the key at the current position. Panics if the iterator is invalid.
	Key() (key []byte)
	// Value returns the value at the current position. Panics if the iterator is invalid.
	Value() (value []byte)
	// Error returns the last error encountered by the iterator, if any.
	Error() error
	// Close releases the Iterator.
	Close() error
}

// KVStore copies a subset of types from cosmos-sdk
// We may wish to make this more generic sometime in the future, but not now
// https://github.com/cosmos/cosmos-sdk/blob/bef3689245bab591d7d169abd6bea52db97a70c7/store/types/store.go#L170
type KVStore interface {
	Get(key []byte) []byte
	Set(key, value []byte)
	Delete(key []byte)

	// Iterator over a domain of keys in ascending order. End is exclusive.
	// Start must be less than end, or the Iterator is invalid.
	// Iterator must be closed by caller.
	// To iterate over entire domain, use store.Iterator(nil, nil)
	Iterator(start, end []byte) Iterator

	// Iterator over a domain of keys in descending order. End is exclusive.
	// Start must be less than end, or the Iterator is invalid.
	// Iterator must be closed by caller.
	ReverseIterator(start, end []byte) Iterator
}
