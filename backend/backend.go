package backend

//go:generate mockgen -source backend.go -destination backend_mocks.go -package backend

import "github.com/authkv/authkv/common"

// TableSpace divides a single key-value database into disjoint key spaces
// by prefixing every key with one byte.
type TableSpace byte

const (
	// NodeSpace is the tablespace holding serialized tree nodes keyed by
	// their content digest.
	NodeSpace TableSpace = 'N'
	// RootSpace is the tablespace holding the single well-known record
	// naming the current root digest.
	RootSpace TableSpace = 'R'
)

// DbKey is a database key composed of a one-byte tablespace prefix and a
// node digest.
type DbKey [1 + common.HashLength]byte

// ToDBKey converts a digest to its database key in the given tablespace.
func ToDBKey(t TableSpace, hash common.Hash) DbKey {
	var key DbKey
	key[0] = byte(t)
	copy(key[1:], hash[:])
	return key
}

func (k DbKey) ToBytes() []byte {
	return k[:]
}

// TableRange provides the key range covering all records of a tablespace,
// to be used for iteration.
func TableRange(t TableSpace) Range {
	return Range{Start: []byte{byte(t)}, Limit: []byte{byte(t) + 1}}
}

// ErrNotFound is reported by Get when the requested record is absent.
const ErrNotFound = common.ConstError("backend: record not found")

// KeyValueStore is the contract the merkle layer consumes from an embedded
// persistent engine. All operations are synchronous; a Put or Write call
// that returned without error has been durably applied. Implementations
// must be safe for concurrent use.
type KeyValueStore interface {
	// Get retrieves the value stored under the given key, or ErrNotFound
	// if the record is absent. The returned slice is a private copy.
	Get(key []byte) ([]byte, error)

	// Has reports whether a record exists under the given key.
	Has(key []byte) (bool, error)

	// Put durably stores the given value under the given key, overwriting
	// any previous value.
	Put(key, value []byte) error

	// Delete removes the record stored under the given key. Deleting an
	// absent record is not an error.
	Delete(key []byte) error

	// NewBatch creates an empty write batch for this store.
	NewBatch() Batch

	// Write atomically applies all operations collected in the batch.
	// Either every operation is durably applied or none is.
	Write(batch Batch) error

	// NewIterator iterates records whose keys fall in the given range in
	// ascending key order. A nil range covers the entire store.
	NewIterator(r *Range) Iterator

	// Close flushes and releases the underlying database.
	Close() error
}

// Batch collects put and delete operations to be applied atomically by
// KeyValueStore.Write. A batch is not safe for concurrent use.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Len provides the number of operations collected so far.
	Len() int
	// Reset clears the batch for reuse.
	Reset()
}

// Range limits an iteration to keys with Start <= key < Limit. A nil
// boundary is unbounded on that side.
type Range struct {
	Start []byte
	Limit []byte
}

// Iterator is a cursor over a key range. It starts positioned before the
// first record; Next advances it and reports whether a record is loaded.
// Key and Value expose slices only valid until the next call to Next, and
// Release must be called after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}
