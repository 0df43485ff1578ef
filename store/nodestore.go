// Package store provides content-addressed storage of serialized tree
// nodes on top of a byte-oriented persistent backend. Every record is
// keyed by the Keccak-256 digest of its content, making records immutable:
// a store never overwrites a record, it only adds new ones. Writes are
// staged in memory and applied to the backend in a single atomic batch
// together with the root record they belong to.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/authkv/authkv/backend"
	"github.com/authkv/authkv/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// rootRecordKey is the one well-known database key naming the current root.
var rootRecordKey = []byte{byte(backend.RootSpace)}

// NodeStore is a content-addressed node arena over a key-value backend.
//
// Mutating operations (Put, Commit, Rollback, Delete) must be serialized
// by the caller; at most one mutation may stage writes at a time. Get may
// be called concurrently with any operation.
type NodeStore struct {
	db    backend.KeyValueStore
	cache *lru.Cache[common.Hash, []byte]

	// pending holds the node records staged by the in-flight mutation,
	// visible to reads but not yet applied to the backend.
	mu      sync.RWMutex
	pending map[common.Hash][]byte
}

// New creates a NodeStore over the given backend retaining up to
// cacheCapacity verified node encodings in memory.
func New(db backend.KeyValueStore, cacheCapacity int) (*NodeStore, error) {
	cache, err := lru.New[common.Hash, []byte](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create node cache: %w", err)
	}
	return &NodeStore{
		db:      db,
		cache:   cache,
		pending: map[common.Hash][]byte{},
	}, nil
}

// Put stages the given node encoding for the next Commit and provides its
// content digest. Storing content already present under its digest is a
// no-op; encountering different content under the same digest is a fatal
// integrity violation reported as ErrDigestCollision.
func (s *NodeStore) Put(data []byte) (common.Hash, error) {
	hash := common.Keccak256(data)

	s.mu.RLock()
	staged, isStaged := s.pending[hash]
	s.mu.RUnlock()
	if isStaged {
		if !bytes.Equal(staged, data) {
			return common.Hash{}, fmt.Errorf("%w: staged node %v", common.ErrDigestCollision, hash)
		}
		return hash, nil
	}

	if cached, exists := s.cache.Get(hash); exists {
		if !bytes.Equal(cached, data) {
			return common.Hash{}, fmt.Errorf("%w: cached node %v", common.ErrDigestCollision, hash)
		}
		return hash, nil
	}

	stored, err := s.db.Get(backend.ToDBKey(backend.NodeSpace, hash).ToBytes())
	if err == nil {
		if !bytes.Equal(stored, data) {
			return common.Hash{}, fmt.Errorf("%w: stored node %v", common.ErrDigestCollision, hash)
		}
		s.cache.Add(hash, stored)
		return hash, nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return common.Hash{}, fmt.Errorf("failed to check node %v: %w", hash, err)
	}

	record := make([]byte, len(data))
	copy(record, data)
	s.mu.Lock()
	s.pending[hash] = record
	s.mu.Unlock()
	return hash, nil
}

// Get retrieves the node encoding stored under the given digest. Records
// loaded from the backend are re-hashed and any mismatch with the digest
// they were requested under is reported as ErrCorruption before the data
// reaches the caller. A missing record is reported as ErrNodeNotFound.
func (s *NodeStore) Get(hash common.Hash) ([]byte, error) {
	s.mu.RLock()
	staged, isStaged := s.pending[hash]
	s.mu.RUnlock()
	if isStaged {
		return staged, nil
	}

	if data, exists := s.cache.Get(hash); exists {
		return data, nil
	}

	data, err := s.db.Get(backend.ToDBKey(backend.NodeSpace, hash).ToBytes())
	if errors.Is(err, backend.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", common.ErrNodeNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load node %v: %w", hash, err)
	}
	if restored := common.Keccak256(data); restored != hash {
		return nil, fmt.Errorf("%w: node %v hashes to %v", common.ErrCorruption, hash, restored)
	}
	s.cache.Add(hash, data)
	return data, nil
}

// Commit atomically applies all staged node records together with the new
// root record to the backend. An empty root clears the root record,
// denoting an empty store. After a successful commit the staged records
// are retained in the cache.
func (s *NodeStore) Commit(root common.Hash) error {
	batch := s.db.NewBatch()
	s.mu.RLock()
	for hash, data := range s.pending {
		batch.Put(backend.ToDBKey(backend.NodeSpace, hash).ToBytes(), data)
	}
	s.mu.RUnlock()
	if root.Empty() {
		batch.Delete(rootRecordKey)
	} else {
		batch.Put(rootRecordKey, root.ToBytes())
	}
	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("failed to commit %d nodes: %w", batch.Len()-1, err)
	}
	s.mu.Lock()
	for hash, data := range s.pending {
		s.cache.Add(hash, data)
	}
	s.pending = map[common.Hash][]byte{}
	s.mu.Unlock()
	return nil
}

// Rollback discards all staged node records.
func (s *NodeStore) Rollback() {
	s.mu.Lock()
	s.pending = map[common.Hash][]byte{}
	s.mu.Unlock()
}

// PendingCount provides the number of node records staged by the in-flight
// mutation.
func (s *NodeStore) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Root loads the published root digest, or the empty sentinel if the store
// holds no root record.
func (s *NodeStore) Root() (common.Hash, error) {
	data, err := s.db.Get(rootRecordKey)
	if errors.Is(err, backend.ErrNotFound) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to load root record: %w", err)
	}
	root, ok := common.HashFromBytes(data)
	if !ok {
		return common.Hash{}, fmt.Errorf("%w: root record of %d bytes", common.ErrCorruption, len(data))
	}
	return root, nil
}

// Delete removes the record stored under the given digest. It is a
// best-effort space-reclamation operation; the caller must guarantee the
// digest is no longer reachable from any live root.
func (s *NodeStore) Delete(hash common.Hash) error {
	s.cache.Remove(hash)
	return s.db.Delete(backend.ToDBKey(backend.NodeSpace, hash).ToBytes())
}

// DeleteAll removes the records of all given digests in one atomic batch.
// Like Delete it must only be applied to unreachable digests.
func (s *NodeStore) DeleteAll(hashes []common.Hash) error {
	batch := s.db.NewBatch()
	for _, hash := range hashes {
		s.cache.Remove(hash)
		batch.Delete(backend.ToDBKey(backend.NodeSpace, hash).ToBytes())
	}
	return s.db.Write(batch)
}

// ForEach enumerates all persisted node records in unspecified order. The
// data slice passed to the visitor is only valid for the duration of the
// call. Staged records are not covered.
func (s *NodeStore) ForEach(visit func(hash common.Hash, data []byte) error) error {
	r := backend.TableRange(backend.NodeSpace)
	iter := s.db.NewIterator(&r)
	defer iter.Release()
	for iter.Next() {
		hash, ok := common.HashFromBytes(iter.Key()[1:])
		if !ok {
			return fmt.Errorf("%w: malformed node key of %d bytes", common.ErrCorruption, len(iter.Key()))
		}
		if err := visit(hash, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// NodeCount provides the number of persisted node records.
func (s *NodeStore) NodeCount() (int, error) {
	count := 0
	err := s.ForEach(func(common.Hash, []byte) error {
		count++
		return nil
	})
	return count, err
}
