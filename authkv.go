// Package authkv provides an authenticated, persistent key-value store.
// All key-value pairs are kept in a content-addressed merkle tree whose
// nodes are durably persisted in an embedded LevelDB instance. The digest
// of the tree's root node commits to the entire key space: two stores hold
// identical content if and only if their root digests match, and any
// modification of the persisted data is detected before values reach a
// caller.
package authkv

import (
	"errors"
	"fmt"
	"sync"

	"github.com/authkv/authkv/backend"
	"github.com/authkv/authkv/common"
	"github.com/authkv/authkv/store"
	"github.com/authkv/authkv/trie"
)

// Config carries the open-time parameters of a store.
type Config struct {
	// Directory is the location of the underlying database. Opening an
	// empty or missing directory creates an empty store.
	Directory string
	// CacheCapacity is the maximum number of decoded node records kept in
	// memory. Zero selects a default.
	CacheCapacity int
	// WriteBufferSize tunes the underlying database's write buffer in
	// bytes. Zero selects the database's default.
	WriteBufferSize int
}

const defaultCacheCapacity = 100_000

// DB is an authenticated key-value store. It is safe for concurrent use:
// mutations (Set, Delete) are serialized into a single linear history of
// root transitions in the order they acquire the commit lock, while reads
// (Get, Root, Prove) proceed concurrently against the currently published
// root. A root is published only after all node records it depends on
// have been durably applied in one atomic batch, so no failure can ever
// expose a partially written tree.
type DB struct {
	db    backend.KeyValueStore
	nodes *store.NodeStore
	tree  *trie.Trie

	// commit serializes mutations; at most one commit is in flight.
	commit sync.Mutex
	// rootMu guards the published root against torn reads.
	rootMu sync.RWMutex
	root   common.Hash
}

// Open opens the store in the configured directory, creating it if needed,
// and restores the last published root.
func Open(config Config) (*DB, error) {
	db, err := backend.OpenLevelDb(config.Directory, config.WriteBufferSize)
	if err != nil {
		return nil, err
	}
	res, err := openWith(db, config)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return res, nil
}

// OpenInMemory creates a volatile store for tests and experiments.
func OpenInMemory(config Config) (*DB, error) {
	return openWith(backend.NewInMemory(), config)
}

func openWith(db backend.KeyValueStore, config Config) (*DB, error) {
	capacity := config.CacheCapacity
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	nodes, err := store.New(db, capacity)
	if err != nil {
		return nil, err
	}
	root, err := nodes.Root()
	if err != nil {
		return nil, err
	}
	return &DB{
		db:    db,
		nodes: nodes,
		tree:  trie.New(nodes),
		root:  root,
	}, nil
}

// Get retrieves the value most recently committed for the given key, or
// ErrNotFound if the store does not contain the key. Get never blocks on
// in-flight mutations.
func (d *DB) Get(key []byte) ([]byte, error) {
	return d.tree.Lookup(d.Root(), key)
}

// Set commits the given key-value pair and provides the new root digest.
// Setting a pair that is already present leaves the root unchanged. On any
// failure the previously published root remains in place.
func (d *DB) Set(key, value []byte) (common.Hash, error) {
	return d.mutate(func(root common.Hash) (common.Hash, error) {
		return d.tree.Insert(root, key, value)
	})
}

// Delete commits the removal of the given key and provides the new root
// digest. Deleting an absent key succeeds and leaves the root unchanged,
// so deletes can safely be replayed.
func (d *DB) Delete(key []byte) (common.Hash, error) {
	return d.mutate(func(root common.Hash) (common.Hash, error) {
		return d.tree.Delete(root, key)
	})
}

// mutate runs one tree transition under the commit lock: it derives the
// new root from the published one, atomically persists all staged nodes
// together with the new root record, and only then publishes the new root.
func (d *DB) mutate(apply func(root common.Hash) (common.Hash, error)) (common.Hash, error) {
	d.commit.Lock()
	defer d.commit.Unlock()

	oldRoot := d.Root()
	newRoot, err := apply(oldRoot)
	if err != nil {
		d.nodes.Rollback()
		return common.Hash{}, err
	}
	if newRoot == oldRoot {
		d.nodes.Rollback()
		return oldRoot, nil
	}
	if err := d.nodes.Commit(newRoot); err != nil {
		d.nodes.Rollback()
		return common.Hash{}, err
	}

	d.rootMu.Lock()
	d.root = newRoot
	d.rootMu.Unlock()
	return newRoot, nil
}

// Root provides the digest committing to the store's current content. The
// empty digest denotes the empty store.
func (d *DB) Root() common.Hash {
	d.rootMu.RLock()
	defer d.rootMu.RUnlock()
	return d.root
}

// Prove extracts a membership proof for the given key against the current
// root; see trie.Proof.
func (d *DB) Prove(key []byte) (*trie.Proof, error) {
	return d.tree.Prove(d.Root(), key)
}

// Verify checks the integrity of the entire tree published by the current
// root, re-hashing every reachable node record. A nil result means the
// store is fully intact.
func (d *DB) Verify() error {
	d.commit.Lock()
	defer d.commit.Unlock()
	return trie.Verify(d.tree, d.Root())
}

// CollectGarbage removes all node records no longer reachable from the
// current root, reclaiming the space held by superseded tree versions. It
// blocks mutations for the duration of the sweep; reads remain safe as
// only unreachable records are removed.
func (d *DB) CollectGarbage() (int, error) {
	d.commit.Lock()
	defer d.commit.Unlock()

	reachable := map[common.Hash]bool{}
	err := d.tree.Visit(d.Root(), func(hash common.Hash, node trie.Node, depth int) error {
		reachable[hash] = true
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to collect reachable nodes: %w", err)
	}

	var garbage []common.Hash
	err = d.nodes.ForEach(func(hash common.Hash, data []byte) error {
		if !reachable[hash] {
			garbage = append(garbage, hash)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep node records: %w", err)
	}
	if len(garbage) == 0 {
		return 0, nil
	}
	if err := d.nodes.DeleteAll(garbage); err != nil {
		return 0, fmt.Errorf("failed to delete %d node records: %w", len(garbage), err)
	}
	return len(garbage), nil
}

// Stats summarizes the persisted state of a store.
type Stats struct {
	// Root is the currently published root digest.
	Root common.Hash
	// NodeCount is the number of persisted node records, reachable or not.
	NodeCount int
	// SizeOnDisk approximates the bytes occupied by node records, or -1 if
	// the backend cannot tell.
	SizeOnDisk int64
}

// Stats provides a snapshot of the store's persisted state.
func (d *DB) Stats() (Stats, error) {
	count, err := d.nodes.NodeCount()
	if err != nil {
		return Stats{}, err
	}
	size := int64(-1)
	if ldb, ok := d.db.(*backend.LevelDb); ok {
		if size, err = ldb.SizeOnDisk(backend.TableRange(backend.NodeSpace)); err != nil {
			return Stats{}, err
		}
	}
	return Stats{Root: d.Root(), NodeCount: count, SizeOnDisk: size}, nil
}

// Close flushes and releases the underlying database. The store must not
// be used afterwards.
func (d *DB) Close() error {
	d.commit.Lock()
	defer d.commit.Unlock()
	return d.db.Close()
}
