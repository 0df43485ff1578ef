package backend

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDb is a KeyValueStore implementation backed by a LevelDB instance.
// All writes are issued with Sync enabled so that an acknowledged write
// survives a process crash.
type LevelDb struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// OpenLevelDb opens (creating if needed) a LevelDB database in the given
// directory and wraps it as a KeyValueStore.
func OpenLevelDb(path string, writeBufferSize int) (*LevelDb, error) {
	options := opt.Options{}
	if writeBufferSize > 0 {
		options.WriteBuffer = writeBufferSize
	}
	db, err := leveldb.OpenFile(path, &options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database in %s: %w", path, err)
	}
	return &LevelDb{
		db: db,
		wo: &opt.WriteOptions{Sync: true},
	}, nil
}

func (l *LevelDb) Get(key []byte) ([]byte, error) {
	value, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

func (l *LevelDb) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDb) Put(key, value []byte) error {
	return l.db.Put(key, value, l.wo)
}

func (l *LevelDb) Delete(key []byte) error {
	return l.db.Delete(key, l.wo)
}

func (l *LevelDb) NewBatch() Batch {
	return &ldbBatch{}
}

func (l *LevelDb) Write(batch Batch) error {
	b, ok := batch.(*ldbBatch)
	if !ok {
		return fmt.Errorf("unexpected batch type %T", batch)
	}
	return l.db.Write(&b.batch, l.wo)
}

func (l *LevelDb) NewIterator(r *Range) Iterator {
	var slice *util.Range
	if r != nil {
		slice = &util.Range{Start: r.Start, Limit: r.Limit}
	}
	return &ldbIterator{iter: l.db.NewIterator(slice, nil)}
}

func (l *LevelDb) Close() error {
	return l.db.Close()
}

// SizeOnDisk provides the approximate number of bytes the given key range
// occupies in the database files.
func (l *LevelDb) SizeOnDisk(r Range) (int64, error) {
	sizes, err := l.db.SizeOf([]util.Range{{Start: r.Start, Limit: r.Limit}})
	if err != nil {
		return 0, err
	}
	return sizes.Sum(), nil
}

type ldbBatch struct {
	batch leveldb.Batch
}

func (b *ldbBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *ldbBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (b *ldbBatch) Len() int {
	return b.batch.Len()
}

func (b *ldbBatch) Reset() {
	b.batch.Reset()
}

type ldbIterator struct {
	iter iterator.Iterator
}

func (i *ldbIterator) Next() bool {
	return i.iter.Next()
}

func (i *ldbIterator) Key() []byte {
	return i.iter.Key()
}

func (i *ldbIterator) Value() []byte {
	return i.iter.Value()
}

func (i *ldbIterator) Release() {
	i.iter.Release()
}

func (i *ldbIterator) Error() error {
	return i.iter.Error()
}
