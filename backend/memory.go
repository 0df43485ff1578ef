package backend

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// InMemory is a volatile KeyValueStore implementation retaining all records
// in a map. It provides the same contract as the LevelDb implementation,
// minus durability, and is mainly intended for tests.
type InMemory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{data: map[string][]byte{}}
}

func (m *InMemory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, exists := m.data[string(key)]
	if !exists {
		return nil, ErrNotFound
	}
	res := make([]byte, len(value))
	copy(res, value)
	return res, nil
}

func (m *InMemory) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.data[string(key)]
	return exists, nil
}

func (m *InMemory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = slices.Clone(value)
	return nil
}

func (m *InMemory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *InMemory) NewBatch() Batch {
	return &memoryBatch{}
}

func (m *InMemory) Write(batch Batch) error {
	b, ok := batch.(*memoryBatch)
	if !ok {
		return fmt.Errorf("unexpected batch type %T", batch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(m.data, op.key)
		} else {
			m.data[op.key] = op.value
		}
	}
	return nil
}

func (m *InMemory) NewIterator(r *Range) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := maps.Keys(m.data)
	slices.Sort(keys)
	res := &memoryIterator{position: -1}
	for _, key := range keys {
		if r != nil && r.Start != nil && key < string(r.Start) {
			continue
		}
		if r != nil && r.Limit != nil && key >= string(r.Limit) {
			continue
		}
		res.keys = append(res.keys, key)
		res.values = append(res.values, slices.Clone(m.data[key]))
	}
	return res
}

func (m *InMemory) Close() error {
	return nil
}

type memoryOp struct {
	key    string
	value  []byte
	delete bool
}

type memoryBatch struct {
	ops []memoryOp
}

func (b *memoryBatch) Put(key, value []byte) {
	b.ops = append(b.ops, memoryOp{key: string(key), value: slices.Clone(value)})
}

func (b *memoryBatch) Delete(key []byte) {
	b.ops = append(b.ops, memoryOp{key: string(key), delete: true})
}

func (b *memoryBatch) Len() int {
	return len(b.ops)
}

func (b *memoryBatch) Reset() {
	b.ops = b.ops[:0]
}

// memoryIterator walks a snapshot of the store taken when the iterator was
// created, mirroring LevelDB's iterator consistency guarantee.
type memoryIterator struct {
	keys     []string
	values   [][]byte
	position int
}

func (i *memoryIterator) Next() bool {
	if i.position+1 >= len(i.keys) {
		return false
	}
	i.position++
	return true
}

func (i *memoryIterator) Key() []byte {
	return []byte(i.keys[i.position])
}

func (i *memoryIterator) Value() []byte {
	return i.values[i.position]
}

func (i *memoryIterator) Release() {}

func (i *memoryIterator) Error() error {
	return nil
}
