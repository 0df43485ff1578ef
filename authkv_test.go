package authkv

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/authkv/authkv/backend"
	"github.com/authkv/authkv/common"
	"github.com/authkv/authkv/trie"
	"github.com/golang/mock/gomock"
)

func initDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory(Config{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return db
}

func TestDB_SetThenGet(t *testing.T) {
	db := initDB(t)
	if _, err := db.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if value, err := db.Get([]byte("key")); err != nil || !bytes.Equal(value, []byte("value")) {
		t.Errorf("unexpected value %s, err %v", value, err)
	}
	if _, err := db.Get([]byte("other")); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("never-set key should report ErrNotFound, got %v", err)
	}
}

func TestDB_RootTransitionScenario(t *testing.T) {
	db := initDB(t)
	if !db.Root().Empty() {
		t.Fatalf("fresh store should publish the empty root")
	}

	r1, err := db.Set([]byte("a"), []byte("1"))
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	r2, err := db.Set([]byte("b"), []byte("2"))
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if r1 == r2 || r1.Empty() || r2.Empty() {
		t.Fatalf("each content change must publish a distinct root, got %v and %v", r1, r2)
	}
	if value, err := db.Get([]byte("a")); err != nil || !bytes.Equal(value, []byte("1")) {
		t.Errorf("unexpected value %s, err %v", value, err)
	}

	r3, err := db.Delete([]byte("a"))
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if _, err := db.Get([]byte("a")); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("deleted key should report ErrNotFound, got %v", err)
	}
	if value, err := db.Get([]byte("b")); err != nil || !bytes.Equal(value, []byte("2")) {
		t.Errorf("unexpected value %s, err %v", value, err)
	}
	if db.Root() != r3 {
		t.Errorf("published root %v does not match the last commit %v", db.Root(), r3)
	}
}

func TestDB_IdempotentOperationsKeepTheRoot(t *testing.T) {
	db := initDB(t)
	first, err := db.Set([]byte("key"), []byte("value"))
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	second, err := db.Set([]byte("key"), []byte("value"))
	if err != nil {
		t.Fatalf("failed to re-set: %v", err)
	}
	if first != second {
		t.Errorf("re-setting the same pair changed the root from %v to %v", first, second)
	}
	after, err := db.Delete([]byte("absent"))
	if err != nil {
		t.Fatalf("deleting an absent key should succeed, got %v", err)
	}
	if after != first {
		t.Errorf("deleting an absent key changed the root from %v to %v", first, after)
	}
}

func TestDB_RootSurvivesReopening(t *testing.T) {
	directory := t.TempDir()
	db, err := Open(Config{Directory: directory})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	root, err := db.Set([]byte("key"), []byte("value"))
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	reopened, err := Open(Config{Directory: directory})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()
	if reopened.Root() != root {
		t.Errorf("reopened store published root %v, wanted %v", reopened.Root(), root)
	}
	if value, err := reopened.Get([]byte("key")); err != nil || !bytes.Equal(value, []byte("value")) {
		t.Errorf("unexpected value %s after reopening, err %v", value, err)
	}
}

func TestDB_EqualContentMeansEqualRoots(t *testing.T) {
	a := initDB(t)
	b := initDB(t)
	// apply the same content in different orders to two stores
	for i := 0; i < 30; i++ {
		if _, err := a.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}
	for i := 29; i >= 0; i-- {
		if _, err := b.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}
	if a.Root() != b.Root() {
		t.Errorf("stores with equal content published different roots %v and %v", a.Root(), b.Root())
	}
}

func TestDB_ConcurrentClientsLoseNoCommits(t *testing.T) {
	db := initDB(t)
	const numClients = 2
	const opsPerClient = 1000

	var wg sync.WaitGroup
	errs := make([]error, numClients)
	for client := 0; client < numClients; client++ {
		wg.Add(1)
		go func(client int) {
			defer wg.Done()
			for i := 0; i < opsPerClient; i++ {
				key := []byte(fmt.Sprintf("client-%d-key-%d", client, i))
				if _, err := db.Set(key, []byte(fmt.Sprintf("%d", i))); err != nil {
					errs[client] = err
					return
				}
			}
		}(client)
	}
	wg.Wait()
	for client, err := range errs {
		if err != nil {
			t.Fatalf("client %d failed: %v", client, err)
		}
	}

	for client := 0; client < numClients; client++ {
		for i := 0; i < opsPerClient; i++ {
			key := []byte(fmt.Sprintf("client-%d-key-%d", client, i))
			if value, err := db.Get(key); err != nil || !bytes.Equal(value, []byte(fmt.Sprintf("%d", i))) {
				t.Fatalf("commit of %s lost, got %s, err %v", key, value, err)
			}
		}
	}
	if err := db.Verify(); err != nil {
		t.Errorf("store failed verification after concurrent commits: %v", err)
	}

	// the final tree holds exactly one leaf per issued commit
	leaves := 0
	err := db.tree.Visit(db.Root(), func(hash common.Hash, node trie.Node, depth int) error {
		if _, isLeaf := node.(*trie.LeafNode); isLeaf {
			leaves++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to walk the tree: %v", err)
	}
	if want := numClients * opsPerClient; leaves != want {
		t.Errorf("unexpected number of keys %d, wanted %d", leaves, want)
	}
}

func TestDB_ReadsProceedDuringMutations(t *testing.T) {
	db := initDB(t)
	if _, err := db.Set([]byte("stable"), []byte("value")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if _, err := db.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
				t.Errorf("failed to set: %v", err)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
			if value, err := db.Get([]byte("stable")); err != nil || !bytes.Equal(value, []byte("value")) {
				t.Fatalf("read observed torn state, got %s, err %v", value, err)
			}
			root := db.Root()
			if _, err := db.Get([]byte("stable")); err != nil {
				t.Fatalf("read against root %v failed: %v", root, err)
			}
		}
	}
}

func TestDB_FailedCommitLeavesTheRootUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	injectedErr := fmt.Errorf("injected write failure")

	realDb := backend.NewInMemory()
	db := backend.NewMockKeyValueStore(ctrl)
	db.EXPECT().Get(gomock.Any()).DoAndReturn(realDb.Get).AnyTimes()
	db.EXPECT().NewBatch().DoAndReturn(realDb.NewBatch).AnyTimes()
	first := db.EXPECT().Write(gomock.Any()).DoAndReturn(realDb.Write)
	db.EXPECT().Write(gomock.Any()).Return(injectedErr).After(first)
	db.EXPECT().Write(gomock.Any()).DoAndReturn(realDb.Write).AnyTimes()

	store, err := openWith(db, Config{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	root, err := store.Set([]byte("a"), []byte("1"))
	if err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	if _, err := store.Set([]byte("b"), []byte("2")); !errors.Is(err, injectedErr) {
		t.Fatalf("the failing commit should surface the backend error, got %v", err)
	}
	if store.Root() != root {
		t.Errorf("failed commit moved the root from %v to %v", root, store.Root())
	}
	if value, err := store.Get([]byte("a")); err != nil || !bytes.Equal(value, []byte("1")) {
		t.Errorf("previously committed value lost, got %s, err %v", value, err)
	}
	if _, err := store.Get([]byte("b")); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("failed commit leaked data, err %v", err)
	}

	// the store remains usable and the retried operation succeeds
	if _, err := store.Set([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("retry after a failed commit should succeed, got %v", err)
	}
	if value, err := store.Get([]byte("b")); err != nil || !bytes.Equal(value, []byte("2")) {
		t.Errorf("unexpected value %s after retry, err %v", value, err)
	}
}

func TestDB_TamperedNodeIsDetectedOnRead(t *testing.T) {
	db := initDB(t)
	if _, err := db.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}

	// corrupt the leaf record behind the store's back
	key := backend.ToDBKey(backend.NodeSpace, db.Root()).ToBytes()
	record, err := db.db.Get(key)
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	record[len(record)-1] ^= 0x01
	if err := db.db.Put(key, record); err != nil {
		t.Fatalf("failed to tamper with record: %v", err)
	}

	// a store without the record cached must refuse to serve the value
	fresh, err := openWith(db.db, Config{})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	if _, err := fresh.Get([]byte("key")); !errors.Is(err, common.ErrCorruption) {
		t.Errorf("tampered node should report ErrCorruption, got %v", err)
	}
	if err := fresh.Verify(); !errors.Is(err, common.ErrCorruption) {
		t.Errorf("verification should detect the tampered node, got %v", err)
	}
}

func TestDB_GarbageCollectionReclaimsSupersededVersions(t *testing.T) {
	db := initDB(t)
	for i := 0; i < 50; i++ {
		if _, err := db.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}
	// supersede every value once to produce garbage
	for i := 0; i < 50; i++ {
		if _, err := db.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("other")); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}

	before, err := db.Stats()
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	removed, err := db.CollectGarbage()
	if err != nil {
		t.Fatalf("failed to collect garbage: %v", err)
	}
	if removed == 0 {
		t.Errorf("superseded versions should have produced garbage")
	}
	after, err := db.Stats()
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if after.NodeCount != before.NodeCount-removed {
		t.Errorf("unexpected node count %d, wanted %d", after.NodeCount, before.NodeCount-removed)
	}

	// the live tree is untouched
	if err := db.Verify(); err != nil {
		t.Fatalf("store failed verification after garbage collection: %v", err)
	}
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if value, err := db.Get(key); err != nil || !bytes.Equal(value, []byte("other")) {
			t.Errorf("value of %s lost, got %s, err %v", key, value, err)
		}
	}

	// a second collection finds nothing to do
	if removed, err := db.CollectGarbage(); err != nil || removed != 0 {
		t.Errorf("repeated collection should be empty, removed %d, err %v", removed, err)
	}
}

func TestDB_ProofsVerifyAgainstThePublishedRoot(t *testing.T) {
	db := initDB(t)
	for i := 0; i < 20; i++ {
		if _, err := db.Set([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
	}
	proof, err := db.Prove([]byte("key-7"))
	if err != nil {
		t.Fatalf("failed to prove: %v", err)
	}
	value, err := proof.Verify(db.Root(), []byte("key-7"))
	if err != nil {
		t.Fatalf("proof did not verify: %v", err)
	}
	if !bytes.Equal(value, []byte("value-7")) {
		t.Errorf("unexpected proven value %s", value)
	}
}

func TestDB_StatsReflectTheStore(t *testing.T) {
	db := initDB(t)
	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.NodeCount != 0 || !stats.Root.Empty() {
		t.Errorf("unexpected stats for an empty store: %+v", stats)
	}

	if _, err := db.Set([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("failed to set: %v", err)
	}
	stats, err = db.Stats()
	if err != nil {
		t.Fatalf("failed to read stats: %v", err)
	}
	if stats.NodeCount == 0 || stats.Root.Empty() {
		t.Errorf("unexpected stats after a commit: %+v", stats)
	}
}
