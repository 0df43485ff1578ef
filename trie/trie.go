// Package trie implements a content-addressed merkle tree over logical
// key-value pairs. Nodes are identified by the Keccak-256 digest of their
// canonical encoding and persisted in a NodeStore; the digest of the root
// node commits to the entire key space. Mutations never modify persisted
// nodes: they derive replacement nodes along the touched path and produce
// a new root digest, leaving every previous root fully intact (structural
// sharing across roots).
package trie

import (
	"bytes"
	"fmt"

	"github.com/authkv/authkv/common"
	"github.com/authkv/authkv/store"
)

// Trie performs lookups and mutations against roots of a node store. All
// mutations are pure functions of (old root, operation) producing a new
// root; the empty digest is the root of the empty tree.
//
// Mutations stage their new nodes in the underlying NodeStore and must be
// serialized by the caller; lookups may proceed concurrently against any
// fully committed root.
type Trie struct {
	nodes *store.NodeStore
}

// New creates a Trie view on the given node store.
func New(nodes *store.NodeStore) *Trie {
	return &Trie{nodes: nodes}
}

// Lookup retrieves the value most recently inserted for the given key in
// the tree identified by the given root, or ErrNotFound if the tree does
// not contain the key. It never modifies the store.
func (t *Trie) Lookup(root common.Hash, key []byte) ([]byte, error) {
	path := NewPath(key)
	current := root
	for depth := 0; ; depth++ {
		if current.Empty() {
			return nil, common.ErrNotFound
		}
		node, err := t.getNode(current)
		if err != nil {
			return nil, err
		}
		switch n := node.(type) {
		case *LeafNode:
			if bytes.Equal(n.Key, key) {
				return n.Value, nil
			}
			return nil, common.ErrNotFound
		case *BranchNode:
			if depth >= MaxDepth {
				return nil, fmt.Errorf("%w: branch node below maximum depth", common.ErrCorruption)
			}
			child, exists := n.child(path.Get(depth))
			if !exists {
				return nil, common.ErrNotFound
			}
			current = child
		default:
			return nil, fmt.Errorf("%w: unexpected node type %T", common.ErrCorruption, node)
		}
	}
}

// Insert derives the tree that contains the given key-value pair and is
// otherwise identical to the tree identified by the given root, and
// provides its root digest. Inserting an already-present pair is a no-op
// returning the given root unchanged. New nodes are staged in the node
// store; nothing is published until the caller commits.
func (t *Trie) Insert(root common.Hash, key, value []byte) (common.Hash, error) {
	return t.insert(root, NewPath(key), 0, key, value)
}

func (t *Trie) insert(current common.Hash, path Path, depth int, key, value []byte) (common.Hash, error) {
	if current.Empty() {
		return t.putNode(&LeafNode{Key: key, Value: value})
	}
	node, err := t.getNode(current)
	if err != nil {
		return common.Hash{}, err
	}
	switch n := node.(type) {
	case *LeafNode:
		if bytes.Equal(n.Key, key) {
			if bytes.Equal(n.Value, value) {
				return current, nil
			}
			return t.putNode(&LeafNode{Key: key, Value: value})
		}
		return t.split(current, n, path, depth, key, value)
	case *BranchNode:
		if depth >= MaxDepth {
			return common.Hash{}, fmt.Errorf("%w: branch node below maximum depth", common.ErrCorruption)
		}
		nibble := path.Get(depth)
		child, _ := n.child(nibble)
		newChild, err := t.insert(child, path, depth+1, key, value)
		if err != nil {
			return common.Hash{}, err
		}
		if newChild == child {
			return current, nil
		}
		return t.putNode(n.withChild(nibble, newChild))
	default:
		return common.Hash{}, fmt.Errorf("%w: unexpected node type %T", common.ErrCorruption, node)
	}
}

// split replaces a leaf by the subtree holding both the leaf and a new
// key-value pair: a branch at the depth of the first diverging nibble,
// reached through a chain of single-child branches covering the shared
// path segment.
func (t *Trie) split(leafHash common.Hash, leaf *LeafNode, path Path, depth int, key, value []byte) (common.Hash, error) {
	leafPath := NewPath(leaf.Key)
	divergence := depth
	for divergence < MaxDepth && leafPath.Get(divergence) == path.Get(divergence) {
		divergence++
	}
	if divergence == MaxDepth {
		// Two distinct keys with identical key hashes - the hash function
		// is broken or under attack. There is no valid tree shape for
		// this, so fail the mutation.
		return common.Hash{}, fmt.Errorf("%w: distinct keys %x and %x share a full path", common.ErrDigestCollision, leaf.Key, key)
	}

	newLeaf, err := t.putNode(&LeafNode{Key: key, Value: value})
	if err != nil {
		return common.Hash{}, err
	}
	fork := &BranchNode{}
	fork = fork.withChild(leafPath.Get(divergence), leafHash)
	fork = fork.withChild(path.Get(divergence), newLeaf)
	current, err := t.putNode(fork)
	if err != nil {
		return common.Hash{}, err
	}
	for level := divergence - 1; level >= depth; level-- {
		current, err = t.putNode(&BranchNode{Children: []Child{{path.Get(level), current}}})
		if err != nil {
			return common.Hash{}, err
		}
	}
	return current, nil
}

// Delete derives the tree without the given key and provides its root
// digest. Deleting an absent key is a no-op returning the given root
// unchanged, so replaying a delete is always safe.
func (t *Trie) Delete(root common.Hash, key []byte) (common.Hash, error) {
	return t.delete(root, NewPath(key), 0, key)
}

func (t *Trie) delete(current common.Hash, path Path, depth int, key []byte) (common.Hash, error) {
	if current.Empty() {
		return current, nil
	}
	node, err := t.getNode(current)
	if err != nil {
		return common.Hash{}, err
	}
	switch n := node.(type) {
	case *LeafNode:
		if !bytes.Equal(n.Key, key) {
			return current, nil
		}
		return common.Hash{}, nil
	case *BranchNode:
		if depth >= MaxDepth {
			return common.Hash{}, fmt.Errorf("%w: branch node below maximum depth", common.ErrCorruption)
		}
		nibble := path.Get(depth)
		child, exists := n.child(nibble)
		if !exists {
			return current, nil
		}
		newChild, err := t.delete(child, path, depth+1, key)
		if err != nil {
			return common.Hash{}, err
		}
		if newChild == child {
			return current, nil
		}
		replacement := n.withoutChild(nibble)
		if !newChild.Empty() {
			replacement = replacement.withChild(nibble, newChild)
		}
		return t.collapse(replacement)
	default:
		return common.Hash{}, fmt.Errorf("%w: unexpected node type %T", common.ErrCorruption, node)
	}
}

// collapse restores the canonical shape of a branch after a removal: a
// branch left without children vanishes, and a branch left with a single
// leaf child is replaced by that leaf, lifting it to the shallowest depth
// at which its path is unique again.
func (t *Trie) collapse(branch *BranchNode) (common.Hash, error) {
	if len(branch.Children) == 0 {
		return common.Hash{}, nil
	}
	if len(branch.Children) == 1 {
		only := branch.Children[0].Hash
		node, err := t.getNode(only)
		if err != nil {
			return common.Hash{}, err
		}
		if _, isLeaf := node.(*LeafNode); isLeaf {
			return only, nil
		}
	}
	return t.putNode(branch)
}

// Visit walks all nodes reachable from the given root in depth-first
// pre-order, reporting each node's digest, decoded form, and depth.
func (t *Trie) Visit(root common.Hash, visit func(hash common.Hash, node Node, depth int) error) error {
	return t.visit(root, 0, visit)
}

func (t *Trie) visit(current common.Hash, depth int, visit func(common.Hash, Node, int) error) error {
	if current.Empty() {
		return nil
	}
	node, err := t.getNode(current)
	if err != nil {
		return err
	}
	if err := visit(current, node, depth); err != nil {
		return err
	}
	if branch, isBranch := node.(*BranchNode); isBranch {
		for _, child := range branch.Children {
			if err := t.visit(child.Hash, depth+1, visit); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Trie) getNode(hash common.Hash) (Node, error) {
	data, err := t.nodes.Get(hash)
	if err != nil {
		return nil, err
	}
	return DecodeNode(data)
}

func (t *Trie) putNode(node Node) (common.Hash, error) {
	data, err := EncodeNode(node)
	if err != nil {
		return common.Hash{}, err
	}
	return t.nodes.Put(data)
}
