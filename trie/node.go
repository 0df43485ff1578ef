package trie

import (
	"fmt"

	"github.com/authkv/authkv/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// This file defines the node variants of the tree and their canonical
// serialized form. There are two variants:
//
//   - leaf nodes   ... holding a full logical key and its value
//   - branch nodes ... routing key paths by one nibble per level through
//                      an ordered list of (nibble, child digest) pairs
//
// A node is identified by the Keccak-256 digest of its encoding. Nodes are
// immutable once encoded; every modification produces a new node with a
// new digest. The encoding starts with a tag byte separating the domains
// of the two variants, so no leaf encoding can ever equal a branch
// encoding of the same digest. The remainder is the RLP encoding of the
// variant's payload, which is deterministic: logically identical nodes
// always serialize to byte-identical output.

const (
	leafTag   = byte(0x00)
	branchTag = byte(0x01)
)

// Node is the in-memory form of a single tree node, either a *LeafNode or
// a *BranchNode. Traversal code is expected to switch exhaustively over
// these two variants.
type Node interface {
	sealed()
}

// LeafNode holds one key-value pair. It is stored at the shallowest depth
// at which its key path diverges from the paths of all other keys.
type LeafNode struct {
	Key   []byte
	Value []byte
}

func (n *LeafNode) sealed() {}

// BranchNode routes lookups by the nibble of the key path at the node's
// depth. Children are kept sorted by nibble with no duplicates; this order
// is part of the canonical encoding.
type BranchNode struct {
	Children []Child
}

func (n *BranchNode) sealed() {}

// Child is one outgoing edge of a branch node.
type Child struct {
	Nibble Nibble
	Hash   common.Hash
}

// child provides the digest of the child reached through the given nibble.
func (n *BranchNode) child(nibble Nibble) (common.Hash, bool) {
	for _, c := range n.Children {
		if c.Nibble == nibble {
			return c.Hash, true
		}
	}
	return common.Hash{}, false
}

// withChild derives a new branch with the child of the given nibble set to
// the given digest, inserting it if absent. The receiver is not modified.
func (n *BranchNode) withChild(nibble Nibble, hash common.Hash) *BranchNode {
	res := &BranchNode{Children: make([]Child, 0, len(n.Children)+1)}
	inserted := false
	for _, c := range n.Children {
		if !inserted && c.Nibble >= nibble {
			res.Children = append(res.Children, Child{nibble, hash})
			inserted = true
			if c.Nibble == nibble {
				continue
			}
		}
		res.Children = append(res.Children, c)
	}
	if !inserted {
		res.Children = append(res.Children, Child{nibble, hash})
	}
	return res
}

// withoutChild derives a new branch with the child of the given nibble
// removed. The receiver is not modified.
func (n *BranchNode) withoutChild(nibble Nibble) *BranchNode {
	res := &BranchNode{Children: make([]Child, 0, len(n.Children))}
	for _, c := range n.Children {
		if c.Nibble != nibble {
			res.Children = append(res.Children, c)
		}
	}
	return res
}

type leafPayload struct {
	Key   []byte
	Value []byte
}

type childPayload struct {
	Nibble uint8
	Hash   common.Hash
}

// EncodeNode provides the canonical serialized form of the given node,
// starting with the variant's domain-separation tag.
func EncodeNode(node Node) ([]byte, error) {
	switch n := node.(type) {
	case *LeafNode:
		payload, err := rlp.EncodeToBytes(leafPayload{Key: n.Key, Value: n.Value})
		if err != nil {
			return nil, fmt.Errorf("failed to encode leaf node: %w", err)
		}
		return append([]byte{leafTag}, payload...), nil
	case *BranchNode:
		if err := checkChildren(n.Children); err != nil {
			return nil, err
		}
		children := make([]childPayload, len(n.Children))
		for i, c := range n.Children {
			children[i] = childPayload{Nibble: uint8(c.Nibble), Hash: c.Hash}
		}
		payload, err := rlp.EncodeToBytes(children)
		if err != nil {
			return nil, fmt.Errorf("failed to encode branch node: %w", err)
		}
		return append([]byte{branchTag}, payload...), nil
	default:
		return nil, fmt.Errorf("unsupported node type %T", node)
	}
}

// DecodeNode restores a node from its canonical serialized form. Malformed
// input is reported as ErrCorruption.
func DecodeNode(data []byte) (Node, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty node encoding", common.ErrCorruption)
	}
	switch data[0] {
	case leafTag:
		var payload leafPayload
		if err := rlp.DecodeBytes(data[1:], &payload); err != nil {
			return nil, fmt.Errorf("%w: malformed leaf node: %v", common.ErrCorruption, err)
		}
		return &LeafNode{Key: payload.Key, Value: payload.Value}, nil
	case branchTag:
		var payload []childPayload
		if err := rlp.DecodeBytes(data[1:], &payload); err != nil {
			return nil, fmt.Errorf("%w: malformed branch node: %v", common.ErrCorruption, err)
		}
		children := make([]Child, len(payload))
		for i, c := range payload {
			children[i] = Child{Nibble: Nibble(c.Nibble), Hash: c.Hash}
		}
		if err := checkChildren(children); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrCorruption, err)
		}
		return &BranchNode{Children: children}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node tag 0x%02x", common.ErrCorruption, data[0])
	}
}

// checkChildren enforces the canonical-ordering rule for branch children.
func checkChildren(children []Child) error {
	if len(children) == 0 {
		return fmt.Errorf("branch node without children")
	}
	for i, c := range children {
		if c.Nibble > 15 {
			return fmt.Errorf("branch child with out-of-range nibble %d", c.Nibble)
		}
		if i > 0 && children[i-1].Nibble >= c.Nibble {
			return fmt.Errorf("branch children not in strictly ascending nibble order")
		}
		if c.Hash.Empty() {
			return fmt.Errorf("branch child with empty digest")
		}
	}
	return nil
}
