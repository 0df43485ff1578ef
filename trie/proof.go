package trie

import (
	"bytes"
	"fmt"

	"github.com/authkv/authkv/common"
)

// ErrInvalidProof is reported when a proof does not connect the claimed
// root to a leaf holding the proven key.
const ErrInvalidProof = common.ConstError("invalid proof")

// Proof is a self-contained membership proof for one key: the canonical
// encodings of the nodes on the path from the root down to the leaf
// holding the key. It can be verified against a root digest without any
// access to the store the tree lives in.
type Proof struct {
	Nodes [][]byte
}

// Prove extracts the membership proof for the given key from the tree
// identified by the given root. For keys not present in the tree,
// ErrNotFound is reported.
func (t *Trie) Prove(root common.Hash, key []byte) (*Proof, error) {
	path := NewPath(key)
	current := root
	proof := &Proof{}
	for depth := 0; ; depth++ {
		if current.Empty() {
			return nil, common.ErrNotFound
		}
		data, err := t.nodes.Get(current)
		if err != nil {
			return nil, err
		}
		node, err := DecodeNode(data)
		if err != nil {
			return nil, err
		}
		proof.Nodes = append(proof.Nodes, data)
		switch n := node.(type) {
		case *LeafNode:
			if bytes.Equal(n.Key, key) {
				return proof, nil
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
		}
	}
}

// Verify checks the proof against the given root digest and provides the
// proven value for the key. It recomputes the digest of every node in the
// proof, so any tampering with a single byte renders the proof invalid.
func (p *Proof) Verify(root common.Hash, key []byte) ([]byte, error) {
	path := NewPath(key)
	expected := root
	depth := 0
	for _, data := range p.Nodes {
		if expected.Empty() {
			return nil, ErrInvalidProof
		}
		if common.Keccak256(data) != expected {
			return nil, ErrInvalidProof
		}
		node, err := DecodeNode(data)
		if err != nil {
			return nil, ErrInvalidProof
		}
		switch n := node.(type) {
		case *LeafNode:
			if !bytes.Equal(n.Key, key) {
				return nil, ErrInvalidProof
			}
			return n.Value, nil
		case *BranchNode:
			if depth >= MaxDepth {
				return nil, ErrInvalidProof
			}
			child, exists := n.child(path.Get(depth))
			if !exists {
				return nil, ErrInvalidProof
			}
			expected = child
			depth++
		}
	}
	return nil, ErrInvalidProof
}
