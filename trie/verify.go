package trie

import (
	"fmt"

	"github.com/authkv/authkv/common"
)

// Verify checks the integrity of the tree identified by the given root.
// It walks every reachable node, which re-hashes all stored encodings
// against the digests they are referenced by, and checks the structural
// invariants the mutation operations maintain:
//
//   - every node sits within the maximum path depth,
//   - branch children are unique and in ascending nibble order (enforced
//     while decoding),
//   - a branch with a single child routes to another branch; single leaf
//     children are always lifted into their parent,
//   - every leaf is reachable through exactly the nibble sequence of its
//     own key path.
//
// Any violation is reported as an error wrapping ErrCorruption or
// ErrNodeNotFound; a nil result means the tree is fully intact.
func Verify(t *Trie, root common.Hash) error {
	if root.Empty() {
		return nil
	}
	return verify(t, root, nil)
}

func verify(t *Trie, current common.Hash, prefix []Nibble) error {
	node, err := t.getNode(current)
	if err != nil {
		return err
	}
	switch n := node.(type) {
	case *LeafNode:
		path := NewPath(n.Key)
		for depth, nibble := range prefix {
			if path.Get(depth) != nibble {
				return fmt.Errorf("%w: leaf %v for key %x reachable through foreign path", common.ErrCorruption, current, n.Key)
			}
		}
		return nil
	case *BranchNode:
		if len(prefix) >= MaxDepth {
			return fmt.Errorf("%w: branch node %v below maximum depth", common.ErrCorruption, current)
		}
		if len(n.Children) == 1 {
			child, err := t.getNode(n.Children[0].Hash)
			if err != nil {
				return err
			}
			if _, isLeaf := child.(*LeafNode); isLeaf {
				return fmt.Errorf("%w: branch node %v with a single leaf child", common.ErrCorruption, current)
			}
		}
		for _, child := range n.Children {
			if err := verify(t, child.Hash, append(prefix, child.Nibble)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unexpected node type %T", common.ErrCorruption, node)
	}
}
