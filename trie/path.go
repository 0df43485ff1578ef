package trie

import (
	"fmt"

	"github.com/authkv/authkv/common"
)

// Nibble is a 4-bit branch discriminator. Each branch node routes a key
// path by one nibble per tree level.
type Nibble byte

func (n Nibble) String() string {
	if n > 15 {
		return "?"
	}
	return fmt.Sprintf("%X", byte(n))
}

// MaxDepth is the number of nibbles in a key path and thus the maximum
// depth of the tree.
const MaxDepth = 2 * common.HashLength

// Path is the navigation path of a logical key: the nibble sequence of the
// Keccak-256 hash of the key, high nibble first. Hashing the key upfront
// gives uniformly distributed paths of a fixed length, independent of the
// key distribution chosen by callers.
type Path struct {
	hash common.Hash
}

// NewPath computes the navigation path of the given logical key.
func NewPath(key []byte) Path {
	return Path{hash: common.Keccak256(key)}
}

// Get provides the branch discriminator at the given depth in [0,MaxDepth).
func (p Path) Get(depth int) Nibble {
	b := p.hash[depth/2]
	if depth%2 == 0 {
		return Nibble(b >> 4)
	}
	return Nibble(b & 0x0F)
}
