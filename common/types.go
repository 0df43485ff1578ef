package common

import "encoding/hex"

// HashLength is the size of a Hash in bytes.
const HashLength = 32

// Hash is the fixed-width digest identifying the content of a single tree
// node. The digest of the root node commits to the state of the entire
// store. The zero value is reserved as the sentinel of the empty tree and
// never collides with the digest of an actual node.
type Hash [HashLength]byte

// HashFromBytes creates a Hash from the given slice. The input must be
// exactly HashLength bytes long.
func HashFromBytes(data []byte) (Hash, bool) {
	var h Hash
	if len(data) != HashLength {
		return h, false
	}
	copy(h[:], data)
	return h, true
}

// ToBytes provides the hash as a freshly allocated byte slice.
func (h Hash) ToBytes() []byte {
	res := make([]byte, HashLength)
	copy(res, h[:])
	return res
}

// Empty reports whether the hash is the zero value, used as the sentinel
// of the empty tree.
func (h Hash) Empty() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}
