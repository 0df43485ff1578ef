package common

import (
	"sync"

	"golang.org/x/crypto/sha3"
)

// keccakState is the subset of the sha3 state required for hashing. The
// Read method retrieves the hash without the final-copy overhead of Sum.
type keccakState interface {
	Reset()
	Write(in []byte) (int, error)
	Read(out []byte) (int, error)
}

var hasherPool = sync.Pool{New: func() any { return sha3.NewLegacyKeccak256() }}

// Keccak256 computes the Keccak-256 digest of the given data. It is the
// only hash function used for node identities and root commitments.
func Keccak256(data []byte) Hash {
	hasher := hasherPool.Get().(keccakState)
	hasher.Reset()
	hasher.Write(data)
	var res Hash
	hasher.Read(res[:])
	hasherPool.Put(hasher)
	return res
}
