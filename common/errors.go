package common

// ConstError is an error type that can be used to define immutable error
// constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// ErrNotFound is reported when a requested logical key is not present
	// in the store. It is an ordinary result, not a failure.
	ErrNotFound = ConstError("key not found")

	// ErrNodeNotFound is reported when a node referenced by a live digest
	// is missing from the underlying storage. Unlike ErrNotFound this
	// indicates corruption of the persisted tree, not an absent key.
	ErrNodeNotFound = ConstError("referenced node not found")

	// ErrCorruption is reported when persisted node data fails to decode
	// or does not hash to the digest it was stored under.
	ErrCorruption = ConstError("data corruption detected")

	// ErrDigestCollision is reported when two distinct contents resolve to
	// the same digest. It is a fatal integrity violation and is never
	// retried.
	ErrDigestCollision = ConstError("digest collision detected")
)
