// Package hash holds Git object identifiers and the hashing rules that produce them.
package hash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
)

// Hash is a raw Git object id. SHA-1 ids are 20 bytes, SHA-256 ids are 32.
type Hash []byte

// Zero is the empty hash, used where no object is referenced.
var Zero Hash

// FromHex parses a hex object id. The empty string yields Zero.
func FromHex(hs string) (Hash, error) {
	if len(hs) == 0 {
		return Zero, nil
	}

	b, err := hex.DecodeString(hs)
	if err != nil {
		return Zero, fmt.Errorf("decode object id %q: %w", hs, err)
	}

	if len(b) != 20 && len(b) != 32 {
		return Zero, fmt.Errorf("invalid hash length: got %d, want 40 or 64", len(hs))
	}

	return Hash(b), nil
}

// MustFromHex is FromHex for constants and tests. It panics on malformed input.
func MustFromHex(hs string) Hash {
	h, err := FromHex(hs)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h)
}

// Is reports whether both hashes identify the same object.
func (h Hash) Is(other Hash) bool {
	return slices.Equal(h, other)
}

// IsZero reports whether h references no object.
func (h Hash) IsZero() bool {
	return len(h) == 0
}

// MarshalText encodes the hash as lowercase hex so it can travel in JSON bodies.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes and validates a hex object id.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

type Hasher struct {
	hash.Hash
}
