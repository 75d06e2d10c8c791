// Package hash provides the content-addressing primitives shared by the
// store, relayer and validation engine: every block, solution set, solution,
// contract and predicate is identified by the hash of its own content rather
// than by a sequentially assigned id.
package hash

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address is a content address: the hash of the canonical encoding of some
// value. Equality is byte-exact.
type Address [32]byte

// Zero is the sentinel address used to reference the genesis block's
// non-existent parent.
var Zero Address

// IsZero reports whether a is the sentinel address.
func (a Address) IsZero() bool {
	return a == Zero
}

// String renders the address as a 0x-prefixed hex string.
func (a Address) String() string {
	return hexutil.Encode(a[:])
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, len(a))
	copy(b, a[:])
	return b
}

// ParseAddress decodes a 0x-prefixed hex string produced by String.
func ParseAddress(s string) (Address, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, err
	}
	return FromBytes(b)
}

// FromBytes builds an Address from a 32-byte slice.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != len(a) {
		return Address{}, errors.New("hash: address must be exactly 32 bytes")
	}
	copy(a[:], b)
	return a, nil
}

// Of returns the content address of value, computed by hashing its canonical
// JSON encoding with Keccak256. Canonical here means: whatever encoding/json
// produces for the given Go value — callers are responsible for using types
// whose field order and representation is stable (struct field order is
// fixed by the type definition, so this holds for all store/relayer types).
func Of(value any) (Address, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Address{}, err
	}
	return FromBytes(crypto.Keccak256(data))
}

// OfBytes hashes a raw byte blob directly, without a JSON marshal step. Used
// for hashing already-canonical blobs such as a predicate's bytecode.
func OfBytes(b []byte) Address {
	sum := crypto.Keccak256(b)
	var a Address
	copy(a[:], sum)
	return a
}
