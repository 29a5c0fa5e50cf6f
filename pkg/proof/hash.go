// Package proof builds the canonical messages that owners sign and verifies
// ownership proofs over secp256k1.
package proof

import (
	"crypto/sha256"

	"github.com/i5heu/ouroboros-blocks/pkg/secret"
)

// Hash is a SHA-256 digest.
type Hash [sha256.Size]byte

// Digest hashes the ordered concatenation of parts. No separators or length
// prefixes are inserted, so the part order is part of the contract.
func Digest(parts ...[]byte) Hash { // A
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// ContentMessage is the digest a content signature is computed over.
func ContentMessage( // A
	group, key string,
	block []byte,
	version string,
) Hash {
	return Digest([]byte(group), []byte(key), block, []byte(version))
}

// SecretMessage is the message a secret signature is computed over: the raw
// secret bytes, without further hashing.
func SecretMessage(s secret.Secret) []byte { // A
	return s.Bytes()
}
