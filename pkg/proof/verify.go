package proof

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/i5heu/ouroboros-blocks/pkg/codec"
)

// Verifier checks secp256k1 ECDSA signatures. It holds no state.
type Verifier struct{}

// NewVerifier returns a secp256k1 verifier.
func NewVerifier() *Verifier { // A
	return &Verifier{}
}

// Verify reports whether sig is a valid signature of message by owner.
// Off-curve keys and r or s outside [1, n-1] are rejected.
func (v *Verifier) Verify( // A
	owner codec.Point,
	message []byte,
	sig codec.Pair,
) bool {
	pub, err := PublicKey(owner)
	if err != nil {
		return false
	}

	var r, s btcec.ModNScalar
	if r.SetByteSlice(sig.R[:]) || r.IsZero() {
		return false
	}
	if s.SetByteSlice(sig.S[:]) || s.IsZero() {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(message, pub)
}

// PublicKey converts a point into a secp256k1 public key, failing when the
// point is not on the curve.
func PublicKey(p codec.Point) (*btcec.PublicKey, error) { // A
	raw := make([]byte, 1+2*codec.IntSize)
	raw[0] = 0x04
	copy(raw[1:1+codec.IntSize], p.X[:])
	copy(raw[1+codec.IntSize:], p.Y[:])

	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return pub, nil
}

// PointFromPublicKey returns the affine coordinates of pub.
func PointFromPublicKey(pub *btcec.PublicKey) codec.Point { // A
	raw := pub.SerializeUncompressed()
	var p codec.Point
	copy(p.X[:], raw[1:1+codec.IntSize])
	copy(p.Y[:], raw[1+codec.IntSize:])
	return p
}
