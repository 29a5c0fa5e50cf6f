package proof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Signer holds an owner's private key and produces the proofs the store
// expects. The server never needs it; clients and tests do.
type Signer struct {
	key *btcec.PrivateKey
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) { // A
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// SignerFromHex loads a signer from a 64 character hex private key.
func SignerFromHex(h string) (*Signer, error) { // A
	b, err := codec.DecodeBytes(h, codec.IntSize)
	if err != nil {
		return nil, err
	}
	var scalar btcec.ModNScalar
	if scalar.SetByteSlice(b) || scalar.IsZero() {
		return nil, errors.New("private key out of range")
	}
	key, _ := btcec.PrivKeyFromBytes(b)
	return &Signer{key: key}, nil
}

// PrivateKeyHex returns the private key in the same form SignerFromHex reads.
func (s *Signer) PrivateKeyHex() string { // A
	return codec.EncodeBytes(s.key.Serialize())
}

// PublicKey returns the owner point for this signer.
func (s *Signer) PublicKey() codec.Point { // A
	return PointFromPublicKey(s.key.PubKey())
}

// Sign signs a 32 byte message with RFC 6979 deterministic nonces.
func (s *Signer) Sign(message []byte) (codec.Pair, error) { // A
	sig := ecdsa.Sign(s.key, message)
	return pairFromDER(sig.Serialize())
}

// SignContent produces the content signature for a write.
func (s *Signer) SignContent( // A
	group, key string,
	block []byte,
	version string,
) (codec.Pair, error) {
	msg := ContentMessage(group, key, block, version)
	return s.Sign(msg[:])
}

// SignSecret produces the secret signature proving possession of sec.
func (s *Signer) SignSecret(sec secret.Secret) (codec.Pair, error) { // A
	return s.Sign(SecretMessage(sec))
}

func pairFromDER(der []byte) (codec.Pair, error) { // A
	var (
		inner cryptobyte.String
		r     = new(big.Int)
		sv    = new(big.Int)
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(sv) ||
		!inner.Empty() {
		return codec.Pair{}, errors.New("invalid DER signature")
	}

	rInt, err := codec.Int256FromBig(r)
	if err != nil {
		return codec.Pair{}, fmt.Errorf("signature r: %w", err)
	}
	sInt, err := codec.Int256FromBig(sv)
	if err != nil {
		return codec.Pair{}, fmt.Errorf("signature s: %w", err)
	}
	return codec.Pair{R: rInt, S: sInt}, nil
}
