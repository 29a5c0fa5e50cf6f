// Package codec implements the fixed-width hexadecimal transcoding used for
// every cryptographic value exchanged by the block store: 256-bit integers,
// curve points and signature pairs.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// IntSize is the byte width of a fixed-size unsigned integer.
const IntSize = 32

// IntHexLen is the number of hex characters of one encoded integer.
const IntHexLen = IntSize * 2

// PointHexLen is the number of hex characters of an encoded point or pair.
const PointHexLen = IntHexLen * 2

// ErrMalformedInput is returned for every decode failure.
var ErrMalformedInput = errors.New("codec: malformed input")

// Int256 is a 256-bit unsigned integer stored big-endian.
type Int256 [IntSize]byte

// Point is an elliptic-curve point given by its affine coordinates.
type Point struct {
	X Int256
	Y Int256
}

// Pair is an ECDSA signature (r, s).
type Pair struct {
	R Int256
	S Int256
}

// EncodeBytes returns the uppercase hex form of b.
func EncodeBytes(b []byte) string { // A
	return strings.ToUpper(hex.EncodeToString(b))
}

// DecodeBytes decodes s, which must be exactly size bytes worth of hex.
func DecodeBytes(s string, size int) ([]byte, error) { // A
	if len(s) != size*2 {
		return nil, fmt.Errorf(
			"%w: expected %d hex characters, got %d",
			ErrMalformedInput, size*2, len(s),
		)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return b, nil
}

// Int256FromBig converts a non-negative integer below 2^256.
func Int256FromBig(v *big.Int) (Int256, error) { // A
	var out Int256
	if v == nil || v.Sign() < 0 || v.BitLen() > IntSize*8 {
		return out, fmt.Errorf("%w: integer out of range", ErrMalformedInput)
	}
	v.FillBytes(out[:])
	return out, nil
}

// Big returns i as a big.Int.
func (i Int256) Big() *big.Int { // A
	return new(big.Int).SetBytes(i[:])
}

// Hex returns the 64 character uppercase encoding of i.
func (i Int256) Hex() string { // A
	return EncodeBytes(i[:])
}

// String implements fmt.Stringer.
func (i Int256) String() string { // A
	return i.Hex()
}

// DecodeInt256 parses exactly 64 hex characters.
func DecodeInt256(s string) (Int256, error) { // A
	var out Int256
	b, err := DecodeBytes(s, IntSize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// Hex returns x followed by y, 128 characters.
func (p Point) Hex() string { // A
	return p.X.Hex() + p.Y.Hex()
}

// String implements fmt.Stringer.
func (p Point) String() string { // A
	return p.Hex()
}

// DecodePoint parses exactly 128 hex characters into a point. It does not
// check that the point lies on any curve.
func DecodePoint(s string) (Point, error) { // A
	x, y, err := decodeTwo(s)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y}, nil
}

// Hex returns r followed by s, 128 characters.
func (p Pair) Hex() string { // A
	return p.R.Hex() + p.S.Hex()
}

// String implements fmt.Stringer.
func (p Pair) String() string { // A
	return p.Hex()
}

// DecodePair parses exactly 128 hex characters into a signature pair.
func DecodePair(s string) (Pair, error) { // A
	r, sv, err := decodeTwo(s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{R: r, S: sv}, nil
}

func decodeTwo(s string) (Int256, Int256, error) { // A
	if len(s) != PointHexLen {
		return Int256{}, Int256{}, fmt.Errorf(
			"%w: expected %d hex characters, got %d",
			ErrMalformedInput, PointHexLen, len(s),
		)
	}
	a, err := DecodeInt256(s[:IntHexLen])
	if err != nil {
		return Int256{}, Int256{}, err
	}
	b, err := DecodeInt256(s[IntHexLen:])
	if err != nil {
		return Int256{}, Int256{}, err
	}
	return a, b, nil
}
