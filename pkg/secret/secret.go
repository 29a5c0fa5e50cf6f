// Package secret mints the rotating capability tokens that prove continued
// ownership of a stored record.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
)

// Size is the secret length in bytes (256 bits).
const Size = 32

// Secret is a server-minted random token.
type Secret [Size]byte

// Hex returns the uppercase hex encoding of the secret.
func (s Secret) Hex() string { // A
	return codec.EncodeBytes(s[:])
}

// Bytes returns a copy of the secret bytes.
func (s Secret) Bytes() []byte { // A
	b := make([]byte, Size)
	copy(b, s[:])
	return b
}

// IsZero reports whether no secret has been set.
func (s Secret) IsZero() bool { // A
	return s == Secret{}
}

// Equal compares in constant time.
func (s Secret) Equal(other Secret) bool { // A
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// Parse decodes a 64 character hex secret.
func Parse(h string) (Secret, error) { // A
	var s Secret
	b, err := codec.DecodeBytes(h, Size)
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

// Manager generates secrets from a CSPRNG.
type Manager struct {
	rand io.Reader
}

// NewManager returns a Manager reading from crypto/rand.
func NewManager() *Manager { // A
	return &Manager{rand: rand.Reader}
}

// NewManagerWithReader returns a Manager reading from r. Only tests should
// pass anything other than crypto/rand.Reader.
func NewManagerWithReader(r io.Reader) *Manager { // A
	return &Manager{rand: r}
}

// Generate returns a fresh secret. An all-zero result is rejected since the
// zero value marks an unset secret.
func (m *Manager) Generate() (Secret, error) { // A
	var s Secret
	if _, err := io.ReadFull(m.rand, s[:]); err != nil {
		return Secret{}, fmt.Errorf("read random secret: %w", err)
	}
	if s.IsZero() {
		return Secret{}, fmt.Errorf("random source returned zero secret")
	}
	return s, nil
}
