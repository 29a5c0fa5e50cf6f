package model

import (
	"errors"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
)

var (
	// ErrRecordNotFound is returned by stores when no record matches.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned by Insert when (owner, group, key) is taken.
	ErrRecordExists = errors.New("record already exists")
	// ErrSecretMismatch is returned by Update and Delete when the stored
	// secret no longer matches the one the caller checked.
	ErrSecretMismatch = errors.New("record secret changed")
)

// Record is one stored data block together with its ownership proof state.
type Record struct {
	// ID is assigned by the protocol on insert and used for update/delete.
	ID        string
	Owner     codec.Point
	Group     string
	Key       string
	Block     []byte
	Version   string
	Signature codec.Pair
	Secret    secret.Secret
}

// WithoutSecret returns a copy of r safe to hand to readers.
func (r Record) WithoutSecret() Record { // A
	r.Secret = secret.Secret{}
	return r
}
