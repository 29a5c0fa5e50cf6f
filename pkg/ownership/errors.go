package ownership

import (
	"errors"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
)

var (
	// ErrMalformedInput marks undecodable hex input.
	ErrMalformedInput = codec.ErrMalformedInput
	// ErrPayloadTooLarge marks a block above the configured maximum.
	ErrPayloadTooLarge = errors.New("ownership: payload too large")
	// ErrForbidden is returned for every failed proof. The cause is
	// deliberately not part of the error.
	ErrForbidden = errors.New("ownership: forbidden")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("ownership: not found")
	// ErrStorageUnavailable wraps every failure of the record store.
	ErrStorageUnavailable = errors.New("ownership: storage unavailable")
)
