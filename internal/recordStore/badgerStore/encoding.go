package badgerStore

import (
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-blocks/pkg/codec"
	"github.com/i5heu/ouroboros-blocks/pkg/model"
	"github.com/i5heu/ouroboros-blocks/pkg/secret"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	recordPrefix = []byte("blk:")
	idPrefix     = []byte("bid:")
)

// Field numbers of the stored record message.
const (
	fieldID protowire.Number = iota + 1
	fieldOwner
	fieldGroup
	fieldKey
	fieldBlock
	fieldVersion
	fieldSignature
	fieldSecret
	fieldCompression
)

// ownerPrefix is the key prefix shared by every record of owner.
func ownerPrefix(owner codec.Point) []byte { // A
	out := make([]byte, 0, len(recordPrefix)+2*codec.IntSize)
	out = append(out, recordPrefix...)
	out = append(out, owner.X[:]...)
	return append(out, owner.Y[:]...)
}

// groupPrefix extends ownerPrefix with a length prefixed group, so groups
// containing arbitrary bytes cannot collide.
func groupPrefix(owner codec.Point, group string) []byte { // A
	out := ownerPrefix(owner)
	out = protowire.AppendVarint(out, uint64(len(group)))
	return append(out, group...)
}

func recordKey(owner codec.Point, group, key string) []byte { // A
	return append(groupPrefix(owner, group), key...)
}

func idKey(id string) []byte { // A
	return append(append([]byte(nil), idPrefix...), id...)
}

// splitRecordKey returns group and key from a full record key.
func splitRecordKey(k []byte) (string, string, error) { // A
	head := len(recordPrefix) + 2*codec.IntSize
	if len(k) < head {
		return "", "", errors.New("record key too short")
	}
	rest := k[head:]
	n, l := protowire.ConsumeVarint(rest)
	if l < 0 {
		return "", "", fmt.Errorf("group length: %w", protowire.ParseError(l))
	}
	rest = rest[l:]
	if uint64(len(rest)) < n {
		return "", "", errors.New("group overruns record key")
	}
	return string(rest[:n]), string(rest[n:]), nil
}

func (s *Store) encodeRecord(rec model.Record) ([]byte, error) { // A
	block, err := s.comp.compress(s.config.Compression, rec.Block)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendString(b, rec.ID)
	b = protowire.AppendTag(b, fieldOwner, protowire.BytesType)
	b = protowire.AppendBytes(b, ownerPrefix(rec.Owner)[len(recordPrefix):])
	b = protowire.AppendTag(b, fieldGroup, protowire.BytesType)
	b = protowire.AppendString(b, rec.Group)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, rec.Key)
	b = protowire.AppendTag(b, fieldBlock, protowire.BytesType)
	b = protowire.AppendBytes(b, block)
	b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
	b = protowire.AppendString(b, rec.Version)
	b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, append(rec.Signature.R[:], rec.Signature.S[:]...))
	b = protowire.AppendTag(b, fieldSecret, protowire.BytesType)
	b = protowire.AppendBytes(b, rec.Secret[:])
	b = protowire.AppendTag(b, fieldCompression, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.config.Compression))
	return b, nil
}

func (s *Store) decodeRecord(b []byte) (model.Record, error) { // A
	var (
		rec         model.Record
		block       []byte
		compression Compression
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return rec, fmt.Errorf("record tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.VarintType && num == fieldCompression {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return rec, fmt.Errorf("record compression: %w", protowire.ParseError(n))
			}
			compression = Compression(v)
			b = b[n:]
			continue
		}
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return rec, fmt.Errorf("record field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return rec, fmt.Errorf("record field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldID:
			rec.ID = string(v)
		case fieldOwner:
			if len(v) != 2*codec.IntSize {
				return rec, errors.New("record owner has wrong length")
			}
			copy(rec.Owner.X[:], v[:codec.IntSize])
			copy(rec.Owner.Y[:], v[codec.IntSize:])
		case fieldGroup:
			rec.Group = string(v)
		case fieldKey:
			rec.Key = string(v)
		case fieldBlock:
			block = append([]byte(nil), v...)
		case fieldVersion:
			rec.Version = string(v)
		case fieldSignature:
			if len(v) != 2*codec.IntSize {
				return rec, errors.New("record signature has wrong length")
			}
			copy(rec.Signature.R[:], v[:codec.IntSize])
			copy(rec.Signature.S[:], v[codec.IntSize:])
		case fieldSecret:
			if len(v) != secret.Size {
				return rec, errors.New("record secret has wrong length")
			}
			copy(rec.Secret[:], v)
		}
	}

	if !compression.valid() {
		return rec, fmt.Errorf("unknown compression %d", compression)
	}
	plain, err := s.comp.decompress(compression, block)
	if err != nil {
		return rec, err
	}
	if plain == nil {
		plain = []byte{}
	}
	rec.Block = plain
	return rec, nil
}
