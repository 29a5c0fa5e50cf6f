package badgerStore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression selects how blocks are compressed at rest. The choice is
// stored per record, so changing it only affects new writes.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionXz
)

// ParseCompression maps a config value to a Compression.
func ParseCompression(name string) (Compression, error) { // A
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "xz":
		return CompressionXz, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func (c Compression) valid() bool { // A
	return c <= CompressionXz
}

func (c Compression) String() string { // A
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionXz:
		return "xz"
	default:
		return "unknown"
	}
}

type compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCompressor() (*compressor, error) { // A
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &compressor{enc: enc, dec: dec}, nil
}

func (c *compressor) compress(kind Compression, data []byte) ([]byte, error) { // A
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return c.enc.EncodeAll(data, nil), nil
	case CompressionXz:
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, fmt.Errorf("create xz writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("xz write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("xz close: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", kind)
	}
}

func (c *compressor) decompress(kind Compression, data []byte) ([]byte, error) { // A
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		out, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	case CompressionXz:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create xz reader: %w", err)
		}
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("xz read: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %d", kind)
	}
}

func (c *compressor) close() { // A
	c.enc.Close()
	c.dec.Close()
}
