package store

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/s2"
)

// compression envelope flags, first byte of every stored value.
const (
	flagRaw byte = 0
	flagS2  byte = 1
)

// CompressingStore wraps a Store and transparently s2-compresses values
// above a size floor. Index records and metadata are small JSON blobs, so
// the floor keeps them untouched while large cache payloads shrink.
type CompressingStore struct {
	Store
	minSize int
}

// WithCompression wraps a store with transparent value compression.
// Values smaller than minSize bytes are stored uncompressed; a minSize of 0
// uses a 512-byte default.
func WithCompression(s Store, minSize int) *CompressingStore {
	if minSize <= 0 {
		minSize = 512
	}
	return &CompressingStore{Store: s, minSize: minSize}
}

func (c *CompressingStore) encode(value []byte) []byte {
	if len(value) < c.minSize {
		return append([]byte{flagRaw}, value...)
	}
	encoded := s2.Encode(nil, value)
	if len(encoded)+1 >= len(value)+1 {
		// Incompressible payload, keep it raw.
		return append([]byte{flagRaw}, value...)
	}
	return append([]byte{flagS2}, encoded...)
}

func (c *CompressingStore) decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty compressed envelope")
	}
	switch data[0] {
	case flagRaw:
		return data[1:], nil
	case flagS2:
		decoded, err := s2.Decode(nil, data[1:])
		if err != nil {
			return nil, fmt.Errorf("s2 decode failed: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("unknown compression flag %d", data[0])
	}
}

// Get retrieves and decompresses a value.
func (c *CompressingStore) Get(ctx context.Context, key Key) ([]byte, bool) {
	data, ok := c.Store.Get(ctx, key)
	if !ok {
		return nil, false
	}
	value, err := c.decode(data)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set compresses and stores a value.
func (c *CompressingStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	return c.Store.Set(ctx, key, c.encode(value), ttl)
}

// CompareAndSwap operates on the logical (uncompressed) values. The
// comparison happens against the encoded form, so the wrapped provider's
// atomicity is preserved.
func (c *CompressingStore) CompareAndSwap(ctx context.Context, key Key, expected, value []byte, ttl time.Duration) (bool, error) {
	var encodedExpected []byte
	if expected != nil {
		current, ok := c.Store.Get(ctx, key)
		if !ok {
			return false, nil
		}
		decoded, err := c.decode(current)
		if err != nil {
			return false, err
		}
		if string(decoded) != string(expected) {
			return false, nil
		}
		encodedExpected = current
	}
	return c.Store.CompareAndSwap(ctx, key, encodedExpected, c.encode(value), ttl)
}
