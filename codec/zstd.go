package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder; both are safe for concurrent use and expensive to build.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Zstd wraps another codec and compresses its output. Useful in front of a
// remote shared tier where payload size dominates latency.
type Zstd[V any] struct {
	Inner Codec[V]
}

func (c Zstd[V]) Encode(v V) ([]byte, error) {
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func (c Zstd[V]) Decode(b []byte) (V, error) {
	raw, err := zstdDecoder.DecodeAll(b, nil)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("zstd: %w", err)
	}
	return c.Inner.Decode(raw)
}
