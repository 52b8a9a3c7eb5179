package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes document values with vmihailenco/msgpack/v5. The zero
// value is ready to use. SortMapKeys makes map-valued fields encode in a
// stable order, which keeps Clone round trips and shared-tier payloads
// byte-comparable.
//
// Field names follow `msgpack:"..."` tags, not `json` tags.
type Msgpack[V any] struct {
	SortMapKeys bool
}

var _ Codec[struct{}] = Msgpack[struct{}]{}

func (c Msgpack[V]) Encode(v V) ([]byte, error) {
	if !c.SortMapKeys {
		return msgpack.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
