// Package codec turns document values into bytes for the shared tier and for
// deep-copy cloning.
package codec

// Codec encodes/decodes values V to []byte. Implementations must be safe for
// concurrent use; the cache shares one instance across goroutines.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
