package master

import "github.com/unkn0wn-root/vermaster/vc"

// Document is an immutable snapshot of one version/correction of an object,
// with its bitemporal validity box and an opaque payload.
type Document[T any] struct {
	UniqueID UniqueID
	vc.Bounds
	Value T
}

func (d Document[T]) ObjectID() ObjectID { return d.UniqueID.ObjectID() }

// UniqueIDs extracts the identities of docs, preserving order.
func UniqueIDs[T any](docs []Document[T]) []UniqueID {
	out := make([]UniqueID, len(docs))
	for i, d := range docs {
		out[i] = d.UniqueID
	}
	return out
}
