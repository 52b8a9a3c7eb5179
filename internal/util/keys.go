package util

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"
)

// Digest returns a deterministic 128-bit hex digest of v's JSON encoding.
// Map keys are emitted sorted, so structurally equal values digest equally.
func Digest(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	h := xxh3.Hash128(b)
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo), nil
}

// SearchKey namespaces the digest of a canonical search request.
func SearchKey(ns string, canonical any) (string, error) {
	d, err := Digest(canonical)
	if err != nil {
		return "", fmt.Errorf("search key: %w", err)
	}
	return "search:" + ns + ":" + d, nil
}

// DocKey is the shared-tier key of one exact document version.
func DocKey(ns, uid string) string { return "doc:" + ns + ":" + uid }

// GenKey is the generation-store key of an object.
func GenKey(ns, oid string) string { return "obj:" + ns + ":" + oid }
