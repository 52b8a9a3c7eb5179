package master

import (
	"slices"
	"strings"

	"github.com/unkn0wn-root/vermaster/vc"
)

// SearchRequest holds search criteria. Paging is passed alongside it and is
// never part of the request, so two requests that differ only by page are equal.
type SearchRequest struct {
	Kind              string               `json:"kind,omitempty"`
	Name              string               `json:"name,omitempty"`
	ObjectIDs         []ObjectID           `json:"objectIds,omitempty"`
	Attributes        map[string]string    `json:"attributes,omitempty"`
	SortOrder         string               `json:"sortOrder,omitempty"`
	VersionCorrection vc.VersionCorrection `json:"versionCorrection"`
}

// Canonical returns a copy with the object id filter sorted and deduplicated,
// so that structurally equal requests encode identically.
func (r SearchRequest) Canonical() SearchRequest {
	out := r
	if len(r.ObjectIDs) > 0 {
		ids := slices.Clone(r.ObjectIDs)
		slices.SortFunc(ids, func(a, b ObjectID) int { return strings.Compare(a.String(), b.String()) })
		out.ObjectIDs = slices.Compact(ids)
	}
	if len(r.Attributes) == 0 {
		out.Attributes = nil
	}
	return out
}

// Restricts reports whether the request only ever matches the listed object
// ids, and if so whether oid is one of them.
func (r SearchRequest) Restricts(oid ObjectID) (restricted, includes bool) {
	if len(r.ObjectIDs) == 0 {
		return false, true
	}
	return true, slices.Contains(r.ObjectIDs, oid)
}

// SearchResult is one page of matches plus the unpaged total.
type SearchResult[T any] struct {
	Paging    Paging
	Total     int
	Documents []Document[T]
}
