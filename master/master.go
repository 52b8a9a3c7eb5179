// Package master defines the contract of an append-only bitemporal document
// master: identities, documents, paging, search and change notification.
package master

import (
	"context"

	"github.com/unkn0wn-root/vermaster/vc"
)

// Master is an authoritative versioned document store.
// Implementations must be safe for concurrent use.
type Master[T any] interface {
	// Get returns the exact version/correction uid; ErrNotFound if absent.
	Get(ctx context.Context, uid UniqueID) (Document[T], error)
	// GetAt returns the single document of oid valid at v; ErrNotFound if none.
	GetAt(ctx context.Context, oid ObjectID, v vc.VersionCorrection) (Document[T], error)
	// GetMany returns the documents that exist; absent ids are omitted.
	GetMany(ctx context.Context, uids []UniqueID) (map[UniqueID]Document[T], error)

	// Add stores a new object; the master assigns identity and stamps.
	Add(ctx context.Context, doc Document[T]) (Document[T], error)
	// Update adds a new current version of doc.ObjectID().
	Update(ctx context.Context, doc Document[T]) (Document[T], error)
	// Correct replaces the version doc.UniqueID with a correction.
	Correct(ctx context.Context, doc Document[T]) (Document[T], error)
	// Remove ends the current version of oid.
	Remove(ctx context.Context, oid ObjectID) error

	// ReplaceVersion replaces the single version uid with replacements.
	ReplaceVersion(ctx context.Context, uid UniqueID, replacements []Document[T]) ([]UniqueID, error)
	// ReplaceAllVersions replaces the whole history of oid.
	ReplaceAllVersions(ctx context.Context, oid ObjectID, replacements []Document[T]) ([]UniqueID, error)
	// ReplaceVersions replaces the history of oid from the earliest
	// replacement's VersionFrom onwards.
	ReplaceVersions(ctx context.Context, oid ObjectID, replacements []Document[T]) ([]UniqueID, error)

	// Search returns one page of documents matching req and the unpaged total.
	Search(ctx context.Context, req SearchRequest, paging Paging) (SearchResult[T], error)

	ChangeManager() ChangeManager
}
