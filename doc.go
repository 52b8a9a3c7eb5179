// Package vermaster is a caching decorator for bitemporal document masters.
// A CachingMaster sits in front of an authoritative master.Master[T] and
// serves point lookups and paged searches from memory, writing mutations
// through and invalidating cached state on every change the backing master
// reports.
//
// Components:
//   - document cache: exact unique ids (single-flight, faults replayed until
//     the object is invalidated) and bitemporal lookups by object id.
//   - search cache: per-request sparse runs of result identities; missing
//     windows are filled one backing call per gap and merged.
//   - prefetcher: a small bounded pool that warms a wider window around
//     each requested page. Never blocks callers.
//   - change relay: evicts affected entries and re-publishes the event
//     through the caching master's own change manager.
//   - optional shared tier: a provider.Provider holding encoded documents
//     guarded by per-object generations (genstore), so replicas never serve
//     a version that was invalidated elsewhere.
//
// Keys:
//
//	search:<ns>:<digest>  - in-process search entries (digest over the canonical request)
//	doc:<ns>:<uid>        - shared-tier documents
//	obj:<ns>:<oid>        - object generations
//
// Latest:
//
//	A lookup at VersionCorrection Latest is fixed to Options.Clock before
//	cached entries are matched, so a version closed by a later update is
//	never returned as current once the caller's clock has moved past it.
package vermaster
