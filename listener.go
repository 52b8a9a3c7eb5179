package vermaster

import (
	"context"

	"github.com/unkn0wn-root/vermaster/master"
)

// entityChanged invalidates cached state for ev and then relays ev to the
// caching master's own subscribers, so they never observe stale entries.
func (m *CachingMaster[T]) entityChanged(ev master.ChangeEvent) {
	if err := m.docs.evictRange(context.Background(), ev.ObjectID, ev.VersionFrom, ev.VersionTo); err != nil {
		m.log.Warn("change: shared tier invalidation failed", Fields{"oid": ev.ObjectID.String(), "err": err})
	}
	m.invalidateSearches(ev.ObjectID)
	m.log.Debug("change relayed", Fields{
		"type": ev.Type.String(), "oid": ev.ObjectID.String(),
		"from": ev.VersionFrom, "to": ev.VersionTo,
	})
	m.changes.EntityChanged(ev)
}

func (m *CachingMaster[T]) invalidateSearches(oid master.ObjectID) {
	if m.searchInvalidation == SearchInvalidateScoped {
		m.searches.clearScoped(oid)
		return
	}
	m.searches.clear("all")
}
