package master

import (
	"sync"
	"time"
)

type ChangeType uint8

const (
	Added ChangeType = iota + 1
	Updated
	Corrected
	Removed
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "ADDED"
	case Updated:
		return "UPDATED"
	case Corrected:
		return "CORRECTED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// ChangeEvent describes a change to one object. VersionFrom/VersionTo bound
// the affected version range (zero = unbounded); VersionInstant is when the
// change was recorded.
type ChangeEvent struct {
	Type           ChangeType
	ObjectID       ObjectID
	VersionFrom    time.Time
	VersionTo      time.Time
	VersionInstant time.Time
}

type ChangeListener func(ChangeEvent)

// ChangeManager fans change events out to subscribers.
type ChangeManager interface {
	// Subscribe registers l. The returned func removes it; calling it more
	// than once is a no-op.
	Subscribe(l ChangeListener) (unsubscribe func())
	// EntityChanged delivers ev to every current subscriber.
	EntityChanged(ev ChangeEvent)
}

// BasicChangeManager delivers events synchronously on the caller's goroutine,
// in no particular listener order.
type BasicChangeManager struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]ChangeListener
}

var _ ChangeManager = (*BasicChangeManager)(nil)

func NewBasicChangeManager() *BasicChangeManager {
	return &BasicChangeManager{listeners: make(map[uint64]ChangeListener)}
}

func (m *BasicChangeManager) Subscribe(l ChangeListener) func() {
	m.mu.Lock()
	m.next++
	id := m.next
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *BasicChangeManager) EntityChanged(ev ChangeEvent) {
	m.mu.RLock()
	ls := make([]ChangeListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		ls = append(ls, l)
	}
	m.mu.RUnlock()

	for _, l := range ls {
		l(ev)
	}
}

// Len returns the number of subscribers.
func (m *BasicChangeManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}
