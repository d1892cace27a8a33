package core

import (
	"sync"
	"sync/atomic"
)

// ListenerKey identifies a Listener in the package registry.  Pairs
// hold a key rather than a pointer so an open connection never keeps a
// stopped Listener reachable.
type ListenerKey uint64

var (
	registryMu sync.RWMutex
	registry   = make(map[ListenerKey]*Listener)
	lastKey    atomic.Uint64
)

func register(l *Listener) ListenerKey {
	key := ListenerKey(lastKey.Add(1))
	registryMu.Lock()
	registry[key] = l
	registryMu.Unlock()
	return key
}

func unregister(key ListenerKey) {
	registryMu.Lock()
	delete(registry, key)
	registryMu.Unlock()
}

// lookupListener returns the live Listener for key.
func lookupListener(key ListenerKey) (*Listener, bool) {
	registryMu.RLock()
	l, ok := registry[key]
	registryMu.RUnlock()
	return l, ok
}
