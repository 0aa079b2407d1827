package engine

import (
	"sync"
	"time"
)

// HostMemory remembers which engine last succeeded against each marketplace
// host, so the fetch layer can skip the escalation ladder on the next
// request. Entries expire after the configured TTL.
type HostMemory struct {
	mu    sync.Mutex
	store map[string]hostEntry
	ttl   time.Duration
}

type hostEntry struct {
	engineName string
	expiresAt  time.Time
}

// NewHostMemory creates a HostMemory with the given TTL.
func NewHostMemory(ttl time.Duration) *HostMemory {
	return &HostMemory{
		store: make(map[string]hostEntry),
		ttl:   ttl,
	}
}

// Get returns the remembered engine for a host, or "" if none or expired.
func (m *HostMemory) Get(host string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[host]
	if !ok {
		return ""
	}
	if time.Now().After(e.expiresAt) {
		delete(m.store, host)
		return ""
	}
	return e.engineName
}

// Set records which engine succeeded for a host. Expired entries for other
// hosts are pruned opportunistically so the map never grows unbounded.
func (m *HostMemory) Set(host, engineName string) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, e := range m.store {
		if now.After(e.expiresAt) {
			delete(m.store, h)
		}
	}
	m.store[host] = hostEntry{engineName: engineName, expiresAt: now.Add(m.ttl)}
}

// Forget removes the memory for a host, e.g. after the remembered engine
// starts failing.
func (m *HostMemory) Forget(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, host)
}
