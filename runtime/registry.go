package runtime

import (
	"moonshop/contract"
	"moonshop/domain/chat"
	"sync"
)

// Registry maps each user to the single connection that currently speaks for it.
// Safe for concurrent use; no call ever blocks on I/O while holding the lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[chat.UserID]contract.Connection
}

func NewRegistry() *Registry {
	return &Registry{connections: make(map[chat.UserID]contract.Connection)}
}

// Bind makes conn the live connection of userID, replacing any previous one.
func (r *Registry) Bind(userID chat.UserID, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[userID] = conn
}

// Unbind removes the binding only if conn is still the registered one,
// so a stale connection closing late cannot evict its replacement.
// It reports whether a binding was removed.
func (r *Registry) Unbind(userID chat.UserID, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.connections[userID]
	if !ok || current != conn {
		return false
	}
	delete(r.connections, userID)
	return true
}

func (r *Registry) Lookup(userID chat.UserID) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[userID]
	return conn, ok
}

// Len is the number of users currently online.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
