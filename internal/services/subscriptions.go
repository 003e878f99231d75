// Package services: SubscriptionManager
//
// This file manages live session-list subscriptions. Each owner holds at
// most one live watch at a time: opening a new one closes the previous one,
// so a user hopping between devices or reconnecting after a network blip
// never accumulates orphaned streams on the server.
package services

import (
	"sync"

	"github.com/noorhq/go-history-backend/internal/repo"
)

// SubscriptionManager tracks the single live watch per owner.
type SubscriptionManager struct {
	mu      sync.Mutex
	watches map[string]*repo.SessionWatch
}

// NewSubscriptionManager constructs an empty manager.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{watches: make(map[string]*repo.SessionWatch)}
}

// Subscribe opens a watch for owner through r, replacing (and closing) any
// watch the owner already held.
func (m *SubscriptionManager) Subscribe(r *repo.SessionRepository, owner, language string, limit int) (*repo.SessionWatch, error) {
	w, err := r.Watch(owner, language, limit)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	prev := m.watches[owner]
	m.watches[owner] = w
	m.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	return w, nil
}

// Unsubscribe closes and forgets owner's watch. Calling it for an owner with
// no live watch is a no-op.
func (m *SubscriptionManager) Unsubscribe(owner string) {
	m.mu.Lock()
	w := m.watches[owner]
	delete(m.watches, owner)
	m.mu.Unlock()

	if w != nil {
		w.Close()
	}
}

// Active reports whether owner currently holds a live watch.
func (m *SubscriptionManager) Active(owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches[owner] != nil
}

// CloseAll tears down every live watch. Used on shutdown.
func (m *SubscriptionManager) CloseAll() {
	m.mu.Lock()
	watches := m.watches
	m.watches = make(map[string]*repo.SessionWatch)
	m.mu.Unlock()

	for _, w := range watches {
		w.Close()
	}
}
