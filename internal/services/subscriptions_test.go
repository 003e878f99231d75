package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/repo"
	"github.com/noorhq/go-history-backend/internal/store"
)

func newWatchRepo(t *testing.T) *repo.SessionRepository {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "subs_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return repo.NewSessionRepository(st)
}

func TestSubscribe_ReplacesPriorWatch(t *testing.T) {
	r := newWatchRepo(t)
	m := NewSubscriptionManager()

	first, err := m.Subscribe(r, "user-1", "", 20)
	if err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	second, err := m.Subscribe(r, "user-1", "", 20)
	if err != nil {
		t.Fatalf("second subscribe: %v", err)
	}
	defer second.Close()

	// The first handle's channel must be closed by the replacement.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-first.Summaries():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("replaced watch never closed")
		}
	}
}

func TestSubscribe_IndependentOwners(t *testing.T) {
	r := newWatchRepo(t)
	m := NewSubscriptionManager()

	if _, err := m.Subscribe(r, "user-1", "", 20); err != nil {
		t.Fatalf("subscribe u1: %v", err)
	}
	if _, err := m.Subscribe(r, "user-2", "", 20); err != nil {
		t.Fatalf("subscribe u2: %v", err)
	}
	if !m.Active("user-1") || !m.Active("user-2") {
		t.Fatalf("both owners should hold live watches")
	}

	m.Unsubscribe("user-1")
	if m.Active("user-1") {
		t.Fatalf("user-1 watch still active after unsubscribe")
	}
	if !m.Active("user-2") {
		t.Fatalf("user-2 watch must not be affected")
	}
	m.CloseAll()
}

func TestUnsubscribe_UnknownOwnerIsNoop(t *testing.T) {
	m := NewSubscriptionManager()
	m.Unsubscribe("nobody") // must not panic
}

func TestWatch_SeesWritesThroughService(t *testing.T) {
	r := newWatchRepo(t)
	m := NewSubscriptionManager()

	w, err := m.Subscribe(r, "user-1", "", 20)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer m.CloseAll()

	if _, err := r.Create(context.Background(), "user-1", "", &domain.ChatMessage{Content: "qibla direction", IsUser: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-w.Summaries():
			if !ok {
				t.Fatalf("watch closed unexpectedly")
			}
			if len(snap) == 1 && snap[0].Title == "qibla direction" {
				return
			}
		case <-deadline:
			t.Fatalf("write never reached the watch")
		}
	}
}
