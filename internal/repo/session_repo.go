// Package repo implements the session repository on top of the document
// store. This file provides the SessionRepository itself.
//
// Sessions are persisted as whole documents: the JSON payload carries the
// full session including its message sequence, and the store's indexed
// columns (owner, language, active, timestamps) are denormalized copies kept
// in sync on every write. Timestamps on the way out are always taken from
// the store's columns, not the payload, because the store stamps
// LastActivity with its own clock inside Put.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/store"
	"github.com/noorhq/go-history-backend/internal/topics"
)

// Collection is the document collection holding chat sessions.
const Collection = "chat_sessions"

// SessionRepository persists chat sessions through a DocumentStore. It
// enforces ownership on every id-addressed operation: the caller's owner id
// must match the stored document's owner or the call fails with
// ErrPermissionDenied.
type SessionRepository struct {
	store store.DocumentStore
}

// NewSessionRepository wraps st in a session repository.
func NewSessionRepository(st store.DocumentStore) *SessionRepository {
	return &SessionRepository{store: st}
}

// Create starts a new session for owner. When a first message is supplied,
// the title is derived from its content and topic tags are extracted from
// it; otherwise the session starts with the default title and no tags.
func (r *SessionRepository) Create(ctx context.Context, owner, language string, first *domain.ChatMessage) (*domain.ChatSession, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	s := &domain.ChatSession{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Title:    topics.DefaultTitle,
		Active:   true,
		Language: strings.TrimSpace(language),
	}
	if first != nil {
		m := *first
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = r.store.Now()
		}
		s.Title = topics.Title(m.Content)
		s.ApplyAppend(m)
		if m.IsUser {
			s.AddTags(topics.ExtractTags(m.Content))
		}
	}
	return r.save(ctx, s)
}

// Get loads a session by id, enforcing ownership.
func (r *SessionRepository) Get(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidArgument)
	}
	doc, err := r.store.Get(ctx, Collection, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s, err := decode(doc)
	if err != nil {
		return nil, err
	}
	if s.OwnerID != owner {
		return nil, ErrPermissionDenied
	}
	return s, nil
}

// AppendMessage adds m to the session and persists the result. Derived
// fields (count, cumulative and average processing time) are updated in
// O(1); user messages also contribute topic tags, and a session still
// carrying the default title takes its title from the first user message.
func (r *SessionRepository) AppendMessage(ctx context.Context, owner, id string, m domain.ChatMessage) (*domain.ChatSession, error) {
	if strings.TrimSpace(m.Content) == "" {
		return nil, fmt.Errorf("%w: message content is required", ErrInvalidArgument)
	}
	s, err := r.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.store.Now()
	}
	s.ApplyAppend(m)
	if m.IsUser {
		if s.Title == topics.DefaultTitle && s.MessageCount == 1 {
			s.Title = topics.Title(m.Content)
		}
		s.AddTags(topics.ExtractTags(m.Content))
	}
	return r.save(ctx, s)
}

// Rename replaces the session title. Titles are clipped to the same length
// cap applied to generated ones.
func (r *SessionRepository) Rename(ctx context.Context, owner, id, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	s, err := r.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.Title = topics.Clip(title, topics.TitleMaxChars)
	return r.save(ctx, s)
}

// End marks the session inactive and records when it ended. Ending an
// already-ended session is a no-op that still bumps LastActivity.
func (r *SessionRepository) End(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	s, err := r.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if s.Active {
		s.Active = false
		now := r.store.Now()
		s.EndedAt = &now
	}
	return r.save(ctx, s)
}

// Delete removes the session document. The embedded message sequence goes
// with it; there is nothing else to cascade.
func (r *SessionRepository) Delete(ctx context.Context, owner, id string) error {
	if _, err := r.Get(ctx, owner, id); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, Collection, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// Query runs a store-native query and decodes the results. Scope (owner,
// collection) and shape (limit, cursor) are the caller's responsibility;
// see filter.Filter.Compose.
func (r *SessionRepository) Query(ctx context.Context, q store.Query) ([]domain.ChatSession, error) {
	q.Collection = Collection
	docs, err := r.store.QueryDocs(ctx, q)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	out := make([]domain.ChatSession, 0, len(docs))
	for _, d := range docs {
		s, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// SessionWatch is a live view of an owner's newest sessions. Each delivery
// is a whole snapshot of summaries, newest first; intermediate snapshots are
// dropped when the consumer lags.
type SessionWatch struct {
	sub store.Subscription
	ch  chan []domain.Summary
}

// Summaries returns the snapshot channel. Closed when the watch is closed.
func (w *SessionWatch) Summaries() <-chan []domain.Summary { return w.ch }

// Close releases the underlying subscription. Safe to call more than once.
func (w *SessionWatch) Close() { w.sub.Close() }

// Watch opens a live snapshot stream of owner's sessions, optionally
// narrowed to one language, windowed to the limit newest by last activity.
func (r *SessionRepository) Watch(owner, language string, limit int) (*SessionWatch, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	sub, err := r.store.Subscribe(store.Query{
		Collection: Collection,
		Owner:      owner,
		Language:   strings.TrimSpace(language),
		Limit:      limit,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	w := &SessionWatch{sub: sub, ch: make(chan []domain.Summary, 1)}
	go w.pump()
	return w, nil
}

// pump decodes raw snapshots into summaries, preserving the store's
// latest-wins delivery: a pending undelivered snapshot is replaced, not
// queued behind, when a newer one arrives.
func (w *SessionWatch) pump() {
	defer close(w.ch)
	for docs := range w.sub.Snapshots() {
		summaries := make([]domain.Summary, 0, len(docs))
		for _, d := range docs {
			s, err := decode(d)
			if err != nil {
				continue
			}
			summaries = append(summaries, s.Summarize())
		}
		select {
		case <-w.ch:
		default:
		}
		w.ch <- summaries
	}
}

// save encodes the session, writes it, and re-stamps the in-memory copy with
// the store-assigned timestamps so the caller sees exactly what a reader
// will.
func (r *SessionRepository) save(ctx context.Context, s *domain.ChatSession) (*domain.ChatSession, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	stored, err := r.store.Put(ctx, store.Document{
		Collection:   Collection,
		ID:           s.ID,
		Owner:        s.OwnerID,
		Language:     s.Language,
		Active:       s.Active,
		StartedAt:    s.StartedAt,
		LastActivity: s.LastActivity,
		Data:         data,
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.StartedAt = stored.StartedAt
	s.LastActivity = stored.LastActivity
	return s, nil
}

// decode unmarshals a document payload and overlays the store's indexed
// timestamps, which are authoritative over whatever the payload froze at
// encode time.
func decode(doc store.Document) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := json.Unmarshal(doc.Data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", doc.ID, err)
	}
	s.StartedAt = doc.StartedAt
	s.LastActivity = doc.LastActivity
	return &s, nil
}

// mapStoreErr folds backend failures into the repository error taxonomy.
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrDocumentNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
