// SQLite-backed implementation of the DocumentStore contract.
//
// Documents are rows holding the JSON payload as a blob plus denormalized
// scalar columns (owner, language, active, timestamps) that carry the
// indexes needed for equality/range/order/cursor queries. Change
// notification is an in-process hub: every successful write re-evaluates
// the registered queries and pushes whole snapshots, latest-wins.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/opentelemetry/tracing"
)

// documentRow is the GORM mapping for a stored document. Timestamps are
// store-native Unix milliseconds (see timestamp.go).
type documentRow struct {
	Collection   string `gorm:"type:TEXT NOT NULL;primaryKey;index:idx_docs_scan,priority:1"`
	ID           string `gorm:"type:TEXT NOT NULL;primaryKey"`
	Owner        string `gorm:"type:TEXT NOT NULL;index:idx_docs_scan,priority:2"`
	Language     string `gorm:"type:TEXT NOT NULL"`
	Active       bool   `gorm:"type:BOOLEAN NOT NULL"`
	StartedAt    int64  `gorm:"type:INTEGER NOT NULL"`
	LastActivity int64  `gorm:"type:INTEGER NOT NULL;index:idx_docs_scan,priority:3"`
	Data         []byte `gorm:"type:BLOB"`
}

// TableName implements the GORM tabler interface.
func (documentRow) TableName() string { return "documents" }

// SQLite implements DocumentStore on a local SQLite database (pure Go
// driver). It is safe for concurrent use; the change hub is guarded by its
// own mutex and snapshot delivery happens on separate goroutines.
type SQLite struct {
	db  *gorm.DB
	hub hub
}

// Open opens (or creates) the database at path, applies PRAGMAs, tunes the
// pool, installs query tracing, and migrates the documents schema.
func Open(path string) (*SQLite, error) {
	// Fail early if parent directory does not exist (instead of sqlite
	// "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	// Span per query; no-op until a tracer provider is installed.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, err
	}

	s := &SQLite{db: db}
	s.hub.subs = make(map[int]*sqliteSubscription)
	return s, nil
}

// DB exposes the underlying GORM handle for auxiliary tables (idempotency)
// that live in the same database file.
func (s *SQLite) DB() *gorm.DB { return s.db }

// Close closes the underlying database. Open subscriptions are closed first
// so no delivery goroutine touches a closed handle.
func (s *SQLite) Close() error {
	s.hub.closeAll()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Now reports the store clock. All LastActivity stamps come from here.
func (s *SQLite) Now() time.Time { return time.Now().UTC() }

// Put creates or replaces a document, stamping LastActivity (and StartedAt
// on first write) from the store clock. Subscribers on the document's
// collection are notified after the write commits.
func (s *SQLite) Put(ctx context.Context, doc Document) (Document, error) {
	now := s.Now()
	doc.LastActivity = now
	if doc.StartedAt.IsZero() {
		doc.StartedAt = now
	}

	row := documentRow{
		Collection:   doc.Collection,
		ID:           doc.ID,
		Owner:        doc.Owner,
		Language:     doc.Language,
		Active:       doc.Active,
		StartedAt:    UnixMillis(doc.StartedAt),
		LastActivity: UnixMillis(doc.LastActivity),
		Data:         doc.Data,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return Document{}, err
	}

	s.notify(doc.Collection)
	return doc, nil
}

// Get fetches a single document or ErrDocumentNotFound.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	var row documentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return rowToDocument(row), nil
}

// Delete removes a document, or returns ErrDocumentNotFound when no row
// matched. Subscribers are notified on success.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&documentRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDocumentNotFound
	}
	s.notify(collection)
	return nil
}

// QueryDocs runs a store-native query: equality on owner/language, optional
// range on last activity, ordered by (last_activity DESC, id DESC), resumed
// strictly after the cursor position when one is supplied.
func (s *SQLite) QueryDocs(ctx context.Context, q Query) ([]Document, error) {
	tx := s.db.WithContext(ctx).
		Model(&documentRow{}).
		Where("collection = ? AND owner = ?", q.Collection, q.Owner)

	if q.Language != "" {
		tx = tx.Where("language = ?", q.Language)
	}
	if q.From != nil {
		tx = tx.Where("last_activity >= ?", UnixMillis(*q.From))
	}
	if q.To != nil {
		tx = tx.Where("last_activity < ?", UnixMillis(*q.To))
	}
	if q.After != nil {
		ts := UnixMillis(q.After.LastActivity)
		tx = tx.Where("(last_activity < ? OR (last_activity = ? AND id < ?))", ts, ts, q.After.ID)
	}

	tx = tx.Order("last_activity DESC, id DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToDocument(r))
	}
	return out, nil
}

// Subscribe registers a change-notification stream for q. The initial
// snapshot is computed and delivered asynchronously; afterwards every write
// to the collection re-evaluates the query. Delivery is latest-wins on a
// single-slot channel.
func (s *SQLite) Subscribe(q Query) (Subscription, error) {
	sub := &sqliteSubscription{
		hub:   &s.hub,
		query: q,
		ch:    make(chan []Document, 1),
	}
	s.hub.add(sub)
	go s.deliver(sub)
	return sub, nil
}

// deliver recomputes the subscription's snapshot and pushes it. Query
// failures are logged and the previous snapshot stands; the stream itself
// stays open (best-effort delivery, per the no-exactly-once contract).
func (s *SQLite) deliver(sub *sqliteSubscription) {
	docs, err := s.QueryDocs(context.Background(), sub.query)
	if err != nil {
		log.Error().Err(err).Str("collection", sub.query.Collection).
			Str("owner", sub.query.Owner).Msg("snapshot query failed")
		return
	}
	sub.push(docs)
}

// notify fans a write out to every subscription on the collection.
func (s *SQLite) notify(collection string) {
	for _, sub := range s.hub.matching(collection) {
		go s.deliver(sub)
	}
}

func rowToDocument(r documentRow) Document {
	return Document{
		Collection:   r.Collection,
		ID:           r.ID,
		Owner:        r.Owner,
		Language:     r.Language,
		Active:       r.Active,
		StartedAt:    FromMillis(r.StartedAt),
		LastActivity: FromMillis(r.LastActivity),
		Data:         r.Data,
	}
}

// hub is the in-process subscriber registry. The map is guarded by mu; the
// same discipline covers add/remove racing with notification fan-out.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*sqliteSubscription
}

func (h *hub) add(sub *sqliteSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
}

func (h *hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *hub) matching(collection string) []*sqliteSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*sqliteSubscription, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.query.Collection == collection {
			out = append(out, sub)
		}
	}
	return out
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*sqliteSubscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// sqliteSubscription is one live stream. push never blocks: with the slot
// full, the stale snapshot is drained and replaced by the newest one.
type sqliteSubscription struct {
	hub   *hub
	id    int
	query Query
	ch    chan []Document

	mu     sync.Mutex
	closed bool
}

// Snapshots implements Subscription.
func (s *sqliteSubscription) Snapshots() <-chan []Document { return s.ch }

// Close implements Subscription. Safe to call repeatedly and concurrently
// with in-flight deliveries.
func (s *sqliteSubscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.hub.remove(s.id)
	close(s.ch)
}

func (s *sqliteSubscription) push(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- docs:
	default:
		// Slot occupied: drop the stale snapshot, keep the newest.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- docs:
		default:
		}
	}
}
