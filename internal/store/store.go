// Package store defines the document-store capability contract the history
// layer is written against, plus a SQLite-backed implementation of it.
//
// The contract is deliberately small: CRUD by id, equality/range queries
// ordered by last activity with keyset cursors, change-notification
// subscriptions delivering whole snapshots, and server-assigned write
// timestamps. Nothing above this package may assume a particular backend.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound is returned by Get and Delete for unknown ids.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a stored record: a JSON payload plus the scalar fields the
// store indexes for querying. The indexed fields are denormalized copies of
// values inside Data; the repository keeps them in sync on every write.
type Document struct {
	Collection string
	ID         string

	// Indexed fields (equality / range / ordering).
	Owner        string
	Language     string
	Active       bool
	StartedAt    time.Time
	LastActivity time.Time

	// Data is the full document payload (JSON).
	Data []byte
}

// Position identifies a document's place in the (LastActivity DESC, ID DESC)
// ordering. Queries resume strictly after this position.
type Position struct {
	LastActivity time.Time
	ID           string
}

// Query describes a store-native query: equality filters, an optional range
// on last activity, descending last-activity order, a limit, and an optional
// resume position. Free-text and array-containment predicates are NOT part
// of this contract; the store cannot evaluate them.
type Query struct {
	Collection string
	Owner      string

	// Language, when non-empty, adds an equality constraint.
	Language string

	// From/To bound LastActivity (inclusive From, exclusive To), when set.
	From *time.Time
	To   *time.Time

	// Limit caps the number of documents returned; <= 0 means no cap.
	Limit int

	// After resumes the scan strictly after the given position.
	After *Position
}

// Subscription is a live change-notification stream for one query. Snapshots
// are whole result sets: every relevant write re-evaluates the query and the
// complete new result replaces the previous one. Delivery is latest-wins:
// if the consumer lags, intermediate snapshots are dropped.
type Subscription interface {
	// Snapshots returns the channel on which whole result sets arrive.
	// The channel is closed by Close.
	Snapshots() <-chan []Document
	// Close releases the subscription. Safe to call more than once.
	Close()
}

// DocumentStore is the capability contract consumed by the session
// repository. Implementations must assign LastActivity from their own clock
// inside Put, so writers on skewed client clocks cannot reorder history.
type DocumentStore interface {
	// Put creates or replaces a document and returns the stored version with
	// the server-assigned LastActivity stamp.
	Put(ctx context.Context, doc Document) (Document, error)

	// Get fetches a document by collection and id, or ErrDocumentNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Delete removes a document, or returns ErrDocumentNotFound.
	Delete(ctx context.Context, collection, id string) error

	// QueryDocs runs a store-native query (see Query).
	QueryDocs(ctx context.Context, q Query) ([]Document, error)

	// Subscribe opens a change-notification stream for q. An initial
	// snapshot is delivered asynchronously after registration.
	Subscribe(q Query) (Subscription, error)

	// Now reports the store's clock, the source of all write timestamps.
	Now() time.Time
}
