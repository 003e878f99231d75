// Package filter splits a logical session filter into the part the document
// store can evaluate natively (language equality, last-activity range) and a
// residual predicate applied in memory after fetch (message kind, tags,
// free text). The split is fixed by the store's capability contract: it
// cannot scan nested message content or index array containment.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/store"
)

// Filter is the logical query a caller expresses. All fields are optional;
// the zero Filter matches everything.
type Filter struct {
	// Pushed down to the store.
	DateFrom *time.Time
	DateTo   *time.Time
	Language string

	// Evaluated in memory after fetch.
	MessageKind domain.MessageKind
	Tags        []string
	SearchQuery string
}

// Residual is the in-memory part of a composed filter. A nil Residual
// means nothing was left to evaluate client-side.
type Residual func(*domain.ChatSession) bool

// Compose builds the store-native query for owner plus the residual
// predicate. Limit and cursor are left for the pagination layer to fill in.
func (f Filter) Compose(collection, owner string) (store.Query, Residual) {
	q := store.Query{
		Collection: collection,
		Owner:      owner,
		Language:   strings.TrimSpace(f.Language),
		From:       f.DateFrom,
		To:         f.DateTo,
	}
	return q, f.residual()
}

// residual compiles the client-side predicate, or nil when every requested
// constraint was pushed down.
func (f Filter) residual() Residual {
	kind := f.MessageKind
	tags := make([]string, 0, len(f.Tags))
	for _, t := range f.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	search := strings.ToLower(strings.TrimSpace(f.SearchQuery))

	if kind == "" && len(tags) == 0 && search == "" {
		return nil
	}

	return func(s *domain.ChatSession) bool {
		if kind != "" && !hasKind(s, kind) {
			return false
		}
		for _, t := range tags {
			if !hasTag(s, t) {
				return false
			}
		}
		if search != "" && !matchesSearch(s, search) {
			return false
		}
		return true
	}
}

// hasKind reports whether any message in the session carries the kind.
func hasKind(s *domain.ChatSession, kind domain.MessageKind) bool {
	for i := range s.Messages {
		if s.Messages[i].Kind == kind {
			return true
		}
	}
	return false
}

func hasTag(s *domain.ChatSession, tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// matchesSearch is the bounded in-memory free-text match: case-insensitive
// substring against the title or any message's content. query must already
// be lowercased.
func matchesSearch(s *domain.ChatSession, query string) bool {
	if strings.Contains(strings.ToLower(s.Title), query) {
		return true
	}
	for i := range s.Messages {
		if strings.Contains(strings.ToLower(s.Messages[i].Content), query) {
			return true
		}
	}
	return false
}

// Signature renders the filter as a stable string for cache keying. Two
// filters with the same signature produce the same composed query and
// residual, so their cached pages are interchangeable.
func (f Filter) Signature() string {
	var b strings.Builder
	if f.DateFrom != nil {
		fmt.Fprintf(&b, "from=%d;", f.DateFrom.UnixMilli())
	}
	if f.DateTo != nil {
		fmt.Fprintf(&b, "to=%d;", f.DateTo.UnixMilli())
	}
	if l := strings.TrimSpace(f.Language); l != "" {
		fmt.Fprintf(&b, "lang=%s;", l)
	}
	if f.MessageKind != "" {
		fmt.Fprintf(&b, "kind=%s;", f.MessageKind)
	}
	if len(f.Tags) > 0 {
		fmt.Fprintf(&b, "tags=%s;", strings.ToLower(strings.Join(f.Tags, ",")))
	}
	if q := strings.ToLower(strings.TrimSpace(f.SearchQuery)); q != "" {
		fmt.Fprintf(&b, "q=%s;", q)
	}
	return b.String()
}
