// Package pagination implements keyset pagination over the session store:
// an opaque continuation cursor and the fetch-one-extra page shaping that
// derives hasMore without a separate count query.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/store"
)

// ErrBadCursor is returned when a supplied cursor cannot be decoded. Callers
// should treat it as a client error, not retry it.
var ErrBadCursor = errors.New("malformed pagination cursor")

// Encode renders a store position as an opaque cursor string. The format
// (base64 of "millis|id") is an implementation detail; clients must treat
// cursors as opaque tokens.
func Encode(p store.Position) string {
	raw := fmt.Sprintf("%d|%s", store.UnixMillis(p.LastActivity), p.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor produced by Encode. An empty cursor means "start
// from the top" and decodes to nil.
func Decode(cursor string) (*store.Position, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrBadCursor
	}
	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || ms <= 0 {
		return nil, ErrBadCursor
	}
	return &store.Position{LastActivity: time.UnixMilli(ms).UTC(), ID: id}, nil
}

// Page is one page of session summaries. HasMore reflects the raw
// over-fetch result: residual filtering may shrink Sessions below the page
// size while more raw pages still exist, so callers must follow NextCursor
// until HasMore is false rather than stopping at a short page.
type Page struct {
	Sessions   []domain.Summary `json:"sessions"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

// Shape turns an over-fetched raw result (up to pageSize+1 sessions) into a
// page: when the extra row came back, HasMore is true, the page is trimmed
// to pageSize, and the cursor points at the last exposed session.
//
// The residual predicate is applied AFTER truncation, to exactly the rows
// the raw page exposes (never to the over-fetch row), so HasMore and
// NextCursor are stable regardless of how many rows the filter discards.
func Shape(raw []domain.ChatSession, pageSize int, residual func(*domain.ChatSession) bool) Page {
	var page Page
	if len(raw) > pageSize {
		page.HasMore = true
		raw = raw[:pageSize]
	}
	if n := len(raw); n > 0 {
		last := raw[n-1]
		page.NextCursor = Encode(store.Position{LastActivity: last.LastActivity, ID: last.ID})
	}
	page.Sessions = make([]domain.Summary, 0, len(raw))
	for i := range raw {
		if residual != nil && !residual(&raw[i]) {
			continue
		}
		page.Sessions = append(page.Sessions, raw[i].Summarize())
	}
	return page
}
