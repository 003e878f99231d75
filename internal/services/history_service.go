// Package services: HistoryService
//
// This file implements the HistoryService, the single entry point for
// conversation-history operations. It coordinates the session repository,
// the page cache, and the subscription manager:
//
//   - every write goes through the repository and then evicts the owner's
//     cached pages, so a follow-up list never shows pre-write data;
//   - every list first consults the cache under a key derived from owner,
//     page size, filter signature, and cursor;
//   - pagination over-fetches one row beyond the page size so hasMore comes
//     for free, and applies the residual (non-pushable) filter only to the
//     rows the page exposes.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the owner and session ids involved.
package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noorhq/go-history-backend/internal/cache"
	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/filter"
	"github.com/noorhq/go-history-backend/internal/pagination"
	"github.com/noorhq/go-history-backend/internal/repo"
)

// HistoryService provides session lifecycle, listing, search, and
// subscription operations on top of the repository and cache.
type HistoryService struct {
	// Repo is the session repository.
	Repo *repo.SessionRepository
	// Cache holds listed pages for a short TTL.
	Cache *cache.PageCache
	// Subs tracks the single live watch per owner.
	Subs *SubscriptionManager

	// PageSizeDefault applies when a caller passes pageSize <= 0.
	PageSizeDefault int
	// PageSizeMax clamps caller-supplied page sizes.
	PageSizeMax int
	// SearchWindow bounds how many newest sessions a search scans.
	SearchWindow int
	// SubscribeWindow is the size of the live newest-sessions window.
	SubscribeWindow int
}

// NewHistoryService constructs a HistoryService with the default limits.
func NewHistoryService(r *repo.SessionRepository, c *cache.PageCache) *HistoryService {
	return &HistoryService{
		Repo:            r,
		Cache:           c,
		Subs:            NewSubscriptionManager(),
		PageSizeDefault: 20,
		PageSizeMax:     100,
		SearchWindow:    200,
		SubscribeWindow: 20,
	}
}

// CreateSession starts a new session for owner, optionally seeded with a
// first message that supplies the title and initial tags.
func (s *HistoryService) CreateSession(ctx context.Context, owner, language string, first *domain.ChatMessage) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "CreateSession",
		trace.WithAttributes(attribute.String("user.id", owner)),
	)
	defer span.End()

	sess, err := s.Repo.Create(ctx, owner, language, first)
	if err != nil {
		return nil, err
	}
	s.Cache.InvalidateOwner(owner)
	return sess, nil
}

// GetSession loads one full session, messages included. Single-session reads
// bypass the page cache: they are cheap point lookups and must never serve a
// stale message sequence.
func (s *HistoryService) GetSession(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "GetSession",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("session.id", id),
		),
	)
	defer span.End()

	return s.Repo.Get(ctx, owner, id)
}

// AppendMessage adds a message to the session and evicts the owner's cached
// pages.
func (s *HistoryService) AppendMessage(ctx context.Context, owner, id string, m domain.ChatMessage) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "AppendMessage",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("session.id", id),
		),
	)
	defer span.End()

	sess, err := s.Repo.AppendMessage(ctx, owner, id, m)
	if err != nil {
		return nil, err
	}
	s.Cache.InvalidateOwner(owner)
	return sess, nil
}

// RenameSession replaces a session's title.
func (s *HistoryService) RenameSession(ctx context.Context, owner, id, title string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "RenameSession",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("session.id", id),
		),
	)
	defer span.End()

	sess, err := s.Repo.Rename(ctx, owner, id, title)
	if err != nil {
		return nil, err
	}
	s.Cache.InvalidateOwner(owner)
	return sess, nil
}

// EndSession marks a session inactive.
func (s *HistoryService) EndSession(ctx context.Context, owner, id string) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "EndSession",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("session.id", id),
		),
	)
	defer span.End()

	sess, err := s.Repo.End(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.Cache.InvalidateOwner(owner)
	return sess, nil
}

// DeleteSession removes one session.
func (s *HistoryService) DeleteSession(ctx context.Context, owner, id string) error {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "DeleteSession",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.String("session.id", id),
		),
	)
	defer span.End()

	if err := s.Repo.Delete(ctx, owner, id); err != nil {
		return err
	}
	s.Cache.InvalidateOwner(owner)
	return nil
}

// DeleteSessions removes the listed sessions, stopping at the first failure.
// It returns how many were deleted; an empty id list is rejected outright.
// The owner's cache is evicted whenever at least one delete went through,
// even if a later one failed.
func (s *HistoryService) DeleteSessions(ctx context.Context, owner string, ids []string) (int, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "DeleteSessions",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.Int("session.count", len(ids)),
		),
	)
	defer span.End()

	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no session ids given", ErrInvalidArgument)
	}
	deleted := 0
	for _, id := range ids {
		if err := s.Repo.Delete(ctx, owner, id); err != nil {
			if deleted > 0 {
				s.Cache.InvalidateOwner(owner)
			}
			return deleted, err
		}
		deleted++
	}
	s.Cache.InvalidateOwner(owner)
	return deleted, nil
}

// ListSessions returns one page of the owner's sessions, newest activity
// first, under the given filter. Pages are cached for the configured TTL;
// any write by the owner evicts them early.
func (s *HistoryService) ListSessions(ctx context.Context, owner string, f filter.Filter, pageSize int, cursor string) (pagination.Page, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "ListSessions",
		trace.WithAttributes(
			attribute.String("user.id", owner),
			attribute.Int("page.size", pageSize),
		),
	)
	defer span.End()

	pageSize = s.clampPageSize(pageSize)
	after, err := pagination.Decode(cursor)
	if err != nil {
		return pagination.Page{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	key := cache.Key(owner, pageSize, f.Signature(), cursor)
	if page, ok := s.Cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return page, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Snapshot the owner's invalidation epoch before reading the store, so a
	// write landing mid-query keeps this page out of the cache.
	gen := s.Cache.Generation(owner)

	q, residual := f.Compose(repo.Collection, owner)
	q.Limit = pageSize + 1 // over-fetch one row to learn hasMore
	q.After = after

	raw, err := s.Repo.Query(ctx, q)
	if err != nil {
		return pagination.Page{}, err
	}
	page := pagination.Shape(raw, pageSize, residual)
	s.Cache.Set(owner, gen, key, page)
	return page, nil
}

// SearchSessions scans a bounded window of the owner's newest sessions and
// returns the summaries matching the filter. The window keeps worst-case
// cost flat: sessions older than the newest SearchWindow are not searched.
func (s *HistoryService) SearchSessions(ctx context.Context, owner string, f filter.Filter) ([]domain.Summary, error) {
	tr := otel.Tracer("services/HistoryService")
	ctx, span := tr.Start(ctx, "SearchSessions",
		trace.WithAttributes(attribute.String("user.id", owner)),
	)
	defer span.End()

	q, residual := f.Compose(repo.Collection, owner)
	q.Limit = s.SearchWindow

	raw, err := s.Repo.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Summary, 0, len(raw))
	for i := range raw {
		if residual != nil && !residual(&raw[i]) {
			continue
		}
		out = append(out, raw[i].Summarize())
	}
	return out, nil
}

// WatchSessions opens the owner's live newest-sessions stream, replacing any
// stream the owner already had.
func (s *HistoryService) WatchSessions(owner, language string) (*repo.SessionWatch, error) {
	return s.Subs.Subscribe(s.Repo, owner, language, s.SubscribeWindow)
}

// UnwatchSessions tears down the owner's live stream, if any.
func (s *HistoryService) UnwatchSessions(owner string) {
	s.Subs.Unsubscribe(owner)
}

// Cleanup releases per-owner resources: the live watch and cached pages.
// An empty owner means shutdown: every watch is closed and the whole cache
// dropped.
func (s *HistoryService) Cleanup(owner string) {
	if owner == "" {
		s.Subs.CloseAll()
		s.Cache.Purge()
		return
	}
	s.Subs.Unsubscribe(owner)
	s.Cache.InvalidateOwner(owner)
}

func (s *HistoryService) clampPageSize(n int) int {
	if n <= 0 {
		return s.PageSizeDefault
	}
	if n > s.PageSizeMax {
		return s.PageSizeMax
	}
	return n
}
