package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/noorhq/go-history-backend/internal/cache"
	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/filter"
	"github.com/noorhq/go-history-backend/internal/repo"
	"github.com/noorhq/go-history-backend/internal/store"
)

func newService(t *testing.T) *HistoryService {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "svc_test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewHistoryService(repo.NewSessionRepository(st), cache.New(time.Minute))
}

func seed(t *testing.T, s *HistoryService, owner string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sess, err := s.CreateSession(context.Background(), owner, "", &domain.ChatMessage{
			Content: fmt.Sprintf("question number %d", i),
			IsUser:  true,
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		ids = append(ids, sess.ID)
	}
	return ids
}

func TestListSessions_WalksAllPages(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	want := seed(t, s, "user-1", 25)

	seen := make(map[string]bool)
	cursor := ""
	sizes := []int{}
	for {
		page, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		sizes = append(sizes, len(page.Sessions))
		for _, sum := range page.Sessions {
			if seen[sum.ID] {
				t.Fatalf("session %s appeared twice", sum.ID)
			}
			seen[sum.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("page sizes = %v, want [10 10 5]", sizes)
	}
	if len(seen) != len(want) {
		t.Fatalf("walked %d sessions, want %d", len(seen), len(want))
	}
}

func TestListSessions_PageSizeClamped(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	seed(t, s, "user-1", 3)

	page, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 0, "")
	if err != nil {
		t.Fatalf("list with zero size: %v", err)
	}
	if len(page.Sessions) != 3 {
		t.Fatalf("default page missing sessions: %d", len(page.Sessions))
	}

	if _, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 100000, ""); err != nil {
		t.Fatalf("oversized page size must be clamped, not rejected: %v", err)
	}
}

func TestListSessions_BadCursor(t *testing.T) {
	s := newService(t)
	_, err := s.ListSessions(context.Background(), "user-1", filter.Filter{}, 10, "!!not-a-cursor!!")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestListSessions_CachesPages(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	seed(t, s, "user-1", 2)

	if _, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, ""); err != nil {
		t.Fatalf("list: %v", err)
	}
	key := cache.Key("user-1", 10, filter.Filter{}.Signature(), "")
	if _, ok := s.Cache.Get(key); !ok {
		t.Fatalf("page was not cached under %q", key)
	}
}

func TestWrites_InvalidateCachedPages(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	ids := seed(t, s, "user-1", 2)
	seed(t, s, "user-2", 1)

	if _, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, ""); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := s.ListSessions(ctx, "user-2", filter.Filter{}, 10, ""); err != nil {
		t.Fatalf("prime other owner: %v", err)
	}

	if _, err := s.RenameSession(ctx, "user-1", ids[0], "Hajj checklist"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	// The writer's cached page is gone; the other owner's survives.
	if _, ok := s.Cache.Get(cache.Key("user-1", 10, "", "")); ok {
		t.Fatalf("user-1 page survived a write")
	}
	if _, ok := s.Cache.Get(cache.Key("user-2", 10, "", "")); !ok {
		t.Fatalf("user-2 page must not be evicted by user-1's write")
	}

	// A fresh list sees the new title immediately.
	page, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, "")
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	found := false
	for _, sum := range page.Sessions {
		if sum.ID == ids[0] && sum.Title == "Hajj checklist" {
			found = true
		}
	}
	if !found {
		t.Fatalf("renamed title not visible after invalidation: %+v", page.Sessions)
	}
}

func TestListSessions_ResidualFilterKeepsPaginationStable(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	// 6 sessions, only two mention zakat.
	contents := []string{
		"zakat on gold", "morning routine", "travel plans",
		"zakat on savings", "weather", "groceries",
	}
	for _, c := range contents {
		if _, err := s.CreateSession(ctx, "user-1", "", &domain.ChatMessage{Content: c, IsUser: true}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	matched := 0
	cursor := ""
	pages := 0
	for {
		page, err := s.ListSessions(ctx, "user-1", filter.Filter{SearchQuery: "zakat"}, 2, cursor)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		matched += len(page.Sessions)
		pages++
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	if matched != 2 {
		t.Fatalf("matched %d sessions across pages, want 2", matched)
	}
	// hasMore follows the raw scan, so walking takes ceil(6/2) = 3 pages even
	// though most rows are filtered out.
	if pages != 3 {
		t.Fatalf("walk took %d pages, want 3", pages)
	}
}

func TestSearchSessions(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	seed(t, s, "user-1", 3)
	if _, err := s.CreateSession(ctx, "user-1", "", &domain.ChatMessage{Content: "dua before sleeping", IsUser: true}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.SearchSessions(ctx, "user-1", filter.Filter{SearchQuery: "SLEEPING"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Title != "dua before sleeping" {
		t.Fatalf("search results = %+v", got)
	}
}

func TestDeleteSessions_Batch(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	ids := seed(t, s, "user-1", 3)

	if _, err := s.DeleteSessions(ctx, "user-1", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty batch err = %v, want ErrInvalidArgument", err)
	}

	n, err := s.DeleteSessions(ctx, "user-1", ids[:2])
	if err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d, want 2", n)
	}

	page, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Sessions) != 1 || page.Sessions[0].ID != ids[2] {
		t.Fatalf("survivors = %+v", page.Sessions)
	}
}

func TestDeleteSessions_StopsAtFirstFailure(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	ids := seed(t, s, "user-1", 2)

	n, err := s.DeleteSessions(ctx, "user-1", []string{ids[0], "missing", ids[1]})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d before failing, want 1", n)
	}
}

func TestGetSession_ErrorTaxonomy(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	ids := seed(t, s, "user-1", 1)

	if _, err := s.GetSession(ctx, "user-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := s.GetSession(ctx, "user-2", ids[0]); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("foreign err = %v", err)
	}
}

func TestCleanup_OwnerScoped(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	seed(t, s, "user-1", 1)

	if _, err := s.WatchSessions("user-1", ""); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if _, err := s.ListSessions(ctx, "user-1", filter.Filter{}, 10, ""); err != nil {
		t.Fatalf("list: %v", err)
	}

	s.Cleanup("user-1")
	if s.Subs.Active("user-1") {
		t.Fatalf("watch survived cleanup")
	}
	if _, ok := s.Cache.Get(cache.Key("user-1", 10, "", "")); ok {
		t.Fatalf("cached page survived cleanup")
	}
}

func TestCleanup_Shutdown(t *testing.T) {
	s := newService(t)
	if _, err := s.WatchSessions("user-1", ""); err != nil {
		t.Fatalf("watch u1: %v", err)
	}
	if _, err := s.WatchSessions("user-2", ""); err != nil {
		t.Fatalf("watch u2: %v", err)
	}
	s.Cleanup("")
	if s.Subs.Active("user-1") || s.Subs.Active("user-2") {
		t.Fatalf("watches survived shutdown cleanup")
	}
}
