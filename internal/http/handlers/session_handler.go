// Session HTTP handlers.
//
// This file exposes REST endpoints for conversation sessions:
//   - POST   /sessions               (create, optionally seeded with a first message)
//   - GET    /sessions               (list, cursor-paginated, filterable)
//   - GET    /sessions/search        (bounded free-text search)
//   - GET    /sessions/{id}          (fetch one session with messages)
//   - PUT    /sessions/{id}/title    (rename)
//   - POST   /sessions/{id}/end      (mark inactive)
//   - DELETE /sessions/{id}          (delete one)
//   - POST   /sessions/batch-delete  (delete several)
//   - POST   /cleanup                (release per-user watch + cache)
//
// Handlers are transport-thin: they validate input, call the history service,
// and translate results into HTTP responses.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/noorhq/go-history-backend/internal/domain"
	"github.com/noorhq/go-history-backend/internal/filter"
	"github.com/noorhq/go-history-backend/internal/services"
	"github.com/noorhq/go-history-backend/internal/utils"
)

// Handlers groups the HTTP endpoints for the conversation-history API.
type Handlers struct {
	svc *services.HistoryService

	// idemDB backs idempotency records for message appends; nil disables
	// replay detection.
	idemDB  *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given history service.
// idemDB may be nil when idempotent replay is not wanted (tests).
func New(svc *services.HistoryService, idemDB *gorm.DB, idemTTL time.Duration) *Handlers {
	return &Handlers{svc: svc, idemDB: idemDB, idemTTL: idemTTL}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// IncomingMessage is the JSON shape of a message supplied by a client, either
// as a session's first message or an append.
type IncomingMessage struct {
	// Content is the message text. It must be non-empty.
	Content string `json:"content" binding:"required,min=1"`
	// IsUser marks user messages; false means an assistant reply.
	IsUser bool `json:"is_user"`
	// ProcessingTimeMs is how long the reply took to produce, when known.
	ProcessingTimeMs int64 `json:"processing_time_ms,omitempty"`
	// Kind optionally classifies an assistant reply: islamic|rejected|error.
	Kind string `json:"kind,omitempty"`
	// Language optionally tags the content language.
	Language string `json:"language,omitempty"`
}

// toDomain converts the DTO into a domain message, or reports the offending
// field.
func (m IncomingMessage) toDomain() (domain.ChatMessage, string) {
	switch domain.MessageKind(m.Kind) {
	case "", domain.MessageKindIslamic, domain.MessageKindRejected, domain.MessageKindError:
	default:
		return domain.ChatMessage{}, "kind must be one of: islamic, rejected, error"
	}
	if m.ProcessingTimeMs < 0 {
		return domain.ChatMessage{}, "processing_time_ms must be >= 0"
	}
	return domain.ChatMessage{
		Content:        m.Content,
		IsUser:         m.IsUser,
		ProcessingTime: time.Duration(m.ProcessingTimeMs) * time.Millisecond,
		Kind:           domain.MessageKind(m.Kind),
		Language:       strings.TrimSpace(m.Language),
	}, ""
}

// CreateSessionRequest is the JSON payload for starting a session.
type CreateSessionRequest struct {
	// Language optionally pins the session language (e.g. "en", "ar").
	Language string `json:"language"`
	// FirstMessage optionally seeds the session; it supplies the title and
	// the initial topic tags.
	FirstMessage *IncomingMessage `json:"first_message"`
}

// UpdateTitleRequest is the JSON payload for renaming a session.
type UpdateTitleRequest struct {
	// Title is the new session name.
	Title string `json:"title" binding:"required,min=1,max=255"`
}

// BatchDeleteRequest lists the sessions to remove in one call.
type BatchDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// BatchDeleteResponse reports how many sessions were removed.
type BatchDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Sessions []domain.Summary `json:"sessions"`
}

//
// Helpers
//

// parseFilter assembles the session filter from query parameters:
// language, kind, tags (comma-separated), q (free text), date_from/date_to
// (RFC 3339).
func parseFilter(c *gin.Context) (filter.Filter, string) {
	f := filter.Filter{
		Language:    strings.TrimSpace(c.Query("language")),
		SearchQuery: strings.TrimSpace(c.Query("q")),
	}
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		switch domain.MessageKind(kind) {
		case domain.MessageKindIslamic, domain.MessageKindRejected, domain.MessageKindError:
			f.MessageKind = domain.MessageKind(kind)
		default:
			return f, "kind must be one of: islamic, rejected, error"
		}
	}
	if tags := strings.TrimSpace(c.Query("tags")); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	if from := c.Query("date_from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return f, "date_from must be RFC 3339"
		}
		f.DateFrom = &t
	}
	if to := c.Query("date_to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return f, "date_to must be RFC 3339"
		}
		f.DateTo = &t
	}
	return f, ""
}

//
// Handlers
//

// CreateSession starts a new session for the current user and returns it.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	var first *domain.ChatMessage
	if req.FirstMessage != nil {
		m, msg := req.FirstMessage.toDomain()
		if msg != "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
			return
		}
		first = &m
	}

	sess, err := h.svc.CreateSession(c.Request.Context(), userID(c), strings.TrimSpace(req.Language), first)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusCreated, sess)
}

// ListSessions returns one cursor-paginated page of the user's sessions,
// newest activity first. Supports the full filter surface plus page_size and
// cursor query parameters.
func (h *Handlers) ListSessions(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}
	pageSize := utils.AtoiDefault(c.Query("page_size"), 0)

	page, err := h.svc.ListSessions(c.Request.Context(), userID(c), f, pageSize, c.Query("cursor"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, page)
}

// SearchSessions scans a bounded window of the user's newest sessions for the
// given free-text query (plus any other filter parameters) and returns the
// matching summaries.
func (h *Handlers) SearchSessions(c *gin.Context) {
	f, msg := parseFilter(c)
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}
	if f.SearchQuery == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}

	found, err := h.svc.SearchSessions(c.Request.Context(), userID(c), f)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Sessions: found})
}

// GetSession returns one full session, messages included.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// UpdateTitle renames a session.
func (h *Handlers) UpdateTitle(c *gin.Context) {
	var req UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required")
		return
	}
	sess, err := h.svc.RenameSession(c.Request.Context(), userID(c), c.Param("id"), req.Title)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// EndSession marks a session inactive.
func (h *Handlers) EndSession(c *gin.Context) {
	sess, err := h.svc.EndSession(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// DeleteSession removes one session.
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		failFromService(c, err)
		return
	}
	noContent(c)
}

// BatchDelete removes the listed sessions. An empty list is rejected. When a
// delete fails part-way, the error message still reports how many went
// through before the failure.
func (h *Handlers) BatchDelete(c *gin.Context) {
	var req BatchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}
	n, err := h.svc.DeleteSessions(c.Request.Context(), userID(c), req.IDs)
	if err != nil {
		status, code, msg := serviceError(err)
		fail(c, status, code, fmt.Sprintf("%s; deleted %d of %d", msg, n, len(req.IDs)))
		return
	}
	ok(c, http.StatusOK, BatchDeleteResponse{Deleted: n})
}

// Cleanup releases the current user's live watch and cached pages. Clients
// call it on sign-out.
func (h *Handlers) Cleanup(c *gin.Context) {
	h.svc.Cleanup(userID(c))
	noContent(c)
}
