// Message HTTP handlers.
//
// This file exposes the append endpoint:
//   - POST /sessions/{id}/messages   (append one message to a session)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to the history service
//   - implement idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// append exists for (user, session, key), the handler returns the current
// session without re-appending and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/noorhq/go-history-backend/internal/http/middleware"
	"github.com/noorhq/go-history-backend/internal/repo"
)

// maxContentRunes caps message content at the edge before it reaches the
// service layer.
const maxContentRunes = 4000

// AppendMessageResponse is the JSON envelope for a successful append: the
// updated session, messages included.
type AppendMessageResponse struct {
	Session any `json:"session"`
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// AppendMessage appends one message to a session. Supports idempotency via
// the Idempotency-Key header (same key → same result, no double append).
func (h *Handlers) AppendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	currentUser := userID(c)

	var req IncomingMessage
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	req.Content = sanitizeContent(req.Content)
	if req.Content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	if utf8.RuneCountInString(req.Content) > maxContentRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", maxContentRunes))
		return
	}
	m, msg := req.toDomain()
	if msg != "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msg)
		return
	}

	// Idempotency replay path: read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	if idemKey != "" && h.idemDB != nil {
		if rec, err := repo.GetIdempotency(ctx, h.idemDB, currentUser, sessionID, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if sess, err2 := h.svc.GetSession(ctx, currentUser, sessionID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, AppendMessageResponse{Session: sess})
				return
			}
		}
	}

	sess, err := h.svc.AppendMessage(ctx, currentUser, sessionID, m)
	if err != nil {
		failFromService(c, err)
		return
	}

	// Idempotency store path, best effort: the append already succeeded, so
	// a failed record write only costs replay detection. Log it and move on.
	if idemKey != "" && h.idemDB != nil {
		appended := sess.Messages[len(sess.Messages)-1]
		if _, err := repo.CreateIdempotency(ctx, h.idemDB, currentUser, sessionID, idemKey, appended.ID, http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Error().Err(err).
				Str("session_id", sessionID).
				Msg("idempotency record write failed")
		}
	}

	ok(c, http.StatusOK, AppendMessageResponse{Session: sess})
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// validator middleware stored one in the Gin context, falling back to the raw
// header when no validator ran (tests).
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		return key, true
	}
	if h := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey)); h != "" {
		return h, true
	}
	return "", false
}
