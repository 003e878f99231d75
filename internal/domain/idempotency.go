// Package domain defines the conversation-history data model shared across
// the repository and service layers. This file holds the idempotency record
// used to deduplicate retried message appends.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed append,
// keyed by (owner_id, session_id, key). It enables safe retries of
// POST /sessions/:id/messages by letting handlers detect a replay and skip
// re-executing the append.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OwnerID   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_session_key,priority:1"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_session_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_session_key,priority:3"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
