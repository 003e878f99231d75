// Package domain defines the conversation-history data model: chat sessions,
// the messages they contain, and the per-session aggregates maintained as
// messages arrive. Sessions are persisted as whole documents in the document
// store; the types here carry JSON tags describing that document shape.
package domain

import "time"

// MessageKind classifies an assistant reply for downstream filtering.
type MessageKind string

const (
	// MessageKindIslamic marks a reply produced from approved sources.
	MessageKindIslamic MessageKind = "islamic"
	// MessageKindRejected marks a reply the assistant declined to give.
	MessageKindRejected MessageKind = "rejected"
	// MessageKindError marks a reply that failed to generate.
	MessageKindError MessageKind = "error"
)

// ChatMessage is a single utterance within a session. Messages are immutable
// once appended and live only inside their parent session document; there is
// no standalone message collection.
//
// Fields:
//   - ID: identifier unique within the session.
//   - Content: full text of the message.
//   - IsUser: true for user messages, false for assistant replies.
//   - Timestamp: when the message was recorded.
//   - ProcessingTime: how long the reply took to produce (zero if unknown).
//   - Kind: optional reply classification (islamic / rejected / error).
//   - Language: optional language tag of the content.
type ChatMessage struct {
	ID             string        `json:"id"`
	Content        string        `json:"content"`
	IsUser         bool          `json:"is_user"`
	Timestamp      time.Time     `json:"timestamp"`
	ProcessingTime time.Duration `json:"processing_time,omitempty"`
	Kind           MessageKind   `json:"kind,omitempty"`
	Language       string        `json:"language,omitempty"`
}

// MaxTags caps the session tag set. Once the cap is reached, later messages
// add no further tags; this is a documented approximation, not a bug.
const MaxTags = 10

// ChatSession is a conversation owned by exactly one user. The full message
// sequence is embedded in the session document (insertion order equals
// conversation order), so deleting a session cascades by construction.
//
// Invariants maintained by ApplyAppend / AddTags and enforced by tests:
//   - MessageCount always equals len(Messages).
//   - Tags holds at most MaxTags entries, insertion-ordered, no duplicates.
//   - LastActivity is assigned by the store's clock on every write, never by
//     the client, so readers across devices agree on ordering.
type ChatSession struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Title        string        `json:"title"`
	Messages     []ChatMessage `json:"messages"`
	StartedAt    time.Time     `json:"started_at"`
	LastActivity time.Time     `json:"last_activity"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	MessageCount int           `json:"message_count"`
	Active       bool          `json:"active"`
	Language     string        `json:"language,omitempty"`
	Tags         []string      `json:"tags,omitempty"`

	// Aggregates, maintained incrementally on append.
	CumulativeProcessingTime time.Duration `json:"cumulative_processing_time,omitempty"`
	AverageResponseTime      time.Duration `json:"average_response_time,omitempty"`
}

// ApplyAppend appends m to the session and updates the derived fields in
// O(1) regardless of history length:
//
//	newCumulative = T + processingTime(m)
//	newAverage    = newCumulative / (n + 1)
//
// where n is the message count before the append and T the cumulative
// processing time so far. A message without a processing time contributes
// zero. LastActivity is deliberately NOT touched here; the store stamps it
// with its own clock at write time.
func (s *ChatSession) ApplyAppend(m ChatMessage) {
	n := s.MessageCount
	s.Messages = append(s.Messages, m)
	s.MessageCount = n + 1
	s.CumulativeProcessingTime += m.ProcessingTime
	s.AverageResponseTime = s.CumulativeProcessingTime / time.Duration(n+1)
}

// AddTags appends the given tags to the session's tag set, skipping
// duplicates and stopping once MaxTags is reached. Insertion order is
// preserved; existing tags are never reordered or evicted.
func (s *ChatSession) AddTags(tags []string) {
	if len(s.Tags) >= MaxTags {
		return
	}
	seen := make(map[string]struct{}, len(s.Tags))
	for _, t := range s.Tags {
		seen[t] = struct{}{}
	}
	for _, t := range tags {
		if len(s.Tags) >= MaxTags {
			break
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		s.Tags = append(s.Tags, t)
	}
}

// Summary is the list-view projection of a session: everything except the
// message bodies. List and search endpoints return summaries; the full
// document is only loaded for single-session reads.
type Summary struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MessageCount int        `json:"message_count"`
	Active       bool       `json:"active"`
	Language     string     `json:"language,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
}

// Summarize returns the list-view projection of s.
func (s *ChatSession) Summarize() Summary {
	return Summary{
		ID:           s.ID,
		Title:        s.Title,
		StartedAt:    s.StartedAt,
		LastActivity: s.LastActivity,
		EndedAt:      s.EndedAt,
		MessageCount: s.MessageCount,
		Active:       s.Active,
		Language:     s.Language,
		Tags:         s.Tags,
	}
}
