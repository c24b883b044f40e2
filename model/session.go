package model

import "time"

// Session is the per-conversation state the Session Store persists.
//
// History and MemoryZone are stored separately: mutating one must never
// observably affect the other (each carries its own backing array via
// Clone). A Reset empties History but leaves MemoryZone and Metadata
// intact.
type Session struct {
	SessionID string
	UserID    string

	History    ConversationHistory
	MemoryZone MemoryZone

	Metadata map[string]string

	CreatedAt       time.Time
	UpdatedAt       time.Time
	TotalTokensUsed int

	// ReductionEvents holds the most recent context_reduction outcomes
	// for this session, surfaced by the admin introspection endpoint.
	// Bounded to maxReductionEvents; oldest dropped first.
	ReductionEvents []ReductionEvent
}

// ReductionEvent records one context_reduction outcome: which strategy
// actually ran, whether a summarization fell back to truncation, and the
// token counts before/after.
type ReductionEvent struct {
	Strategy     ReductionMode
	FellBack     bool
	BeforeTokens int
	AfterTokens  int
	At           time.Time
}

// maxReductionEvents bounds how many ReductionEvents a session retains.
const maxReductionEvents = 10

// RecordReduction appends a ReductionEvent, dropping the oldest entry once
// the session already holds maxReductionEvents.
func (s *Session) RecordReduction(ev ReductionEvent) {
	s.ReductionEvents = append(s.ReductionEvents, ev)
	if len(s.ReductionEvents) > maxReductionEvents {
		s.ReductionEvents = s.ReductionEvents[len(s.ReductionEvents)-maxReductionEvents:]
	}
}

// NewSession creates an empty session for the given key pair. Callers
// supply SessionID (the orchestrator passes the session key built by its
// deriveSessionKey) and the user identity it resolved from.
func NewSession(sessionID, userID string) *Session {
	now := time.Now()
	return &Session{
		SessionID: sessionID,
		UserID:    userID,
		Metadata:  make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage appends a message to History and advances UpdatedAt. It
// does not touch MemoryZone.
func (s *Session) AppendMessage(m Message) {
	s.History.Append(m)
	s.TotalTokensUsed += EstimatedTokens(m.Content)
	s.UpdatedAt = time.Now()
}

// ReplaceHistory atomically swaps in a reduced history (the result of a
// Context Engine strategy) and advances UpdatedAt. MemoryZone is
// untouched; callers that produced a summary append it to MemoryZone
// separately.
func (s *Session) ReplaceHistory(h ConversationHistory) {
	s.History = h
	s.UpdatedAt = time.Now()
}

// Reset empties History. MemoryZone and Metadata are left intact, per the
// spec's session-reset invariant.
func (s *Session) Reset() {
	s.History = ConversationHistory{}
	s.UpdatedAt = time.Now()
}

// Expired reports whether the session's TTL (measured from UpdatedAt) has
// elapsed as of now.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return s.UpdatedAt.Add(ttl).Before(now)
}

// Clone returns a deep copy of s. History and MemoryZone are cloned
// independently so neither copy can observably affect the other's source.
func (s *Session) Clone() *Session {
	clone := &Session{
		SessionID:       s.SessionID,
		UserID:          s.UserID,
		History:         s.History.Clone(),
		MemoryZone:      s.MemoryZone.Clone(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		TotalTokensUsed: s.TotalTokensUsed,
	}
	if s.ReductionEvents != nil {
		clone.ReductionEvents = append([]ReductionEvent(nil), s.ReductionEvents...)
	}
	if s.Metadata != nil {
		clone.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}
