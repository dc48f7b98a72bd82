package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the position of a conversation in the org creation flow.
type SessionState string

const (
	StateAwaitingIdentityConfirmation SessionState = "awaiting_identity_confirmation"
	StateAwaitingFinalConfirmation    SessionState = "awaiting_final_confirmation"
)

// Valid reports whether the state is one a stored session may hold.
func (s SessionState) Valid() bool {
	switch s {
	case StateAwaitingIdentityConfirmation, StateAwaitingFinalConfirmation:
		return true
	}
	return false
}

// Session represents one in-flight org creation conversation.
// It is keyed by the conversation (DM channel) ID and deleted once the flow resolves.
type Session struct {
	ConversationID   string
	RequestID        uuid.UUID // UUIDv7, used to correlate log lines for one request
	BusinessUnit     string
	TeamName         string
	RequestingUserID string // chat platform user ID
	State            SessionState

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// OrgName returns the organisation name this session will request.
func (s *Session) OrgName() string {
	return OrgName(s.BusinessUnit, s.TeamName)
}

// IsExpired returns true if the session has expired.
// A zero ExpiresAt never expires.
func (s *Session) IsExpired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(s.ExpiresAt)
}
