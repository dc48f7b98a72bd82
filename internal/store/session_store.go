package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/orgbot/internal/models"
)

// Sentinel errors for session store operations
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidSession  = errors.New("invalid session")
)

// SessionStore holds transient per-conversation state for the org creation flow.
// Sessions are keyed by conversation ID; at most one session exists per conversation.
type SessionStore interface {
	// Put creates the session for a conversation, replacing any existing one.
	// Returns ErrInvalidSession if the session has no conversation ID or an unknown state.
	Put(ctx context.Context, session *models.Session) error

	// Get retrieves the session for a conversation.
	// Returns ErrSessionNotFound if there is none, ErrSessionExpired if it has expired.
	Get(ctx context.Context, conversationID string) (*models.Session, error)

	// Delete removes the session for a conversation.
	// Returns ErrSessionNotFound if there is none.
	Delete(ctx context.Context, conversationID string) error

	// DeleteExpired removes all expired sessions (cleanup job).
	DeleteExpired(ctx context.Context) (int, error)
}

// ValidateSession checks the fields every store requires before persisting a session.
func ValidateSession(session *models.Session) error {
	if session == nil || session.ConversationID == "" {
		return ErrInvalidSession
	}
	if !session.State.Valid() {
		return ErrInvalidSession
	}
	return nil
}

// IsGone reports whether err means the session no longer exists, either because
// it was deleted by a terminal step or because it expired.
func IsGone(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
