package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/store"
)

// SessionStore implements store.SessionStore using in-memory storage.
// Data is lost on restart, which is acceptable for in-flight chat conversations.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session // conversation_id -> Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
	}
}

// Put stores the session for a conversation, replacing any existing one.
func (s *SessionStore) Put(ctx context.Context, session *models.Session) error {
	if err := store.ValidateSession(session); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *session
	if clone.UpdatedAt.IsZero() {
		clone.UpdatedAt = time.Now()
	}
	s.sessions[session.ConversationID] = &clone

	return nil
}

// Get retrieves the session for a conversation.
func (s *SessionStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[conversationID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	// Clone to avoid external modifications
	clone := *session
	return &clone, nil
}

// Delete removes the session for a conversation.
func (s *SessionStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[conversationID]; !exists {
		return store.ErrSessionNotFound
	}

	delete(s.sessions, conversationID)

	return nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}

// Len returns the number of stored sessions, including expired ones not yet cleaned up.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
