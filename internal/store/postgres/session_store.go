package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/store"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Put upserts the session for a conversation.
func (s *SessionStore) Put(ctx context.Context, session *models.Session) error {
	if err := store.ValidateSession(session); err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (
			conversation_id, request_id, business_unit, team_name,
			requesting_user_id, state, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (conversation_id) DO UPDATE SET
			request_id = EXCLUDED.request_id,
			business_unit = EXCLUDED.business_unit,
			team_name = EXCLUDED.team_name,
			requesting_user_id = EXCLUDED.requesting_user_id,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at
	`

	// Convert zero expiry to NULL (never expires)
	var expiresAt any
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt
	}

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, query,
		session.ConversationID,
		session.RequestID,
		session.BusinessUnit,
		session.TeamName,
		session.RequestingUserID,
		string(session.State),
		session.CreatedAt,
		updatedAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("conversation_id", session.ConversationID).
		Str("request_id", session.RequestID.String()).
		Str("state", string(session.State)).
		Msg("Stored session")

	return nil
}

// Get retrieves the session for a conversation.
func (s *SessionStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	query := `
		SELECT
			conversation_id, request_id, business_unit, team_name,
			requesting_user_id, state, created_at, updated_at, expires_at
		FROM sessions
		WHERE conversation_id = $1
	`

	var (
		session   models.Session
		state     string
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, conversationID).Scan(
		&session.ConversationID,
		&session.RequestID,
		&session.BusinessUnit,
		&session.TeamName,
		&session.RequestingUserID,
		&state,
		&session.CreatedAt,
		&session.UpdatedAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", mapPostgresError(err))
	}

	session.State = models.SessionState(state)
	if expiresAt != nil {
		session.ExpiresAt = *expiresAt
	}

	if session.IsExpired() {
		return nil, store.ErrSessionExpired
	}

	return &session, nil
}

// Delete removes the session for a conversation.
func (s *SessionStore) Delete(ctx context.Context, conversationID string) error {
	query := `DELETE FROM sessions WHERE conversation_id = $1`

	result, err := s.pool.Exec(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}

	log.Debug().
		Str("conversation_id", conversationID).
		Msg("Deleted session")

	return nil
}

// DeleteExpired deletes all expired sessions (cleanup job).
func (s *SessionStore) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at < $1`

	result, err := s.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())

	if count > 0 {
		log.Info().
			Int("count", count).
			Msg("Deleted expired sessions")
	}

	return count, nil
}
