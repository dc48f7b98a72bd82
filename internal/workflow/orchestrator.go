package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgbot/internal/directory"
	"github.com/wolfeidau/orgbot/internal/logger"
	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/store"
	"github.com/wolfeidau/orgbot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Orchestrator is the request lifecycle state machine:
//
//	AwaitingInput -> [AwaitingIdentityConfirmation] -> AwaitingFinalConfirmation -> Resolved
//
// Each exported method handles one inbound chat event. Events for one conversation
// are serialised; the session is deleted as the last write of every terminal step
// and a missing session is answered as "already resolved".
type Orchestrator struct {
	sessions  store.SessionStore
	directory directory.Client
	identity  IdentityResolver
	notifier  Notifier
	policy    *NamingPolicy
	cfg       Config

	locks *conversationLocks
	now   func() time.Time
}

// New creates an Orchestrator. Every dependency is required.
func New(cfg Config, deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("%w: session store", ErrMissingDependency)
	case deps.Directory == nil:
		return nil, fmt.Errorf("%w: directory client", ErrMissingDependency)
	case deps.Identity == nil:
		return nil, fmt.Errorf("%w: identity resolver", ErrMissingDependency)
	case deps.Notifier == nil:
		return nil, fmt.Errorf("%w: notifier", ErrMissingDependency)
	case deps.Policy == nil:
		return nil, fmt.Errorf("%w: naming policy", ErrMissingDependency)
	}

	if cfg.AdminAssignmentAttempts < 1 {
		cfg.AdminAssignmentAttempts = 1
	}
	if cfg.AdminAssignmentBackoff <= 0 {
		cfg.AdminAssignmentBackoff = 500 * time.Millisecond
	}

	return &Orchestrator{
		sessions:  deps.Sessions,
		directory: deps.Directory,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		policy:    deps.Policy,
		cfg:       cfg,
		locks:     newConversationLocks(),
		now:       time.Now,
	}, nil
}

// Start handles the command invocation. The transport opens the input form.
func (o *Orchestrator) Start(ctx context.Context, userID string) {
	zerolog.Ctx(ctx).Info().Str("user_id", userID).Msg("Create org command received, opening input form")
}

// Submit handles the submitted input form and moves the conversation to identity
// or final confirmation depending on whether the requester is already in the directory.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	ctx = logger.WithConversation(ctx, sub.ConversationID, sub.UserID)
	log := zerolog.Ctx(ctx)

	if sub.BusinessUnit == "" || sub.TeamName == "" {
		log.Warn().
			Str("business_unit", sub.BusinessUnit).
			Str("team_name", sub.TeamName).
			Msg("Submission is missing a business unit or team name")
		o.notify(ctx, sub.ConversationID, Message{Key: MsgMissingInput})
		return o.resolved(ctx, Outcome{Status: StatusRejected, Reason: ReasonInvalidInput}), nil
	}

	unlock := o.locks.lock(sub.ConversationID)
	defer unlock()

	if existing, err := o.sessions.Get(ctx, sub.ConversationID); err == nil {
		log.Info().
			Str("superseded_request_id", existing.RequestID.String()).
			Msg("New submission replaces an unresolved request")
	}

	now := o.now()
	session := &models.Session{
		ConversationID:   sub.ConversationID,
		RequestID:        newRequestID(),
		BusinessUnit:     sub.BusinessUnit,
		TeamName:         sub.TeamName,
		RequestingUserID: sub.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if o.cfg.SessionTTL > 0 {
		session.ExpiresAt = now.Add(o.cfg.SessionTTL)
	}

	ctx = logger.WithRequest(ctx, session.RequestID)
	log = zerolog.Ctx(ctx)

	log.Info().
		Str("business_unit", sub.BusinessUnit).
		Str("team_name", sub.TeamName).
		Msg("Org creation requested")
	telemetry.GetMetrics().RequestsStartedTotal.Add(ctx, 1)

	user := o.verifyIdentity(ctx, sub.UserID)
	if user == nil {
		session.State = models.StateAwaitingIdentityConfirmation
		if err := o.sessions.Put(ctx, session); err != nil {
			return o.storeFailure(ctx, sub.ConversationID, err)
		}

		log.Warn().Msg("Requester has no matching directory user, prompting for SSO sign in")
		o.notify(ctx, sub.ConversationID, Message{
			Key: MsgPromptSSOConfirm,
			Params: map[string]any{
				"sso_provider_name": o.cfg.SSOProviderName,
				"sso_provider_link": o.cfg.SSOSignInLink,
			},
			Actions: []Action{ActionIdentityConfirmed, ActionCancelled},
		})
		return Outcome{Status: StatusAwaitingIdentityConfirmation}, nil
	}

	session.State = models.StateAwaitingFinalConfirmation
	if err := o.sessions.Put(ctx, session); err != nil {
		return o.storeFailure(ctx, sub.ConversationID, err)
	}

	log.Info().Str("directory_user_id", user.ID).Msg("Requester found in directory, confirming request")
	o.notify(ctx, sub.ConversationID, confirmPrompt(session))
	return Outcome{Status: StatusAwaitingFinalConfirmation}, nil
}

// ConfirmIdentity handles the "I have signed in" acknowledgment. The directory is
// not consulted here; the identity is re-checked when the request is confirmed.
func (o *Orchestrator) ConfirmIdentity(ctx context.Context, conversationID string) (Outcome, error) {
	ctx = logger.WithConversation(ctx, conversationID, "")

	unlock := o.locks.lock(conversationID)
	defer unlock()

	session, outcome, err := o.activeSession(ctx, conversationID)
	if session == nil {
		return outcome, err
	}
	ctx = logger.WithRequest(ctx, session.RequestID)

	if session.State == models.StateAwaitingIdentityConfirmation {
		session.State = models.StateAwaitingFinalConfirmation
		session.UpdatedAt = o.now()
		if err := o.sessions.Put(ctx, session); err != nil {
			return o.storeFailure(ctx, conversationID, err)
		}
		zerolog.Ctx(ctx).Info().Msg("Requester confirmed SSO sign in")
	} else {
		zerolog.Ctx(ctx).Debug().Msg("Identity already confirmed, repeating confirmation prompt")
	}

	o.notify(ctx, conversationID, confirmPrompt(session))
	return Outcome{Status: StatusAwaitingFinalConfirmation}, nil
}

// Confirm handles the final confirmation and runs the creation pipeline.
func (o *Orchestrator) Confirm(ctx context.Context, conversationID string) (Outcome, error) {
	ctx = logger.WithConversation(ctx, conversationID, "")

	unlock := o.locks.lock(conversationID)
	defer unlock()

	session, outcome, err := o.activeSession(ctx, conversationID)
	if session == nil {
		return outcome, err
	}
	ctx = logger.WithRequest(ctx, session.RequestID)

	if session.State != models.StateAwaitingFinalConfirmation {
		zerolog.Ctx(ctx).Warn().
			Str("state", string(session.State)).
			Msg("Final confirmation received before identity confirmation, ignoring")
		o.notify(ctx, conversationID, Message{Key: MsgOutOfOrder})
		return Outcome{Status: StatusIgnored}, nil
	}

	zerolog.Ctx(ctx).Info().Str("org_name", session.OrgName()).Msg("Request confirmed, attempting to create organisation")

	outcome, msgs := o.create(ctx, session)

	// the delete is the last write, replies go out after it
	err = o.discard(ctx, conversationID)

	for _, msg := range msgs {
		o.notify(ctx, conversationID, msg)
	}

	return o.resolved(ctx, outcome), err
}

// Cancel discards the request from any active state.
func (o *Orchestrator) Cancel(ctx context.Context, conversationID string) (Outcome, error) {
	ctx = logger.WithConversation(ctx, conversationID, "")

	unlock := o.locks.lock(conversationID)
	defer unlock()

	session, outcome, err := o.activeSession(ctx, conversationID)
	if session == nil {
		return outcome, err
	}
	ctx = logger.WithRequest(ctx, session.RequestID)

	if err := o.discard(ctx, conversationID); err != nil {
		return Outcome{Status: StatusCancelled}, err
	}

	zerolog.Ctx(ctx).Info().Msg("Request cancelled by user")
	o.notify(ctx, conversationID, Message{Key: MsgCancelled})
	return o.resolved(ctx, Outcome{Status: StatusCancelled}), nil
}

// activeSession loads the conversation's session. When there is none it answers the
// user and returns a nil session with the outcome to report.
func (o *Orchestrator) activeSession(ctx context.Context, conversationID string) (*models.Session, Outcome, error) {
	session, err := o.sessions.Get(ctx, conversationID)
	if err == nil {
		return session, Outcome{}, nil
	}

	if store.IsGone(err) {
		zerolog.Ctx(ctx).Info().Err(err).Msg("Action received for a resolved request")
		telemetry.GetMetrics().StaleActionsTotal.Add(ctx, 1)
		o.notify(ctx, conversationID, Message{Key: MsgAlreadyResolved})
		return nil, Outcome{Status: StatusAlreadyResolved}, nil
	}

	outcome, err := o.storeFailure(ctx, conversationID, err)
	return nil, outcome, err
}

// discard deletes the session. A session already gone is not an error.
func (o *Orchestrator) discard(ctx context.Context, conversationID string) error {
	err := o.sessions.Delete(ctx, conversationID)
	if err == nil || store.IsGone(err) {
		return nil
	}
	zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to delete session")
	return fmt.Errorf("failed to delete session: %w", err)
}

func (o *Orchestrator) storeFailure(ctx context.Context, conversationID string, err error) (Outcome, error) {
	zerolog.Ctx(ctx).Error().Err(err).Msg("Session store failure")
	o.notify(ctx, conversationID, Message{Key: MsgOrgCreateFailed})
	return Outcome{Status: StatusRejected, Reason: ReasonCreationFailed}, fmt.Errorf("session store: %w", err)
}

// verifyIdentity resolves the chat user's email and looks them up in the directory.
// Every failure, including an unreachable directory, is reported as absent.
func (o *Orchestrator) verifyIdentity(ctx context.Context, userID string) *models.DirectoryUser {
	log := zerolog.Ctx(ctx)

	email, err := o.identity.Email(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to resolve requester email")
		return nil
	}

	user, err := o.directory.LookupUser(ctx, email)
	switch {
	case err == nil:
		return user
	case directory.IsNotFound(err):
		log.Info().Str("email", email).Msg("No directory user for requester email")
	default:
		// TODO: surface directory outages separately instead of prompting for SSO.
		log.Error().Err(err).Str("email", email).Msg("Directory user lookup failed, treating as not found")
	}
	return nil
}

func (o *Orchestrator) notify(ctx context.Context, conversationID string, msg Message) {
	if err := o.notifier.Notify(ctx, conversationID, msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("message", msg.Key).Msg("Failed to notify user")
	}
}

func (o *Orchestrator) resolved(ctx context.Context, outcome Outcome) Outcome {
	telemetry.GetMetrics().RequestsResolvedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(outcome.Status)),
		attribute.String("reason", string(outcome.Reason)),
	))
	return outcome
}

func confirmPrompt(session *models.Session) Message {
	return Message{
		Key: MsgPromptCreateConfirm,
		Params: map[string]any{
			"business_unit": session.BusinessUnit,
			"team_name":     session.TeamName,
			"org_name":      session.OrgName(),
		},
		Actions: []Action{ActionConfirmed, ActionCancelled},
	}
}

func newRequestID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
