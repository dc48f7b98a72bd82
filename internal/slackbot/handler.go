package slackbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/wolfeidau/orgbot/internal/messages"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

// ErrUnhandledInteraction is returned for payloads the bot has no handler for.
var ErrUnhandledInteraction = errors.New("unhandled interaction")

// Workflow is the request lifecycle the handler drives. *workflow.Orchestrator implements it.
type Workflow interface {
	Start(ctx context.Context, userID string)
	Submit(ctx context.Context, sub workflow.Submission) (workflow.Outcome, error)
	ConfirmIdentity(ctx context.Context, conversationID string) (workflow.Outcome, error)
	Confirm(ctx context.Context, conversationID string) (workflow.Outcome, error)
	Cancel(ctx context.Context, conversationID string) (workflow.Outcome, error)
}

var _ Workflow = (*workflow.Orchestrator)(nil)

// Handler translates Slack payloads into workflow events.
type Handler struct {
	api      API
	catalog  *messages.Catalog
	workflow Workflow
	command  string
}

// NewHandler creates a Handler answering the slash command named command (without the leading slash).
func NewHandler(api API, catalog *messages.Catalog, wf Workflow, command string) *Handler {
	return &Handler{api: api, catalog: catalog, workflow: wf, command: command}
}

// HandleSlashCommand opens the input modal for the create org command.
func (h *Handler) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) error {
	log := zerolog.Ctx(ctx)

	if cmd.Command != "/"+h.command {
		log.Debug().Str("command", cmd.Command).Msg("Ignoring unknown slash command")
		return nil
	}

	h.workflow.Start(ctx, cmd.UserID)

	modal, err := createOrgModal(h.catalog)
	if err != nil {
		h.replyFailure(ctx, cmd.UserID, "")
		return fmt.Errorf("failed to build modal: %w", err)
	}

	if _, err := h.api.OpenViewContext(ctx, cmd.TriggerID, modal); err != nil {
		h.replyFailure(ctx, cmd.UserID, "")
		return fmt.Errorf("failed to open modal: %w", err)
	}

	return nil
}

// HandleInteraction dispatches a modal submission or a prompt button press.
func (h *Handler) HandleInteraction(ctx context.Context, callback slack.InteractionCallback) error {
	switch callback.Type {
	case slack.InteractionTypeViewSubmission:
		if callback.View.CallbackID != CreateOrgCallbackID {
			return fmt.Errorf("%w: view %s", ErrUnhandledInteraction, callback.View.CallbackID)
		}
		return h.submit(ctx, callback)

	case slack.InteractionTypeBlockActions:
		if len(callback.ActionCallback.BlockActions) == 0 {
			return fmt.Errorf("%w: block actions without an action", ErrUnhandledInteraction)
		}
		return h.action(ctx, callback.Channel.ID, workflow.Action(callback.ActionCallback.BlockActions[0].ActionID))
	}

	return fmt.Errorf("%w: %s", ErrUnhandledInteraction, callback.Type)
}

func (h *Handler) submit(ctx context.Context, callback slack.InteractionCallback) error {
	userID := callback.User.ID

	// the conversation is the requester's direct message channel with the bot
	channel, _, _, err := h.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		// posting to the user ID still reaches their app DM
		h.replyFailure(ctx, userID, userID)
		return fmt.Errorf("failed to open conversation with %s: %w", userID, err)
	}

	businessUnit, teamName := submittedValues(callback.View)

	outcome, err := h.workflow.Submit(ctx, workflow.Submission{
		ConversationID: channel.ID,
		UserID:         userID,
		BusinessUnit:   businessUnit,
		TeamName:       teamName,
	})
	logOutcome(ctx, "submit", outcome)
	return err
}

func (h *Handler) action(ctx context.Context, conversationID string, action workflow.Action) error {
	var (
		outcome workflow.Outcome
		err     error
	)

	switch action {
	case workflow.ActionIdentityConfirmed:
		outcome, err = h.workflow.ConfirmIdentity(ctx, conversationID)
	case workflow.ActionConfirmed:
		outcome, err = h.workflow.Confirm(ctx, conversationID)
	case workflow.ActionCancelled:
		outcome, err = h.workflow.Cancel(ctx, conversationID)
	default:
		return fmt.Errorf("%w: action %s", ErrUnhandledInteraction, action)
	}

	logOutcome(ctx, string(action), outcome)
	return err
}

// replyFailure tells the user their request could not be handled. It posts to
// channelID, or to a newly opened DM when channelID is empty. Errors are only logged.
func (h *Handler) replyFailure(ctx context.Context, userID, channelID string) {
	log := zerolog.Ctx(ctx)

	if channelID == "" {
		if userID == "" {
			return
		}
		channel, _, _, err := h.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users: []string{userID},
		})
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to open conversation for failure reply")
			channelID = userID
		} else {
			channelID = channel.ID
		}
	}

	err := NewNotifier(h.api, h.catalog).Notify(ctx, channelID, workflow.Message{Key: workflow.MsgOrgCreateFailed})
	if err != nil {
		log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to send failure reply")
	}
}

// recipient returns who to answer for an event payload.
func recipient(data any) (userID, channelID string) {
	switch data := data.(type) {
	case slack.SlashCommand:
		return data.UserID, ""
	case slack.InteractionCallback:
		if data.Type == slack.InteractionTypeBlockActions {
			return data.User.ID, data.Channel.ID
		}
		return data.User.ID, ""
	}
	return "", ""
}

func logOutcome(ctx context.Context, event string, outcome workflow.Outcome) {
	zerolog.Ctx(ctx).Debug().
		Str("event", event).
		Str("status", string(outcome.Status)).
		Str("reason", string(outcome.Reason)).
		Msg("Handled event")
}
