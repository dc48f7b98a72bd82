// Package workflow drives the org creation conversation: collect input, verify the
// requester's directory identity, confirm, check the naming policy and duplicates,
// create the organisation and make the requester its administrator.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/wolfeidau/orgbot/internal/directory"
	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/store"
)

// MessageGroup is the template group every workflow message key belongs to.
const MessageGroup = "org_creation"

// Message keys emitted by the orchestrator.
const (
	MsgPromptSSOConfirm      = "prompt_sso_confirm"
	MsgPromptCreateConfirm   = "prompt_create_confirm"
	MsgOrgCreated            = "message_org_created"
	MsgAdminAssignmentFailed = "warning_admin_assignment_failed"
	MsgCancelled             = "message_cancelled"
	MsgAlreadyResolved       = "message_already_resolved"
	MsgOutOfOrder            = "message_out_of_order"
	MsgMissingInput          = "error_missing_input"
	MsgOrgPolicy             = "error_org_policy"
	MsgOrgAlreadyExists      = "error_org_already_exists_message"
	MsgTellAdminsExistingOrg = "message_tell_admins_existing_org"
	MsgOrgNoAdmins           = "error_org_no_admins"
	MsgDirectoryUserNotFound = "error_snyk_user_not_found"
	MsgOrgCreateFailed       = "error_org_create"
)

// Action identifies a button the user can press in reply to a prompt.
type Action string

const (
	ActionIdentityConfirmed Action = "action-sso-confirmed"
	ActionConfirmed         Action = "action-confirmed"
	ActionCancelled         Action = "action-cancelled"
)

// Message is a templated reply for the chat transport to render and deliver.
type Message struct {
	Key     string
	Params  map[string]any
	Actions []Action
}

// Status is where a request ended up after handling one event.
type Status string

const (
	StatusAwaitingIdentityConfirmation Status = "awaiting_identity_confirmation"
	StatusAwaitingFinalConfirmation    Status = "awaiting_final_confirmation"
	StatusSucceeded                    Status = "succeeded"
	StatusRejected                     Status = "rejected"
	StatusCancelled                    Status = "cancelled"
	StatusAlreadyResolved              Status = "already_resolved"
	StatusIgnored                      Status = "ignored"
)

// Resolved reports whether the status is terminal for the request.
func (s Status) Resolved() bool {
	switch s {
	case StatusSucceeded, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Reason explains a rejection.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInvalidInput     Reason = "invalid_input"
	ReasonPolicyMismatch   Reason = "policy_mismatch"
	ReasonDuplicateOrg     Reason = "duplicate_org"
	ReasonIdentityNotFound Reason = "identity_not_found"
	ReasonCreationFailed   Reason = "creation_failed"
)

// Outcome is the observable result of handling one event.
type Outcome struct {
	Status Status
	Reason Reason

	// Organisation is the created org on success, or the existing org on a duplicate rejection.
	Organisation *models.Organisation

	// AdminAssigned is false when the org was created but the requester could not be made admin.
	AdminAssigned bool
}

// Submission is the content of the submitted input form.
type Submission struct {
	ConversationID string
	UserID         string
	BusinessUnit   string
	TeamName       string
}

// Notifier delivers messages to a conversation.
type Notifier interface {
	Notify(ctx context.Context, conversationID string, msg Message) error
}

// IdentityResolver resolves a chat user to the email address used in the directory.
type IdentityResolver interface {
	Email(ctx context.Context, userID string) (string, error)
}

// Config is immutable workflow configuration.
type Config struct {
	AllowDuplicateOrgNames bool
	SSOProviderName        string
	SSOSignInLink          string

	// SessionTTL bounds how long an abandoned conversation keeps its session. Zero never expires.
	SessionTTL time.Duration

	// AdminAssignmentAttempts is the total number of tries for adding the requester as admin.
	AdminAssignmentAttempts int
	// AdminAssignmentBackoff is the initial retry interval.
	AdminAssignmentBackoff time.Duration
}

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing workflow dependency")

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Sessions  store.SessionStore
	Directory directory.Client
	Identity  IdentityResolver
	Notifier  Notifier
	Policy    *NamingPolicy
}
