// Package slackbot connects the org creation workflow to Slack over Socket Mode.
//
// The slash command opens an input modal, the modal submission starts a request in
// the requester's direct message conversation and prompt buttons drive it to completion.
package slackbot

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the subset of the Slack Web API the bot calls. *slack.Client implements it.
type API interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

var _ API = (*slack.Client)(nil)
