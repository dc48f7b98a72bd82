package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/wolfeidau/orgbot/internal/messages"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

// Notifier posts workflow messages to a Slack conversation.
type Notifier struct {
	api     API
	catalog *messages.Catalog
}

// NewNotifier creates a Notifier rendering text from catalog.
func NewNotifier(api API, catalog *messages.Catalog) *Notifier {
	return &Notifier{api: api, catalog: catalog}
}

// Notify renders msg and posts it, with buttons for any actions it offers.
func (n *Notifier) Notify(ctx context.Context, conversationID string, msg workflow.Message) error {
	text, err := n.catalog.Render(workflow.MessageGroup, msg.Key, msg.Params)
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	blocks, err := messageBlocks(n.catalog, text, msg.Actions)
	if err != nil {
		return fmt.Errorf("failed to build message blocks: %w", err)
	}

	_, _, err = n.api.PostMessageContext(ctx, conversationID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("failed to post message %s: %w", msg.Key, err)
	}

	return nil
}
