package slackbot

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Bot receives events over a Socket Mode connection and hands them to a Handler.
type Bot struct {
	client  *socketmode.Client
	handler *Handler
}

// NewBot creates a Bot for an API client configured with an app level token.
func NewBot(api *slack.Client, handler *Handler, verbose bool) *Bot {
	return &Bot{
		client:  socketmode.New(api, socketmode.OptionDebug(verbose)),
		handler: handler,
	}
}

// Run processes events until ctx is done or the connection fails permanently.
func (b *Bot) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.client.RunContext(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("socket mode connection failed: %w", err)
			}
			return nil
		case evt := <-b.client.Events:
			b.dispatch(ctx, evt)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		log.Info().Msg("Connecting to Slack with Socket Mode")
		return
	case socketmode.EventTypeConnected:
		log.Info().Msg("Connected to Slack with Socket Mode")
		return
	case socketmode.EventTypeConnectionError:
		log.Warn().Interface("data", evt.Data).Msg("Slack connection failed, retrying")
		return
	case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
	default:
		log.Debug().Str("type", string(evt.Type)).Msg("Ignoring Socket Mode event")
		return
	}

	// acknowledge before handling, Slack expects an answer within three seconds
	if evt.Request != nil {
		b.client.Ack(*evt.Request)
	}

	go b.handle(ctx, evt)
}

func (b *Bot) handle(ctx context.Context, evt socketmode.Event) {
	logger := log.With().Str("event_type", string(evt.Type)).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic handling Slack event")
			userID, channelID := recipient(evt.Data)
			b.handler.replyFailure(ctx, userID, channelID)
		}
	}()

	if err := handleEvent(ctx, b.handler, evt); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to handle Slack event")
	}
}

func handleEvent(ctx context.Context, handler *Handler, evt socketmode.Event) error {
	switch data := evt.Data.(type) {
	case slack.SlashCommand:
		return handler.HandleSlashCommand(ctx, data)
	case slack.InteractionCallback:
		return handler.HandleInteraction(ctx, data)
	}
	return fmt.Errorf("%w: payload %T", ErrUnhandledInteraction, evt.Data)
}
