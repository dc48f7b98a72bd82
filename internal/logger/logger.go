package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the process logger, installs it as the global and default context
// logger, and returns it. Debug mode switches to a console writer with stack traces.
func Setup(debug bool) zerolog.Logger {
	return setup(os.Stderr, debug)
}

func setup(out io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()

	if debug {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger

	return logger
}

// WithConversation returns a context whose logger carries the conversation and user IDs
// of a chat event.
func WithConversation(ctx context.Context, conversationID, userID string) context.Context {
	c := zerolog.Ctx(ctx).With()
	if conversationID != "" {
		c = c.Str("conversation_id", conversationID)
	}
	if userID != "" {
		c = c.Str("user_id", userID)
	}
	l := c.Logger()
	return l.WithContext(ctx)
}

// WithRequest adds the request ID of an org creation request to the context logger.
func WithRequest(ctx context.Context, requestID uuid.UUID) context.Context {
	l := zerolog.Ctx(ctx).With().Str("request_id", requestID.String()).Logger()
	return l.WithContext(ctx)
}
