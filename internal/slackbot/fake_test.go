package slackbot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

// postedText decodes the text of a posted message.
func postedText(t *testing.T, msg postedMessage) string {
	t.Helper()
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", msg.ChannelID, slack.APIURL, msg.Options...)
	require.NoError(t, err)
	return values.Get("text")
}

type postedMessage struct {
	ChannelID string
	Options   []slack.MsgOption
}

// fakeAPI records Slack Web API calls.
type fakeAPI struct {
	mu sync.Mutex

	views    []slack.ModalViewRequest
	triggers []string
	posted   []postedMessage
	opened   [][]string
	users    map[string]*slack.User

	openViewErr error
	openErr     error
	postErr     error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{users: make(map[string]*slack.User)}
}

func (f *fakeAPI) OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openViewErr != nil {
		return nil, f.openViewErr
	}
	f.triggers = append(f.triggers, triggerID)
	f.views = append(f.views, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeAPI) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	u, ok := f.users[user]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return u, nil
}

func (f *fakeAPI) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, false, false, f.openErr
	}
	f.opened = append(f.opened, params.Users)
	ch := &slack.Channel{}
	ch.ID = "D-" + params.Users[0]
	return ch, false, false, nil
}

func (f *fakeAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.posted = append(f.posted, postedMessage{ChannelID: channelID, Options: options})
	return channelID, "1700000000.000100", nil
}

type workflowCall struct {
	Op             string
	ConversationID string
	Submission     workflow.Submission
}

// fakeWorkflow records the events the handler dispatches.
type fakeWorkflow struct {
	mu    sync.Mutex
	calls []workflowCall
	err   error
	panic bool
}

func (f *fakeWorkflow) record(c workflowCall) (workflow.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("workflow exploded")
	}
	f.calls = append(f.calls, c)
	return workflow.Outcome{Status: workflow.StatusIgnored}, f.err
}

func (f *fakeWorkflow) Start(ctx context.Context, userID string) {
	_, _ = f.record(workflowCall{Op: "start"})
}

func (f *fakeWorkflow) Submit(ctx context.Context, sub workflow.Submission) (workflow.Outcome, error) {
	return f.record(workflowCall{Op: "submit", ConversationID: sub.ConversationID, Submission: sub})
}

func (f *fakeWorkflow) ConfirmIdentity(ctx context.Context, conversationID string) (workflow.Outcome, error) {
	return f.record(workflowCall{Op: "confirm_identity", ConversationID: conversationID})
}

func (f *fakeWorkflow) Confirm(ctx context.Context, conversationID string) (workflow.Outcome, error) {
	return f.record(workflowCall{Op: "confirm", ConversationID: conversationID})
}

func (f *fakeWorkflow) Cancel(ctx context.Context, conversationID string) (workflow.Outcome, error) {
	return f.record(workflowCall{Op: "cancel", ConversationID: conversationID})
}
