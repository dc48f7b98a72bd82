package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgbot/internal/directory"
	"github.com/wolfeidau/orgbot/internal/models"
)

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Config{}, Dependencies{})
	require.ErrorIs(t, err, ErrMissingDependency)
}

func TestSubmit_MissingInput(t *testing.T) {
	tests := []struct {
		name         string
		businessUnit string
		teamName     string
	}{
		{name: "missing business unit", teamName: "payments"},
		{name: "missing team name", businessUnit: "eng"},
		{name: "missing both"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			outcome := f.submit(t, tt.businessUnit, tt.teamName)
			require.Equal(t, StatusRejected, outcome.Status)
			require.Equal(t, ReasonInvalidInput, outcome.Reason)
			require.Equal(t, []string{MsgMissingInput}, f.notifier.keys())
			require.Equal(t, 0, f.dir.total())
			f.requireNoSession(t)
		})
	}
}

func TestSubmit_KnownUserGoesToFinalConfirmation(t *testing.T) {
	f := newFixture(t)

	outcome := f.submit(t, "eng", "payments")
	require.Equal(t, StatusAwaitingFinalConfirmation, outcome.Status)

	msg := f.notifier.last()
	require.Equal(t, testConversation, msg.ConversationID)
	require.Equal(t, MsgPromptCreateConfirm, msg.Key)
	require.Equal(t, "eng-payments", msg.Params["org_name"])
	require.Equal(t, []Action{ActionConfirmed, ActionCancelled}, msg.Actions)

	session, err := f.sessions.Get(context.Background(), testConversation)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingFinalConfirmation, session.State)
	require.Equal(t, testUser, session.RequestingUserID)
}

func TestSubmit_UnknownUserPromptsForSSO(t *testing.T) {
	f := newFixture(t)
	delete(f.dir.users, testEmail)

	outcome := f.submit(t, "eng", "payments")
	require.Equal(t, StatusAwaitingIdentityConfirmation, outcome.Status)

	msg := f.notifier.last()
	require.Equal(t, MsgPromptSSOConfirm, msg.Key)
	require.Equal(t, "Okta", msg.Params["sso_provider_name"])
	require.Equal(t, "https://sso.example.com", msg.Params["sso_provider_link"])
	require.Equal(t, []Action{ActionIdentityConfirmed, ActionCancelled}, msg.Actions)

	// nothing but the lookup happens before the final confirmation
	require.Equal(t, 1, f.dir.count("LookupUser"))
	require.Equal(t, 0, f.dir.count("OrganisationsByName"))
	require.Equal(t, 0, f.dir.count("CreateOrganisation"))
}

func TestSubmit_LookupFailureTreatedAsAbsent(t *testing.T) {
	f := newFixture(t)
	f.dir.lookupErr = errTransport

	outcome := f.submit(t, "eng", "payments")
	require.Equal(t, StatusAwaitingIdentityConfirmation, outcome.Status)
	require.Equal(t, MsgPromptSSOConfirm, f.notifier.last().Key)
}

func TestSubmit_EmailResolutionFailureTreatedAsAbsent(t *testing.T) {
	f := newFixture(t)
	f.identity.err = errors.New("users.info failed")

	outcome := f.submit(t, "eng", "payments")
	require.Equal(t, StatusAwaitingIdentityConfirmation, outcome.Status)
	require.Equal(t, 0, f.dir.count("LookupUser"))
}

func TestSubmit_ReplacesExistingSession(t *testing.T) {
	f := newFixture(t)

	f.submit(t, "eng", "payments")
	first, err := f.sessions.Get(context.Background(), testConversation)
	require.NoError(t, err)

	f.submit(t, "eng", "billing")
	second, err := f.sessions.Get(context.Background(), testConversation)
	require.NoError(t, err)

	require.Equal(t, 1, f.sessions.Len())
	require.NotEqual(t, first.RequestID, second.RequestID)
	require.Equal(t, "eng-billing", second.OrgName())
}

func TestConfirm_Success(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.Equal(t, ReasonNone, outcome.Reason)
	require.True(t, outcome.AdminAssigned)
	require.NotNil(t, outcome.Organisation)

	require.Equal(t, []string{"eng-payments"}, f.dir.created)
	require.Equal(t, []string{"org-new/snyk-u1/admin"}, f.dir.added)

	require.Equal(t, []string{MsgOrgCreated}, f.notifier.keys())
	msg := f.notifier.last()
	require.Equal(t, "eng-payments", msg.Params["org_name"])
	require.Equal(t, "org-new", msg.Params["org_id"])
	require.Equal(t, "https://app.snyk.io/org/eng-payments", msg.Params["result_url"])

	f.requireNoSession(t)
}

func TestConfirm_PolicyMismatchMakesNoRemoteCalls(t *testing.T) {
	tests := []struct {
		name         string
		businessUnit string
		teamName     string
	}{
		{name: "business unit", businessUnit: "Eng", teamName: "payments"},
		{name: "team name", businessUnit: "eng", teamName: "pay_ments"},
		{name: "partial match is not enough", businessUnit: "eng1", teamName: "payments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.submit(t, tt.businessUnit, tt.teamName)
			f.dir.reset()
			f.notifier.reset()

			outcome := f.confirm(t)
			require.Equal(t, StatusRejected, outcome.Status)
			require.Equal(t, ReasonPolicyMismatch, outcome.Reason)
			require.Equal(t, 0, f.dir.total())
			require.Equal(t, []string{MsgOrgPolicy}, f.notifier.keys())
			f.requireNoSession(t)
		})
	}
}

func TestConfirm_DuplicateRejectedWithAdmins(t *testing.T) {
	f := newFixture(t)
	f.dir.existing["eng-payments"] = []string{"org-old"}
	f.dir.admins = []models.DirectoryUser{
		{ID: "a1", Email: "bob@example.com", Role: models.RoleAdmin},
		{ID: "a2", Email: "carol@example.com", Role: models.RoleAdmin},
	}
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusRejected, outcome.Status)
	require.Equal(t, ReasonDuplicateOrg, outcome.Reason)
	require.Equal(t, "org-old", outcome.Organisation.ID)
	require.Equal(t, 0, f.dir.count("CreateOrganisation"))

	require.Equal(t, []string{MsgOrgAlreadyExists, MsgTellAdminsExistingOrg}, f.notifier.keys())
	require.Equal(t, "bob@example.com, carol@example.com", f.notifier.last().Params["admins_str"])
	f.requireNoSession(t)
}

func TestConfirm_DuplicateWithoutAdmins(t *testing.T) {
	f := newFixture(t)
	f.dir.existing["eng-payments"] = []string{"org-old"}
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, ReasonDuplicateOrg, outcome.Reason)
	require.Equal(t, []string{MsgOrgAlreadyExists, MsgOrgNoAdmins}, f.notifier.keys())
}

func TestConfirm_DuplicatesAllowedSkipsCheck(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.AllowDuplicateOrgNames = true })
	f.dir.existing["eng-payments"] = []string{"org-old"}
	f.submit(t, "eng", "payments")

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.Equal(t, 0, f.dir.count("OrganisationsByName"))
	require.Equal(t, 1, f.dir.count("CreateOrganisation"))
}

func TestConfirm_DuplicateQueryFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.dir.existingErr = errTransport
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusRejected, outcome.Status)
	require.Equal(t, ReasonCreationFailed, outcome.Reason)
	require.Equal(t, 0, f.dir.count("CreateOrganisation"))
	require.Equal(t, []string{MsgOrgCreateFailed}, f.notifier.keys())
}

func TestConfirm_CreateConflictIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.dir.createErr = fmt.Errorf("create org: %w", directory.ErrAlreadyExists)
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusRejected, outcome.Status)
	require.Equal(t, ReasonDuplicateOrg, outcome.Reason)
	require.Equal(t, MsgOrgAlreadyExists, f.notifier.keys()[0])
	require.Equal(t, 0, f.dir.count("AddUserToOrganisation"))
	f.requireNoSession(t)
}

func TestConfirm_CreateFailures(t *testing.T) {
	tests := []struct {
		name string
		stub func(*stubDirectory)
	}{
		{name: "transport error", stub: func(s *stubDirectory) { s.createErr = errTransport }},
		{name: "empty response", stub: func(s *stubDirectory) { s.createErr = directory.ErrEmptyResponse }},
		{name: "api error", stub: func(s *stubDirectory) {
			s.createErr = &directory.APIError{Method: "POST", Path: "/org", StatusCode: 500}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.stub(f.dir)
			f.submit(t, "eng", "payments")
			f.notifier.reset()

			outcome := f.confirm(t)
			require.Equal(t, StatusRejected, outcome.Status)
			require.Equal(t, ReasonCreationFailed, outcome.Reason)
			require.Equal(t, []string{MsgOrgCreateFailed}, f.notifier.keys())
			require.Equal(t, 0, f.dir.count("AddUserToOrganisation"))
			f.requireNoSession(t)
		})
	}
}

func TestConfirm_IdentityStillMissing(t *testing.T) {
	f := newFixture(t)
	delete(f.dir.users, testEmail)
	f.submit(t, "eng", "payments")

	_, err := f.orc.ConfirmIdentity(context.Background(), testConversation)
	require.NoError(t, err)
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusRejected, outcome.Status)
	require.Equal(t, ReasonIdentityNotFound, outcome.Reason)
	require.Equal(t, 0, f.dir.count("CreateOrganisation"))
	require.Equal(t, []string{MsgDirectoryUserNotFound}, f.notifier.keys())
	require.Equal(t, "Okta", f.notifier.last().Params["sso_provider_name"])
	f.requireNoSession(t)
}

func TestConfirm_AfterSSOSignIn(t *testing.T) {
	f := newFixture(t)
	delete(f.dir.users, testEmail)
	f.submit(t, "eng", "payments")

	outcome, err := f.orc.ConfirmIdentity(context.Background(), testConversation)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingFinalConfirmation, outcome.Status)
	require.Equal(t, MsgPromptCreateConfirm, f.notifier.last().Key)

	// the user signs in before pressing confirm
	f.dir.users[testEmail] = &models.DirectoryUser{ID: "snyk-u1", Email: testEmail}

	outcome = f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.Equal(t, []string{"eng-payments"}, f.dir.created)
}

func TestConfirm_UsesIdentityResolvedAtConfirmTime(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "eng", "payments")

	// the requester's email changes in Slack before they confirm
	f.identity.emails[testUser] = "alice.new@example.com"
	f.dir.users["alice.new@example.com"] = &models.DirectoryUser{ID: "snyk-u2", Email: "alice.new@example.com"}

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.Equal(t, []string{"eng-payments"}, f.dir.created)
	require.Equal(t, []string{"org-new/snyk-u2/admin"}, f.dir.added)
}

func TestConfirm_AdminAssignmentFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.dir.addErrs = []error{errTransport, errTransport, errTransport}
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.False(t, outcome.AdminAssigned)
	require.Equal(t, 3, f.dir.count("AddUserToOrganisation"))
	require.Equal(t, []string{MsgOrgCreated, MsgAdminAssignmentFailed}, f.notifier.keys())
	f.requireNoSession(t)
}

func TestConfirm_AdminAssignmentRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.dir.addErrs = []error{errTransport}
	f.submit(t, "eng", "payments")

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.True(t, outcome.AdminAssigned)
	require.Equal(t, 2, f.dir.count("AddUserToOrganisation"))
}

func TestConfirm_AdminAssignmentNotFoundIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.dir.addErrs = []error{directory.ErrNotFound}
	f.submit(t, "eng", "payments")

	outcome := f.confirm(t)
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.False(t, outcome.AdminAssigned)
	require.Equal(t, 1, f.dir.count("AddUserToOrganisation"))
}

func TestConfirm_BeforeIdentityConfirmationIsIgnored(t *testing.T) {
	f := newFixture(t)
	delete(f.dir.users, testEmail)
	f.submit(t, "eng", "payments")
	f.dir.reset()
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusIgnored, outcome.Status)
	require.Equal(t, []string{MsgOutOfOrder}, f.notifier.keys())
	require.Equal(t, 0, f.dir.total())

	session, err := f.sessions.Get(context.Background(), testConversation)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingIdentityConfirmation, session.State)
}

func TestConfirmIdentity_Repeated(t *testing.T) {
	f := newFixture(t)
	delete(f.dir.users, testEmail)
	f.submit(t, "eng", "payments")
	f.dir.reset()

	for range 2 {
		outcome, err := f.orc.ConfirmIdentity(context.Background(), testConversation)
		require.NoError(t, err)
		require.Equal(t, StatusAwaitingFinalConfirmation, outcome.Status)
		require.Equal(t, MsgPromptCreateConfirm, f.notifier.last().Key)
	}
	require.Equal(t, 0, f.dir.total())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "eng", "payments")
	f.dir.reset()
	f.notifier.reset()

	outcome, err := f.orc.Cancel(context.Background(), testConversation)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, outcome.Status)
	require.Equal(t, []string{MsgCancelled}, f.notifier.keys())
	require.Equal(t, 0, f.dir.total())
	f.requireNoSession(t)
}

func TestActionsAfterResolution(t *testing.T) {
	resolvers := map[string]func(*testing.T, *fixture){
		"success": func(t *testing.T, f *fixture) { f.confirm(t) },
		"rejection": func(t *testing.T, f *fixture) {
			f.dir.createErr = errTransport
			f.confirm(t)
		},
		"cancel": func(t *testing.T, f *fixture) {
			_, err := f.orc.Cancel(context.Background(), testConversation)
			require.NoError(t, err)
		},
	}

	for name, resolve := range resolvers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.submit(t, "eng", "payments")
			resolve(t, f)
			f.dir.reset()

			ctx := context.Background()
			actions := []func() (Outcome, error){
				func() (Outcome, error) { return f.orc.Confirm(ctx, testConversation) },
				func() (Outcome, error) { return f.orc.ConfirmIdentity(ctx, testConversation) },
				func() (Outcome, error) { return f.orc.Cancel(ctx, testConversation) },
			}
			for _, action := range actions {
				f.notifier.reset()
				outcome, err := action()
				require.NoError(t, err)
				require.Equal(t, StatusAlreadyResolved, outcome.Status)
				require.Equal(t, []string{MsgAlreadyResolved}, f.notifier.keys())
			}
			require.Equal(t, 0, f.dir.total())
		})
	}
}

func TestConfirm_ExpiredSession(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SessionTTL = time.Hour })
	f.orc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	f.submit(t, "eng", "payments")
	f.notifier.reset()

	outcome := f.confirm(t)
	require.Equal(t, StatusAlreadyResolved, outcome.Status)
	require.Equal(t, []string{MsgAlreadyResolved}, f.notifier.keys())
	require.Equal(t, 0, f.dir.count("CreateOrganisation"))
}

func TestConfirm_ConcurrentConfirmsCreateOnce(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "eng", "payments")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 5)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], _ = f.orc.Confirm(context.Background(), testConversation)
		}()
	}
	wg.Wait()

	succeeded, stale := 0, 0
	for _, o := range outcomes {
		switch o.Status {
		case StatusSucceeded:
			succeeded++
		case StatusAlreadyResolved:
			stale++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 4, stale)
	require.Equal(t, 1, f.dir.count("CreateOrganisation"))
	require.Equal(t, 0, f.orc.locks.len())
}

func TestSweep(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SessionTTL = time.Hour })
	f.orc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	f.submit(t, "eng", "payments")
	require.Equal(t, 1, f.sessions.Len())

	require.Equal(t, 1, f.orc.sweep(context.Background()))
	require.Equal(t, 0, f.sessions.Len())
	require.Equal(t, 0, f.orc.sweep(context.Background()))
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.orc.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
