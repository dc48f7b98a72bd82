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
	"github.com/wolfeidau/orgbot/internal/store/memory"
)

var errTransport = errors.New("dial tcp: connection refused")

// stubDirectory is a directory.Client with canned answers and per-method call counts.
type stubDirectory struct {
	mu    sync.Mutex
	calls map[string]int

	users       map[string]*models.DirectoryUser // email -> user
	lookupErr   error
	existing    map[string][]string // name -> org ids
	existingErr error
	admins      []models.DirectoryUser
	created     []string
	createOrg   *models.Organisation
	createErr   error
	addErrs     []error // returned in order, then nil
	added       []string
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		calls:    make(map[string]int),
		users:    make(map[string]*models.DirectoryUser),
		existing: make(map[string][]string),
	}
}

func (s *stubDirectory) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *stubDirectory) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubDirectory) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *stubDirectory) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *stubDirectory) CreateOrganisation(ctx context.Context, name string) (*models.Organisation, error) {
	s.record("CreateOrganisation")
	s.created = append(s.created, name)
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.createOrg != nil {
		return s.createOrg, nil
	}
	return &models.Organisation{ID: "org-new", Name: name, URL: "https://app.snyk.io/org/" + name}, nil
}

func (s *stubDirectory) OrganisationsByName(ctx context.Context, name string) ([]string, error) {
	s.record("OrganisationsByName")
	if s.existingErr != nil {
		return nil, s.existingErr
	}
	return s.existing[name], nil
}

func (s *stubDirectory) OrganisationByName(ctx context.Context, name string) (*models.Organisation, error) {
	s.record("OrganisationByName")
	ids := s.existing[name]
	if len(ids) == 0 {
		return nil, directory.ErrNotFound
	}
	return &models.Organisation{ID: ids[0], Name: name}, nil
}

func (s *stubDirectory) OrganisationAdmins(ctx context.Context, org *models.Organisation) ([]models.DirectoryUser, error) {
	s.record("OrganisationAdmins")
	return s.admins, nil
}

func (s *stubDirectory) LookupUser(ctx context.Context, email string) (*models.DirectoryUser, error) {
	s.record("LookupUser")
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	u, ok := s.users[email]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", email, directory.ErrNotFound)
	}
	return u, nil
}

func (s *stubDirectory) AddUserToOrganisation(ctx context.Context, orgID, userID, role string) error {
	s.record("AddUserToOrganisation")
	if len(s.addErrs) > 0 {
		err := s.addErrs[0]
		s.addErrs = s.addErrs[1:]
		return err
	}
	s.added = append(s.added, orgID+"/"+userID+"/"+role)
	return nil
}

type stubIdentity struct {
	emails map[string]string
	err    error
}

func (s *stubIdentity) Email(ctx context.Context, userID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	email, ok := s.emails[userID]
	if !ok {
		return "", fmt.Errorf("no profile for %s", userID)
	}
	return email, nil
}

type sentMessage struct {
	ConversationID string
	Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingNotifier) Notify(ctx context.Context, conversationID string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{ConversationID: conversationID, Message: msg})
	return nil
}

func (r *recordingNotifier) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.sent))
	for _, m := range r.sent {
		keys = append(keys, m.Key)
	}
	return keys
}

func (r *recordingNotifier) last() sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type fixture struct {
	orc      *Orchestrator
	dir      *stubDirectory
	identity *stubIdentity
	notifier *recordingNotifier
	sessions *memory.SessionStore
}

const (
	testConversation = "D123"
	testUser         = "U123"
	testEmail        = "alice@example.com"
)

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	cfg := Config{
		SSOProviderName:         "Okta",
		SSOSignInLink:           "https://sso.example.com",
		AdminAssignmentAttempts: 3,
		AdminAssignmentBackoff:  time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	policy, err := NewNamingPolicy("[a-z]+", "[a-z0-9-]+")
	require.NoError(t, err)

	f := &fixture{
		dir:      newStubDirectory(),
		identity: &stubIdentity{emails: map[string]string{testUser: testEmail}},
		notifier: &recordingNotifier{},
		sessions: memory.NewSessionStore(),
	}
	f.dir.users[testEmail] = &models.DirectoryUser{ID: "snyk-u1", Email: testEmail}

	f.orc, err = New(cfg, Dependencies{
		Sessions:  f.sessions,
		Directory: f.dir,
		Identity:  f.identity,
		Notifier:  f.notifier,
		Policy:    policy,
	})
	require.NoError(t, err)

	return f
}

func (f *fixture) submit(t *testing.T, businessUnit, teamName string) Outcome {
	t.Helper()
	outcome, err := f.orc.Submit(context.Background(), Submission{
		ConversationID: testConversation,
		UserID:         testUser,
		BusinessUnit:   businessUnit,
		TeamName:       teamName,
	})
	require.NoError(t, err)
	return outcome
}

func (f *fixture) confirm(t *testing.T) Outcome {
	t.Helper()
	outcome, err := f.orc.Confirm(context.Background(), testConversation)
	require.NoError(t, err)
	return outcome
}

func (f *fixture) requireNoSession(t *testing.T) {
	t.Helper()
	_, err := f.sessions.Get(context.Background(), testConversation)
	require.Error(t, err)
	require.Equal(t, 0, f.sessions.Len())
}
