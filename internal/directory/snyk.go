package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgbot/internal/client"
	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxErrorBody bounds how much of an error response is kept on APIError.
const maxErrorBody = 4 * 1024

// SnykConfig holds configuration for the Snyk v1 API client.
type SnykConfig struct {
	BaseURL string // e.g. https://api.snyk.io/api/v1
	GroupID string
	Token   string
	Timeout time.Duration

	// HTTPCache enables an RFC 7234 cache for GET requests, kept on disk when
	// CacheDir is set. Responses are only reused while the API marks them fresh.
	HTTPCache bool
	CacheDir  string

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

var _ Client = (*SnykClient)(nil)

// SnykClient implements Client against the Snyk v1 REST API.
type SnykClient struct {
	baseURL *url.URL
	groupID string
	http    *http.Client
}

// NewSnykClient creates a client authenticating with "Authorization: token <token>".
func NewSnykClient(cfg SnykConfig) (*SnykClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("snyk token is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("snyk group id is required")
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid snyk api url %q", cfg.BaseURL)
	}

	return &SnykClient{
		baseURL: base,
		groupID: cfg.GroupID,
		// Snyk expects the "token" scheme rather than "Bearer"
		http: client.NewHTTPClient(client.Config{
			Token:     cfg.Token,
			TokenType: "token",
			Timeout:   cfg.Timeout,
			Cache:     cfg.HTTPCache,
			CacheDir:  cfg.CacheDir,
			Transport: cfg.Transport,
		}),
	}, nil
}

type snykGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type snykOrg struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Slug  string     `json:"slug"`
	URL   string     `json:"url"`
	Group *snykGroup `json:"group"`
}

func (o snykOrg) model() *models.Organisation {
	org := &models.Organisation{
		ID:   o.ID,
		Name: o.Name,
		Slug: o.Slug,
		URL:  o.URL,
	}
	if o.Group != nil {
		org.GroupID = o.Group.ID
	}
	return org
}

type snykMember struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	GroupRole string `json:"groupRole"`
}

func (m snykMember) model() models.DirectoryUser {
	role := m.Role
	if role == "" {
		role = m.GroupRole
	}
	return models.DirectoryUser{
		ID:       m.ID,
		Email:    m.Email,
		Name:     m.Name,
		Username: m.Username,
		Role:     role,
	}
}

// CreateOrganisation creates a new organisation under the configured group.
func (c *SnykClient) CreateOrganisation(ctx context.Context, name string) (*models.Organisation, error) {
	var out snykOrg
	req := map[string]string{"name": name, "groupId": c.groupID}
	if err := c.do(ctx, "create_organisation", http.MethodPost, "/org", req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, ErrEmptyResponse
	}
	return out.model(), nil
}

// OrganisationsByName returns the IDs of every visible organisation named exactly name.
// TODO: restrict matches to the configured group once the scope of duplicate checks is agreed.
func (c *SnykClient) OrganisationsByName(ctx context.Context, name string) ([]string, error) {
	orgs, err := c.listOrgs(ctx, "organisations_by_name")
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, o := range orgs {
		if o.Name == name {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// OrganisationByName returns the first visible organisation named exactly name.
func (c *SnykClient) OrganisationByName(ctx context.Context, name string) (*models.Organisation, error) {
	orgs, err := c.listOrgs(ctx, "organisation_by_name")
	if err != nil {
		return nil, err
	}

	for _, o := range orgs {
		if o.Name == name {
			return o.model(), nil
		}
	}
	return nil, fmt.Errorf("organisation %q: %w", name, ErrNotFound)
}

func (c *SnykClient) listOrgs(ctx context.Context, op string) ([]snykOrg, error) {
	var out struct {
		Orgs []snykOrg `json:"orgs"`
	}
	if err := c.do(ctx, op, http.MethodGet, "/orgs", nil, &out); err != nil {
		return nil, err
	}
	return out.Orgs, nil
}

// OrganisationAdmins lists the admin members of an organisation.
func (c *SnykClient) OrganisationAdmins(ctx context.Context, org *models.Organisation) ([]models.DirectoryUser, error) {
	if org == nil || org.ID == "" {
		return nil, fmt.Errorf("organisation id is required")
	}

	var members []snykMember
	path := "/org/" + url.PathEscape(org.ID) + "/members"
	if err := c.do(ctx, "organisation_admins", http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}

	admins := []models.DirectoryUser{}
	for _, m := range members {
		if m.Role == models.RoleAdmin {
			admins = append(admins, m.model())
		}
	}
	return admins, nil
}

// LookupUser finds a member of the configured group by exact email.
func (c *SnykClient) LookupUser(ctx context.Context, email string) (*models.DirectoryUser, error) {
	var members []snykMember
	path := "/group/" + url.PathEscape(c.groupID) + "/members"
	if err := c.do(ctx, "lookup_user", http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}

	for _, m := range members {
		if m.Email == email {
			u := m.model()
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

// AddUserToOrganisation adds a group member to an organisation with role.
func (c *SnykClient) AddUserToOrganisation(ctx context.Context, orgID, userID, role string) error {
	path := "/group/" + url.PathEscape(c.groupID) + "/org/" + url.PathEscape(orgID) + "/members"
	req := map[string]string{"userId": userID, "role": role}
	return c.do(ctx, "add_user_to_organisation", http.MethodPost, path, req, nil)
}

// do sends a JSON request and decodes a JSON response into out (when non-nil).
func (c *SnykClient) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	started := time.Now()
	defer func() {
		recordCall(ctx, op, started, err)
	}()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory %s failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if client.FromCache(resp) {
		log.Ctx(ctx).Debug().Str("op", op).Msg("Directory response served from cache")
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unexpected %s response: %w", op, err)
	}

	return nil
}

func recordCall(ctx context.Context, op string, started time.Time, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case IsNotFound(err):
		outcome = "not_found"
	case IsTransient(err):
		outcome = "error"
	default:
		outcome = "conflict"
	}

	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	m.DirectoryCallsTotal.Add(ctx, 1, attrs)
	m.DirectoryCallDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)
}
