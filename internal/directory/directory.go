// Package directory is the client for the remote organisation directory (Snyk).
//
// Callers get typed failures instead of falsy values: ErrNotFound when the
// directory answered and the resource is absent, ErrAlreadyExists when the
// directory rejected a duplicate, and any other error is a transient failure
// (transport, auth, unexpected response shape).
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wolfeidau/orgbot/internal/models"
)

var (
	ErrNotFound      = errors.New("not found in directory")
	ErrAlreadyExists = errors.New("already exists in directory")
	ErrEmptyResponse = errors.New("empty response from directory")
)

// Client is the contract the request orchestrator needs from the directory.
type Client interface {
	// CreateOrganisation creates an organisation under the configured group.
	// Returns ErrAlreadyExists if the directory enforces uniqueness and rejects the name,
	// ErrEmptyResponse if the call succeeded but returned no organisation.
	CreateOrganisation(ctx context.Context, name string) (*models.Organisation, error)

	// OrganisationsByName returns the IDs of organisations whose name matches exactly (case-sensitive).
	// An empty slice means no match.
	OrganisationsByName(ctx context.Context, name string) ([]string, error)

	// OrganisationByName returns the first organisation with the exact name, or ErrNotFound.
	OrganisationByName(ctx context.Context, name string) (*models.Organisation, error)

	// OrganisationAdmins lists members of org holding the admin role.
	OrganisationAdmins(ctx context.Context, org *models.Organisation) ([]models.DirectoryUser, error)

	// LookupUser finds a group member by email, or ErrNotFound.
	LookupUser(ctx context.Context, email string) (*models.DirectoryUser, error)

	// AddUserToOrganisation assigns a user to an organisation with role.
	AddUserToOrganisation(ctx context.Context, orgID, userID, role string) error
}

// APIError is returned when the directory responds with a non-success status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps well known statuses onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	}
	return nil
}

// IsNotFound reports whether the directory answered that the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is a failure to reach or understand the directory,
// as opposed to a definitive answer.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyExists)
}
