package slackbot

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoEmail is returned when a user's Slack profile carries no email address.
var ErrNoEmail = errors.New("slack profile has no email")

// IdentityResolver reads a user's email address from their Slack profile.
// Requires the users:read.email scope.
type IdentityResolver struct {
	api API
}

// NewIdentityResolver returns a resolver backed by the Slack Web API.
func NewIdentityResolver(api API) *IdentityResolver {
	return &IdentityResolver{api: api}
}

// Email returns the profile email of the Slack user, or ErrNoEmail when it is unset.
func (r *IdentityResolver) Email(ctx context.Context, userID string) (string, error) {
	user, err := r.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user info for %s: %w", userID, err)
	}
	if user.Profile.Email == "" {
		return "", fmt.Errorf("user %s: %w", userID, ErrNoEmail)
	}
	return user.Profile.Email, nil
}
