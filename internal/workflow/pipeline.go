package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgbot/internal/directory"
	"github.com/wolfeidau/orgbot/internal/models"
	"github.com/wolfeidau/orgbot/internal/telemetry"
)

// create runs the creation pipeline for a confirmed session, short-circuiting on
// the first failure. It returns the outcome and the replies to send once the
// session has been discarded.
func (o *Orchestrator) create(ctx context.Context, session *models.Session) (Outcome, []Message) {
	log := zerolog.Ctx(ctx)
	req := models.OrgCreationRequest{BusinessUnit: session.BusinessUnit, TeamName: session.TeamName}
	name := req.OrgName()

	if !o.policy.Allows(req.BusinessUnit, req.TeamName) {
		log.Warn().
			Str("org_name", name).
			Stringer("policy", o.policy).
			Msg("Requested org name does not match naming policy")
		return Outcome{Status: StatusRejected, Reason: ReasonPolicyMismatch}, []Message{{Key: MsgOrgPolicy}}
	}

	if !o.cfg.AllowDuplicateOrgNames {
		ids, err := o.directory.OrganisationsByName(ctx, name)
		if err != nil {
			log.Error().Err(err).Str("org_name", name).Msg("Duplicate org check failed")
			return creationFailed()
		}
		if len(ids) > 0 {
			log.Warn().
				Str("org_name", name).
				Strs("existing_org_ids", ids).
				Msg("Org already exists and duplicate names are not allowed, rejecting")
			return o.duplicate(ctx, name)
		}
	}

	user := o.verifyIdentity(ctx, session.RequestingUserID)
	if user == nil {
		log.Warn().Msg("Requester still has no directory user despite SSO sign in confirmation")
		return Outcome{Status: StatusRejected, Reason: ReasonIdentityNotFound}, []Message{{
			Key:    MsgDirectoryUserNotFound,
			Params: map[string]any{"sso_provider_name": o.cfg.SSOProviderName},
		}}
	}

	// identity is taken from the confirm time lookup, never from the session
	req.RequestingUserEmail = user.Email
	req.RequestingUserDirectoryID = user.ID

	log.Info().
		Str("org_name", name).
		Str("requester_email", req.RequestingUserEmail).
		Msg("Creating org")

	org, err := o.directory.CreateOrganisation(ctx, req.OrgName())
	switch {
	case errors.Is(err, directory.ErrAlreadyExists):
		log.Warn().Err(err).Str("org_name", name).Msg("Directory rejected org name as a duplicate")
		return o.duplicate(ctx, name)
	case errors.Is(err, directory.ErrEmptyResponse), err == nil && org == nil:
		log.Error().Str("org_name", name).Msg("Directory returned an empty result creating org")
		return creationFailed()
	case err != nil:
		log.Error().Err(err).Str("org_name", name).Msg("Directory call to create org failed")
		return creationFailed()
	}

	log.Info().Str("org_name", org.Name).Str("org_id", org.ID).Msg("Org creation successful")

	outcome := Outcome{Status: StatusSucceeded, Organisation: org, AdminAssigned: true}
	msgs := []Message{{
		Key: MsgOrgCreated,
		Params: map[string]any{
			"org_name":   org.Name,
			"org_id":     org.ID,
			"result_url": org.URL,
		},
	}}

	// The org exists now, so a failed admin assignment degrades the result but never fails it.
	if err := o.assignAdmin(ctx, org.ID, req.RequestingUserDirectoryID); err != nil {
		log.Warn().
			Err(err).
			Str("org_id", org.ID).
			Str("directory_user_id", req.RequestingUserDirectoryID).
			Msg("Failed to add requester as org admin")
		telemetry.GetMetrics().AdminAssignmentFailures.Add(ctx, 1)
		outcome.AdminAssigned = false
		msgs = append(msgs, Message{
			Key:    MsgAdminAssignmentFailed,
			Params: map[string]any{"org_name": org.Name},
		})
	}

	return outcome, msgs
}

// duplicate builds the rejection for an existing org, including admin contacts when any exist.
func (o *Orchestrator) duplicate(ctx context.Context, name string) (Outcome, []Message) {
	log := zerolog.Ctx(ctx)
	outcome := Outcome{Status: StatusRejected, Reason: ReasonDuplicateOrg}
	msgs := []Message{{
		Key:    MsgOrgAlreadyExists,
		Params: map[string]any{"new_org_name": name},
	}}

	org, err := o.directory.OrganisationByName(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("org_name", name).Msg("Failed to look up existing org")
		return outcome, append(msgs, Message{Key: MsgOrgNoAdmins})
	}
	outcome.Organisation = org

	admins, err := o.directory.OrganisationAdmins(ctx, org)
	if err != nil {
		log.Warn().Err(err).Str("org_id", org.ID).Msg("Failed to list admins of existing org")
	}

	for _, a := range admins {
		org.AdminEmails = append(org.AdminEmails, a.Email)
	}

	if len(org.AdminEmails) == 0 {
		log.Warn().Str("org_name", name).Msg("Existing org has no admins, cannot proceed")
		return outcome, append(msgs, Message{Key: MsgOrgNoAdmins})
	}

	adminsStr := strings.Join(org.AdminEmails, ", ")
	log.Info().Str("org_name", name).Str("admins", adminsStr).Msg("Found existing admins")
	return outcome, append(msgs, Message{
		Key:    MsgTellAdminsExistingOrg,
		Params: map[string]any{"admins_str": adminsStr},
	})
}

// assignAdmin adds the requester to the new org as admin, retrying with exponential backoff.
func (o *Orchestrator) assignAdmin(ctx context.Context, orgID, userID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.AdminAssignmentBackoff
	b.MaxInterval = 10 * o.cfg.AdminAssignmentBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := o.directory.AddUserToOrganisation(ctx, orgID, userID, models.RoleAdmin)
		if directory.IsNotFound(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(o.cfg.AdminAssignmentAttempts)),
		backoff.WithMaxElapsedTime(time.Minute),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().AdminAssignmentRetries.Add(ctx, 1)
			zerolog.Ctx(ctx).Debug().Err(err).Dur("next_retry", next).Msg("Admin assignment failed, will retry")
		}),
	)
	return err
}

func creationFailed() (Outcome, []Message) {
	return Outcome{Status: StatusRejected, Reason: ReasonCreationFailed}, []Message{{Key: MsgOrgCreateFailed}}
}
