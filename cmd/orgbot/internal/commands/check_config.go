package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfeidau/orgbot/internal/config"
	"github.com/wolfeidau/orgbot/internal/logger"
	"github.com/wolfeidau/orgbot/internal/messages"
	"github.com/wolfeidau/orgbot/internal/workflow"
)

type CheckConfigCmd struct {
	Config SettingsFlags `embed:""`

	Tokens bool `help:"also require the token environment variables to be set" default:"false"`
}

func (c *CheckConfigCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	settings, err := config.Load(c.Config.Settings)
	if err != nil {
		return err
	}

	if _, err := workflow.NewNamingPolicy(settings.BusinessUnitRegexPattern, settings.TeamNameRegexPattern); err != nil {
		return err
	}

	if c.Tokens {
		var errs []error
		for _, lookup := range []func() (string, error){settings.SlackBotToken, settings.SlackAppToken, settings.SnykToken} {
			if _, err := lookup(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	catalog, err := messages.Load(c.Config.Templates)
	if err != nil {
		return err
	}
	if err := renderAll(catalog); err != nil {
		return err
	}

	log.Info().
		Str("settings", c.Config.Settings).
		Str("templates", c.Config.Templates).
		Strs("groups", catalog.Groups()).
		Msg("Configuration is valid")
	return nil
}

// sampleParams covers every parameter the workflow passes to a template.
var sampleParams = map[string]any{
	"sso_provider_name": "SSO",
	"sso_provider_link": "https://sso.example.com",
	"org_name":          "bu-team",
	"business_unit":     "bu",
	"team_name":         "team",
	"org_id":            "00000000-0000-0000-0000-000000000000",
	"result_url":        "https://app.snyk.io/org/bu-team",
	"new_org_name":      "bu-team",
	"admins_str":        "admin@example.com",
}

// renderAll renders every template so missing or misspelled parameters fail before deployment.
func renderAll(catalog *messages.Catalog) error {
	var errs []error
	for _, group := range catalog.Groups() {
		for _, key := range catalog.Keys(group) {
			if _, err := catalog.Render(group, key, sampleParams); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid message templates: %w", err)
	}
	return nil
}
