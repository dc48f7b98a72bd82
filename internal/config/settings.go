package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSettingsPath = "/opt/settings.yaml"
	DefaultSnykAPIURL   = "https://api.snyk.io/api/v1"
)

var ErrMissingToken = errors.New("token environment variable is not set")

// Settings is the bot configuration loaded once at startup from a YAML file.
// It is treated as immutable for the lifetime of the process.
type Settings struct {
	SlackBotTokenEnvVarName string `yaml:"slack_bot_token_env_var_name"`
	SlackAppTokenEnvVarName string `yaml:"slack_app_token_env_var_name"`
	SnykTokenEnvVarName     string `yaml:"snyk_token_env_var_name"`

	SnykGroupID string `yaml:"snyk_group_id"`
	SnykAPIURL  string `yaml:"snyk_api_url"`

	AllowDuplicateOrgNames   bool   `yaml:"allow_duplicate_org_names"`
	BusinessUnitRegexPattern string `yaml:"business_unit_regex_pattern"`
	TeamNameRegexPattern     string `yaml:"team_name_regex_pattern"`

	CommandCreateOrg string `yaml:"command_create_org"`
	SSOSignInLink    string `yaml:"sso_sign_in_link"`
	SSOProviderName  string `yaml:"sso_provider_name"`

	SessionTTL              time.Duration `yaml:"session_ttl"`
	AdminAssignmentAttempts int           `yaml:"admin_assignment_attempts"`
	DirectoryTimeout        time.Duration `yaml:"directory_timeout"`
}

// Load reads, defaults and validates settings from a YAML file.
// Unknown keys are rejected so typos surface at startup.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings file: %w", err)
	}
	defer f.Close()

	var s Settings
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	s.ApplyDefaults()

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings file %s: %w", path, err)
	}

	return &s, nil
}

// ApplyDefaults applies default values to unset fields.
func (s *Settings) ApplyDefaults() {
	if s.SnykAPIURL == "" {
		s.SnykAPIURL = DefaultSnykAPIURL
	}
	if s.CommandCreateOrg == "" {
		s.CommandCreateOrg = "createorg"
	}
	if s.SessionTTL == 0 {
		s.SessionTTL = 24 * time.Hour
	}
	if s.AdminAssignmentAttempts == 0 {
		s.AdminAssignmentAttempts = 3
	}
	if s.DirectoryTimeout == 0 {
		s.DirectoryTimeout = 30 * time.Second
	}
}

// Validate checks required settings and that both naming patterns compile.
func (s *Settings) Validate() error {
	var errs []error

	required := map[string]string{
		"slack_bot_token_env_var_name": s.SlackBotTokenEnvVarName,
		"slack_app_token_env_var_name": s.SlackAppTokenEnvVarName,
		"snyk_token_env_var_name":      s.SnykTokenEnvVarName,
		"snyk_group_id":                s.SnykGroupID,
		"business_unit_regex_pattern":  s.BusinessUnitRegexPattern,
		"team_name_regex_pattern":      s.TeamNameRegexPattern,
		"sso_provider_name":            s.SSOProviderName,
		"sso_sign_in_link":             s.SSOSignInLink,
	}
	for _, key := range requiredOrder {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if s.BusinessUnitRegexPattern != "" {
		if _, err := regexp.Compile(s.BusinessUnitRegexPattern); err != nil {
			errs = append(errs, fmt.Errorf("business_unit_regex_pattern: %w", err))
		}
	}
	if s.TeamNameRegexPattern != "" {
		if _, err := regexp.Compile(s.TeamNameRegexPattern); err != nil {
			errs = append(errs, fmt.Errorf("team_name_regex_pattern: %w", err))
		}
	}

	if s.SessionTTL < 0 {
		errs = append(errs, errors.New("session_ttl must not be negative"))
	}
	if s.AdminAssignmentAttempts < 1 {
		errs = append(errs, errors.New("admin_assignment_attempts must be at least 1"))
	}
	if s.DirectoryTimeout < 0 {
		errs = append(errs, errors.New("directory_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// stable error ordering for Validate
var requiredOrder = []string{
	"slack_bot_token_env_var_name",
	"slack_app_token_env_var_name",
	"snyk_token_env_var_name",
	"snyk_group_id",
	"business_unit_regex_pattern",
	"team_name_regex_pattern",
	"sso_provider_name",
	"sso_sign_in_link",
}

// SlackBotToken returns the Slack bot token from the configured environment variable.
func (s *Settings) SlackBotToken() (string, error) {
	return lookupToken(s.SlackBotTokenEnvVarName)
}

// SlackAppToken returns the Slack app-level (Socket Mode) token.
func (s *Settings) SlackAppToken() (string, error) {
	return lookupToken(s.SlackAppTokenEnvVarName)
}

// SnykToken returns the directory API token.
func (s *Settings) SnykToken() (string, error) {
	return lookupToken(s.SnykTokenEnvVarName)
}

func lookupToken(envVar string) (string, error) {
	v, ok := os.LookupEnv(envVar)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingToken, envVar)
	}
	return v, nil
}
