package workflow

import (
	"fmt"
	"regexp"
)

// NamingPolicy checks the two segments of an organisation name against
// independently configured patterns. Each pattern must match its whole segment.
type NamingPolicy struct {
	businessUnit *regexp.Regexp
	teamName     *regexp.Regexp
}

// NewNamingPolicy compiles the business unit and team name patterns.
func NewNamingPolicy(businessUnitPattern, teamNamePattern string) (*NamingPolicy, error) {
	bu, err := compileFull(businessUnitPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid business unit pattern: %w", err)
	}
	team, err := compileFull(teamNamePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid team name pattern: %w", err)
	}
	return &NamingPolicy{businessUnit: bu, teamName: team}, nil
}

func compileFull(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

// Allows reports whether both raw segments satisfy their patterns.
func (p *NamingPolicy) Allows(businessUnit, teamName string) bool {
	return p.businessUnit.MatchString(businessUnit) && p.teamName.MatchString(teamName)
}

func (p *NamingPolicy) String() string {
	return fmt.Sprintf("business_unit=%s team_name=%s", p.businessUnit, p.teamName)
}
