package models

// RoleAdmin is the directory role granted to the requester of a new organisation.
const RoleAdmin = "admin"

// Organisation is a transient copy of an organisation owned by the remote
// directory. It is never cached beyond the lifetime of a single request.
type Organisation struct {
	ID          string
	Name        string
	Slug        string
	URL         string
	GroupID     string
	AdminEmails []string
}

// DirectoryUser is a user known to the remote directory. Looked up, never mutated.
type DirectoryUser struct {
	ID       string
	Email    string
	Name     string
	Username string
	Role     string
}

// OrgCreationRequest is derived from a Session at confirmation time and is not persisted.
type OrgCreationRequest struct {
	BusinessUnit              string
	TeamName                  string
	RequestingUserEmail       string
	RequestingUserDirectoryID string
}

// OrgName returns the organisation name exactly as submitted, with no normalisation.
func (r OrgCreationRequest) OrgName() string {
	return OrgName(r.BusinessUnit, r.TeamName)
}

// OrgName joins a business unit and team name into an organisation name.
func OrgName(businessUnit, teamName string) string {
	return businessUnit + "-" + teamName
}
