package shared

// Role classifies what an actor may do inside the core.
type Role string

const (
	// RoleClerk may submit adjustment requests and read reports.
	RoleClerk Role = "clerk"
	// RoleReviewer may additionally approve or reject adjustment requests.
	RoleReviewer Role = "reviewer"
	// RoleAdmin holds every permission.
	RoleAdmin Role = "admin"
)

// Actor identifies the authenticated user on whose behalf a call runs.
// Identity is established by an external collaborator; the core trusts it
// and only enforces role checks.
type Actor struct {
	UserID      string
	DisplayName string
	Role        Role
	AgencyID    string
}

// CanReview reports whether the actor holds an approval-capable role.
func (a Actor) CanReview() bool {
	return a.Role == RoleReviewer || a.Role == RoleAdmin
}

// Known reports whether the actor carries a usable identity.
func (a Actor) Known() bool {
	return a.UserID != ""
}
