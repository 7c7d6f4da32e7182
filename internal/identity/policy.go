package identity

import "github.com/StricklySoft/clinic-hub/pkg/auth"

// Operations guarded by the identity service.
const (
	OpListUsers    = "users.list"
	OpPreviewUsers = "users.preview"
)

// RoleReadUsers is the client role that grants the user listing.
const RoleReadUsers = "read_users"

// Policy returns the identity service's authorization table. clientID
// is SERVICE_CLIENT_ID, the client under which read_users is granted.
func Policy(clientID string) auth.Policy {
	return auth.Policy{
		OpListUsers:    auth.ClientRole(clientID, RoleReadUsers),
		OpPreviewUsers: auth.Authenticated,
	}
}
