package auth

import (
	"fmt"
	"maps"
	"slices"

	"github.com/StricklySoft/clinic-hub/pkg/claims"
)

// HasClientRole reports whether c grants role on the client clientID, as
// listed under resource_access.<clientID>.roles. A nil c, a missing
// resource_access map and a missing client entry all count as holding
// no roles. Matching is exact and case-sensitive.
func HasClientRole(c *claims.Claims, clientID, role string) bool {
	if c == nil || c.ResourceAccess == nil {
		return false
	}
	access, ok := c.ResourceAccess[clientID]
	if !ok {
		return false
	}
	return slices.Contains(access.Roles, role)
}

// HasRealmRole reports whether c grants the realm-level role, as listed
// under realm_access.roles.
func HasRealmRole(c *claims.Claims, role string) bool {
	if c == nil || c.RealmAccess == nil {
		return false
	}
	return slices.Contains(c.RealmAccess.Roles, role)
}

// Requirement is what a caller must hold to invoke one operation.
//
// The zero value requires authentication only. With Role set and
// ClientID empty, the role is checked against the realm roles; with both
// set, against the client roles of ClientID.
type Requirement struct {
	ClientID string
	Role     string
}

// Authenticated requires a valid token and nothing more.
var Authenticated = Requirement{}

// ClientRole requires role on the client clientID.
func ClientRole(clientID, role string) Requirement {
	return Requirement{ClientID: clientID, Role: role}
}

// RealmRole requires the realm-level role.
func RealmRole(role string) Requirement {
	return Requirement{Role: role}
}

// Satisfied reports whether c meets the requirement. A nil c never does.
func (r Requirement) Satisfied(c *claims.Claims) bool {
	switch {
	case c == nil:
		return false
	case r.Role == "":
		return true
	case r.ClientID == "":
		return HasRealmRole(c, r.Role)
	default:
		return HasClientRole(c, r.ClientID, r.Role)
	}
}

// Reason is the machine-readable reason returned with a 403 when the
// requirement is not met, e.g. "missing_client_role:read_users".
func (r Requirement) Reason() string {
	switch {
	case r.Role == "":
		return "unauthenticated"
	case r.ClientID == "":
		return "missing_realm_role:" + r.Role
	default:
		return "missing_client_role:" + r.Role
	}
}

// String formats the requirement for logs.
func (r Requirement) String() string {
	switch {
	case r.Role == "":
		return "authenticated"
	case r.ClientID == "":
		return "realm:" + r.Role
	default:
		return fmt.Sprintf("client:%s:%s", r.ClientID, r.Role)
	}
}

// Policy maps operation names to the requirement guarding them. Each
// service declares its table once and hands it to [NewGate].
//
// Example:
//
//	policy := auth.Policy{
//	    "users.list": auth.ClientRole("identity-service", "read_users"),
//	}
type Policy map[string]Requirement

// Lookup returns the requirement for operation. Operations missing from
// the table are reported with ok false so callers can fail closed.
func (p Policy) Lookup(operation string) (req Requirement, ok bool) {
	req, ok = p[operation]
	return req, ok
}

// Operations returns the operation names in sorted order.
func (p Policy) Operations() []string {
	return slices.Sorted(maps.Keys(p))
}
