// Package fixtures provides shared test data constants so that tests
// across packages agree on realm names, client identifiers and roles.
package fixtures

// Identity provider values.
const (
	// Realm is the default Keycloak realm.
	Realm = "clinic-mouzaia-hub"

	// KeycloakBaseURL is the default Keycloak base URL.
	KeycloakBaseURL = "http://keycloak:8080"

	// Issuer is the issuer string Keycloak puts into tokens for [Realm].
	Issuer = KeycloakBaseURL + "/realms/" + Realm

	// KeyID is the default signing key id.
	KeyID = "kc-rs256-1"

	// RotatedKeyID is a second key id used in rotation tests.
	RotatedKeyID = "kc-rs256-2"
)

// Client identifiers and roles.
const (
	IdentityClientID = "identity-service"
	PharmacyClientID = "pharmacy-service"

	RoleReadUsers           = "read_users"
	RoleReadMedicines       = "read_medicines"
	RoleManageMedicines     = "manage_medicines"
	RoleDistributeMedicines = "distribute_medicines"

	RealmRoleStaff = "clinic_staff"
)

// Subjects.
const (
	Subject  = "6f1c2a7e-0b7d-4c55-9a3f-2f7d0c1e9b10"
	Username = "dr.benali"
	Email    = "dr.benali@mouzaia.clinic"
)
