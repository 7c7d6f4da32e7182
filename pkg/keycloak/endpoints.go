// Package keycloak talks to the identity provider on behalf of a
// service: it derives the realm's well-known URLs, obtains and caches an
// admin access token through the client-credentials grant, and lists
// realm users through the admin API.
package keycloak

import (
	"net/http"
	"strings"
)

// HTTPClient is the subset of *http.Client this package needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoints derives the identity provider URLs for one realm.
type Endpoints struct {
	BaseURL string
	Realm   string
}

func (e Endpoints) base() string { return strings.TrimRight(e.BaseURL, "/") }

// Issuer is the exact "iss" value in tokens issued by the realm.
func (e Endpoints) Issuer() string { return e.base() + "/realms/" + e.Realm }

// Certs is the realm's published JWKS.
func (e Endpoints) Certs() string { return e.Issuer() + "/protocol/openid-connect/certs" }

// Token is the realm's token endpoint.
func (e Endpoints) Token() string { return e.Issuer() + "/protocol/openid-connect/token" }

// Users is the admin API collection of realm users.
func (e Endpoints) Users() string { return e.base() + "/admin/realms/" + e.Realm + "/users" }
