package errors

// Code is a machine-readable error code of the form CATEGORY_NNN.
// Codes are stable once assigned; clients and alerts match on them.
type Code string

// Error code categories:
//
//	VAL_xxx      - Validation errors (400)
//	AUTH_xxx     - Authentication errors (401)
//	AUTHZ_xxx    - Authorization errors (403)
//	NF_xxx       - Not found errors (404)
//	CONF_xxx     - Conflict errors (409)
//	UPSTREAM_xxx - Identity provider / peer service errors (502)
//	DB_xxx       - Database errors (500)
//	INT_xxx      - Internal errors (500)
//	TIMEOUT_xxx  - Timeout errors (504)
//	UNAVAIL_xxx  - Service not ready (503)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeMissingToken indicates the request carried no usable bearer
	// credential in its Authorization header.
	CodeMissingToken Code = "AUTH_001"

	// CodeInvalidToken indicates the bearer token failed decoding or
	// verification. The sub-cause is intentionally not distinguished.
	CodeInvalidToken Code = "AUTH_002"

	// CodeForbidden indicates the caller is authenticated but lacks the
	// role required by the operation.
	CodeForbidden Code = "AUTHZ_001"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundMedicine indicates the requested medicine does not exist.
	CodeNotFoundMedicine Code = "NF_002"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeInsufficientStock indicates a distribution asked for more units
	// than are in stock.
	CodeInsufficientStock Code = "CONF_002"

	// CodeUpstream indicates a call to the identity provider or a peer
	// service failed at the transport level or returned a non-success status.
	CodeUpstream Code = "UPSTREAM_001"

	// CodeKeyNotFound indicates the requested key id is absent from the
	// identity provider's published key set.
	CodeKeyNotFound Code = "UPSTREAM_002"

	// CodeUpstreamAuthFailure indicates the client-credentials exchange
	// with the identity provider was rejected.
	CodeUpstreamAuthFailure Code = "UPSTREAM_003"

	// CodeDatabase indicates a database operation failed.
	CodeDatabase Code = "DB_001"

	// CodeDatabaseTimeout indicates a database operation exceeded its deadline.
	CodeDatabaseTimeout Code = "DB_002"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_002"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeUnavailable indicates the service is starting, stopping or has
	// failed and cannot serve the request.
	CodeUnavailable Code = "UNAVAIL_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// Wire returns the short identifier written to the "error" field of JSON
// error bodies. Authentication codes map individually; every other
// category maps to one identifier.
func (c Code) Wire() string {
	switch c {
	case CodeMissingToken:
		return "missing_token"
	case CodeInvalidToken:
		return "invalid_token"
	}
	switch c.Category() {
	case "VAL":
		return "validation_error"
	case "AUTH":
		return "invalid_token"
	case "AUTHZ":
		return "forbidden"
	case "NF":
		return "not_found"
	case "CONF":
		return "conflict"
	case "UPSTREAM":
		return "upstream_error"
	case "DB":
		return "database_error"
	case "TIMEOUT":
		return "timeout"
	case "UNAVAIL":
		return "unavailable"
	default:
		return "server_error"
	}
}
