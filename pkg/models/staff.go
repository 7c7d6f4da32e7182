package models

import (
	"encoding/json"

	"github.com/StricklySoft/clinic-hub/pkg/claims"
)

// VerifyStaffRequest is the body of POST /pharmacy/verify-staff.
type VerifyStaffRequest struct {
	NationalID string `json:"national_id" validate:"required,max=64"`
}

// VerifyStaffResponse reports whether the caller was recognized as
// staff. StaffData carries the identity service's answer verbatim.
type VerifyStaffResponse struct {
	OK        bool            `json:"ok"`
	UserID    string          `json:"userId,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	StaffData json.RawMessage `json:"staffData,omitempty"`
}

// ClaimsPreview is the subset of token claims the identity service
// echoes in debug responses.
type ClaimsPreview struct {
	Sub               string                   `json:"sub"`
	PreferredUsername string                   `json:"preferred_username,omitempty"`
	ResourceAccess    map[string]claims.Access `json:"resource_access,omitempty"`
}

// PreviewOf extracts the preview fields from c.
func PreviewOf(c *claims.Claims) ClaimsPreview {
	if c == nil {
		return ClaimsPreview{}
	}
	return ClaimsPreview{
		Sub:               c.Subject,
		PreferredUsername: c.PreferredUsername,
		ResourceAccess:    c.ResourceAccess,
	}
}

// DebugUsersResponse is the body of GET /users?debug=1.
type DebugUsersResponse struct {
	Debug         bool          `json:"debug"`
	OK            bool          `json:"ok"`
	Message       string        `json:"message"`
	ClaimsPreview ClaimsPreview `json:"claims_preview"`
}
