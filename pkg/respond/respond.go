// Package respond writes JSON responses and renders [sserr.Error] values
// as JSON error bodies of the form {"error": "<wire code>", ...}.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
)

// JSON writes v as a JSON body with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("respond: failed to encode response body", "error", err)
	}
}

// Error renders err. Errors that are not *sserr.Error become a generic
// server_error so that internal messages never reach the client.
//
// The body always has an "error" field holding the wire code. Details
// are merged in as top-level fields. Authentication failures carry
// nothing else; other categories also carry "message". Server-side
// failures are logged with their cause.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := sserr.FromError(err)
	status := e.HTTPStatus()

	body := make(map[string]any, len(e.Details)+2)
	for k, v := range e.Details {
		body[k] = v
	}
	if !sserr.IsAuthentication(e) && e.Message != "" {
		body["message"] = e.Message
	}
	body["error"] = e.Wire()

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", e.Code,
			"error", e.Cause,
			"message", e.Message,
		)
	}

	JSON(w, status, body)
}
