package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/meridianlife/agency-sdk/pkg/composables"
	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// WriteServiceError renders a typed service failure, falling back to 500 for
// anything the services did not classify. Unclassified failures are logged
// through the request-scoped logger; classified ones already carry their
// context in the typed error.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	meta := map[string]string{}
	if requestID := composables.UseRequestID(r.Context()); requestID != "" {
		meta["request_id"] = requestID
	}

	var svcErr *serrors.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Retryable {
			meta["retryable"] = "true"
		}
		if svcErr.Status >= http.StatusInternalServerError {
			composables.UseLogger(r.Context()).WithError(err).Error("service failure")
		}
		_ = WriteError(w, svcErr.Status, svcErr.Code, svcErr.Message, meta)
		return
	}

	composables.UseLogger(r.Context()).WithError(err).Error("unclassified service failure")
	_ = WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), meta)
}

func DecodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
