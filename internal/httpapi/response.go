package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ansyfirmansyah/libauth"
	"github.com/ansyfirmansyah/libauth/validation"
)

type response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validation.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    libauth.KeyInvalidRequest,
				Message: message(r, libauth.KeyInvalidRequest),
				Fields:  valErr.Fields(),
			},
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: libauth.KeyInvalidRequest, Message: err.Error()},
	})
}

func message(r *http.Request, key string) string {
	return libauth.Message(key, r.Header.Get("Accept-Language"))
}
