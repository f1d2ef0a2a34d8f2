package handlers

import (
	"encoding/json"
	"net/http"

	"oauth-refresh/pkg/errors"
)

// ResponseType tags every envelope the service returns.
type ResponseType string

const (
	ResponseTypeHealth  ResponseType = "health"
	ResponseTypeTrigger ResponseType = "trigger"
	ResponseTypeQuery   ResponseType = "query"
	ResponseTypeError   ResponseType = "error"
)

// ServerResponse is the uniform response envelope
type ServerResponse struct {
	Type ResponseType `json:"type"`
	Args interface{}  `json:"args"`
}

// ServerError is the error envelope payload
type ServerError struct {
	Message []string `json:"message"`
}

func writeResponse(w http.ResponseWriter, status int, responseType ResponseType, args interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ServerResponse{
		Type: responseType,
		Args: args,
	})
}

// writeError maps an error to its HTTP status and wraps it in the error
// envelope.
func writeError(w http.ResponseWriter, err error) {
	writeResponse(w, errors.StatusOf(err), ResponseTypeError, ServerError{
		Message: []string{err.Error()},
	})
}
