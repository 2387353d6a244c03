package respond

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/hongminglow/nova-be/internal/apperr"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, Envelope{Code: status, Message: message})
}

// Fail writes err using its domain kind. Errors without a kind are logged
// with the request ID and reported as a bare InternalError.
func Fail(w http.ResponseWriter, err error, requestID string) {
	e, ok := apperr.From(err)
	if !ok {
		log.Printf("[ERR] id=%s %v", requestID, err)
	}
	status := apperr.Status(e.Kind)
	write(w, status, Envelope{Code: status, Message: e.Message, Error: string(e.Kind)})
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("respond: encode payload failed: %v", err)
	}
}
