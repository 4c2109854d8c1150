// Package respond writes the JSON envelope shared by every API response:
// {"success", "message", "data", "timestamp"}.
package respond

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lumeris/hub/internal/logging"
)

// TimestampFormat is the envelope timestamp layout (UTC, millisecond precision).
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Now is the clock used for envelope timestamps.
var Now = time.Now

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Op().Debug("write response", "error", err)
	}
}

// Success writes a successful envelope carrying data.
func Success(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: Now().UTC().Format(TimestampFormat),
	})
}

// Error writes a failed envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{
		Success:   false,
		Message:   message,
		Timestamp: Now().UTC().Format(TimestampFormat),
	})
}
