package tocclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReadOnlyViolation indicates a write operation was attempted while
	// the process-wide read-only flag is set. No network call occurred.
	ErrReadOnlyViolation = errors.New("tocclient: server is running in read-only mode, write operations are disabled")

	// ErrQuotaExceeded indicates the session's write-call quota is
	// exhausted. No network call occurred.
	ErrQuotaExceeded = errors.New("tocclient: write operation limit for this session exceeded")

	// ErrAuthenticationRejected indicates the API returned 401 twice in a
	// row, once with a freshly refreshed token: the credentials are
	// fundamentally invalid, not merely stale.
	ErrAuthenticationRejected = errors.New("tocclient: API rejected credentials after forced refresh")
)

// APIErrorDetail is one entry of a JSON:API error array.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// APIError is a non-retried upstream rejection, carrying the HTTP status
// and the parsed error body.
type APIError struct {
	Status int
	Errors []APIErrorDetail
}

var _ error = (*APIError)(nil)

func (e *APIError) Error() string {
	details := make([]string, 0, len(e.Errors))
	for _, entry := range e.Errors {
		if entry.Code == "" && entry.Detail == "" {
			continue
		}
		details = append(details, strings.TrimSpace(fmt.Sprintf("[%s] %s", orUnknown(entry.Code), entry.Detail)))
	}

	message := strings.Join(details, "; ")
	if message == "" {
		message = statusFallback(e.Status)
	}

	return statusPrefix(e.Status) + message
}

// parseAPIError normalizes an upstream error response. JSON:API error
// arrays are parsed; anything else is kept as the raw body text.
func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Errors []APIErrorDetail `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		return &APIError{Status: status, Errors: payload.Errors}
	}

	apiErr := &APIError{Status: status}
	if text := strings.TrimSpace(string(body)); text != "" {
		apiErr.Errors = []APIErrorDetail{{Code: fmt.Sprintf("%d", status), Detail: text}}
	}
	return apiErr
}

func statusPrefix(status int) string {
	switch status {
	case 403:
		return "Permission denied (business rule violation): "
	case 404:
		return "Resource not found: "
	case 422:
		return "Validation failed: "
	default:
		return fmt.Sprintf("HTTP %d: ", status)
	}
}

func statusFallback(status int) string {
	switch status {
	case 400:
		return "Bad request."
	case 401:
		return "Unauthorized — token may be expired."
	case 403:
		return "Forbidden."
	case 404:
		return "Not found."
	case 422:
		return "Unprocessable entity."
	case 500:
		return "Internal server error."
	default:
		return fmt.Sprintf("HTTP %d error.", status)
	}
}

func orUnknown(code string) string {
	if code == "" {
		return "?"
	}
	return code
}
