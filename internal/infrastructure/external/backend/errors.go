package backend

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
)

// APIError is a non-2xx response. Its Kind places it in the shared error
// taxonomy so callers can use errors.Is with the shared sentinels.
type APIError struct {
	Endpoint   string
	StatusCode int
	Detail     string
	Kind       error
}

func newAPIError(endpoint string, status int, body []byte) *APIError {
	var dto ErrorDTO
	detail := ""
	if len(body) > 0 {
		if err := json.Unmarshal(body, &dto); err == nil {
			detail = dto.Message()
		}
	}
	if detail == "" {
		detail = http.StatusText(status)
	}

	return &APIError{
		Endpoint:   endpoint,
		StatusCode: status,
		Detail:     detail,
		Kind:       kindForStatus(status),
	}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return shared.ErrUnauthorized
	case status == http.StatusForbidden:
		return shared.ErrForbidden
	case status == http.StatusNotFound:
		return shared.ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return shared.ErrValidation
	case status == http.StatusTooManyRequests:
		return shared.ErrRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return shared.ErrTimeout
	case status >= 500:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrExternalService
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Endpoint, e.StatusCode, e.Detail)
}

func (e *APIError) Unwrap() error {
	return e.Kind
}
