package mercadolivre

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the marketplace API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mercadolivre %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("mercadolivre %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsRateLimited reports whether err carries an HTTP 429 from the marketplace.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimited()
}

// IsNotFound reports whether err carries an HTTP 404 from the marketplace.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}
