package driven

import (
	"fmt"
	"net/http"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// ProviderError is a non-2xx response from a remote AI provider.
// It unwraps to domain.ErrAuthInvalid for rejected credentials and to
// domain.ErrRateLimited for throttling.
type ProviderError struct {
	// Provider names the service, e.g. "openai".
	Provider string

	// StatusCode is the HTTP status returned.
	StatusCode int

	// Message is the provider's error text.
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Unwrap maps the status code onto a domain sentinel.
func (e *ProviderError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return domain.ErrAuthInvalid
	case e.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return nil
	}
}

// Retryable reports whether the request may succeed if repeated.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}
