package llm

import (
	"fmt"
	"net/http"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
)

// statusError classifies a non-200 response. Throttling and server errors are
// transient; other statuses are returned as plain errors.
func statusError(provider string, code int, body []byte) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return fmt.Errorf("%w: %s API returned status %d: %s", domain.ErrOracleUnavailable, provider, code, string(body))
	}
	return fmt.Errorf("%s API returned status %d: %s", provider, code, string(body))
}

func transportError(provider string, err error) error {
	return fmt.Errorf("%w: %s request failed: %v", domain.ErrOracleUnavailable, provider, err)
}

func malformed(provider, reason string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrMalformedOutput, provider, reason)
}
