package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/appforgehq/appforge/internal/api"
	"github.com/appforgehq/appforge/internal/auth"
	"github.com/appforgehq/appforge/internal/config"
)

// ValidationError reports input rejected before any network call. Its
// message is authored here, so it is safe to show verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Sanitize maps any run error to a short message fit for end users. Raw
// errors can carry endpoints, response snippets or identity-provider detail;
// those stay in the logs. Validation and configuration errors pass their own
// messages through, a terminally failed entity surfaces its status value,
// and everything else collapses to a fixed phrase per failure class.
func Sanitize(err error) string {
	var (
		validationErr *ValidationError
		configErr     *config.ConfigurationError
		authErr       *auth.AuthenticationError
		timeoutErr    *api.TimeoutError
		pollErr       *api.PollTimeoutError
		remoteErr     *api.RemoteFailureError
		apiErr        *api.Error
	)
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &configErr):
		return configErr.Error()
	case errors.As(err, &authErr):
		return "authentication failed, check credentials"
	case errors.As(err, &timeoutErr),
		errors.As(err, &pollErr),
		errors.Is(err, context.DeadlineExceeded):
		return "request timed out, try again"
	case errors.As(err, &remoteErr):
		return fmt.Sprintf("the %s ended in status %s", remoteErr.Entity, remoteErr.Status)
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Status == 401 || apiErr.Status == 403:
			return "authentication failed, check credentials"
		case apiErr.Status == 429:
			return "rate limited, try again shortly"
		case apiErr.Status >= 500:
			return "service temporarily unavailable"
		}
		return "an error occurred, try again"
	default:
		return "an error occurred, try again"
	}
}
