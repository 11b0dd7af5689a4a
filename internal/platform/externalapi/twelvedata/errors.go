package twelvedata

import (
	"fmt"
	"net/http"

	"forex_backend/internal/feature/candles/domain"
)

// ProviderError is a failed time_series call. It matches
// domain.ErrTransientProvider or domain.ErrPermanentProvider via errors.Is.
type ProviderError struct {
	StatusCode int    // HTTP status, 0 when the request never completed
	Code       int    // "code" of an error envelope
	Message    string // "message" of an error envelope
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("twelvedata request: %v", e.Err)
	case e.Code != 0:
		return fmt.Sprintf("twelvedata: %s (code %d)", e.Message, e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("twelvedata http %d", e.StatusCode)
	}
	return "twelvedata: " + e.Message
}

func (e *ProviderError) Unwrap() []error {
	kind := domain.ErrPermanentProvider
	if e.Transient {
		kind = domain.ErrTransientProvider
	}
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}

// isTransientStatus reports whether an HTTP status or envelope code is worth retrying.
func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
