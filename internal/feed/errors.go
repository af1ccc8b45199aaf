package feed

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTimeout    = errors.New("feed: request timed out")
	ErrConnection = errors.New("feed: connection failed")
	ErrDNS        = errors.New("feed: host lookup failed")
	ErrCancelled  = errors.New("feed: request cancelled")
	ErrBadStatus  = errors.New("feed: unexpected http status")
	ErrParse      = errors.New("feed: malformed feed document")
	ErrTransport  = errors.New("feed: transport failure")
	ErrExhausted  = errors.New("feed: retries exhausted")
)

// FetchError wraps the sentinel errors with request context.
type FetchError struct {
	Sentinel error
	URL      string
	Profile  string
	Status   int   // HTTP status when Sentinel is ErrBadStatus
	Err      error // Nested lower-level error (e.g. net.Error)
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%v", e.Sentinel)
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.URL)
	}
	if e.Profile != "" {
		msg = fmt.Sprintf("%s (profile %s)", msg, e.Profile)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Sentinel
}

// Retryable reports whether another attempt could plausibly succeed.
// Transient transport failures, 5xx responses, and 429 are retryable.
// Other 4xx responses, cancellation, and malformed documents are terminal.
func Retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Sentinel {
	case ErrTimeout, ErrConnection, ErrDNS, ErrTransport:
		return true
	case ErrBadStatus:
		return fe.Status >= 500 || fe.Status == http.StatusTooManyRequests
	default:
		return false
	}
}
