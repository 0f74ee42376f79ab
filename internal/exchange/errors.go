package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories the client reports.
// Callers branch on the kind, never on raw status codes or error strings.
type ErrorKind string

const (
	// KindTransientNetwork covers connection refusals, timeouts, and 5xx
	// responses that survived the retry budget.
	KindTransientNetwork ErrorKind = "transient_network"
	// KindRateLimited is a 429 that survived exponential backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindIdempotentDuplicate is a 409 on POST with our client_order_id.
	// The client resolves it to success internally; it only surfaces when
	// the duplicate response body cannot be decoded.
	KindIdempotentDuplicate ErrorKind = "idempotent_duplicate"
	// KindValidation is any other 4xx: bad price range, missing field.
	// Never retried.
	KindValidation ErrorKind = "validation"
	// KindExchangeRejection is an order accepted and later rejected.
	KindExchangeRejection ErrorKind = "exchange_rejection"
)

// APIError is the tagged error returned by every client operation.
type APIError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, 0 for pure network failures
	Message string // short reason, truncated response body
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("kalshi api: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("kalshi api: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the error kind, or "" when err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}
