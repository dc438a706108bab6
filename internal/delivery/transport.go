package delivery

import (
	"context"
	"fmt"

	"github.com/vietddude/relay/internal/core/domain"
)

// Transport delivers a batch of same-endpoint payloads upstream in one
// network call. A nil return means the whole batch was accepted.
//
// Failure classification is carried in the error type:
//   - *NetworkError: connectivity-level failure (connect, DNS, TLS,
//     timeout) — the batch may succeed on retry.
//   - *APIError: the remote parsed the payload and rejected it — retrying
//     the same data cannot succeed.
//   - anything else: unclassified failure.
type Transport interface {
	Send(ctx context.Context, endpoint domain.Endpoint, payloads []domain.Payload) error
}

// NetworkError wraps a connectivity-level failure.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a structured rejection from the remote endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (http %d): %s", e.StatusCode, e.Message)
}
