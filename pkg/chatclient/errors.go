package chatclient

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the client. Server-side failure kinds map
// onto these so callers can branch without parsing response bodies.
var (
	// ErrConflict: an active session already exists for the order+customer
	// pair; fetch it instead of creating another.
	ErrConflict = errors.New("chatclient: active session already exists")

	// ErrNotFound: the referenced session does not exist.
	ErrNotFound = errors.New("chatclient: not found")

	// ErrInvalidState: the session no longer accepts this mutation.
	ErrInvalidState = errors.New("chatclient: session state does not permit operation")

	// ErrTransportUnavailable: no live push channel; callers should retry
	// over the REST fallback.
	ErrTransportUnavailable = errors.New("chatclient: push transport unavailable")

	// ErrSendFailed: no acknowledge arrived within the send timeout. The
	// optimistic entry has been rolled back.
	ErrSendFailed = errors.New("chatclient: send failed")
)

// APIError carries the server's error envelope.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatclient: %s (%s)", e.Message, e.Code)
}

// Unwrap maps well-known server codes onto the client sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "CONFLICT":
		return ErrConflict
	case "NOT_FOUND":
		return ErrNotFound
	case "INVALID_STATE":
		return ErrInvalidState
	}
	return nil
}
