package domain

import "errors"

// Sentinel errors for the application. Handlers map these to HTTP status
// codes with errors.Is; services wrap them with context via fmt.Errorf.
var (
	// ErrNotFound covers both a genuinely absent entity and an entity the
	// caller is not a participant of. The two are deliberately
	// indistinguishable so non-participants cannot probe for existence.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized means the caller is authenticated but not permitted
	// to act on this specific entity.
	ErrUnauthorized = errors.New("unauthorized access")

	// ErrValidation covers malformed input: empty content, oversized
	// content, self-conversation, blank search query.
	ErrValidation = errors.New("invalid input")

	// ErrConflict signals a uniqueness-constraint violation. Conversation
	// creation handles it internally by retrying the lookup; it should not
	// normally reach the API boundary.
	ErrConflict = errors.New("resource already exists")

	ErrInternal = errors.New("internal server error")
)
