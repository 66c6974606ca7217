package schema

import "errors"

var (
	// ErrInvalidEncoding indicates a binary payload contains characters outside the base64 alphabet.
	ErrInvalidEncoding = errors.New("invalid payload encoding")
	// ErrPayloadTooLarge indicates a binary payload exceeds the configured size limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrEmptyPayload indicates a binary payload has no content.
	ErrEmptyPayload = errors.New("payload is empty")
	// ErrNameGenerationExhausted indicates no free asset name was found within the probe bound.
	ErrNameGenerationExhausted = errors.New("unable to generate a unique asset name")
	// ErrOperationTimedOut indicates a correlated operation was not answered in time.
	ErrOperationTimedOut = errors.New("operation timed out")
	// ErrNotInitialized indicates the surface has not received its first snapshot.
	ErrNotInitialized = errors.New("document not initialized")
	// ErrSessionClosed indicates the surface session was torn down.
	ErrSessionClosed = errors.New("session closed")
	// ErrMissingRequestID indicates a correlated message carried no request id.
	ErrMissingRequestID = errors.New("missing request id")
	// ErrDuplicateRequestID indicates a request id is already pending.
	ErrDuplicateRequestID = errors.New("request id already pending")
	// ErrMalformedMessage indicates an unknown kind or a missing required field.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownTheme indicates a theme name outside the supported set.
	ErrUnknownTheme = errors.New("unknown theme")
	// ErrUploadRejected indicates the host answered an upload with ok=false.
	ErrUploadRejected = errors.New("upload rejected")
)
