package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures so the HTTP layer can map each
// class to a different user-facing status without inspecting any one
// provider's error schema.
type ErrorKind int

const (
	// KindTransport covers network failures and anything unrecognized.
	KindTransport ErrorKind = iota
	// KindConfig means no credential is configured at all.
	KindConfig
	// KindAuth means the provider rejected the configured credential.
	KindAuth
	// KindQuota means the account is out of credits or rate budget.
	KindQuota
	// KindModel means the requested model is not available.
	KindModel
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to KindTransport.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// statusKind maps a provider HTTP status to a local ErrorKind. Anthropic
// reports exhausted credit balance as a 400; both Anthropic and Gemini
// use 401/403 for credential problems and 404 for unknown models.
func statusKind(status int) ErrorKind {
	switch status {
	case 400, 429:
		return KindQuota
	case 401, 403:
		return KindAuth
	case 404:
		return KindModel
	default:
		return KindTransport
	}
}
