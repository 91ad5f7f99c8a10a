package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrTrustRootMissing = errors.New("trust root is not established")
	ErrInvalidRootKey   = errors.New("root key is not a DER encoded BLS public key")
	// ErrRootKeyMismatch is returned when the host reports a root key other than the configured one.
	ErrRootKeyMismatch = errors.New("root key does not match the configured ROOT_KEY")
	ErrUnknownMethod   = errors.New("method is not declared by the interface")
	ErrResultMismatch  = errors.New("reply does not match the declared result type")
	// ErrService is wrapped by the Err branch of a tagged result.
	ErrService = errors.New("service returned an error")
)

// TransportError is any failure of a remote call: network, status, reject, certificate, decoding or shape.
type TransportError struct {
	Method string
	// zero when the failure carries no HTTP status
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("ledger %s: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("ledger %s (status %d): %v", e.Method, e.StatusCode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
