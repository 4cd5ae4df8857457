package models

import (
	"errors"
	"fmt"
)

// ErrCapabilityMissing means the active signer offers no supported encryption
// scheme. Fatal to the call that needed it, surfaced immediately.
var ErrCapabilityMissing = errors.New("signer offers no supported encryption scheme")

// ErrTimeout means no correlated response arrived within the call's budget.
// Retryable, and distinct from an explicit remote error.
var ErrTimeout = errors.New("no response within timeout")

// DecryptionError wraps a per-message decryption failure. Logged and dropped by
// subscription loops, never fatal to the subscription.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// MalformedPayloadError wraps a JSON decode failure on decrypted or plaintext
// content.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// AdminError carries the error field of an explicit remote admin response.
type AdminError struct {
	Method  string
	Message string
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}
