package services

import (
	"context"
	"strings"

	"github.com/dvmnet/go-dvm/models"
)

// Envelope encrypts and decrypts payloads with whichever scheme the active
// signer advertises, preferring the newer nip44 variant when both are
// available.
type Envelope struct {
	logger models.Logger
	signer models.Signer
}

func NewEnvelope(logger models.Logger, signer models.Signer) *Envelope {
	return &Envelope{logger, signer}
}

// Supported reports whether the signer offers any encryption scheme at all.
func (e *Envelope) Supported() bool {
	if _, ok := e.signer.Nip44(); ok {
		return true
	}
	_, ok := e.signer.Nip04()
	return ok
}

func (e *Envelope) Encrypt(ctx context.Context, counterparty string, plaintext string) (string, error) {
	if cipher, ok := e.signer.Nip44(); ok {
		return cipher.Encrypt(ctx, counterparty, plaintext)
	}
	if cipher, ok := e.signer.Nip04(); ok {
		return cipher.Encrypt(ctx, counterparty, plaintext)
	}
	return "", models.ErrCapabilityMissing
}

// Decrypt selects the scheme from the ciphertext shape: the legacy variant
// carries a "?iv=" separator, the newer one does not.
func (e *Envelope) Decrypt(ctx context.Context, counterparty string, ciphertext string) (string, error) {
	var cipher models.Cipher
	var ok bool
	if strings.Contains(ciphertext, "?iv=") {
		cipher, ok = e.signer.Nip04()
	} else {
		cipher, ok = e.signer.Nip44()
	}
	if !ok {
		return "", models.ErrCapabilityMissing
	}
	plaintext, err := cipher.Decrypt(ctx, counterparty, ciphertext)
	if err != nil {
		return "", &models.DecryptionError{Err: err}
	}
	return plaintext, nil
}
