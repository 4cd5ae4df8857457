package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/dvmnet/go-dvm/models"
)

// LocalSigner holds a secp256k1 key in memory and offers both encryption
// capabilities. Identities are x-only public keys, 64 lowercase hex chars.
type LocalSigner struct {
	priv   *secp256k1.PrivateKey
	pubkey string
	nip04  models.Cipher
	nip44  models.Cipher
}

func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(raw))
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	compressed := priv.PubKey().SerializeCompressed()
	return &LocalSigner{
		priv:   priv,
		pubkey: hex.EncodeToString(compressed[1:]),
		nip04:  &nip04Cipher{priv},
		nip44:  &nip44Cipher{priv},
	}, nil
}

// NewRandomSigner generates a fresh keypair. Used by tests and throwaway
// sessions.
func NewRandomSigner() (*LocalSigner, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(hex.EncodeToString(priv.Serialize()))
}

func (s *LocalSigner) GetPublicKey(ctx context.Context) (string, error) {
	return s.pubkey, nil
}

// SignEvent fills in the author, id, and signature of an unsigned event.
func (s *LocalSigner) SignEvent(ctx context.Context, event *models.Event) error {
	event.Pubkey = s.pubkey
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	id, err := event.ComputeId()
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	sig, err := schnorr.Sign(s.priv, digest)
	if err != nil {
		return fmt.Errorf("signing event: %w", err)
	}
	event.Id = id
	event.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

func (s *LocalSigner) Nip04() (models.Cipher, bool) {
	return s.nip04, s.nip04 != nil
}

func (s *LocalSigner) Nip44() (models.Cipher, bool) {
	return s.nip44, s.nip44 != nil
}

// sharedSecret derives the ECDH x-coordinate shared with an x-only
// counterparty key.
func sharedSecret(priv *secp256k1.PrivateKey, counterparty string) ([]byte, error) {
	raw, err := hex.DecodeString(counterparty)
	if err != nil {
		return nil, fmt.Errorf("parsing counterparty key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("counterparty key must be 32 bytes, got %d", len(raw))
	}
	pub, err := secp256k1.ParsePubKey(append([]byte{secp256k1.PubKeyFormatCompressedEven}, raw...))
	if err != nil {
		return nil, fmt.Errorf("parsing counterparty key: %w", err)
	}
	return secp256k1.GenerateSharedSecret(priv, pub), nil
}
