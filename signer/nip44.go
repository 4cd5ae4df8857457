package signer

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math/bits"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// nip44Cipher is the newer scheme: a per-pair conversation key derived with
// HKDF, per-message ChaCha20 keys, length-hiding padding, and an HMAC-SHA256
// authenticator. Preferred over nip04 whenever both sides support it.
type nip44Cipher struct {
	priv *secp256k1.PrivateKey
}

const nip44Version = 0x02

var nip44Salt = []byte("nip44-v2")

const nip44MinPlaintext = 1
const nip44MaxPlaintext = 65535

func (c *nip44Cipher) Encrypt(ctx context.Context, counterparty string, plaintext string) (string, error) {
	if len(plaintext) < nip44MinPlaintext || len(plaintext) > nip44MaxPlaintext {
		return "", fmt.Errorf("plaintext length %d out of range", len(plaintext))
	}
	convKey, err := c.conversationKey(counterparty)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, 32)
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}
	chachaKey, chachaNonce, authKey, err := messageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}
	padded := pad([]byte(plaintext))
	ciphertext := make([]byte, len(padded))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	stream.XORKeyStream(ciphertext, padded)
	mac := authenticate(authKey, nonce, ciphertext)

	payload := make([]byte, 0, 1+len(nonce)+len(ciphertext)+len(mac))
	payload = append(payload, nip44Version)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = append(payload, mac...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

func (c *nip44Cipher) Decrypt(ctx context.Context, counterparty string, encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding payload: %w", err)
	}
	// version + nonce + minimum padded block + mac
	if len(payload) < 1+32+34+32 {
		return "", fmt.Errorf("payload too short: %d bytes", len(payload))
	}
	if payload[0] != nip44Version {
		return "", fmt.Errorf("unsupported payload version %d", payload[0])
	}
	nonce := payload[1:33]
	ciphertext := payload[33 : len(payload)-32]
	mac := payload[len(payload)-32:]

	convKey, err := c.conversationKey(counterparty)
	if err != nil {
		return "", err
	}
	chachaKey, chachaNonce, authKey, err := messageKeys(convKey, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(mac, authenticate(authKey, nonce, ciphertext)) {
		return "", fmt.Errorf("invalid authenticator")
	}
	padded := make([]byte, len(ciphertext))
	stream, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", err
	}
	stream.XORKeyStream(padded, ciphertext)

	plaintextLen := int(binary.BigEndian.Uint16(padded[:2]))
	if plaintextLen < nip44MinPlaintext || plaintextLen > len(padded)-2 {
		return "", fmt.Errorf("invalid plaintext length %d", plaintextLen)
	}
	if len(padded) != 2+calcPaddedLen(plaintextLen) {
		return "", fmt.Errorf("invalid padding")
	}
	return string(padded[2 : 2+plaintextLen]), nil
}

func (c *nip44Cipher) conversationKey(counterparty string) ([]byte, error) {
	shared, err := sharedSecret(c.priv, counterparty)
	if err != nil {
		return nil, err
	}
	return hkdf.Extract(sha256.New, shared, nip44Salt), nil
}

func messageKeys(convKey, nonce []byte) (chachaKey, chachaNonce, authKey []byte, err error) {
	expanded := make([]byte, 76)
	if _, err = io.ReadFull(hkdf.Expand(sha256.New, convKey, nonce), expanded); err != nil {
		return nil, nil, nil, err
	}
	return expanded[0:32], expanded[32:44], expanded[44:76], nil
}

func authenticate(authKey, nonce, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, authKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// pad prefixes the plaintext with its big-endian length and zero-fills up to
// the padded block size, hiding the exact message length.
func pad(plaintext []byte) []byte {
	padded := make([]byte, 2+calcPaddedLen(len(plaintext)))
	binary.BigEndian.PutUint16(padded[:2], uint16(len(plaintext)))
	copy(padded[2:], plaintext)
	return padded
}

func calcPaddedLen(unpadded int) int {
	if unpadded <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(unpadded-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((unpadded-1)/chunk + 1)
}
