package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// Cipher seals personal contact details (phone numbers, email addresses) so they can travel
// inside tokens and events without being readable, and derives stable pseudonymous refs
// from them.
type Cipher struct {
	aead   cipher.AEAD
	macKey []byte
}

// NewCipher accepts a base64-encoded 32 byte key, or derives one from any other secret
// with sha256.
func NewCipher(secret string) (*Cipher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("encryption key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(secret))
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	mac := sha256.Sum256(append([]byte("fingerprint:"), key...))
	return &Cipher{aead: gcm, macKey: mac[:]}, nil
}

func (c *Cipher) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	payload := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

func (c *Cipher) DecryptString(ciphertextB64 string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", err
	}

	ns := c.aead.NonceSize()
	if len(payload) < ns {
		return "", errors.New("ciphertext too short")
	}
	nonce, ct := payload[:ns], payload[ns:]

	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Fingerprint is a keyed hash of value, the same for the same input and key.
func (c *Cipher) Fingerprint(value string) string {
	m := hmac.New(sha256.New, c.macKey)
	m.Write([]byte(value))
	return hex.EncodeToString(m.Sum(nil))[:32]
}
