package tracking

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrMalformedToken covers truncated, corrupted and forged tokens
	// alike. Callers must fail open, never surface it to the client.
	ErrMalformedToken = errors.New("malformed tracking token")
)

type tokenPayload struct {
	CampaignID uint64 `json:"c"`
	Email      string `json:"e"`
}

// Codec seals (campaign, recipient) pairs into opaque URL-safe tokens.
// Tokens are AEAD-encrypted, so they cannot be read or minted outside
// the engine.
type Codec struct {
	aead func() (aeadCipher, error)
	key  [chacha20poly1305.KeySize]byte
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("empty tracking secret")
	}

	c := new(Codec)
	c.key = sha256.Sum256([]byte(secret))
	c.aead = func() (aeadCipher, error) {
		return chacha20poly1305.New(c.key[:])
	}

	return c, nil
}

func (c *Codec) Encode(campaignID uint64, email string) (string, error) {
	plaintext, err := json.Marshal(&tokenPayload{
		CampaignID: campaignID,
		Email:      email,
	})
	if err != nil {
		return "", err
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) Decode(token string) (uint64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", ErrMalformedToken
	}

	aead, err := c.aead()
	if err != nil {
		return 0, "", err
	}

	if len(raw) < aead.NonceSize() {
		return 0, "", ErrMalformedToken
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return 0, "", ErrMalformedToken
	}

	payload := new(tokenPayload)
	if err := json.Unmarshal(plaintext, payload); err != nil {
		return 0, "", ErrMalformedToken
	}

	return payload.CampaignID, payload.Email, nil
}
