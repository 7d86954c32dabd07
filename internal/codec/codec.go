// Package codec encrypts JSON-serializable values under the process-wide
// cache key, optionally salted per call.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const info = "smsglue-codec"

// Codec encrypts and decrypts values with AES-256-GCM.
//
// Keys are derived with HKDF-SHA256 from the process key concatenated with
// the salt. The nonce is an HMAC of the plaintext, so the same value under
// the same key and salt always yields the same ciphertext.
type Codec struct {
	key string
}

// New returns a Codec bound to the given process key.
func New(key string) (*Codec, error) {
	if key == "" {
		return nil, errors.New("empty codec key")
	}
	return &Codec{key: key}, nil
}

type keys struct {
	aead cipher.AEAD
	mac  []byte
}

func (c *Codec) derive(salt string) (*keys, error) {
	material := make([]byte, 64)
	r := hkdf.New(sha256.New, []byte(c.key+salt), nil, []byte(info))
	if _, err := io.ReadFull(r, material); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(material[:32])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &keys{aead: aead, mac: material[32:]}, nil
}

func saltOf(salt []string) string {
	if len(salt) == 0 {
		return ""
	}
	return salt[0]
}

// Encrypt serializes value to JSON and returns hex(nonce || ciphertext).
func (c *Codec) Encrypt(value any, salt ...string) (string, error) {
	plain, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	k, err := c.derive(saltOf(salt))
	if err != nil {
		return "", err
	}

	m := hmac.New(sha256.New, k.mac)
	m.Write(plain)
	nonce := m.Sum(nil)[:k.aead.NonceSize()]

	out := k.aead.Seal(nonce, nonce, plain, nil)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt into v. It reports false when the ciphertext is
// malformed, the key or salt is wrong, or the plaintext is not valid JSON
// for v; callers treat that as an absent value.
func (c *Codec) Decrypt(ciphertext string, v any, salt ...string) bool {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return false
	}
	k, err := c.derive(saltOf(salt))
	if err != nil {
		return false
	}
	ns := k.aead.NonceSize()
	if len(raw) < ns+k.aead.Overhead() {
		return false
	}
	plain, err := k.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return false
	}
	return json.Unmarshal(plain, v) == nil
}
