// Package account encodes provider credentials into opaque bearer tokens
// and derives the stable per-account cache id from a DID.
package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atinyakov/smsglue/internal/models"
)

// didPrefixLen is the number of leading DID characters left out of the
// human-readable token and id prefix.
const didPrefixLen = 6

var (
	// ErrInvalidToken is returned when a token cannot be decoded.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidCredential is returned when a credential is missing fields.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Codec encrypts token payloads. *codec.Codec satisfies it.
type Codec interface {
	Encrypt(value any, salt ...string) (string, error)
	Decrypt(ciphertext string, v any, salt ...string) bool
}

// Account is a decoded token with everything derived from it.
type Account struct {
	models.AccountCredential
	// ID is the cache partition key.
	ID string
	// Token is the bearer token the account was decoded from.
	Token string
}

// Tokens encodes and decodes account tokens under one codec.
type Tokens struct {
	codec Codec
}

// NewTokens returns a Tokens bound to c.
func NewTokens(c Codec) *Tokens {
	return &Tokens{codec: c}
}

// Digits strips every non-digit from s.
func Digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func suffix(did string) string {
	if len(did) <= didPrefixLen {
		return ""
	}
	return did[didPrefixLen:]
}

func normalize(c models.AccountCredential) (models.AccountCredential, error) {
	c.User = strings.TrimSpace(c.User)
	c.Pass = strings.TrimSpace(c.Pass)
	c.Scope = strings.TrimSpace(c.Scope)
	c.DID = Digits(c.DID)
	if c.User == "" || c.Pass == "" || len(c.DID) <= didPrefixLen {
		return c, ErrInvalidCredential
	}
	return c, nil
}

// Encode builds "<did minus first 6 chars>-<hex ciphertext>" from c.
func (t *Tokens) Encode(c models.AccountCredential) (string, error) {
	c, err := normalize(c)
	if err != nil {
		return "", err
	}
	ct, err := t.codec.Encrypt(c)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return suffix(c.DID) + "-" + ct, nil
}

// Decode reverses Encode. The prefix is informational; the encrypted
// segment is authoritative.
func (t *Tokens) Decode(token string) (models.AccountCredential, error) {
	_, ct, ok := strings.Cut(strings.TrimSpace(token), "-")
	if !ok || ct == "" {
		return models.AccountCredential{}, ErrInvalidToken
	}
	var c models.AccountCredential
	if !t.codec.Decrypt(ct, &c) {
		return models.AccountCredential{}, ErrInvalidToken
	}
	c, err := normalize(c)
	if err != nil {
		return models.AccountCredential{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return c, nil
}

// AccountID returns "<did minus first 6 chars>-<encrypt(did)>".
// It is deterministic for a given process key.
func (t *Tokens) AccountID(did string) (string, error) {
	did = Digits(did)
	ct, err := t.codec.Encrypt(did)
	if err != nil {
		return "", fmt.Errorf("account id: %w", err)
	}
	return suffix(did) + "-" + ct, nil
}

// Resolve decodes token and derives the account id.
func (t *Tokens) Resolve(token string) (*Account, error) {
	c, err := t.Decode(token)
	if err != nil {
		return nil, err
	}
	id, err := t.AccountID(c.DID)
	if err != nil {
		return nil, err
	}
	return &Account{AccountCredential: c, ID: id, Token: strings.TrimSpace(token)}, nil
}

// Hooks returns the webhook URLs for the account rooted at origin.
func (a *Account) Hooks(origin string) models.Hooks {
	origin = strings.TrimRight(origin, "/")
	return models.Hooks{
		Provision: origin + "/provision/" + a.ID,
		Report:    origin + "/report/" + a.ID + "/%pushToken%/%pushappid%",
		Notify:    origin + "/notify/" + a.ID,
		Fetch:     origin + "/fetch/" + a.Token,
		Send:      origin + "/send/" + a.Token,
	}
}
