// Package store persists encrypted blobs keyed by (category, account id).
//
// Blobs are opaque to the store: callers encrypt before Save and decrypt
// after Load. The only plaintext slot is the process key itself, kept under
// (CategoryKey, KeyID).
package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Fixed categories. Each maps to one directory (or one key prefix).
const (
	CategoryKey        = "key"
	CategoryDevices    = "devices"
	CategoryMessages   = "messages"
	CategoryProvisions = "provisions"

	// KeyID is the slot id of the process-wide encryption key.
	KeyID = "key"
)

// Categories lists every category created on initialization.
var Categories = []string{CategoryKey, CategoryDevices, CategoryMessages, CategoryProvisions}

// ErrInvalidID is returned when a category or id cannot name a slot.
var ErrInvalidID = errors.New("invalid slot id")

// Store is the encrypted key-value cache.
type Store interface {
	// Save overwrites the slot with blob.
	Save(ctx context.Context, category, id, blob string) error
	// Load returns the blob, or false when the slot is absent or unreadable.
	Load(ctx context.Context, category, id string) (string, bool)
	// Clear removes the slot. Clearing an absent slot is not an error.
	Clear(ctx context.Context, category, id string) error
}

// Sweeper removes slots of a category last written before a cutoff.
type Sweeper interface {
	Sweep(ctx context.Context, category string, olderThan time.Time) (int64, error)
}

// ValidID reports whether s is usable as a category or id.
func ValidID(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`+"\x00")
}

const (
	keyLength   = 32
	keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// GenerateKey returns a random alphanumeric key.
func GenerateKey() (string, error) {
	var sb strings.Builder
	limit := big.NewInt(int64(len(keyAlphabet)))
	for i := 0; i < keyLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		sb.WriteByte(keyAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// LoadOrCreateKey returns the persisted process key, generating and
// persisting a new one when none exists yet.
func LoadOrCreateKey(ctx context.Context, s Store) (string, error) {
	if key, ok := s.Load(ctx, CategoryKey, KeyID); ok {
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := s.Save(ctx, CategoryKey, KeyID, key); err != nil {
		return "", fmt.Errorf("persist key: %w", err)
	}
	return key, nil
}
