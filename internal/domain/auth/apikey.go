package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned when an API key does not resolve to an actor.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity bound to a stored API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Actor   Actor
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex encoded HMAC-SHA256 of key under pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// KeyResolver turns raw API keys into actors.
type KeyResolver struct {
	keys   Repository
	pepper []byte
}

// NewKeyResolver creates a KeyResolver backed by the given repository.
func NewKeyResolver(keys Repository, pepper []byte) *KeyResolver {
	return &KeyResolver{keys: keys, pepper: pepper}
}

// Resolve authenticates a raw API key. Any failure is reported as
// ErrUnauthorized so callers cannot distinguish unknown keys from bad ones.
func (r *KeyResolver) Resolve(ctx context.Context, key string) (Actor, error) {
	if key == "" {
		return Actor{}, ErrUnauthorized
	}
	hexHash := HashKey(r.pepper, key)

	info, err := r.keys.FindByHash(ctx, hexHash)
	if err != nil {
		return Actor{}, ErrUnauthorized
	}

	// The stored row may differ from the lookup value if the repository
	// matched on something looser than the exact hash.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return Actor{}, ErrUnauthorized
	}
	if !info.Actor.Role.Valid() || info.Actor.ID == "" {
		return Actor{}, ErrUnauthorized
	}

	return info.Actor, nil
}
