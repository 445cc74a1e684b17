// Package apikey issues and verifies long-lived keys for pipeline callers
// that cannot hold short-lived member tokens.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sampletrack/internal/store"
	"sampletrack/internal/util"
)

const keyPrefix = "stk"

var ErrInvalidKey = errors.New("invalid api key")

// KeyStore defines the storage interface for api keys.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key store.APIKey) error
	GetAPIKey(ctx context.Context, id string) (store.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, usedAt time.Time) error
	RevokeAPIKey(ctx context.Context, actor, id string) error
	ListAPIKeys(ctx context.Context, member string) ([]store.APIKey, error)
}

type Service struct {
	store KeyStore
}

func NewService(store KeyStore) *Service {
	return &Service{store: store}
}

// Issue mints a key for member. The plaintext is returned exactly once;
// only a bcrypt hash is persisted.
func (s *Service) Issue(ctx context.Context, member, name string) (plaintext string, key store.APIKey, err error) {
	if strings.TrimSpace(member) == "" || strings.TrimSpace(name) == "" {
		return "", store.APIKey{}, errors.New("member and key name are required")
	}

	secret, err := generateSecret()
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("generate key secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("hash key secret: %w", err)
	}

	key = store.APIKey{
		ID:     util.NewID("key"),
		Member: member,
		Name:   name,
		Hash:   string(hash),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return "", store.APIKey{}, fmt.Errorf("create api key: %w", err)
	}

	return keyPrefix + "_" + key.ID + "." + secret, key, nil
}

// Verify resolves a plaintext key to its member. Revoked keys fail exactly
// like malformed ones so a caller cannot probe which keys ever existed.
func (s *Service) Verify(ctx context.Context, plaintext string) (member string, err error) {
	id, secret, ok := splitKey(plaintext)
	if !ok {
		return "", ErrInvalidKey
	}

	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return "", ErrInvalidKey
	}
	if key.RevokedAt != nil {
		return "", ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)); err != nil {
		return "", ErrInvalidKey
	}

	// Last-use tracking is advisory; a failed touch must not fail the call.
	_ = s.store.TouchAPIKey(ctx, id, time.Now().UTC())
	return key.Member, nil
}

// Revoke permanently disables a key.
func (s *Service) Revoke(ctx context.Context, actor, id string) error {
	return s.store.RevokeAPIKey(ctx, actor, id)
}

// List returns a member's keys, hashes omitted by the store layer.
func (s *Service) List(ctx context.Context, member string) ([]store.APIKey, error) {
	return s.store.ListAPIKeys(ctx, member)
}

func splitKey(plaintext string) (id, secret string, ok bool) {
	rest, found := strings.CutPrefix(plaintext, keyPrefix+"_")
	if !found {
		return "", "", false
	}
	id, secret, found = strings.Cut(rest, ".")
	if !found || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
