// Package apikey issues and verifies the per-account API keys used by the
// programmatic API. Only the SHA-256 digest of a key is stored.
package apikey

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"horizon-web/internal/db"
	"horizon-web/internal/utils"
)

const (
	// Prefix marks plaintext keys so they are recognisable in logs and configs.
	Prefix = "hz_"

	keyBytes = 32
)

var (
	ErrNotFound = errors.New("apikey: not found")
	ErrNoKey    = errors.New("apikey: no key issued")
)

// Key describes the key of a principal without its secret.
type Key struct {
	PrincipalID string
	CreatedAt   time.Time
}

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

// Hash returns the stored form of a plaintext key.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Generate returns a new plaintext key.
func Generate() (string, error) {
	s, err := utils.RandomString(keyBytes)
	if err != nil {
		return "", fmt.Errorf("apikey: %w", err)
	}
	return Prefix + s, nil
}

// Rotate issues a new key for principalID, replacing any previous one. The
// plaintext is returned once and never stored.
func (s *Service) Rotate(ctx context.Context, principalID string) (string, error) {
	plaintext, err := Generate()
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_keys (principal_id, key_hash)
		VALUES ($1, $2)
		ON CONFLICT (principal_id)
		DO UPDATE SET key_hash = EXCLUDED.key_hash, created_at = NOW()
	`, principalID, Hash(plaintext))
	if err != nil {
		return "", fmt.Errorf("apikey: rotate: %w", err)
	}

	return plaintext, nil
}

// Get returns the key metadata of principalID, or ErrNoKey.
func (s *Service) Get(ctx context.Context, principalID string) (Key, error) {
	k := Key{PrincipalID: principalID}
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM api_keys WHERE principal_id = $1
	`, principalID).Scan(&k.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, ErrNoKey
	}
	if err != nil {
		return Key{}, fmt.Errorf("apikey: get: %w", err)
	}
	return k, nil
}

// Authenticate returns the principal owning plaintext, or ErrNotFound.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (string, error) {
	if !strings.HasPrefix(plaintext, Prefix) {
		return "", ErrNotFound
	}

	var principalID string
	err := s.db.QueryRowContext(ctx, `
		SELECT principal_id FROM api_keys WHERE key_hash = $1
	`, Hash(plaintext)).Scan(&principalID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("apikey: authenticate: %w", err)
	}
	return principalID, nil
}
