package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

const apiKeyPrefix = "mes_"

// ErrAPIKeyInvalid covers malformed, unknown, revoked and mismatching keys alike.
var ErrAPIKeyInvalid = errors.New("auth: api key invalid")

// APIKey is the stored form of a machine credential.
type APIKey struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	UserID     uuid.UUID
	Name       string
	Prefix     string
	Hash       string
	Active     bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// APIKeyStore looks up keys by their public prefix and compares the secret with bcrypt.
type APIKeyStore struct {
	db db.DBTX
}

// NewAPIKeyStore constructs the store.
func NewAPIKeyStore(q db.DBTX) *APIKeyStore {
	return &APIKeyStore{db: q}
}

// splitKey parses mes_<prefix>_<secret>.
func splitKey(raw string) (prefix, secret string, ok bool) {
	if !strings.HasPrefix(raw, apiKeyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(raw, apiKeyPrefix)
	prefix, secret, ok = strings.Cut(rest, "_")
	if !ok || len(prefix) != 8 || secret == "" {
		return "", "", false
	}
	return prefix, secret, true
}

// Create provisions a key for a service user and returns the plaintext once.
func (s *APIKeyStore) Create(ctx context.Context, orgID, userID uuid.UUID, name string) (string, APIKey, error) {
	prefixBytes := make([]byte, 4)
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(prefixBytes); err != nil {
		return "", APIKey{}, err
	}
	if _, err := rand.Read(secretBytes); err != nil {
		return "", APIKey{}, err
	}
	prefix := hex.EncodeToString(prefixBytes)
	secret := hex.EncodeToString(secretBytes)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("auth: hash api key: %w", err)
	}
	key := APIKey{ID: uuid.New(), OrgID: orgID, UserID: userID, Name: name, Prefix: prefix, Hash: string(hash), Active: true}
	err = s.db.QueryRow(ctx, `INSERT INTO api_keys (id, org_id, user_id, name, key_prefix, key_hash, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING created_at`,
		key.ID, key.OrgID, key.UserID, key.Name, key.Prefix, key.Hash).Scan(&key.CreatedAt)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("auth: insert api key: %w", err)
	}
	return apiKeyPrefix + prefix + "_" + secret, key, nil
}

// Resolve validates raw and returns the owning principal.
func (s *APIKeyStore) Resolve(ctx context.Context, raw string) (shared.Principal, error) {
	prefix, secret, ok := splitKey(raw)
	if !ok {
		return shared.Principal{}, ErrAPIKeyInvalid
	}
	var key APIKey
	err := s.db.QueryRow(ctx, `SELECT id, org_id, user_id, key_hash, active FROM api_keys WHERE key_prefix = $1`, prefix).
		Scan(&key.ID, &key.OrgID, &key.UserID, &key.Hash, &key.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Principal{}, ErrAPIKeyInvalid
	}
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: load api key: %w", err)
	}
	if !key.Active {
		return shared.Principal{}, ErrAPIKeyInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(secret)); err != nil {
		return shared.Principal{}, ErrAPIKeyInvalid
	}
	_, _ = s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, key.ID)
	keyID := key.ID
	return shared.Principal{UserID: key.UserID, OrgID: key.OrgID, APIKeyID: &keyID}, nil
}
