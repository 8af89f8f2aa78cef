// Package auth resolves request credentials into a shared.Principal. Identity
// is issued elsewhere: bearer sessions are written to Redis by the identity
// platform and API keys are provisioned through mesctl.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// ErrSessionNotFound indicates an unknown or expired token.
var ErrSessionNotFound = errors.New("auth: session not found")

type sessionRecord struct {
	UserID    uuid.UUID `json:"user_id"`
	OrgID     uuid.UUID `json:"org_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore keeps access sessions in Redis keyed by the token hash, so a
// Redis dump never exposes usable tokens.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	if prefix == "" {
		prefix = "mes:session"
	}
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SessionStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%s:%s", s.prefix, hex.EncodeToString(sum[:]))
}

// Issue creates a session for p and returns the opaque bearer token.
func (s *SessionStore) Issue(ctx context.Context, p shared.Principal) (string, error) {
	if p.UserID == uuid.Nil || p.OrgID == uuid.Nil {
		return "", errors.New("auth: session requires user and org")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: token entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	now := time.Now().UTC()
	payload, err := json.Marshal(sessionRecord{UserID: p.UserID, OrgID: p.OrgID, IssuedAt: now, ExpiresAt: now.Add(s.ttl)})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(token), payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("auth: store session: %w", err)
	}
	return token, nil
}

// Resolve returns the principal for token.
func (s *SessionStore) Resolve(ctx context.Context, token string) (shared.Principal, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return shared.Principal{}, ErrSessionNotFound
	}
	if err != nil {
		return shared.Principal{}, fmt.Errorf("auth: load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return shared.Principal{}, fmt.Errorf("auth: decode session: %w", err)
	}
	if !rec.ExpiresAt.IsZero() && time.Now().UTC().After(rec.ExpiresAt) {
		return shared.Principal{}, ErrSessionNotFound
	}
	return shared.Principal{UserID: rec.UserID, OrgID: rec.OrgID}, nil
}

// Revoke deletes the session for token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}
