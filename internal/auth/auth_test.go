package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

func newSessionStore(t *testing.T) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, "test:session", time.Hour), mr
}

func TestSessionIssueResolveRevoke(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()
	p := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}

	token, err := store.Issue(ctx, p)
	require.NoError(t, err)
	// Only the hash of the token is stored.
	for _, key := range mr.Keys() {
		require.NotContains(t, key, token)
	}

	got, err := store.Resolve(ctx, token)
	require.NoError(t, err)
	require.Equal(t, p, got)

	require.NoError(t, store.Revoke(ctx, token))
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiresWithTTL(t *testing.T) {
	store, mr := newSessionStore(t)
	ctx := context.Background()
	token, err := store.Issue(ctx, shared.Principal{UserID: uuid.New(), OrgID: uuid.New()})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	_, err = store.Resolve(ctx, token)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMiddlewareRequiresCredential(t *testing.T) {
	store, _ := newSessionStore(t)
	auth := Authenticator{Sessions: store}
	p := shared.Principal{UserID: uuid.New(), OrgID: uuid.New()}
	token, err := store.Issue(context.Background(), p)
	require.NoError(t, err)

	var seen shared.Principal
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/license-plates", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "UNAUTHENTICATED", body["error"])

	req = httptest.NewRequest(http.MethodGet, "/license-plates", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, p, seen)

	req = httptest.NewRequest(http.MethodGet, "/license-plates", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSplitKey(t *testing.T) {
	prefix, secret, ok := splitKey("mes_abcd1234_s3cret")
	require.True(t, ok)
	require.Equal(t, "abcd1234", prefix)
	require.Equal(t, "s3cret", secret)

	for _, bad := range []string{"", "abcd1234_s3cret", "mes_short_s3cret", "mes_abcd1234_", "mes_abcd1234"} {
		_, _, ok := splitKey(bad)
		require.False(t, ok, bad)
	}
}

type keyRow struct {
	values []any
	err    error
}

func (r keyRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = r.values[i].(uuid.UUID)
		case *string:
			*p = r.values[i].(string)
		case *bool:
			*p = r.values[i].(bool)
		}
	}
	return nil
}

type keyDB struct {
	row keyRow
}

func (k *keyDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (k *keyDB) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }

func (k *keyDB) QueryRow(context.Context, string, ...any) pgx.Row { return k.row }

func TestAPIKeyResolve(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-part"), bcrypt.MinCost)
	require.NoError(t, err)
	keyID, orgID, userID := uuid.New(), uuid.New(), uuid.New()
	store := NewAPIKeyStore(&keyDB{row: keyRow{values: []any{keyID, orgID, userID, string(hash), true}}})

	p, err := store.Resolve(context.Background(), "mes_0a1b2c3d_secret-part")
	require.NoError(t, err)
	require.Equal(t, orgID, p.OrgID)
	require.Equal(t, keyID, *p.APIKeyID)
	require.Nil(t, p.Actor())

	_, err = store.Resolve(context.Background(), "mes_0a1b2c3d_wrong")
	require.ErrorIs(t, err, ErrAPIKeyInvalid)

	revoked := NewAPIKeyStore(&keyDB{row: keyRow{values: []any{keyID, orgID, userID, string(hash), false}}})
	_, err = revoked.Resolve(context.Background(), "mes_0a1b2c3d_secret-part")
	require.ErrorIs(t, err, ErrAPIKeyInvalid)

	missing := NewAPIKeyStore(&keyDB{row: keyRow{err: pgx.ErrNoRows}})
	_, err = missing.Resolve(context.Background(), "mes_0a1b2c3d_secret-part")
	require.ErrorIs(t, err, ErrAPIKeyInvalid)
}
