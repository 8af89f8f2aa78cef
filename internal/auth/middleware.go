package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-mes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

// Resolver turns a raw credential into a principal.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (shared.Principal, error)
}

// Authenticator requires either a bearer session or an X-API-Key header.
type Authenticator struct {
	Sessions Resolver
	APIKeys  Resolver
	Logger   *slog.Logger
}

// Middleware rejects unauthenticated requests with 401 UNAUTHENTICATED.
func (a Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.authenticate(r)
		if err != nil {
			if !isCredentialError(err) && a.Logger != nil {
				a.Logger.Error("authenticate request", slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

func (a Authenticator) authenticate(r *http.Request) (shared.Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" || a.Sessions == nil {
			return shared.Principal{}, ErrSessionNotFound
		}
		return a.Sessions.Resolve(r.Context(), strings.TrimSpace(token))
	}
	if key := r.Header.Get("X-API-Key"); key != "" && a.APIKeys != nil {
		return a.APIKeys.Resolve(r.Context(), strings.TrimSpace(key))
	}
	return shared.Principal{}, ErrSessionNotFound
}

func isCredentialError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrAPIKeyInvalid)
}
