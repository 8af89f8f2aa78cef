package shared

import (
	"context"

	"github.com/google/uuid"
)

// Principal identifies the authenticated caller and the organisation whose
// rows it may see.
type Principal struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	// APIKeyID is set when the caller authenticated with a machine key.
	APIKeyID *uuid.UUID `json:"api_key_id,omitempty"`
}

// Actor returns the user id to stamp on history rows, nil for machine keys.
func (p Principal) Actor() *uuid.UUID {
	if p.APIKeyID != nil || p.UserID == uuid.Nil {
		return nil
	}
	id := p.UserID
	return &id
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
