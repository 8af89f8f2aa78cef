package statuses

import (
	"context"
	"fmt"
	"sort"

	"github.com/odyssey-erp/odyssey-mes/internal/shared"
)

var (
	ErrUnknownEntity        = shared.Validation("UNKNOWN_ENTITY_TYPE", "entity type must be purchase_order, work_order or license_plate")
	ErrUnknownStatus        = shared.Validation("UNKNOWN_STATUS", "status is not configured for this entity")
	ErrSelfTransition       = shared.Validation("SELF_TRANSITION", "a status cannot transition to itself")
	ErrTransitionNotAllowed = shared.Conflict("TRANSITION_NOT_ALLOWED", "transition is not in the allow-list")
	ErrReasonRequired       = shared.Validation("REASON_REQUIRED", "this transition requires a reason")
	ErrApprovalRequired     = shared.Forbidden("APPROVAL_REQUIRED", "this transition requires approval")
	ErrGuardFailed          = shared.Conflict("TRANSITION_GUARD_FAILED", "transition precondition not met")
	ErrUnknownGuard         = shared.Validation("UNKNOWN_GUARD", "guard is not registered")
)

// Guard is a named precondition attached to a transition.
type Guard func(ctx context.Context, req Request) error

// Engine validates transition requests against an explicit Config. It holds
// only the guard registry, which is fixed at construction.
type Engine struct {
	guards map[string]Guard
}

// NewEngine builds an Engine with the default guards plus extra.
func NewEngine(extra map[string]Guard) *Engine {
	guards := DefaultGuards()
	for name, g := range extra {
		guards[name] = g
	}
	return &Engine{guards: guards}
}

// HasGuard reports whether name is registered.
func (e *Engine) HasGuard(name string) bool {
	_, ok := e.guards[name]
	return ok
}

// GuardNames lists registered guards in name order.
func (e *Engine) GuardNames() []string {
	names := make([]string, 0, len(e.guards))
	for name := range e.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks req against cfg and returns the matched transition.
func (e *Engine) Validate(ctx context.Context, cfg *Config, req Request) (Transition, error) {
	if cfg == nil {
		return Transition{}, ErrUnknownEntity
	}
	if _, ok := cfg.Status(req.From); !ok {
		return Transition{}, ErrUnknownStatus.WithMessage("current status %q is not configured", req.From)
	}
	if _, ok := cfg.Status(req.To); !ok {
		return Transition{}, ErrUnknownStatus.WithMessage("status %q is not configured", req.To)
	}
	if req.From == req.To {
		return Transition{}, ErrSelfTransition
	}
	t, ok := cfg.Transition(req.From, req.To)
	if !ok {
		return Transition{}, ErrTransitionNotAllowed.WithMessage("cannot move %s from %s to %s", cfg.EntityType, req.From, req.To)
	}
	if t.RequiresReason && req.Reason == "" {
		return Transition{}, ErrReasonRequired
	}
	if t.RequiresApproval && !req.Approved {
		return Transition{}, ErrApprovalRequired
	}
	if t.Guard != "" {
		g, ok := e.guards[t.Guard]
		if !ok {
			return Transition{}, ErrUnknownGuard.WithMessage("guard %q is not registered", t.Guard)
		}
		if err := g(ctx, req); err != nil {
			return Transition{}, fmt.Errorf("guard %s: %w", t.Guard, err)
		}
	}
	return t, nil
}
