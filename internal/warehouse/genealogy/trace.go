package genealogy

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Link is a traversable parent -> child relation. Consumption links are
// resolved through the work order's outputs, so To is always a plate.
type Link struct {
	From     uuid.UUID       `json:"from"`
	To       uuid.UUID       `json:"to"`
	Relation string          `json:"relation"`
	WOID     *uuid.UUID      `json:"wo_id,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Node is a plate reached by a trace.
type Node struct {
	LPID      uuid.UUID       `json:"lp_id"`
	LPNumber  string          `json:"lp_number"`
	ProductID uuid.UUID       `json:"product_id"`
	Batch     string          `json:"batch_number"`
	Quantity  decimal.Decimal `json:"quantity"`
	Status    string          `json:"status"`
	Level     int             `json:"level"`
}

// Trace is the result of walking the genealogy graph from Root.
type Trace struct {
	Root      uuid.UUID `json:"root"`
	Direction Direction `json:"direction"`
	Depth     int       `json:"depth"`
	Nodes     []Node    `json:"nodes"`
	Links     []Link    `json:"links"`
	Truncated bool      `json:"truncated"`
}

// Store answers neighbour and node lookups for a set of plates.
type Store interface {
	Links(ctx context.Context, orgID uuid.UUID, lpIDs []uuid.UUID, dir Direction) ([]Link, error)
	Nodes(ctx context.Context, orgID uuid.UUID, lpIDs []uuid.UUID) ([]Node, error)
}

// Tracer walks the graph breadth first.
type Tracer struct {
	store Store
}

// NewTracer constructs Tracer.
func NewTracer(store Store) *Tracer {
	return &Tracer{store: store}
}

// ClampDepth applies the default and maximum depth.
func ClampDepth(depth int) int {
	if depth <= 0 {
		return DefaultDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// Trace walks from root up to depth levels in dir. Each plate is visited once,
// so cycles created by merges terminate.
func (t *Tracer) Trace(ctx context.Context, orgID, root uuid.UUID, dir Direction, depth int) (Trace, error) {
	if dir != Forward && dir != Backward {
		return Trace{}, ErrInvalidDirection
	}
	depth = ClampDepth(depth)
	result := Trace{Root: root, Direction: dir, Depth: depth, Links: []Link{}}

	levels := map[uuid.UUID]int{root: 0}
	order := []uuid.UUID{root}
	frontier := []uuid.UUID{root}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		links, err := t.store.Links(ctx, orgID, frontier, dir)
		if err != nil {
			return Trace{}, err
		}
		var next []uuid.UUID
		for _, l := range links {
			result.Links = append(result.Links, l)
			target := l.To
			if dir == Backward {
				target = l.From
			}
			if _, seen := levels[target]; seen {
				continue
			}
			levels[target] = level
			order = append(order, target)
			next = append(next, target)
		}
		frontier = next
		if level == depth && len(frontier) > 0 {
			more, err := t.store.Links(ctx, orgID, frontier, dir)
			if err != nil {
				return Trace{}, err
			}
			result.Truncated = len(more) > 0
		}
	}

	nodes, err := t.store.Nodes(ctx, orgID, order)
	if err != nil {
		return Trace{}, err
	}
	byID := make(map[uuid.UUID]Node, len(nodes))
	for _, n := range nodes {
		byID[n.LPID] = n
	}
	if _, ok := byID[root]; !ok {
		return Trace{}, ErrLPNotFound
	}
	for _, id := range order {
		n, ok := byID[id]
		if !ok {
			continue
		}
		n.Level = levels[id]
		result.Nodes = append(result.Nodes, n)
	}
	return result, nil
}
