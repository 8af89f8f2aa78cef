package statuses

import (
	"sort"

	"github.com/google/uuid"
)

type edge struct {
	from string
	to   string
}

// Config is one organisation's status set and transition allow-list for a
// single entity type. It is loaded once per request and passed explicitly to
// the engine; nothing in this package keeps configuration in globals.
type Config struct {
	EntityType  EntityType
	Statuses    []Status
	Transitions []Transition

	byCode map[string]Status
	byID   map[uuid.UUID]Status
	edges  map[edge]Transition
}

// NewConfig indexes statuses and transitions. Transition codes are resolved
// from status ids when missing.
func NewConfig(entity EntityType, statuses []Status, transitions []Transition) *Config {
	cfg := &Config{
		EntityType: entity,
		byCode:     make(map[string]Status, len(statuses)),
		byID:       make(map[uuid.UUID]Status, len(statuses)),
		edges:      make(map[edge]Transition, len(transitions)),
	}
	cfg.Statuses = append(cfg.Statuses, statuses...)
	sort.SliceStable(cfg.Statuses, func(i, j int) bool { return cfg.Statuses[i].SortOrder < cfg.Statuses[j].SortOrder })
	for _, s := range cfg.Statuses {
		cfg.byCode[s.Code] = s
		cfg.byID[s.ID] = s
	}
	for _, t := range transitions {
		if t.FromCode == "" {
			t.FromCode = cfg.byID[t.FromStatusID].Code
		}
		if t.ToCode == "" {
			t.ToCode = cfg.byID[t.ToStatusID].Code
		}
		cfg.Transitions = append(cfg.Transitions, t)
		cfg.edges[edge{from: t.FromCode, to: t.ToCode}] = t
	}
	return cfg
}

// Status looks up a status by code.
func (c *Config) Status(code string) (Status, bool) {
	s, ok := c.byCode[code]
	return s, ok
}

// StatusByID looks up a status by id.
func (c *Config) StatusByID(id uuid.UUID) (Status, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Transition returns the allow-listed edge from -> to.
func (c *Config) Transition(from, to string) (Transition, bool) {
	t, ok := c.edges[edge{from: from, to: to}]
	return t, ok
}

// TransitionByID finds a configured edge by id.
func (c *Config) TransitionByID(id uuid.UUID) (Transition, bool) {
	for _, t := range c.Transitions {
		if t.ID == id {
			return t, true
		}
	}
	return Transition{}, false
}

// Targets lists the statuses reachable from code in sort order.
func (c *Config) Targets(code string) []Status {
	out := make([]Status, 0)
	for _, s := range c.Statuses {
		if _, ok := c.edges[edge{from: code, to: s.Code}]; ok {
			out = append(out, s)
		}
	}
	return out
}
