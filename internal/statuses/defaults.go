package statuses

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type seedTransition struct {
	From             string `yaml:"from"`
	To               string `yaml:"to"`
	System           bool   `yaml:"system"`
	RequiresApproval bool   `yaml:"requires_approval"`
	RequiresReason   bool   `yaml:"requires_reason"`
	Guard            string `yaml:"guard"`
}

type seedEntity struct {
	Statuses    []string         `yaml:"statuses"`
	Transitions []seedTransition `yaml:"transitions"`
}

var (
	defaultsOnce sync.Once
	defaults     map[EntityType]seedEntity
	defaultsErr  error
)

func loadDefaults() (map[EntityType]seedEntity, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = parseDefaults(defaultsYAML)
	})
	return defaults, defaultsErr
}

func parseDefaults(raw []byte) (map[EntityType]seedEntity, error) {
	out := make(map[EntityType]seedEntity)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("statuses: parse defaults: %w", err)
	}
	for entity, def := range out {
		if !entity.Valid() {
			return nil, fmt.Errorf("statuses: unknown entity %q in defaults", entity)
		}
		known := make(map[string]bool, len(def.Statuses))
		for _, code := range def.Statuses {
			known[code] = true
		}
		for _, t := range def.Transitions {
			if !known[t.From] || !known[t.To] {
				return nil, fmt.Errorf("statuses: %s transition %s->%s references unknown status", entity, t.From, t.To)
			}
			if t.From == t.To {
				return nil, fmt.Errorf("statuses: %s self transition %s", entity, t.From)
			}
		}
	}
	return out, nil
}

// DisplayName turns a status code such as in_progress into "In Progress".
func DisplayName(code string) string {
	// Casers are stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(code, "_", " "))
}

// defaultID derives a stable id for default rows so the same default always
// maps to the same id within an organisation.
func defaultID(orgID uuid.UUID, entity EntityType, parts ...string) uuid.UUID {
	name := string(entity) + ":" + strings.Join(parts, ":")
	return uuid.NewSHA1(orgID, []byte(name))
}

// DefaultConfig builds the seeded configuration of entity for orgID.
func DefaultConfig(orgID uuid.UUID, entity EntityType) (*Config, error) {
	all, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	def, ok := all[entity]
	if !ok {
		return nil, ErrUnknownEntity
	}
	statuses := make([]Status, 0, len(def.Statuses))
	ids := make(map[string]uuid.UUID, len(def.Statuses))
	for i, code := range def.Statuses {
		id := defaultID(orgID, entity, "status", code)
		ids[code] = id
		statuses = append(statuses, Status{
			ID:         id,
			OrgID:      orgID,
			EntityType: entity,
			Code:       code,
			Name:       DisplayName(code),
			IsSystem:   true,
			SortOrder:  (i + 1) * 10,
		})
	}
	transitions := make([]Transition, 0, len(def.Transitions))
	for _, t := range def.Transitions {
		transitions = append(transitions, Transition{
			ID:               defaultID(orgID, entity, "transition", t.From, t.To),
			OrgID:            orgID,
			EntityType:       entity,
			FromStatusID:     ids[t.From],
			ToStatusID:       ids[t.To],
			FromCode:         t.From,
			ToCode:           t.To,
			IsSystem:         t.System,
			RequiresApproval: t.RequiresApproval,
			RequiresReason:   t.RequiresReason,
			Guard:            t.Guard,
		})
	}
	return NewConfig(entity, statuses, transitions), nil
}
