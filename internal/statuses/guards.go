package statuses

import "context"

// Fact names populated by entity modules before validating a transition.
const (
	FactLineCount     = "line_count"
	FactMaterialCount = "material_count"
	FactOutputCount   = "output_count"
)

// Guard names referenced from transition rows.
const (
	GuardPOHasLines     = "po_has_lines"
	GuardWOHasMaterials = "wo_has_materials"
	GuardWOHasOutput    = "wo_has_output"
)

// DefaultGuards returns a fresh registry of the built-in guards.
func DefaultGuards() map[string]Guard {
	return map[string]Guard{
		GuardPOHasLines:     requireFact(FactLineCount, "cannot submit PO with zero line items"),
		GuardWOHasMaterials: requireFact(FactMaterialCount, "cannot release a work order without materials"),
		GuardWOHasOutput:    requireFact(FactOutputCount, "cannot complete a work order without registered output"),
	}
}

func requireFact(name, message string) Guard {
	return func(_ context.Context, req Request) error {
		if req.Fact(name) <= 0 {
			return ErrGuardFailed.WithMessage("%s", message)
		}
		return nil
	}
}
