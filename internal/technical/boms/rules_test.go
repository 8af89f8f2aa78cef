package boms

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestValidateAlternativeRulesOrder(t *testing.T) {
	bomProduct := uuid.New()
	primary := Item{ProductID: uuid.New(), ProductType: "RM", UoM: "kg"}
	alt := uuid.New()

	cases := []struct {
		name     string
		altID    uuid.UUID
		existing []Alternative
		product  *Product
		want     RuleResult
	}{
		{"same as primary", primary.ProductID, nil, nil, RuleResult{Error: "SAME_AS_PRIMARY"}},
		{"circular", bomProduct, nil, &Product{ProductType: "RM", UoM: "kg"}, RuleResult{Error: "CIRCULAR_REFERENCE"}},
		{"duplicate", alt, []Alternative{{AlternativeProductID: alt, PreferenceOrder: 2}}, &Product{ProductType: "ING"}, RuleResult{Error: "DUPLICATE_ALTERNATIVE"}},
		{"type mismatch", alt, nil, &Product{ProductType: "ING", UoM: "kg"}, RuleResult{Error: "TYPE_MISMATCH"}},
		{"uom class differs", alt, nil, &Product{ProductType: "RM", UoM: "l"}, RuleResult{Valid: true, Warning: WarningUoMMismatch}},
		{"same class different unit", alt, nil, &Product{ProductType: "RM", UoM: "lbs"}, RuleResult{Valid: true}},
		{"no product details", alt, nil, nil, RuleResult{Valid: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateAlternativeRules(primary, tc.altID, tc.existing, bomProduct, tc.product)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCircularReferenceWinsRegardlessOfOtherInputs(t *testing.T) {
	bomProduct := uuid.New()
	inputs := []struct {
		primary  Item
		existing []Alternative
		product  *Product
	}{
		{Item{ProductID: uuid.New(), ProductType: "RM", UoM: "kg"}, nil, nil},
		{Item{ProductID: bomProduct, ProductType: "RM", UoM: "kg"}, nil, nil},
		{Item{ProductID: uuid.New(), ProductType: "RM"}, []Alternative{{AlternativeProductID: bomProduct}}, &Product{ProductType: "ING", UoM: "pcs"}},
	}
	for _, in := range inputs {
		got := ValidateAlternativeRules(in.primary, bomProduct, in.existing, bomProduct, in.product)
		require.False(t, got.Valid)
		require.Equal(t, "CIRCULAR_REFERENCE", got.Error)
		require.ErrorIs(t, got.Err(), ErrCircularReference)
	}
}

func TestRMVersusINGIsTypeMismatch(t *testing.T) {
	primary := Item{ProductID: uuid.New(), ProductType: "RM", UoM: "kg"}
	got := ValidateAlternativeRules(primary, uuid.New(), nil, uuid.New(), &Product{ProductType: "ING", UoM: "kg"})
	require.Equal(t, RuleResult{Valid: false, Error: "TYPE_MISMATCH"}, got)
	require.ErrorIs(t, got.Err(), ErrTypeMismatch)
}

func TestUoMClass(t *testing.T) {
	require.Equal(t, UoMClassWeight, UoMClass("KG"))
	require.Equal(t, UoMClassVolume, UoMClass(" ml "))
	require.Equal(t, UoMClassCount, UoMClass("pcs"))
	require.NotEqual(t, UoMClass("roll"), UoMClass("sheet"))
}

func TestNextPreferenceOrder(t *testing.T) {
	require.Equal(t, 2, NextPreferenceOrder(nil))
	require.Equal(t, 5, NextPreferenceOrder([]Alternative{{PreferenceOrder: 2}, {PreferenceOrder: 4}}))
	require.Equal(t, 2, NextPreferenceOrder([]Alternative{{PreferenceOrder: 0}}))
}
