package admission

import (
	"sort"

	"conductor/pkg/faults"
)

// Tier grants a per-unit discount once the requested quantity reaches
// MinQuantity. Discount is a fraction of the base rate (0.15 = 15% off).
type Tier struct {
	MinQuantity int     `yaml:"min_quantity"`
	Discount    float64 `yaml:"discount"`
}

// Rate prices one operation type: a base cost per unit plus optional
// quantity discount tiers.
type Rate struct {
	UnitCost float64 `yaml:"unit_cost"`
	Tiers    []Tier  `yaml:"tiers,omitempty"`
}

// RateTable maps operation types to their pricing. Tables are built once
// at startup and read-only afterward.
type RateTable struct {
	rates map[string]Rate
}

// NewRateTable builds a table from operation pricing. Tiers are sorted by
// ascending MinQuantity so the steepest applicable discount wins.
func NewRateTable(rates map[string]Rate) *RateTable {
	normalized := make(map[string]Rate, len(rates))
	for op, rate := range rates {
		tiers := make([]Tier, len(rate.Tiers))
		copy(tiers, rate.Tiers)
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinQuantity < tiers[j].MinQuantity })
		normalized[op] = Rate{UnitCost: rate.UnitCost, Tiers: tiers}
	}

	return &RateTable{rates: normalized}
}

// Estimate computes the cost of quantity units of operationType, applying
// the best discount tier the quantity qualifies for. Unknown operation
// types are a terminal error: pricing must be explicit, never defaulted.
func (t *RateTable) Estimate(operationType string, quantity int) (float64, error) {
	rate, ok := t.rates[operationType]
	if !ok {
		return 0, faults.Newf(faults.KindTerminal, "no rate configured for operation %q", operationType)
	}
	if quantity <= 0 {
		return 0, faults.Newf(faults.KindTerminal, "quantity must be positive, got %d", quantity)
	}

	discount := 0.0
	for _, tier := range rate.Tiers {
		if quantity >= tier.MinQuantity {
			discount = tier.Discount
		}
	}

	return float64(quantity) * rate.UnitCost * (1 - discount), nil
}

// Known reports whether operationType has configured pricing.
func (t *RateTable) Known(operationType string) bool {
	_, ok := t.rates[operationType]

	return ok
}
