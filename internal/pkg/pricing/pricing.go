package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/medlemshub/medlemshub/internal/pkg/env"
)

type Plan string

const (
	PlanStandard Plan = "standard"
)

// FeeConfig holds the fee parameters for one pricing plan. The values are
// explicit configuration injected into the fee policy, never hidden
// constants, so plans can differ without code changes.
type FeeConfig struct {
	// AnnualFee is what an organization owes the platform per billing year.
	AnnualFee decimal.Decimal
	// FlatFee is the fixed per-transaction service fee once the annual fee
	// is cleared.
	FlatFee decimal.Decimal
	// Rate is the percentage per-transaction service fee (e.g. 0.025).
	Rate decimal.Decimal
}

// Catalog maps pricing plans to their fee configuration.
type Catalog struct {
	configs map[Plan]FeeConfig
	def     FeeConfig
}

// NewCatalog creates a catalog with the given default config for unknown plans.
func NewCatalog(def FeeConfig) *Catalog {
	return &Catalog{
		configs: map[Plan]FeeConfig{PlanStandard: def},
		def:     def,
	}
}

// NewCatalogFromEnv builds the catalog from environment configuration.
func NewCatalogFromEnv() *Catalog {
	return NewCatalog(FeeConfig{
		AnnualFee: mustDecimalEnv("SUBSCRIPTION_ANNUAL_FEE", "990"),
		FlatFee:   mustDecimalEnv("SERVICE_FEE_FLAT", "5"),
		Rate:      mustDecimalEnv("SERVICE_FEE_RATE", "0.025"),
	})
}

// Register adds or replaces the fee configuration for a plan.
func (c *Catalog) Register(plan Plan, cfg FeeConfig) {
	c.configs[plan] = cfg
}

// ConfigFor resolves an organization's pricing plan to its fee configuration.
// Unknown or empty plans fall back to the default.
func (c *Catalog) ConfigFor(plan string) FeeConfig {
	p := Plan(strings.ToLower(strings.TrimSpace(plan)))
	if cfg, ok := c.configs[p]; ok {
		return cfg
	}
	return c.def
}

// Default returns the fallback fee configuration applied to plans that are
// not registered in the catalog.
func (c *Catalog) Default() FeeConfig {
	return c.def
}

// Plans returns all registered plans.
func (c *Catalog) Plans() []Plan {
	plans := make([]Plan, 0, len(c.configs))
	for p := range c.configs {
		plans = append(plans, p)
	}
	return plans
}

func mustDecimalEnv(key, def string) decimal.Decimal {
	raw := strings.TrimSpace(env.GetEnv(key, def))
	d, err := decimal.NewFromString(raw)
	if err != nil {
		panic("invalid decimal value for " + key + ": " + raw)
	}
	return d
}
