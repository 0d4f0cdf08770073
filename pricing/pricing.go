package pricing

import (
	"fmt"

	"bookable/config"
)

// ErrNoMatchingTier is returned when no tier covers the requested duration.
// Handlers map it to a 400.
type ErrNoMatchingTier struct {
	DurationMinutes int64
}

func (e *ErrNoMatchingTier) Error() string {
	return fmt.Sprintf("no service offered for %d minute duration", e.DurationMinutes)
}

// Catalog holds the configured price tiers. Built once at boot, read-only.
type Catalog struct {
	tiers           []config.PriceTier
	defaultCurrency string
}

func NewCatalog(tiers []config.PriceTier, defaultCurrency string) *Catalog {
	if defaultCurrency == "" {
		defaultCurrency = "chf"
	}
	return &Catalog{tiers: tiers, defaultCurrency: defaultCurrency}
}

// TierFor resolves the tier for a duration. First match wins; the currency
// falls back to the catalog default when the tier omits it.
func (c *Catalog) TierFor(durationMinutes int64) (config.PriceTier, error) {
	for _, t := range c.tiers {
		if t.DurationMinutes == durationMinutes {
			if t.Currency == "" {
				t.Currency = c.defaultCurrency
			}
			return t, nil
		}
	}
	return config.PriceTier{}, &ErrNoMatchingTier{DurationMinutes: durationMinutes}
}

// Durations lists the offered durations, in configured order.
func (c *Catalog) Durations() []int64 {
	out := make([]int64, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t.DurationMinutes)
	}
	return out
}
