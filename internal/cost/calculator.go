// Package cost estimates and tracks spend for paid external calls.
package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic    map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Encyclopedia FlatRate             `yaml:"encyclopedia" mapstructure:"encyclopedia"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// FlatRate is a fixed price per lookup.
type FlatRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// EncyclopediaQuery returns the flat cost per encyclopedia lookup.
func (c *Calculator) EncyclopediaQuery() float64 {
	return c.rates.Encyclopedia.PerQuery
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Encyclopedia: FlatRate{PerQuery: 0.001},
	}
}
