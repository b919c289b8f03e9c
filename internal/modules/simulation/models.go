// Package simulation provides the deterministic portfolio simulation
// engine. Simulation is a pure function from (spec, dataset version) to
// metrics: no randomness, no clock reads, and every reduction iterates
// the spec's assets in declared order so results are bit-identical across
// runs and platforms.
package simulation

import (
	"sort"
	"strings"
)

// AssetParams holds the frozen historical parameters for one asset in a
// dataset snapshot. Values are annualized percentages.
type AssetParams struct {
	ExpectedReturn float64 `msgpack:"expected_return" json:"expected_return"`
	Volatility     float64 `msgpack:"volatility" json:"volatility"`
}

// Dataset is one immutable, versioned snapshot of asset parameters.
// Pairwise correlations default to DefaultCorrelation unless an explicit
// pair entry exists.
type Dataset struct {
	Version            string
	Assets             map[string]AssetParams
	DefaultCorrelation float64
	Correlations       map[string]float64 // keyed by CorrelationKey(a, b)
}

// CorrelationKey builds the canonical lookup key for an unordered symbol
// pair.
func CorrelationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Corr returns the correlation between two assets. An asset correlates
// perfectly with itself.
func (d *Dataset) Corr(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if rho, ok := d.Correlations[CorrelationKey(a, b)]; ok {
		return rho
	}
	return d.DefaultCorrelation
}

// Symbols returns the dataset's asset symbols in lexicographic order,
// for stable iteration in summaries and analyses.
func (d *Dataset) Symbols() []string {
	symbols := make([]string, 0, len(d.Assets))
	for symbol := range d.Assets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// splitCorrelationKey is the inverse of CorrelationKey.
func splitCorrelationKey(key string) (string, string) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}
