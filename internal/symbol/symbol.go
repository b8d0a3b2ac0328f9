package symbol

import (
	"fmt"
	"strings"
)

// MinLength is the shortest accepted trading symbol (e.g. XRPUSD).
const MinLength = 6

// Normalize upper-cases a symbol for use as a map key.
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// Validate checks that a symbol is well-formed: at least MinLength
// characters, upper-case letters and digits only.
func Validate(sym string) error {
	if len(sym) < MinLength {
		return fmt.Errorf("symbol %q too short (min %d chars)", sym, MinLength)
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("symbol %q contains invalid character %q", sym, r)
		}
	}
	return nil
}

// steps maps symbols with a known quote-price step. Symbols not listed
// fall back to a magnitude-based default.
var steps = map[string]float64{
	"BTCUSDT": 1.0,
	"ETHUSDT": 0.1,
	"BNBUSDT": 0.1,
}

// Step returns the price step used to bucket order-book levels for a
// symbol. For unlisted symbols the step scales with price magnitude so
// that buckets stay meaningful across assets.
func Step(sym string, price float64) float64 {
	if s, ok := steps[Normalize(sym)]; ok {
		return s
	}
	switch {
	case price >= 10000:
		return 1.0
	case price >= 1000:
		return 0.1
	case price >= 100:
		return 0.01
	case price >= 1:
		return 0.001
	default:
		return 0.00001
	}
}

// Bucket quantizes a price to the symbol's step.
func Bucket(sym string, price float64) float64 {
	step := Step(sym, price)
	n := int64(price/step + 0.5)
	return float64(n) * step
}
