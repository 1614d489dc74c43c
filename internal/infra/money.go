package infra

import (
	"fmt"
	"strconv"
	"strings"
)

// All monetary state is held in integer hundredths of the asset unit.
// The payment provider speaks decimal strings with two fractional digits.

// CentsToDecimal formats integer cents as a provider decimal string ("10.50").
func CentsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// DecimalToCents parses a provider decimal string into integer cents.
// Inputs with more than two fractional digits are rejected.
func DecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q has more than two fractional digits", s)
	}
	if whole == "" {
		whole = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}

	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

// FeeBasisPoints converts a decimal fee fraction (0.10) into basis points (1000)
// so fee math stays in integers: fee = total * bp / 10000, truncated.
func FeeBasisPoints(feePct float64) int64 {
	return int64(feePct*10000 + 0.5)
}

// ComputeFee returns ⌊total × feePct⌋ using basis-point integer arithmetic.
func ComputeFee(totalCents, feeBasisPoints int64) int64 {
	return totalCents * feeBasisPoints / 10000
}
