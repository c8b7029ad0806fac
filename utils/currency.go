package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice formats an amount with thousands separators and two decimals,
// e.g. 15000.5 -> "15,000.50".
func FormatPrice(amount decimal.Decimal) string {
	s := amount.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.SplitN(s, ".", 2)
	integerPart := parts[0]

	var groups []string
	for i := len(integerPart); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		groups = append([]string{integerPart[start:i]}, groups...)
	}

	out := strings.Join(groups, ",") + "." + parts[1]
	if neg {
		out = "-" + out
	}
	return out
}
