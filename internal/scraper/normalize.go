package scraper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"quotescraper/models"
)

// NormalizeSymbol canonicalizes symbol and appends the market suffix the
// source expects (":BVMF", ".SA") unless it is already there.
func NormalizeSymbol(symbol, suffix string) string {
	symbol = models.CanonicalSymbol(symbol)
	suffix = strings.ToUpper(strings.TrimSpace(suffix))
	if symbol == "" || suffix == "" || strings.HasSuffix(symbol, suffix) {
		return symbol
	}
	return symbol + suffix
}

var numberNoise = strings.NewReplacer(
	"US$", "",
	"R$", "",
	"BRL", "",
	"$", "",
	"%", "",
	"+", "",
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\u2212", "-",
	"\u2013", "-",
)

// ParseNumber reads a displayed price or variation such as "R$ 1.234,56",
// "+0,45%" or "-1,234.5". When both separators appear the last one is the
// decimal point. A single comma is a decimal comma; repeated commas or
// repeated dots are thousands separators.
func ParseNumber(raw string) (decimal.Decimal, error) {
	s := numberNoise.Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty number %q", raw)
	}

	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number %q", raw)
	}
	return d, nil
}

// degenerate is true for a value that is missing, non-numeric or zero.
func degenerate(raw string) bool {
	d, err := ParseNumber(raw)
	return err != nil || d.IsZero()
}

// IsNoise reports whether both variation fields are degenerate, the shape an
// inactive or delisted ticker leaves on the quote page.
func IsNoise(f Fields) bool {
	return degenerate(f.Variation) && degenerate(f.VariationPct)
}
