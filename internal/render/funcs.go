package render

import (
	"fmt"
	"math/big"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.English)

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case *big.Int:
		if t == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromBigInt(t, 0), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(t), 0), true
	case uint8:
		return decimal.NewFromInt(int64(t)), true
	case float64:
		return decimal.NewFromFloat(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Zero, false
}

// Amount renders a number with thousands separators. Values of at least one
// keep two fractional digits, smaller ones keep enough to stay non-zero.
func Amount(v interface{}) string {
	d, ok := toDecimal(v)
	if !ok {
		return "?"
	}
	digits := 2
	if abs := d.Abs(); !abs.IsZero() && abs.LessThan(decimal.NewFromInt(1)) {
		digits = 6
	}
	f, _ := d.Round(int32(digits)).Float64()
	return printer.Sprintf("%v", number.Decimal(f, number.MaxFractionDigits(digits)))
}

// Percent renders a fraction already scaled to percent.
func Percent(v interface{}) string {
	d, ok := toDecimal(v)
	if !ok {
		return "?"
	}
	return d.Round(2).String() + "%"
}

func plural(n interface{}, one, many string) string {
	if d, ok := toDecimal(n); ok && d.Equal(decimal.NewFromInt(1)) {
		return one
	}
	return many
}

func timestamp(v interface{}) string {
	d, ok := toDecimal(v)
	if !ok {
		return "?"
	}
	ts := time.Unix(d.IntPart(), 0).UTC()
	return fmt.Sprintf("<t:%d:R> (%s)", ts.Unix(), ts.Format("2006-01-02 15:04 UTC"))
}

func text(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"amount":    Amount,
		"percent":   Percent,
		"plural":    plural,
		"timestamp": timestamp,
		"text":      text,
		"upper":     strings.ToUpper,
		"title":     titleCase,
	}
}

// titleCase turns snake_case into words with leading capitals.
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
