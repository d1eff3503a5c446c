package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DayStatus classifies a day for the calendar legend.
type DayStatus string

const (
	StatusDefault    DayStatus = "default"
	StatusModified   DayStatus = "modified"
	StatusNoDelivery DayStatus = "no-delivery"
)

type (
	// CategoryBill aggregates one category over a month.
	CategoryBill struct {
		Category    Category
		TotalLiters decimal.Decimal
		TotalAmount decimal.Decimal
		ActiveDays  int
	}

	// Bill is the derived monthly invoice. It is never persisted.
	Bill struct {
		Month     Month
		Rate      decimal.Decimal
		Category1 CategoryBill
		Category2 CategoryBill
	}
)

// EffectiveAmount returns the override value when one exists, otherwise the
// settings default for the category.
func EffectiveAmount(s Settings, o *Override, c Category) float64 {
	if o != nil {
		return o.Amount(c)
	}
	return s.Default(c)
}

// ClassifyDay applies the legend rules: a {0,0} override is no-delivery, an
// override differing from the defaults in any category is modified, anything
// else is default.
func ClassifyDay(s Settings, o *Override) DayStatus {
	if o == nil {
		return StatusDefault
	}
	if o.IsNoDelivery() {
		return StatusNoDelivery
	}
	if o.Category1Amount != s.DefaultCategory1 || o.Category2Amount != s.DefaultCategory2 {
		return StatusModified
	}
	return StatusDefault
}

// IndexOverrides maps overrides by date. Later entries win on duplicate keys.
func IndexOverrides(overrides []Override) map[DateKey]Override {
	idx := make(map[DateKey]Override, len(overrides))
	for _, o := range overrides {
		idx[o.Date] = o
	}
	return idx
}

// ComputeBill walks every day of the month and totals the effective amounts.
// Overrides outside the month are ignored.
func ComputeBill(m Month, s Settings, overrides []Override) Bill {
	idx := IndexOverrides(overrides)
	rate := decimal.NewFromFloat(s.GlobalRate)

	bill := Bill{
		Month:     m,
		Rate:      rate,
		Category1: CategoryBill{Category: Category1},
		Category2: CategoryBill{Category: Category2},
	}

	for day := 1; day <= m.Days(); day++ {
		var op *Override
		if o, ok := idx[m.Day(day)]; ok {
			op = &o
		}
		bill.Category1.add(EffectiveAmount(s, op, Category1))
		bill.Category2.add(EffectiveAmount(s, op, Category2))
	}

	bill.Category1.TotalAmount = bill.Category1.TotalLiters.Mul(rate)
	bill.Category2.TotalAmount = bill.Category2.TotalLiters.Mul(rate)
	return bill
}

func (cb *CategoryBill) add(amount float64) {
	cb.TotalLiters = cb.TotalLiters.Add(decimal.NewFromFloat(amount))
	if amount > 0 {
		cb.ActiveDays++
	}
}

// For returns the aggregate for one category.
func (b Bill) For(c Category) CategoryBill {
	if c == Category2 {
		return b.Category2
	}
	return b.Category1
}

// Total is the sum of both category amounts.
func (b Bill) Total() decimal.Decimal {
	return b.Category1.TotalAmount.Add(b.Category2.TotalAmount)
}

// FormatLiters rounds to one decimal for display.
func FormatLiters(d decimal.Decimal) string {
	return d.StringFixed(1)
}

// FormatMoney rounds to two decimals for display.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// quantityPrefix matches the leading decimal number of an input, the way a
// browser's parseFloat reads "3abc" as 3 and "2,5" as 2.
var quantityPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ParseQuantity coerces user input into a quantity: the leading number is
// used and anything after it ignored; empty or non-numeric input becomes 0.
// Negative values are returned as-is so callers can reject them.
func ParseQuantity(raw string) float64 {
	num := quantityPrefix.FindString(strings.TrimSpace(raw))
	if num == "" {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	return Sanitize(v)
}

// Sanitize maps NaN and infinities to 0.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
