package core

import (
	"errors"
	"time"
)

// Category identifies one of the two independently billed delivery lines.
type Category int

const (
	Category1 Category = 1
	Category2 Category = 2
)

type (
	// Settings is the singleton billing configuration: one global per-liter
	// rate and the fallback daily quantity for each category.
	Settings struct {
		GlobalRate       float64
		DefaultCategory1 float64
		DefaultCategory2 float64
		UpdatedAt        time.Time
	}

	// Override replaces the default daily quantities for a single date.
	Override struct {
		Date            DateKey
		Category1Amount float64
		Category2Amount float64
		UpdatedAt       time.Time
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidCategory = errors.New("invalid category")
	ErrNegativeAmount  = errors.New("amount must not be negative")
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == Category1 || c == Category2
}

func (c Category) String() string {
	switch c {
	case Category1:
		return "category1"
	case Category2:
		return "category2"
	default:
		return "unknown"
	}
}

// Default returns the configured fallback quantity for the category.
func (s Settings) Default(c Category) float64 {
	if c == Category2 {
		return s.DefaultCategory2
	}
	return s.DefaultCategory1
}

// Validate checks the non-negativity constraints on every scalar.
func (s Settings) Validate() error {
	if s.GlobalRate < 0 || s.DefaultCategory1 < 0 || s.DefaultCategory2 < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// Amount returns the override quantity for the category.
func (o Override) Amount(c Category) float64 {
	if c == Category2 {
		return o.Category2Amount
	}
	return o.Category1Amount
}

// With returns a copy of o where the given category carries amount.
func (o Override) With(c Category, amount float64) Override {
	if c == Category2 {
		o.Category2Amount = amount
	} else {
		o.Category1Amount = amount
	}
	return o
}

// IsNoDelivery reports whether both categories were explicitly zeroed.
func (o Override) IsNoDelivery() bool {
	return o.Category1Amount == 0 && o.Category2Amount == 0
}

// Validate checks the date key and the non-negativity of both quantities.
func (o Override) Validate() error {
	if _, err := ParseDateKey(string(o.Date)); err != nil {
		return err
	}
	if o.Category1Amount < 0 || o.Category2Amount < 0 {
		return ErrNegativeAmount
	}
	return nil
}

// NoDelivery builds the zero override for a date.
func NoDelivery(date DateKey) Override {
	return Override{Date: date}
}
