package core

import "fmt"

// RateSource names the two historical fallback rates. The JSON settings
// endpoint and the calendar screen disagreed on the per-liter rate used
// before anything was saved; deployments pick one explicitly.
type RateSource string

const (
	RateSourceAPI RateSource = "api"
	RateSourceUI  RateSource = "ui"
)

const (
	APIDefaultRate      = 150.0
	UIDefaultRate       = 60.0
	DefaultCategory1Qty = 2.0
	DefaultCategory2Qty = 2.5
)

// Rate returns the fallback rate for the source.
func (r RateSource) Rate() (float64, error) {
	switch r {
	case RateSourceAPI:
		return APIDefaultRate, nil
	case RateSourceUI:
		return UIDefaultRate, nil
	default:
		return 0, fmt.Errorf("unknown rate source %q: must be %q or %q", string(r), RateSourceAPI, RateSourceUI)
	}
}

// DefaultSettings returns the settings used while nothing is persisted.
func DefaultSettings(rate, cat1, cat2 float64) Settings {
	return Settings{
		GlobalRate:       rate,
		DefaultCategory1: cat1,
		DefaultCategory2: cat2,
	}
}
