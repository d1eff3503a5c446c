// Package store declares the persistence ports of the ledger: a singleton
// settings document and per-date override records.
package store

import (
	"context"

	"milkman/internal/core"
)

type (
	SettingsStore interface {
		// GetSettings returns the persisted settings. found is false when
		// nothing was ever written.
		GetSettings(ctx context.Context) (s core.Settings, found bool, err error)
		// PutSettings fully replaces the singleton, creating it if absent.
		PutSettings(ctx context.Context, s core.Settings) error
	}

	OverrideStore interface {
		// ListOverrides returns the overrides whose key falls inside the
		// month, ordered by date.
		ListOverrides(ctx context.Context, m core.Month) ([]core.Override, error)
		// PutOverride fully replaces the record for o.Date, creating it if absent.
		PutOverride(ctx context.Context, o core.Override) error
	}

	// Pinger is implemented by stores backed by a remote service.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	Store interface {
		SettingsStore
		OverrideStore
	}
)
