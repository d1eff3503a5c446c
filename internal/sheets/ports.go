package sheets

import (
	"context"

	"milkman/internal/core"
)

// Ports for outbound adapters.
type (
	// BillWriter records a computed monthly bill outside the ledger. Writing
	// the same month again replaces the previous record.
	BillWriter interface {
		WriteBill(ctx context.Context, bill core.Bill) (rowRef string, err error)
	}
)
