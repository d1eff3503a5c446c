//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"milkman/internal/core"
)

// Integration tests require a real spreadsheet shared with the service account.
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_WriteBill(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	spreadsheetID := os.Getenv("GOOGLE_SPREADSHEET_ID")
	if spreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx, spreadsheetID, "Integration Bills")
	if err != nil {
		t.Skipf("credentials not configured: %v", err)
	}

	m := core.MonthOf(time.Now())
	bill := core.ComputeBill(m, core.Settings{GlobalRate: 60, DefaultCategory1: 2, DefaultCategory2: 2.5}, nil)

	ref, err := client.WriteBill(ctx, bill)
	if err != nil {
		t.Fatalf("write bill: %v", err)
	}
	t.Logf("wrote %s", ref)

	// A second write for the same month lands on the same row.
	again, err := client.WriteBill(ctx, bill)
	if err != nil {
		t.Fatalf("rewrite bill: %v", err)
	}
	if again != ref {
		t.Errorf("rewrite went to %s, want %s", again, ref)
	}
}
