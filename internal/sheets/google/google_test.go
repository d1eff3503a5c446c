package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"milkman/internal/core"
)

// fakeSheets serves the three Sheets endpoints the client uses.
type fakeSheets struct {
	mu      sync.Mutex
	titles  []string
	added   []string
	gets    int
	updates map[string][][]any
	inputs  map[string]string
}

func newFakeSheets(titles ...string) *fakeSheets {
	return &fakeSheets{
		titles:  titles,
		updates: make(map[string][][]any),
		inputs:  make(map[string]string),
	}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sheet-1"):
		f.gets++
		var ss gsheet.Spreadsheet
		for _, t := range f.titles {
			ss.Sheets = append(ss.Sheets, &gsheet.Sheet{Properties: &gsheet.SheetProperties{Title: t}})
		}
		_ = json.NewEncoder(w).Encode(ss)

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.added = append(f.added, rq.AddSheet.Properties.Title)
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.updates[rng] = vr.Values
		f.inputs[rng] = r.URL.Query().Get("valueInputOption")
		_ = json.NewEncoder(w).Encode(gsheet.UpdateValuesResponse{UpdatedRange: rng})

	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)

	c := New(svc, "sheet-1", "Bills")
	c.now = func() time.Time { return time.Date(2023, time.March, 1, 8, 0, 0, 0, time.UTC) }
	return c
}

func februaryBill() core.Bill {
	feb := core.Month{Year: 2023, Month: time.February}
	settings := core.Settings{GlobalRate: 60, DefaultCategory1: 2.0, DefaultCategory2: 2.5}
	return core.ComputeBill(feb, settings, []core.Override{
		core.NoDelivery(feb.Day(5)),
		{Date: feb.Day(10), Category1Amount: 3.0, Category2Amount: 2.5},
	})
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Bills", 2025, "2025 Bills"},
		{"", 2023, ""},
		{"Milk Bills", 2022, "2022 Milk Bills"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"},
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestMonthRange(t *testing.T) {
	assert.Equal(t, "'2023 Bills'!A3:J3", monthRange("2023 Bills", core.Month{Year: 2023, Month: time.February}))
	assert.Equal(t, "'2023 Bills'!A13:J13", monthRange("2023 Bills", core.Month{Year: 2023, Month: time.December}))
	assert.Equal(t, "'Bob''s 2023'!A2:J2", monthRange("Bob's 2023", core.Month{Year: 2023, Month: time.January}))
}

func TestBillRow(t *testing.T) {
	row := billRow(februaryBill(), time.Date(2023, time.March, 1, 8, 0, 0, 0, time.UTC))
	require.Len(t, row, len(headerRow()))
	assert.Equal(t, []any{
		"February 2023", "60.00",
		"55.0", 27, "3300.00",
		"67.5", 27, "4050.00",
		"7350.00", "2023-03-01T08:00:00Z",
	}, row)
}

func TestWriteBill_CreatesYearSheetOnce(t *testing.T) {
	fake := newFakeSheets("Sheet1")
	c := newTestClient(t, fake)
	ctx := context.Background()

	ref, err := c.WriteBill(ctx, februaryBill())
	require.NoError(t, err)
	assert.Equal(t, "'2023 Bills'!A3:J3", ref)

	march := core.ComputeBill(core.Month{Year: 2023, Month: time.March}, core.Settings{GlobalRate: 60, DefaultCategory1: 1}, nil)
	_, err = c.WriteBill(ctx, march)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"2023 Bills"}, fake.added)
	assert.Equal(t, 1, fake.gets, "sheet lookup should be remembered")

	header := fake.updates["'2023 Bills'!A1:J1"]
	require.Len(t, header, 1)
	assert.Equal(t, "Month", header[0][0])
	assert.Equal(t, "RAW", fake.inputs["'2023 Bills'!A1:J1"])

	feb := fake.updates["'2023 Bills'!A3:J3"]
	require.Len(t, feb, 1)
	assert.Equal(t, "February 2023", feb[0][0])
	assert.Equal(t, "7350.00", feb[0][8])
	assert.Equal(t, "USER_ENTERED", fake.inputs["'2023 Bills'!A3:J3"])

	mar := fake.updates["'2023 Bills'!A4:J4"]
	require.Len(t, mar, 1)
	assert.Equal(t, "March 2023", mar[0][0])
	assert.Equal(t, "31.0", mar[0][2])
}

func TestWriteBill_ExistingSheet(t *testing.T) {
	fake := newFakeSheets("2023 Bills")
	c := newTestClient(t, fake)

	_, err := c.WriteBill(context.Background(), februaryBill())
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.added)
	assert.NotContains(t, fake.updates, "'2023 Bills'!A1:J1")
	assert.Contains(t, fake.updates, "'2023 Bills'!A3:J3")
}

func TestWriteBill_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"caller does not have permission"}}`, http.StatusForbidden)
	}))
	defer ts.Close()

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(ts.URL+"/"),
		goption.WithHTTPClient(ts.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)

	_, err = New(svc, "sheet-1", "").WriteBill(context.Background(), februaryBill())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read spreadsheet")
}

func TestWriteBill_NilService(t *testing.T) {
	_, err := New(nil, "sheet-1", "Bills").WriteBill(context.Background(), februaryBill())
	assert.EqualError(t, err, "sheets service not initialized")
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromEnv(context.Background(), "  ", "Bills")
	assert.EqualError(t, err, "missing GOOGLE_SPREADSHEET_ID")
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background(), "sheet-1", "Bills")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNewFromEnv_UnreadableCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")

	_, err := NewFromEnv(context.Background(), "sheet-1", "Bills")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}
