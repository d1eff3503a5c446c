package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"milkman/internal/calendar"
	"milkman/internal/core"
)

const internalErrorMessage = "Internal server error"

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// methodNotAllowed answers 405 with the Allow header set.
func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "Method "+r.Method+" Not Allowed", http.StatusMethodNotAllowed)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// formatQuantity prints a daily quantity without trailing zeros.
func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var templateFuncs = template.FuncMap{
	"qty":    formatQuantity,
	"liters": func(d decimal.Decimal) string { return core.FormatLiters(d) },
	"money":  func(d decimal.Decimal) string { return core.FormatMoney(d) },
	"statusClass": func(s core.DayStatus) string {
		return "day-" + string(s)
	},
	"polling": func(s calendar.SaveStatus) bool {
		return s == calendar.SavePending || s == calendar.SaveSaving
	},
	"prevMonth": func(m core.Month) string { return m.Prev().Label() },
	"nextMonth": func(m core.Month) string { return m.Next().Label() },
	"weekdays": func() []string {
		return []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	},
}
