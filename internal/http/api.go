package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"milkman/internal/auth"
	"milkman/internal/core"
	"milkman/internal/log"
)

type settingsResponse struct {
	GlobalRate       float64    `json:"globalRate"`
	DefaultCategory1 float64    `json:"defaultCategory1"`
	DefaultCategory2 float64    `json:"defaultCategory2"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

type overrideResponse struct {
	Date            string     `json:"date"`
	Category1Amount float64    `json:"category1Amount"`
	Category2Amount float64    `json:"category2Amount"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

type categoryBillResponse struct {
	TotalLiters string `json:"totalLiters"`
	TotalAmount string `json:"totalAmount"`
	ActiveDays  int    `json:"activeDays"`
}

type billResponse struct {
	Year      int                  `json:"year"`
	Month     int                  `json:"month"`
	Rate      string               `json:"rate"`
	Category1 categoryBillResponse `json:"category1"`
	Category2 categoryBillResponse `json:"category2"`
	Total     string               `json:"total"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func toSettingsResponse(st core.Settings) settingsResponse {
	return settingsResponse{
		GlobalRate:       st.GlobalRate,
		DefaultCategory1: st.DefaultCategory1,
		DefaultCategory2: st.DefaultCategory2,
		UpdatedAt:        timePtr(st.UpdatedAt),
	}
}

func toCategoryBillResponse(cb core.CategoryBill) categoryBillResponse {
	return categoryBillResponse{
		TotalLiters: core.FormatLiters(cb.TotalLiters),
		TotalAmount: core.FormatMoney(cb.TotalAmount),
		ActiveDays:  cb.ActiveDays,
	}
}

// handleAPIAuth checks the shared credential pair and issues a session cookie.
func (s *Server) handleAPIAuth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method not allowed"})
		return
	}

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := body.Get("username")
	token, sess, ok := s.login(r.Context(), username, body.Value("password"))
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Invalid username or password",
		})
		return
	}
	if token == "" {
		writeJSONError(w, http.StatusInternalServerError, internalErrorMessage)
		return
	}

	http.SetCookie(w, s.sessionCookie(r, token, sess))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"message":   "Authentication successful",
		"expiresAt": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAPISettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st, err := s.ledger.GetSettings(r.Context())
		if err != nil {
			s.apiFailure(w, r, "Failed to load settings", err, log.OpRead, nil)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsResponse(st))

	case http.MethodPost:
		body := NewRequestBodyParser(r)
		if err := body.Parse(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req := settingsRequest{
			GlobalRate:       body.Quantity("globalRate"),
			DefaultCategory1: body.Quantity("defaultCategory1"),
			DefaultCategory2: body.Quantity("defaultCategory2"),
		}
		if err := validate.Struct(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		st := core.Settings{
			GlobalRate:       req.GlobalRate,
			DefaultCategory1: req.DefaultCategory1,
			DefaultCategory2: req.DefaultCategory2,
		}
		if err := s.ledger.SaveSettings(r.Context(), st); err != nil {
			s.apiFailure(w, r, "Failed to save settings", err, log.OpUpsert, nil)
			return
		}
		atomic.AddInt64(&s.appMetrics.settingsSaves, 1)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleAPIOverrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		m, err := ParseMonthParams(r.URL.Query())
		if err != nil {
			msg := "Year and month are required"
			if !errors.Is(err, errMissingMonth) {
				msg = err.Error()
			}
			writeJSONError(w, http.StatusBadRequest, msg)
			return
		}
		list, err := s.ledger.ListOverrides(r.Context(), m)
		if err != nil {
			s.apiFailure(w, r, "Failed to list overrides", err, log.OpList,
				log.NewFields().WithMonth(m.Year, int(m.Month)))
			return
		}
		out := make([]overrideResponse, 0, len(list))
		for _, o := range list {
			out = append(out, overrideResponse{
				Date:            o.Date.String(),
				Category1Amount: o.Category1Amount,
				Category2Amount: o.Category2Amount,
				UpdatedAt:       timePtr(o.UpdatedAt),
			})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		body := NewRequestBodyParser(r)
		if err := body.Parse(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		req := overrideRequest{
			Date:            body.Get("date"),
			Category1Amount: body.Quantity("category1Amount"),
			Category2Amount: body.Quantity("category2Amount"),
		}
		if err := validate.Struct(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		o := core.Override{
			Date:            core.DateKey(req.Date),
			Category1Amount: req.Category1Amount,
			Category2Amount: req.Category2Amount,
		}
		if err := s.ledger.SaveOverride(r.Context(), o); err != nil {
			if isValidationError(err) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			s.apiFailure(w, r, "Failed to save override", err, log.OpUpsert,
				log.NewFields().WithOverride(req.Date, req.Category1Amount, req.Category2Amount))
			return
		}
		atomic.AddInt64(&s.appMetrics.overrideSaves, 1)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleAPIBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	m, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		msg := "Year and month are required"
		if !errors.Is(err, errMissingMonth) {
			msg = err.Error()
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	bill, err := s.ledger.MonthBill(r.Context(), m)
	if err != nil {
		s.apiFailure(w, r, "Failed to compute bill", err, log.OpRead,
			log.NewFields().WithMonth(m.Year, int(m.Month)))
		return
	}
	writeJSON(w, http.StatusOK, billResponse{
		Year:      m.Year,
		Month:     int(m.Month),
		Rate:      core.FormatMoney(bill.Rate),
		Category1: toCategoryBillResponse(bill.Category1),
		Category2: toCategoryBillResponse(bill.Category2),
		Total:     core.FormatMoney(bill.Total()),
	})
}

// apiFailure logs the cause and answers with the generic 500 body.
func (s *Server) apiFailure(w http.ResponseWriter, r *http.Request, msg string, err error, op string, fields log.LogFields) {
	s.events.LogError(r.Context(), msg, err, log.ComponentAPI, op, fields)
	writeJSONError(w, http.StatusInternalServerError, internalErrorMessage)
}

// login checks credentials and issues a session. A true result with an empty
// token means signing failed.
func (s *Server) login(ctx context.Context, username, password string) (string, auth.Session, bool) {
	authLog := s.logger.WithComponent(log.ComponentAuth)
	if s.gate == nil || !s.gate.Check(username, password) {
		atomic.AddInt64(&s.appMetrics.failedLogins, 1)
		authLog.WarnContext(ctx, "Login rejected", log.FieldOperation, log.OpLogin)
		return "", auth.Session{}, false
	}
	token, sess, err := s.sessions.Issue(username)
	if err != nil {
		authLog.ErrorContext(ctx, "Failed to issue session", log.FieldError, err, log.FieldOperation, log.OpLogin)
		return "", auth.Session{}, true
	}
	atomic.AddInt64(&s.appMetrics.logins, 1)
	authLog.InfoContext(ctx, "Login succeeded", log.FieldSessionID, sess.ID, log.FieldOperation, log.OpLogin)
	return token, sess, true
}
