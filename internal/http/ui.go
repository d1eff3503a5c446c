package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"milkman/internal/auth"
	"milkman/internal/calendar"
	"milkman/internal/core"
	"milkman/internal/log"
)

type pageData struct {
	Session auth.Session
	Snap    calendar.Snapshot
}

type loginData struct {
	Error      string
	Configured bool
}

type viewHandler func(w http.ResponseWriter, r *http.Request, view *calendar.View)

func (s *Server) sessionCookie(r *http.Request, token string, sess auth.Session) *http.Cookie {
	return auth.Cookie(token, sess, r.TLS != nil)
}

func (s *Server) currentSession(r *http.Request) (auth.Session, bool) {
	if s.sessions == nil {
		return auth.Session{}, false
	}
	sess, err := s.sessions.FromRequest(r)
	return sess, err == nil
}

// viewFor returns the session's calendar view, loading it when new.
func (s *Server) viewFor(ctx context.Context, sess auth.Session) (*calendar.View, error) {
	view, created := s.views.Get(sess.ID, sess.ExpiresAt)
	if created || view.Phase() != calendar.PhaseViewing {
		if err := view.Load(ctx, true); err != nil {
			s.views.Drop(sess.ID)
			return nil, err
		}
	}
	return view, nil
}

// withView resolves the session and its view before calling next.
func (s *Server) withView(next viewHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.currentSession(r)
		if !ok {
			if isHTMX(r) {
				NewHTMXResponse().Redirect("/login").Status(http.StatusUnauthorized).Write(w)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		view, err := s.viewFor(r.Context(), sess)
		if err != nil {
			s.events.LogError(r.Context(), "Failed to load calendar", err, log.ComponentUI, log.OpRead, nil)
			InternalServerError().Write(w)
			return
		}
		next(w, r, view)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, ok := s.currentSession(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	view, err := s.viewFor(r.Context(), sess)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to load calendar", err, log.ComponentUI, log.OpRead, nil)
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}
	s.renderPage(w, r, "index.html", pageData{Session: sess, Snap: view.Snapshot()}, http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	configured := s.gate != nil && s.gate.Configured()
	switch r.Method {
	case http.MethodGet:
		if _, ok := s.currentSession(r); ok {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		s.renderPage(w, r, "login.html", loginData{Configured: configured}, http.StatusOK)

	case http.MethodPost:
		if b := ParseFormOrFail(r); b != nil {
			b.Write(w)
			return
		}
		token, sess, ok := s.login(r.Context(), sanitizeInput(r.PostForm.Get("username")), r.PostForm.Get("password"))
		if !ok {
			s.renderPage(w, r, "login.html", loginData{Error: "Invalid username or password", Configured: configured}, http.StatusUnauthorized)
			return
		}
		if token == "" {
			http.Error(w, internalErrorMessage, http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, s.sessionCookie(r, token, sess))
		http.Redirect(w, r, "/", http.StatusSeeOther)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if b := RequirePOST(r); b != nil {
		b.Write(w)
		return
	}
	if sess, ok := s.currentSession(r); ok {
		s.views.Drop(sess.ID)
		s.logger.WithComponent(log.ComponentAuth).InfoContext(r.Context(), "Logged out",
			log.FieldSessionID, sess.ID, log.FieldOperation, log.OpLogout)
	}
	http.SetCookie(w, auth.ClearCookie(r.TLS != nil))
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequireMethod(r, http.MethodGet); b != nil {
		b.Write(w)
		return
	}
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

// handleChangeMonth moves by delta, or jumps to year/month when both are sent.
func (s *Server) handleChangeMonth(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := s.postForm(r); b != nil {
		b.Write(w)
		return
	}

	var err error
	if r.PostForm.Get("year") != "" || r.PostForm.Get("month") != "" {
		var m core.Month
		if m, err = ParseMonthParams(r.PostForm); err == nil {
			err = view.ShowMonth(r.Context(), m)
		}
	} else {
		delta, convErr := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("delta")))
		if convErr != nil || delta < -120 || delta > 120 {
			BadRequestError("Invalid month step").Write(w)
			return
		}
		err = view.ChangeMonth(r.Context(), delta)
	}
	if err != nil {
		s.viewFailure(w, r, err, "Failed to load overrides")
		return
	}
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) handleSelectDay(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := s.postForm(r); b != nil {
		b.Write(w)
		return
	}
	key, err := core.ParseDateKey(sanitizeInput(r.PostForm.Get("date")))
	if err == nil {
		err = view.SelectDay(key)
	}
	if err != nil {
		s.viewFailure(w, r, err, "Failed to select day")
		return
	}
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) handleClearDay(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequirePOST(r); b != nil {
		b.Write(w)
		return
	}
	view.ClearSelection()
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) handleEditCategory(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := s.postForm(r); b != nil {
		b.Write(w)
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("category")))
	if err != nil {
		BadRequestError(core.ErrInvalidCategory.Error()).Write(w)
		return
	}
	if err := view.EditCategory(r.Context(), core.Category(n), r.PostForm.Get("value")); err != nil {
		s.viewFailure(w, r, err, "Failed to save override")
		return
	}
	atomic.AddInt64(&s.appMetrics.overrideSaves, 1)
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) handleNoDelivery(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequirePOST(r); b != nil {
		b.Write(w)
		return
	}
	if err := view.MarkNoDelivery(r.Context()); err != nil {
		s.viewFailure(w, r, err, "Failed to save override")
		return
	}
	atomic.AddInt64(&s.appMetrics.overrideSaves, 1)
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

// handleEditSetting updates the draft and answers with the autosave status.
func (s *Server) handleEditSetting(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := s.postForm(r); b != nil {
		b.Write(w)
		return
	}
	field := calendar.SettingField(sanitizeInput(r.PostForm.Get("field")))
	if err := view.EditSetting(field, r.PostForm.Get("value")); err != nil {
		s.viewFailure(w, r, err, "Failed to save settings")
		return
	}
	s.renderSettingsStatus(w, r, view.Snapshot(), NewHTMXResponse())
}

// handleSettingsStatus is polled while an autosave is pending. The final
// poll refreshes the calendar on success or raises an alert on failure.
func (s *Server) handleSettingsStatus(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequireMethod(r, http.MethodGet); b != nil {
		b.Write(w)
		return
	}
	snap := view.Snapshot()
	b := NewHTMXResponse()
	switch snap.SaveStatus {
	case calendar.SaveSaved:
		b.TriggerCalendarRefresh()
	case calendar.SaveFailed:
		s.logger.WithComponent(log.ComponentUI).WarnContext(r.Context(), "Settings autosave failed",
			log.FieldError, snap.SaveError)
		b.TriggerErrorNotification("Failed to save settings")
	}
	s.renderSettingsStatus(w, r, snap, b)
}

func (s *Server) handleToggleSettings(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequirePOST(r); b != nil {
		b.Write(w)
		return
	}
	view.ToggleSettings()
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) handleToggleBill(w http.ResponseWriter, r *http.Request, view *calendar.View) {
	if b := RequirePOST(r); b != nil {
		b.Write(w)
		return
	}
	view.ToggleBill()
	s.renderCalendar(w, r, view, NewHTMXResponse())
}

func (s *Server) postForm(r *http.Request) *HTMXResponseBuilder {
	if b := RequirePOST(r); b != nil {
		return b
	}
	return ParseFormOrFail(r)
}

// viewFailure maps view errors to responses. Client mistakes get 400, a
// closed view sends the browser back to the page, everything else is logged
// and reported with msg.
func (s *Server) viewFailure(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case isValidationError(err),
		errors.Is(err, calendar.ErrOutsideMonth),
		errors.Is(err, calendar.ErrNoSelection),
		errors.Is(err, calendar.ErrUnknownField):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, calendar.ErrClosed), errors.Is(err, calendar.ErrNotViewing):
		NewHTMXResponse().Redirect("/").Status(http.StatusConflict).Write(w)
	default:
		s.events.LogError(r.Context(), msg, err, log.ComponentUI, log.OpUpsert, nil)
		ErrorResponse(http.StatusInternalServerError, msg).Write(w)
	}
}

func (s *Server) renderCalendar(w http.ResponseWriter, r *http.Request, view *calendar.View, b *HTMXResponseBuilder) {
	s.renderPartial(w, r, "calendar", view.Snapshot(), b)
}

func (s *Server) renderSettingsStatus(w http.ResponseWriter, r *http.Request, snap calendar.Snapshot, b *HTMXResponseBuilder) {
	s.renderPartial(w, r, "settings-status", snap, b)
}

func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, data any, b *HTMXResponseBuilder) {
	if s.templates == nil {
		s.templateMissing(w, r)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{"template": name})
		InternalServerError().Write(w)
		return
	}
	b.BodyHTML(buf.String()).Write(w)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data any, status int) {
	if s.templates == nil {
		s.templateMissing(w, r)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.LogFields{"template": name})
		http.Error(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) templateMissing(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentTemplate).ErrorContext(r.Context(), "Templates not loaded",
		log.FieldPath, r.URL.Path,
		"error_type", log.ErrorTypeConfiguration)
	http.Error(w, internalErrorMessage, http.StatusInternalServerError)
}
