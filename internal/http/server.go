package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"milkman/internal/auth"
	"milkman/internal/calendar"
	"milkman/internal/core"
	"milkman/internal/log"
	"milkman/internal/middleware/ratelimit"
	"milkman/internal/middleware/security"
	"milkman/internal/middleware/trace"
	appweb "milkman/web"
)

// Ledger is the billing surface the handlers need.
type Ledger interface {
	calendar.Ledger
	MonthBill(ctx context.Context, m core.Month) (core.Bill, error)
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr              string
	Ledger            Ledger
	Gate              *auth.Gate
	Sessions          *auth.Sessions
	Logger            *log.Logger
	SettingsSaveDelay time.Duration
	RequestsPerMinute int
	// Now is used for the calendar's "today" marker. Defaults to time.Now.
	Now func() time.Time
}

type appMetrics struct {
	uptime        time.Time
	overrideSaves int64
	settingsSaves int64
	logins        int64
	failedLogins  int64
}

type Server struct {
	http.Server
	logger           *log.Logger
	events           *log.StructuredLogger
	templates        *template.Template
	ledger           Ledger
	gate             *auth.Gate
	sessions         *auth.Sessions
	views            *calendar.Registry
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	stopViews    context.CancelFunc
	viewsDone    chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires routes, middleware and the per-session calendar views.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		logger:           logger,
		events:           log.NewStructuredLogger(logger),
		ledger:           opts.Ledger,
		gate:             opts.Gate,
		sessions:         opts.Sessions,
		securityDetector: security.NewDetector(),
		appMetrics:       &appMetrics{uptime: time.Now()},
		viewsDone:        make(chan struct{}),
	}
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RequestsPerMinute,
		LimitedMethods:    []string{http.MethodPost},
	})
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)
	s.views = calendar.NewRegistry(func() *calendar.View {
		return calendar.NewView(opts.Ledger, calendar.Options{
			SaveDelay: opts.SettingsSaveDelay,
			Now:       now,
		})
	})

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/api/auth", s.handleAPIAuth)
	mux.HandleFunc("/api/settings", s.handleAPISettings)
	mux.HandleFunc("/api/overrides", s.handleAPIOverrides)
	mux.HandleFunc("/api/bill", s.handleAPIBill)

	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/ui/calendar", s.withView(s.handleCalendar))
	mux.HandleFunc("/ui/month", s.withView(s.handleChangeMonth))
	mux.HandleFunc("/ui/day", s.withView(s.handleSelectDay))
	mux.HandleFunc("/ui/day/clear", s.withView(s.handleClearDay))
	mux.HandleFunc("/ui/day/category", s.withView(s.handleEditCategory))
	mux.HandleFunc("/ui/day/no-delivery", s.withView(s.handleNoDelivery))
	mux.HandleFunc("/ui/settings", s.withView(s.handleEditSetting))
	mux.HandleFunc("/ui/settings/toggle", s.withView(s.handleToggleSettings))
	mux.HandleFunc("/ui/settings/status", s.withView(s.handleSettingsStatus))
	mux.HandleFunc("/ui/bill/toggle", s.withView(s.handleToggleBill))
	mux.HandleFunc("/", s.handleIndex)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestID)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.securityDetector.Middleware(logger)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopViews = cancel
	go func() {
		defer close(s.viewsDone)
		s.views.Run(ctx, time.Minute)
	}()

	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	if isHTMX(r) {
		ErrorResponse(http.StatusTooManyRequests, "Too many requests, slow down").Write(w)
		return
	}
	writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// Shutdown stops background work, closes every calendar view and drains the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.stopViews()
		<-s.viewsDone
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
