package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cronograma/internal/core"
	"cronograma/internal/log"
	"cronograma/internal/metrics"
	"cronograma/internal/middleware/ratelimit"
	"cronograma/internal/middleware/security"
	"cronograma/internal/middleware/trace"
	"cronograma/internal/services"
)

// Deps are the collaborators the API serves. Export may be nil only in
// tests that never hit the document routes.
type Deps struct {
	Schedule     *services.ScheduleService
	Overrides    *services.OverrideService
	Calculations *services.CalculationService
	Export       *services.ExportService
	Metrics      *metrics.Metrics
	// Ready reports whether the backing store answers; nil means always ready.
	Ready func(ctx context.Context) error
	Now   func() time.Time
	// Locale applies when a request carries no Accept-Language.
	Locale              core.Locale
	ExportRatePerMinute int
	TrustedProxies      []string
	Logger              *log.Logger
}

type Server struct {
	http.Server
	schedule  *services.ScheduleService
	overrides *services.OverrideService
	calc      *services.CalculationService
	export    *services.ExportService
	metrics   *metrics.Metrics
	ready     func(ctx context.Context) error
	now       func() time.Time
	locale    core.Locale
	logger    *log.Logger

	detector *security.Detector
	limiter  *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locale.Symbol == "" {
		d.Locale = core.DefaultLocale()
	}
	if d.Logger == nil {
		d.Logger = log.FromContext(context.Background())
	}
	logger := d.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		schedule:  d.Schedule,
		overrides: d.Overrides,
		calc:      d.Calculations,
		export:    d.Export,
		metrics:   d.Metrics,
		ready:     d.Ready,
		now:       d.Now,
		locale:    d.Locale,
		logger:    logger,
		detector:  security.NewDetector(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.ExportRatePerMinute}),
	}
	for _, cidr := range d.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	mux := http.NewServeMux()
	s.routes(mux)

	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, logger, d.Metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	block := s.detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Suspicious request blocked",
			log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
		BadRequestError("request rejected").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(headers.Middleware(block(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /api/months", s.handleMonths)

	const plan = "/api/plans/{client}/{project}"
	mux.HandleFunc("GET "+plan, s.handlePlan)
	mux.HandleFunc("POST "+plan+"/lines", s.handleCreateLine)
	mux.HandleFunc("GET "+plan+"/calculations", s.handleCalculations)
	mux.HandleFunc("GET "+plan+"/overrides", s.handleListOverrides)
	mux.HandleFunc("PUT "+plan+"/overrides", s.handleSaveOverrides)
	mux.HandleFunc("DELETE "+plan+"/overrides/{month}/{concept}", s.handleDeleteOverride)
	mux.Handle("GET "+plan+"/report.pdf", limited(s.handleReport("pdf")))
	mux.Handle("GET "+plan+"/report.xlsx", limited(s.handleReport("xlsx")))
	mux.Handle("POST "+plan+"/exports", limited(http.HandlerFunc(s.handleEnqueueExport)))

	mux.HandleFunc("PATCH /api/lines/{id}", s.handleUpdateLine)
	mux.HandleFunc("DELETE /api/lines/{id}", s.handleDeleteLine)
	mux.HandleFunc("POST /api/lines/{id}/activity", s.handleCreateActivity)
	mux.HandleFunc("PATCH /api/activities/{id}", s.handleUpdateActivity)
	mux.HandleFunc("DELETE /api/activities/{id}", s.handleDeleteActivity)
}

// Shutdown stops accepting requests, drains in-flight ones and stops the
// limiter's cleanup loop. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
