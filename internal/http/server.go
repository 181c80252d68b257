// Package http serves the upload page, the totals partial and a small JSON API.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tally/internal/cache"
	"tally/internal/ingest"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/records"
	appweb "tally/web"
)

const (
	DefaultUploadMaxBytes = 10 << 20
	recordsCacheTTL       = time.Minute
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server needs. Pipeline and Records are
// required; Ping may be nil.
type Deps struct {
	Pipeline       *ingest.Pipeline
	Records        records.RecordLister
	Ping           Pinger
	UploadMaxBytes int64
	// UploadsPerMinute bounds uploads per client; zero uses the limiter default.
	UploadsPerMinute int
}

type Server struct {
	http.Server
	templates  *template.Template
	pipeline   *ingest.Pipeline
	records    *cache.RecordLister
	ping       Pinger
	maxUpload  int64
	logger     *log.Logger
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	caches     *cache.Manager
	appMetrics appMetrics

	shutdownOnce sync.Once
}

type appMetrics struct {
	started  time.Time
	uploads  int64
	rejected int64
}

// NewServer parses the embedded templates and wires the router.
func NewServer(addr string, deps Deps, logger *log.Logger) (*Server, error) {
	if deps.Pipeline == nil || deps.Records == nil {
		return nil, errors.New("http server needs a pipeline and a record lister")
	}
	if logger == nil {
		logger = log.Discard()
	}
	if deps.UploadMaxBytes <= 0 {
		deps.UploadMaxBytes = DefaultUploadMaxBytes
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		templates:  tmpl,
		pipeline:   deps.Pipeline,
		records:    cache.NewRecordLister(deps.Records, recordsCacheTTL),
		ping:       deps.Ping,
		maxUpload:  deps.UploadMaxBytes,
		logger:     logger.WithComponent(log.ComponentHTTP),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.UploadsPerMinute}),
		tracer:     trace.NewMiddleware(logger, clientIP),
		caches:     cache.NewManager(logger),
		appMetrics: appMetrics{started: time.Now()},
	}
	s.caches.Register(s.records)
	s.caches.StartCleanup(10 * time.Minute)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/", s.handleIndex)
	r.Get("/ui/totals", s.handleTotalsPartial)

	limited := s.limiter.Middleware(clientIP, s.onRateLimit)
	r.With(limited).Post("/upload", s.handleUpload)

	r.Route("/api", func(r chi.Router) {
		r.Get("/totals", s.handleAPITotals)
		r.Get("/records", s.handleAPIRecords)
		r.With(limited).Post("/uploads", s.handleAPIUpload)
	})
	return r
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// clientIP reads RemoteAddr, which RealIP has already rewritten from proxy
// headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
