package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"tally/internal/core"
	"tally/internal/ingest"
	"tally/internal/log"
)

var templateFuncs = map[string]any{
	"money": core.FormatTotal,
}

// pageData is what index.html and the totals partial render.
type pageData struct {
	Phase       ingest.Phase
	Generation  uint64
	Totals      []core.CategoryTotal
	Error       string
	FetchError  string
	RecordCount int
	MaxUpload   int64
}

func (s *Server) pageData(snap ingest.Snapshot) pageData {
	return pageData{
		Phase:       snap.Phase,
		Generation:  snap.Generation,
		Totals:      snap.Totals,
		Error:       snap.Error,
		FetchError:  snap.FetchError,
		RecordCount: len(snap.Records),
		MaxUpload:   s.maxUpload,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	})
}

// handleReady checks the record store when it can be pinged.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "record_store": "ok"}

	if s.ping != nil {
		if err := s.ping.Ping(ctx); err != nil {
			checks["record_store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	} else {
		checks["record_store"] = "not_checked"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	limitMetrics := s.limiter.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("uploads_total", "counter", "Uploads that produced totals", atomic.LoadInt64(&s.appMetrics.uploads))
	metric("uploads_rejected_total", "counter", "Uploads rejected as unreadable or missing a category column", atomic.LoadInt64(&s.appMetrics.rejected))
	metric("rate_limit_rejections_total", "counter", "Requests refused by the upload rate limit", limitMetrics.Rejected)
	metric("rate_limit_clients", "gauge", "Clients currently tracked by the rate limiter", limitMetrics.ClientCount)
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(time.Since(s.appMetrics.started).Seconds()))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", s.pageData(s.pipeline.Store().Current()))
}

func (s *Server) handleTotalsPartial(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "totals.html", s.pageData(s.pipeline.Store().Current()))
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			log.FieldError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
