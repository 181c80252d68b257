package http

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"tally/internal/core"
	"tally/internal/ingest"
	"tally/internal/log"
)

const uploadField = "file"

var (
	errNoFile   = errors.New("no file uploaded")
	errTooLarge = errors.New("file too large")
)

// uploadFailure is how a failed upload is reported to the client.
type uploadFailure struct {
	Status  int
	Kind    string
	Message string
}

// readUpload reads the multipart file field, bounded by the upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (ingest.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ingest.Upload{}, errTooLarge
		}
		return ingest.Upload{}, errNoFile
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		return ingest.Upload{}, errNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Upload{}, err
	}
	return ingest.Upload{Name: sanitizeFileName(header.Filename), Data: data}, nil
}

// runUpload reads and processes the upload, mapping every failure to a
// status and a user-facing message.
func (s *Server) runUpload(w http.ResponseWriter, r *http.Request) (ingest.Result, *uploadFailure) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	up, err := s.readUpload(w, r)
	switch {
	case errors.Is(err, errNoFile):
		return ingest.Result{}, &uploadFailure{Status: http.StatusBadRequest, Kind: "request", Message: "Choose a spreadsheet to upload"}
	case errors.Is(err, errTooLarge):
		return ingest.Result{}, &uploadFailure{Status: http.StatusRequestEntityTooLarge, Kind: "request", Message: "File is too large"}
	case err != nil:
		logger.ErrorContext(ctx, "Failed to read upload", log.FieldError, err.Error())
		return ingest.Result{}, &uploadFailure{Status: http.StatusBadRequest, Kind: "request", Message: "Could not read upload"}
	}

	res, err := s.pipeline.Run(ctx, up)
	if err != nil {
		if perr, ok := core.AsPipelineError(err); ok {
			atomic.AddInt64(&s.appMetrics.rejected, 1)
			return ingest.Result{}, &uploadFailure{Status: http.StatusUnprocessableEntity, Kind: string(perr.Kind), Message: perr.Message}
		}
		logger.ErrorContext(ctx, "Upload failed", log.FieldError, err.Error())
		return ingest.Result{}, &uploadFailure{Status: http.StatusInternalServerError, Kind: "internal", Message: "Upload failed"}
	}

	atomic.AddInt64(&s.appMetrics.uploads, 1)
	s.records.Invalidate()
	return res, nil
}

// handleUpload serves the HTML form and htmx. It always answers with the
// totals partial, carrying the error banner on failure.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, fail := s.runUpload(w, r)

	data := s.pageData(s.pipeline.Store().Current())
	if fail != nil {
		// Request problems leave the published totals alone; rejected
		// spreadsheets have already cleared them.
		if fail.Status == http.StatusUnprocessableEntity {
			data.Totals = nil
		}
		data.Error = fail.Message
		s.renderTotals(w, r, ErrorResponse(fail.Status, fail.Message), data)
		return
	}

	s.renderTotals(w, r, NewHTMXResponse().TriggerUploadCompleted(res.Generation, len(res.Totals)), data)
}

func (s *Server) renderTotals(w http.ResponseWriter, r *http.Request, resp *HTMXResponseBuilder, data pageData) {
	resp.applyHeaders(w)
	s.render(w, r, resp.statusCode, "totals.html", data)
}

type totalDTO struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Display  string  `json:"display"`
}

type totalsResponse struct {
	Generation uint64     `json:"generation"`
	Phase      string     `json:"phase"`
	Totals     []totalDTO `json:"totals"`
	Error      string     `json:"error,omitempty"`
	FetchError string     `json:"fetch_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type uploadResponse struct {
	RunID      string     `json:"run_id"`
	Generation uint64     `json:"generation"`
	Totals     []totalDTO `json:"totals"`
	Persisted  int        `json:"persisted"`
	Failed     int        `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func toDTO(totals []core.CategoryTotal) []totalDTO {
	out := make([]totalDTO, len(totals))
	for i, t := range totals {
		out[i] = totalDTO{Category: t.Category, Total: t.Total.InexactFloat64(), Display: core.FormatTotal(t.Total)}
	}
	return out
}

func (s *Server) handleAPITotals(w http.ResponseWriter, r *http.Request) {
	snap := s.pipeline.Store().Current()
	writeJSON(w, http.StatusOK, totalsResponse{
		Generation: snap.Generation,
		Phase:      string(snap.Phase),
		Totals:     toDTO(snap.Totals),
		Error:      snap.Error,
		FetchError: snap.FetchError,
		UpdatedAt:  snap.UpdatedAt,
	})
}

func (s *Server) handleAPIUpload(w http.ResponseWriter, r *http.Request) {
	res, fail := s.runUpload(w, r)
	if fail != nil {
		writeJSON(w, fail.Status, errorResponse{Error: fail.Message, Kind: fail.Kind})
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		RunID:      res.RunID,
		Generation: res.Generation,
		Totals:     toDTO(res.Totals),
		Persisted:  res.Persist.Succeeded,
		Failed:     res.Persist.Failed,
	})
}

func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.records.List(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list records",
			log.FieldOperation, log.OpList,
			log.FieldError, err.Error())
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: core.MsgFetchFailed, Kind: "fetch"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, clientIP(r),
		"path", r.URL.Path)
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many uploads, try again in a minute", Kind: "rate_limit"})
		return
	}
	data := s.pageData(s.pipeline.Store().Current())
	data.Error = "Too many uploads, try again in a minute"
	s.renderTotals(w, r, ErrorResponse(http.StatusTooManyRequests, data.Error), data)
}

// sanitizeFileName keeps the base name and drops control characters.
func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
