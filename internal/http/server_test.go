package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/ingest"
	"tally/internal/records/memory"
)

const groceries = "Item,Category,Price\nApple,Fruit,1.50\nPear,Fruit,2\nBread,Bakery,3.25\n"

func newTestServer(t *testing.T, deps Deps, seed ...core.LineItem) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New(seed...)
	pipeline := ingest.NewPipeline(
		ingest.NewDecoder(0, nil),
		ingest.NewSink(store, ingest.SinkConfig{}, nil),
		ingest.NewStore(),
		nil,
	)
	deps.Pipeline = pipeline
	deps.Records = store
	srv, err := NewServer(":0", deps, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })
	return srv, store
}

func uploadRequest(t *testing.T, path, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		fw, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

func TestIndexRendersUploadForm(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `accept=".xlsx,.xls,.csv"`)
	assert.Contains(t, body, `id="totals"`)
	assert.Contains(t, body, "No totals yet.")
	assert.Equal(t, 1, strings.Count(body, "hx-post="), "one element posts the upload")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"record_store":"not_checked"`)
}

type failingWriter struct{ *memory.Store }

func (failingWriter) Insert(context.Context, core.LineItem) (string, error) {
	return "", errors.New("store unavailable")
}

type failingPinger struct{}

func (failingPinger) Ping(_ context.Context) error { return errors.New("connection refused") }

func TestReadyReportsUnreachableStore(t *testing.T) {
	srv, _ := newTestServer(t, Deps{Ping: failingPinger{}})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestUploadShowsTotals(t *testing.T) {
	srv, store := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/upload", "groceries.csv", []byte(groceries)))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Fruit")
	assert.Contains(t, body, "$3.50")
	assert.Contains(t, body, "Bakery")
	assert.Contains(t, body, "$3.25")
	assert.Less(t, strings.Index(body, "Fruit"), strings.Index(body, "Bakery"), "first-seen order")
	assert.Contains(t, w.Header().Get("HX-Trigger"), "upload:completed")

	recs, err := store.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestUploadWithoutCategoryColumn(t *testing.T) {
	srv, store := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/upload", "items.csv", []byte("Item,Price\nApple,1\n")))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "No &#39;category&#39; column")
	assert.NotContains(t, w.Body.String(), "<table>")

	recs, err := store.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, recs, "no writes for a rejected upload")
}

func TestUploadUnreadableFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", []byte{}},
		{"binary", []byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 0x10}},
		{"legacy xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Deps{})

			w := serve(srv, uploadRequest(t, "/upload", "sheet.xlsx", tt.content))

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, w.Body.String(), core.MsgDecodeFailed)
		})
	}
}

func TestUploadWithoutFile(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/upload", "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Choose a spreadsheet")
	assert.Contains(t, w.Body.String(), `id="totals"`, "the swap target survives a failed upload")
	assert.Contains(t, w.Header().Get("HX-Trigger"), `"type":"error"`)
}

func TestRequestErrorKeepsPublishedTotals(t *testing.T) {
	srv, _ := newTestServer(t, Deps{UploadMaxBytes: 512})

	w := serve(srv, uploadRequest(t, "/upload", "groceries.csv", []byte(groceries)))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, uploadRequest(t, "/upload", "big.csv", bytes.Repeat([]byte("a,b\n"), 200)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `id="totals"`)
	assert.Contains(t, body, "File is too large")
	assert.Contains(t, body, "$3.50")
}

func TestUploadPageHidesRowPersistFailures(t *testing.T) {
	store := failingWriter{memory.New()}
	pipeline := ingest.NewPipeline(
		ingest.NewDecoder(0, nil),
		ingest.NewSink(store, ingest.SinkConfig{}, nil),
		ingest.NewStore(),
		nil,
	)
	srv, err := NewServer(":0", Deps{Pipeline: pipeline, Records: store}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(t.Context()) })

	w := serve(srv, uploadRequest(t, "/upload", "groceries.csv", []byte(groceries)))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "$3.50")
	assert.NotContains(t, body, "could not be saved")
	assert.NotContains(t, body, "banner error")
}

func TestUploadTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, Deps{UploadMaxBytes: 64})

	w := serve(srv, uploadRequest(t, "/upload", "big.csv", bytes.Repeat([]byte("a,b\n"), 100)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestFailedUploadReplacesPreviousTotals(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/upload", "groceries.csv", []byte(groceries)))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, uploadRequest(t, "/upload", "bad.csv", []byte("Item,Price\nApple,1\n")))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
	var resp totalsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Totals)
	assert.Equal(t, core.MsgNoCategoryColumn, resp.Error)
	assert.Equal(t, uint64(2), resp.Generation)
}

func TestAPIUploadAndTotals(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/api/uploads", "groceries.csv", []byte(groceries)))
	require.Equal(t, http.StatusOK, w.Code)

	var up uploadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&up))
	assert.NotEmpty(t, up.RunID)
	assert.Equal(t, 3, up.Persisted)
	assert.Zero(t, up.Failed)
	require.Len(t, up.Totals, 2)
	assert.Equal(t, "Fruit", up.Totals[0].Category)
	assert.Equal(t, "$3.50", up.Totals[0].Display)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var totals totalsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&totals))
	assert.Equal(t, up.Generation, totals.Generation)
	assert.Equal(t, "idle", totals.Phase)
	require.Len(t, totals.Totals, 2)
	assert.Equal(t, 3.25, totals.Totals[1].Total)
}

func TestAPIUploadRejectedKind(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	w := serve(srv, uploadRequest(t, "/api/uploads", "bad.csv", []byte("Item,Price\nApple,1\n")))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(core.KindSchema), resp.Kind)
	assert.Equal(t, core.MsgNoCategoryColumn, resp.Error)
}

func TestAPIRecordsInvalidatedAfterUpload(t *testing.T) {
	srv, _ := newTestServer(t, Deps{}, core.LineItem{Item: "Milk", Category: "Dairy", Price: decimal.RequireFromString("1.20")})

	count := func() int {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/records", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp.Count
	}

	assert.Equal(t, 1, count())

	w := serve(srv, uploadRequest(t, "/api/uploads", "groceries.csv", []byte(groceries)))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 4, count())
}

func TestUploadRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, Deps{UploadsPerMinute: 2})

	for i := 0; i < 2; i++ {
		w := serve(srv, uploadRequest(t, "/api/uploads", "groceries.csv", []byte(groceries)))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(srv, uploadRequest(t, "/api/uploads", "groceries.csv", []byte(groceries)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit")

	w = serve(srv, uploadRequest(t, "/upload", "groceries.csv", []byte(groceries)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `id="totals"`)
	assert.Contains(t, w.Body.String(), "Too many uploads")

	// Reads are never limited.
	w = serve(srv, httptest.NewRequest(http.MethodGet, "/api/totals", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsCountUploads(t *testing.T) {
	srv, _ := newTestServer(t, Deps{})

	serve(srv, uploadRequest(t, "/api/uploads", "groceries.csv", []byte(groceries)))
	serve(srv, uploadRequest(t, "/api/uploads", "bad.csv", []byte("Item,Price\nApple,1\n")))

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "uploads_total 1\n")
	assert.Contains(t, body, "uploads_rejected_total 1\n")
	assert.Contains(t, body, "# TYPE http_requests_total counter")
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "report.xlsx", sanitizeFileName(`C:\Users\me\report.xlsx`))
	assert.Equal(t, "a.csv", sanitizeFileName("../../a.csv"))
	assert.Equal(t, "ab.csv", sanitizeFileName("a\x00b.csv"))
}
