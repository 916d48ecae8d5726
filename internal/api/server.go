// Package api serves recorded detection runs over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/sarchange/internal/httputil"
	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
	"github.com/banshee-data/sarchange/internal/sar/render"
	"github.com/banshee-data/sarchange/internal/sar/seriesio"
	"github.com/banshee-data/sarchange/internal/sar/storage/sqlite"
)

const defaultRunLimit = 50

// Server exposes a RunStore as a small JSON API with rendered products.
type Server struct {
	store   *sqlite.RunStore
	metrics http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(store *sqlite.RunStore, opts ...Option) *Server {
	s := &Server{store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, URI, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%d] %s %s %.3fms",
			lrw.statusCode, r.Method, r.RequestURI,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.run)
	mux.HandleFunc("/api/runs/{id}/records", s.listRecords)
	mux.HandleFunc("/api/runs/{id}/products", s.downloadProducts)
	mux.HandleFunc("/api/runs/{id}/heatmap.png", s.heatmapPNG)
	mux.HandleFunc("/api/runs/{id}/report.html", s.reportHTML)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Handler is ServeMux wrapped in LoggingMiddleware.
func (s *Server) Handler() http.Handler {
	return LoggingMiddleware(s.ServeMux())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	monitoring.Logf("serving runs on %s", addr)

	select {
	case err := <-errc:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, ok := intParam(w, r, "limit", defaultRunLimit)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*sqlite.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		run, ok := s.getRun(w, id)
		if ok {
			httputil.WriteJSONOK(w, run)
		}
	case http.MethodDelete:
		if err := s.store.DeleteRun(id); err != nil {
			s.storeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	id := r.PathValue("id")
	if _, ok := s.getRun(w, id); !ok {
		return
	}

	q := r.URL.Query()
	f := sqlite.RecordFilter{Fault: q.Get("fault")}
	if v := q.Get("changed"); v != "" {
		changed, err := strconv.ParseBool(v)
		if err != nil {
			httputil.BadRequest(w, "invalid 'changed' parameter")
			return
		}
		f.ChangedOnly = changed
	}
	var ok bool
	if f.Limit, ok = intParam(w, r, "limit", 0); !ok {
		return
	}

	recs, err := s.store.ListRecords(id, f)
	if errors.Is(err, sqlite.ErrInvalidFilter) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list records: %v", err))
		return
	}
	if recs == nil {
		recs = []sqlite.StoredRecord{}
	}
	httputil.WriteJSONOK(w, recs)
}

func (s *Server) downloadProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	format := seriesio.FormatJSON
	if v := q.Get("format"); v != "" {
		var err error
		if format, err = seriesio.ParseFormat(v); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	notable := false
	if v := q.Get("notable"); v != "" {
		var err error
		if notable, err = strconv.ParseBool(v); err != nil {
			httputil.BadRequest(w, "invalid 'notable' parameter")
			return
		}
	}

	id := r.PathValue("id")
	p, ok := s.products(w, id)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := seriesio.EncodeProducts(&buf, format, seriesio.NewProductsDocument(p, notable)); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode products: %v", err))
		return
	}

	contentType := "application/json"
	if format == seriesio.FormatMsgPack {
		contentType = "application/msgpack"
	}
	w.Header().Set("Content-Type", contentType)
	httputil.SetAttachment(w, fmt.Sprintf("%s.%s", id, format))
	w.Write(buf.Bytes())
}

func (s *Server) heatmapPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	raster := render.RasterCount
	if v := r.URL.Query().Get("raster"); v != "" {
		var err error
		if raster, err = render.ParseRaster(v); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	}
	p, ok := s.products(w, r.PathValue("id"))
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, p, raster, render.PNGOptions{}); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render heatmap: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func (s *Server) reportHTML(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p, ok := s.products(w, r.PathValue("id"))
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WriteHTML(&buf, p); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render report: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// getRun writes the error response itself when ok is false.
func (s *Server) getRun(w http.ResponseWriter, id string) (*sqlite.Run, bool) {
	run, err := s.store.GetRun(id)
	if err != nil {
		s.storeError(w, err)
		return nil, false
	}
	return run, true
}

// products loads the stored products of a completed run. Runs that are
// still running or that failed answer 409.
func (s *Server) products(w http.ResponseWriter, id string) (*l5products.Products, bool) {
	run, ok := s.getRun(w, id)
	if !ok {
		return nil, false
	}
	if run.Status != sqlite.StatusComplete {
		httputil.WriteJSONError(w, http.StatusConflict, fmt.Sprintf("run %s is %s", id, run.Status))
		return nil, false
	}
	p, err := s.store.LoadProducts(id)
	if err != nil {
		s.storeError(w, err)
		return nil, false
	}
	return p, true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, sqlite.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

// intParam parses a non-negative integer query parameter.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		httputil.BadRequest(w, fmt.Sprintf("invalid '%s' parameter", name))
		return 0, false
	}
	return n, true
}
