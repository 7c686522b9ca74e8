package web

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/kayko/internal/config"
	"github.com/hpungsan/kayko/internal/enhance"
	"github.com/hpungsan/kayko/internal/events"
	"github.com/hpungsan/kayko/internal/logger"
	"github.com/hpungsan/kayko/internal/store"
	"github.com/hpungsan/kayko/internal/surface"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Deps are the collaborators the HTTP companion serves.
type Deps struct {
	Store    *store.Store
	Config   *config.Config
	Bus      *events.Bus      // optional; /api/events is unavailable without it
	Hub      *surface.Hub     // optional; surface intake is unavailable without it
	Enhancer enhance.Enhancer // optional
}

// NewHandlers builds the route handlers.
func NewHandlers(d Deps, version string) (*Handlers, error) {
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	return &Handlers{
		st:       d.Store,
		cfg:      d.Config,
		bus:      d.Bus,
		hub:      d.Hub,
		enhancer: d.Enhancer,
		renderer: NewRenderer(templateSub, version),
		log:      logger.Named("web"),
	}, nil
}

// NewServer creates and configures the HTTP server for the Kayko companion.
func NewServer(d Deps, version, bind string, port int) (*http.Server, error) {
	h, err := NewHandlers(d, version)
	if err != nil {
		return nil, err
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           h.Routes(staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// Routes registers every route on a new mux and wraps it in middleware.
func (h *Handlers) Routes(static fs.FS) http.Handler {
	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/prompts", http.StatusFound)
	})
	mux.HandleFunc("GET /prompts", h.HandleList)
	mux.HandleFunc("GET /prompts/{id}", h.HandleDetail)
	mux.HandleFunc("DELETE /prompts/{id}", h.HandleDelete)
	mux.HandleFunc("POST /prompts/{id}/favorite", h.HandleFavorite)
	mux.HandleFunc("GET /forms", h.HandleForms)

	// JSON API
	mux.HandleFunc("GET /api/prompts", h.APIList)
	mux.HandleFunc("POST /api/prompts", h.APISave)
	mux.HandleFunc("DELETE /api/prompts", h.APIClear)
	mux.HandleFunc("GET /api/prompts/{id}", h.APIGet)
	mux.HandleFunc("DELETE /api/prompts/{id}", h.APIDelete)
	mux.HandleFunc("POST /api/prompts/{id}/favorite", h.APIFavorite)
	mux.HandleFunc("GET /api/stats", h.APIStats)
	mux.HandleFunc("GET /api/settings", h.APIGetSettings)
	mux.HandleFunc("PATCH /api/settings", h.APIUpdateSettings)
	mux.HandleFunc("POST /api/enhance", h.APIEnhance)
	mux.HandleFunc("GET /api/export", h.APIExport)
	mux.HandleFunc("POST /api/import", h.APIImport)
	mux.HandleFunc("GET /api/forms", h.APIFormList)
	mux.HandleFunc("GET /api/forms/entry", h.APIFormGet)
	mux.HandleFunc("DELETE /api/forms/entry", h.APIFormDelete)
	mux.HandleFunc("POST /api/forms/lookup", h.APIFormLookup)
	mux.HandleFunc("POST /api/surfaces/{id}/events", h.APISurfaceEvent)
	mux.HandleFunc("DELETE /api/surfaces/{id}", h.APISurfaceClose)
	mux.HandleFunc("GET /api/events", h.HandleEvents)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return requestLogger(securityHeaders(mux))
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status. Hijack is passed through for
// websocket upgrades.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// requestLogger assigns a request id (echoed in X-Request-ID) and logs each
// request on completion.
func requestLogger(next http.Handler) http.Handler {
	log := logger.Named("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(logger.WithRequest(r.Context(), reqID)))

		log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Run serves srv until ctx is done, then shuts it down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	log := logger.Named("web")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Msgf("Kayko companion running at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
