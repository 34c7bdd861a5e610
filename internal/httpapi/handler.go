package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"netmap/internal/config"
	"netmap/internal/db"
	"netmap/internal/metrics"
	"netmap/internal/sqlcgen"
)

// TopologyQueries is the part of sqlcgen.Queries the handlers read and write.
type TopologyQueries interface {
	ListMaps(ctx context.Context) ([]sqlcgen.Map, error)
	GetMapByName(ctx context.Context, name string) (sqlcgen.Map, error)
	ListPositions(ctx context.Context, mapID int32) ([]sqlcgen.Position, error)
	ListNodeNames(ctx context.Context) ([]sqlcgen.NodeName, error)
	ListMapLinks(ctx context.Context, mapID int32) ([]sqlcgen.Link, error)
	ListMapNeighbours(ctx context.Context, mapID int32) ([]sqlcgen.Neighbour, error)
	UpsertPosition(ctx context.Context, arg sqlcgen.UpsertPositionParams) (sqlcgen.Position, error)
}

// Renderer turns a DOT document into an image.
type Renderer interface {
	Render(ctx context.Context, dot []byte, layout, format string) ([]byte, error)
}

type Options struct {
	Config   config.Config
	Renderer Renderer
	Metrics  *metrics.Metrics
}

type Handler struct {
	log      zerolog.Logger
	pool     *db.Pool
	topo     TopologyQueries
	renderer Renderer
	metrics  *metrics.Metrics
	cfg      config.Config
}

func NewHandler(log zerolog.Logger, pool *db.Pool, opts Options) *Handler {
	h := &Handler{
		log:      log,
		pool:     pool,
		renderer: opts.Renderer,
		metrics:  opts.Metrics,
		cfg:      opts.Config,
	}
	if q := pool.Queries(); q != nil {
		h.topo = q
	}
	if len(h.cfg.Render.Layouts) == 0 {
		h.cfg.Render = config.Default().Render
	}
	if h.cfg.DefaultMap == "" {
		h.cfg.DefaultMap = config.Default().DefaultMap
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout()))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Handle("/metrics", h.metrics.Handler())

	// Viewer
	r.Get("/", h.handleRoot)
	r.Get("/render", h.handleRender)
	r.Post("/update/{id}", h.handleUpdatePosition)
	r.Post("/update/{map}/{id}", h.handleUpdatePosition)
	if dir := strings.TrimSpace(h.cfg.StaticDir); dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
	}

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/maps", func(r chi.Router) {
				r.Get("/", h.handleListMaps)
				r.Get("/{map}/nodes", h.handleListMapNodes)
			})
		})
	})

	return r
}

// requestTimeout leaves Graphviz its full budget plus time for the map queries.
func (h *Handler) requestTimeout() time.Duration {
	if t := h.cfg.Render.Timeout + 2*time.Second; t > 10*time.Second {
		return t
	}
	return 10 * time.Second
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.topo == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}
