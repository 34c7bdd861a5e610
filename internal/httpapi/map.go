package httpapi

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/xeipuuv/gojsonschema"

	"netmap/internal/mapview"
	"netmap/internal/render"
	"netmap/internal/sqlcgen"
)

const maxUpdateBody = 4 << 10

//go:embed templates/root.html
var templatesFS embed.FS

var rootTmpl = template.Must(template.ParseFS(templatesFS, "templates/root.html"))

const positionUpdateSchema = `{
  "type": "object",
  "properties": {
    "x": {"type": "string", "minLength": 1},
    "y": {"type": "string", "minLength": 1}
  },
  "required": ["x", "y"],
  "additionalProperties": false
}`

var positionUpdateValidator = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(positionUpdateSchema))
	if err != nil {
		panic(fmt.Sprintf("position update schema: %v", err))
	}
	return s
}()

type positionUpdate struct {
	X string `json:"x"`
	Y string `json:"y"`
}

type mapSummary struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

type nodeOption struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Pos   string `json:"pos,omitempty"`
}

type mapNodes struct {
	Map      string       `json:"map"`
	Routers  []nodeOption `json:"routers"`
	Networks []nodeOption `json:"networks"`
}

// pathParam returns a URL parameter still percent-encoded. chi matches on the decoded
// path unless the request carried a non-canonical encoding, so re-escape in that case.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return url.PathEscape(v)
	}
	return v
}

func (h *Handler) viewFromQuery(r *http.Request) mapview.MapView {
	q := r.URL.Query()
	layout := strings.TrimSpace(q.Get("layout"))
	if !slices.Contains(h.cfg.Render.Layouts, layout) {
		layout = h.cfg.Render.DefaultLayout
	}
	mapName := strings.TrimSpace(q.Get("map"))
	if mapName == "" {
		mapName = h.cfg.DefaultMap
	}
	return mapview.MapView{Layout: layout, MapID: mapName}
}

func (h *Handler) loadGraph(ctx context.Context, view mapview.MapView) (render.Graph, error) {
	m, err := h.topo.GetMapByName(ctx, view.MapID)
	if err != nil {
		return render.Graph{}, err
	}
	var topo render.Topology
	if topo.Links, err = h.topo.ListMapLinks(ctx, m.ID); err != nil {
		return render.Graph{}, fmt.Errorf("list links: %w", err)
	}
	if topo.Positions, err = h.topo.ListPositions(ctx, m.ID); err != nil {
		return render.Graph{}, fmt.Errorf("list positions: %w", err)
	}
	if topo.Names, err = h.topo.ListNodeNames(ctx); err != nil {
		return render.Graph{}, fmt.Errorf("list names: %w", err)
	}
	if topo.Neighbours, err = h.topo.ListMapNeighbours(ctx, m.ID); err != nil {
		return render.Graph{}, fmt.Errorf("list neighbours: %w", err)
	}
	return render.Build(view.Layout, topo), nil
}

// graphError writes the response for a failed loadGraph.
func (h *Handler) graphError(w http.ResponseWriter, view mapview.MapView, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		h.writeError(w, http.StatusNotFound, "not_found", "map not found", map[string]any{"map": view.MapID})
		return
	}
	h.log.Error().Err(err).Str("map", view.MapID).Msg("load topology failed")
	h.writeError(w, http.StatusInternalServerError, "db_error", "failed to load topology", nil)
}

func (h *Handler) handleRender(w http.ResponseWriter, r *http.Request) {
	view := h.viewFromQuery(r)
	if !h.ensureQueries(w) {
		return
	}
	if h.renderer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "render_failed", "renderer not configured", nil)
		return
	}

	graph, err := h.loadGraph(r.Context(), view)
	if err != nil {
		h.graphError(w, view, err)
		return
	}
	dot, err := graph.DOT()
	if err != nil {
		h.log.Error().Err(err).Msg("generate dot failed")
		h.writeError(w, http.StatusInternalServerError, "render_failed", "failed to generate graph", nil)
		return
	}

	format, contentType := render.NegotiateFormat(r.Header.Get("Accept"))
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Render.Timeout)
	defer cancel()

	start := time.Now()
	img, err := h.renderer.Render(ctx, dot, view.Layout, format)
	h.metrics.ObserveRender(view.Layout, format, err, time.Since(start))
	if err != nil {
		h.log.Error().Err(err).Str("layout", view.Layout).Str("map", view.MapID).Bytes("dot", dot).Msg("graphviz failed")
		h.writeError(w, http.StatusInternalServerError, "render_failed", "failed to render graph", nil)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Handler) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	mapName := h.cfg.DefaultMap
	if raw := chi.URLParam(r, "map"); raw != "" {
		decoded, err := url.PathUnescape(pathParam(r, "map"))
		if err != nil {
			h.metrics.IncPositionUpdate("invalid")
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid map name", map[string]any{"map": raw})
			return
		}
		mapName = decoded
	}
	nodeID, err := mapview.UnescapeNodeID(pathParam(r, "id"))
	if err != nil || nodeID == "" {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid node id", map[string]any{"id": chi.URLParam(r, "id")})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBody))
	if err != nil {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "failed to read body", map[string]any{"error": err.Error()})
		return
	}
	result, err := positionUpdateValidator.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "body does not match schema", map[string]any{"errors": problems})
		return
	}

	var req positionUpdate
	if err := decodeJSONStrict(bytes.NewReader(body), &req); err != nil {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	x, err := parseStoredCoordinate(req.X)
	if err != nil {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "x is not an integer", map[string]any{"x": req.X})
		return
	}
	y, err := parseStoredCoordinate(req.Y)
	if err != nil {
		h.metrics.IncPositionUpdate("invalid")
		h.writeError(w, http.StatusBadRequest, "validation_failed", "y is not an integer", map[string]any{"y": req.Y})
		return
	}

	if !h.ensureQueries(w) {
		return
	}

	_, err = h.topo.UpsertPosition(r.Context(), sqlcgen.UpsertPositionParams{
		MapName: mapName,
		NodeID:  nodeID,
		X:       x,
		Y:       y,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.metrics.IncPositionUpdate("not_found")
			h.writeError(w, http.StatusNotFound, "not_found", "map not found", map[string]any{"map": mapName})
			return
		}
		h.metrics.IncPositionUpdate("error")
		h.log.Error().Err(err).Str("map", mapName).Str("node", nodeID).Msg("update position failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to update position", nil)
		return
	}

	h.metrics.IncPositionUpdate("ok")
	h.log.Debug().Str("map", mapName).Str("node", nodeID).Int32("x", x).Int32("y", y).Msg("position updated")
	w.WriteHeader(http.StatusNoContent)
}

// parseStoredCoordinate parses one wire coordinate and checks it fits the pos table.
func parseStoredCoordinate(s string) (int32, error) {
	n, err := mapview.ParseCoordinate(s)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, errors.New("out of range")
	}
	return int32(n), nil
}

func (h *Handler) handleListMaps(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	rows, err := h.topo.ListMaps(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list maps failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list maps", nil)
		return
	}
	resp := make([]mapSummary, 0, len(rows))
	for _, m := range rows {
		resp = append(resp, mapSummary{ID: m.ID, Name: m.Name})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListMapNodes(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	view := mapview.MapView{Layout: h.cfg.Render.DefaultLayout, MapID: chi.URLParam(r, "map")}
	graph, err := h.loadGraph(r.Context(), view)
	if err != nil {
		h.graphError(w, view, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMapNodes(view.MapID, graph))
}

func toMapNodes(mapName string, g render.Graph) mapNodes {
	out := mapNodes{
		Map:      mapName,
		Routers:  make([]nodeOption, 0, len(g.Routers)),
		Networks: make([]nodeOption, 0, len(g.Nets)),
	}
	for _, rt := range g.Routers {
		out.Routers = append(out.Routers, nodeOption{ID: rt.ID, Label: rt.Label, Pos: rt.Pos})
	}
	for _, n := range g.Nets {
		out.Networks = append(out.Networks, nodeOption{ID: n.ID, Label: n.ID, Pos: n.Pos})
	}
	return out
}

type rootPage struct {
	View      mapview.MapView
	RenderSrc string
	Layouts   []string
	Maps      []string
	Nodes     mapNodes
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	view := h.viewFromQuery(r)
	if !h.ensureQueries(w) {
		return
	}
	maps, err := h.topo.ListMaps(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list maps failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list maps", nil)
		return
	}
	graph, err := h.loadGraph(r.Context(), view)
	if err != nil {
		h.graphError(w, view, err)
		return
	}

	page := rootPage{
		View:      view,
		RenderSrc: view.RenderPath(),
		Layouts:   h.cfg.Render.Layouts,
		Nodes:     toMapNodes(view.MapID, graph),
	}
	for _, m := range maps {
		page.Maps = append(page.Maps, m.Name)
	}

	var buf bytes.Buffer
	if err := rootTmpl.Execute(&buf, page); err != nil {
		h.log.Error().Err(err).Msg("render root template failed")
		h.writeError(w, http.StatusInternalServerError, "template_failed", "failed to render page", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
