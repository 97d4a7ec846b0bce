// Package server exposes flow endpoints over HTTP: every path not claimed by
// an operational route is dispatched to the controller named by its first
// segment.
package server

import (
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dominossauro/lowcode/internal/diagram"
	"github.com/dominossauro/lowcode/internal/engine"
	"github.com/dominossauro/lowcode/internal/logging"
	"github.com/dominossauro/lowcode/internal/streaming"
	"github.com/dominossauro/lowcode/pkg/schema"
)

//go:embed templates
var content embed.FS

// DefaultMaxBodyBytes caps request bodies when Deps.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 4 << 20

// Deps holds the collaborators of the HTTP server.
type Deps struct {
	Executor *engine.Executor
	// Metrics is mounted on GET /metrics when non-nil.
	Metrics        http.Handler
	Logger         *slog.Logger
	ShowExceptions bool
	MaxBodyBytes   int64
	Version        string
	// Events is streamed on GET /_lowcode/events when non-nil.
	Events *streaming.Hub
}

// Server serves flows plus /healthz, /metrics and a read-only status page.
type Server struct {
	deps    Deps
	status  *template.Template
	started time.Time
}

// New creates a Server with parsed templates.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	funcMap := template.FuncMap{
		"uptime":      uptime,
		"methodBadge": methodBadge,
		"upper":       strings.ToUpper,
	}
	status := template.Must(template.New("status.html").Funcs(funcMap).ParseFS(content, "templates/status.html"))

	return &Server{deps: deps, status: status, started: time.Now()}
}

// Handler returns the HTTP handler with recovery and request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /_lowcode", s.handleStatus)
	mux.HandleFunc("GET /_lowcode/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /_lowcode/controllers/{name}/diagram", s.handleDiagram)
	if s.deps.Events != nil {
		mux.HandleFunc("GET /_lowcode/events", s.handleEvents)
	}
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	mux.HandleFunc("/", s.handleFlow)

	chain := Chain(
		Recovery(s.deps.Logger),
		Logging(s.deps.Logger),
	)
	return chain(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"controllers": s.deps.Executor.Catalog().Len(),
	})
}

// ControllerView is one row of the status page and endpoints listing.
type ControllerView struct {
	Name      string            `json:"name"`
	Nodes     int               `json:"nodes"`
	Endpoints []schema.Endpoint `json:"endpoints"`
}

func (s *Server) controllers() []ControllerView {
	catalog := s.deps.Executor.Catalog()
	views := make([]ControllerView, 0, catalog.Len())
	for _, name := range catalog.Names() {
		ctrl, err := catalog.Get(name)
		if err != nil {
			// Removed by a concurrent reload.
			continue
		}
		views = append(views, ControllerView{
			Name:      name,
			Nodes:     len(ctrl.Nodes()),
			Endpoints: ctrl.Endpoints(),
		})
	}
	return views
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"controllers": s.controllers()})
}

// handleDiagram renders a controller graph. format is mermaid (default),
// ascii, svg or png.
func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctrl, err := s.deps.Executor.Catalog().Get(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	model := diagram.Build(ctrl, nil)

	switch format := r.URL.Query().Get("format"); format {
	case "", "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderMermaid(model))
	case "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderASCII(model))
	case "svg", "png":
		img, err := diagram.RenderImage(r.Context(), model, diagram.ImageFormat(format))
		if err != nil {
			s.deps.Logger.ErrorContext(r.Context(), "render diagram", "controller", ctrl.Name(), "error", err)
			writeError(w, http.StatusInternalServerError, "diagram rendering failed")
			return
		}
		if format == "svg" {
			w.Header().Set("Content-Type", "image/svg+xml")
		} else {
			w.Header().Set("Content-Type", "image/png")
		}
		w.Write(img)
	default:
		writeError(w, http.StatusBadRequest, "unsupported format "+format)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Version":     s.deps.Version,
		"Started":     s.started,
		"Controllers": s.controllers(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.status.Execute(w, data); err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "render status page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
